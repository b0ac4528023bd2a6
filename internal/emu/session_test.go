package emu

import (
	"sync"
	"testing"
	"time"

	"github.com/vovakirdan/letsplay-server/internal/core"
)

func TestNewRejectsEmptyPaths(t *testing.T) {
	if _, err := New("emu1", "", "rom.gb", time.Second, nil); err == nil {
		t.Fatal("expected an error for an empty core path")
	}
	if _, err := New("emu1", "core.so", "", time.Second, nil); err == nil {
		t.Fatal("expected an error for an empty rom path")
	}
}

func TestFrameReflectsLatestInput(t *testing.T) {
	s, err := New("emu1", "core.so", "rom.gb", time.Second, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	s.UpdateValue(core.DeviceButton, 0, 42)
	frame := s.Frame()
	if frame.Width == 0 || frame.Height == 0 {
		t.Fatal("expected a non-zero frame")
	}
	if frame.RGB[0] != 42 {
		t.Fatalf("expected red channel to track button 0, got %d", frame.RGB[0])
	}
}

func TestSpawnerProducesWorkingSession(t *testing.T) {
	sp := NewSpawner(50*time.Millisecond, nil, nil, nil)
	session, err := sp.Spawn("emu1", "core.so", "rom.gb")
	if err != nil {
		t.Fatalf("spawn failed: %v", err)
	}
	if session.ID() != "emu1" {
		t.Fatalf("expected id emu1, got %q", session.ID())
	}
	if session.Arbiter() == nil {
		t.Fatal("expected a non-nil arbiter")
	}
}

// fakeHandle is a minimal core.ConnectionHandle for exercising frame
// egress end to end through a real Broadcaster and UserRegistry.
type fakeHandle struct {
	mu     sync.Mutex
	binary [][]byte
	closed bool
}

func (h *fakeHandle) Send([]byte) error { return nil }

func (h *fakeHandle) SendBinary(payload []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.binary = append(h.binary, append([]byte(nil), payload...))
	return nil
}

func (h *fakeHandle) Close(string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	return nil
}

func (h *fakeHandle) Expired() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

func (h *fakeHandle) frameCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.binary)
}

// stubConfig and stubHasher are just enough of core.ConfigProvider and
// core.AdminHasher for the dispatcher to run the username/connect flow.
type stubConfig struct{}

func (stubConfig) Snapshot() core.ServerConfig {
	return core.ServerConfig{MaxMessageSize: 4096, MinUsernameLength: 1, MaxUsernameLength: 20, JPEGQuality: 75}
}

type stubHasher struct{}

func (stubHasher) Hash(attempt, salt string) string { return "" }

// TestSpawnStreamsFramesToSessionViewers drives a real dispatcher
// through the username and connect commands a client would send, then
// confirms that the session Spawn started streams binary frames to the
// now-connected viewer without anything else pulling on SendFrame.
func TestSpawnStreamsFramesToSessionViewers(t *testing.T) {
	users := core.NewUserRegistry()
	sessions := core.NewSessionRegistry()
	queue := core.NewCommandQueue()
	broadcaster := core.NewBroadcaster(users, nil)

	sp := NewSpawner(time.Second, broadcaster, stubConfig{}, nil)
	sp.FrameInterval = 5 * time.Millisecond
	defer sp.Stop()

	dispatcher := core.NewDispatcher(users, sessions, queue, broadcaster, stubConfig{}, stubHasher{}, nil)
	dispatcher.Spawner = sp
	go dispatcher.Run()
	defer queue.DrainAndSeal(&core.Command{Sentinel: true})

	handle := &fakeHandle{}
	users.OnConnect(handle, "127.0.0.1")

	queue.Push(&core.Command{Kind: core.KindUsername, Params: []string{"alice"}, Handle: handle})
	time.Sleep(20 * time.Millisecond)

	dispatcher.BootstrapSession("emu1", "core.so", "rom.gb")

	queue.Push(&core.Command{Kind: core.KindConnect, Params: []string{"emu1"}, Handle: handle})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && handle.frameCount() == 0 {
		time.Sleep(5 * time.Millisecond)
	}
	if handle.frameCount() == 0 {
		t.Fatal("expected at least one frame to reach the viewer")
	}
}
