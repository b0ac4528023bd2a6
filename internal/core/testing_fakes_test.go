package core

import (
	"sync"
	"time"
)

// fakeHandle is an in-memory ConnectionHandle for tests: it records
// every text/binary payload sent to it instead of touching a socket.
type fakeHandle struct {
	name string

	mu      sync.Mutex
	sent    [][]byte
	binary  [][]byte
	closed  bool
	closeBy string
}

func newFakeHandle(name string) *fakeHandle { return &fakeHandle{name: name} }

func (h *fakeHandle) Send(payload []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	cp := append([]byte(nil), payload...)
	h.sent = append(h.sent, cp)
	return nil
}

func (h *fakeHandle) SendBinary(payload []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	cp := append([]byte(nil), payload...)
	h.binary = append(h.binary, cp)
	return nil
}

func (h *fakeHandle) Close(reason string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	h.closeBy = reason
	return nil
}

func (h *fakeHandle) Expired() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

func (h *fakeHandle) messages() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.sent))
	for i, p := range h.sent {
		out[i] = string(p)
	}
	return out
}

func (h *fakeHandle) last() string {
	msgs := h.messages()
	if len(msgs) == 0 {
		return ""
	}
	return msgs[len(msgs)-1]
}

// fakeInputSink records every value written to it, in order; last
// returns the most recent write across all devices.
type fakeInputSink struct {
	mu     sync.Mutex
	events []inputEvent
}

type inputEvent struct {
	class DeviceClass
	id    int16
	value int16
}

func (s *fakeInputSink) UpdateValue(class DeviceClass, id int16, value int16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, inputEvent{class, id, value})
}

func (s *fakeInputSink) last() (inputEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.events) == 0 {
		return inputEvent{}, false
	}
	return s.events[len(s.events)-1], true
}

// fakeFrameProducer yields its frame field, which is empty unless a
// frame egress test sets it.
type fakeFrameProducer struct{ frame Frame }

func (p *fakeFrameProducer) Frame() Frame { return p.frame }

// fakeSession is a minimal Session good enough to exercise Connect,
// Turn, Button, and disconnect notification.
type fakeSession struct {
	id       string
	input    *fakeInputSink
	frames   *fakeFrameProducer
	arbiter  *TurnArbiter
	mu       sync.Mutex
	connects []*User
	leaves   []*User
}

func newFakeSession(id string) *fakeSession {
	return &fakeSession{
		id:      id,
		input:   &fakeInputSink{},
		frames:  &fakeFrameProducer{},
		arbiter: NewTurnArbiter(50 * time.Millisecond),
	}
}

func (s *fakeSession) ID() string              { return s.id }
func (s *fakeSession) Input() InputSink        { return s.input }
func (s *fakeSession) Frames() FrameProducer   { return s.frames }
func (s *fakeSession) Arbiter() *TurnArbiter   { return s.arbiter }

func (s *fakeSession) UserConnected(u *User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connects = append(s.connects, u)
}

func (s *fakeSession) UserDisconnected(u *User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leaves = append(s.leaves, u)
}

// fakeHasher implements AdminHasher with a trivial, inspectable scheme:
// Hash(attempt, salt) = attempt + "|" + salt. Good enough to validate
// the dispatcher's admin policy without pulling in a real digest.
type fakeHasher struct{}

func (fakeHasher) Hash(attempt, salt string) string { return attempt + "|" + salt }

// fakeConfig is a fixed ConfigProvider for tests.
type fakeConfig struct {
	cfg ServerConfig
}

func (f fakeConfig) Snapshot() ServerConfig { return f.cfg }

func defaultTestConfig() fakeConfig {
	return fakeConfig{cfg: ServerConfig{
		MaxMessageSize:    8,
		MinUsernameLength: 3,
		MaxUsernameLength: 16,
		JPEGQuality:       75,
		Salt:              "s",
		AdminHash:         "pw|s",
	}}
}

// newTestDispatcher builds a Dispatcher with fakes wired in, plus the
// registries and queue it needs. Commands are dispatched synchronously
// by calling d.handle directly in most tests rather than running Run()
// on a goroutine, to keep assertions deterministic.
func newTestDispatcher() (*Dispatcher, *UserRegistry, *SessionRegistry) {
	users := NewUserRegistry()
	sessions := NewSessionRegistry()
	queue := NewCommandQueue()
	broadcaster := NewBroadcaster(users, nil)
	cfg := defaultTestConfig()

	d := NewDispatcher(users, sessions, queue, broadcaster, cfg, fakeHasher{}, nil)
	return d, users, sessions
}
