// Package emu is the default, in-process stand-in for the out-of-scope
// emulator runtime spec.md §1 names as an external collaborator: core
// loading, ROM execution, and input-device simulation. It exists so
// AddEmu has a real SessionSpawner to call and so tests and the
// bootstrap feature have something to connect to; a production
// deployment would swap this package for a real emulator core binding
// without touching internal/core.
package emu

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/letsplay-server/internal/core"
	"github.com/vovakirdan/letsplay-server/internal/frame"
)

// Session is a minimal emulator workload: it tracks the current value
// of every joypad-style input device and renders a frame that encodes
// that state as flat color, just enough to exercise frame egress and
// turn arbitration end to end.
type Session struct {
	id       string
	corePath string
	romPath  string

	mu      sync.Mutex
	buttons [16]int16
	sticks  [2][2]int16 // [left,right][x,y] ... simplified to 2 axes per stick

	width, height int

	arbiter *core.TurnArbiter
	log     *zerolog.Logger

	connMu   sync.Mutex
	viewers  int
}

// New builds a Session for the given emu id and paths. Path existence
// is the emulator runtime's concern, not this stand-in's; it only
// requires them to be non-empty.
func New(id, corePath, romPath string, turnDuration time.Duration, log *zerolog.Logger) (*Session, error) {
	if id == "" {
		return nil, fmt.Errorf("emu: id must not be empty")
	}
	if corePath == "" || romPath == "" {
		return nil, fmt.Errorf("emu: core and rom paths must not be empty")
	}

	return &Session{
		id:       id,
		corePath: corePath,
		romPath:  romPath,
		width:    160,
		height:   144,
		arbiter:  core.NewTurnArbiter(turnDuration),
		log:      log,
	}, nil
}

// ID implements core.Session.
func (s *Session) ID() string { return s.id }

// Input implements core.Session by returning the session itself; Session
// satisfies core.InputSink directly.
func (s *Session) Input() core.InputSink { return s }

// Frames implements core.Session by returning the session itself;
// Session satisfies core.FrameProducer directly.
func (s *Session) Frames() core.FrameProducer { return s }

// Arbiter implements core.Session.
func (s *Session) Arbiter() *core.TurnArbiter { return s.arbiter }

// UserConnected implements core.Session.
func (s *Session) UserConnected(u *core.User) {
	s.connMu.Lock()
	s.viewers++
	n := s.viewers
	s.connMu.Unlock()

	if s.log != nil {
		s.log.Debug().Str("emu_id", s.id).Str("uuid", u.UUID).Int("viewers", n).Msg("viewer joined session")
	}
}

// UserDisconnected implements core.Session.
func (s *Session) UserDisconnected(u *core.User) {
	s.connMu.Lock()
	s.viewers--
	n := s.viewers
	s.connMu.Unlock()

	if s.log != nil {
		s.log.Debug().Str("emu_id", s.id).Str("uuid", u.UUID).Int("viewers", n).Msg("viewer left session")
	}
}

// UpdateValue implements core.InputSink. The stand-in just latches the
// most recent value per device; a real core would feed it to the
// running ROM on its next tick.
func (s *Session) UpdateValue(class core.DeviceClass, id int16, value int16) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch class {
	case core.DeviceButton:
		if id >= 0 && int(id) < len(s.buttons) {
			s.buttons[id] = value
		}
	case core.DeviceLeftStick:
		if id >= 0 && id < 2 {
			s.sticks[0][id] = value
		}
	case core.DeviceRightStick:
		if id >= 0 && id < 2 {
			s.sticks[1][id] = value
		}
	}
}

// Frame implements core.FrameProducer. It renders the current input
// state as a flat color so egress/encoding can be exercised without a
// real running core: the red channel tracks button 0, green tracks the
// left stick's x axis, blue tracks the right stick's y axis.
func (s *Session) Frame() core.Frame {
	s.mu.Lock()
	r := byte(s.buttons[0] & 0xff)
	g := byte(s.sticks[0][0] & 0xff)
	b := byte(s.sticks[1][1] & 0xff)
	s.mu.Unlock()

	buf := make([]byte, s.width*s.height*3)
	for i := 0; i < len(buf); i += 3 {
		buf[i], buf[i+1], buf[i+2] = r, g, b
	}
	return core.Frame{Width: s.width, Height: s.height, RGB: buf}
}

// frameInterval is the default tick rate this stand-in's sessions render
// and push frames at, used when Spawner.FrameInterval is unset. A real
// emulator core would drive SendFrame from its own vsync instead of a
// ticker.
const frameInterval = 100 * time.Millisecond

// Spawner implements core.SessionSpawner over New, with a fixed turn
// duration shared by every session it spawns. It also owns the frame
// egress loop for each session it spawns: spec.md §1/§2 describe the
// session producing frames that flow through egress into the broadcast
// engine, and this stand-in's sessions have no other driver of their
// own ticking, so Spawn starts that loop itself.
type Spawner struct {
	TurnDuration  time.Duration
	Broadcaster   *core.Broadcaster
	Config        core.ConfigProvider
	FrameInterval time.Duration
	Log           *zerolog.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewSpawner builds a Spawner. broadcaster and cfg may be nil in tests
// that only care about session construction, not frame egress.
func NewSpawner(turnDuration time.Duration, broadcaster *core.Broadcaster, cfg core.ConfigProvider, log *zerolog.Logger) *Spawner {
	return &Spawner{
		TurnDuration: turnDuration,
		Broadcaster:  broadcaster,
		Config:       cfg,
		Log:          log,
		stopCh:       make(chan struct{}),
	}
}

// Spawn implements core.SessionSpawner. When the Spawner has a
// Broadcaster, it also starts a per-session goroutine that ticks
// SendFrame against a fresh frame.Encoder, so the spawned session
// immediately starts streaming frames to its viewers; without one, no
// frames are sent.
func (sp *Spawner) Spawn(id, corePath, romPath string) (core.Session, error) {
	session, err := New(id, corePath, romPath, sp.TurnDuration, sp.Log)
	if err != nil {
		return nil, err
	}
	if sp.Broadcaster != nil {
		go sp.runEgress(session)
	}
	return session, nil
}

func (sp *Spawner) runEgress(session core.Session) {
	interval := sp.FrameInterval
	if interval <= 0 {
		interval = frameInterval
	}

	egress := core.NewFrameEgress(session.ID(), session, frame.New(), sp.Broadcaster, sp.Config, sp.Log)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-sp.stopCh:
			return
		case <-ticker.C:
			egress.SendFrame()
		}
	}
}

// Stop halts every session's frame egress loop. It is idempotent and
// intended to be called once, during server shutdown.
func (sp *Spawner) Stop() {
	sp.stopOnce.Do(func() {
		if sp.stopCh != nil {
			close(sp.stopCh)
		}
	})
}
