package core

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/letsplay-server/internal/protocol"
)

// Server wires the registries, the command queue, and the dispatcher
// together and exposes the three ingress entry points the transport
// calls: OnConnect, OnMessage, OnDisconnect. It also owns the one-shot
// global shutdown sequence (spec §5).
type Server struct {
	Users       *UserRegistry
	Sessions    *SessionRegistry
	Queue       *CommandQueue
	Dispatcher  *Dispatcher
	Broadcaster *Broadcaster
	Log         *zerolog.Logger

	// StopAccepting is called once, from the shutdown sequence, to stop
	// the transport from accepting new connections. Wired by whatever
	// owns the listener.
	StopAccepting func()

	shuttingDown atomic.Bool
	shutdownOnce sync.Once
}

// NewServer builds a Server. Call Dispatcher.RequestShutdown = server.Shutdown
// (or let NewServer do it) before starting Run.
func NewServer(users *UserRegistry, sessions *SessionRegistry, queue *CommandQueue, dispatcher *Dispatcher, broadcaster *Broadcaster, log *zerolog.Logger) *Server {
	s := &Server{
		Users:       users,
		Sessions:    sessions,
		Queue:       queue,
		Dispatcher:  dispatcher,
		Broadcaster: broadcaster,
		Log:         log,
	}
	dispatcher.RequestShutdown = s.Shutdown
	return s
}

// OnConnect registers a new connection and returns its User.
func (s *Server) OnConnect(handle ConnectionHandle, addr string) *User {
	u := s.Users.OnConnect(handle, addr)
	if s.Log != nil {
		s.Log.Info().Str("addr", addr).Str("uuid", u.UUID).Msg("connected")
	}
	return u
}

// OnMessage decodes a raw text payload and enqueues the resulting
// Command. An empty or malformed payload is a documented no-op.
func (s *Server) OnMessage(handle ConnectionHandle, payload []byte) {
	fields := protocol.Decode(payload)
	if len(fields) == 0 {
		return
	}

	kind := KindFromWire(fields[0])
	if kind == KindUnknown {
		return
	}

	var emuID string
	if u := s.Users.Lookup(handle); u != nil {
		emuID = u.ConnectedEmu()
	}

	cmd := &Command{
		Kind:   kind,
		Params: fields[1:],
		Handle: handle,
		EmuID:  emuID,
	}
	s.Queue.Push(cmd)
}

// OnDisconnect tears down the registry entry for handle, notifying the
// departed user's session and broadcasting a leave event if they had
// joined one.
func (s *Server) OnDisconnect(handle ConnectionHandle) {
	s.Users.OnDisconnect(handle, func(sessionID string, u *User) {
		if session := s.Sessions.Lookup(sessionID); session != nil {
			session.Arbiter().Disconnect(u)
			session.UserDisconnected(u)
		}
		s.Broadcaster.Session(sessionID, protocol.Encode("leave", u.Username()))

		if s.Log != nil {
			s.Log.Info().Str("uuid", u.UUID).Str("username", u.Username()).Msg("left")
		}
	})
}

// Shutdown runs the global shutdown sequence at most once: stop
// accepting new connections, drain the command queue except for a
// wake-up sentinel, wait for the dispatcher to observe it, then close
// every live connection with status "Closing".
func (s *Server) Shutdown() {
	s.shutdownOnce.Do(func() {
		s.shuttingDown.Store(true)

		if s.Log != nil {
			s.Log.Info().Msg("shutdown: stopping accept loop")
		}
		if s.StopAccepting != nil {
			s.StopAccepting()
		}

		if s.Log != nil {
			s.Log.Info().Msg("shutdown: draining command queue")
		}
		s.Queue.DrainAndSeal(&Command{Sentinel: true})

		<-s.Dispatcher.Done()

		if s.Log != nil {
			s.Log.Info().Msg("shutdown: closing connections")
		}
		for _, u := range s.Users.Snapshot() {
			if u.Handle != nil && !u.Handle.Expired() {
				_ = u.Handle.Close("Closing")
			}
		}
	})
}

// ShuttingDown reports whether the shutdown sequence has started.
func (s *Server) ShuttingDown() bool {
	return s.shuttingDown.Load()
}
