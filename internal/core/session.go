package core

import "sync"

// Session is an emulator session: a long-running workload external to
// the core that exposes an input sink and a frame producer. The core
// only ever talks to it through this interface; core loading, ROM
// execution, and input-device simulation are out of scope (spec §1).
type Session interface {
	ID() string
	Input() InputSink
	Frames() FrameProducer
	Arbiter() *TurnArbiter

	// UserConnected/UserDisconnected notify the session runtime that a
	// viewer joined or left, mirroring the emulator callbacks in spec §3.
	UserConnected(u *User)
	UserDisconnected(u *User)
}

// SessionRegistry tracks active emulator sessions. Mutations are
// serialized by an exclusive lock; sessions are added by the dispatcher
// in response to AddEmu (or a bootstrap step at startup) and in this
// core are removed only on global shutdown.
type SessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]Session
}

// NewSessionRegistry constructs an empty registry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: make(map[string]Session)}
}

// Add registers a session under id. Returns false if the id is already
// taken.
func (r *SessionRegistry) Add(id string, s Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[id]; exists {
		return false
	}
	r.sessions[id] = s
	return true
}

// Lookup returns the session registered under id, or nil.
func (r *SessionRegistry) Lookup(id string) Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[id]
}

// Iterate calls fn for every registered session. fn must not call back
// into the registry.
func (r *SessionRegistry) Iterate(fn func(Session)) {
	r.mu.Lock()
	snapshot := make([]Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		snapshot = append(snapshot, s)
	}
	r.mu.Unlock()

	for _, s := range snapshot {
		fn(s)
	}
}

// Count returns the number of registered sessions.
func (r *SessionRegistry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
