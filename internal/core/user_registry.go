package core

import "sync"

// UserRegistry tracks every live connection, its identity, and its
// session membership. All mutating operations take an exclusive lock;
// read-only lookups may proceed concurrently with each other but not
// with a writer.
type UserRegistry struct {
	mu    sync.RWMutex
	users map[ConnectionHandle]*User
}

// NewUserRegistry constructs an empty registry.
func NewUserRegistry() *UserRegistry {
	return &UserRegistry{users: make(map[ConnectionHandle]*User)}
}

// OnConnect creates a User for a freshly accepted connection and inserts
// it under handle. The returned User starts with an empty username.
func (r *UserRegistry) OnConnect(handle ConnectionHandle, addr string) *User {
	u := newUser(handle, addr)

	r.mu.Lock()
	r.users[handle] = u
	r.mu.Unlock()

	return u
}

// DisconnectHook is called by OnDisconnect when the departing user was a
// member of a session, before the registry entry is erased.
type DisconnectHook func(sessionID string, u *User)

// OnDisconnect erases the registry entry for handle. If the user had
// joined a session, hook is invoked first with the session id so the
// caller can notify the session and broadcast a leave event.
func (r *UserRegistry) OnDisconnect(handle ConnectionHandle, hook DisconnectHook) {
	r.mu.RLock()
	u, ok := r.users[handle]
	r.mu.RUnlock()

	if !ok {
		return
	}

	if emu := u.ConnectedEmu(); emu != "" && hook != nil {
		hook(emu, u)
	}

	r.mu.Lock()
	delete(r.users, handle)
	r.mu.Unlock()
}

// Lookup returns the User registered under handle, or nil if the
// connection is unknown (already disconnected, or never registered).
func (r *UserRegistry) Lookup(handle ConnectionHandle) *User {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.users[handle]
}

// UsernameTaken reports whether any other live, fully-named user holds
// name. Comparison is case-sensitive per spec.
func (r *UserRegistry) UsernameTaken(name string, excludingUUID string) bool {
	if name == "" {
		return false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users {
		if u.UUID == excludingUUID {
			continue
		}
		if u.Username() == name {
			return true
		}
	}
	return false
}

// Snapshot returns a point-in-time copy of the live user list, suitable
// for broadcast iteration without holding the registry lock for the
// duration of the fan-out.
func (r *UserRegistry) Snapshot() []*User {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, u)
	}
	return out
}

// TryRLockSnapshot behaves like Snapshot but only under a non-blocking
// read-lock attempt; ok is false if the lock could not be acquired
// immediately, in which case callers fall back to a best-effort,
// possibly-stale view rather than blocking the broadcaster behind a
// writer (see Broadcaster).
func (r *UserRegistry) TryRLockSnapshot() (snapshot []*User, ok bool) {
	if !r.mu.TryRLock() {
		return nil, false
	}
	defer r.mu.RUnlock()

	out := make([]*User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, u)
	}
	return out, true
}

// Count returns the number of live connections.
func (r *UserRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}
