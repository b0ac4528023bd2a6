package core

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// User is a connected client's mutable state as seen by the core. It is
// owned by the UserRegistry keyed by ConnectionHandle; a *User escapes
// the registry only as a non-owning reference (carried by the Handle it
// was looked up from) that callers must re-resolve through the registry
// before trusting, since a concurrent disconnect can invalidate it at
// any time.
type User struct {
	UUID    string
	Addr    string
	Handle  ConnectionHandle
	mu      sync.RWMutex
	username      string
	connectedEmu  string
	hasAdmin      bool
	adminAttempts int
	hasTurn       bool
	requestedTurn bool
	lastPongAt    time.Time
}

func newUser(handle ConnectionHandle, addr string) *User {
	return &User{
		UUID:       uuid.NewString(),
		Addr:       addr,
		Handle:     handle,
		lastPongAt: time.Now(),
	}
}

func (u *User) Username() string {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.username
}

func (u *User) setUsername(name string) {
	u.mu.Lock()
	u.username = name
	u.mu.Unlock()
}

func (u *User) ConnectedEmu() string {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.connectedEmu
}

func (u *User) setConnectedEmu(id string) {
	u.mu.Lock()
	u.connectedEmu = id
	u.mu.Unlock()
}

func (u *User) HasAdmin() bool {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.hasAdmin
}

func (u *User) setHasAdmin(v bool) {
	u.mu.Lock()
	u.hasAdmin = v
	u.mu.Unlock()
}

func (u *User) AdminAttempts() int {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.adminAttempts
}

func (u *User) incAdminAttempts() int {
	u.mu.Lock()
	u.adminAttempts++
	n := u.adminAttempts
	u.mu.Unlock()
	return n
}

func (u *User) HasTurn() bool {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.hasTurn
}

func (u *User) setHasTurn(v bool) {
	u.mu.Lock()
	u.hasTurn = v
	u.mu.Unlock()
}

func (u *User) RequestedTurn() bool {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.requestedTurn
}

func (u *User) setRequestedTurn(v bool) {
	u.mu.Lock()
	u.requestedTurn = v
	u.mu.Unlock()
}

func (u *User) LastPongAt() time.Time {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.lastPongAt
}

func (u *User) touchPong() {
	u.mu.Lock()
	u.lastPongAt = time.Now()
	u.mu.Unlock()
}
