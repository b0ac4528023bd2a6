package core

import (
	"sync"

	"github.com/rs/zerolog"
)

// Broadcaster fans protocol payloads out to users. Per spec §4.7 / §9 it
// attempts the user-registry lock on every call but never blocks behind
// a writer: a failed try-lock falls back to the last snapshot that did
// succeed, rather than stalling the caller (typically a session thread
// mid frame-egress). The fallback snapshot is cached here, not read
// from the registry without a lock, so this stays race-free even though
// it can observe a just-disconnected user for one extra broadcast.
type Broadcaster struct {
	registry *UserRegistry
	log      *zerolog.Logger

	cacheMu sync.Mutex
	cached  []*User
}

// NewBroadcaster builds a Broadcaster over registry.
func NewBroadcaster(registry *UserRegistry, log *zerolog.Logger) *Broadcaster {
	return &Broadcaster{registry: registry, log: log}
}

func (b *Broadcaster) snapshot() []*User {
	if snap, ok := b.registry.TryRLockSnapshot(); ok {
		b.cacheMu.Lock()
		b.cached = snap
		b.cacheMu.Unlock()
		return snap
	}

	b.cacheMu.Lock()
	defer b.cacheMu.Unlock()
	if b.log != nil {
		b.log.Warn().Msg("broadcast proceeding on stale user snapshot; registry lock contended")
	}
	return b.cached
}

// All sends payload to every user with a non-empty username and a live
// handle.
func (b *Broadcaster) All(payload []byte) {
	for _, u := range b.snapshot() {
		if u.Username() == "" || u.Handle == nil || u.Handle.Expired() {
			continue
		}
		b.send(u, payload)
	}
}

// Session sends payload to every member of the given session id.
func (b *Broadcaster) Session(emuID string, payload []byte) {
	for _, u := range b.snapshot() {
		if u.ConnectedEmu() != emuID || u.Username() == "" || u.Handle == nil || u.Handle.Expired() {
			continue
		}
		b.send(u, payload)
	}
}

// SessionBinary sends a raw binary frame to every member of emuID,
// regardless of whether they have picked a username yet (frame egress
// is not gated on naming).
func (b *Broadcaster) SessionBinary(emuID string, payload []byte) {
	for _, u := range b.snapshot() {
		if u.ConnectedEmu() != emuID || u.Handle == nil || u.Handle.Expired() {
			continue
		}
		if err := u.Handle.SendBinary(payload); err != nil && b.log != nil {
			b.log.Debug().Err(err).Str("uuid", u.UUID).Msg("dropped binary frame send")
		}
	}
}

// One sends payload to a single handle. Errors are dropped; the
// liveness pinger is responsible for reaping unreachable peers.
func (b *Broadcaster) One(handle ConnectionHandle, payload []byte) {
	if handle == nil || handle.Expired() {
		return
	}
	if err := handle.Send(payload); err != nil && b.log != nil {
		b.log.Debug().Err(err).Msg("dropped unicast send")
	}
}

func (b *Broadcaster) send(u *User, payload []byte) {
	if err := u.Handle.Send(payload); err != nil && b.log != nil {
		b.log.Debug().Err(err).Str("uuid", u.UUID).Msg("dropped broadcast send")
	}
}
