package core

// ServerConfig is the strongly-typed snapshot of the weakly-typed
// configuration tree the dispatcher consults on every command that
// needs it (spec §5, "Shared configuration" design note). It is re-read
// under a reader lock by whatever backs ConfigProvider; a missing or
// mistyped field there already fell back to a default before the
// dispatcher ever sees it.
type ServerConfig struct {
	MaxMessageSize    uint64
	MinUsernameLength uint64
	MaxUsernameLength uint64
	JPEGQuality       int
	Salt              string
	AdminHash         string
}

// ConfigProvider supplies the current configuration snapshot.
type ConfigProvider interface {
	Snapshot() ServerConfig
}

// AdminHasher computes the keyed digest compared against the configured
// admin hash. The hashing primitive itself is an out-of-scope external
// collaborator (spec §1); this interface is its only seam into the
// dispatcher.
type AdminHasher interface {
	Hash(attempt, salt string) string
}

// SessionSpawner starts a new emulator session thread, parameterized by
// core/ROM paths, and returns the Session the registry should track.
// The emulator runtime itself is out of scope (spec §1); path
// suitability checks are deferred to it.
type SessionSpawner interface {
	Spawn(id, corePath, romPath string) (Session, error)
}

// AuditSink is an optional, best-effort recorder for chat and admin
// activity. A nil AuditSink disables auditing entirely; dispatcher
// behavior never depends on it succeeding.
type AuditSink interface {
	LogChat(uuid, username, message string)
	LogAdminAttempt(uuid string, success bool)
}

// GuestNamer produces candidate guest usernames for giveGuest retries.
type GuestNamer interface {
	Next() string
}
