package core

import (
	"strconv"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/letsplay-server/internal/protocol"
)

// Dispatcher is the single consumer of the command queue. It validates
// and executes each command against the registries, enforcing every
// policy in spec §4.5. Its loop is the natural serialization point for
// per-session invariants: one command runs to completion before the
// next begins.
type Dispatcher struct {
	Users       *UserRegistry
	Sessions    *SessionRegistry
	Queue       *CommandQueue
	Broadcaster *Broadcaster
	Config      ConfigProvider
	Hasher      AdminHasher
	Spawner     SessionSpawner
	Audit       AuditSink
	Guests      GuestNamer
	Log         *zerolog.Logger

	// RequestShutdown is invoked (at most once, per Server's own latch)
	// the first time an admin issues a Shutdown command. It is wired by
	// Server after construction; nil is treated as "shutdown disabled".
	RequestShutdown func()

	done chan struct{}
}

// NewDispatcher builds a Dispatcher over the given collaborators.
func NewDispatcher(users *UserRegistry, sessions *SessionRegistry, queue *CommandQueue, broadcaster *Broadcaster, cfg ConfigProvider, hasher AdminHasher, log *zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		Users:       users,
		Sessions:    sessions,
		Queue:       queue,
		Broadcaster: broadcaster,
		Config:      cfg,
		Hasher:      hasher,
		Log:         log,
		Guests:      newGuestNamer(),
		done:        make(chan struct{}),
	}
}

// Done returns a channel closed once Run returns (the sentinel Shutdown
// command was observed).
func (d *Dispatcher) Done() <-chan struct{} { return d.done }

// Run consumes commands until it sees the sentinel Shutdown pushed by
// CommandQueue.DrainAndSeal.
func (d *Dispatcher) Run() {
	defer close(d.done)

	for {
		cmd := d.Queue.Pop()
		if cmd.Sentinel {
			return
		}
		d.handle(cmd)
	}
}

func (d *Dispatcher) handle(cmd *Command) {
	switch cmd.Kind {
	case KindList:
		d.handleList(cmd)
	case KindChat:
		d.handleChat(cmd)
	case KindUsername:
		d.handleUsername(cmd)
	case KindButton:
		d.handleButton(cmd)
	case KindConnect:
		d.handleConnect(cmd)
	case KindTurn:
		d.handleTurn(cmd)
	case KindAddEmu:
		d.handleAddEmu(cmd)
	case KindAdmin:
		d.handleAdmin(cmd)
	case KindShutdown:
		d.handleShutdown(cmd)
	case KindPong:
		d.handlePong(cmd)
	case KindRemoveEmu, KindStopEmu, KindConfig, KindUnknown:
		// Reserved or unrecognized; silent no-op per spec §4.5.
	}
}

func (d *Dispatcher) lookup(cmd *Command) *User {
	return d.Users.Lookup(cmd.Handle)
}

// drop logs a command the dispatcher rejected without a wire reply.
// Nothing is ever echoed back to the client for these (spec §7); this
// is purely an operator-facing signal for why a command went nowhere.
func (d *Dispatcher) drop(kind string, err *CoreError) {
	if d.Log == nil || err == nil {
		return
	}
	d.Log.Debug().Str("command", kind).Str("code", err.Code).Msg(err.Message)
}

func (d *Dispatcher) handleList(cmd *Command) {
	if len(cmd.Params) != 0 {
		d.drop("list", coreError(ErrCodeBadArity, "list takes no parameters"))
		return
	}
	caller := d.lookup(cmd)
	if caller == nil {
		return
	}

	fields := []string{"list"}
	for _, u := range d.Users.Snapshot() {
		if u == caller {
			continue
		}
		if u.ConnectedEmu() != caller.ConnectedEmu() || u.Handle == nil || u.Handle.Expired() {
			continue
		}
		fields = append(fields, u.Username())
	}

	d.Broadcaster.One(cmd.Handle, protocol.EncodeFields(fields))
}

func (d *Dispatcher) handleChat(cmd *Command) {
	if len(cmd.Params) != 1 {
		d.drop("chat", coreError(ErrCodeBadArity, "chat takes exactly one parameter"))
		return
	}
	caller := d.lookup(cmd)
	if caller == nil || caller.Username() == "" {
		d.drop("chat", coreError(ErrCodeNoUsername, "chat from a user without a username"))
		return
	}

	message := cmd.Params[0]
	if !protocol.IsPrintableASCII(message) {
		return
	}

	cfg := d.Config.Snapshot()
	if uint64(EscapedSize(message)) > cfg.MaxMessageSize {
		return
	}

	d.Broadcaster.All(protocol.Encode("chat", caller.Username(), message))
	if d.Audit != nil {
		d.Audit.LogChat(caller.UUID, caller.Username(), message)
	}
}

func (d *Dispatcher) handleUsername(cmd *Command) {
	if len(cmd.Params) != 1 {
		return
	}
	caller := d.lookup(cmd)
	if caller == nil {
		return
	}

	newName := cmd.Params[0]
	oldName := caller.Username()
	justJoined := oldName == ""

	reject := func() {
		if justJoined {
			d.giveGuest(cmd.Handle, caller)
			return
		}
		d.Broadcaster.One(cmd.Handle, protocol.Encode("username", oldName, oldName))
	}

	if newName == oldName && !justJoined {
		reject()
		return
	}

	cfg := d.Config.Snapshot()
	if uint64(len(newName)) < cfg.MinUsernameLength || uint64(len(newName)) > cfg.MaxUsernameLength {
		reject()
		return
	}

	if !validUsernameContent(newName) {
		reject()
		return
	}

	if d.Users.UsernameTaken(newName, caller.UUID) {
		reject()
		return
	}

	caller.setUsername(newName)
	d.Broadcaster.One(cmd.Handle, protocol.Encode("username", oldName, newName))

	emuID := caller.ConnectedEmu()
	if emuID == "" {
		return
	}
	if justJoined {
		d.Broadcaster.Session(emuID, protocol.Encode("join", newName))
	} else {
		d.Broadcaster.Session(emuID, protocol.Encode("rename", oldName, newName))
	}
}

// validUsernameContent enforces spec §4.5 clause 3: no leading/trailing
// space, no non-printable-ASCII byte, no internal double space.
func validUsernameContent(name string) bool {
	if name == "" {
		return false
	}
	if name[0] == ' ' || name[len(name)-1] == ' ' {
		return false
	}
	if !protocol.IsPrintableASCII(name) {
		return false
	}
	for i := 0; i+1 < len(name); i++ {
		if name[i] == ' ' && name[i+1] == ' ' {
			return false
		}
	}
	return true
}

func (d *Dispatcher) giveGuest(handle ConnectionHandle, u *User) {
	old := u.Username()
	var candidate string
	for {
		candidate = d.Guests.Next()
		if !d.Users.UsernameTaken(candidate, u.UUID) {
			break
		}
	}
	u.setUsername(candidate)
	d.Broadcaster.One(handle, protocol.Encode("username", old, candidate))
}

func (d *Dispatcher) handleConnect(cmd *Command) {
	caller := d.lookup(cmd)
	if caller == nil {
		return
	}

	fail := func() {
		d.Broadcaster.One(cmd.Handle, protocol.Encode("connect", false))
	}

	if len(cmd.Params) != 1 {
		d.drop("connect", coreError(ErrCodeBadArity, "connect takes exactly one parameter"))
		fail()
		return
	}
	if caller.Username() == "" {
		d.drop("connect", coreError(ErrCodeNoUsername, "connect from a user without a username"))
		fail()
		return
	}

	emuID := cmd.Params[0]
	session := d.Sessions.Lookup(emuID)
	if session == nil {
		d.drop("connect", coreError(ErrCodeSessionMissing, "connect to an unknown emu id"))
		fail()
		return
	}

	if caller.ConnectedEmu() != "" {
		fail()
		return
	}

	d.Broadcaster.Session(emuID, protocol.Encode("join", caller.Username()))
	caller.setConnectedEmu(emuID)
	session.UserConnected(caller)

	d.Broadcaster.One(cmd.Handle, protocol.Encode("connect", true))

	cfg := d.Config.Snapshot()
	d.Broadcaster.One(cmd.Handle, protocol.Encode("emuinfo",
		cfg.MinUsernameLength, cfg.MaxUsernameLength, cfg.MaxMessageSize, emuID))
}

func (d *Dispatcher) handleTurn(cmd *Command) {
	if len(cmd.Params) != 0 {
		return
	}
	caller := d.lookup(cmd)
	if caller == nil {
		return
	}
	if caller.ConnectedEmu() == "" || caller.RequestedTurn() {
		return
	}

	session := d.Sessions.Lookup(caller.ConnectedEmu())
	if session == nil {
		return
	}

	caller.setRequestedTurn(true)
	session.Arbiter().Request(caller)
}

func (d *Dispatcher) handleButton(cmd *Command) {
	if len(cmd.Params) != 3 {
		d.drop("button", coreError(ErrCodeBadArity, "button takes exactly three parameters"))
		return
	}
	caller := d.lookup(cmd)
	if caller == nil || !caller.HasTurn() {
		d.drop("button", coreError(ErrCodeTurnNotHeld, "button press without holding the turn"))
		return
	}

	kindStr, idStr, valueStr := cmd.Params[0], cmd.Params[1], cmd.Params[2]

	id, err := strconv.ParseInt(idStr, 10, 16)
	if err != nil || id < 0 {
		return
	}
	value, err := strconv.ParseInt(valueStr, 10, 16)
	if err != nil {
		return
	}

	var class DeviceClass
	switch kindStr {
	case "button":
		class = DeviceButton
	case "leftStick":
		class = DeviceLeftStick
	case "rightStick":
		class = DeviceRightStick
	default:
		return
	}
	if int16(id) > maxDeviceID(class) {
		return
	}

	if cmd.EmuID == "" {
		return
	}
	session := d.Sessions.Lookup(cmd.EmuID)
	if session == nil {
		return
	}
	session.Input().UpdateValue(class, int16(id), int16(value))
}

func (d *Dispatcher) handleAddEmu(cmd *Command) {
	if len(cmd.Params) != 3 {
		d.drop("add", coreError(ErrCodeBadArity, "add takes exactly three parameters"))
		return
	}
	caller := d.lookup(cmd)
	if caller == nil || !caller.HasAdmin() {
		d.drop("add", coreError(ErrCodeAdminRequired, "add requires admin capability"))
		return
	}
	d.spawnSession(cmd.Params[0], cmd.Params[1], cmd.Params[2])
}

// spawnSession asks Spawner for a session and registers it, logging
// (never panicking) on either failure. Shared by the client-issued
// AddEmu command and BootstrapSession.
func (d *Dispatcher) spawnSession(id, corePath, romPath string) {
	if d.Spawner == nil {
		return
	}

	session, err := d.Spawner.Spawn(id, corePath, romPath)
	if err != nil {
		if d.Log != nil {
			d.Log.Warn().Err(err).Str("emu_id", id).Msg("failed to spawn emulator session")
		}
		return
	}
	if !d.Sessions.Add(id, session) && d.Log != nil {
		d.Log.Warn().Str("emu_id", id).Msg("emulator id already registered")
	}
}

// BootstrapSession spawns a session the same way a client-issued AddEmu
// would, without requiring an admin command. app.New calls it once per
// configured bootstrap entry, before the dispatcher loop and the
// transport start, mirroring the original's Run() seeding a default session
// (see SPEC_FULL's supplemented startup bootstrap feature).
func (d *Dispatcher) BootstrapSession(id, corePath, romPath string) {
	d.spawnSession(id, corePath, romPath)
}

func (d *Dispatcher) handleAdmin(cmd *Command) {
	if len(cmd.Params) != 1 {
		d.drop("admin", coreError(ErrCodeBadArity, "admin takes exactly one parameter"))
		return
	}
	caller := d.lookup(cmd)
	if caller == nil {
		return
	}
	if caller.AdminAttempts() >= 3 {
		d.drop("admin", coreError(ErrCodeLockedOut, "admin attempts exhausted"))
		return
	}

	cfg := d.Config.Snapshot()
	hashed := d.Hasher.Hash(cmd.Params[0], cfg.Salt)

	success := cfg.AdminHash != "" && hashed == cfg.AdminHash
	if success {
		caller.setHasAdmin(true)
	} else {
		caller.incAdminAttempts()
	}

	if d.Audit != nil {
		d.Audit.LogAdminAttempt(caller.UUID, success)
	}

	d.Broadcaster.One(cmd.Handle, protocol.Encode("admin", caller.HasAdmin()))
}

func (d *Dispatcher) handleShutdown(cmd *Command) {
	caller := d.lookup(cmd)
	if caller == nil || !caller.HasAdmin() {
		d.drop("shutdown", coreError(ErrCodeAdminRequired, "shutdown requires admin capability"))
		return
	}
	if d.RequestShutdown != nil {
		// Run asynchronously: the shutdown sequence waits for this very
		// dispatcher loop to observe the sentinel it pushes, so it must
		// not block the goroutine currently executing this command.
		go d.RequestShutdown()
	}
}

func (d *Dispatcher) handlePong(cmd *Command) {
	if caller := d.lookup(cmd); caller != nil {
		caller.touchPong()
	}
}
