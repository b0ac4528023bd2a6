// Package config loads the weakly-typed configuration tree viper reads
// from YAML/env and exposes it as a strongly-typed snapshot, refreshed
// under a lock so the dispatcher can read it from any goroutine (spec
// §5 "Shared configuration"). Per spec §7, any field missing or of the
// wrong type falls back to a default rather than failing startup: a
// missing, zero or out-of-range field takes its own default, while a
// value viper cannot decode at all makes the whole snapshot fall back
// to defaults, with a warning logged.
package config

import (
	"time"

	"github.com/vovakirdan/letsplay-server/internal/core"
)

// BootstrapSession describes one emulator session to spawn before the
// server starts accepting connections (SUPPLEMENTED FEATURES: startup
// bootstrap session).
type BootstrapSession struct {
	ID       string `mapstructure:"id"`
	CorePath string `mapstructure:"corePath"`
	RomPath  string `mapstructure:"romPath"`
}

// Config is the full strongly-typed snapshot: spec.md's ServerConfig
// fields plus the ambient fields this repository's startup needs.
type Config struct {
	ServerConfig core.ServerConfig

	ListenAddr   string
	LogLevel     string
	SQLitePath   string
	// PingTimeout is the liveness sweep's silence timeout; the sweep's
	// own interval is core.SweepInterval, a hardcoded invariant rather
	// than a configuration key (spec §4.8 vs §4.6).
	PingTimeout  time.Duration
	TurnDuration time.Duration
	Bootstrap    []BootstrapSession
}

// rawConfig mirrors the YAML/env tree viper decodes into before the
// defaults pass. No field is a pointer: a zero value is treated as
// "absent", so a key explicitly set to its type's zero value also falls
// back to the default.
type rawConfig struct {
	ServerConfig struct {
		MaxMessageSize    uint64 `mapstructure:"maxMessageSize"`
		MinUsernameLength uint64 `mapstructure:"minUsernameLength"`
		MaxUsernameLength uint64 `mapstructure:"maxUsernameLength"`
		JPEGQuality       int    `mapstructure:"jpegQuality"`
		Salt              string `mapstructure:"salt"`
		AdminHash         string `mapstructure:"adminHash"`
		Bootstrap         []BootstrapSession `mapstructure:"bootstrap"`
	} `mapstructure:"serverConfig"`

	ListenAddr   string `mapstructure:"listenAddr"`
	LogLevel     string `mapstructure:"logLevel"`
	SQLitePath   string `mapstructure:"sqlitePath"`
	PingTimeout  string `mapstructure:"pingTimeout"`
	TurnDuration string `mapstructure:"turnDuration"`
}

// defaults is consulted field-by-field whenever the raw tree leaves a
// key unset (or zero, or out of range), and used whole when viper could
// not decode the tree into rawConfig.
var defaults = Config{
	ServerConfig: core.ServerConfig{
		MaxMessageSize:    4096,
		MinUsernameLength: 3,
		MaxUsernameLength: 20,
		JPEGQuality:       75,
		Salt:              "",
		AdminHash:         "",
	},
	ListenAddr:   ":8080",
	LogLevel:     "info",
	SQLitePath:   "./wirechat.db",
	PingTimeout:  90 * time.Second,
	TurnDuration: 30 * time.Second,
}
