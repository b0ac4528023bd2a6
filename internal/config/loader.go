package config

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/vovakirdan/letsplay-server/internal/core"
)

// Provider owns the weakly-typed viper tree and the strongly-typed
// snapshot derived from it. It implements core.ConfigProvider.
type Provider struct {
	v   *viper.Viper
	log *zerolog.Logger

	mu       sync.RWMutex
	snapshot Config
}

// Load reads configuration from path (YAML) and environment variables
// prefixed WIRECHAT_, with the environment taking precedence over the
// file and defaults filling whatever neither sets, and returns a
// Provider that watches path for changes when the file was read. An
// empty or missing path is not an error: defaults and environment
// variables still apply. A `~` prefix is expanded against $HOME,
// falling back to "." if unset.
func Load(path string, log *zerolog.Logger) (*Provider, error) {
	v := viper.New()

	v.SetEnvPrefix("wirechat")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	explicitPath := path != ""
	if explicitPath {
		path = expandHome(path)
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("wirechat")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	// An explicit path that doesn't exist yet is not an error: fall
	// back to defaults and environment variables rather than surface a
	// bare *fs.PathError, which is how viper reports a missing file
	// given via SetConfigFile (unlike the search-based
	// ConfigFileNotFoundError it returns when no path is given).
	skipRead := explicitPath
	if explicitPath {
		if _, err := os.Stat(path); err == nil {
			skipRead = false
		}
	}

	fileFound := false
	if !skipRead {
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, err
			}
			if log != nil {
				log.Warn().Err(err).Msg("config file not found, using defaults and environment")
			}
		} else {
			fileFound = true
		}
	} else if log != nil {
		log.Warn().Str("path", path).Msg("config file not found, using defaults and environment")
	}

	p := &Provider{v: v, log: log}
	p.refresh()

	if fileFound {
		v.OnConfigChange(func(_ fsnotify.Event) { p.refresh() })
		v.WatchConfig()
	}

	return p, nil
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "."
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// refresh re-decodes the viper tree into a Config, falling back to
// defaults field-by-field on a missing, zero or out-of-range value, and
// to all defaults when the tree cannot be decoded, and swaps the
// snapshot in under the write lock.
func (p *Provider) refresh() {
	var raw rawConfig
	next := defaults

	if err := p.v.Unmarshal(&raw); err != nil {
		if p.log != nil {
			p.log.Warn().Err(err).Msg("config: failed to decode tree, falling back to all defaults")
		}
		p.swap(next)
		return
	}

	if raw.ServerConfig.MaxMessageSize != 0 {
		next.ServerConfig.MaxMessageSize = raw.ServerConfig.MaxMessageSize
	}
	if raw.ServerConfig.MinUsernameLength != 0 {
		next.ServerConfig.MinUsernameLength = raw.ServerConfig.MinUsernameLength
	}
	if raw.ServerConfig.MaxUsernameLength != 0 {
		next.ServerConfig.MaxUsernameLength = raw.ServerConfig.MaxUsernameLength
	}
	if raw.ServerConfig.JPEGQuality >= 1 && raw.ServerConfig.JPEGQuality <= 100 {
		next.ServerConfig.JPEGQuality = raw.ServerConfig.JPEGQuality
	} else if raw.ServerConfig.JPEGQuality != 0 && p.log != nil {
		p.log.Warn().Int("value", raw.ServerConfig.JPEGQuality).Msg("config: jpegQuality out of [1,100], using default")
	}
	if raw.ServerConfig.Salt != "" {
		next.ServerConfig.Salt = raw.ServerConfig.Salt
	}
	if raw.ServerConfig.AdminHash != "" {
		next.ServerConfig.AdminHash = raw.ServerConfig.AdminHash
	}
	next.Bootstrap = raw.ServerConfig.Bootstrap

	if raw.ListenAddr != "" {
		next.ListenAddr = raw.ListenAddr
	}
	if raw.LogLevel != "" {
		next.LogLevel = raw.LogLevel
	}
	if raw.SQLitePath != "" {
		next.SQLitePath = raw.SQLitePath
	}
	next.PingTimeout = p.parseDuration(raw.PingTimeout, defaults.PingTimeout, "pingTimeout")
	next.TurnDuration = p.parseDuration(raw.TurnDuration, defaults.TurnDuration, "turnDuration")

	p.swap(next)
}

func (p *Provider) parseDuration(raw string, fallback time.Duration, field string) time.Duration {
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		if p.log != nil {
			p.log.Warn().Err(err).Str("field", field).Str("value", raw).Msg("config: invalid duration, using default")
		}
		return fallback
	}
	return d
}

func (p *Provider) swap(c Config) {
	p.mu.Lock()
	p.snapshot = c
	p.mu.Unlock()
}

// Full returns the complete current snapshot, including the ambient
// fields beyond core.ServerConfig.
func (p *Provider) Full() Config {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snapshot
}

// Snapshot implements core.ConfigProvider.
func (p *Provider) Snapshot() core.ServerConfig {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snapshot.ServerConfig
}
