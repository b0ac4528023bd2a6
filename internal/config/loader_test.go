package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "wirechat.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaultsWhenFileMissing(t *testing.T) {
	p, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"), nil)
	if err != nil {
		t.Fatalf("Load should not fail on a missing file: %v", err)
	}
	snap := p.Snapshot()
	if snap.MaxMessageSize != defaults.ServerConfig.MaxMessageSize {
		t.Fatalf("expected default MaxMessageSize, got %d", snap.MaxMessageSize)
	}
	if snap.JPEGQuality != defaults.ServerConfig.JPEGQuality {
		t.Fatalf("expected default JPEGQuality, got %d", snap.JPEGQuality)
	}
}

func TestLoadOverridesFromFile(t *testing.T) {
	path := writeTempConfig(t, `
serverConfig:
  maxMessageSize: 256
  minUsernameLength: 4
  maxUsernameLength: 12
  jpegQuality: 90
  salt: "pepper"
  adminHash: "deadbeef"
listenAddr: ":9090"
`)

	p, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	snap := p.Snapshot()
	if snap.MaxMessageSize != 256 {
		t.Fatalf("expected overridden MaxMessageSize 256, got %d", snap.MaxMessageSize)
	}
	if snap.JPEGQuality != 90 {
		t.Fatalf("expected overridden JPEGQuality 90, got %d", snap.JPEGQuality)
	}
	if snap.Salt != "pepper" {
		t.Fatalf("expected overridden Salt, got %q", snap.Salt)
	}
	if p.Full().ListenAddr != ":9090" {
		t.Fatalf("expected overridden ListenAddr, got %q", p.Full().ListenAddr)
	}
}

func TestLoadFallsBackOnOutOfRangeJPEGQuality(t *testing.T) {
	path := writeTempConfig(t, `
serverConfig:
  jpegQuality: 500
`)

	p, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got := p.Snapshot().JPEGQuality; got != defaults.ServerConfig.JPEGQuality {
		t.Fatalf("expected fallback to default JPEGQuality, got %d", got)
	}
}

func TestLoadParsesBootstrapSessions(t *testing.T) {
	path := writeTempConfig(t, `
serverConfig:
  bootstrap:
    - id: emu1
      corePath: /cores/gambatte.so
      romPath: /roms/game.gb
`)

	p, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	bootstrap := p.Full().Bootstrap
	if len(bootstrap) != 1 {
		t.Fatalf("expected 1 bootstrap session, got %d", len(bootstrap))
	}
	if bootstrap[0].ID != "emu1" || bootstrap[0].CorePath != "/cores/gambatte.so" {
		t.Fatalf("unexpected bootstrap session: %+v", bootstrap[0])
	}
}
