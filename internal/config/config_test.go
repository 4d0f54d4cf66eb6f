package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/torsteingrindvik/serial-keel/internal/testutil/testlog"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "keelctl.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaultsAndOverrides(t *testing.T) {
	testlog.Start(t)
	path := writeConfig(t, `
server = "wss://keel.example.com:3124"
timeout = "2s"

[tls]
server_name = "keel.example.com"
ca_file = "/etc/serial-keel/ca.crt"

[run]
labels = ["mocks", " ci "]
input_file = "input.txt"
success_pattern = "PROJECT EXECUTION SUCCESSFUL"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Server != "wss://keel.example.com:3124" {
		t.Fatalf("unexpected server: %q", cfg.Server)
	}
	if cfg.Timeout != 2*time.Second {
		t.Fatalf("unexpected timeout: %v", cfg.Timeout)
	}
	// control_any_timeout is absent from the file, so the default holds.
	if cfg.ControlAnyTimeout != 30*time.Second {
		t.Fatalf("unexpected control any timeout: %v", cfg.ControlAnyTimeout)
	}
	if cfg.TLS.ServerName != "keel.example.com" {
		t.Fatalf("unexpected tls server name: %q", cfg.TLS.ServerName)
	}
	if len(cfg.Run.Labels) != 2 || cfg.Run.Labels[1] != "ci" {
		t.Fatalf("labels not trimmed: %+v", cfg.Run.Labels)
	}
	if cfg.Run.SuccessPattern != "PROJECT EXECUTION SUCCESSFUL" {
		t.Fatalf("unexpected success pattern: %q", cfg.Run.SuccessPattern)
	}
}

func TestLoadRequiresTarget(t *testing.T) {
	testlog.Start(t)
	path := writeConfig(t, `server = "ws://localhost:3123"`)
	if _, err := Load(path); !errors.Is(err, ErrTargetRequired) {
		t.Fatalf("expected ErrTargetRequired, got %v", err)
	}
}

func TestLoadRejectsBadEndpoint(t *testing.T) {
	testlog.Start(t)
	path := writeConfig(t, `
server = "ws://localhost:3123"

[run]
endpoint = "usb:stick"
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected endpoint parse failure")
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	testlog.Start(t)
	path := writeConfig(t, `
server = "ws://localhost:3123"
timeout = "soon"

[run]
labels = ["mocks"]
`)
	if _, err := Load(path); !errors.Is(err, ErrBadDuration) {
		t.Fatalf("expected ErrBadDuration, got %v", err)
	}
}

func TestTemplateLoadsCleanly(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "keelctl.toml")
	if err := WriteTemplate(path, false); err != nil {
		t.Fatalf("write template: %v", err)
	}
	if err := WriteTemplate(path, false); err == nil {
		t.Fatalf("second write should refuse to clobber")
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("template should load: %v", err)
	}
	if len(cfg.Run.Labels) == 0 {
		t.Fatalf("template should select labels")
	}
}
