package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Mode != ModeHost || cfg.ListenAddr != ":8080" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.PingInterval != time.Second || cfg.DialAttempts != 5 {
		t.Fatalf("ping %v attempts %d", cfg.PingInterval, cfg.DialAttempts)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("BREAKOUT_MODE", "CLIENT")
	t.Setenv("BREAKOUT_SERVER_URL", "ws://example:8080/ws")
	t.Setenv("BREAKOUT_PLAYER_NAME", "ann")
	t.Setenv("BREAKOUT_AUTOPILOT", "true")
	t.Setenv("BREAKOUT_PING_INTERVAL", "250ms")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Mode != ModeClient || cfg.ServerURL != "ws://example:8080/ws" || cfg.PlayerName != "ann" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if !cfg.Autopilot || cfg.PingInterval != 250*time.Millisecond {
		t.Fatalf("autopilot %v ping %v", cfg.Autopilot, cfg.PingInterval)
	}
}

func TestLoadReadsDotEnvWithoutOverriding(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	body := "BREAKOUT_REDIS_ADDR=redis:6379\nBREAKOUT_LISTEN_ADDR=:9999\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("BREAKOUT_LISTEN_ADDR", ":7000")
	t.Cleanup(func() { _ = os.Unsetenv("BREAKOUT_REDIS_ADDR") })

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RedisAddr != "redis:6379" {
		t.Fatalf("redis addr = %q", cfg.RedisAddr)
	}
	if cfg.ListenAddr != ":7000" {
		t.Fatalf("listen addr = %q, the environment should win", cfg.ListenAddr)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.env")

	t.Setenv("BREAKOUT_DIAL_ATTEMPTS", "lots")
	if _, err := Load(missing); err == nil || !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("err = %v, want parse env error", err)
	}
	t.Setenv("BREAKOUT_DIAL_ATTEMPTS", "3")

	t.Setenv("BREAKOUT_MODE", "spectator")
	if _, err := Load(missing); err == nil {
		t.Fatal("expected unknown mode error")
	}

	t.Setenv("BREAKOUT_MODE", "client")
	if _, err := Load(missing); err == nil {
		t.Fatal("expected missing server url error")
	}
}
