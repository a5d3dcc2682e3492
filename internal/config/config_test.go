package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"figurespeaker/internal/config"
)

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	t.Setenv("MOPIDY_WEB_SOCKET_URL", "")
	t.Setenv("PORT", "")
	path := filepath.Join(t.TempDir(), "missing.toml")

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if exists {
		t.Fatal("expected config file to be absent")
	}
	if resolved != path {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, path)
	}
	if cfg.Engine.Binary != "mopidy" {
		t.Fatalf("unexpected engine binary: %q", cfg.Engine.Binary)
	}
	if cfg.Engine.ReadyMarker != "HTTP server running" {
		t.Fatalf("unexpected ready marker: %q", cfg.Engine.ReadyMarker)
	}
	if cfg.Engine.WebSocketURL != "ws://localhost:6680/mopidy/ws/" {
		t.Fatalf("unexpected websocket url: %q", cfg.Engine.WebSocketURL)
	}
	if cfg.Paths.APIBind != "127.0.0.1:3000" {
		t.Fatalf("unexpected api bind: %q", cfg.Paths.APIBind)
	}
	if cfg.Volume.Min != 5 || cfg.Volume.Max != 100 || cfg.Volume.Current != 70 {
		t.Fatalf("unexpected volume defaults: %+v", cfg.Volume)
	}
	if cfg.Volume.ClampToBounds {
		t.Fatal("expected clamp_to_bounds disabled by default")
	}
	if cfg.Player.DefaultPlayMode != config.PlayModeResume {
		t.Fatalf("unexpected play mode: %q", cfg.Player.DefaultPlayMode)
	}
	if cfg.Player.ResetAfterDays != 7 {
		t.Fatalf("unexpected reset_after_days: %d", cfg.Player.ResetAfterDays)
	}
	if cfg.Player.WindInterval().Milliseconds() != 500 {
		t.Fatalf("unexpected wind interval: %s", cfg.Player.WindInterval())
	}
	if !cfg.Engine.Autostart {
		t.Fatal("expected engine autostart enabled by default")
	}
	if !filepath.IsAbs(cfg.Paths.LogDir) || !filepath.IsAbs(cfg.Paths.DataDir) {
		t.Fatalf("expected absolute directories, got %q and %q", cfg.Paths.LogDir, cfg.Paths.DataDir)
	}
}

func TestLoadHonoursEnvironmentFallbacks(t *testing.T) {
	t.Setenv("MOPIDY_WEB_SOCKET_URL", "ws://speaker.local:6680/mopidy/ws/")
	t.Setenv("PORT", "8088")

	cfg, _, _, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Engine.WebSocketURL != "ws://speaker.local:6680/mopidy/ws/" {
		t.Fatalf("expected websocket url from env, got %q", cfg.Engine.WebSocketURL)
	}
	if cfg.Paths.APIBind != "127.0.0.1:8088" {
		t.Fatalf("expected api bind port from env, got %q", cfg.Paths.APIBind)
	}
}

func TestLoadCustomConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	configPath := filepath.Join(tempHome, "config.toml")
	payload := map[string]any{
		"paths": map[string]any{
			"log_dir":  "~/logs",
			"data_dir": "~/data",
		},
		"engine": map[string]any{
			"args":     []string{"--config", "~/mopidy.conf"},
			"protocol": "MPD",
		},
		"volume": map[string]any{
			"min":             10,
			"max":             80,
			"current":         40,
			"interval":        10,
			"clamp_to_bounds": true,
		},
		"rfid": map[string]any{
			"device": "~/tags.fifo",
		},
	}
	data, err := toml.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected config file to exist")
	}
	if cfg.Paths.LogDir != filepath.Join(tempHome, "logs") {
		t.Fatalf("unexpected log dir: %q", cfg.Paths.LogDir)
	}
	if cfg.Paths.DataDir != filepath.Join(tempHome, "data") {
		t.Fatalf("unexpected data dir: %q", cfg.Paths.DataDir)
	}
	if cfg.Engine.Args[1] != filepath.Join(tempHome, "mopidy.conf") {
		t.Fatalf("expected engine args expanded, got %v", cfg.Engine.Args)
	}
	if cfg.Engine.Protocol != config.ProtocolMPD {
		t.Fatalf("expected protocol normalized to mpd, got %q", cfg.Engine.Protocol)
	}
	if cfg.RFID.Device != filepath.Join(tempHome, "tags.fifo") {
		t.Fatalf("unexpected rfid device: %q", cfg.RFID.Device)
	}
	if !cfg.Volume.ClampToBounds || cfg.Volume.Interval != 10 {
		t.Fatalf("unexpected volume section: %+v", cfg.Volume)
	}
	if cfg.DatabasePath() != filepath.Join(tempHome, "data", "settings.db") {
		t.Fatalf("unexpected database path: %q", cfg.DatabasePath())
	}
	if cfg.SocketPath() != filepath.Join(tempHome, "logs", "figurespeaker.sock") {
		t.Fatalf("unexpected socket path: %q", cfg.SocketPath())
	}
}

func TestValidateRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"min above max", func(c *config.Config) { c.Volume.Min = 90; c.Volume.Max = 50; c.Volume.Current = 60 }, "volume.min"},
		{"current outside bounds", func(c *config.Config) { c.Volume.Current = 2 }, "volume.current"},
		{"zero interval", func(c *config.Config) { c.Volume.Interval = 0 }, "volume.interval"},
		{"unknown protocol", func(c *config.Config) { c.Engine.Protocol = "upnp" }, "engine.protocol"},
		{"bad websocket scheme", func(c *config.Config) { c.Engine.WebSocketURL = "http://localhost:6680" }, "engine.websocket_url"},
		{"unknown play mode", func(c *config.Config) { c.Player.DefaultPlayMode = "SHUFFLE" }, "player.default_play_mode"},
		{"missing rfid device", func(c *config.Config) { c.RFID.Device = "" }, "rfid.device"},
		{"bad log level", func(c *config.Config) { c.Logging.Level = "trace" }, "logging.level"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Paths.APIBind = "127.0.0.1:3000"
			cfg.Engine.WebSocketURL = "ws://localhost:6680/mopidy/ws/"
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %q, got %v", tc.want, err)
			}
		})
	}
}

func TestCreateSampleProducesLoadableConfig(t *testing.T) {
	target := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(target); err != nil {
		t.Fatalf("CreateSample returned error: %v", err)
	}
	cfg, _, exists, err := config.Load(target)
	if err != nil {
		t.Fatalf("Load sample returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected sample config to exist")
	}
	if cfg.Engine.Binary != "mopidy" {
		t.Fatalf("unexpected engine binary from sample: %q", cfg.Engine.Binary)
	}
}
