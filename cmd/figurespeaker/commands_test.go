package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"figurespeaker/internal/daemonctl"
	"figurespeaker/internal/ipc"
)

func TestStatusWithRunningDaemon(t *testing.T) {
	env := setupCLITestEnv(t)

	out := env.run(t, "status")
	requireContains(t, out, "System Status")
	requireContains(t, out, "Running (pid")
	requireContains(t, out, "Stopped (run `figurespeaker engine start`)")
	requireContains(t, out, "No engine session")
	requireContains(t, out, "70 (bounds 5-100)")
	requireContains(t, out, "0 registered")

	out = env.run(t, "status", "--json")
	var snapshot daemonctl.Snapshot
	if err := json.Unmarshal([]byte(out), &snapshot); err != nil {
		t.Fatalf("decode status json: %v\n%s", err, out)
	}
	if !snapshot.Daemon.Running || snapshot.Daemon.Engine.State != "stopped" {
		t.Fatalf("unexpected snapshot: %+v", snapshot.Daemon)
	}
}

func TestStatusWithoutDaemon(t *testing.T) {
	env := setupOfflineEnv(t)

	out := env.run(t, "status")
	requireContains(t, out, "Not running")
	requireContains(t, out, "70 (bounds 5-100)")
}

func TestStopWithoutDaemon(t *testing.T) {
	env := setupOfflineEnv(t)
	requireContains(t, env.run(t, "stop"), "Daemon is not running")
}

func TestClientCommandsReportMissingSocket(t *testing.T) {
	env := setupOfflineEnv(t)
	_, _, err := runCLI(t, []string{"engine", "start"}, env.socketPath, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "figurespeaker start") {
		t.Fatalf("expected dial hint, got %v", err)
	}
}

func TestEngineAndPlaybackCommands(t *testing.T) {
	env := setupCLITestEnv(t)

	requireContains(t, env.run(t, "engine", "start"), "Engine Ready")

	env.run(t, "figure", "add", "04A1", "local:album:farm", "--name", "Farm")
	out := env.run(t, "play", "04A1")
	requireContains(t, out, "Playing local:album:farm")
	want := "clear lookup(local:album:farm) add(local:album:farm) setVolume(70) play"
	if got := env.ctrl.CallString(); !strings.HasPrefix(got, want) {
		t.Fatalf("calls = %q, want prefix %q", got, want)
	}

	requireContains(t, env.run(t, "play", "FFFF"), "Tag FFFF is not registered")
	requireContains(t, env.run(t, "play", "--uri", "local:track:song.mp3", "--position", "1m30s"), "from 1:30")
	requireContains(t, env.ctrl.CallString(), "seek(1m30s)")

	requireContains(t, env.run(t, "pause"), "Paused at")
	requireContains(t, env.run(t, "pause"), "Playing at")
	requireContains(t, env.run(t, "halt"), "Stopped at")

	requireContains(t, env.run(t, "engine", "stop"), "Engine Stopped")
	requireContains(t, env.run(t, "pause"), "No engine session")
}

func TestPlayRequiresExactlyOneTarget(t *testing.T) {
	env := setupOfflineEnv(t)
	for _, args := range [][]string{
		{"play"},
		{"play", "04A1", "--uri", "local:album:farm"},
	} {
		if _, _, err := runCLI(t, args, env.socketPath, env.configPath); err == nil {
			t.Fatalf("%v: expected error", args)
		}
	}
}

func TestVolumeCommands(t *testing.T) {
	env := setupCLITestEnv(t)

	requireContains(t, env.run(t, "volume", "up"), "Volume unchanged (no engine session)")

	env.run(t, "engine", "start")
	requireContains(t, env.run(t, "volume", "up"), "Volume 70 -> 75")
	requireContains(t, env.run(t, "volume", "set", "--max", "80"), "max 80")
	requireContains(t, env.run(t, "volume", "up"), "Volume 75 -> 80")
	requireContains(t, env.run(t, "volume", "up"), "volume bound reached")

	var settings ipc.VolumeSettings
	if err := json.Unmarshal([]byte(env.run(t, "volume", "show", "--json")), &settings); err != nil {
		t.Fatalf("decode volume json: %v", err)
	}
	if settings.Max != 80 || settings.Current != 80 {
		t.Fatalf("unexpected settings: %+v", settings)
	}

	if _, _, err := runCLI(t, []string{"volume", "set", "--min", "90"}, env.socketPath, env.configPath); err == nil {
		t.Fatal("expected inverted bounds to fail")
	}
	if _, _, err := runCLI(t, []string{"volume", "set"}, env.socketPath, env.configPath); err == nil {
		t.Fatal("expected missing arguments to fail")
	}
}

func TestVolumeSettingsWithoutDaemon(t *testing.T) {
	env := setupOfflineEnv(t)

	requireContains(t, env.run(t, "volume", "set", "--current", "40"), "current 40")
	out := env.run(t, "volume", "show")
	requireContains(t, out, "Current")
	requireContains(t, out, "40")
}

func TestFigureCommands(t *testing.T) {
	env := setupOfflineEnv(t)

	requireContains(t, env.run(t, "figure", "list"), "No figures registered")
	requireContains(t, env.run(t, "figure", "add", "04A1", "local:album:farm", "--name", "Farm", "--mode", "reset"), "saved")

	out := env.run(t, "figure", "list")
	requireContains(t, out, "04A1")
	requireContains(t, out, "RESET")
	requireContains(t, out, "never")

	if _, _, err := runCLI(t, []string{"figure", "add", "04A2", "local:x", "--mode", "shuffle"}, env.socketPath, env.configPath); err == nil {
		t.Fatal("expected unsupported mode to fail")
	}

	requireContains(t, env.run(t, "figure", "remove", "04A1"), "Figure 04A1 removed")
	requireContains(t, env.run(t, "figure", "remove", "04A1"), "Figure 04A1 not found")
}

func TestConfigInitValidateShow(t *testing.T) {
	env := setupOfflineEnv(t)

	requireContains(t, env.run(t, "config", "validate"), "Configuration valid")

	target := filepath.Join(t.TempDir(), "nested", "config.toml")
	requireContains(t, env.run(t, "config", "init", "--path", target), "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}
	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, env.socketPath, env.configPath); err == nil {
		t.Fatal("expected existing config to be refused without --overwrite")
	}

	env.cfg.Paths.APIToken = "s3cret"
	writeTestConfig(t, env.configPath, env.cfg)
	out := env.run(t, "config", "show")
	requireContains(t, out, "[engine]")
	if strings.Contains(out, "s3cret") {
		t.Fatalf("expected api token to be masked:\n%s", out)
	}
}

func TestLogsCommand(t *testing.T) {
	env := setupOfflineEnv(t)
	requireContains(t, env.run(t, "logs"), "No log at")

	run := filepath.Join(env.cfg.Paths.LogDir, "figurespeaker-1.log")
	content := "level=INFO msg=\"engine ready\"\nlevel=WARN msg=\"rfid device unavailable\"\nlevel=INFO msg=\"playback started\"\n"
	if err := os.WriteFile(run, []byte(content), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	if err := os.Symlink(run, env.cfg.CurrentLogPath()); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	out := env.run(t, "logs", "-n", "2")
	if strings.Contains(out, "engine ready") || !strings.Contains(out, "playback started") {
		t.Fatalf("unexpected tail:\n%s", out)
	}
	out = env.run(t, "logs", "--grep", "WARN")
	if strings.Count(out, "\n") != 1 {
		t.Fatalf("expected only the warning line:\n%s", out)
	}
	requireContains(t, out, "rfid device unavailable")
}
