package ipc_test

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"figurespeaker/internal/daemon"
	"figurespeaker/internal/ipc"
	"figurespeaker/internal/logging"
	"figurespeaker/internal/session"
	"figurespeaker/internal/testsupport"
)

type fixture struct {
	daemon *daemon.Daemon
	ctrl   *testsupport.RecordingController
	client *ipc.Client
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithVolume(5, 100, 70, 5))
	cfg.Engine.Autostart = false
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	store := testsupport.MustOpenStore(t, cfg)
	ctrl := testsupport.NewRecordingController()
	logger := logging.NewNop()

	d, err := daemon.New(cfg, store, logger, daemon.Options{
		Spawner: testsupport.NewPipeSpawner(cfg.Engine.ReadyMarker),
		Dialer: func(context.Context) (session.Controller, error) {
			return ctrl, nil
		},
	})
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := d.Start(ctx); err != nil {
		t.Fatalf("daemon.Start: %v", err)
	}

	socket := filepath.Join(cfg.Paths.LogDir, "figurespeaker.sock")
	srv, err := ipc.NewServer(ctx, socket, d, logger)
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping IPC server test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()

	client, err := ipc.Dial(socket)
	if err != nil {
		t.Fatalf("ipc.Dial: %v", err)
	}
	// Registered after the server so the client closes first.
	t.Cleanup(srv.Close)
	t.Cleanup(func() { _ = client.Close() })

	return &fixture{daemon: d, ctrl: ctrl, client: client}
}

func TestStatusAndEngineLifecycle(t *testing.T) {
	f := newFixture(t)

	status, err := f.client.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !status.Running || status.Engine.State != "stopped" || status.Session {
		t.Fatalf("unexpected status before engine start: %+v", status)
	}
	if status.Volume.Current != 70 || status.APIAddress == "" {
		t.Fatalf("unexpected status details: %+v", status)
	}

	resp, err := f.client.Engine("start")
	if err != nil {
		t.Fatalf("Engine(start): %v", err)
	}
	if resp.Engine.State != "ready" || resp.Engine.PID == 0 {
		t.Fatalf("unexpected engine after start: %+v", resp.Engine)
	}
	if _, err := f.client.Engine("start"); err == nil || !strings.Contains(err.Error(), "already running") {
		t.Fatalf("expected conflict on second start, got %v", err)
	}
	if _, err := f.client.Engine("launch"); err == nil {
		t.Fatal("expected error for unknown action")
	}

	status, err = f.client.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !status.Session {
		t.Fatal("expected a control session once the engine is ready")
	}

	resp, err = f.client.Engine("stop")
	if err != nil {
		t.Fatalf("Engine(stop): %v", err)
	}
	if resp.Engine.State != "stopped" {
		t.Fatalf("expected stopped engine, got %+v", resp.Engine)
	}
}

func TestPlayAndTransport(t *testing.T) {
	f := newFixture(t)
	if _, err := f.client.Engine("start"); err != nil {
		t.Fatalf("Engine(start): %v", err)
	}

	saved, err := f.client.FigureSave(ipc.Figure{Tag: "04A1", URI: "local:album:farm", Name: "Farm"})
	if err != nil {
		t.Fatalf("FigureSave: %v", err)
	}
	if saved.Figure.Tag != "04A1" || saved.Figure.Name != "Farm" {
		t.Fatalf("unexpected saved figure: %+v", saved.Figure)
	}

	played, err := f.client.PlayTag("04A1")
	if err != nil {
		t.Fatalf("PlayTag: %v", err)
	}
	if !played.Played || played.Request == nil || played.Request.URI != "local:album:farm" {
		t.Fatalf("unexpected play response: %+v", played)
	}
	want := "clear lookup(local:album:farm) add(local:album:farm) setVolume(70) play"
	if got := f.ctrl.CallString(); got != want {
		t.Fatalf("calls = %q, want %q", got, want)
	}

	unknown, err := f.client.PlayTag("FFFF")
	if err != nil {
		t.Fatalf("PlayTag(unknown): %v", err)
	}
	if unknown.Played {
		t.Fatal("unknown tag must not play")
	}

	f.ctrl.SetPosition(42 * time.Second)
	if _, err := f.client.Playback(ipc.PlaybackRequest{Action: "stop"}); err != nil {
		t.Fatalf("Playback(stop): %v", err)
	}
	list, err := f.client.FigureList()
	if err != nil {
		t.Fatalf("FigureList: %v", err)
	}
	if len(list.Figures) != 1 || list.Figures[0].ProgressMS != 42000 {
		t.Fatalf("expected saved progress, got %+v", list.Figures)
	}

	if _, err := f.client.Playback(ipc.PlaybackRequest{Action: "skip"}); err == nil {
		t.Fatal("expected error for unknown playback action")
	}
	if _, err := f.client.PlayURI("", 0); err == nil {
		t.Fatal("expected validation error without tag or uri")
	}
}

func TestVolumeAndSettings(t *testing.T) {
	f := newFixture(t)

	noop, err := f.client.Volume(ipc.VolumeRequest{Direction: "increase"})
	if err != nil {
		t.Fatalf("Volume without engine: %v", err)
	}
	if noop.Changed {
		t.Fatalf("volume must not change without an engine: %+v", noop)
	}

	if _, err := f.client.Engine("start"); err != nil {
		t.Fatalf("Engine(start): %v", err)
	}
	up, err := f.client.Volume(ipc.VolumeRequest{Direction: "increase"})
	if err != nil {
		t.Fatalf("Volume(increase): %v", err)
	}
	if !up.Changed || up.Previous != 70 || up.Current != 75 {
		t.Fatalf("unexpected increase result: %+v", up)
	}

	level := 500
	set, err := f.client.Volume(ipc.VolumeRequest{Level: &level})
	if err != nil {
		t.Fatalf("Volume(level): %v", err)
	}
	if set.Current != 100 || f.ctrl.Volume() != 100 {
		t.Fatalf("expected volume clamped to max, got %+v (engine %d)", set, f.ctrl.Volume())
	}

	updated, err := f.client.VolumeSettings(ipc.VolumeSettingsRequest{
		Update:   true,
		Settings: ipc.VolumeSettings{Min: 10, Max: 60, Current: 40},
	})
	if err != nil {
		t.Fatalf("VolumeSettings(update): %v", err)
	}
	if updated.Settings.Max != 60 || f.ctrl.Volume() != 40 {
		t.Fatalf("unexpected settings after update: %+v (engine %d)", updated.Settings, f.ctrl.Volume())
	}
	if _, err := f.client.VolumeSettings(ipc.VolumeSettingsRequest{
		Update:   true,
		Settings: ipc.VolumeSettings{Min: 60, Max: 10, Current: 40},
	}); err == nil {
		t.Fatal("expected validation error for inverted bounds")
	}
	if _, err := f.client.Volume(ipc.VolumeRequest{Direction: "sideways"}); err == nil {
		t.Fatal("expected error for unknown direction")
	}
}

func TestFigureDeleteAndLogLevel(t *testing.T) {
	f := newFixture(t)

	if _, err := f.client.FigureSave(ipc.Figure{Tag: "04A1", URI: "local:album:farm"}); err != nil {
		t.Fatalf("FigureSave: %v", err)
	}
	if resp, err := f.client.FigureDelete("04A1"); err != nil || !resp.Removed {
		t.Fatalf("FigureDelete: %+v, %v", resp, err)
	}
	if _, err := f.client.FigureDelete("04A1"); err == nil {
		t.Fatal("expected error deleting an unknown figure")
	}

	level, err := f.client.SetLogLevel("DEBUG")
	if err != nil {
		t.Fatalf("SetLogLevel: %v", err)
	}
	if level.Level != "debug" {
		t.Fatalf("expected debug, got %q", level.Level)
	}
	if _, err := f.client.SetLogLevel("verbose"); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestStopRequestsShutdown(t *testing.T) {
	f := newFixture(t)

	resp, err := f.client.Stop()
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if !resp.Stopping {
		t.Fatal("expected stop acknowledgement")
	}
	select {
	case <-f.daemon.ShutdownRequested():
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown was not requested")
	}
}
