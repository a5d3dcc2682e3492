package daemon_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"figurespeaker/internal/config"
	"figurespeaker/internal/daemon"
	"figurespeaker/internal/rfid"
	"figurespeaker/internal/services"
	"figurespeaker/internal/session"
	"figurespeaker/internal/settings"
	"figurespeaker/internal/testsupport"
)

type fakeTags struct {
	events chan rfid.Event
	once   sync.Once
}

func newFakeTags() *fakeTags {
	return &fakeTags{events: make(chan rfid.Event, 4)}
}

func (f *fakeTags) Start(context.Context) error { return nil }

func (f *fakeTags) Events() <-chan rfid.Event { return f.events }

func (f *fakeTags) Stop() {
	f.once.Do(func() { close(f.events) })
}

type harness struct {
	cfg     *config.Config
	store   *settings.Store
	ctrl    *testsupport.RecordingController
	spawner *testsupport.PipeSpawner
	tags    *fakeTags
	daemon  *daemon.Daemon
}

func newHarness(t *testing.T, opts ...testsupport.ConfigOption) *harness {
	t.Helper()
	opts = append([]testsupport.ConfigOption{testsupport.WithVolume(5, 100, 70, 5)}, opts...)
	cfg := testsupport.NewConfig(t, opts...)
	cfg.Engine.Autostart = false
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	h := &harness{
		cfg:     cfg,
		store:   testsupport.MustOpenStore(t, cfg),
		ctrl:    testsupport.NewRecordingController(),
		spawner: testsupport.NewPipeSpawner(cfg.Engine.ReadyMarker),
		tags:    newFakeTags(),
	}
	d, err := daemon.New(cfg, h.store, nil, daemon.Options{
		Spawner: h.spawner,
		Dialer: func(context.Context) (session.Controller, error) {
			return h.ctrl, nil
		},
		TagSource: h.tags,
	})
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	h.daemon = d
	return h
}

func (h *harness) start(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := h.daemon.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return ctx
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestDaemonStartStop(t *testing.T) {
	h := newHarness(t)
	ctx := h.start(t)

	status := h.daemon.Status(ctx)
	if !status.Running {
		t.Fatal("expected daemon to report running")
	}
	if !status.RFIDEnabled {
		t.Fatal("expected the injected tag source to be reported")
	}
	if status.Volume.Current != 70 {
		t.Fatalf("expected seeded volume 70, got %+v", status.Volume)
	}

	if err := h.daemon.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	h.daemon.Stop()
	if h.daemon.Status(ctx).Running {
		t.Fatal("expected daemon to be stopped")
	}
}

func TestSecondInstanceIsRefused(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	other, err := daemon.New(h.cfg, testsupport.MustOpenStore(t, h.cfg), nil, daemon.Options{Spawner: h.spawner})
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	err = other.Start(context.Background())
	if err == nil || !strings.Contains(err.Error(), "already running") {
		t.Fatalf("expected lock conflict, got %v", err)
	}
}

func TestPlaybackRunsOnlyOnceEngineIsReady(t *testing.T) {
	h := newHarness(t)
	ctx := h.start(t)

	if _, err := h.daemon.PlayURI(ctx, "tag:42", 10*time.Second); err != nil {
		t.Fatalf("PlayURI without engine: %v", err)
	}
	if calls := h.ctrl.Calls(); len(calls) != 0 {
		t.Fatalf("expected no engine calls before readiness, got %v", calls)
	}

	if err := h.daemon.StartEngine(ctx); err != nil {
		t.Fatalf("StartEngine: %v", err)
	}
	if _, err := h.daemon.PlayURI(ctx, "tag:42", 10*time.Second); err != nil {
		t.Fatalf("PlayURI: %v", err)
	}

	want := "clear lookup(tag:42) add(tag:42) setVolume(70) play seek(10s)"
	if got := h.ctrl.CallString(); got != want {
		t.Fatalf("calls = %q, want %q", got, want)
	}
}

func TestEngineStartOutlivesCallerContext(t *testing.T) {
	h := newHarness(t)
	h.start(t)
	hold := make(chan struct{})
	h.spawner.Hold = hold

	reqCtx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := h.daemon.StartEngine(reqCtx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected caller deadline, got %v", err)
	}
	close(hold)

	waitFor(t, "engine ready", h.daemon.Engine().Ready)
	if n := h.spawner.Spawns(); n != 1 {
		t.Fatalf("spawns = %d, want 1", n)
	}
}

func TestEngineConflictAndSessionReset(t *testing.T) {
	h := newHarness(t)
	ctx := h.start(t)

	if err := h.daemon.StartEngine(ctx); err != nil {
		t.Fatalf("StartEngine: %v", err)
	}
	if err := h.daemon.StartEngine(ctx); !errors.Is(err, services.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if _, err := h.daemon.PlayURI(ctx, "local:album:farm", 0); err != nil {
		t.Fatalf("PlayURI: %v", err)
	}

	if err := h.daemon.StopEngine(ctx); err != nil {
		t.Fatalf("StopEngine: %v", err)
	}
	waitFor(t, "session close", func() bool { return h.ctrl.Closed() >= 1 })
	if h.daemon.Status(ctx).Session {
		t.Fatal("expected no session after engine stop")
	}
	if err := h.daemon.StopEngine(ctx); err != nil {
		t.Fatalf("second StopEngine should be a no-op: %v", err)
	}
}

func TestTagPlacementPlaysFigureAndRemovalSavesProgress(t *testing.T) {
	h := newHarness(t)
	ctx := h.start(t)
	testsupport.NewFigure(t, h.store, "04A1B2", "local:album:farm", config.PlayModeResume)
	if err := h.daemon.StartEngine(ctx); err != nil {
		t.Fatalf("StartEngine: %v", err)
	}

	h.tags.events <- rfid.Event{Kind: rfid.TagPlaced, Tag: "04A1B2", At: time.Now()}
	waitFor(t, "figure playback", func() bool { return strings.Contains(h.ctrl.CallString(), "play") })
	if strings.Contains(h.ctrl.CallString(), "seek") {
		t.Fatalf("fresh figure must not seek: %s", h.ctrl.CallString())
	}

	h.ctrl.SetPosition(42 * time.Second)
	h.tags.events <- rfid.Event{Kind: rfid.TagRemoved, Tag: "04A1B2", At: time.Now()}
	waitFor(t, "saved progress", func() bool {
		fig, err := h.store.GetFigure(ctx, "04A1B2")
		return err == nil && fig != nil && fig.Progress == 42*time.Second
	})

	h.tags.events <- rfid.Event{Kind: rfid.TagPlaced, Tag: "04A1B2", At: time.Now()}
	waitFor(t, "resume seek", func() bool { return strings.Contains(h.ctrl.CallString(), "seek(42s)") })
}

func TestUnknownTagPlaysNothing(t *testing.T) {
	h := newHarness(t)
	ctx := h.start(t)
	if err := h.daemon.StartEngine(ctx); err != nil {
		t.Fatalf("StartEngine: %v", err)
	}

	req, err := h.daemon.PlayTag(ctx, "FFFF")
	if err != nil || req != nil {
		t.Fatalf("PlayTag(unknown) = %v, %v", req, err)
	}
	if calls := h.ctrl.Calls(); len(calls) != 0 {
		t.Fatalf("expected no engine calls, got %v", calls)
	}
}

func TestStopPlaybackIgnoresDeletedFigure(t *testing.T) {
	h := newHarness(t)
	ctx := h.start(t)
	testsupport.NewFigure(t, h.store, "AA", "local:album:a", config.PlayModeResume)
	if err := h.daemon.StartEngine(ctx); err != nil {
		t.Fatalf("StartEngine: %v", err)
	}
	if _, err := h.daemon.PlayTag(ctx, "AA"); err != nil {
		t.Fatalf("PlayTag: %v", err)
	}
	if err := h.daemon.DeleteFigure(ctx, "AA"); err != nil {
		t.Fatalf("DeleteFigure: %v", err)
	}
	if err := h.daemon.StopPlayback(ctx); err != nil {
		t.Fatalf("StopPlayback: %v", err)
	}
	if err := h.daemon.DeleteFigure(ctx, "AA"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found for a second delete, got %v", err)
	}
}

func TestSetLogLevel(t *testing.T) {
	h := newHarness(t)
	if _, err := h.daemon.SetLogLevel(""); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for empty level, got %v", err)
	}
	if _, err := h.daemon.SetLogLevel("loud"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for unknown level, got %v", err)
	}
	level, err := h.daemon.SetLogLevel("debug")
	if err != nil || level.String() != "DEBUG" {
		t.Fatalf("SetLogLevel(debug) = %v, %v", level, err)
	}
}

func TestRequestShutdownIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.daemon.RequestShutdown()
	h.daemon.RequestShutdown()
	select {
	case <-h.daemon.ShutdownRequested():
	default:
		t.Fatal("expected shutdown channel to be closed")
	}
}
