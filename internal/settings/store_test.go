package settings_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"figurespeaker/internal/services"
	"figurespeaker/internal/settings"
	"figurespeaker/internal/testsupport"
)

func TestOpenSeedsVolumeFromConfig(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithVolume(10, 90, 40, 5))
	store := testsupport.MustOpenStore(t, cfg)

	got, err := store.VolumeSettings(context.Background())
	if err != nil {
		t.Fatalf("VolumeSettings: %v", err)
	}
	if got != (settings.VolumeSettings{Min: 10, Max: 90, Current: 40}) {
		t.Fatalf("unexpected seeded volume: %+v", got)
	}
	version, err := store.SchemaVersion(context.Background())
	if err != nil || version != 2 {
		t.Fatalf("expected schema version 2, got %d err=%v", version, err)
	}
}

func TestReopenKeepsStoredVolume(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	ctx := context.Background()

	store, err := settings.Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := store.SetCurrentVolume(ctx, 55); err != nil {
		t.Fatalf("SetCurrentVolume: %v", err)
	}
	_ = store.Close()

	cfg.Volume.Current = 20
	reopened := testsupport.MustOpenStore(t, cfg)
	current, err := reopened.CurrentVolume(ctx)
	if err != nil {
		t.Fatalf("CurrentVolume: %v", err)
	}
	if current != 55 {
		t.Fatalf("expected stored volume to survive reopen, got %d", current)
	}
}

func TestSwapCurrentVolumeComparesBeforeWriting(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithVolume(5, 100, 70, 5))
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	swapped, err := store.SwapCurrentVolume(ctx, 70, 75)
	if err != nil || !swapped {
		t.Fatalf("expected swap 70->75, swapped=%v err=%v", swapped, err)
	}
	swapped, err = store.SwapCurrentVolume(ctx, 70, 80)
	if err != nil || swapped {
		t.Fatalf("expected stale swap to be rejected, swapped=%v err=%v", swapped, err)
	}
	if current, _ := store.CurrentVolume(ctx); current != 75 {
		t.Fatalf("expected 75, got %d", current)
	}
}

func TestUpdateVolumeSettingsValidates(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	cases := []settings.VolumeSettings{
		{Min: 50, Max: 40, Current: 45},
		{Min: 0, Max: 101, Current: 50},
		{Min: 10, Max: 20, Current: 30},
	}
	for _, tc := range cases {
		if err := store.UpdateVolumeSettings(ctx, tc); !errors.Is(err, services.ErrValidation) {
			t.Fatalf("expected validation error for %+v, got %v", tc, err)
		}
	}

	want := settings.VolumeSettings{Min: 0, Max: 60, Current: 30}
	if err := store.UpdateVolumeSettings(ctx, want); err != nil {
		t.Fatalf("UpdateVolumeSettings: %v", err)
	}
	if got, _ := store.VolumeSettings(ctx); got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
}

func TestFigureLifecycle(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	testsupport.NewFigure(t, store, "04a1b2", "spotify:album:abc", "resume")
	playedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := store.SaveProgress(ctx, "04a1b2", 95*time.Second, playedAt); err != nil {
		t.Fatalf("SaveProgress: %v", err)
	}

	fig, err := store.GetFigure(ctx, "04a1b2")
	if err != nil || fig == nil {
		t.Fatalf("GetFigure: %v", err)
	}
	if fig.PlayMode != "RESUME" || fig.Progress != 95*time.Second {
		t.Fatalf("unexpected figure: %+v", fig)
	}
	if fig.LastPlayedAt == nil || !fig.LastPlayedAt.Equal(playedAt) {
		t.Fatalf("unexpected last played: %v", fig.LastPlayedAt)
	}

	// Same URI keeps progress; a new URI resets it.
	if err := store.UpsertFigure(ctx, settings.Figure{Tag: "04a1b2", URI: "spotify:album:abc", Name: "Lion"}); err != nil {
		t.Fatalf("UpsertFigure: %v", err)
	}
	if fig, _ = store.GetFigure(ctx, "04a1b2"); fig.Progress != 95*time.Second || fig.Name != "Lion" {
		t.Fatalf("expected progress kept, got %+v", fig)
	}
	if err := store.UpsertFigure(ctx, settings.Figure{Tag: "04a1b2", URI: "local:track:other.mp3"}); err != nil {
		t.Fatalf("UpsertFigure: %v", err)
	}
	if fig, _ = store.GetFigure(ctx, "04a1b2"); fig.Progress != 0 {
		t.Fatalf("expected progress reset on new uri, got %s", fig.Progress)
	}

	list, err := store.ListFigures(ctx)
	if err != nil || len(list) != 1 {
		t.Fatalf("ListFigures: %v len=%d", err, len(list))
	}
	removed, err := store.DeleteFigure(ctx, "04a1b2")
	if err != nil || !removed {
		t.Fatalf("DeleteFigure: removed=%v err=%v", removed, err)
	}
	if fig, _ := store.GetFigure(ctx, "04a1b2"); fig != nil {
		t.Fatalf("expected figure removed, got %+v", fig)
	}
}

func TestFigureValidationAndUnknownTags(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	if err := store.UpsertFigure(ctx, settings.Figure{Tag: " ", URI: "x"}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for blank tag, got %v", err)
	}
	if err := store.UpsertFigure(ctx, settings.Figure{Tag: "a"}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for blank uri, got %v", err)
	}
	if err := store.SaveProgress(ctx, "missing", time.Second, time.Now()); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if removed, err := store.DeleteFigure(ctx, "missing"); err != nil || removed {
		t.Fatalf("expected no-op delete, removed=%v err=%v", removed, err)
	}
}
