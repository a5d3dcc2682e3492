package testsupport

import (
	"context"
	"testing"

	"figurespeaker/internal/config"
	"figurespeaker/internal/settings"
)

// MustOpenStore opens a settings.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *settings.Store {
	t.Helper()

	store, err := settings.Open(cfg)
	if err != nil {
		t.Fatalf("settings.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewFigure stores a figure for tests using the provided store.
func NewFigure(t testing.TB, store *settings.Store, tag, uri, playMode string) *settings.Figure {
	t.Helper()

	ctx := context.Background()
	if err := store.UpsertFigure(ctx, settings.Figure{Tag: tag, URI: uri, PlayMode: playMode}); err != nil {
		t.Fatalf("store.UpsertFigure: %v", err)
	}
	fig, err := store.GetFigure(ctx, tag)
	if err != nil || fig == nil {
		t.Fatalf("store.GetFigure: %v", err)
	}
	return fig
}
