package session

import (
	"context"
	"time"
)

// PlaybackState mirrors the engine transport state.
type PlaybackState string

const (
	StatePlaying PlaybackState = "playing"
	StatePaused  PlaybackState = "paused"
	StateStopped PlaybackState = "stopped"
)

// Item is a library entry resolved from a URI. Albums and playlists expand to
// several track URIs.
type Item struct {
	URI       string
	Name      string
	TrackURIs []string
}

// Controller is a connected remote-control handle to the playback engine.
type Controller interface {
	ClearQueue(ctx context.Context) error
	Lookup(ctx context.Context, uri string) (Item, error)
	Enqueue(ctx context.Context, item Item) error
	SetVolume(ctx context.Context, volume int) error
	Play(ctx context.Context) error
	Seek(ctx context.Context, position time.Duration) error
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Stop(ctx context.Context) error
	Position(ctx context.Context) (time.Duration, error)
	State(ctx context.Context) (PlaybackState, error)
	// Healthy reports whether the underlying connection is still usable.
	Healthy() bool
	Close() error
}

// Dialer connects a new Controller to a ready engine.
type Dialer func(ctx context.Context) (Controller, error)

// Readiness reports whether the engine process is accepting control connections.
type Readiness interface {
	Ready() bool
}
