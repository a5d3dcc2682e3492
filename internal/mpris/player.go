package mpris

import (
	"context"
	"log/slog"
	"time"

	"figurespeaker/internal/playback"
	"figurespeaker/internal/volume"
)

// Player is the playback surface MPRIS drives.
type Player interface {
	TogglePause(ctx context.Context) error
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	StopPlayback(ctx context.Context) error
	Seek(ctx context.Context, position time.Duration) error
	PlaybackStatus(ctx context.Context) (playback.Status, error)
}

// Volume is the volume surface MPRIS drives.
type Volume interface {
	SetVolume(ctx context.Context, volume int) (volume.Result, error)
	Current(ctx context.Context) (int, error)
}

// Options configures the MPRIS service.
type Options struct {
	Name     string
	Identity string
	Player   Player
	Volume   Volume
	// CallTimeout bounds each D-Bus method call.
	CallTimeout time.Duration
	Logger      *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Name == "" {
		o.Name = "figurespeaker"
	}
	if o.Identity == "" {
		o.Identity = "Figurespeaker"
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = 10 * time.Second
	}
	return o
}
