//go:build linux

package mpris

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/quarckster/go-mpris-server/pkg/server"
	"github.com/quarckster/go-mpris-server/pkg/types"

	"figurespeaker/internal/logging"
	"figurespeaker/internal/playback"
	"figurespeaker/internal/services"
	"figurespeaker/internal/session"
)

// Server owns the D-Bus name while started.
type Server struct {
	opts   Options
	logger *slog.Logger

	mu     sync.Mutex
	server *server.Server
}

// New constructs an MPRIS service. Call Start to claim the bus name.
func New(opts Options) *Server {
	opts = opts.withDefaults()
	return &Server{
		opts:   opts,
		logger: logging.NewComponentLogger(opts.Logger, "mpris"),
	}
}

// Start registers org.mpris.MediaPlayer2.<name> and serves it in the background.
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server != nil {
		return nil
	}
	if s.opts.Player == nil || s.opts.Volume == nil {
		return errors.New("mpris requires player and volume")
	}

	root := &rootAdapter{identity: s.opts.Identity}
	player := &playerAdapter{
		player:  s.opts.Player,
		volume:  s.opts.Volume,
		timeout: s.opts.CallTimeout,
		base:    ctx,
		logger:  s.logger,
	}
	srv := server.NewServer(s.opts.Name, root, player)
	s.server = srv
	go func() {
		if err := srv.Listen(); err != nil {
			logging.WarnWithContext(s.logger, "mpris listener stopped", "mpris_listen_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check that a D-Bus session bus is available (DBUS_SESSION_BUS_ADDRESS)"),
				logging.String(logging.FieldImpact, "media keys and playerctl cannot control playback"),
			)
		}
	}()
	s.logger.Info("mpris service registered",
		logging.String("bus_name", "org.mpris.MediaPlayer2."+s.opts.Name),
		logging.Event("mpris_start"),
	)
	return nil
}

// Stop releases the bus name.
func (s *Server) Stop() {
	if s == nil {
		return
	}
	s.mu.Lock()
	srv := s.server
	s.server = nil
	s.mu.Unlock()
	if srv == nil {
		return
	}
	if err := srv.Stop(); err != nil {
		s.logger.Debug("mpris stop failed", logging.Error(err))
	}
}

// Running reports whether the service is registered.
func (s *Server) Running() bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.server != nil
}

type rootAdapter struct {
	identity string
}

func (r *rootAdapter) Raise() error { return nil }

func (r *rootAdapter) Quit() error { return nil }

func (r *rootAdapter) CanQuit() (bool, error) { return false, nil }

func (r *rootAdapter) CanRaise() (bool, error) { return false, nil }

func (r *rootAdapter) HasTrackList() (bool, error) { return false, nil }

func (r *rootAdapter) Identity() (string, error) { return r.identity, nil }

//nolint:revive // Method name required by interface.
func (r *rootAdapter) SupportedUriSchemes() ([]string, error) {
	return []string{"file", "local", "spotify", "http", "https"}, nil
}

func (r *rootAdapter) SupportedMimeTypes() ([]string, error) {
	return []string{"audio/mpeg", "audio/flac", "audio/ogg"}, nil
}

type playerAdapter struct {
	player  Player
	volume  Volume
	timeout time.Duration
	base    context.Context
	logger  *slog.Logger
}

func (p *playerAdapter) ctx() (context.Context, context.CancelFunc) {
	base := p.base
	if base == nil {
		base = context.Background()
	}
	base = services.WithTrigger(base, "mpris")
	return context.WithTimeout(base, p.timeout)
}

func (p *playerAdapter) call(fn func(ctx context.Context) error) error {
	ctx, cancel := p.ctx()
	defer cancel()
	return fn(ctx)
}

func (p *playerAdapter) Next() error { return nil }

func (p *playerAdapter) Previous() error { return nil }

func (p *playerAdapter) Pause() error { return p.call(p.player.Pause) }

func (p *playerAdapter) PlayPause() error { return p.call(p.player.TogglePause) }

func (p *playerAdapter) Stop() error { return p.call(p.player.StopPlayback) }

// Play resumes paused playback. Starting from stopped needs a figure.
func (p *playerAdapter) Play() error {
	return p.call(func(ctx context.Context) error {
		status, err := p.player.PlaybackStatus(ctx)
		if err != nil {
			return err
		}
		if status.State != session.StatePaused {
			logging.Decision(p.logger, "mpris play ignored", "mpris_play", "playback is not paused",
				logging.String("state", string(status.State)))
			return nil
		}
		return p.player.Resume(ctx)
	})
}

func (p *playerAdapter) Seek(offset types.Microseconds) error {
	return p.call(func(ctx context.Context) error {
		status, err := p.player.PlaybackStatus(ctx)
		if err != nil {
			return err
		}
		target := status.Position + time.Duration(offset)*time.Microsecond
		return p.player.Seek(ctx, max(target, 0))
	})
}

func (p *playerAdapter) SetPosition(_ string, position types.Microseconds) error {
	return p.call(func(ctx context.Context) error {
		return p.player.Seek(ctx, time.Duration(position)*time.Microsecond)
	})
}

//nolint:revive // Method name required by interface.
func (p *playerAdapter) OpenUri(_ string) error { return nil }

func (p *playerAdapter) status() playback.Status {
	var status playback.Status
	_ = p.call(func(ctx context.Context) error {
		var err error
		status, err = p.player.PlaybackStatus(ctx)
		return err
	})
	return status
}

func (p *playerAdapter) PlaybackStatus() (types.PlaybackStatus, error) {
	switch p.status().State {
	case session.StatePlaying:
		return types.PlaybackStatusPlaying, nil
	case session.StatePaused:
		return types.PlaybackStatusPaused, nil
	default:
		return types.PlaybackStatusStopped, nil
	}
}

func (p *playerAdapter) Rate() (float64, error) { return 1.0, nil }

func (p *playerAdapter) SetRate(_ float64) error { return nil }

func (p *playerAdapter) Metadata() (types.Metadata, error) {
	req := p.status().NowPlaying
	if req == nil {
		return types.Metadata{}, nil
	}
	title := req.Name
	if title == "" {
		title = req.URI
	}
	return types.Metadata{
		TrackId: dbus.ObjectPath(trackID(req.URI)),
		Title:   title,
	}, nil
}

// Volume reports the persisted volume on MPRIS's 0.0 to 1.0 scale.
func (p *playerAdapter) Volume() (float64, error) {
	var current int
	err := p.call(func(ctx context.Context) error {
		var readErr error
		current, readErr = p.volume.Current(ctx)
		return readErr
	})
	if err != nil {
		return 0, err
	}
	return float64(current) / 100, nil
}

func (p *playerAdapter) SetVolume(value float64) error {
	return p.call(func(ctx context.Context) error {
		_, err := p.volume.SetVolume(ctx, toPercent(value))
		return err
	})
}

func (p *playerAdapter) Position() (int64, error) {
	return p.status().Position.Microseconds(), nil
}

func (p *playerAdapter) MinimumRate() (float64, error) { return 1.0, nil }

func (p *playerAdapter) MaximumRate() (float64, error) { return 1.0, nil }

func (p *playerAdapter) CanGoNext() (bool, error) { return false, nil }

func (p *playerAdapter) CanGoPrevious() (bool, error) { return false, nil }

func (p *playerAdapter) CanPlay() (bool, error) { return p.status().Available, nil }

func (p *playerAdapter) CanPause() (bool, error) { return true, nil }

func (p *playerAdapter) CanSeek() (bool, error) { return true, nil }

func (p *playerAdapter) CanControl() (bool, error) { return true, nil }

func toPercent(value float64) int {
	if math.IsNaN(value) {
		return 0
	}
	return int(math.Round(min(max(value, 0), 1) * 100))
}

func trackID(uri string) string {
	h := fnv.New64a()
	h.Write([]byte(uri))
	return fmt.Sprintf("/org/mpris/MediaPlayer2/Track/%x", h.Sum64())
}
