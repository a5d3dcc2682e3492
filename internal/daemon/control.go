package daemon

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"figurespeaker/internal/logging"
	"figurespeaker/internal/playback"
	"figurespeaker/internal/rfid"
	"figurespeaker/internal/services"
	"figurespeaker/internal/settings"
	"figurespeaker/internal/volume"
)

// Trigger annotates ctx with the request source and a fresh correlation ID.
func Trigger(ctx context.Context, source string) context.Context {
	ctx = services.WithTrigger(ctx, source)
	return services.WithRequestID(ctx, uuid.NewString())
}

func validationError(op, msg string) error {
	return services.Wrap(services.ErrValidation, "daemon", op, msg, nil)
}

func (d *Daemon) tagLoop(ctx context.Context, events <-chan rfid.Event) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			d.handleTag(ctx, ev)
		}
	}
}

func (d *Daemon) handleTag(ctx context.Context, ev rfid.Event) {
	ctx = services.WithTag(Trigger(ctx, "tag"), ev.Tag)
	logger := logging.WithContext(ctx, d.logger)

	switch ev.Kind {
	case rfid.TagPlaced:
		if _, err := d.PlayTag(ctx, ev.Tag); err != nil {
			logging.WarnWithContext(logger, "figure playback failed", "tag_play_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check the figure URI and the engine log"),
				logging.String(logging.FieldImpact, "the figure stays silent until it is placed again"),
			)
		}
	case rfid.TagRemoved:
		if current := d.player.NowPlaying(); current != nil && current.Tag != "" && current.Tag != ev.Tag {
			logging.Decision(logger, "tag removal ignored", "tag_removed", "another figure is playing",
				logging.String("playing_tag", current.Tag))
			return
		}
		if err := d.StopPlayback(ctx); err != nil {
			logging.WarnWithContext(logger, "stop on figure removal failed", "tag_stop_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check the engine log"),
				logging.String(logging.FieldImpact, "playback continues and progress was not saved"),
			)
		}
	}
}

// PlayTag resolves tag to its figure and plays it. Unknown tags return a nil
// request and play nothing.
func (d *Daemon) PlayTag(ctx context.Context, tag string) (*playback.Request, error) {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return nil, validationError("play", "tag is required")
	}
	ctx = services.WithTag(ctx, tag)
	req, err := d.resolver.Resolve(ctx, tag)
	if err != nil {
		return nil, err
	}
	if err := d.player.PlayItem(ctx, req); err != nil {
		return req, err
	}
	return req, nil
}

// PlayURI plays an engine URI directly, without a figure.
func (d *Daemon) PlayURI(ctx context.Context, uri string, position time.Duration) (*playback.Request, error) {
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return nil, validationError("play", "uri is required")
	}
	if position < 0 {
		return nil, validationError("play", "position must not be negative")
	}
	req := &playback.Request{URI: uri, Position: position}
	return req, d.player.PlayItem(ctx, req)
}

// StopPlayback stops the engine and remembers the position for the figure
// that was playing.
func (d *Daemon) StopPlayback(ctx context.Context) error {
	stopped, position, err := d.player.Stop(ctx)
	if err != nil {
		return err
	}
	if stopped == nil || stopped.Tag == "" {
		return nil
	}
	if err := d.store.SaveProgress(ctx, stopped.Tag, position, time.Now()); err != nil {
		if errors.Is(err, services.ErrNotFound) {
			logging.Decision(logging.WithContext(ctx, d.logger), "progress not saved", "progress_save", "figure was deleted",
				logging.Tag(stopped.Tag))
			return nil
		}
		return err
	}
	return nil
}

func (d *Daemon) TogglePause(ctx context.Context) error {
	return d.player.TogglePause(ctx)
}

func (d *Daemon) Pause(ctx context.Context) error {
	return d.player.Pause(ctx)
}

func (d *Daemon) Resume(ctx context.Context) error {
	return d.player.Resume(ctx)
}

func (d *Daemon) Wind(ctx context.Context, direction playback.WindDirection) error {
	return d.player.Wind(ctx, direction)
}

func (d *Daemon) Seek(ctx context.Context, position time.Duration) error {
	return d.player.Seek(ctx, position)
}

// PlaybackStatus reports the engine transport state.
func (d *Daemon) PlaybackStatus(ctx context.Context) (playback.Status, error) {
	return d.player.Status(ctx)
}

// ChangeVolume applies one volume button press.
func (d *Daemon) ChangeVolume(ctx context.Context, direction volume.Direction) (volume.Result, error) {
	return d.volume.OnVolumeChange(ctx, direction)
}

// SetVolume stores an absolute volume within the persisted bounds.
func (d *Daemon) SetVolume(ctx context.Context, level int) (volume.Result, error) {
	return d.volume.SetVolume(ctx, level)
}

// VolumeSettings returns the persisted volume tuple.
func (d *Daemon) VolumeSettings(ctx context.Context) (settings.VolumeSettings, error) {
	return d.store.VolumeSettings(ctx)
}

// UpdateVolumeSettings replaces the persisted volume tuple and applies it.
func (d *Daemon) UpdateVolumeSettings(ctx context.Context, v settings.VolumeSettings) (settings.VolumeSettings, error) {
	if err := d.volume.UpdateSettings(ctx, v); err != nil {
		return settings.VolumeSettings{}, err
	}
	return d.store.VolumeSettings(ctx)
}

func (d *Daemon) ListFigures(ctx context.Context) ([]*settings.Figure, error) {
	return d.store.ListFigures(ctx)
}

// SaveFigure creates or replaces a figure and returns the stored row.
func (d *Daemon) SaveFigure(ctx context.Context, fig settings.Figure) (*settings.Figure, error) {
	if err := d.store.UpsertFigure(ctx, fig); err != nil {
		return nil, err
	}
	return d.store.GetFigure(ctx, strings.TrimSpace(fig.Tag))
}

// DeleteFigure removes a figure. Removing an unknown tag is ErrNotFound.
func (d *Daemon) DeleteFigure(ctx context.Context, tag string) error {
	removed, err := d.store.DeleteFigure(ctx, tag)
	if err != nil {
		return err
	}
	if !removed {
		return services.Wrap(services.ErrNotFound, "daemon", "delete figure", "unknown tag "+tag, nil)
	}
	return nil
}

// StartEngine starts the engine under the daemon's lifetime. If ctx ends
// first the caller stops waiting but the start continues.
func (d *Daemon) StartEngine(ctx context.Context) error {
	return d.detached(ctx, "start", d.supervisor.Start)
}

func (d *Daemon) StopEngine(ctx context.Context) error {
	return d.supervisor.Stop(ctx)
}

// RestartEngine restarts the engine under the daemon's lifetime, like
// StartEngine.
func (d *Daemon) RestartEngine(ctx context.Context) error {
	return d.detached(ctx, "restart", d.supervisor.Restart)
}

// detached runs op with ctx's values but the daemon's cancellation, and
// waits for it until ctx ends.
func (d *Daemon) detached(ctx context.Context, action string, op func(context.Context) error) error {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stopOnShutdown := func() bool { return true }
	if life := d.lifetime(); life != nil {
		stopOnShutdown = context.AfterFunc(life, cancel)
	}
	done := make(chan error, 1)
	go func() {
		defer cancel()
		defer stopOnShutdown()
		done <- op(runCtx)
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		logging.WithContext(ctx, d.logger).Info("engine "+action+" continues in background",
			logging.Event("engine_"+action+"_detached"),
		)
		return fmt.Errorf("engine %s still in progress: %w", action, ctx.Err())
	}
}
