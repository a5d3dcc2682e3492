package volume

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"figurespeaker/internal/logging"
	"figurespeaker/internal/services"
	"figurespeaker/internal/session"
	"figurespeaker/internal/settings"
)

// Settings is the persisted volume state the controller reads and writes.
type Settings interface {
	CurrentVolume(ctx context.Context) (int, error)
	MinVolume(ctx context.Context) (int, error)
	MaxVolume(ctx context.Context) (int, error)
	SetCurrentVolume(ctx context.Context, volume int) error
}

// Swapper is implemented by stores that can compare-and-swap the current volume.
type Swapper interface {
	SwapCurrentVolume(ctx context.Context, expected, next int) (bool, error)
}

// BoundsUpdater is implemented by stores that can replace the whole tuple.
type BoundsUpdater interface {
	UpdateVolumeSettings(ctx context.Context, v settings.VolumeSettings) error
}

// SessionSource hands out the active engine controller.
type SessionSource interface {
	Acquire(ctx context.Context) (session.Controller, bool, error)
}

// Options configures a Controller.
type Options struct {
	Settings Settings
	Session  SessionSource
	Interval int
	// ClampToBounds lands on the bound instead of refusing a step that would cross it.
	ClampToBounds bool
	Logger        *slog.Logger
}

// Result describes the outcome of a volume change.
type Result struct {
	Previous int    `json:"previous"`
	Current  int    `json:"current"`
	Changed  bool   `json:"changed"`
	Reason   string `json:"reason,omitempty"`
}

// Controller serializes volume changes and keeps store and engine in step.
type Controller struct {
	settings Settings
	session  SessionSource
	interval int
	clamp    bool
	logger   *slog.Logger

	mu sync.Mutex
}

// New constructs a volume controller.
func New(opts Options) *Controller {
	interval := opts.Interval
	if interval <= 0 {
		interval = 5
	}
	return &Controller{
		settings: opts.Settings,
		session:  opts.Session,
		interval: interval,
		clamp:    opts.ClampToBounds,
		logger:   logging.NewComponentLogger(opts.Logger, "volume"),
	}
}

// OnVolumeChange moves the volume one interval in direction. Without an
// engine session it does nothing and touches no settings.
func (c *Controller) OnVolumeChange(ctx context.Context, direction Direction) (Result, error) {
	if direction != Increase && direction != Decrease {
		return Result{}, services.Wrap(services.ErrValidation, "volume", "change", "unknown direction "+direction.String(), nil)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	logger := logging.WithContext(ctx, c.logger)
	ctrl, ok, err := c.session.Acquire(ctx)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		logging.Decision(logger, "volume change skipped", "volume_change", "no engine session",
			logging.String("direction", direction.String()))
		return Result{Reason: "no engine session"}, nil
	}

	current, err := c.settings.CurrentVolume(ctx)
	if err != nil {
		return Result{}, err
	}
	var bound, next int
	if direction == Increase {
		if bound, err = c.settings.MaxVolume(ctx); err != nil {
			return Result{}, err
		}
		next = current + c.interval
	} else {
		if bound, err = c.settings.MinVolume(ctx); err != nil {
			return Result{}, err
		}
		next = current - c.interval
	}

	result := Result{Previous: current, Current: current}
	crosses := (direction == Increase && next > bound) || (direction == Decrease && next < bound)
	if crosses {
		canClamp := (direction == Increase && current < bound) || (direction == Decrease && current > bound)
		if !c.clamp || !canClamp {
			result.Reason = "volume bound reached"
			logging.Decision(logger, "volume change refused", "volume_bound", result.Reason,
				logging.String("direction", direction.String()),
				logging.Int("current", current),
				logging.Int("bound", bound),
			)
			return result, nil
		}
		next = bound
	}

	// The engine is set before the store so a failed engine call leaves the
	// persisted volume where it was.
	if err := ctrl.SetVolume(ctx, next); err != nil {
		return Result{}, services.Wrap(services.ErrProtocol, "volume", "apply", "set engine volume", err)
	}
	swapped, err := c.persist(ctx, current, next)
	if err != nil {
		c.restore(ctx, ctrl, current)
		return Result{}, err
	}
	if !swapped {
		// Another writer owns the stored value; put the engine back in step.
		if stored, err := c.settings.CurrentVolume(ctx); err == nil {
			c.restore(ctx, ctrl, stored)
			result.Current = stored
		}
		result.Reason = "volume changed concurrently"
		logging.Decision(logger, "volume change dropped", "volume_race", result.Reason,
			logging.Int("expected", current))
		return result, nil
	}

	result.Current = next
	result.Changed = true
	logger.Info("volume changed",
		logging.String("direction", direction.String()),
		logging.Int("previous", current),
		logging.Int("volume", next),
		logging.Event("volume_change"),
	)
	return result, nil
}

// restore sets the engine back to volume after a change could not be stored.
func (c *Controller) restore(ctx context.Context, ctrl session.Controller, volume int) {
	if err := ctrl.SetVolume(ctx, volume); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, c.logger), "engine volume out of step with settings", "volume_restore_failed",
			logging.Int("volume", volume),
			logging.Error(err),
			logging.String(logging.FieldImpact, "playback volume differs from the stored volume until the next change"),
		)
	}
}

func (c *Controller) persist(ctx context.Context, current, next int) (bool, error) {
	if swapper, ok := c.settings.(Swapper); ok {
		return swapper.SwapCurrentVolume(ctx, current, next)
	}
	return true, c.settings.SetCurrentVolume(ctx, next)
}

// SetVolume stores an absolute volume clamped to the persisted bounds and
// applies it when an engine session exists.
func (c *Controller) SetVolume(ctx context.Context, volume int) (Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	current, err := c.settings.CurrentVolume(ctx)
	if err != nil {
		return Result{}, err
	}
	minVolume, err := c.settings.MinVolume(ctx)
	if err != nil {
		return Result{}, err
	}
	maxVolume, err := c.settings.MaxVolume(ctx)
	if err != nil {
		return Result{}, err
	}
	next := min(max(volume, minVolume), maxVolume)
	result := Result{Previous: current, Current: current}
	if next == current {
		result.Reason = "volume unchanged"
		return result, nil
	}
	if err := c.apply(ctx, next); err != nil {
		return result, err
	}
	if err := c.settings.SetCurrentVolume(ctx, next); err != nil {
		return Result{}, err
	}
	result.Current = next
	result.Changed = true
	logging.WithContext(ctx, c.logger).Info("volume set",
		logging.Int("previous", current),
		logging.Int("volume", next),
		logging.Event("volume_set"),
	)
	return result, nil
}

// UpdateSettings replaces the persisted tuple and applies the new current
// volume when an engine session exists.
func (c *Controller) UpdateSettings(ctx context.Context, v settings.VolumeSettings) error {
	updater, ok := c.settings.(BoundsUpdater)
	if !ok {
		return errors.New("volume settings store does not support updates")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := updater.UpdateVolumeSettings(ctx, v); err != nil {
		return err
	}
	logging.WithContext(ctx, c.logger).Info("volume settings updated",
		logging.Int("min", v.Min),
		logging.Int("max", v.Max),
		logging.Int("current", v.Current),
		logging.Event("volume_settings"),
	)
	return c.apply(ctx, v.Current)
}

func (c *Controller) apply(ctx context.Context, volume int) error {
	ctrl, ok, err := c.session.Acquire(ctx)
	if err != nil || !ok {
		return err
	}
	if err := ctrl.SetVolume(ctx, volume); err != nil {
		return services.Wrap(services.ErrProtocol, "volume", "apply", "set engine volume", err)
	}
	return nil
}

// Current returns the persisted current volume.
func (c *Controller) Current(ctx context.Context) (int, error) {
	return c.settings.CurrentVolume(ctx)
}
