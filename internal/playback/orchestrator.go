package playback

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"figurespeaker/internal/logging"
	"figurespeaker/internal/services"
	"figurespeaker/internal/session"
)

// SessionSource hands out the active engine controller.
type SessionSource interface {
	Acquire(ctx context.Context) (session.Controller, bool, error)
}

// VolumeSource supplies the persisted current volume applied before play.
type VolumeSource interface {
	CurrentVolume(ctx context.Context) (int, error)
}

// Options configures an Orchestrator.
type Options struct {
	Session      SessionSource
	Volume       VolumeSource
	WindInterval time.Duration
	// StepTimeout bounds each engine round-trip. Zero disables it.
	StepTimeout time.Duration
	Logger      *slog.Logger
}

// Orchestrator runs playback operations one at a time against the engine.
type Orchestrator struct {
	session      SessionSource
	volume       VolumeSource
	windInterval time.Duration
	stepTimeout  time.Duration
	logger       *slog.Logger

	gate chan struct{}

	mu         sync.Mutex
	nowPlaying *Request
}

type step struct {
	name string
	run  func(ctx context.Context) error
}

// Status is a snapshot of engine transport state.
type Status struct {
	Available  bool                  `json:"available"`
	State      session.PlaybackState `json:"state,omitempty"`
	Position   time.Duration         `json:"position"`
	NowPlaying *Request              `json:"now_playing,omitempty"`
}

// New constructs an orchestrator.
func New(opts Options) *Orchestrator {
	wind := opts.WindInterval
	if wind <= 0 {
		wind = 500 * time.Millisecond
	}
	return &Orchestrator{
		session:      opts.Session,
		volume:       opts.Volume,
		windInterval: wind,
		stepTimeout:  opts.StepTimeout,
		logger:       logging.NewComponentLogger(opts.Logger, "playback"),
		gate:         make(chan struct{}, 1),
	}
}

func (o *Orchestrator) enter(ctx context.Context) error {
	select {
	case o.gate <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) leave() {
	<-o.gate
}

// acquire returns the controller or ok=false when there is no engine session.
func (o *Orchestrator) acquire(ctx context.Context, operation string) (session.Controller, bool, error) {
	ctrl, ok, err := o.session.Acquire(ctx)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		logging.Decision(logging.WithContext(ctx, o.logger), operation+" skipped", "playback_"+operation, "no engine session")
		return nil, false, nil
	}
	return ctrl, true, nil
}

func (o *Orchestrator) run(ctx context.Context, steps []step) error {
	logger := logging.WithContext(ctx, o.logger)
	for _, st := range steps {
		stepCtx, cancel := ctx, context.CancelFunc(func() {})
		if o.stepTimeout > 0 {
			stepCtx, cancel = context.WithTimeout(ctx, o.stepTimeout)
		}
		err := st.run(stepCtx)
		cancel()
		if err != nil {
			logging.WarnWithContext(logger, "playback step failed", "playback_step_failed",
				logging.String("step", st.name),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check the engine is running and the URI exists"),
				logging.String(logging.FieldImpact, "remaining playback steps were skipped"),
			)
			return &StepError{Step: st.name, Err: err}
		}
		logger.Debug("playback step complete", logging.String("step", st.name))
	}
	return nil
}

// PlayItem clears the queue, resolves and enqueues req.URI, applies the
// persisted volume, starts playback, and seeks when req.Position > 0. A nil
// request or a missing engine session is a no-op.
func (o *Orchestrator) PlayItem(ctx context.Context, req *Request) error {
	if req == nil {
		logging.Decision(logging.WithContext(ctx, o.logger), "play skipped", "playback_play", "nothing to play")
		return nil
	}
	uri := strings.TrimSpace(req.URI)
	if uri == "" {
		return services.Wrap(services.ErrValidation, "playback", "play", "request has no uri", nil)
	}
	if err := o.enter(ctx); err != nil {
		return err
	}
	defer o.leave()

	ctrl, ok, err := o.acquire(ctx, "play")
	if err != nil || !ok {
		return err
	}

	var item session.Item
	steps := []step{
		{name: "clear", run: ctrl.ClearQueue},
		{name: "lookup", run: func(ctx context.Context) error {
			var lookupErr error
			item, lookupErr = ctrl.Lookup(ctx, uri)
			return lookupErr
		}},
		{name: "add", run: func(ctx context.Context) error { return ctrl.Enqueue(ctx, item) }},
		{name: "volume", run: func(ctx context.Context) error {
			volume, volErr := o.volume.CurrentVolume(ctx)
			if volErr != nil {
				return volErr
			}
			return ctrl.SetVolume(ctx, volume)
		}},
		{name: "play", run: ctrl.Play},
	}
	if req.Position > 0 {
		steps = append(steps, step{name: "seek", run: func(ctx context.Context) error {
			return ctrl.Seek(ctx, req.Position)
		}})
	}
	if err := o.run(ctx, steps); err != nil {
		return err
	}

	playing := *req
	playing.URI = uri
	if playing.Name == "" {
		playing.Name = item.Name
	}
	o.mu.Lock()
	o.nowPlaying = &playing
	o.mu.Unlock()

	logging.WithContext(ctx, o.logger).Info("playback started",
		logging.URI(uri),
		logging.Duration("position", req.Position),
		logging.Int("tracks", len(item.TrackURIs)),
		logging.Event("playback_start"),
	)
	return nil
}

// Stop captures the current position and stops playback. It returns the
// request that was playing, if any, together with that position.
func (o *Orchestrator) Stop(ctx context.Context) (*Request, time.Duration, error) {
	if err := o.enter(ctx); err != nil {
		return nil, 0, err
	}
	defer o.leave()

	ctrl, ok, err := o.acquire(ctx, "stop")
	if err != nil || !ok {
		return nil, 0, err
	}

	var position time.Duration
	steps := []step{
		{name: "position", run: func(ctx context.Context) error {
			var posErr error
			position, posErr = ctrl.Position(ctx)
			return posErr
		}},
		{name: "stop", run: ctrl.Stop},
	}
	if err := o.run(ctx, steps); err != nil {
		return nil, 0, err
	}

	o.mu.Lock()
	stopped := o.nowPlaying
	o.nowPlaying = nil
	o.mu.Unlock()

	attrs := []logging.Attr{
		logging.Duration("position", position),
		logging.Event("playback_stop"),
	}
	if stopped != nil {
		attrs = append(attrs, logging.URI(stopped.URI))
	}
	logging.WithContext(ctx, o.logger).Info("playback stopped", logging.Args(attrs...)...)
	return stopped, position, nil
}

// Wind moves the playback position by the configured interval. Rewinding
// never goes below zero.
func (o *Orchestrator) Wind(ctx context.Context, direction WindDirection) error {
	if err := o.enter(ctx); err != nil {
		return err
	}
	defer o.leave()

	ctrl, ok, err := o.acquire(ctx, "wind")
	if err != nil || !ok {
		return err
	}

	var position time.Duration
	return o.run(ctx, []step{
		{name: "position", run: func(ctx context.Context) error {
			var posErr error
			position, posErr = ctrl.Position(ctx)
			return posErr
		}},
		{name: "seek", run: func(ctx context.Context) error {
			target := position + o.windInterval
			if direction == WindRewind {
				target = max(position-o.windInterval, 0)
			}
			logging.WithContext(ctx, o.logger).Debug("winding",
				logging.String("direction", direction.String()),
				logging.Duration("from", position),
				logging.Duration("to", target),
			)
			return ctrl.Seek(ctx, target)
		}},
	})
}

// Seek moves playback to an absolute position.
func (o *Orchestrator) Seek(ctx context.Context, position time.Duration) error {
	if err := o.enter(ctx); err != nil {
		return err
	}
	defer o.leave()

	ctrl, ok, err := o.acquire(ctx, "seek")
	if err != nil || !ok {
		return err
	}
	position = max(position, 0)
	return o.run(ctx, []step{{name: "seek", run: func(ctx context.Context) error {
		return ctrl.Seek(ctx, position)
	}}})
}

// TogglePause pauses while playing and resumes while paused. It does nothing
// when the engine is stopped.
func (o *Orchestrator) TogglePause(ctx context.Context) error {
	if err := o.enter(ctx); err != nil {
		return err
	}
	defer o.leave()

	ctrl, ok, err := o.acquire(ctx, "pause")
	if err != nil || !ok {
		return err
	}

	var state session.PlaybackState
	if err := o.run(ctx, []step{{name: "state", run: func(ctx context.Context) error {
		var stateErr error
		state, stateErr = ctrl.State(ctx)
		return stateErr
	}}}); err != nil {
		return err
	}

	switch state {
	case session.StatePlaying:
		return o.run(ctx, []step{{name: "pause", run: ctrl.Pause}})
	case session.StatePaused:
		return o.run(ctx, []step{{name: "resume", run: ctrl.Resume}})
	default:
		logging.Decision(logging.WithContext(ctx, o.logger), "pause toggle skipped", "playback_pause", "engine is stopped")
		return nil
	}
}

// Pause pauses playback.
func (o *Orchestrator) Pause(ctx context.Context) error {
	return o.single(ctx, "pause", func(ctrl session.Controller) step {
		return step{name: "pause", run: ctrl.Pause}
	})
}

// Resume resumes paused playback.
func (o *Orchestrator) Resume(ctx context.Context) error {
	return o.single(ctx, "resume", func(ctrl session.Controller) step {
		return step{name: "resume", run: ctrl.Resume}
	})
}

func (o *Orchestrator) single(ctx context.Context, operation string, build func(session.Controller) step) error {
	if err := o.enter(ctx); err != nil {
		return err
	}
	defer o.leave()

	ctrl, ok, err := o.acquire(ctx, operation)
	if err != nil || !ok {
		return err
	}
	return o.run(ctx, []step{build(ctrl)})
}

// NowPlaying returns the last request started successfully, or nil.
func (o *Orchestrator) NowPlaying() *Request {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.nowPlaying == nil {
		return nil
	}
	req := *o.nowPlaying
	return &req
}

// Status reports the engine transport state without taking the gate.
func (o *Orchestrator) Status(ctx context.Context) (Status, error) {
	status := Status{NowPlaying: o.NowPlaying()}
	ctrl, ok, err := o.session.Acquire(ctx)
	if err != nil {
		return status, err
	}
	if !ok {
		return status, nil
	}
	status.Available = true
	if status.State, err = ctrl.State(ctx); err != nil {
		return status, services.Wrap(services.ErrProtocol, "playback", "status", "read state", err)
	}
	if status.Position, err = ctrl.Position(ctx); err != nil {
		return status, services.Wrap(services.ErrProtocol, "playback", "status", "read position", err)
	}
	return status, nil
}
