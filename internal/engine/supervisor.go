package engine

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"figurespeaker/internal/config"
	"figurespeaker/internal/logging"
)

// State describes the lifecycle phase of the supervised engine.
type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateReady    State = "ready"
	StateStopping State = "stopping"
)

const defaultAbortTimeout = 10 * time.Second

// Status is a point-in-time snapshot of the supervised engine.
type Status struct {
	State     State
	PID       int
	StartedAt time.Time
	Binary    string
}

// Options configures a Supervisor.
type Options struct {
	Binary       string
	Args         []string
	ReadyMarker  string
	ReadyTimeout time.Duration
	StopTimeout  time.Duration
	Spawner      Spawner
	Logger       *slog.Logger
}

// OptionsFromConfig maps the engine configuration section onto supervisor options.
func OptionsFromConfig(cfg *config.Config, logger *slog.Logger) Options {
	return Options{
		Binary:       cfg.Engine.Binary,
		Args:         append([]string(nil), cfg.Engine.Args...),
		ReadyMarker:  cfg.Engine.ReadyMarker,
		ReadyTimeout: cfg.Engine.ReadyTimeoutDuration(),
		StopTimeout:  cfg.Engine.StopTimeoutDuration(),
		Logger:       logger,
	}
}

// Supervisor owns at most one engine process at a time.
type Supervisor struct {
	binary       string
	args         []string
	marker       string
	readyTimeout time.Duration
	stopTimeout  time.Duration
	spawner      Spawner
	logger       *slog.Logger

	mu        sync.Mutex
	current   *instance
	observers []func(State)
}

type instance struct {
	proc      Process
	startedAt time.Time
	ready     chan struct{}
	readyOnce sync.Once
	isReady   atomic.Bool
	stopping  atomic.Bool
	// done is closed after the slot has been released.
	done chan struct{}
}

func (i *instance) markReady() {
	i.readyOnce.Do(func() {
		i.isReady.Store(true)
		close(i.ready)
	})
}

// New constructs a supervisor. A nil spawner launches real processes.
func New(opts Options) *Supervisor {
	spawner := opts.Spawner
	if spawner == nil {
		spawner = ExecSpawner{}
	}
	return &Supervisor{
		binary:       opts.Binary,
		args:         append([]string(nil), opts.Args...),
		marker:       opts.ReadyMarker,
		readyTimeout: opts.ReadyTimeout,
		stopTimeout:  opts.StopTimeout,
		spawner:      spawner,
		logger:       logging.NewComponentLogger(opts.Logger, "engine"),
	}
}

// Observe registers fn to receive lifecycle transitions. Callbacks run on
// supervisor goroutines and must not block.
func (s *Supervisor) Observe(fn func(State)) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.observers = append(s.observers, fn)
	s.mu.Unlock()
}

func (s *Supervisor) notify(state State) {
	s.mu.Lock()
	observers := append([]func(State){}, s.observers...)
	s.mu.Unlock()
	for _, fn := range observers {
		fn(state)
	}
}

// Start launches the engine and blocks until it reports readiness. A second
// Start while a process occupies the slot fails with ErrAlreadyRunning.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.current != nil {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	proc, err := s.spawner.Spawn(s.binary, s.args)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("spawn engine %s: %w", s.binary, err)
	}
	inst := &instance{
		proc:      proc,
		startedAt: time.Now(),
		ready:     make(chan struct{}),
		done:      make(chan struct{}),
	}
	s.current = inst
	s.mu.Unlock()

	s.logger.Info("engine starting",
		logging.String("binary", s.binary),
		logging.Int("pid", proc.PID()),
		logging.Event("engine_start"),
	)
	s.notify(StateStarting)
	go s.scan(inst)
	go s.monitor(inst)

	var timeout <-chan time.Time
	if s.readyTimeout > 0 {
		timer := time.NewTimer(s.readyTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-inst.ready:
		select {
		case <-inst.done:
			return exitError(inst)
		default:
		}
		s.logger.Info("engine ready",
			logging.Int("pid", proc.PID()),
			logging.Duration("startup", time.Since(inst.startedAt)),
			logging.Event("engine_ready"),
		)
		s.notify(StateReady)
		return nil
	case <-inst.done:
		return exitError(inst)
	case <-timeout:
		s.abort(inst)
		return fmt.Errorf("%w after %s", ErrReadyTimeout, s.readyTimeout)
	case <-ctx.Done():
		s.abort(inst)
		return ctx.Err()
	}
}

func exitError(inst *instance) error {
	if err := inst.proc.ExitErr(); err != nil {
		return fmt.Errorf("%w: %w", ErrExited, err)
	}
	return ErrExited
}

// scan watches engine output for the readiness marker. Output keeps being
// drained after readiness so the process never blocks on a full pipe.
func (s *Supervisor) scan(inst *instance) {
	out := inst.proc.Output()
	scanner := bufio.NewScanner(out)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		s.logger.Debug("engine output", logging.String("line", line))
		if s.marker != "" && strings.Contains(line, s.marker) {
			inst.markReady()
		}
	}
	if err := scanner.Err(); err != nil {
		s.logger.Debug("engine output scan stopped", logging.Error(err))
		_, _ = io.Copy(io.Discard, out)
	}
}

func (s *Supervisor) monitor(inst *instance) {
	<-inst.proc.Done()

	s.mu.Lock()
	if s.current == inst {
		s.current = nil
	}
	s.mu.Unlock()

	exitErr := inst.proc.ExitErr()
	if inst.stopping.Load() {
		s.logger.Info("engine stopped",
			logging.Int("pid", inst.proc.PID()),
			logging.Event("engine_stop"),
		)
	} else {
		attrs := []logging.Attr{
			logging.Int("pid", inst.proc.PID()),
			logging.Bool("was_ready", inst.isReady.Load()),
			logging.String(logging.FieldErrorHint, "check engine output at debug level or restart the engine"),
			logging.String(logging.FieldImpact, "playback unavailable until the engine is started again"),
		}
		if exitErr != nil {
			attrs = append(attrs, logging.Error(exitErr))
		}
		logging.WarnWithContext(s.logger, "engine exited unexpectedly", "engine_exit", attrs...)
	}
	close(inst.done)
	s.notify(StateStopped)
}

// Stop terminates the running engine and waits for it to exit. It is a no-op
// when no process is running.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.mu.Lock()
	inst := s.current
	s.mu.Unlock()
	if inst == nil {
		logging.Decision(s.logger, "engine stop skipped", "engine_stop", "no engine process running")
		return nil
	}
	return s.terminate(ctx, inst)
}

func (s *Supervisor) terminate(ctx context.Context, inst *instance) error {
	if inst.stopping.CompareAndSwap(false, true) {
		s.notify(StateStopping)
	}
	pid := inst.proc.PID()
	if err := inst.proc.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
		inst.stopping.Store(false)
		return fmt.Errorf("terminate engine (pid %d): %w", pid, err)
	}

	var killAfter <-chan time.Time
	if s.stopTimeout > 0 {
		timer := time.NewTimer(s.stopTimeout)
		defer timer.Stop()
		killAfter = timer.C
	}
	for {
		select {
		case <-inst.done:
			return nil
		case <-killAfter:
			killAfter = nil
			logging.WarnWithContext(s.logger, "engine ignored terminate; killing", "engine_kill",
				logging.Int("pid", pid),
				logging.Duration("stop_timeout", s.stopTimeout),
				logging.String(logging.FieldErrorHint, "raise engine.stop_timeout if shutdown is slow"),
			)
			if err := inst.proc.Signal(os.Kill); err != nil && !errors.Is(err, os.ErrProcessDone) {
				return fmt.Errorf("kill engine (pid %d): %w", pid, err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// abort tears down a process that failed to become ready.
func (s *Supervisor) abort(inst *instance) {
	timeout := s.stopTimeout
	if timeout <= 0 {
		timeout = defaultAbortTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout*2)
	defer cancel()
	if err := s.terminate(ctx, inst); err != nil {
		logging.WarnWithContext(s.logger, "engine abort failed", "engine_abort",
			logging.Int("pid", inst.proc.PID()),
			logging.Error(err),
		)
		_ = inst.proc.Signal(os.Kill)
	}
}

// Restart stops the engine and starts a new one. A failed stop aborts the
// restart without attempting to start.
func (s *Supervisor) Restart(ctx context.Context) error {
	if err := s.Stop(ctx); err != nil {
		return fmt.Errorf("restart engine: %w", err)
	}
	return s.Start(ctx)
}

// Ready reports whether a live engine has emitted its readiness marker.
func (s *Supervisor) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil && s.current.isReady.Load() && !s.current.stopping.Load()
}

// Status returns a snapshot of the supervised process.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	status := Status{State: StateStopped, Binary: s.binary}
	inst := s.current
	if inst == nil {
		return status
	}
	status.PID = inst.proc.PID()
	status.StartedAt = inst.startedAt
	switch {
	case inst.stopping.Load():
		status.State = StateStopping
	case inst.isReady.Load():
		status.State = StateReady
	default:
		status.State = StateStarting
	}
	return status
}
