package daemonrun

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"figurespeaker/internal/logging"
)

// shutdownSignals are the signals that end the daemon.
var shutdownSignals = []os.Signal{syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT}

// TagStopper is the tag reader half of the teardown.
type TagStopper interface {
	Stop()
}

// EngineStopper is the playback engine half of the teardown.
type EngineStopper interface {
	Stop(ctx context.Context) error
}

// Coordinator tears the reader and the engine down once, whichever of the
// termination signals or an explicit request arrives first.
type Coordinator struct {
	tags    TagStopper
	engine  EngineStopper
	timeout time.Duration
	logger  *slog.Logger

	once sync.Once
	done chan struct{}
	err  error
}

// NewCoordinator builds a coordinator. Either stopper may be nil.
func NewCoordinator(tags TagStopper, engine EngineStopper, timeout time.Duration, logger *slog.Logger) *Coordinator {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Coordinator{
		tags:    tags,
		engine:  engine,
		timeout: timeout,
		logger:  logging.NewComponentLogger(logger, "shutdown"),
		done:    make(chan struct{}),
	}
}

// Run blocks until SIGINT, SIGTERM or SIGQUIT is delivered, requested is
// closed, or ctx ends, then shuts down. It returns nil unless ctx ended
// first.
func (c *Coordinator) Run(ctx context.Context, requested <-chan struct{}) error {
	signals := make(chan os.Signal, 4)
	signal.Notify(signals, shutdownSignals...)
	defer signal.Stop(signals)
	return c.await(ctx, signals, requested)
}

func (c *Coordinator) await(ctx context.Context, signals <-chan os.Signal, requested <-chan struct{}) error {
	var reason string
	select {
	case sig := <-signals:
		reason = sig.String()
	case <-requested:
		reason = "stop request"
	case <-ctx.Done():
		return ctx.Err()
	}

	go c.ignoreRepeats(signals)
	c.Shutdown(reason)
	return nil
}

// ignoreRepeats drains signals that arrive while teardown is in progress.
func (c *Coordinator) ignoreRepeats(signals <-chan os.Signal) {
	for {
		select {
		case sig := <-signals:
			c.logger.Info("shutdown already in progress",
				logging.String("signal", sig.String()),
				logging.Event("shutdown_repeat_signal"),
			)
		case <-c.done:
			return
		}
	}
}

// Shutdown stops the tag reader and the engine concurrently. Only the first
// call does any work; later calls wait for it and return its result.
// Teardown failures are logged, never fatal.
func (c *Coordinator) Shutdown(reason string) error {
	c.once.Do(func() {
		defer close(c.done)
		c.logger.Info("shutting down",
			logging.String("reason", reason),
			logging.Event("shutdown_start"),
		)
		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()

		var g errgroup.Group
		if c.tags != nil {
			g.Go(func() error {
				c.tags.Stop()
				return nil
			})
		}
		if c.engine != nil {
			g.Go(func() error {
				return c.engine.Stop(ctx)
			})
		}
		c.err = g.Wait()
		if c.err != nil {
			logging.WarnWithContext(c.logger, "engine shutdown failed", "shutdown_engine_failed",
				logging.Error(c.err),
				logging.String(logging.FieldErrorHint, "the engine process may need to be killed manually"),
			)
		}
		c.logger.Info("shutdown complete",
			logging.Event("shutdown_complete"),
		)
	})
	<-c.done
	return c.err
}

// Done is closed once teardown has finished.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
