package session

import (
	"context"
	"log/slog"
	"sync"

	"figurespeaker/internal/logging"
	"figurespeaker/internal/services"
)

// Session lazily materializes a Controller once the engine is ready and
// forgets it when the engine goes away.
type Session struct {
	readiness Readiness
	dial      Dialer
	logger    *slog.Logger

	mu   sync.Mutex
	ctrl Controller
}

// New constructs a session bound to the supplied readiness source.
func New(readiness Readiness, dial Dialer, logger *slog.Logger) *Session {
	return &Session{
		readiness: readiness,
		dial:      dial,
		logger:    logging.NewComponentLogger(logger, "session"),
	}
}

// Available reports whether the engine is ready for control connections.
func (s *Session) Available() bool {
	return s != nil && s.readiness != nil && s.readiness.Ready()
}

// Acquire returns the active controller. ok is false with a nil error when
// the engine is not ready; callers treat that as a quiet no-op.
func (s *Session) Acquire(ctx context.Context) (Controller, bool, error) {
	if !s.Available() {
		s.Reset()
		return nil, false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctrl != nil {
		if s.ctrl.Healthy() {
			return s.ctrl, true, nil
		}
		s.logger.Info("dropping unhealthy engine connection",
			logging.Event("session_reset"),
		)
		_ = s.ctrl.Close()
		s.ctrl = nil
	}
	if s.dial == nil {
		return nil, false, services.Wrap(services.ErrProtocol, "session", "dial", "no dialer configured", nil)
	}
	ctrl, err := s.dial(ctx)
	if err != nil {
		return nil, false, services.Wrap(services.ErrProtocol, "session", "dial", "connect to engine", err)
	}
	s.logger.Info("engine connection established",
		logging.Event("session_open"),
	)
	s.ctrl = ctrl
	return ctrl, true, nil
}

// Reset closes and forgets the cached controller.
func (s *Session) Reset() {
	if s == nil {
		return
	}
	s.mu.Lock()
	ctrl := s.ctrl
	s.ctrl = nil
	s.mu.Unlock()
	if ctrl == nil {
		return
	}
	if err := ctrl.Close(); err != nil {
		s.logger.Debug("engine connection close failed", logging.Error(err))
	}
	s.logger.Info("engine connection closed",
		logging.Event("session_close"),
	)
}
