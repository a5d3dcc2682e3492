package engine

import (
	"errors"
	"fmt"

	"figurespeaker/internal/services"
)

var (
	// ErrAlreadyRunning rejects a start while an engine process is live.
	ErrAlreadyRunning = fmt.Errorf("%w: engine already running", services.ErrConflict)
	// ErrExited reports that the engine process ended before or after readiness.
	ErrExited = errors.New("engine process exited")
	// ErrReadyTimeout reports that the readiness marker never appeared.
	ErrReadyTimeout = errors.New("engine readiness timed out")
)
