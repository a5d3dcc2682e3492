package playback

import (
	"errors"
	"fmt"
	"time"

	"figurespeaker/internal/services"
)

// Request asks for a URI to be played, optionally from a resume position.
// Tag is set when the request originates from a figure.
type Request struct {
	Tag      string        `json:"tag,omitempty"`
	URI      string        `json:"uri"`
	Name     string        `json:"name,omitempty"`
	Position time.Duration `json:"position"`
}

// StepError reports the pipeline step that failed.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: playback step %s: %v", services.ErrProtocol, e.Step, e.Err)
}

// Unwrap exposes both the protocol marker and the underlying cause.
func (e *StepError) Unwrap() []error {
	return []error{services.ErrProtocol, e.Err}
}

// FailedStep returns the step name carried by err, if any.
func FailedStep(err error) (string, bool) {
	var stepErr *StepError
	if errors.As(err, &stepErr) {
		return stepErr.Step, true
	}
	return "", false
}

// WindDirection selects the seek direction for Wind.
type WindDirection int

const (
	WindForwards WindDirection = iota
	WindRewind
)

func (d WindDirection) String() string {
	if d == WindRewind {
		return "rewind"
	}
	return "forwards"
}
