package volume

import (
	"fmt"
	"strings"

	"figurespeaker/internal/services"
)

// Direction is a discrete volume button event.
type Direction int

const (
	Increase Direction = iota
	Decrease
)

func (d Direction) String() string {
	switch d {
	case Increase:
		return "increase"
	case Decrease:
		return "decrease"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

// ParseDirection accepts increase/up/+ and decrease/down/-.
func ParseDirection(value string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "increase", "up", "+":
		return Increase, nil
	case "decrease", "down", "-":
		return Decrease, nil
	default:
		return 0, services.Wrap(services.ErrValidation, "volume", "direction", fmt.Sprintf("unknown direction %q", value), nil)
	}
}
