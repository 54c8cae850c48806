package routing

import (
	"errors"
	"fmt"

	"github.com/tailored-agentic-units/specialists/specialist"
)

// ErrRoutingMiss reports that no specialist cleared the confidence threshold.
// It is recoverable: misses feed genesis tracking.
var ErrRoutingMiss = errors.New("routing miss")

// MissError carries the unmatched request.
type MissError struct {
	Pillar specialist.Pillar
	Query  string
}

func (e *MissError) Error() string {
	return fmt.Sprintf("%s: no %s specialist for %q", ErrRoutingMiss, e.Pillar, e.Query)
}

func (e *MissError) Unwrap() error {
	return ErrRoutingMiss
}
