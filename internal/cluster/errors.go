package cluster

import (
	"errors"
	"fmt"
)

// DegenerateAxisError marks an axis whose feature distribution cannot
// support meaningful clustering. Recoverable: the axis falls back to a
// single undifferentiated segment and other axes proceed.
type DegenerateAxisError struct {
	Axis   string
	Reason string
}

func (e DegenerateAxisError) Error() string {
	return fmt.Sprintf("degenerate axis %s: %s", e.Axis, e.Reason)
}

// NumericInstabilityError marks an FCM fit whose membership delta diverged
// instead of shrinking. Fatal for the axis only; the prior model stays
// published.
type NumericInstabilityError struct {
	Iterations int
	Delta      float64
}

func (e NumericInstabilityError) Error() string {
	return fmt.Sprintf("fcm diverged after %d iterations (delta=%g)", e.Iterations, e.Delta)
}

// Common errors
var (
	ErrEmptyMatrix = errors.New("empty feature matrix")
	ErrInvalidK    = errors.New("cluster count must be at least 1")
)
