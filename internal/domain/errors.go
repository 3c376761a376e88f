package domain

import (
	"errors"
	"fmt"
)

// Error taxonomy for the scoring engine.
//
// ErrInvalidInput and the lifecycle errors are surfaced to callers.
// ErrDependencyDegraded is recovered locally: a failed aggregate query or a
// broken model degrades the result (default features, fallback scorer) and is
// logged, never returned to the caller.
var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrNotFound           = errors.New("record not found")
	ErrInvalidState       = errors.New("invalid state")
	ErrDependencyDegraded = errors.New("dependency degraded")
)

func wrapInvalidInput(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, msg)
}
