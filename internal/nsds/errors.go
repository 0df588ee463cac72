package nsds

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by every package of the engine.
var (
	// ErrConfiguration is raised at setup: unsupported system type for a
	// scheme, missing relation data, dimension mismatch.
	ErrConfiguration = errors.New("nsds: configuration error")

	// ErrConvergence indicates the Newton loop exhausted its iterations.
	ErrConvergence = errors.New("nsds: newton loop did not converge")

	// ErrSolverFailure indicates the nonsmooth solver returned a nonzero status.
	ErrSolverFailure = errors.New("nsds: nonsmooth solver failed")

	// ErrNotImplemented is a programmer error: a base operation was called on
	// a scheme that does not override it.
	ErrNotImplemented = errors.New("nsds: not implemented")

	// ErrInvalidState indicates a NaN or Inf in a system state.
	ErrInvalidState = errors.New("nsds: invalid state (NaN or Inf detected)")
)

// ConfigError describes which entity could not be configured and why.
type ConfigError struct {
	Entity string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrConfiguration.Error(), e.Entity, e.Reason)
}

func (e *ConfigError) Unwrap() error {
	return ErrConfiguration
}

// Configf builds a ConfigError.
func Configf(entity, format string, args ...any) error {
	return &ConfigError{Entity: entity, Reason: fmt.Sprintf(format, args...)}
}

// NotImplementedf wraps ErrNotImplemented with the offending operation.
func NotImplementedf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotImplemented, fmt.Sprintf(format, args...))
}

// StepError wraps an error with the time step it happened in.
type StepError struct {
	Step    int
	Time    float64
	Wrapped error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d (t=%.6g): %v", e.Step, e.Time, e.Wrapped)
}

func (e *StepError) Unwrap() error {
	return e.Wrapped
}
