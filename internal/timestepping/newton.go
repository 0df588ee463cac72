package timestepping

import (
	"fmt"

	"github.com/san-kum/nssim/internal/logging"
	"github.com/san-kum/nssim/internal/nsds"
	"github.com/san-kum/nssim/internal/solver"
)

// NewtonStatus is the state of the Newton loop of the current step.
type NewtonStatus int

const (
	NotStarted NewtonStatus = iota
	Iterating
	Converged
	MaxIterationReached
)

func (s NewtonStatus) String() string {
	switch s {
	case NotStarted:
		return "not started"
	case Iterating:
		return "iterating"
	case Converged:
		return "converged"
	case MaxIterationReached:
		return "max iteration reached"
	default:
		return fmt.Sprintf("NewtonStatus(%d)", int(s))
	}
}

// Residuals are the three norms tracked by the Newton loop.
type Residuals struct {
	DS float64
	Y  float64
	R  float64
}

// Stats accumulates counters over a run.
type Stats struct {
	Steps                      int
	NewtonIterations           int
	CumulativeNewtonIterations int
	NonConvergedSteps          int
	SolverFailures             int
	ProjectionIterations       int
}

// StepReport describes one accepted step.
type StepReport struct {
	Step                 int
	Time                 float64
	Status               NewtonStatus
	NewtonIterations     int
	Residuals            Residuals
	SolverStatus         solver.Status
	ProjectionIterations int
	// Active is the size of every index set at the end of the step.
	Active []int
}

// Observer is notified after every accepted step, before the memories are
// swapped, so it sees the state at the end of the step.
type Observer interface {
	OnStep(ts *TimeStepping, report StepReport)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ts *TimeStepping, report StepReport)

func (f ObserverFunc) OnStep(ts *TimeStepping, report StepReport) { f(ts, report) }

// Recorder receives run counters, typically backed by prometheus.
type Recorder interface {
	RecordStep(report StepReport)
	RecordSolverFailure(level int, status solver.Status)
	RecordNonConvergence()
}

// SolverFailure describes a solve that returned a nonzero status.
type SolverFailure struct {
	Step   int
	Time   float64
	Level  int
	Status solver.Status
	Error  float64
}

// SolverFailurePolicy decides what happens after a failed solve. Returning
// nil lets the step continue with the returned multipliers.
type SolverFailurePolicy func(f SolverFailure) error

// WarnOnSolverFailure logs the failure and continues.
func WarnOnSolverFailure(log logging.Logger) SolverFailurePolicy {
	return func(f SolverFailure) error {
		log.Warn("nonsmooth solver failed, continuing",
			"step", f.Step, "time", f.Time, "level", f.Level,
			"status", f.Status.String(), "error", f.Error)
		return nil
	}
}

// AbortOnSolverFailure turns every failure into an error wrapping
// nsds.ErrSolverFailure.
func AbortOnSolverFailure() SolverFailurePolicy {
	return func(f SolverFailure) error {
		return fmt.Errorf("%w: level %d: %s (error %g)", nsds.ErrSolverFailure, f.Level, f.Status, f.Error)
	}
}
