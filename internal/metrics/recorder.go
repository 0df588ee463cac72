package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/san-kum/nssim/internal/solver"
	"github.com/san-kum/nssim/internal/timestepping"
)

const (
	metricsNamespace = "nssim"
	stepSubsystem    = "timestepping"
)

// Recorder exports the run counters of a TimeStepping to prometheus. It
// implements timestepping.Recorder.
type Recorder struct {
	// StepsTotal counts accepted steps.
	StepsTotal prometheus.Counter

	// NewtonIterationsTotal counts Newton iterations over all steps.
	NewtonIterationsTotal prometheus.Counter

	// NewtonIterations is the distribution of iterations per step.
	NewtonIterations prometheus.Histogram

	// NonConvergedTotal counts steps that reached the iteration budget.
	NonConvergedTotal prometheus.Counter

	// SolverFailuresTotal counts failed solves.
	// Labels: level, status
	SolverFailuresTotal *prometheus.CounterVec

	// ActiveInteractions is the size of each index set after the last step.
	// Labels: level
	ActiveInteractions *prometheus.GaugeVec

	// ProjectionIterationsTotal counts position projection iterations.
	ProjectionIterationsTotal prometheus.Counter
}

// NewRecorder registers the run metrics on reg. A nil reg creates
// unregistered collectors.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		StepsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: stepSubsystem,
			Name:      "steps_total",
			Help:      "Accepted time steps",
		}),
		NewtonIterationsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: stepSubsystem,
			Name:      "newton_iterations_total",
			Help:      "Newton iterations over all steps",
		}),
		NewtonIterations: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: stepSubsystem,
			Name:      "newton_iterations",
			Help:      "Newton iterations per accepted step",
			Buckets:   []float64{1, 2, 3, 5, 8, 13, 21, 34, 55},
		}),
		NonConvergedTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: stepSubsystem,
			Name:      "non_converged_total",
			Help:      "Steps whose Newton loop reached the iteration budget",
		}),
		SolverFailuresTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: stepSubsystem,
			Name:      "solver_failures_total",
			Help:      "Nonsmooth solves that returned a failure status",
		}, []string{"level", "status"}),
		ActiveInteractions: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: stepSubsystem,
			Name:      "active_interactions",
			Help:      "Size of each index set at the end of the last step",
		}, []string{"level"}),
		ProjectionIterationsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: stepSubsystem,
			Name:      "projection_iterations_total",
			Help:      "Position projection iterations over all steps",
		}),
	}
}

func (r *Recorder) RecordStep(report timestepping.StepReport) {
	r.StepsTotal.Inc()
	r.NewtonIterationsTotal.Add(float64(report.NewtonIterations))
	r.NewtonIterations.Observe(float64(report.NewtonIterations))
	r.ProjectionIterationsTotal.Add(float64(report.ProjectionIterations))
	for level, n := range report.Active {
		r.ActiveInteractions.WithLabelValues(strconv.Itoa(level)).Set(float64(n))
	}
}

func (r *Recorder) RecordSolverFailure(level int, status solver.Status) {
	r.SolverFailuresTotal.WithLabelValues(strconv.Itoa(level), status.String()).Inc()
}

func (r *Recorder) RecordNonConvergence() { r.NonConvergedTotal.Inc() }

var _ timestepping.Recorder = (*Recorder)(nil)
