// Package metrics observes a running simulation: step metrics computed from
// the model state and prometheus counters for the Newton loop and the
// nonsmooth solver.
package metrics

import (
	"math"

	"github.com/san-kum/nssim/internal/nsds"
	"github.com/san-kum/nssim/internal/timestepping"
)

// Metric accumulates one scalar over the accepted steps of a run.
type Metric interface {
	timestepping.Observer
	Name() string
	Value() float64
	Reset()
}

// Attach registers every metric as an observer of ts.
func Attach(ts *timestepping.TimeStepping, ms ...Metric) {
	for _, m := range ms {
		ts.AddObserver(m)
	}
}

// Values returns the metric values keyed by name.
func Values(ms ...Metric) map[string]float64 {
	out := make(map[string]float64, len(ms))
	for _, m := range ms {
		out[m.Name()] = m.Value()
	}
	return out
}

func unilateral(law nsds.NonSmoothLaw) bool {
	for i := 0; i < law.Size(); i++ {
		lo, hi := law.Bounds(i)
		if lo != 0 || !math.IsInf(hi, 1) {
			return false
		}
	}
	return true
}
