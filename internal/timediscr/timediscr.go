// Package timediscr is the event clock of a time-stepping simulation: a
// uniform grid t0, t0+h, ... whose last step is shortened to land on the
// final time.
package timediscr

import (
	"fmt"
	"math"
)

// TimeDiscretisation tracks the current step index on a uniform grid.
type TimeDiscretisation struct {
	t0     float64
	h      float64
	finalT float64
	steps  int
	k      int
}

func New(t0, h, finalT float64) (*TimeDiscretisation, error) {
	if h <= 0 || math.IsNaN(h) || math.IsInf(h, 0) {
		return nil, fmt.Errorf("timediscr: step must be positive and finite, got %g", h)
	}
	if !(finalT > t0) {
		return nil, fmt.Errorf("timediscr: final time %g must exceed initial time %g", finalT, t0)
	}
	n := int(math.Ceil((finalT - t0) / h))
	// Absorb a last step that is only rounding noise.
	if n > 1 && finalT-(t0+float64(n-1)*h) <= 1e-12*h {
		n--
	}
	return &TimeDiscretisation{t0: t0, h: h, finalT: finalT, steps: n}, nil
}

func (d *TimeDiscretisation) T0() float64     { return d.t0 }
func (d *TimeDiscretisation) FinalT() float64 { return d.finalT }

// Steps is the number of steps needed to reach the final time.
func (d *TimeDiscretisation) Steps() int { return d.steps }

// Index is the current step index k; the current event is t_k.
func (d *TimeDiscretisation) Index() int { return d.k }

func (d *TimeDiscretisation) timeAt(k int) float64 {
	if k >= d.steps {
		return d.finalT
	}
	return d.t0 + float64(k)*d.h
}

// CurrentTime is t_k.
func (d *TimeDiscretisation) CurrentTime() float64 { return d.timeAt(d.k) }

// NextTime is t_{k+1}, the end of the step being computed.
func (d *TimeDiscretisation) NextTime() float64 { return d.timeAt(d.k + 1) }

// CurrentTimeStep returns t_{k+1} - t_k for step k.
func (d *TimeDiscretisation) CurrentTimeStep(k int) float64 {
	return d.timeAt(k+1) - d.timeAt(k)
}

// HasNextEvent reports whether a step remains before the final time.
func (d *TimeDiscretisation) HasNextEvent() bool { return d.k < d.steps }

// Advance moves the clock to the next event.
func (d *TimeDiscretisation) Advance() {
	if d.k < d.steps {
		d.k++
	}
}

// Reset rewinds the clock to t0.
func (d *TimeDiscretisation) Reset() { d.k = 0 }
