package metrics

import (
	"math"

	"github.com/san-kum/nssim/internal/nsds"
	"github.com/san-kum/nssim/internal/timestepping"
)

// Impulse is the mean over steps of the summed multiplier magnitude at the
// input level of the schemes.
type Impulse struct {
	name    string
	sum     float64
	samples int
}

func NewImpulse() *Impulse {
	return &Impulse{
		name: "impulse",
	}
}

func (m *Impulse) Name() string { return m.name }

func (m *Impulse) OnStep(ts *timestepping.TimeStepping, _ timestepping.StepReport) {
	osis := ts.Integrators()
	if len(osis) == 0 {
		return
	}
	level := osis[0].InputLevel()
	g := ts.Graph()
	for id := 0; id < g.NumberOfInteractions(); id++ {
		for _, l := range g.Interaction(nsds.InteractionID(id)).Lambda[level] {
			m.sum += math.Abs(l)
		}
	}
	m.samples++
}

func (m *Impulse) Value() float64 {
	if m.samples == 0 {
		return 0
	}
	return m.sum / float64(m.samples)
}

func (m *Impulse) Reset() {
	m.sum = 0
	m.samples = 0
}
