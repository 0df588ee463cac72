package metrics

import (
	"math"

	"github.com/san-kum/nssim/internal/nsds"
	"github.com/san-kum/nssim/internal/timestepping"
)

// Penetration records the deepest position-level violation of a unilateral
// constraint and counts the steps where it exceeds threshold.
type Penetration struct {
	name       string
	threshold  float64
	deepest    float64
	violations int
	samples    int
}

func NewPenetration(threshold float64) *Penetration {
	return &Penetration{
		name:      "penetration",
		threshold: threshold,
	}
}

func (p *Penetration) Name() string { return p.name }

func (p *Penetration) OnStep(ts *timestepping.TimeStepping, _ timestepping.StepReport) {
	g := ts.Graph()
	worst := 0.0
	for id := 0; id < g.NumberOfInteractions(); id++ {
		inter := g.Interaction(nsds.InteractionID(id))
		if !unilateral(inter.Law) {
			continue
		}
		for _, y := range inter.Y[0] {
			worst = math.Max(worst, -y)
		}
	}
	p.deepest = math.Max(p.deepest, worst)
	if worst > p.threshold {
		p.violations++
	}
	p.samples++
}

// Value is the deepest penetration seen so far.
func (p *Penetration) Value() float64 { return p.deepest }

// Violations is the number of steps that ended deeper than the threshold.
func (p *Penetration) Violations() int { return p.violations }

func (p *Penetration) Reset() {
	p.deepest = 0
	p.violations = 0
	p.samples = 0
}
