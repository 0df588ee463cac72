package metrics

import (
	"math"

	"github.com/san-kum/nssim/internal/nsds"
	"github.com/san-kum/nssim/internal/timestepping"
	"gonum.org/v1/gonum/floats"
)

// MechanicalEnergy is the kinetic and elastic energy of a Lagrangian system,
// plus a uniform gravity potential along every coordinate.
func MechanicalEnergy(ds *nsds.LagrangianLinearDS, q, v nsds.Vector, gravity float64) float64 {
	mv := nsds.MulVec(ds.M, v)
	e := 0.5 * floats.Dot(v, mv)
	if ds.K != nil {
		e += 0.5 * floats.Dot(q, nsds.MulVec(ds.K, q))
	}
	if gravity != 0 {
		mq := nsds.MulVec(ds.M, q)
		e += gravity * floats.Sum(mq)
	}
	return e
}

// TotalEnergy sums MechanicalEnergy over the Lagrangian systems of g using
// the current state. Other kinds of systems are skipped.
func TotalEnergy(g *nsds.Graph, gravity float64) float64 {
	return graphEnergy(g, gravity, false)
}

func graphEnergy(g *nsds.Graph, gravity float64, previous bool) float64 {
	total := 0.0
	for id := 0; id < g.NumberOfSystems(); id++ {
		ds, ok := g.System(nsds.DSID(id)).(*nsds.LagrangianLinearDS)
		if !ok {
			continue
		}
		q, v := ds.Q, ds.V
		if previous {
			q, v = ds.QMemory(0), ds.VMemory(0)
		}
		total += MechanicalEnergy(ds, q, v, gravity)
	}
	return total
}

// Energy tracks the largest energy increase over the state at the start of
// the run. Impacts only dissipate, so a positive value points at a scheme
// or solver problem.
type Energy struct {
	name    string
	gravity float64
	initial float64
	current float64
	maxGain float64
	samples int
}

func NewEnergy(gravity float64) *Energy {
	return &Energy{
		name:    "energy_gain",
		gravity: gravity,
	}
}

func (e *Energy) Name() string { return e.name }

func (e *Energy) OnStep(ts *timestepping.TimeStepping, _ timestepping.StepReport) {
	g := ts.Graph()
	if e.samples == 0 {
		// observers run before the memory swap, so memory still holds t0
		e.initial = graphEnergy(g, e.gravity, true)
	}
	e.current = graphEnergy(g, e.gravity, false)
	e.maxGain = math.Max(e.maxGain, e.current-e.initial)
	e.samples++
}

func (e *Energy) Value() float64 { return e.maxGain }

func (e *Energy) Initial() float64 { return e.initial }
func (e *Energy) Current() float64 { return e.current }

// Dissipated is the energy lost since the start of the run.
func (e *Energy) Dissipated() float64 { return e.initial - e.current }

func (e *Energy) Reset() {
	e.initial = 0
	e.current = 0
	e.maxGain = 0
	e.samples = 0
}
