package timestepping

import (
	"github.com/san-kum/nssim/internal/integrators"
	"github.com/san-kum/nssim/internal/nsds"
	"github.com/san-kum/nssim/internal/solver"
	"github.com/san-kum/nssim/internal/timediscr"
	"gonum.org/v1/gonum/mat"
)

const gravity = 9.81

func scalar(x float64) *mat.Dense { return mat.NewDense(1, 1, []float64{x}) }

// buildBall is a unit mass under gravity above a floor at height 0.
func buildBall(q0, v0, e float64) (*nsds.Graph, *nsds.LagrangianLinearDS, nsds.InteractionID, error) {
	g := nsds.NewGraph()
	ds, err := nsds.NewLagrangianLinearDS("ball", nsds.Vector{q0}, nsds.Vector{v0}, scalar(1))
	if err != nil {
		return nil, nil, 0, err
	}
	ds.Fext = func(float64) nsds.Vector { return nsds.Vector{-gravity} }
	id := g.AddSystem(ds)
	inter, err := g.Link("floor", nsds.NewtonImpactLaw{E: e}, nsds.NewLagrangianLinearRelation(scalar(1), nil), id)
	if err != nil {
		return nil, nil, 0, err
	}
	return g, ds, inter, nil
}

// buildChain is n unit balls stacked on a floor, each resting on the one
// below through a unilateral contact.
func buildChain(n int, spacing float64) (*nsds.Graph, error) {
	g := nsds.NewGraph()
	ids := make([]nsds.DSID, n)
	for i := 0; i < n; i++ {
		ds, err := nsds.NewLagrangianLinearDS("ball", nsds.Vector{spacing * float64(i+1)}, nsds.Vector{0}, scalar(1))
		if err != nil {
			return nil, err
		}
		ds.Fext = func(float64) nsds.Vector { return nsds.Vector{-gravity} }
		ids[i] = g.AddSystem(ds)
	}
	if _, err := g.Link("floor", nsds.NewtonImpactLaw{E: 0.8}, nsds.NewLagrangianLinearRelation(scalar(1), nil), ids[0]); err != nil {
		return nil, err
	}
	for i := 1; i < n; i++ {
		h := mat.NewDense(1, 2, []float64{-1, 1})
		if _, err := g.Link("contact", nsds.NewtonImpactLaw{E: 0.8}, nsds.NewLagrangianLinearRelation(h, nil), ids[i-1], ids[i]); err != nil {
			return nil, err
		}
	}
	return g, nil
}

func newSimulation(g *nsds.Graph, osi integrators.OneStepIntegrator, h, finalT float64, opts Options) (*TimeStepping, error) {
	clock, err := timediscr.New(0, h, finalT)
	if err != nil {
		return nil, err
	}
	ts, err := New(g, clock, solver.NewProjectedGaussSeidel(0), opts)
	if err != nil {
		return nil, err
	}
	if err := ts.InsertIntegrator(osi); err != nil {
		return nil, err
	}
	return ts, ts.Initialize()
}

// stubbornIntegrator never reports a vanishing system residual.
type stubbornIntegrator struct {
	*integrators.MoreauJean
}

func (s stubbornIntegrator) ComputeResidu() float64 { return 1 }

// threeLevels claims a third index set without providing its rules.
type threeLevels struct {
	*integrators.MoreauJean
}

func (threeLevels) NumberOfIndexSets() int { return 3 }
