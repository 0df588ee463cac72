package experiment

import (
	"fmt"

	"github.com/san-kum/nssim/internal/nsds"
	"github.com/san-kum/nssim/internal/timestepping"
)

// Columns names the stacked state of g: q and v components of Lagrangian
// systems, x components of first order ones, in system order.
func Columns(g *nsds.Graph) []string {
	var cols []string
	for id := 0; id < g.NumberOfSystems(); id++ {
		switch ds := g.System(nsds.DSID(id)).(type) {
		case *nsds.LagrangianLinearDS:
			for i := range ds.Q {
				cols = append(cols, fmt.Sprintf("%s.q%d", ds.Name(), i))
			}
			for i := range ds.V {
				cols = append(cols, fmt.Sprintf("%s.v%d", ds.Name(), i))
			}
		case *nsds.FirstOrderLinearDS:
			for i := range ds.X {
				cols = append(cols, fmt.Sprintf("%s.x%d", ds.Name(), i))
			}
		}
	}
	return cols
}

// State stacks the current state of g in Columns order.
func State(g *nsds.Graph) []float64 {
	var out []float64
	for id := 0; id < g.NumberOfSystems(); id++ {
		switch ds := g.System(nsds.DSID(id)).(type) {
		case *nsds.LagrangianLinearDS:
			out = append(out, ds.Q...)
			out = append(out, ds.V...)
		case *nsds.FirstOrderLinearDS:
			out = append(out, ds.X...)
		}
	}
	return out
}

// trajectory records the initial state and every accepted step.
type trajectory struct {
	graph   *nsds.Graph
	columns []string
	times   []float64
	states  [][]float64
	active  [][]int
}

func newTrajectory(g *nsds.Graph, steps int) *trajectory {
	tr := &trajectory{
		graph:   g,
		columns: Columns(g),
		times:   make([]float64, 0, steps+1),
		states:  make([][]float64, 0, steps+1),
		active:  make([][]int, 0, steps+1),
	}
	tr.times = append(tr.times, 0)
	tr.states = append(tr.states, State(g))
	tr.active = append(tr.active, nil)
	return tr
}

func (tr *trajectory) OnStep(_ *timestepping.TimeStepping, r timestepping.StepReport) {
	tr.times = append(tr.times, r.Time)
	tr.states = append(tr.states, State(tr.graph))
	tr.active = append(tr.active, r.Active)
}
