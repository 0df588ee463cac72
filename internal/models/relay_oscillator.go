package models

import (
	"github.com/san-kum/nssim/internal/nsds"
	"gonum.org/v1/gonum/mat"
)

// RelayOscillator is a double integrator under relay feedback on the
// sliding surface x0 + x1 = 0. The state reaches the surface in finite time
// and then slides to the origin.
type RelayOscillator struct {
	X0    float64
	X1    float64
	Bound float64
}

func NewRelayOscillator() *RelayOscillator {
	return &RelayOscillator{X0: 1.0, Bound: 1.0}
}

func (r *RelayOscillator) apply(p Params) *RelayOscillator {
	r.X0 = p.get("x0", r.X0)
	r.X1 = p.get("x1", r.X1)
	r.Bound = p.get("bound", r.Bound)
	return r
}

func (r *RelayOscillator) Name() string       { return "relay_oscillator" }
func (r *RelayOscillator) Integrator() string { return "zoh" }
func (r *RelayOscillator) Gravity() float64   { return 0 }

func (r *RelayOscillator) Build() (*nsds.Graph, error) {
	if r.Bound <= 0 {
		return nil, nsds.Configf("relay_oscillator", "bound must be positive, got %g", r.Bound)
	}
	g := nsds.NewGraph()
	a := mat.NewDense(2, 2, []float64{
		0, 1,
		0, 0,
	})
	ds, err := nsds.NewFirstOrderLinearDS("plant", nsds.Vector{r.X0, r.X1}, a)
	if err != nil {
		return nil, err
	}
	id := g.AddSystem(ds)

	c := mat.NewDense(1, 2, []float64{1, 1})
	b := mat.NewDense(2, 1, []float64{0, r.Bound})
	rel := nsds.NewFirstOrderLinearRelation(c, nil, b, nil)
	if _, err := g.Link("relay", nsds.NewRelayLaw(1), rel, id); err != nil {
		return nil, err
	}
	return g, nil
}
