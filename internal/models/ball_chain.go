package models

import (
	"fmt"

	"github.com/san-kum/nssim/internal/nsds"
	"gonum.org/v1/gonum/mat"
)

// BallChain is a column of point masses dropped on a floor. Each ball
// touches the floor or the ball below it through a unilateral contact.
type BallChain struct {
	Count       int
	Spacing     float64
	Height      float64
	Mass        float64
	Restitution float64
	G           float64
}

func NewBallChain() *BallChain {
	return &BallChain{
		Count:       3,
		Spacing:     0.5,
		Height:      0.5,
		Mass:        1.0,
		Restitution: 0.5,
		G:           DefaultGravity,
	}
}

func (c *BallChain) apply(p Params) *BallChain {
	c.Count = int(p.get("count", float64(c.Count)))
	c.Spacing = p.get("spacing", c.Spacing)
	c.Height = p.get("height", c.Height)
	c.Mass = p.get("mass", c.Mass)
	c.Restitution = p.get("restitution", c.Restitution)
	c.G = p.get("gravity", c.G)
	return c
}

func (c *BallChain) Name() string       { return "ball_chain" }
func (c *BallChain) Integrator() string { return "combined_projection" }
func (c *BallChain) Gravity() float64   { return c.G }

func (c *BallChain) Build() (*nsds.Graph, error) {
	if c.Count < 1 {
		return nil, nsds.Configf("ball_chain", "count must be at least 1, got %d", c.Count)
	}
	g := nsds.NewGraph()
	ids := make([]nsds.DSID, c.Count)
	for i := range ids {
		q0 := c.Height + float64(i)*c.Spacing
		ds, err := nsds.NewLagrangianLinearDS(fmt.Sprintf("ball%d", i), nsds.Vector{q0}, nsds.Vector{0}, scalar(c.Mass))
		if err != nil {
			return nil, err
		}
		ds.Fext = constant(nsds.Vector{-c.Mass * c.G})
		ids[i] = g.AddSystem(ds)
	}
	law := nsds.NewtonImpactLaw{E: c.Restitution}
	if _, err := g.Link("floor", law, nsds.NewLagrangianLinearRelation(scalar(1), nil), ids[0]); err != nil {
		return nil, err
	}
	for i := 1; i < c.Count; i++ {
		h := mat.NewDense(1, 2, []float64{-1, 1})
		if _, err := g.Link(fmt.Sprintf("contact%d", i), law, nsds.NewLagrangianLinearRelation(h, nil), ids[i-1], ids[i]); err != nil {
			return nil, err
		}
	}
	return g, nil
}
