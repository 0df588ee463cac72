package models

import (
	"github.com/san-kum/nssim/internal/nsds"
)

// BouncingBall is a point mass falling on a rigid floor at height 0.
type BouncingBall struct {
	Mass        float64
	Height      float64
	Velocity    float64
	Restitution float64
	G           float64
}

func NewBouncingBall() *BouncingBall {
	return &BouncingBall{
		Mass:        1.0,
		Height:      1.0,
		Restitution: 0.9,
		G:           DefaultGravity,
	}
}

func (b *BouncingBall) apply(p Params) *BouncingBall {
	b.Mass = p.get("mass", b.Mass)
	b.Height = p.get("height", b.Height)
	b.Velocity = p.get("velocity", b.Velocity)
	b.Restitution = p.get("restitution", b.Restitution)
	b.G = p.get("gravity", b.G)
	return b
}

func (b *BouncingBall) Name() string       { return "bouncing_ball" }
func (b *BouncingBall) Integrator() string { return "moreau_jean" }
func (b *BouncingBall) Gravity() float64   { return b.G }

func (b *BouncingBall) Build() (*nsds.Graph, error) {
	g := nsds.NewGraph()
	ds, err := nsds.NewLagrangianLinearDS("ball", nsds.Vector{b.Height}, nsds.Vector{b.Velocity}, scalar(b.Mass))
	if err != nil {
		return nil, err
	}
	ds.Fext = constant(nsds.Vector{-b.Mass * b.G})
	id := g.AddSystem(ds)
	if _, err := g.Link("floor", nsds.NewtonImpactLaw{E: b.Restitution}, nsds.NewLagrangianLinearRelation(scalar(1), nil), id); err != nil {
		return nil, err
	}
	return g, nil
}
