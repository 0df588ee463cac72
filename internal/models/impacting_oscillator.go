package models

import (
	"math"

	"github.com/san-kum/nssim/internal/nsds"
)

// ImpactingOscillator is a forced spring-mass-damper whose travel is
// limited by a wall at distance Gap from the rest position.
type ImpactingOscillator struct {
	Mass        float64
	Stiffness   float64
	Damping     float64
	Gap         float64
	Restitution float64
	Amplitude   float64
	Frequency   float64
	Position    float64
	Velocity    float64
}

func NewImpactingOscillator() *ImpactingOscillator {
	return &ImpactingOscillator{
		Mass:        1.0,
		Stiffness:   10.0,
		Damping:     0.1,
		Gap:         0.5,
		Restitution: 0.7,
		Amplitude:   5.0,
		Frequency:   2.5,
	}
}

func (o *ImpactingOscillator) apply(p Params) *ImpactingOscillator {
	o.Mass = p.get("mass", o.Mass)
	o.Stiffness = p.get("stiffness", o.Stiffness)
	o.Damping = p.get("damping", o.Damping)
	o.Gap = p.get("gap", o.Gap)
	o.Restitution = p.get("restitution", o.Restitution)
	o.Amplitude = p.get("amplitude", o.Amplitude)
	o.Frequency = p.get("frequency", o.Frequency)
	o.Position = p.get("position", o.Position)
	o.Velocity = p.get("velocity", o.Velocity)
	return o
}

func (o *ImpactingOscillator) Name() string       { return "impacting_oscillator" }
func (o *ImpactingOscillator) Integrator() string { return "moreau_jean" }
func (o *ImpactingOscillator) Gravity() float64   { return 0 }

func (o *ImpactingOscillator) Build() (*nsds.Graph, error) {
	g := nsds.NewGraph()
	ds, err := nsds.NewLagrangianLinearDS("mass", nsds.Vector{o.Position}, nsds.Vector{o.Velocity}, scalar(o.Mass))
	if err != nil {
		return nil, err
	}
	if err := ds.SetStiffness(scalar(o.Stiffness)); err != nil {
		return nil, err
	}
	if o.Damping != 0 {
		if err := ds.SetDamping(scalar(o.Damping)); err != nil {
			return nil, err
		}
	}
	amp, omega := o.Amplitude, o.Frequency
	ds.Fext = func(t float64) nsds.Vector { return nsds.Vector{amp * math.Cos(omega*t)} }
	id := g.AddSystem(ds)

	// gap = Gap - q
	wall := nsds.NewLagrangianLinearRelation(scalar(-1), nsds.Vector{o.Gap})
	if _, err := g.Link("wall", nsds.NewtonImpactLaw{E: o.Restitution}, wall, id); err != nil {
		return nil, err
	}
	return g, nil
}
