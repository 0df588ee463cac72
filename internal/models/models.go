// Package models builds the example nonsmooth systems shipped with nssim.
// Every Build call returns a fresh graph, so a model value can seed any
// number of runs.
package models

import (
	"fmt"
	"sort"

	"github.com/san-kum/nssim/internal/nsds"
	"gonum.org/v1/gonum/mat"
)

const DefaultGravity = 9.81

type Model interface {
	Name() string
	Build() (*nsds.Graph, error)
	// Integrator is the scheme the model is tuned for.
	Integrator() string
	// Gravity is the acceleration along every coordinate, 0 when the model
	// carries no gravity field.
	Gravity() float64
}

// Params overrides model defaults by key; missing keys keep the default.
type Params map[string]float64

func (p Params) get(key string, def float64) float64 {
	if v, ok := p[key]; ok {
		return v
	}
	return def
}

type factory func(Params) Model

var factories = map[string]factory{
	"bouncing_ball":        func(p Params) Model { return NewBouncingBall().apply(p) },
	"impacting_oscillator": func(p Params) Model { return NewImpactingOscillator().apply(p) },
	"ball_chain":           func(p Params) Model { return NewBallChain().apply(p) },
	"relay_oscillator":     func(p Params) Model { return NewRelayOscillator().apply(p) },
}

// New builds the named model with its defaults overridden by params.
func New(name string, params Params) (Model, error) {
	f, ok := factories[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown model %q", nsds.ErrConfiguration, name)
	}
	return f(params), nil
}

func Names() []string {
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func scalar(x float64) *mat.Dense { return mat.NewDense(1, 1, []float64{x}) }

func constant(f nsds.Vector) nsds.ForceFunc {
	return func(float64) nsds.Vector { return f }
}
