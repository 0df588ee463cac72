package integrators

import (
	"fmt"
	"sort"

	"github.com/san-kum/nssim/internal/nsds"
)

// DefaultTheta is the theta of the midpoint MoreauJean scheme.
const DefaultTheta = 0.5

var factories = map[string]func(theta float64) OneStepIntegrator{
	"moreau_jean":         func(theta float64) OneStepIntegrator { return NewMoreauJean(theta) },
	"combined_projection": func(theta float64) OneStepIntegrator { return NewCombinedProjection(theta) },
	"zoh":                 func(float64) OneStepIntegrator { return NewZeroOrderHold() },
}

// New builds a scheme by name. theta is ignored by schemes without one.
func New(name string, theta float64) (OneStepIntegrator, error) {
	f, ok := factories[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown integrator %q", nsds.ErrConfiguration, name)
	}
	return f(theta), nil
}

func Names() []string {
	names := make([]string, 0, len(factories))
	for n := range factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
