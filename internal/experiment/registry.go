package experiment

import (
	"fmt"
	"sort"

	"github.com/san-kum/nssim/internal/integrators"
	"github.com/san-kum/nssim/internal/metrics"
	"github.com/san-kum/nssim/internal/models"
	"github.com/san-kum/nssim/internal/nsds"
	"github.com/san-kum/nssim/internal/solver"
)

// Registry resolves the names used in configuration files.
type Registry struct {
	solvers map[string]func(maxIterations int) solver.Solver
}

func NewRegistry() *Registry {
	r := &Registry{
		solvers: make(map[string]func(int) solver.Solver),
	}
	r.solvers["pgs"] = func(n int) solver.Solver { return solver.NewProjectedGaussSeidel(n) }
	return r
}

// RegisterSolver makes an external nonsmooth solver available by name.
func (r *Registry) RegisterSolver(name string, fn func(maxIterations int) solver.Solver) {
	r.solvers[name] = fn
}

func (r *Registry) GetModel(name string, params map[string]float64) (models.Model, error) {
	return models.New(name, params)
}

func (r *Registry) GetIntegrator(name string, theta float64) (integrators.OneStepIntegrator, error) {
	return integrators.New(name, theta)
}

func (r *Registry) GetSolver(name string, maxIterations int) (solver.Solver, error) {
	fn, ok := r.solvers[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown solver %q", nsds.ErrConfiguration, name)
	}
	return fn(maxIterations), nil
}

func (r *Registry) ListModels() []string      { return models.Names() }
func (r *Registry) ListIntegrators() []string { return integrators.Names() }

func (r *Registry) ListSolvers() []string {
	names := make([]string, 0, len(r.solvers))
	for name := range r.solvers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultMetrics are the step metrics attached to every run of m.
func (r *Registry) DefaultMetrics(m models.Model) []metrics.Metric {
	return []metrics.Metric{
		metrics.NewEnergy(m.Gravity()),
		metrics.NewPenetration(1e-3),
		metrics.NewImpulse(),
	}
}
