// Package experiment wires a model, a scheme and a solver into a
// time-stepping run and collects its trajectory.
package experiment

import (
	"context"
	"fmt"
	"time"

	"github.com/san-kum/nssim/internal/logging"
	"github.com/san-kum/nssim/internal/metrics"
	"github.com/san-kum/nssim/internal/models"
	"github.com/san-kum/nssim/internal/nsds"
	"github.com/san-kum/nssim/internal/timediscr"
	"github.com/san-kum/nssim/internal/timestepping"
)

type Config struct {
	Model string
	// Integrator empty selects the model's own scheme.
	Integrator          string
	Theta               float64
	Solver              string
	SolverMaxIterations int
	Dt                  float64
	Duration            float64
	Params              map[string]float64
	Options             timestepping.Options
}

// Result is the trajectory of a run. States[i] is the stacked state of
// every system at Times[i], laid out as Columns.
type Result struct {
	Model      string
	Integrator string
	Columns    []string
	Times      []float64
	States     [][]float64
	// Active[i] holds the index-set sizes at Times[i].
	Active   [][]int
	Stats    timestepping.Stats
	Metrics  map[string]float64
	Duration time.Duration
}

type Experiment struct {
	cfg      Config
	model    models.Model
	graph    *nsds.Graph
	ts       *timestepping.TimeStepping
	metrics  []metrics.Metric
	recorder *trajectory
}

func New(cfg Config) *Experiment {
	return &Experiment{cfg: cfg}
}

// Setup resolves every name through reg, builds the model and initializes
// the simulation. Extra metrics are attached next to the registry defaults.
func (e *Experiment) Setup(reg *Registry, log logging.Logger, extra ...metrics.Metric) error {
	model, err := reg.GetModel(e.cfg.Model, e.cfg.Params)
	if err != nil {
		return err
	}
	name := e.cfg.Integrator
	if name == "" {
		name = model.Integrator()
	}
	osi, err := reg.GetIntegrator(name, e.cfg.Theta)
	if err != nil {
		return err
	}
	slv, err := reg.GetSolver(e.cfg.Solver, e.cfg.SolverMaxIterations)
	if err != nil {
		return err
	}
	graph, err := model.Build()
	if err != nil {
		return fmt.Errorf("build %s: %w", model.Name(), err)
	}
	clock, err := timediscr.New(0, e.cfg.Dt, e.cfg.Duration)
	if err != nil {
		return fmt.Errorf("%w: %v", nsds.ErrConfiguration, err)
	}
	ts, err := timestepping.New(graph, clock, slv, e.cfg.Options)
	if err != nil {
		return err
	}
	if log != nil {
		ts.SetLogger(log.With("model", model.Name(), "integrator", osi.Name()))
	}
	if err := ts.InsertIntegrator(osi); err != nil {
		return err
	}
	if err := ts.Initialize(); err != nil {
		return err
	}

	e.model, e.graph, e.ts = model, graph, ts
	e.metrics = append(reg.DefaultMetrics(model), extra...)
	e.recorder = newTrajectory(graph, clock.Steps())
	ts.AddObserver(e.recorder)
	metrics.Attach(ts, e.metrics...)
	return nil
}

// Simulation exposes the orchestrator for observers and recorders. It is
// nil before Setup.
func (e *Experiment) Simulation() *timestepping.TimeStepping { return e.ts }

func (e *Experiment) Model() models.Model { return e.model }
func (e *Experiment) Graph() *nsds.Graph  { return e.graph }

// Run steps to the final time. On failure the returned Result holds the
// steps accepted before the error.
func (e *Experiment) Run(ctx context.Context) (*Result, error) {
	if e.ts == nil {
		return nil, fmt.Errorf("experiment not setup")
	}
	for _, m := range e.metrics {
		m.Reset()
	}
	start := time.Now()
	runErr := e.ts.Run(ctx)

	res := &Result{
		Model:      e.model.Name(),
		Integrator: e.ts.Integrators()[0].Name(),
		Columns:    e.recorder.columns,
		Times:      e.recorder.times,
		States:     e.recorder.states,
		Active:     e.recorder.active,
		Stats:      e.ts.Stats(),
		Metrics:    metrics.Values(e.metrics...),
		Duration:   time.Since(start),
	}
	return res, runErr
}
