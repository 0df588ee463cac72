package experiment

import (
	"context"
	"errors"
	"testing"

	"github.com/san-kum/nssim/internal/logging"
	"github.com/san-kum/nssim/internal/nsds"
	"github.com/san-kum/nssim/internal/solver"
	"github.com/san-kum/nssim/internal/timestepping"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ballConfig() Config {
	return Config{
		Model:    "bouncing_ball",
		Theta:    0.5,
		Solver:   "pgs",
		Dt:       0.01,
		Duration: 1,
		Params:   map[string]float64{"height": 1, "restitution": 0.5},
		Options:  timestepping.DefaultOptions(),
	}
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()

	assert.Contains(t, reg.ListModels(), "bouncing_ball")
	assert.Equal(t, []string{"combined_projection", "moreau_jean", "zoh"}, reg.ListIntegrators())
	assert.Equal(t, []string{"pgs"}, reg.ListSolvers())

	_, err := reg.GetSolver("lemke", 0)
	assert.ErrorIs(t, err, nsds.ErrConfiguration)

	reg.RegisterSolver("noop", func(int) solver.Solver {
		return solver.Func(func(p *solver.Problem) (solver.Solution, solver.Status) {
			return solver.Solution{Lambda: nsds.NewVector(p.Size()), Y: nsds.NewVector(p.Size())}, solver.StatusSuccess
		})
	})
	slv, err := reg.GetSolver("noop", 0)
	require.NoError(t, err)
	assert.NotNil(t, slv)
}

func TestExperiment_Run(t *testing.T) {
	exp := New(ballConfig())
	require.NoError(t, exp.Setup(NewRegistry(), logging.NewNop()))
	require.NotNil(t, exp.Simulation())

	res, err := exp.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "bouncing_ball", res.Model)
	assert.Equal(t, "moreau_jean", res.Integrator)
	assert.Equal(t, []string{"ball.q0", "ball.v0"}, res.Columns)
	require.Len(t, res.Times, 101)
	require.Len(t, res.States, 101)
	assert.Equal(t, []float64{1, 0}, res.States[0])
	assert.InDelta(t, 1.0, res.Times[100], 1e-12)
	assert.Equal(t, 100, res.Stats.Steps)

	for _, name := range []string{"energy_gain", "penetration", "impulse"} {
		assert.Contains(t, res.Metrics, name)
	}
	assert.Positive(t, res.Metrics["impulse"])
	for _, s := range res.States {
		assert.GreaterOrEqual(t, s[0], -0.05)
	}
}

func TestExperiment_IntegratorOverride(t *testing.T) {
	cfg := ballConfig()
	cfg.Integrator = "zoh"
	err := New(cfg).Setup(NewRegistry(), nil)
	assert.ErrorIs(t, err, nsds.ErrConfiguration)

	cfg.Integrator = "combined_projection"
	exp := New(cfg)
	require.NoError(t, exp.Setup(NewRegistry(), nil))
	res, err := exp.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "combined_projection", res.Integrator)
	assert.Len(t, res.Active[1], 3)
}

func TestExperiment_SetupErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"unknown model", func(c *Config) { c.Model = "pendulum" }},
		{"unknown integrator", func(c *Config) { c.Integrator = "rk4" }},
		{"unknown solver", func(c *Config) { c.Solver = "lemke" }},
		{"bad step", func(c *Config) { c.Dt = 0 }},
		{"bad options", func(c *Config) { c.Options.NewtonMaxIteration = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := ballConfig()
			tt.mutate(&cfg)
			err := New(cfg).Setup(NewRegistry(), nil)
			assert.True(t, errors.Is(err, nsds.ErrConfiguration), "got %v", err)
		})
	}

	_, err := New(ballConfig()).Run(context.Background())
	assert.Error(t, err)
}

func TestExperiment_RelayOscillator(t *testing.T) {
	cfg := ballConfig()
	cfg.Model = "relay_oscillator"
	cfg.Params = nil
	cfg.Duration = 5
	exp := New(cfg)
	require.NoError(t, exp.Setup(NewRegistry(), nil))

	res, err := exp.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "zoh", res.Integrator)
	assert.Equal(t, []string{"plant.x0", "plant.x1"}, res.Columns)
	last := res.States[len(res.States)-1]
	assert.InDelta(t, 0, last[0], 0.1)
	assert.InDelta(t, 0, last[1], 0.1)
}

func TestSweep(t *testing.T) {
	values := []float64{0, 0.5, 0.9}
	results, err := Sweep(context.Background(), NewRegistry(), ballConfig(), "restitution", values, 2)
	require.NoError(t, err)
	require.Len(t, results, len(values))

	// more restitution keeps more energy
	for i := 1; i < len(results); i++ {
		prev := results[i-1].States[len(results[i-1].States)-1]
		cur := results[i].States[len(results[i].States)-1]
		assert.Greater(t, energy(cur), energy(prev))
	}

	_, err = Sweep(context.Background(), NewRegistry(), ballConfig(), "count", []float64{1}, 1)
	assert.NoError(t, err)

	bad := ballConfig()
	bad.Model = "nope"
	_, err = Sweep(context.Background(), NewRegistry(), bad, "height", []float64{1, 2}, 2)
	assert.ErrorIs(t, err, nsds.ErrConfiguration)
}

func energy(s []float64) float64 { return 0.5*s[1]*s[1] + 9.81*s[0] }
