package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/san-kum/nssim/internal/nsds"
	"github.com/san-kum/nssim/internal/timestepping"
	"gopkg.in/yaml.v3"
)

const (
	DefaultDt       = 0.005
	DefaultDuration = 3.0
	DefaultTheta    = 0.5
	DefaultSolver   = "pgs"
)

type Config struct {
	Model string `yaml:"model" validate:"required"`
	// Integrator defaults to the scheme the model is tuned for.
	Integrator string             `yaml:"integrator"`
	Theta      float64            `yaml:"theta" validate:"gte=0,lte=1"`
	Dt         float64            `yaml:"dt" validate:"gt=0"`
	Duration   float64            `yaml:"duration" validate:"gt=0"`
	Params     map[string]float64 `yaml:"params,omitempty"`
	Workers    int                `yaml:"workers" validate:"gte=0"`

	Newton NewtonConfig `yaml:"newton"`
	Solver SolverConfig `yaml:"solver"`
	Log    LogConfig    `yaml:"log"`
}

type NewtonConfig struct {
	Mode                 string  `yaml:"mode" validate:"oneof=linear linear_implicit nonlinear"`
	Tolerance            float64 `yaml:"tolerance" validate:"gt=0"`
	MaxIterations        int     `yaml:"max_iterations" validate:"gte=1"`
	ResetLambdas         bool    `yaml:"reset_lambdas"`
	SkipLastUpdateOutput bool    `yaml:"skip_last_update_output"`
	SkipLastUpdateInput  bool    `yaml:"skip_last_update_input"`
	WarnOnNonConvergence bool    `yaml:"warn_on_non_convergence"`
	ComputeResiduY       bool    `yaml:"compute_residu_y"`
	ComputeResiduR       bool    `yaml:"compute_residu_r"`
}

type SolverConfig struct {
	Name                   string  `yaml:"name" validate:"oneof=pgs"`
	MaxIterations          int     `yaml:"max_iterations" validate:"gte=0"`
	WarnOnFailure          bool    `yaml:"warn_on_failure"`
	ActivationTolerance    float64 `yaml:"activation_tolerance" validate:"gt=0"`
	ProjectionMaxIteration int     `yaml:"projection_max_iteration" validate:"gte=1"`
}

type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=console json"`
}

func DefaultConfig() *Config {
	opts := timestepping.DefaultOptions()
	return &Config{
		Model:    "bouncing_ball",
		Theta:    DefaultTheta,
		Dt:       DefaultDt,
		Duration: DefaultDuration,
		Newton: NewtonConfig{
			Mode:                 opts.NewtonMode.String(),
			Tolerance:            opts.NewtonTolerance,
			MaxIterations:        opts.NewtonMaxIteration,
			ResetLambdas:         opts.ResetLambdas,
			SkipLastUpdateOutput: opts.SkipLastUpdateOutput,
			SkipLastUpdateInput:  opts.SkipLastUpdateInput,
			WarnOnNonConvergence: opts.WarnOnNonConvergence,
			ComputeResiduY:       opts.ComputeResiduY,
			ComputeResiduR:       opts.ComputeResiduR,
		},
		Solver: SolverConfig{
			Name:                   DefaultSolver,
			WarnOnFailure:          opts.WarnOnSolverFailure,
			ActivationTolerance:    opts.ActivationTolerance,
			ProjectionMaxIteration: opts.ProjectionMaxIteration,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads a YAML file over the defaults, so a file only needs the keys
// it changes.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", nsds.ErrConfiguration, path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

var validate = validator.New()

func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return nsds.Configf("config", "%s=%v violates %s %s", fe.Namespace(), fe.Value(), fe.Tag(), fe.Param())
	}
	return nsds.Configf("config", "%v", err)
}

// Options maps the Newton and solver sections onto the orchestrator
// options.
func (c *Config) Options() (timestepping.Options, error) {
	mode, err := timestepping.ParseNewtonMode(c.Newton.Mode)
	if err != nil {
		return timestepping.Options{}, err
	}
	opts := timestepping.Options{
		NewtonTolerance:        c.Newton.Tolerance,
		NewtonMaxIteration:     c.Newton.MaxIterations,
		NewtonMode:             mode,
		ResetLambdas:           c.Newton.ResetLambdas,
		SkipLastUpdateOutput:   c.Newton.SkipLastUpdateOutput,
		SkipLastUpdateInput:    c.Newton.SkipLastUpdateInput,
		WarnOnNonConvergence:   c.Newton.WarnOnNonConvergence,
		WarnOnSolverFailure:    c.Solver.WarnOnFailure,
		ComputeResiduY:         c.Newton.ComputeResiduY,
		ComputeResiduR:         c.Newton.ComputeResiduR,
		ActivationTolerance:    c.Solver.ActivationTolerance,
		ProjectionMaxIteration: c.Solver.ProjectionMaxIteration,
		Workers:                c.Workers,
	}
	return opts, opts.Validate()
}
