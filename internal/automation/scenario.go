// Package automation runs scripted batches of simulations described in
// YAML scenario files.
package automation

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/san-kum/nssim/internal/config"
	"github.com/san-kum/nssim/internal/experiment"
	"github.com/san-kum/nssim/internal/logging"
	"github.com/san-kum/nssim/internal/nsds"
	"gopkg.in/yaml.v3"
)

// Scenario defines a scripted simulation sequence.
type Scenario struct {
	Name        string `yaml:"name" validate:"required"`
	Description string `yaml:"description"`
	Steps       []Step `yaml:"steps" validate:"required,min=1,dive"`
}

// Step is one run of a scenario. Zero fields keep the value of the preset,
// or of the defaults when no preset is named.
type Step struct {
	Name       string             `yaml:"name"`
	Model      string             `yaml:"model" validate:"required"`
	Preset     string             `yaml:"preset"`
	Integrator string             `yaml:"integrator"`
	Newton     string             `yaml:"newton" validate:"omitempty,oneof=linear linear_implicit nonlinear"`
	Dt         float64            `yaml:"dt" validate:"gte=0"`
	Duration   float64            `yaml:"duration" validate:"gte=0"`
	Params     map[string]float64 `yaml:"params"`
	Save       bool               `yaml:"save"`
}

var validate = validator.New()

func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", nsds.ErrConfiguration, path, err)
	}
	if err := validate.Struct(&sc); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return nil, nsds.Configf("scenario", "%s violates %s", verrs[0].Namespace(), verrs[0].Tag())
		}
		return nil, nsds.Configf("scenario", "%v", err)
	}
	return &sc, nil
}

// Config resolves the step into an experiment configuration.
func (s Step) Config() (experiment.Config, error) {
	cfg := config.DefaultConfig()
	if s.Preset != "" {
		cfg = config.GetPreset(s.Model, s.Preset)
		if cfg == nil {
			return experiment.Config{}, nsds.Configf("scenario", "unknown preset %s/%s", s.Model, s.Preset)
		}
	}
	cfg.Model = s.Model
	if s.Integrator != "" {
		cfg.Integrator = s.Integrator
	}
	if s.Newton != "" {
		cfg.Newton.Mode = s.Newton
	}
	if s.Dt > 0 {
		cfg.Dt = s.Dt
	}
	if s.Duration > 0 {
		cfg.Duration = s.Duration
	}
	if len(s.Params) > 0 {
		merged := make(map[string]float64, len(cfg.Params)+len(s.Params))
		for k, v := range cfg.Params {
			merged[k] = v
		}
		for k, v := range s.Params {
			merged[k] = v
		}
		cfg.Params = merged
	}
	if err := cfg.Validate(); err != nil {
		return experiment.Config{}, err
	}
	opts, err := cfg.Options()
	if err != nil {
		return experiment.Config{}, err
	}
	return experiment.Config{
		Model:               cfg.Model,
		Integrator:          cfg.Integrator,
		Theta:               cfg.Theta,
		Solver:              cfg.Solver.Name,
		SolverMaxIterations: cfg.Solver.MaxIterations,
		Dt:                  cfg.Dt,
		Duration:            cfg.Duration,
		Params:              cfg.Params,
		Options:             opts,
	}, nil
}

// Saver persists a finished run; storage.Store implements it.
type Saver interface {
	Save(cfg experiment.Config, res *experiment.Result, runErr error) (string, error)
}

type StepResult struct {
	Step   Step
	RunID  string
	Result *experiment.Result
}

type Runner struct {
	Registry *experiment.Registry
	Store    Saver
	Log      logging.Logger
}

// Run executes the steps in order and stops at the first failing one. The
// results of the steps that completed are returned with the error.
func (r *Runner) Run(ctx context.Context, sc *Scenario) ([]StepResult, error) {
	log := r.Log
	if log == nil {
		log = logging.NewNop()
	}
	log = log.With("scenario", sc.Name)

	results := make([]StepResult, 0, len(sc.Steps))
	for i, step := range sc.Steps {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		label := step.Name
		if label == "" {
			label = fmt.Sprintf("%d/%s", i+1, step.Model)
		}
		log.Info("running step", "step", label)

		cfg, err := step.Config()
		if err != nil {
			return results, fmt.Errorf("step %s: %w", label, err)
		}
		exp := experiment.New(cfg)
		if err := exp.Setup(r.Registry, log.With("step", label)); err != nil {
			return results, fmt.Errorf("step %s setup: %w", label, err)
		}
		res, runErr := exp.Run(ctx)

		sr := StepResult{Step: step, Result: res}
		if step.Save && r.Store != nil && res != nil {
			id, err := r.Store.Save(cfg, res, runErr)
			if err != nil {
				return results, fmt.Errorf("step %s save: %w", label, err)
			}
			sr.RunID = id
		}
		if runErr != nil {
			return results, fmt.Errorf("step %s run: %w", label, runErr)
		}
		results = append(results, sr)
	}
	return results, nil
}
