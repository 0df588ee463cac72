package experiment

import (
	"context"
	"fmt"

	"github.com/san-kum/nssim/internal/parallel"
)

// Sweep runs one experiment per value of a model parameter, at most workers
// at a time. Each run builds its own graph, so runs share nothing. Results
// are returned in the order of values.
func Sweep(ctx context.Context, reg *Registry, base Config, param string, values []float64, workers int) ([]*Result, error) {
	results := make([]*Result, len(values))
	err := parallel.ForEach(ctx, len(values), workers, func(i int) error {
		cfg := base
		cfg.Params = make(map[string]float64, len(base.Params)+1)
		for k, v := range base.Params {
			cfg.Params[k] = v
		}
		cfg.Params[param] = values[i]

		exp := New(cfg)
		if err := exp.Setup(reg, nil); err != nil {
			return fmt.Errorf("%s=%g: %w", param, values[i], err)
		}
		res, err := exp.Run(ctx)
		if err != nil {
			return fmt.Errorf("%s=%g: %w", param, values[i], err)
		}
		results[i] = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}
