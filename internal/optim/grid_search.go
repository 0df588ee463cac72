// Package optim searches model parameters for the run that minimizes a
// metric.
package optim

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/san-kum/nssim/internal/experiment"
	"github.com/san-kum/nssim/internal/parallel"
)

var ErrNoFeasibleRun = errors.New("optim: every grid point failed")

type GridSearch struct {
	paramNames []string
	ranges     [][]float64
	workers    int
}

// NewGridSearch searches the cartesian product of ranges, ranges[i] being
// the candidate values of params[i].
func NewGridSearch(params []string, ranges [][]float64, workers int) (*GridSearch, error) {
	if len(params) == 0 || len(params) != len(ranges) {
		return nil, fmt.Errorf("optim: %d parameters for %d ranges", len(params), len(ranges))
	}
	for i, r := range ranges {
		if len(r) == 0 {
			return nil, fmt.Errorf("optim: empty range for %s", params[i])
		}
	}
	return &GridSearch{paramNames: params, ranges: ranges, workers: workers}, nil
}

// Points enumerates the grid, the last parameter varying fastest.
func (g *GridSearch) Points() []map[string]float64 {
	points := []map[string]float64{{}}
	for i, name := range g.paramNames {
		next := make([]map[string]float64, 0, len(points)*len(g.ranges[i]))
		for _, p := range points {
			for _, v := range g.ranges[i] {
				q := make(map[string]float64, len(p)+1)
				for k, x := range p {
					q[k] = x
				}
				q[name] = v
				next = append(next, q)
			}
		}
		points = next
	}
	return points
}

type Best struct {
	Params map[string]float64
	Value  float64
	Result *experiment.Result
	// Failed counts grid points whose run did not complete.
	Failed int
}

// Search runs base once per grid point and returns the point with the
// lowest metric. Runs that fail are skipped. Ties keep the earliest point.
func (g *GridSearch) Search(ctx context.Context, reg *experiment.Registry, base experiment.Config, metric string) (*Best, error) {
	points := g.Points()
	values := make([]float64, len(points))
	results := make([]*experiment.Result, len(points))

	var mu sync.Mutex
	failed := 0
	err := parallel.ForEach(ctx, len(points), g.workers, func(i int) error {
		cfg := base
		cfg.Params = make(map[string]float64, len(base.Params)+len(points[i]))
		for k, v := range base.Params {
			cfg.Params[k] = v
		}
		for k, v := range points[i] {
			cfg.Params[k] = v
		}

		values[i] = math.Inf(1)
		exp := experiment.New(cfg)
		if err := exp.Setup(reg, nil); err != nil {
			mu.Lock()
			failed++
			mu.Unlock()
			return nil
		}
		res, err := exp.Run(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			mu.Lock()
			failed++
			mu.Unlock()
			return nil
		}
		v, ok := res.Metrics[metric]
		if !ok {
			return fmt.Errorf("optim: unknown metric %q", metric)
		}
		values[i], results[i] = v, res
		return nil
	})
	if err != nil {
		return nil, err
	}

	best := -1
	for i, v := range values {
		if results[i] != nil && (best < 0 || v < values[best]) {
			best = i
		}
	}
	if best < 0 {
		return nil, ErrNoFeasibleRun
	}
	return &Best{Params: points[best], Value: values[best], Result: results[best], Failed: failed}, nil
}
