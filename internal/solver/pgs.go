package solver

import (
	"math"

	"github.com/san-kum/nssim/internal/nsds"
)

// ProjectedGaussSeidel is a small dense reference solver for box laws:
// component-wise Gauss-Seidel sweeps followed by projection onto each
// component's interval. It always starts from zero multipliers, so
// identical problems give identical answers.
type ProjectedGaussSeidel struct {
	MaxIterations int
}

func NewProjectedGaussSeidel(maxIterations int) *ProjectedGaussSeidel {
	if maxIterations < 1 {
		maxIterations = 1000
	}
	return &ProjectedGaussSeidel{MaxIterations: maxIterations}
}

func (s *ProjectedGaussSeidel) Solve(p *Problem) (Solution, Status) {
	n := p.Size()
	sol := Solution{Lambda: nsds.NewVector(n), Y: nsds.NewVector(n)}
	if err := p.Validate(); err != nil {
		return sol, StatusInvalid
	}
	if n == 0 {
		return sol, StatusSuccess
	}

	laws, comps := expand(p.Blocks, n)
	lambda := sol.Lambda
	tol := p.tolerance()

	for it := 1; it <= s.MaxIterations; it++ {
		for i := 0; i < n; i++ {
			wii := p.W.At(i, i)
			if wii <= 0 {
				return sol, StatusSingular
			}
			w := p.Q[i]
			for j := 0; j < n; j++ {
				w += p.W.At(i, j) * lambda[j]
			}
			lambda[i] = nsds.Project(laws[i], comps[i], lambda[i]-w/wii)
		}

		sol.Iterations = it
		sol.Error = s.residual(p, laws, comps, lambda, sol.Y)
		if sol.Error <= tol {
			return sol, StatusSuccess
		}
	}
	return sol, StatusMaxIteration
}

// residual fills y = W lambda + q and returns max |lambda - proj(lambda - y)|.
func (s *ProjectedGaussSeidel) residual(p *Problem, laws []nsds.NonSmoothLaw, comps []int, lambda, y nsds.Vector) float64 {
	n := len(lambda)
	e := 0.0
	for i := 0; i < n; i++ {
		yi := p.Q[i]
		for j := 0; j < n; j++ {
			yi += p.W.At(i, j) * lambda[j]
		}
		y[i] = yi
		e = math.Max(e, math.Abs(lambda[i]-nsds.Project(laws[i], comps[i], lambda[i]-yi)))
	}
	return e
}

func expand(blocks []Block, n int) ([]nsds.NonSmoothLaw, []int) {
	laws := make([]nsds.NonSmoothLaw, n)
	comps := make([]int, n)
	for _, b := range blocks {
		for k := 0; k < b.Law.Size(); k++ {
			laws[b.Offset+k] = b.Law
			comps[b.Offset+k] = k
		}
	}
	return laws, comps
}
