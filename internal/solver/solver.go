// Package solver is the boundary to the nonsmooth subproblem.
//
// The orchestrator assembles y = W lambda + q over the active interactions
// and hands it to a Solver together with one nonsmooth law per block. The
// solver is an oracle: it returns the multipliers and a status code, 0 on
// success. The orchestrator relies on nothing else than idempotence and the
// status contract.
package solver

import (
	"fmt"

	"github.com/san-kum/nssim/internal/nsds"
	"gonum.org/v1/gonum/mat"
)

// Status is the integer code returned by a solve. Zero is success; any
// other value is a failure whose meaning belongs to the solver family.
type Status int

const (
	StatusSuccess      Status = 0
	StatusMaxIteration Status = 1
	StatusSingular     Status = 2
	StatusInvalid      Status = 3
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusMaxIteration:
		return "max iterations reached"
	case StatusSingular:
		return "singular diagonal"
	case StatusInvalid:
		return "invalid problem"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// DefaultTolerance is used when a problem carries no tolerance.
const DefaultTolerance = 1e-10

// Block places one interaction's multiplier in the global vector.
type Block struct {
	Interaction nsds.InteractionID
	Offset      int
	Law         nsds.NonSmoothLaw
}

// Problem is y = W lambda + q with (y_b, lambda_b) in the admissible set of
// the law of every block b.
type Problem struct {
	Level     int
	W         *mat.Dense
	Q         nsds.Vector
	Blocks    []Block
	Tolerance float64
}

func (p *Problem) Size() int { return len(p.Q) }

// Validate checks that the blocks tile q and that W is square of that size.
func (p *Problem) Validate() error {
	n := p.Size()
	off := 0
	for _, b := range p.Blocks {
		if b.Law == nil {
			return fmt.Errorf("solver: block %d has no law", b.Interaction)
		}
		if b.Offset != off {
			return fmt.Errorf("solver: block %d at offset %d, want %d", b.Interaction, b.Offset, off)
		}
		off += b.Law.Size()
	}
	if off != n {
		return fmt.Errorf("solver: blocks cover %d components, q has %d", off, n)
	}
	if n == 0 {
		return nil
	}
	if p.W == nil {
		return fmt.Errorf("solver: missing W")
	}
	if r, c := p.W.Dims(); r != n || c != n {
		return fmt.Errorf("solver: W is %dx%d, want %dx%d", r, c, n, n)
	}
	return nil
}

func (p *Problem) tolerance() float64 {
	if p.Tolerance > 0 {
		return p.Tolerance
	}
	return DefaultTolerance
}

// Solution carries the multipliers, the resulting outputs and solver
// diagnostics.
type Solution struct {
	Lambda     nsds.Vector
	Y          nsds.Vector
	Iterations int
	Error      float64
}

// Block returns the multipliers of block b.
func (s Solution) Block(b Block) nsds.Vector {
	return s.Lambda[b.Offset : b.Offset+b.Law.Size()]
}

// Solver solves a nonsmooth subproblem.
type Solver interface {
	Solve(p *Problem) (Solution, Status)
}

// Func adapts a plain function to Solver.
type Func func(p *Problem) (Solution, Status)

func (f Func) Solve(p *Problem) (Solution, Status) { return f(p) }
