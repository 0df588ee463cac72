package solver

import (
	"testing"

	"github.com/san-kum/nssim/internal/nsds"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func contactProblem(w []float64, q nsds.Vector) *Problem {
	n := len(q)
	blocks := make([]Block, n)
	for i := range blocks {
		blocks[i] = Block{Interaction: nsds.InteractionID(i), Offset: i, Law: nsds.NewtonImpactLaw{}}
	}
	return &Problem{Level: 1, W: mat.NewDense(n, n, w), Q: q, Blocks: blocks, Tolerance: 1e-12}
}

func TestProjectedGaussSeidel_Scalar(t *testing.T) {
	tests := []struct {
		name       string
		q          float64
		wantLambda float64
		wantY      float64
	}{
		{"approaching", -2, 1, 0},
		{"separating", 3, 0, 3},
		{"touching", 0, 0, 0},
	}
	s := NewProjectedGaussSeidel(100)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sol, status := s.Solve(contactProblem([]float64{2}, nsds.Vector{tt.q}))
			require.Equal(t, StatusSuccess, status)
			assert.InDelta(t, tt.wantLambda, sol.Lambda[0], 1e-12)
			assert.InDelta(t, tt.wantY, sol.Y[0], 1e-12)
		})
	}
}

func TestProjectedGaussSeidel_CoupledLCP(t *testing.T) {
	p := contactProblem([]float64{2, 1, 1, 2}, nsds.Vector{-1, 1})
	sol, status := NewProjectedGaussSeidel(500).Solve(p)
	require.Equal(t, StatusSuccess, status)

	// lambda = (0.5, 0), y = (0, 1.5)
	assert.InDelta(t, 0.5, sol.Lambda[0], 1e-10)
	assert.InDelta(t, 0, sol.Lambda[1], 1e-10)
	for _, b := range p.Blocks {
		assert.True(t, b.Law.Admissible(sol.Y[b.Offset:b.Offset+1], sol.Block(b), 1e-9))
	}
}

func TestProjectedGaussSeidel_Relay(t *testing.T) {
	p := &Problem{
		W:         mat.NewDense(1, 1, []float64{1}),
		Q:         nsds.Vector{-5},
		Blocks:    []Block{{Offset: 0, Law: nsds.NewRelayLaw(1)}},
		Tolerance: 1e-12,
	}
	sol, status := NewProjectedGaussSeidel(10).Solve(p)
	require.Equal(t, StatusSuccess, status)
	assert.Equal(t, 1.0, sol.Lambda[0])
	assert.InDelta(t, -4, sol.Y[0], 1e-12)
}

func TestProjectedGaussSeidel_Idempotent(t *testing.T) {
	s := NewProjectedGaussSeidel(500)
	p := contactProblem([]float64{3, 1, 0, 1, 3, 1, 0, 1, 3}, nsds.Vector{-1, -2, 0.5})
	a, sa := s.Solve(p)
	b, sb := s.Solve(p)
	assert.Equal(t, sa, sb)
	assert.Equal(t, a.Lambda, b.Lambda)
}

func TestProjectedGaussSeidel_Failures(t *testing.T) {
	s := NewProjectedGaussSeidel(1)

	_, status := s.Solve(contactProblem([]float64{0}, nsds.Vector{-1}))
	assert.Equal(t, StatusSingular, status)

	_, status = s.Solve(&Problem{W: mat.NewDense(2, 2, nil), Q: nsds.Vector{1}})
	assert.Equal(t, StatusInvalid, status)

	_, status = s.Solve(contactProblem([]float64{1, 0.9, 0.9, 1}, nsds.Vector{-1, -1}))
	assert.Equal(t, StatusMaxIteration, status)
}

func TestProjectedGaussSeidel_Empty(t *testing.T) {
	sol, status := NewProjectedGaussSeidel(10).Solve(&Problem{})
	assert.Equal(t, StatusSuccess, status)
	assert.Empty(t, sol.Lambda)
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "success", StatusSuccess.String())
	assert.Equal(t, "status(42)", Status(42).String())
}
