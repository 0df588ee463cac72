package nsds

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Vector is a dense column of reals. It is the storage type for states,
// outputs, multipliers and generalized inputs.
type Vector []float64

func NewVector(n int) Vector {
	return make(Vector, n)
}

func (v Vector) Clone() Vector {
	c := make(Vector, len(v))
	copy(c, v)
	return c
}

func (v Vector) IsValid() bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

// NormInf is the maximum absolute component, 0 for an empty vector.
func (v Vector) NormInf() float64 {
	if len(v) == 0 {
		return 0
	}
	return floats.Norm(v, math.Inf(1))
}

func (v Vector) Zero() {
	for i := range v {
		v[i] = 0
	}
}

func (v Vector) CopyFrom(src Vector) {
	copy(v, src)
}

// Dense views v as a gonum column vector sharing the same backing array.
func (v Vector) Dense() *mat.VecDense {
	if len(v) == 0 {
		return nil
	}
	return mat.NewVecDense(len(v), v)
}

// MulVec returns a*x as a fresh Vector.
func MulVec(a mat.Matrix, x Vector) Vector {
	r, _ := a.Dims()
	out := NewVector(r)
	if r == 0 || len(x) == 0 {
		return out
	}
	mat.NewVecDense(r, out).MulVec(a, x.Dense())
	return out
}

// MulTransVec returns a^T*x as a fresh Vector.
func MulTransVec(a mat.Matrix, x Vector) Vector {
	return MulVec(a.T(), x)
}

// MaxAbsDiff returns max_i |a_i - b_i| over the common prefix.
func MaxAbsDiff(a, b Vector) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	m := 0.0
	for i := 0; i < n; i++ {
		if d := math.Abs(a[i] - b[i]); d > m {
			m = d
		}
	}
	return m
}
