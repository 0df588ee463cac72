package nsds

import "math"

// NonSmoothLaw is the admissible set constraining (y, lambda) at one level.
// Every law shipped here is a box law: lambda lies in a product of
// intervals and -y belongs to the normal cone of the box at lambda.
type NonSmoothLaw interface {
	Name() string
	// Size is the multiplier dimension.
	Size() int
	// Bounds returns the interval of multiplier component i.
	Bounds(i int) (lo, hi float64)
	Admissible(y, lambda Vector, tol float64) bool
}

// Project clamps x into the interval of component i of law.
func Project(law NonSmoothLaw, i int, x float64) float64 {
	lo, hi := law.Bounds(i)
	return math.Min(math.Max(x, lo), hi)
}

// NaturalResidual is max_i |lambda_i - proj_i(lambda_i - y_i)|, zero
// exactly when (y, lambda) is admissible.
func NaturalResidual(law NonSmoothLaw, y, lambda Vector) float64 {
	m := 0.0
	for i := 0; i < law.Size() && i < len(y) && i < len(lambda); i++ {
		d := math.Abs(lambda[i] - Project(law, i, lambda[i]-y[i]))
		if d > m {
			m = d
		}
	}
	return m
}

func boxAdmissible(law NonSmoothLaw, y, lambda Vector, tol float64) bool {
	if len(y) < law.Size() || len(lambda) < law.Size() {
		return false
	}
	return NaturalResidual(law, y, lambda) <= tol
}

// NewtonImpactLaw is a scalar unilateral contact with restitution
// coefficient E: 0 <= y + E*y_old perp lambda >= 0 at the velocity level.
type NewtonImpactLaw struct {
	E float64
}

func (NewtonImpactLaw) Name() string { return "newton_impact" }
func (NewtonImpactLaw) Size() int    { return 1 }
func (NewtonImpactLaw) Bounds(int) (float64, float64) {
	return 0, math.Inf(1)
}
func (l NewtonImpactLaw) Admissible(y, lambda Vector, tol float64) bool {
	return boxAdmissible(l, y, lambda, tol)
}
func (l NewtonImpactLaw) Restitution() float64 { return l.E }

// ComplementarityLaw is 0 <= y perp lambda >= 0 componentwise.
type ComplementarityLaw struct {
	N int
}

func (ComplementarityLaw) Name() string { return "complementarity" }
func (l ComplementarityLaw) Size() int  { return l.N }
func (ComplementarityLaw) Bounds(int) (float64, float64) {
	return 0, math.Inf(1)
}
func (l ComplementarityLaw) Admissible(y, lambda Vector, tol float64) bool {
	return boxAdmissible(l, y, lambda, tol)
}

// RelayLaw keeps lambda in [Lower, Upper] with y = 0 strictly inside,
// y >= 0 at Lower and y <= 0 at Upper.
type RelayLaw struct {
	Lower, Upper Vector
}

// NewRelayLaw returns the symmetric relay [-1, 1]^n.
func NewRelayLaw(n int) RelayLaw {
	lo, hi := NewVector(n), NewVector(n)
	for i := 0; i < n; i++ {
		lo[i], hi[i] = -1, 1
	}
	return RelayLaw{Lower: lo, Upper: hi}
}

func (RelayLaw) Name() string { return "relay" }
func (l RelayLaw) Size() int  { return len(l.Lower) }
func (l RelayLaw) Bounds(i int) (float64, float64) {
	return l.Lower[i], l.Upper[i]
}
func (l RelayLaw) Admissible(y, lambda Vector, tol float64) bool {
	return boxAdmissible(l, y, lambda, tol)
}

// EqualityLaw is a bilateral constraint y = 0 with a free multiplier.
type EqualityLaw struct {
	N int
}

func (EqualityLaw) Name() string { return "equality" }
func (l EqualityLaw) Size() int  { return l.N }
func (EqualityLaw) Bounds(int) (float64, float64) {
	return math.Inf(-1), math.Inf(1)
}
func (l EqualityLaw) Admissible(y, lambda Vector, tol float64) bool {
	return boxAdmissible(l, y, lambda, tol)
}

// Restitution returns the restitution coefficient of law, 0 when the law
// has none.
func Restitution(law NonSmoothLaw) float64 {
	if r, ok := law.(interface{ Restitution() float64 }); ok {
		return r.Restitution()
	}
	return 0
}

func checkLaw(entity string, law NonSmoothLaw) error {
	if law == nil {
		return Configf(entity, "missing nonsmooth law")
	}
	if law.Size() < 1 {
		return Configf(entity, "law %s has size %d", law.Name(), law.Size())
	}
	if r, ok := law.(RelayLaw); ok {
		if len(r.Upper) != len(r.Lower) {
			return Configf(entity, "relay bounds sizes %d and %d differ", len(r.Lower), len(r.Upper))
		}
		for i := range r.Lower {
			if r.Lower[i] > r.Upper[i] {
				return Configf(entity, "relay bound %d: lower %g above upper %g", i, r.Lower[i], r.Upper[i])
			}
		}
	}
	return nil
}
