package nsds

import (
	"gonum.org/v1/gonum/mat"
)

// DSID is a stable handle to a dynamical system in a Graph.
type DSID int

// MaxLevels bounds the derivative levels carried by outputs and inputs.
const MaxLevels = 3

// DynamicalSystem is the contract the integrators and the orchestrator
// consume. Concrete kinds are LagrangianLinearDS and FirstOrderLinearDS;
// each integrator accepts the kinds it knows and rejects the others with a
// ConfigError.
type DynamicalSystem interface {
	Name() string
	// Dim is the size of the generalized coordinates (q for mechanical
	// systems, x for first order ones).
	Dim() int
	InitMemory(depth int)
	// SwapInMemory pushes the current state as the newest snapshot.
	SwapInMemory()
	// RestoreFromMemory resets the current state to the newest snapshot.
	RestoreFromMemory()
	Memory() *Memory
	// Input is the generalized input fed by the multipliers at level, nil
	// when the system has no input at that level.
	Input(level int) Vector
	ResetNonSmoothPart(level int)
	ResetAllNonSmoothParts()
	IsValid() bool
}

// ForceFunc returns external forces at time t.
type ForceFunc func(t float64) Vector

// LagrangianLinearDS is M q'' + C q' + K q = Fext(t) + p.
type LagrangianLinearDS struct {
	name string

	Q, V   Vector
	Q0, V0 Vector
	M      *mat.Dense
	// K and C may be nil (zero stiffness / damping).
	K, C *mat.Dense
	Fext ForceFunc

	VFree  Vector
	Residu Vector
	// P[level] accumulates H^T lambda[level]; P[1] is the impulse,
	// P[0] the position-level correction used by projection schemes.
	P [MaxLevels]Vector

	mem *Memory
}

// NewLagrangianLinearDS validates dimensions and copies the initial state.
func NewLagrangianLinearDS(name string, q0, v0 Vector, m *mat.Dense) (*LagrangianLinearDS, error) {
	n := len(q0)
	if n == 0 {
		return nil, Configf(name, "empty generalized coordinates")
	}
	if len(v0) != n {
		return nil, Configf(name, "velocity size %d, want %d", len(v0), n)
	}
	if m == nil {
		return nil, Configf(name, "missing mass matrix")
	}
	if r, c := m.Dims(); r != n || c != n {
		return nil, Configf(name, "mass matrix is %dx%d, want %dx%d", r, c, n, n)
	}
	ds := &LagrangianLinearDS{
		name:   name,
		Q:      q0.Clone(),
		V:      v0.Clone(),
		Q0:     q0.Clone(),
		V0:     v0.Clone(),
		M:      m,
		VFree:  NewVector(n),
		Residu: NewVector(n),
	}
	for i := range ds.P {
		ds.P[i] = NewVector(n)
	}
	ds.InitMemory(1)
	return ds, nil
}

// SetStiffness sets K; a nil matrix removes it.
func (d *LagrangianLinearDS) SetStiffness(k *mat.Dense) error {
	if err := d.checkSquare("stiffness", k); err != nil {
		return err
	}
	d.K = k
	return nil
}

// SetDamping sets C; a nil matrix removes it.
func (d *LagrangianLinearDS) SetDamping(c *mat.Dense) error {
	if err := d.checkSquare("damping", c); err != nil {
		return err
	}
	d.C = c
	return nil
}

func (d *LagrangianLinearDS) checkSquare(what string, a *mat.Dense) error {
	if a == nil {
		return nil
	}
	n := d.Dim()
	if r, c := a.Dims(); r != n || c != n {
		return Configf(d.name, "%s matrix is %dx%d, want %dx%d", what, r, c, n, n)
	}
	return nil
}

// Forces evaluates Fext(t), or zero when no external force is set. A force
// of the wrong size is a configuration error.
func (d *LagrangianLinearDS) Forces(t float64) (Vector, error) {
	if d.Fext == nil {
		return NewVector(d.Dim()), nil
	}
	f := d.Fext(t)
	if len(f) != d.Dim() {
		return nil, Configf(d.name, "force size %d at t=%g, want %d", len(f), t, d.Dim())
	}
	return f, nil
}

func (d *LagrangianLinearDS) Name() string { return d.name }
func (d *LagrangianLinearDS) Dim() int     { return len(d.Q) }

func (d *LagrangianLinearDS) InitMemory(depth int) {
	d.mem = NewMemory(depth, 2*d.Dim())
	d.SwapInMemory()
}

func (d *LagrangianLinearDS) SwapInMemory() {
	n := d.Dim()
	snap := make(Vector, 2*n)
	copy(snap[:n], d.Q)
	copy(snap[n:], d.V)
	d.mem.Push(snap)
}

func (d *LagrangianLinearDS) RestoreFromMemory() {
	d.Q.CopyFrom(d.QMemory(0))
	d.V.CopyFrom(d.VMemory(0))
}

func (d *LagrangianLinearDS) Memory() *Memory { return d.mem }

// QMemory is the position k steps back (0 = start of the current step).
func (d *LagrangianLinearDS) QMemory(k int) Vector {
	s := d.mem.At(k)
	if s == nil {
		return nil
	}
	return s[:d.Dim()]
}

// VMemory is the velocity k steps back (0 = start of the current step).
func (d *LagrangianLinearDS) VMemory(k int) Vector {
	s := d.mem.At(k)
	if s == nil {
		return nil
	}
	return s[d.Dim():]
}

func (d *LagrangianLinearDS) Input(level int) Vector {
	if level < 0 || level >= MaxLevels {
		return nil
	}
	return d.P[level]
}

func (d *LagrangianLinearDS) ResetNonSmoothPart(level int) {
	if level >= 0 && level < MaxLevels {
		d.P[level].Zero()
	}
}

func (d *LagrangianLinearDS) ResetAllNonSmoothParts() {
	for i := range d.P {
		d.P[i].Zero()
	}
}

func (d *LagrangianLinearDS) IsValid() bool {
	return d.Q.IsValid() && d.V.IsValid()
}

// FirstOrderLinearDS is x' = A x + b + r.
type FirstOrderLinearDS struct {
	name string

	X  Vector
	X0 Vector
	A  *mat.Dense
	// B is a constant forcing term; nil means zero.
	B Vector

	XFree  Vector
	Residu Vector
	R      Vector

	mem *Memory
}

func NewFirstOrderLinearDS(name string, x0 Vector, a *mat.Dense) (*FirstOrderLinearDS, error) {
	n := len(x0)
	if n == 0 {
		return nil, Configf(name, "empty state")
	}
	if a == nil {
		return nil, Configf(name, "missing system matrix A")
	}
	if r, c := a.Dims(); r != n || c != n {
		return nil, Configf(name, "A is %dx%d, want %dx%d", r, c, n, n)
	}
	ds := &FirstOrderLinearDS{
		name:   name,
		X:      x0.Clone(),
		X0:     x0.Clone(),
		A:      a,
		XFree:  NewVector(n),
		Residu: NewVector(n),
		R:      NewVector(n),
	}
	ds.InitMemory(1)
	return ds, nil
}

// SetForcing sets the constant term b.
func (d *FirstOrderLinearDS) SetForcing(b Vector) error {
	if b != nil && len(b) != d.Dim() {
		return Configf(d.name, "forcing size %d, want %d", len(b), d.Dim())
	}
	d.B = b
	return nil
}

func (d *FirstOrderLinearDS) Name() string { return d.name }
func (d *FirstOrderLinearDS) Dim() int     { return len(d.X) }

func (d *FirstOrderLinearDS) InitMemory(depth int) {
	d.mem = NewMemory(depth, d.Dim())
	d.SwapInMemory()
}

func (d *FirstOrderLinearDS) SwapInMemory()        { d.mem.Push(d.X) }
func (d *FirstOrderLinearDS) RestoreFromMemory()   { d.X.CopyFrom(d.XMemory(0)) }
func (d *FirstOrderLinearDS) Memory() *Memory      { return d.mem }
func (d *FirstOrderLinearDS) XMemory(k int) Vector { return d.mem.At(k) }

// Input returns r at level 0; first order systems carry a single input level.
func (d *FirstOrderLinearDS) Input(level int) Vector {
	if level != 0 {
		return nil
	}
	return d.R
}

func (d *FirstOrderLinearDS) ResetNonSmoothPart(int)  { d.R.Zero() }
func (d *FirstOrderLinearDS) ResetAllNonSmoothParts() { d.R.Zero() }
func (d *FirstOrderLinearDS) IsValid() bool           { return d.X.IsValid() }
