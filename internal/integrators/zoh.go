package integrators

import (
	"math"

	"github.com/san-kum/nssim/internal/nsds"
	"gonum.org/v1/gonum/mat"
)

// ZeroOrderHold integrates x' = A x + b + r exactly over a step with b and
// r held constant. Phi = e^{Ah} and Psi = int_0^h e^{As} ds are read off
// the exponential of the augmented matrix [[A, I], [0, 0]] h.
type ZeroOrderHold struct {
	Base

	work map[nsds.DSID]*transition
}

type transition struct {
	h   float64
	phi *mat.Dense
	psi *mat.Dense
}

func NewZeroOrderHold() *ZeroOrderHold {
	return &ZeroOrderHold{
		Base: newBase("zoh", 0, 0, 0, 0),
		work: make(map[nsds.DSID]*transition),
	}
}

func (z *ZeroOrderHold) NumberOfIndexSets() int { return 1 }
func (z *ZeroOrderHold) InputLevel() int        { return 0 }

func (z *ZeroOrderHold) InitializeForSystem(id nsds.DSID) error {
	if z.sim == nil {
		return nsds.Configf(z.name, "integrator used before Bind")
	}
	sys := z.sim.Graph().System(id)
	ds, ok := sys.(*nsds.FirstOrderLinearDS)
	if !ok {
		return nsds.Configf(sys.Name(), "%s does not support %T", z.name, sys)
	}
	if err := z.attach(id); err != nil {
		return err
	}
	tr := &transition{}
	if err := buildTransition(ds, tr, z.sim.TimeStep()); err != nil {
		return err
	}
	z.work[id] = tr
	return nil
}

func buildTransition(ds *nsds.FirstOrderLinearDS, tr *transition, h float64) error {
	n := ds.Dim()
	aug := mat.NewDense(2*n, 2*n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			aug.Set(i, j, ds.A.At(i, j)*h)
		}
		aug.Set(i, n+i, h)
	}
	var e mat.Dense
	e.Exp(aug)
	for _, v := range e.RawMatrix().Data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nsds.Configf(ds.Name(), "state transition overflows at h=%g", h)
		}
	}
	tr.h = h
	tr.phi = mat.DenseCopyOf(e.Slice(0, n, 0, n))
	tr.psi = mat.DenseCopyOf(e.Slice(0, n, n, 2*n))
	return nil
}

func (z *ZeroOrderHold) transitionFor(id nsds.DSID, ds *nsds.FirstOrderLinearDS, h float64) (*transition, error) {
	tr := z.work[id]
	if tr.h != h {
		if err := buildTransition(ds, tr, h); err != nil {
			return nil, err
		}
	}
	return tr, nil
}

// ComputeFreeState writes xfree = Phi xk + Psi b.
func (z *ZeroOrderHold) ComputeFreeState() error {
	g := z.sim.Graph()
	h := z.sim.TimeStep()
	return z.forEachSystem(func(id nsds.DSID) error {
		ds := g.System(id).(*nsds.FirstOrderLinearDS)
		tr, err := z.transitionFor(id, ds, h)
		if err != nil {
			return err
		}
		free := nsds.MulVec(tr.phi, ds.XMemory(0))
		if ds.B != nil {
			pb := nsds.MulVec(tr.psi, ds.B)
			for i := range free {
				free[i] += pb[i]
			}
		}
		ds.XFree.CopyFrom(free)
		return nil
	})
}

// UpdateState applies x = xfree + Psi r.
func (z *ZeroOrderHold) UpdateState(level int) error {
	if level != 0 && level != 1 {
		return nsds.NotImplementedf("%s: no state update at level %d", z.name, level)
	}
	g := z.sim.Graph()
	h := z.sim.TimeStep()
	return z.forEachSystem(func(id nsds.DSID) error {
		ds := g.System(id).(*nsds.FirstOrderLinearDS)
		tr, err := z.transitionFor(id, ds, h)
		if err != nil {
			return err
		}
		pr := nsds.MulVec(tr.psi, ds.R)
		for i := range ds.X {
			ds.X[i] = ds.XFree[i] + pr[i]
		}
		return nil
	})
}

// ComputeResidu is the largest component of x - xfree - Psi r.
func (z *ZeroOrderHold) ComputeResidu() float64 {
	g := z.sim.Graph()
	res := 0.0
	for _, id := range z.systems {
		ds := g.System(id).(*nsds.FirstOrderLinearDS)
		pr := nsds.MulVec(z.work[id].psi, ds.R)
		for i := range ds.Residu {
			ds.Residu[i] = ds.X[i] - ds.XFree[i] - pr[i]
		}
		res = math.Max(res, ds.Residu.NormInf())
	}
	return res
}

// ComputeFreeOutput is C xfree + e.
func (z *ZeroOrderHold) ComputeFreeOutput(id nsds.InteractionID, level int) (nsds.Vector, error) {
	if level != 0 {
		return nil, nsds.NotImplementedf("%s: no free output at level %d", z.name, level)
	}
	g := z.sim.Graph()
	inter := g.Interaction(id)
	out := nsds.NewVector(inter.Size())
	for k, dsID := range inter.Systems() {
		ds := g.System(dsID).(*nsds.FirstOrderLinearDS)
		cx := nsds.MulVec(inter.Relation.OutputBlock(k), ds.XFree)
		for i := range out {
			out[i] += cx[i]
		}
	}
	if rel, ok := inter.Relation.(*nsds.FirstOrderLinearRelation); ok && rel.E != nil {
		for i := range out {
			out[i] += rel.E[i]
		}
	}
	return out, nil
}

// CouplingBlock is the sum over shared systems of C_a Psi B_b, plus D on
// the diagonal block.
func (z *ZeroOrderHold) CouplingBlock(a, b nsds.InteractionID, level int) (*mat.Dense, error) {
	if level != 0 {
		return nil, nsds.NotImplementedf("%s: no coupling block at level %d", z.name, level)
	}
	g := z.sim.Graph()
	blk := assembleBlock(g, a, b, func(ds nsds.DSID) mat.Matrix {
		return z.work[ds].psi
	})
	if a == b && blk != nil {
		if rel, ok := g.Interaction(a).Relation.(*nsds.FirstOrderLinearRelation); ok && rel.D != nil {
			blk.Add(blk, rel.D)
		}
	}
	return blk, nil
}

// AddInteractionInIndexSet keeps every interaction in IndexSet_0, the only
// level this scheme uses.
func (z *ZeroOrderHold) AddInteractionInIndexSet(id nsds.InteractionID, level int) (bool, error) {
	if level == 0 {
		return true, nil
	}
	return z.Base.AddInteractionInIndexSet(id, level)
}

func (z *ZeroOrderHold) RemoveInteractionFromIndexSet(id nsds.InteractionID, level int) (bool, error) {
	if level == 0 {
		return false, nil
	}
	return z.Base.RemoveInteractionFromIndexSet(id, level)
}
