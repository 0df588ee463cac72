package integrators

import (
	"math"

	"github.com/san-kum/nssim/internal/nsds"
	"gonum.org/v1/gonum/mat"
)

// DefaultGamma weights the velocity in the predicted gap y0 + gamma*h*y1
// used by the activation rule.
const DefaultGamma = 0.5

// MoreauJean is the theta-method on the velocity level for linear
// Lagrangian systems. Impacts are resolved as impulses on IndexSet_1.
type MoreauJean struct {
	Base
	Theta float64
	Gamma float64

	work map[nsds.DSID]*iterationMatrix
}

// iterationMatrix caches W and its inverse for the step size they were
// built with.
type iterationMatrix struct {
	h    float64
	w    *mat.Dense
	wInv *mat.Dense
}

func NewMoreauJean(theta float64) *MoreauJean {
	return &MoreauJean{
		Base:  newBase("moreau_jean", 0, 1, 1, 1),
		Theta: theta,
		Gamma: DefaultGamma,
		work:  make(map[nsds.DSID]*iterationMatrix),
	}
}

func (m *MoreauJean) NumberOfIndexSets() int { return 2 }
func (m *MoreauJean) InputLevel() int        { return 1 }

func (m *MoreauJean) InitializeForSystem(id nsds.DSID) error {
	if m.Theta < 0 || m.Theta > 1 {
		return nsds.Configf(m.name, "theta %g outside [0, 1]", m.Theta)
	}
	if m.sim == nil {
		return nsds.Configf(m.name, "integrator used before Bind")
	}
	ds, err := lagrangian(m.name, m.sim.Graph().System(id))
	if err != nil {
		return err
	}
	if err := m.attach(id); err != nil {
		return err
	}
	work := &iterationMatrix{}
	if err := m.buildW(ds, work, m.sim.TimeStep()); err != nil {
		return err
	}
	m.work[id] = work
	return nil
}

func lagrangian(scheme string, sys nsds.DynamicalSystem) (*nsds.LagrangianLinearDS, error) {
	ds, ok := sys.(*nsds.LagrangianLinearDS)
	if !ok {
		return nil, nsds.Configf(sys.Name(), "%s does not support %T", scheme, sys)
	}
	return ds, nil
}

// buildW computes W = M + h theta C + h^2 theta^2 K and its inverse.
func (m *MoreauJean) buildW(ds *nsds.LagrangianLinearDS, work *iterationMatrix, h float64) error {
	n := ds.Dim()
	w := mat.NewDense(n, n, nil)
	w.Copy(ds.M)
	if ds.C != nil {
		var hc mat.Dense
		hc.Scale(h*m.Theta, ds.C)
		w.Add(w, &hc)
	}
	if ds.K != nil {
		var hk mat.Dense
		hk.Scale(h*h*m.Theta*m.Theta, ds.K)
		w.Add(w, &hk)
	}
	var inv mat.Dense
	if err := inv.Inverse(w); err != nil {
		return nsds.Configf(ds.Name(), "iteration matrix is singular: %v", err)
	}
	work.h, work.w, work.wInv = h, w, &inv
	return nil
}

// iteration returns W^-1 for ds at step size h, rebuilding it when the
// step changed.
func (m *MoreauJean) iteration(id nsds.DSID, ds *nsds.LagrangianLinearDS, h float64) (*mat.Dense, error) {
	work := m.work[id]
	if work.h != h {
		if err := m.buildW(ds, work, h); err != nil {
			return nil, err
		}
	}
	return work.wInv, nil
}

// ComputeFreeState writes
// vfree = vk + W^-1 (-h C vk - h K qk - h^2 theta K vk + h F_theta).
func (m *MoreauJean) ComputeFreeState() error {
	g := m.sim.Graph()
	h := m.sim.TimeStep()
	t0, t1 := m.sim.CurrentTime(), m.sim.NextTime()
	theta := m.Theta
	return m.forEachSystem(func(id nsds.DSID) error {
		ds := g.System(id).(*nsds.LagrangianLinearDS)
		wInv, err := m.iteration(id, ds, h)
		if err != nil {
			return err
		}
		qk, vk := ds.QMemory(0), ds.VMemory(0)
		rhs, err := thetaForces(ds, t0, t1, theta)
		if err != nil {
			return err
		}
		for i := range rhs {
			rhs[i] *= h
		}
		if ds.C != nil {
			cv := nsds.MulVec(ds.C, vk)
			for i := range rhs {
				rhs[i] -= h * cv[i]
			}
		}
		if ds.K != nil {
			kq, kv := nsds.MulVec(ds.K, qk), nsds.MulVec(ds.K, vk)
			for i := range rhs {
				rhs[i] -= h*kq[i] + h*h*theta*kv[i]
			}
		}
		dv := nsds.MulVec(wInv, rhs)
		for i := range ds.VFree {
			ds.VFree[i] = vk[i] + dv[i]
		}
		return nil
	})
}

// UpdateState applies v = vfree + W^-1 p[1], q = qk + h (theta v + (1-theta) vk).
func (m *MoreauJean) UpdateState(level int) error {
	if level != 0 && level != 1 {
		return nsds.NotImplementedf("%s: no state update at level %d", m.name, level)
	}
	g := m.sim.Graph()
	h := m.sim.TimeStep()
	theta := m.Theta
	return m.forEachSystem(func(id nsds.DSID) error {
		ds := g.System(id).(*nsds.LagrangianLinearDS)
		wInv, err := m.iteration(id, ds, h)
		if err != nil {
			return err
		}
		dv := nsds.MulVec(wInv, ds.P[1])
		qk, vk := ds.QMemory(0), ds.VMemory(0)
		for i := range ds.V {
			ds.V[i] = ds.VFree[i] + dv[i]
			ds.Q[i] = qk[i] + h*(theta*ds.V[i]+(1-theta)*vk[i])
		}
		return nil
	})
}

// ComputeResidu evaluates M(v-vk) + h(C v_theta + K q_theta) - h F_theta - p[1]
// for every system and returns its largest component.
func (m *MoreauJean) ComputeResidu() float64 {
	g := m.sim.Graph()
	h := m.sim.TimeStep()
	t0, t1 := m.sim.CurrentTime(), m.sim.NextTime()
	theta := m.Theta
	_ = m.forEachSystem(func(id nsds.DSID) error {
		ds := g.System(id).(*nsds.LagrangianLinearDS)
		qk, vk := ds.QMemory(0), ds.VMemory(0)
		n := ds.Dim()
		dv, vTheta, qTheta := nsds.NewVector(n), nsds.NewVector(n), nsds.NewVector(n)
		for i := 0; i < n; i++ {
			dv[i] = ds.V[i] - vk[i]
			vTheta[i] = theta*ds.V[i] + (1-theta)*vk[i]
			qTheta[i] = theta*ds.Q[i] + (1-theta)*qk[i]
		}
		r := nsds.MulVec(ds.M, dv)
		if ds.C != nil {
			cv := nsds.MulVec(ds.C, vTheta)
			for i := range r {
				r[i] += h * cv[i]
			}
		}
		if ds.K != nil {
			kq := nsds.MulVec(ds.K, qTheta)
			for i := range r {
				r[i] += h * kq[i]
			}
		}
		f, err := thetaForces(ds, t0, t1, theta)
		if err != nil {
			for i := range ds.Residu {
				ds.Residu[i] = math.Inf(1)
			}
			return nil
		}
		for i := range r {
			r[i] -= h*f[i] + ds.P[1][i]
		}
		ds.Residu.CopyFrom(r)
		return nil
	})
	res := 0.0
	for _, id := range m.systems {
		res = math.Max(res, g.System(id).(*nsds.LagrangianLinearDS).Residu.NormInf())
	}
	return res
}

// ComputeFreeOutput at level 1 is H vfree + e H vk, the Newton impact law
// written on the free velocity.
func (m *MoreauJean) ComputeFreeOutput(id nsds.InteractionID, level int) (nsds.Vector, error) {
	if level != 1 {
		return nil, nsds.NotImplementedf("%s: no free output at level %d", m.name, level)
	}
	g := m.sim.Graph()
	inter := g.Interaction(id)
	e := nsds.Restitution(inter.Law)
	out := nsds.NewVector(inter.Size())
	for k, dsID := range inter.Systems() {
		ds := g.System(dsID).(*nsds.LagrangianLinearDS)
		hv := nsds.MulVec(inter.Relation.OutputBlock(k), ds.VFree)
		hvk := nsds.MulVec(inter.Relation.OutputBlock(k), ds.VMemory(0))
		for i := range out {
			out[i] += hv[i] + e*hvk[i]
		}
	}
	return out, nil
}

// CouplingBlock at level 1 is the sum over shared systems of H_a W^-1 H_b^T.
func (m *MoreauJean) CouplingBlock(a, b nsds.InteractionID, level int) (*mat.Dense, error) {
	if level != 1 {
		return nil, nsds.NotImplementedf("%s: no coupling block at level %d", m.name, level)
	}
	return assembleBlock(m.sim.Graph(), a, b, func(ds nsds.DSID) mat.Matrix {
		return m.work[ds].wInv
	}), nil
}

// AddInteractionInIndexSet activates a unilateral contact at level 1 when
// the predicted gap y0 + gamma*h*y1 reaches the activation tolerance.
// Bilateral and relay laws are always active.
func (m *MoreauJean) AddInteractionInIndexSet(id nsds.InteractionID, level int) (bool, error) {
	switch level {
	case 0:
		return true, nil
	case 1:
		inter := m.sim.Graph().Interaction(id)
		if !unilateral(inter.Law) {
			return true, nil
		}
		return m.predictedGap(inter) <= m.sim.ActivationTolerance(), nil
	}
	return m.Base.AddInteractionInIndexSet(id, level)
}

// RemoveInteractionFromIndexSet releases a unilateral contact at level 1
// once its impulse no longer pushes.
func (m *MoreauJean) RemoveInteractionFromIndexSet(id nsds.InteractionID, level int) (bool, error) {
	switch level {
	case 0:
		return false, nil
	case 1:
		inter := m.sim.Graph().Interaction(id)
		if !unilateral(inter.Law) {
			return false, nil
		}
		return maxComponent(inter.Lambda[1]) <= m.sim.ActivationTolerance(), nil
	}
	return m.Base.RemoveInteractionFromIndexSet(id, level)
}

func (m *MoreauJean) predictedGap(inter *nsds.Interaction) float64 {
	gh := m.Gamma * m.sim.TimeStep()
	pred := make(nsds.Vector, inter.Size())
	for i := range pred {
		pred[i] = inter.Y[0][i] + gh*inter.Y[1][i]
	}
	return minComponent(pred)
}

// unilateral reports whether every multiplier component lives in [0, inf).
func unilateral(law nsds.NonSmoothLaw) bool {
	for i := 0; i < law.Size(); i++ {
		lo, hi := law.Bounds(i)
		if lo != 0 || !math.IsInf(hi, 1) {
			return false
		}
	}
	return true
}

// thetaForces is theta Fext(t1) + (1-theta) Fext(t0).
func thetaForces(ds *nsds.LagrangianLinearDS, t0, t1, theta float64) (nsds.Vector, error) {
	f0, err := ds.Forces(t0)
	if err != nil {
		return nil, err
	}
	f1, err := ds.Forces(t1)
	if err != nil {
		return nil, err
	}
	out := nsds.NewVector(ds.Dim())
	for i := range out {
		out[i] = theta*f1[i] + (1-theta)*f0[i]
	}
	return out, nil
}
