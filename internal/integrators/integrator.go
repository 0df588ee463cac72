// Package integrators provides the one-step time-integration schemes
// driven by the time-stepping orchestrator.
//
// A scheme implements [OneStepIntegrator]. It is bound to a subset of the
// dynamical systems of a graph and is selected once, at configuration
// time. Schemes share their generic behaviour through the embedded [Base]:
// output/input updates, residuals, per-system fan-out, and the default
// activation rules, which fail with nsds.ErrNotImplemented.
//
// Available schemes:
//
//   - [MoreauJean]: theta-method for mechanical systems, velocity-level
//     impacts, two index sets.
//   - [CombinedProjection]: MoreauJean plus a position projection over a
//     third index set.
//   - [ZeroOrderHold]: exact discretisation of linear first order systems
//     with inputs held over the step, one index set.
package integrators

import (
	"context"
	"math"

	"github.com/san-kum/nssim/internal/indexset"
	"github.com/san-kum/nssim/internal/nsds"
	"github.com/san-kum/nssim/internal/parallel"
	"gonum.org/v1/gonum/mat"
)

// AllLevels asks UpdateOutput and UpdateInput for every level the scheme
// uses instead of a single one.
const AllLevels = -1

// ProjectionLevel is the UpdateState level applying a position projection.
const ProjectionLevel = 2

// Simulation is the integrator's view of the simulation that drives it.
// The integrator never owns it.
type Simulation interface {
	Graph() *nsds.Graph
	IndexSet(level int) *indexset.Set
	CurrentTime() float64
	NextTime() float64
	TimeStep() float64
	ActivationTolerance() float64
	Workers() int
}

// OneStepIntegrator is a time-integration scheme.
type OneStepIntegrator interface {
	Name() string
	// NumberOfIndexSets is the number of index-set levels the scheme needs.
	NumberOfIndexSets() int
	// InputLevel is the multiplier level of the scheme's main nonsmooth
	// problem.
	InputLevel() int
	// LevelMinForOutput and LevelMaxForOutput bound the output levels the
	// scheme refreshes; they must cover InputLevel.
	LevelMinForOutput() int
	LevelMaxForOutput() int

	// Bind attaches the integrator to the simulation; index is the
	// integrator's owner id in the graph.
	Bind(sim Simulation, index int)
	Systems() []nsds.DSID
	InitializeForSystem(ds nsds.DSID) error
	InitializeForInteraction(inter nsds.InteractionID) error

	ComputeInitialNewtonState()
	PrepareNewtonIteration(time float64)
	// ComputeFreeState integrates every system ignoring the nonsmooth
	// input. It never touches the corrected state.
	ComputeFreeState() error
	// ComputeFreeOutput is q in y = W lambda + q for one interaction.
	ComputeFreeOutput(inter nsds.InteractionID, level int) (nsds.Vector, error)
	// CouplingBlock is the W block between two interactions, nil when they
	// share no system.
	CouplingBlock(a, b nsds.InteractionID, level int) (*mat.Dense, error)
	UpdateState(level int) error
	UpdateOutput(time float64, level int) error
	UpdateInput(time float64, level int) error
	ResetNonSmoothPart(level int)

	AddInteractionInIndexSet(inter nsds.InteractionID, level int) (bool, error)
	RemoveInteractionFromIndexSet(inter nsds.InteractionID, level int) (bool, error)

	ComputeResidu() float64
	ComputeResiduOutput(time float64, set *indexset.Set) float64
	ComputeResiduInput(time float64, set *indexset.Set) float64
}

// Base carries the state and the default behaviour shared by every scheme.
type Base struct {
	name string
	sim  Simulation
	id   int

	systems      []nsds.DSID
	interactions []nsds.InteractionID

	levelMinOutput, levelMaxOutput int
	levelMinInput, levelMaxInput   int
}

func newBase(name string, outMin, outMax, inMin, inMax int) Base {
	return Base{
		name:           name,
		id:             nsds.Unassigned,
		levelMinOutput: outMin,
		levelMaxOutput: outMax,
		levelMinInput:  inMin,
		levelMaxInput:  inMax,
	}
}

func (b *Base) Name() string           { return b.name }
func (b *Base) LevelMinForOutput() int { return b.levelMinOutput }
func (b *Base) LevelMaxForOutput() int { return b.levelMaxOutput }
func (b *Base) Systems() []nsds.DSID   { return b.systems }
func (b *Base) Simulation() Simulation { return b.sim }

// ComputeInitialNewtonState keeps the current state as the first iterate.
func (b *Base) ComputeInitialNewtonState() {}

func (b *Base) Bind(sim Simulation, index int) {
	b.sim = sim
	b.id = index
}

// attach records ds as integrated by this scheme.
func (b *Base) attach(ds nsds.DSID) error {
	if b.sim == nil {
		return nsds.Configf(b.name, "integrator used before Bind")
	}
	if err := b.sim.Graph().AssignIntegrator(ds, b.id); err != nil {
		return err
	}
	for _, id := range b.systems {
		if id == ds {
			return nil
		}
	}
	b.systems = append(b.systems, ds)
	return nil
}

// InitializeForInteraction accepts an interaction whose systems are all
// integrated by this scheme.
func (b *Base) InitializeForInteraction(id nsds.InteractionID) error {
	if b.sim == nil {
		return nsds.Configf(b.name, "integrator used before Bind")
	}
	g := b.sim.Graph()
	inter := g.Interaction(id)
	for _, ds := range inter.Systems() {
		if g.Integrator(ds) != b.id {
			return nsds.Configf(inter.Name(), "system %s is not integrated by %s", g.System(ds).Name(), b.name)
		}
	}
	for _, known := range b.interactions {
		if known == id {
			return nil
		}
	}
	b.interactions = append(b.interactions, id)
	return nil
}

// Interactions lists the interactions serviced by this scheme in handle
// order.
func (b *Base) Interactions() []nsds.InteractionID { return b.interactions }

// PrepareNewtonIteration snapshots outputs and multipliers; the residuals
// of the iteration compare against this snapshot.
func (b *Base) PrepareNewtonIteration(float64) {
	g := b.sim.Graph()
	for _, id := range b.interactions {
		g.Interaction(id).SnapshotIteration()
	}
}

// ResetNonSmoothPart zeroes the generalized input of every system of the
// scheme at level, or at every level for AllLevels.
func (b *Base) ResetNonSmoothPart(level int) {
	g := b.sim.Graph()
	for _, id := range b.systems {
		if level == AllLevels {
			g.System(id).ResetAllNonSmoothParts()
			continue
		}
		g.System(id).ResetNonSmoothPart(level)
	}
}

func (b *Base) AddInteractionInIndexSet(_ nsds.InteractionID, level int) (bool, error) {
	return false, nsds.NotImplementedf("%s: activation rule not implemented at level %d", b.name, level)
}

func (b *Base) RemoveInteractionFromIndexSet(_ nsds.InteractionID, level int) (bool, error) {
	return false, nsds.NotImplementedf("%s: deactivation rule not implemented at level %d", b.name, level)
}

func (b *Base) levels(level, lo, hi int) (int, int) {
	if level == AllLevels {
		return lo, hi
	}
	return level, level
}

// UpdateOutput recomputes y of every interaction of IndexSet_0 serviced by
// this scheme, for one level or all of them.
func (b *Base) UpdateOutput(_ float64, level int) error {
	g := b.sim.Graph()
	set0 := b.sim.IndexSet(0)
	lo, hi := b.levels(level, b.levelMinOutput, b.levelMaxOutput)
	return b.forEachInteraction(func(id nsds.InteractionID) error {
		if set0 != nil && !set0.Contains(id) {
			return nil
		}
		inter := g.Interaction(id)
		for l := lo; l <= hi; l++ {
			g.ComputeOutput(inter, l)
		}
		return nil
	})
}

// UpdateInput rebuilds each system's generalized input from the
// multipliers of the interactions of IndexSet_0 touching it. Work is
// gathered per system, so systems are processed in parallel.
func (b *Base) UpdateInput(_ float64, level int) error {
	g := b.sim.Graph()
	set0 := b.sim.IndexSet(0)
	lo, hi := b.levels(level, b.levelMinInput, b.levelMaxInput)
	return b.forEachSystem(func(id nsds.DSID) error {
		ds := g.System(id)
		for l := lo; l <= hi; l++ {
			in := ds.Input(l)
			if in == nil {
				continue
			}
			in.Zero()
			for _, iid := range g.InteractionsOf(id) {
				if set0 != nil && !set0.Contains(iid) {
					continue
				}
				inter := g.Interaction(iid)
				contrib := nsds.MulVec(inter.Relation.InputBlock(inter.Slot(id)), inter.Lambda[l])
				for i := range in {
					in[i] += contrib[i]
				}
			}
		}
		return nil
	})
}

// ComputeResiduOutput is max |y - y_iter| over the members of set serviced
// by this scheme and its output levels.
func (b *Base) ComputeResiduOutput(_ float64, set *indexset.Set) float64 {
	g := b.sim.Graph()
	r := 0.0
	for _, id := range b.interactions {
		if set != nil && !set.Contains(id) {
			continue
		}
		inter := g.Interaction(id)
		for l := b.levelMinOutput; l <= b.levelMaxOutput; l++ {
			r = math.Max(r, nsds.MaxAbsDiff(inter.Y[l], inter.YIter[l]))
		}
	}
	return r
}

// ComputeResiduInput is max |lambda - lambda_iter| over the members of set
// serviced by this scheme and its input levels.
func (b *Base) ComputeResiduInput(_ float64, set *indexset.Set) float64 {
	g := b.sim.Graph()
	r := 0.0
	for _, id := range b.interactions {
		if set != nil && !set.Contains(id) {
			continue
		}
		inter := g.Interaction(id)
		for l := b.levelMinInput; l <= b.levelMaxInput; l++ {
			r = math.Max(r, nsds.MaxAbsDiff(inter.Lambda[l], inter.LambdaIter[l]))
		}
	}
	return r
}

func (b *Base) forEachSystem(fn func(id nsds.DSID) error) error {
	return parallel.ForEach(context.Background(), len(b.systems), b.sim.Workers(), func(i int) error {
		return fn(b.systems[i])
	})
}

func (b *Base) forEachInteraction(fn func(id nsds.InteractionID) error) error {
	return parallel.ForEach(context.Background(), len(b.interactions), b.sim.Workers(), func(i int) error {
		return fn(b.interactions[i])
	})
}

// sharedSystems returns the systems linked by both interactions with their
// slots in each.
func sharedSystems(a, b *nsds.Interaction) (ids []nsds.DSID, slotsA, slotsB []int) {
	for ka, id := range a.Systems() {
		if kb := b.Slot(id); kb >= 0 {
			ids = append(ids, id)
			slotsA = append(slotsA, ka)
			slotsB = append(slotsB, kb)
		}
	}
	return ids, slotsA, slotsB
}

// assembleBlock sums H_a[k] X_ds H_b[k']^T over the shared systems, where
// X is supplied per system by op.
func assembleBlock(g *nsds.Graph, a, b nsds.InteractionID, op func(ds nsds.DSID) mat.Matrix) *mat.Dense {
	ia, ib := g.Interaction(a), g.Interaction(b)
	ids, sa, sb := sharedSystems(ia, ib)
	if len(ids) == 0 {
		return nil
	}
	out := mat.NewDense(ia.Size(), ib.Size(), nil)
	for k, ds := range ids {
		var tmp, term mat.Dense
		tmp.Mul(ia.Relation.OutputBlock(sa[k]), op(ds))
		term.Mul(&tmp, ib.Relation.InputBlock(sb[k]))
		out.Add(out, &term)
	}
	return out
}

func minComponent(v nsds.Vector) float64 {
	m := math.Inf(1)
	for _, x := range v {
		m = math.Min(m, x)
	}
	return m
}

func maxComponent(v nsds.Vector) float64 {
	m := math.Inf(-1)
	for _, x := range v {
		m = math.Max(m, x)
	}
	return m
}
