package integrators

import (
	"errors"
	"testing"

	"github.com/san-kum/nssim/internal/indexset"
	"github.com/san-kum/nssim/internal/nsds"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

const gravity = 9.81

type fakeSim struct {
	g    *nsds.Graph
	sets *indexset.Levels
	t, h float64
}

func (s *fakeSim) Graph() *nsds.Graph               { return s.g }
func (s *fakeSim) CurrentTime() float64             { return s.t }
func (s *fakeSim) NextTime() float64                { return s.t + s.h }
func (s *fakeSim) TimeStep() float64                { return s.h }
func (s *fakeSim) ActivationTolerance() float64     { return 1e-10 }
func (s *fakeSim) Workers() int                     { return 2 }
func (s *fakeSim) IndexSet(level int) *indexset.Set { return s.sets.Level(level) }

func newFakeSim(t *testing.T, g *nsds.Graph, levels int, h float64) *fakeSim {
	t.Helper()
	sets, err := indexset.NewLevels(levels, g.NumberOfInteractions())
	require.NoError(t, err)
	return &fakeSim{g: g, sets: sets, h: h}
}

func scalar(x float64) *mat.Dense { return mat.NewDense(1, 1, []float64{x}) }

// fallingBall is a unit mass at height q0 above a floor with restitution e.
func fallingBall(t *testing.T, q0, v0, e float64) (*nsds.Graph, *nsds.LagrangianLinearDS, nsds.DSID, nsds.InteractionID) {
	t.Helper()
	g := nsds.NewGraph()
	ds, err := nsds.NewLagrangianLinearDS("ball", nsds.Vector{q0}, nsds.Vector{v0}, scalar(1))
	require.NoError(t, err)
	ds.Fext = func(float64) nsds.Vector { return nsds.Vector{-gravity} }
	id := g.AddSystem(ds)
	inter, err := g.Link("floor", nsds.NewtonImpactLaw{E: e}, nsds.NewLagrangianLinearRelation(scalar(1), nil), id)
	require.NoError(t, err)
	return g, ds, id, inter
}

func bind(t *testing.T, osi OneStepIntegrator, sim *fakeSim) {
	t.Helper()
	osi.Bind(sim, 0)
	for i := 0; i < sim.g.NumberOfSystems(); i++ {
		require.NoError(t, osi.InitializeForSystem(nsds.DSID(i)))
	}
	for i := 0; i < sim.g.NumberOfInteractions(); i++ {
		require.NoError(t, osi.InitializeForInteraction(nsds.InteractionID(i)))
	}
}

func TestMoreauJean_FreeFall(t *testing.T) {
	g, ds, _, _ := fallingBall(t, 1, 0, 0)
	sim := newFakeSim(t, g, 2, 0.01)
	osi := NewMoreauJean(0.5)
	bind(t, osi, sim)

	require.NoError(t, osi.ComputeFreeState())
	assert.InDelta(t, -gravity*0.01, ds.VFree[0], 1e-12)
	assert.Equal(t, 1.0, ds.Q[0], "free state must not touch q")
}

func TestMoreauJean_ZeroInputRoundTrip(t *testing.T) {
	g, ds, _, _ := fallingBall(t, 1, 0.3, 0)
	require.NoError(t, ds.SetStiffness(scalar(4)))
	require.NoError(t, ds.SetDamping(scalar(0.2)))
	sim := newFakeSim(t, g, 2, 0.01)
	osi := NewMoreauJean(0.5)
	bind(t, osi, sim)

	require.NoError(t, osi.ComputeFreeState())
	free := ds.VFree.Clone()
	require.NoError(t, osi.UpdateState(1))

	assert.Equal(t, free, ds.V)
	assert.InDelta(t, 1+0.01*(0.5*free[0]+0.5*0.3), ds.Q[0], 1e-15)
	assert.InDelta(t, 0, osi.ComputeResidu(), 1e-12)
}

func TestMoreauJean_ResiduWithImpulse(t *testing.T) {
	g, ds, _, _ := fallingBall(t, 0, -1, 0)
	require.NoError(t, ds.SetStiffness(scalar(10)))
	sim := newFakeSim(t, g, 2, 0.01)
	osi := NewMoreauJean(1)
	bind(t, osi, sim)

	require.NoError(t, osi.ComputeFreeState())
	ds.P[1][0] = 0.7
	require.NoError(t, osi.UpdateState(1))
	assert.InDelta(t, 0, osi.ComputeResidu(), 1e-12)
}

func TestMoreauJean_UnsupportedSystem(t *testing.T) {
	g := nsds.NewGraph()
	x, err := nsds.NewFirstOrderLinearDS("circuit", nsds.Vector{1}, scalar(-1))
	require.NoError(t, err)
	g.AddSystem(x)
	osi := NewMoreauJean(0.5)
	osi.Bind(newFakeSim(t, g, 2, 0.01), 0)

	err = osi.InitializeForSystem(0)
	assert.True(t, errors.Is(err, nsds.ErrConfiguration))
}

func TestMoreauJean_BadTheta(t *testing.T) {
	g, _, _, _ := fallingBall(t, 1, 0, 0)
	osi := NewMoreauJean(1.5)
	osi.Bind(newFakeSim(t, g, 2, 0.01), 0)
	assert.ErrorIs(t, osi.InitializeForSystem(0), nsds.ErrConfiguration)
}

func TestMoreauJean_ActivationRule(t *testing.T) {
	g, _, _, id := fallingBall(t, 1, 0, 0)
	sim := newFakeSim(t, g, 2, 0.01)
	osi := NewMoreauJean(0.5)
	bind(t, osi, sim)
	inter := g.Interaction(id)

	tests := []struct {
		name   string
		y0, y1 float64
		want   bool
	}{
		{"far above", 1, 0, false},
		{"approaching", 1e-3, -1, true},
		{"touching", 0, 0, true},
		{"leaving", 1e-3, 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inter.Y[0][0], inter.Y[1][0] = tt.y0, tt.y1
			got, err := osi.AddInteractionInIndexSet(id, 1)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	inter.Lambda[1][0] = 0
	remove, err := osi.RemoveInteractionFromIndexSet(id, 1)
	require.NoError(t, err)
	assert.True(t, remove)

	inter.Lambda[1][0] = 0.5
	remove, err = osi.RemoveInteractionFromIndexSet(id, 1)
	require.NoError(t, err)
	assert.False(t, remove)

	add, err := osi.AddInteractionInIndexSet(id, 0)
	require.NoError(t, err)
	assert.True(t, add)
}

func TestMoreauJean_EqualityAlwaysActive(t *testing.T) {
	g := nsds.NewGraph()
	ds, err := nsds.NewLagrangianLinearDS("slider", nsds.Vector{1}, nsds.Vector{0}, scalar(1))
	require.NoError(t, err)
	dsID := g.AddSystem(ds)
	id, err := g.Link("rail", nsds.EqualityLaw{N: 1}, nsds.NewLagrangianLinearRelation(scalar(1), nil), dsID)
	require.NoError(t, err)
	sim := newFakeSim(t, g, 2, 0.01)
	osi := NewMoreauJean(0.5)
	bind(t, osi, sim)

	add, err := osi.AddInteractionInIndexSet(id, 1)
	require.NoError(t, err)
	assert.True(t, add)
	remove, err := osi.RemoveInteractionFromIndexSet(id, 1)
	require.NoError(t, err)
	assert.False(t, remove)
}

func TestBase_NotImplementedLevels(t *testing.T) {
	g, _, _, id := fallingBall(t, 1, 0, 0)
	osi := NewMoreauJean(0.5)
	bind(t, osi, newFakeSim(t, g, 2, 0.01))

	_, err := osi.AddInteractionInIndexSet(id, 2)
	assert.ErrorIs(t, err, nsds.ErrNotImplemented)
	_, err = osi.RemoveInteractionFromIndexSet(id, 2)
	assert.ErrorIs(t, err, nsds.ErrNotImplemented)
	assert.ErrorIs(t, osi.UpdateState(2), nsds.ErrNotImplemented)
}

func TestMoreauJean_FreeOutputWithRestitution(t *testing.T) {
	g, ds, _, id := fallingBall(t, 0, -2, 0.5)
	sim := newFakeSim(t, g, 2, 0.01)
	osi := NewMoreauJean(0.5)
	bind(t, osi, sim)

	require.NoError(t, osi.ComputeFreeState())
	q, err := osi.ComputeFreeOutput(id, 1)
	require.NoError(t, err)
	assert.InDelta(t, ds.VFree[0]+0.5*-2, q[0], 1e-12)

	w, err := osi.CouplingBlock(id, id, 1)
	require.NoError(t, err)
	assert.InDelta(t, 1, w.At(0, 0), 1e-12)
}

func TestBase_UpdateInputGathersPerSystem(t *testing.T) {
	g := nsds.NewGraph()
	var ids []nsds.DSID
	for _, name := range []string{"left", "right"} {
		ds, err := nsds.NewLagrangianLinearDS(name, nsds.Vector{0}, nsds.Vector{0}, scalar(1))
		require.NoError(t, err)
		ids = append(ids, g.AddSystem(ds))
	}
	// gap = q_right - q_left
	contact, err := g.Link("contact", nsds.NewtonImpactLaw{}, nsds.NewLagrangianLinearRelation(mat.NewDense(1, 2, []float64{-1, 1}), nil), ids...)
	require.NoError(t, err)
	wall, err := g.Link("wall", nsds.NewtonImpactLaw{}, nsds.NewLagrangianLinearRelation(scalar(1), nil), ids[0])
	require.NoError(t, err)

	sim := newFakeSim(t, g, 2, 0.01)
	osi := NewMoreauJean(0.5)
	bind(t, osi, sim)

	g.Interaction(contact).Lambda[1][0] = 2
	g.Interaction(wall).Lambda[1][0] = 3
	require.NoError(t, osi.UpdateInput(0, 1))

	left := g.System(ids[0]).(*nsds.LagrangianLinearDS)
	right := g.System(ids[1]).(*nsds.LagrangianLinearDS)
	assert.InDelta(t, 1, left.P[1][0], 1e-15)
	assert.InDelta(t, 2, right.P[1][0], 1e-15)

	require.NoError(t, osi.ComputeFreeState())
	w, err := osi.CouplingBlock(contact, contact, 1)
	require.NoError(t, err)
	assert.InDelta(t, 2, w.At(0, 0), 1e-12)
	w, err = osi.CouplingBlock(contact, wall, 1)
	require.NoError(t, err)
	assert.InDelta(t, -1, w.At(0, 0), 1e-12)
}

func TestBase_ZeroLambdaKeepsInputZero(t *testing.T) {
	g, ds, _, _ := fallingBall(t, 1, 0, 0)
	osi := NewMoreauJean(0.5)
	bind(t, osi, newFakeSim(t, g, 2, 0.01))

	ds.P[1][0] = 42
	g.ResetLambdas()
	require.NoError(t, osi.UpdateInput(0, AllLevels))
	assert.Equal(t, nsds.Vector{0}, ds.P[1])
}

func TestBase_Residuals(t *testing.T) {
	g, _, _, id := fallingBall(t, 1, 0, 0)
	sim := newFakeSim(t, g, 2, 0.01)
	osi := NewMoreauJean(0.5)
	bind(t, osi, sim)
	inter := g.Interaction(id)

	osi.PrepareNewtonIteration(0)
	inter.Y[0][0] = 0.25
	inter.Lambda[1][0] = 0.5
	assert.InDelta(t, 0.25, osi.ComputeResiduOutput(0, sim.IndexSet(0)), 1e-15)
	assert.InDelta(t, 0.5, osi.ComputeResiduInput(0, sim.IndexSet(0)), 1e-15)
	assert.Zero(t, osi.ComputeResiduInput(0, sim.IndexSet(1)))
}

func TestBase_InteractionAcrossIntegrators(t *testing.T) {
	g := nsds.NewGraph()
	var ids []nsds.DSID
	for _, name := range []string{"a", "b"} {
		ds, err := nsds.NewLagrangianLinearDS(name, nsds.Vector{0}, nsds.Vector{0}, scalar(1))
		require.NoError(t, err)
		ids = append(ids, g.AddSystem(ds))
	}
	id, err := g.Link("ab", nsds.NewtonImpactLaw{}, nsds.NewLagrangianLinearRelation(mat.NewDense(1, 2, []float64{-1, 1}), nil), ids...)
	require.NoError(t, err)
	sim := newFakeSim(t, g, 2, 0.01)

	first, second := NewMoreauJean(0.5), NewMoreauJean(0.5)
	first.Bind(sim, 0)
	second.Bind(sim, 1)
	require.NoError(t, first.InitializeForSystem(ids[0]))
	require.NoError(t, second.InitializeForSystem(ids[1]))
	assert.ErrorIs(t, first.InitializeForInteraction(id), nsds.ErrConfiguration)
	assert.ErrorIs(t, second.InitializeForSystem(ids[0]), nsds.ErrConfiguration)
}

func TestCombinedProjection_ProjectsPenetration(t *testing.T) {
	g, ds, _, id := fallingBall(t, -0.02, 0, 0)
	sim := newFakeSim(t, g, 3, 0.01)
	osi := NewCombinedProjection(0.5)
	bind(t, osi, sim)
	inter := g.Interaction(id)
	require.NoError(t, osi.UpdateOutput(0, AllLevels))
	sim.IndexSet(1).Insert(id)

	add, err := osi.AddInteractionInIndexSet(id, ProjectionLevel)
	require.NoError(t, err)
	assert.True(t, add)

	q, err := osi.ComputeFreeOutput(id, 0)
	require.NoError(t, err)
	assert.InDelta(t, -0.02, q[0], 1e-15)
	w, err := osi.CouplingBlock(id, id, 0)
	require.NoError(t, err)
	assert.InDelta(t, 1, w.At(0, 0), 1e-15)

	inter.Lambda[0][0] = 0.02
	require.NoError(t, osi.UpdateInput(0, 0))
	require.NoError(t, osi.UpdateState(ProjectionLevel))
	require.NoError(t, osi.UpdateOutput(0, 0))
	assert.InDelta(t, 0, ds.Q[0], 1e-15)

	inter.Lambda[0][0] = 0
	remove, err := osi.RemoveInteractionFromIndexSet(id, ProjectionLevel)
	require.NoError(t, err)
	assert.True(t, remove)
	assert.Equal(t, 3, osi.NumberOfIndexSets())
}

func relayCircuit(t *testing.T) (*nsds.Graph, *nsds.FirstOrderLinearDS, nsds.InteractionID) {
	t.Helper()
	g := nsds.NewGraph()
	ds, err := nsds.NewFirstOrderLinearDS("oscillator", nsds.Vector{1, 0}, mat.NewDense(2, 2, []float64{0, 1, 0, 0}))
	require.NoError(t, err)
	dsID := g.AddSystem(ds)
	rel := nsds.NewFirstOrderLinearRelation(mat.NewDense(1, 2, []float64{1, 1}), nil, mat.NewDense(2, 1, []float64{0, 1}), nil)
	id, err := g.Link("relay", nsds.NewRelayLaw(1), rel, dsID)
	require.NoError(t, err)
	return g, ds, id
}

func TestZeroOrderHold_ConstantForcing(t *testing.T) {
	g := nsds.NewGraph()
	ds, err := nsds.NewFirstOrderLinearDS("integrator", nsds.Vector{1}, scalar(0))
	require.NoError(t, err)
	require.NoError(t, ds.SetForcing(nsds.Vector{2}))
	g.AddSystem(ds)
	osi := NewZeroOrderHold()
	bind(t, osi, newFakeSim(t, g, 1, 0.1))

	require.NoError(t, osi.ComputeFreeState())
	assert.InDelta(t, 1.2, ds.XFree[0], 1e-12)
	require.NoError(t, osi.UpdateState(0))
	assert.Equal(t, ds.XFree, ds.X)
	assert.InDelta(t, 0, osi.ComputeResidu(), 1e-15)
}

func TestZeroOrderHold_RelayBlocks(t *testing.T) {
	g, ds, id := relayCircuit(t)
	h := 0.1
	osi := NewZeroOrderHold()
	bind(t, osi, newFakeSim(t, g, 1, h))

	require.NoError(t, osi.ComputeFreeState())
	// Phi = [[1, h], [0, 1]]
	assert.InDeltaSlice(t, []float64{1, 0}, []float64(ds.XFree), 1e-12)
	q, err := osi.ComputeFreeOutput(id, 0)
	require.NoError(t, err)
	assert.InDelta(t, 1, q[0], 1e-12)

	// C Psi B = h + h^2/2
	w, err := osi.CouplingBlock(id, id, 0)
	require.NoError(t, err)
	assert.InDelta(t, h+h*h/2, w.At(0, 0), 1e-12)

	g.Interaction(id).Lambda[0][0] = -1
	require.NoError(t, osi.UpdateInput(0, 0))
	assert.Equal(t, nsds.Vector{0, -1}, ds.R)
	require.NoError(t, osi.UpdateState(0))
	assert.InDeltaSlice(t, []float64{1 - h*h/2, -h}, []float64(ds.X), 1e-12)
}

func TestZeroOrderHold_IndexSetRules(t *testing.T) {
	g, _, id := relayCircuit(t)
	osi := NewZeroOrderHold()
	bind(t, osi, newFakeSim(t, g, 1, 0.1))

	add, err := osi.AddInteractionInIndexSet(id, 0)
	require.NoError(t, err)
	assert.True(t, add)
	remove, err := osi.RemoveInteractionFromIndexSet(id, 0)
	require.NoError(t, err)
	assert.False(t, remove)

	_, err = osi.AddInteractionInIndexSet(id, 1)
	assert.ErrorIs(t, err, nsds.ErrNotImplemented)
	assert.Equal(t, 1, osi.NumberOfIndexSets())
	assert.Equal(t, 0, osi.InputLevel())
}

func TestZeroOrderHold_UnsupportedSystem(t *testing.T) {
	g, _, _, _ := fallingBall(t, 1, 0, 0)
	osi := NewZeroOrderHold()
	osi.Bind(newFakeSim(t, g, 1, 0.1), 0)
	assert.ErrorIs(t, osi.InitializeForSystem(0), nsds.ErrConfiguration)
}

func TestNew(t *testing.T) {
	for _, name := range Names() {
		osi, err := New(name, DefaultTheta)
		require.NoError(t, err, name)
		assert.Equal(t, name, osi.Name())
	}
	_, err := New("runge_kutta", DefaultTheta)
	assert.ErrorIs(t, err, nsds.ErrConfiguration)
	assert.Equal(t, []string{"combined_projection", "moreau_jean", "zoh"}, Names())
}
