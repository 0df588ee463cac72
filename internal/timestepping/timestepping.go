// Package timestepping drives an event-capturing time-stepping simulation.
//
// A TimeStepping owns the Newton loop of every step and the event clock.
// It holds the dynamical-system graph by reference and hands it to the
// integrators through the integrators.Simulation view. One step is
//
//	NextStep -> InitializeNewtonLoop -> {free state, solve, input, state,
//	output, index sets, residuals}* -> [projection] -> accept
//
// The per-system phases fan out across workers inside the integrators; the
// solve and the index-set pass run on the caller's goroutine and act as
// barriers.
package timestepping

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"

	"github.com/san-kum/nssim/internal/indexset"
	"github.com/san-kum/nssim/internal/integrators"
	"github.com/san-kum/nssim/internal/logging"
	"github.com/san-kum/nssim/internal/nsds"
	"github.com/san-kum/nssim/internal/solver"
	"github.com/san-kum/nssim/internal/timediscr"
	"gonum.org/v1/gonum/mat"
)

type TimeStepping struct {
	graph  *nsds.Graph
	clock  *timediscr.TimeDiscretisation
	solver solver.Solver
	opts   Options

	log       logging.Logger
	recorder  Recorder
	observers []Observer
	policy    SolverFailurePolicy

	osis       []integrators.OneStepIntegrator
	claims     [][]nsds.DSID
	interOSI   []int
	sets       *indexset.Levels
	levels     int
	inputLevel int
	workers    int

	status       NewtonStatus
	iterations   int
	residuals    Residuals
	trace        []Residuals
	solverStatus solver.Status
	projections  int
	stats        Stats
	initialized  bool
}

func New(graph *nsds.Graph, clock *timediscr.TimeDiscretisation, slv solver.Solver, opts Options) (*TimeStepping, error) {
	if graph == nil {
		return nil, nsds.Configf("simulation", "missing graph")
	}
	if clock == nil {
		return nil, nsds.Configf("simulation", "missing time discretisation")
	}
	if slv == nil {
		return nil, nsds.Configf("simulation", "missing nonsmooth solver")
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	workers := opts.Workers
	if workers == 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &TimeStepping{
		graph:   graph,
		clock:   clock,
		solver:  slv,
		opts:    opts,
		log:     logging.NewNop(),
		workers: workers,
	}, nil
}

func (ts *TimeStepping) SetLogger(l logging.Logger) {
	if l != nil {
		ts.log = l
	}
}

func (ts *TimeStepping) SetRecorder(r Recorder) { ts.recorder = r }
func (ts *TimeStepping) AddObserver(o Observer) { ts.observers = append(ts.observers, o) }
func (ts *TimeStepping) Options() Options       { return ts.opts }

func (ts *TimeStepping) Clock() *timediscr.TimeDiscretisation { return ts.clock }

// SetSolverFailurePolicy replaces the policy derived from
// Options.WarnOnSolverFailure.
func (ts *TimeStepping) SetSolverFailurePolicy(p SolverFailurePolicy) { ts.policy = p }

func (ts *TimeStepping) solverFailurePolicy() SolverFailurePolicy {
	if ts.policy != nil {
		return ts.policy
	}
	if ts.opts.WarnOnSolverFailure {
		return WarnOnSolverFailure(ts.log)
	}
	return AbortOnSolverFailure()
}

// InsertIntegrator registers a scheme for the given systems. An integrator
// inserted without systems takes every system left unclaimed at
// Initialize.
func (ts *TimeStepping) InsertIntegrator(osi integrators.OneStepIntegrator, systems ...nsds.DSID) error {
	if osi == nil {
		return nsds.Configf("simulation", "nil integrator")
	}
	if ts.initialized {
		return nsds.Configf(osi.Name(), "integrator inserted after Initialize")
	}
	ts.osis = append(ts.osis, osi)
	ts.claims = append(ts.claims, append([]nsds.DSID(nil), systems...))
	return nil
}

// Initialize binds the integrators, assigns every system and interaction,
// builds the index sets and computes the initial outputs. It is a no-op
// once it succeeded.
func (ts *TimeStepping) Initialize() error {
	if ts.initialized {
		return nil
	}
	if len(ts.osis) == 0 {
		return nsds.Configf("simulation", "no integrator inserted")
	}
	first := ts.osis[0]
	ts.levels, ts.inputLevel = first.NumberOfIndexSets(), first.InputLevel()
	for i, osi := range ts.osis {
		osi.Bind(ts, i)
		if osi.InputLevel() != ts.inputLevel || osi.NumberOfIndexSets() != ts.levels {
			return nsds.Configf(osi.Name(), "cannot be mixed with %s (index sets %d/%d, input level %d/%d)",
				first.Name(), osi.NumberOfIndexSets(), ts.levels, osi.InputLevel(), ts.inputLevel)
		}
		if lo, hi := osi.LevelMinForOutput(), osi.LevelMaxForOutput(); ts.inputLevel < lo || ts.inputLevel > hi {
			return nsds.Configf(osi.Name(), "output levels [%d, %d] do not cover input level %d", lo, hi, ts.inputLevel)
		}
	}
	for i, osi := range ts.osis {
		for _, ds := range ts.claims[i] {
			if err := osi.InitializeForSystem(ds); err != nil {
				return err
			}
		}
	}
	for i, osi := range ts.osis {
		if len(ts.claims[i]) > 0 {
			continue
		}
		for id := 0; id < ts.graph.NumberOfSystems(); id++ {
			if ts.graph.Integrator(nsds.DSID(id)) != nsds.Unassigned {
				continue
			}
			if err := osi.InitializeForSystem(nsds.DSID(id)); err != nil {
				return err
			}
		}
	}
	for id := 0; id < ts.graph.NumberOfSystems(); id++ {
		if ts.graph.Integrator(nsds.DSID(id)) == nsds.Unassigned {
			return nsds.Configf(ts.graph.System(nsds.DSID(id)).Name(), "no integrator assigned")
		}
	}

	sets, err := indexset.NewLevels(ts.levels, ts.graph.NumberOfInteractions())
	if err != nil {
		return err
	}
	ts.sets = sets
	ts.interOSI = make([]int, ts.graph.NumberOfInteractions())
	for id := range ts.interOSI {
		inter := ts.graph.Interaction(nsds.InteractionID(id))
		owner := ts.graph.Integrator(inter.Systems()[0])
		if err := ts.osis[owner].InitializeForInteraction(inter.ID()); err != nil {
			return err
		}
		ts.interOSI[id] = owner
	}

	ts.graph.InitMemory(1)
	ts.initialized = true
	t0 := ts.clock.CurrentTime()
	for _, osi := range ts.osis {
		if err := osi.UpdateOutput(t0, integrators.AllLevels); err != nil {
			return err
		}
	}
	ts.status = NotStarted
	ts.log.Info("simulation initialized",
		"systems", ts.graph.NumberOfSystems(),
		"interactions", ts.graph.NumberOfInteractions(),
		"index_sets", ts.levels,
		"steps", ts.clock.Steps(),
		"mode", ts.opts.NewtonMode.String())
	return nil
}

// NextStep moves to the next event: memories take the accepted state, the
// clock advances and multipliers are reset unless disabled.
func (ts *TimeStepping) NextStep() {
	ts.graph.SwapInMemory()
	ts.clock.Advance()
	if ts.opts.ResetLambdas {
		ts.graph.ResetLambdas()
	}
	ts.status = NotStarted
}

// ResetLambdas zeroes every multiplier of every interaction at every level.
func (ts *TimeStepping) ResetLambdas() { ts.graph.ResetLambdas() }

// InitializeNewtonLoop prepares the first iteration of the current step.
func (ts *TimeStepping) InitializeNewtonLoop() error {
	if !ts.initialized {
		return nsds.Configf("simulation", "not initialized")
	}
	t := ts.clock.NextTime()
	ts.iterations = 0
	ts.projections = 0
	ts.trace = ts.trace[:0]
	ts.solverStatus = solver.StatusSuccess
	for _, osi := range ts.osis {
		osi.ComputeInitialNewtonState()
		if err := osi.UpdateOutput(t, integrators.AllLevels); err != nil {
			return err
		}
	}
	if err := ts.UpdateIndexSets(); err != nil {
		return err
	}
	for _, osi := range ts.osis {
		osi.PrepareNewtonIteration(t)
	}
	ts.residuals = Residuals{DS: ts.residuDS()}
	ts.status = Iterating
	return nil
}

// UpdateIndexSets runs the activation pass on every level above 0.
func (ts *TimeStepping) UpdateIndexSets() error {
	for i := 1; i < ts.levels; i++ {
		if err := ts.UpdateIndexSet(i); err != nil {
			return err
		}
	}
	return nil
}

// UpdateIndexSet revises IndexSet_i in one deterministic pass: members are
// first offered for removal, then members of IndexSet_{i-1} outside
// IndexSet_i are offered for activation, both in ascending handle order.
// A removal also drops the interaction from finer levels.
func (ts *TimeStepping) UpdateIndexSet(i int) error {
	if i < 1 || i >= ts.levels {
		return nsds.Configf("index sets", "level %d outside 1..%d", i, ts.levels-1)
	}
	cur, prev := ts.sets.Level(i), ts.sets.Level(i-1)
	for _, id := range cur.IDs() {
		remove, err := ts.osis[ts.interOSI[id]].RemoveInteractionFromIndexSet(id, i)
		if err != nil {
			return err
		}
		if remove {
			ts.sets.RemoveFrom(i, id)
		}
	}
	for _, id := range prev.IDs() {
		if cur.Contains(id) {
			continue
		}
		add, err := ts.osis[ts.interOSI[id]].AddInteractionInIndexSet(id, i)
		if err != nil {
			return err
		}
		if add {
			cur.Insert(id)
		}
	}
	return nil
}

// AdvanceToEvent computes the current step: the Newton loop, the position
// projection when the schemes carry one, and the step report.
func (ts *TimeStepping) AdvanceToEvent() error {
	if err := ts.InitializeNewtonLoop(); err != nil {
		return ts.stepError(err)
	}
	t := ts.clock.NextTime()
	for ts.status == Iterating {
		if err := ts.newtonIteration(t); err != nil {
			return ts.stepError(err)
		}
	}
	ts.stats.NewtonIterations = ts.iterations

	if ts.status == MaxIterationReached {
		ts.stats.NonConvergedSteps++
		if ts.recorder != nil {
			ts.recorder.RecordNonConvergence()
		}
		if !ts.opts.WarnOnNonConvergence {
			return ts.stepError(fmt.Errorf("%w after %d iterations (ds=%g y=%g r=%g)",
				nsds.ErrConvergence, ts.iterations, ts.residuals.DS, ts.residuals.Y, ts.residuals.R))
		}
		ts.log.Warn("newton loop did not converge, keeping last iterate",
			"step", ts.clock.Index(), "time", t, "iterations", ts.iterations,
			"residu_ds", ts.residuals.DS, "residu_y", ts.residuals.Y, "residu_r", ts.residuals.R)
	}

	if ts.levels > integrators.ProjectionLevel {
		if err := ts.projectPositions(t); err != nil {
			return ts.stepError(err)
		}
	}

	for id := 0; id < ts.graph.NumberOfSystems(); id++ {
		if ds := ts.graph.System(nsds.DSID(id)); !ds.IsValid() {
			return ts.stepError(fmt.Errorf("%w: %s", nsds.ErrInvalidState, ds.Name()))
		}
	}

	ts.stats.Steps++
	report := ts.report(t)
	if ts.recorder != nil {
		ts.recorder.RecordStep(report)
	}
	for _, o := range ts.observers {
		o.OnStep(ts, report)
	}
	ts.log.Debug("step accepted",
		"step", report.Step, "time", report.Time, "status", report.Status.String(),
		"iterations", report.NewtonIterations, "active", report.Active)
	return nil
}

// ComputeOneStep computes the current step and moves to the next event.
func (ts *TimeStepping) ComputeOneStep() error {
	if err := ts.AdvanceToEvent(); err != nil {
		return err
	}
	ts.NextStep()
	return nil
}

// Run initializes the simulation if needed and steps to the final time.
// ctx is checked between steps only; a step always runs to completion.
func (ts *TimeStepping) Run(ctx context.Context) error {
	if err := ts.Initialize(); err != nil {
		return err
	}
	for ts.clock.HasNextEvent() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := ts.ComputeOneStep(); err != nil {
			ts.log.Error("simulation aborted", "error", err)
			return err
		}
	}
	ts.log.Info("simulation finished",
		"steps", ts.stats.Steps,
		"newton_iterations", ts.stats.CumulativeNewtonIterations,
		"non_converged", ts.stats.NonConvergedSteps,
		"solver_failures", ts.stats.SolverFailures)
	return nil
}

func (ts *TimeStepping) newtonIteration(t float64) error {
	ts.iterations++
	ts.stats.CumulativeNewtonIterations++
	last := ts.opts.NewtonMode != ModeNonlinear || ts.iterations >= ts.opts.NewtonMaxIteration

	for _, osi := range ts.osis {
		osi.PrepareNewtonIteration(t)
	}
	for _, osi := range ts.osis {
		if err := osi.ComputeFreeState(); err != nil {
			return err
		}
	}
	if err := ts.solve(t, ts.inputLevel, ts.activeSet()); err != nil {
		return err
	}
	if err := ts.updateInput(t); err != nil {
		return err
	}
	for _, osi := range ts.osis {
		if err := osi.UpdateState(ts.inputLevel); err != nil {
			return err
		}
	}
	if !(last && ts.opts.SkipLastUpdateOutput) {
		for _, osi := range ts.osis {
			if err := osi.UpdateOutput(t, integrators.AllLevels); err != nil {
				return err
			}
		}
	}
	if err := ts.UpdateIndexSets(); err != nil {
		return err
	}
	// refresh against the updated index sets
	if !(last && ts.opts.SkipLastUpdateInput) {
		if err := ts.updateInput(t); err != nil {
			return err
		}
	}

	ts.residuals = ts.computeResiduals(t)
	ts.trace = append(ts.trace, ts.residuals)
	switch {
	case ts.opts.NewtonMode != ModeNonlinear:
		ts.status = Converged
	case ts.isConverged():
		ts.status = Converged
	case ts.iterations >= ts.opts.NewtonMaxIteration:
		ts.status = MaxIterationReached
	}
	return nil
}

func (ts *TimeStepping) updateInput(t float64) error {
	for _, osi := range ts.osis {
		if err := osi.UpdateInput(t, ts.inputLevel); err != nil {
			return err
		}
	}
	return nil
}

func (ts *TimeStepping) isConverged() bool {
	tol := ts.opts.NewtonTolerance
	if ts.residuals.DS > tol {
		return false
	}
	if ts.opts.ComputeResiduY && ts.residuals.Y > tol {
		return false
	}
	if ts.opts.ComputeResiduR && ts.residuals.R > tol {
		return false
	}
	return true
}

func (ts *TimeStepping) residuDS() float64 {
	r := 0.0
	for _, osi := range ts.osis {
		r = math.Max(r, osi.ComputeResidu())
	}
	return r
}

func (ts *TimeStepping) computeResiduals(t float64) Residuals {
	res := Residuals{DS: ts.residuDS()}
	set0 := ts.sets.Level(0)
	for _, osi := range ts.osis {
		if ts.opts.ComputeResiduY {
			res.Y = math.Max(res.Y, osi.ComputeResiduOutput(t, set0))
		}
		if ts.opts.ComputeResiduR {
			res.R = math.Max(res.R, osi.ComputeResiduInput(t, set0))
		}
	}
	return res
}

// activeSet is the index set of the main nonsmooth problem.
func (ts *TimeStepping) activeSet() *indexset.Set {
	if ts.levels >= 2 {
		return ts.sets.Level(1)
	}
	return ts.sets.Level(0)
}

// projectPositions corrects penetrations collected in IndexSet_2 until the
// set empties or the iteration budget is spent.
func (ts *TimeStepping) projectPositions(t float64) error {
	level := integrators.ProjectionLevel
	set := ts.sets.Level(level)
	for ts.projections < ts.opts.ProjectionMaxIteration {
		if err := ts.UpdateIndexSet(level); err != nil {
			return err
		}
		if set.Len() == 0 {
			break
		}
		ts.projections++
		if err := ts.solve(t, 0, set); err != nil {
			return err
		}
		for _, osi := range ts.osis {
			if err := osi.UpdateInput(t, 0); err != nil {
				return err
			}
			if err := osi.UpdateState(level); err != nil {
				return err
			}
			if err := osi.UpdateOutput(t, 0); err != nil {
				return err
			}
		}
	}
	ts.stats.ProjectionIterations += ts.projections
	return nil
}

// solve assembles y = W lambda + q over set at level, calls the solver and
// writes the multipliers back. Multipliers of interactions outside set are
// zeroed.
func (ts *TimeStepping) solve(t float64, level int, set *indexset.Set) error {
	for id := 0; id < ts.graph.NumberOfInteractions(); id++ {
		if !set.Contains(nsds.InteractionID(id)) {
			ts.graph.Interaction(nsds.InteractionID(id)).Lambda[level].Zero()
		}
	}
	ids := set.IDs()
	if len(ids) == 0 {
		ts.solverStatus = solver.StatusSuccess
		return nil
	}
	p, err := ts.assemble(level, ids)
	if err != nil {
		return err
	}
	sol, status := ts.solver.Solve(p)
	if status == solver.StatusSuccess && len(sol.Lambda) != p.Size() {
		ts.log.Warn("solver returned a multiplier of the wrong size",
			"got", len(sol.Lambda), "want", p.Size())
		status = solver.StatusInvalid
	}
	ts.solverStatus = status
	if status != solver.StatusSuccess {
		ts.stats.SolverFailures++
		if ts.recorder != nil {
			ts.recorder.RecordSolverFailure(level, status)
		}
		failure := SolverFailure{Step: ts.clock.Index(), Time: t, Level: level, Status: status, Error: sol.Error}
		if err := ts.solverFailurePolicy()(failure); err != nil {
			return err
		}
	}
	if len(sol.Lambda) != p.Size() {
		// tolerated failure with an unusable result: keep the previous multipliers
		return nil
	}
	for _, b := range p.Blocks {
		ts.graph.Interaction(b.Interaction).Lambda[level].CopyFrom(sol.Block(b))
	}
	return nil
}

func (ts *TimeStepping) assemble(level int, ids []nsds.InteractionID) (*solver.Problem, error) {
	blocks := make([]solver.Block, len(ids))
	n := 0
	for k, id := range ids {
		law := ts.graph.Interaction(id).Law
		blocks[k] = solver.Block{Interaction: id, Offset: n, Law: law}
		n += law.Size()
	}
	q := nsds.NewVector(n)
	w := mat.NewDense(n, n, nil)
	for a, ida := range ids {
		owner := ts.interOSI[ida]
		osi := ts.osis[owner]
		qa, err := osi.ComputeFreeOutput(ida, level)
		if err != nil {
			return nil, err
		}
		offA, sizeA := blocks[a].Offset, blocks[a].Law.Size()
		copy(q[offA:offA+sizeA], qa)
		for b, idb := range ids {
			if ts.interOSI[idb] != owner {
				continue
			}
			blk, err := osi.CouplingBlock(ida, idb, level)
			if err != nil {
				return nil, err
			}
			if blk == nil {
				continue
			}
			offB, sizeB := blocks[b].Offset, blocks[b].Law.Size()
			w.Slice(offA, offA+sizeA, offB, offB+sizeB).(*mat.Dense).Copy(blk)
		}
	}
	return &solver.Problem{
		Level:     level,
		W:         w,
		Q:         q,
		Blocks:    blocks,
		Tolerance: ts.opts.ActivationTolerance,
	}, nil
}

func (ts *TimeStepping) report(t float64) StepReport {
	active := make([]int, ts.levels)
	for i := range active {
		active[i] = ts.sets.Level(i).Len()
	}
	return StepReport{
		Step:                 ts.clock.Index(),
		Time:                 t,
		Status:               ts.status,
		NewtonIterations:     ts.iterations,
		Residuals:            ts.residuals,
		SolverStatus:         ts.solverStatus,
		ProjectionIterations: ts.projections,
		Active:               active,
	}
}

// stepError rolls the systems back to the start of the step and wraps err
// with the step position. A failed step leaves no partial update behind.
func (ts *TimeStepping) stepError(err error) error {
	ts.rollback()
	var se *nsds.StepError
	if errors.As(err, &se) {
		return err
	}
	return &nsds.StepError{Step: ts.clock.Index(), Time: ts.clock.NextTime(), Wrapped: err}
}

func (ts *TimeStepping) rollback() {
	if !ts.initialized {
		return
	}
	for id := 0; id < ts.graph.NumberOfSystems(); id++ {
		ts.graph.System(nsds.DSID(id)).RestoreFromMemory()
	}
	for _, osi := range ts.osis {
		osi.ResetNonSmoothPart(integrators.AllLevels)
	}
	ts.graph.ResetLambdas()
	ts.log.Warn("step rolled back", "step", ts.clock.Index(), "time", ts.clock.CurrentTime())
}

// Simulation view used by the integrators.

func (ts *TimeStepping) Graph() *nsds.Graph { return ts.graph }

// IndexSet returns IndexSet_level, nil before Initialize or out of range.
func (ts *TimeStepping) IndexSet(level int) *indexset.Set {
	if ts.sets == nil {
		return nil
	}
	return ts.sets.Level(level)
}

func (ts *TimeStepping) CurrentTime() float64         { return ts.clock.CurrentTime() }
func (ts *TimeStepping) NextTime() float64            { return ts.clock.NextTime() }
func (ts *TimeStepping) TimeStep() float64            { return ts.clock.CurrentTimeStep(ts.clock.Index()) }
func (ts *TimeStepping) ActivationTolerance() float64 { return ts.opts.ActivationTolerance }
func (ts *TimeStepping) Workers() int                 { return ts.workers }

// Accessors.

func (ts *TimeStepping) Status() NewtonStatus              { return ts.status }
func (ts *TimeStepping) IsNewtonConverge() bool            { return ts.status == Converged }
func (ts *TimeStepping) NewtonNbIterations() int           { return ts.iterations }
func (ts *TimeStepping) NewtonCumulativeNbIterations() int { return ts.stats.CumulativeNewtonIterations }
func (ts *TimeStepping) NewtonResiduDSMax() float64        { return ts.residuals.DS }
func (ts *TimeStepping) NewtonResiduYMax() float64         { return ts.residuals.Y }
func (ts *TimeStepping) NewtonResiduRMax() float64         { return ts.residuals.R }
func (ts *TimeStepping) SolverStatus() solver.Status       { return ts.solverStatus }
func (ts *TimeStepping) Stats() Stats                      { return ts.stats }
func (ts *TimeStepping) NumberOfIndexSets() int            { return ts.levels }

// NewtonTrace returns the residuals of every iteration of the current step.
func (ts *TimeStepping) NewtonTrace() []Residuals {
	return append([]Residuals(nil), ts.trace...)
}

// IndexSets exposes the index-set stack, nil before Initialize.
func (ts *TimeStepping) IndexSets() *indexset.Levels { return ts.sets }

// Integrators returns the inserted schemes in insertion order.
func (ts *TimeStepping) Integrators() []integrators.OneStepIntegrator { return ts.osis }
