package integrators

import (
	"github.com/san-kum/nssim/internal/nsds"
	"gonum.org/v1/gonum/mat"
)

// CombinedProjection is MoreauJean followed by a projection of the
// positions onto the admissible set. Contacts penetrating beyond the
// activation tolerance are collected in IndexSet_2 and corrected by
// q += M^-1 p[0].
type CombinedProjection struct {
	*MoreauJean

	massInv map[nsds.DSID]*mat.Dense
}

func NewCombinedProjection(theta float64) *CombinedProjection {
	mj := NewMoreauJean(theta)
	mj.name = "combined_projection"
	mj.levelMinInput = 0
	return &CombinedProjection{
		MoreauJean: mj,
		massInv:    make(map[nsds.DSID]*mat.Dense),
	}
}

func (c *CombinedProjection) NumberOfIndexSets() int { return 3 }

func (c *CombinedProjection) InitializeForSystem(id nsds.DSID) error {
	if err := c.MoreauJean.InitializeForSystem(id); err != nil {
		return err
	}
	ds := c.sim.Graph().System(id).(*nsds.LagrangianLinearDS)
	var inv mat.Dense
	if err := inv.Inverse(ds.M); err != nil {
		return nsds.Configf(ds.Name(), "mass matrix is singular: %v", err)
	}
	c.massInv[id] = &inv
	return nil
}

// UpdateState accepts level 2 for the position projection; lower levels
// are the MoreauJean correction.
func (c *CombinedProjection) UpdateState(level int) error {
	if level != ProjectionLevel {
		return c.MoreauJean.UpdateState(level)
	}
	g := c.sim.Graph()
	return c.forEachSystem(func(id nsds.DSID) error {
		ds := g.System(id).(*nsds.LagrangianLinearDS)
		dq := nsds.MulVec(c.massInv[id], ds.P[0])
		for i := range ds.Q {
			ds.Q[i] += dq[i]
		}
		return nil
	})
}

// ComputeFreeOutput at level 0 is the current gap H q + b.
func (c *CombinedProjection) ComputeFreeOutput(id nsds.InteractionID, level int) (nsds.Vector, error) {
	if level != 0 {
		return c.MoreauJean.ComputeFreeOutput(id, level)
	}
	g := c.sim.Graph()
	inter := g.Interaction(id)
	out := nsds.NewVector(inter.Size())
	inter.Relation.ComputeOutput(0, g.LinkedSystems(inter), inter.Lambda[0], out)
	return out, nil
}

// CouplingBlock at level 0 is the sum over shared systems of H_a M^-1 H_b^T.
func (c *CombinedProjection) CouplingBlock(a, b nsds.InteractionID, level int) (*mat.Dense, error) {
	if level != 0 {
		return c.MoreauJean.CouplingBlock(a, b, level)
	}
	return assembleBlock(c.sim.Graph(), a, b, func(ds nsds.DSID) mat.Matrix {
		return c.massInv[ds]
	}), nil
}

// AddInteractionInIndexSet adds an active contact to IndexSet_2 when it
// penetrates by more than the tolerance.
func (c *CombinedProjection) AddInteractionInIndexSet(id nsds.InteractionID, level int) (bool, error) {
	if level != ProjectionLevel {
		return c.MoreauJean.AddInteractionInIndexSet(id, level)
	}
	if set1 := c.sim.IndexSet(1); set1 != nil && !set1.Contains(id) {
		return false, nil
	}
	inter := c.sim.Graph().Interaction(id)
	if !unilateral(inter.Law) {
		return false, nil
	}
	return minComponent(inter.Y[0]) < -c.sim.ActivationTolerance(), nil
}

// RemoveInteractionFromIndexSet drops a contact from IndexSet_2 once it no
// longer penetrates and its position multiplier vanished.
func (c *CombinedProjection) RemoveInteractionFromIndexSet(id nsds.InteractionID, level int) (bool, error) {
	if level != ProjectionLevel {
		return c.MoreauJean.RemoveInteractionFromIndexSet(id, level)
	}
	inter := c.sim.Graph().Interaction(id)
	tol := c.sim.ActivationTolerance()
	return minComponent(inter.Y[0]) >= -tol && maxComponent(inter.Lambda[0]) <= tol, nil
}
