package nsds

import "fmt"

// Unassigned marks a system that no integrator owns yet.
const Unassigned = -1

// Graph is the arena of dynamical systems and interactions. Everything is
// addressed by handle and iterated in ascending handle order, which makes
// every pass over the graph reproducible.
type Graph struct {
	systems      []DynamicalSystem
	interactions []*Interaction
	adjacency    [][]InteractionID
	owner        []int
}

func NewGraph() *Graph {
	return &Graph{}
}

func (g *Graph) AddSystem(ds DynamicalSystem) DSID {
	g.systems = append(g.systems, ds)
	g.adjacency = append(g.adjacency, nil)
	g.owner = append(g.owner, Unassigned)
	return DSID(len(g.systems) - 1)
}

// Link creates an interaction between one or two systems. The relation is
// bound against the systems here, so dimension errors surface at build
// time.
func (g *Graph) Link(name string, law NonSmoothLaw, rel Relation, ds ...DSID) (InteractionID, error) {
	if len(ds) < 1 || len(ds) > 2 {
		return -1, Configf(name, "an interaction links 1 or 2 systems, got %d", len(ds))
	}
	if len(ds) == 2 && ds[0] == ds[1] {
		return -1, Configf(name, "an interaction cannot link system %d to itself", ds[0])
	}
	if err := checkLaw(name, law); err != nil {
		return -1, err
	}
	if rel == nil {
		return -1, Configf(name, "missing relation")
	}
	systems := make([]DynamicalSystem, len(ds))
	for k, id := range ds {
		if !g.validSystem(id) {
			return -1, Configf(name, "unknown system %d", id)
		}
		systems[k] = g.systems[id]
	}
	if err := rel.Bind(name, systems, law.Size()); err != nil {
		return -1, err
	}
	id := InteractionID(len(g.interactions))
	g.interactions = append(g.interactions, newInteraction(id, name, law, rel, ds))
	for _, d := range ds {
		g.adjacency[d] = append(g.adjacency[d], id)
	}
	return id, nil
}

func (g *Graph) validSystem(id DSID) bool {
	return id >= 0 && int(id) < len(g.systems)
}

func (g *Graph) System(id DSID) DynamicalSystem {
	return g.systems[id]
}

func (g *Graph) Interaction(id InteractionID) *Interaction {
	return g.interactions[id]
}

func (g *Graph) NumberOfSystems() int      { return len(g.systems) }
func (g *Graph) NumberOfInteractions() int { return len(g.interactions) }

// InteractionsOf lists the interactions touching ds in ascending order.
func (g *Graph) InteractionsOf(ds DSID) []InteractionID {
	return g.adjacency[ds]
}

// LinkedSystems returns the systems of an interaction in link order.
func (g *Graph) LinkedSystems(inter *Interaction) []DynamicalSystem {
	out := make([]DynamicalSystem, len(inter.systems))
	for k, id := range inter.systems {
		out[k] = g.systems[id]
	}
	return out
}

// AssignIntegrator records which integrator owns ds. The assignment is
// made once and cannot change afterwards.
func (g *Graph) AssignIntegrator(ds DSID, integrator int) error {
	if !g.validSystem(ds) {
		return Configf(fmt.Sprintf("system %d", ds), "unknown system")
	}
	if cur := g.owner[ds]; cur != Unassigned && cur != integrator {
		return Configf(g.systems[ds].Name(), "already integrated by integrator %d", cur)
	}
	g.owner[ds] = integrator
	return nil
}

// Integrator returns the owner of ds, or Unassigned.
func (g *Graph) Integrator(ds DSID) int {
	return g.owner[ds]
}

// ComputeOutput evaluates the relation of inter at level into Y[level].
func (g *Graph) ComputeOutput(inter *Interaction, level int) {
	inter.Relation.ComputeOutput(level, g.LinkedSystems(inter), inter.Lambda[level], inter.Y[level])
}

func (g *Graph) InitMemory(depth int) {
	for _, ds := range g.systems {
		ds.InitMemory(depth)
	}
	for _, inter := range g.interactions {
		inter.SwapInMemory()
	}
}

func (g *Graph) SwapInMemory() {
	for _, ds := range g.systems {
		ds.SwapInMemory()
	}
	for _, inter := range g.interactions {
		inter.SwapInMemory()
	}
}

// ResetLambdas zeroes every multiplier of every interaction at every level.
func (g *Graph) ResetLambdas() {
	for _, inter := range g.interactions {
		inter.ResetLambdas()
	}
}
