package nsds

// InteractionID is a stable handle to an interaction in a Graph.
type InteractionID int

// Interaction couples one or two dynamical systems through a relation and
// a nonsmooth law. Outputs and multipliers are stacked per derivative level.
type Interaction struct {
	id      InteractionID
	name    string
	systems []DSID

	Law      NonSmoothLaw
	Relation Relation

	Y      [MaxLevels]Vector
	Lambda [MaxLevels]Vector

	// YOld and LambdaOld hold the values at the start of the step.
	YOld      [MaxLevels]Vector
	LambdaOld [MaxLevels]Vector

	// YIter and LambdaIter hold the values at the start of the current
	// Newton iteration; the residuals compare against them.
	YIter      [MaxLevels]Vector
	LambdaIter [MaxLevels]Vector
}

func newInteraction(id InteractionID, name string, law NonSmoothLaw, rel Relation, systems []DSID) *Interaction {
	inter := &Interaction{
		id:       id,
		name:     name,
		systems:  append([]DSID(nil), systems...),
		Law:      law,
		Relation: rel,
	}
	m := law.Size()
	for l := 0; l < MaxLevels; l++ {
		inter.Y[l] = NewVector(m)
		inter.Lambda[l] = NewVector(m)
		inter.YOld[l] = NewVector(m)
		inter.LambdaOld[l] = NewVector(m)
		inter.YIter[l] = NewVector(m)
		inter.LambdaIter[l] = NewVector(m)
	}
	return inter
}

func (i *Interaction) ID() InteractionID { return i.id }
func (i *Interaction) Name() string      { return i.name }
func (i *Interaction) Size() int         { return i.Law.Size() }

// Systems returns the linked system handles in link order.
func (i *Interaction) Systems() []DSID { return i.systems }

// Slot returns the position of ds among the linked systems, or -1.
func (i *Interaction) Slot(ds DSID) int {
	for k, id := range i.systems {
		if id == ds {
			return k
		}
	}
	return -1
}

func (i *Interaction) SwapInMemory() {
	for l := 0; l < MaxLevels; l++ {
		i.YOld[l].CopyFrom(i.Y[l])
		i.LambdaOld[l].CopyFrom(i.Lambda[l])
	}
}

// SnapshotIteration records the current outputs and multipliers as the
// reference for the next residual evaluation.
func (i *Interaction) SnapshotIteration() {
	for l := 0; l < MaxLevels; l++ {
		i.YIter[l].CopyFrom(i.Y[l])
		i.LambdaIter[l].CopyFrom(i.Lambda[l])
	}
}

func (i *Interaction) ResetLambdas() {
	for l := 0; l < MaxLevels; l++ {
		i.Lambda[l].Zero()
	}
}
