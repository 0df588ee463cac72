package nsds

import (
	"gonum.org/v1/gonum/mat"
)

// Relation maps the state of the linked systems to the interaction output
// and the multiplier back to each system's generalized input.
type Relation interface {
	Name() string
	// Bind validates dimensions against the linked systems and the law size
	// and prepares the per-system blocks.
	Bind(entity string, systems []DynamicalSystem, size int) error
	// ComputeOutput writes y at the given level from the current state.
	ComputeOutput(level int, systems []DynamicalSystem, lambda, y Vector)
	// OutputBlock is the part of the output map acting on linked system k.
	OutputBlock(k int) *mat.Dense
	// InputBlock maps lambda into the input of linked system k (n_k x m).
	InputBlock(k int) *mat.Dense
}

// LagrangianLinearRelation is y0 = H q + b, y1 = H v, p = H^T lambda. H
// spans the concatenated coordinates of the linked systems.
type LagrangianLinearRelation struct {
	H *mat.Dense
	// B is the constant gap offset; nil means zero.
	B Vector

	blocks []*mat.Dense
	trans  []*mat.Dense
}

func NewLagrangianLinearRelation(h *mat.Dense, b Vector) *LagrangianLinearRelation {
	return &LagrangianLinearRelation{H: h, B: b}
}

func (r *LagrangianLinearRelation) Name() string { return "lagrangian_linear" }

func (r *LagrangianLinearRelation) Bind(entity string, systems []DynamicalSystem, size int) error {
	if r.H == nil {
		return Configf(entity, "relation has no output matrix H")
	}
	rows, cols := r.H.Dims()
	if rows != size {
		return Configf(entity, "H has %d rows, law size is %d", rows, size)
	}
	if r.B != nil && len(r.B) != size {
		return Configf(entity, "offset b has size %d, law size is %d", len(r.B), size)
	}
	total := 0
	for _, ds := range systems {
		if _, ok := ds.(*LagrangianLinearDS); !ok {
			return Configf(entity, "lagrangian relation linked to non lagrangian system %s", ds.Name())
		}
		total += ds.Dim()
	}
	if cols != total {
		return Configf(entity, "H has %d columns, linked systems have %d coordinates", cols, total)
	}
	r.blocks, r.trans = splitColumns(r.H, systems)
	return nil
}

func (r *LagrangianLinearRelation) ComputeOutput(level int, systems []DynamicalSystem, _ Vector, y Vector) {
	y.Zero()
	if level >= 2 {
		return
	}
	for k, sys := range systems {
		ds := sys.(*LagrangianLinearDS)
		src := ds.Q
		if level == 1 {
			src = ds.V
		}
		addInto(y, MulVec(r.blocks[k], src))
	}
	if level == 0 && r.B != nil {
		addInto(y, r.B)
	}
}

func (r *LagrangianLinearRelation) OutputBlock(k int) *mat.Dense { return r.blocks[k] }
func (r *LagrangianLinearRelation) InputBlock(k int) *mat.Dense  { return r.trans[k] }

// FirstOrderLinearRelation is y = C x + D lambda + e, r = B lambda.
type FirstOrderLinearRelation struct {
	C *mat.Dense
	// D and E may be nil.
	D *mat.Dense
	E Vector
	B *mat.Dense

	cBlocks []*mat.Dense
	bBlocks []*mat.Dense
}

func NewFirstOrderLinearRelation(c, d, b *mat.Dense, e Vector) *FirstOrderLinearRelation {
	return &FirstOrderLinearRelation{C: c, D: d, B: b, E: e}
}

func (r *FirstOrderLinearRelation) Name() string { return "first_order_linear" }

func (r *FirstOrderLinearRelation) Bind(entity string, systems []DynamicalSystem, size int) error {
	if r.C == nil {
		return Configf(entity, "relation has no output matrix C")
	}
	if r.B == nil {
		return Configf(entity, "relation has no input matrix B")
	}
	total := 0
	for _, ds := range systems {
		if _, ok := ds.(*FirstOrderLinearDS); !ok {
			return Configf(entity, "first order relation linked to non first order system %s", ds.Name())
		}
		total += ds.Dim()
	}
	if rows, cols := r.C.Dims(); rows != size || cols != total {
		return Configf(entity, "C is %dx%d, want %dx%d", rows, cols, size, total)
	}
	if rows, cols := r.B.Dims(); rows != total || cols != size {
		return Configf(entity, "B is %dx%d, want %dx%d", rows, cols, total, size)
	}
	if r.D != nil {
		if rows, cols := r.D.Dims(); rows != size || cols != size {
			return Configf(entity, "D is %dx%d, want %dx%d", rows, cols, size, size)
		}
	}
	if r.E != nil && len(r.E) != size {
		return Configf(entity, "e has size %d, want %d", len(r.E), size)
	}
	r.cBlocks, _ = splitColumns(r.C, systems)
	bt, _ := splitColumns(mat.DenseCopyOf(r.B.T()), systems)
	r.bBlocks = make([]*mat.Dense, len(bt))
	for k, blk := range bt {
		r.bBlocks[k] = mat.DenseCopyOf(blk.T())
	}
	return nil
}

func (r *FirstOrderLinearRelation) ComputeOutput(level int, systems []DynamicalSystem, lambda, y Vector) {
	y.Zero()
	if level > 0 {
		return
	}
	for k, sys := range systems {
		addInto(y, MulVec(r.cBlocks[k], sys.(*FirstOrderLinearDS).X))
	}
	if r.D != nil && lambda != nil {
		addInto(y, MulVec(r.D, lambda))
	}
	if r.E != nil {
		addInto(y, r.E)
	}
}

func (r *FirstOrderLinearRelation) OutputBlock(k int) *mat.Dense { return r.cBlocks[k] }
func (r *FirstOrderLinearRelation) InputBlock(k int) *mat.Dense  { return r.bBlocks[k] }

// splitColumns cuts a into one column block per linked system and returns
// the blocks with their transposes.
func splitColumns(a *mat.Dense, systems []DynamicalSystem) (blocks, trans []*mat.Dense) {
	rows, _ := a.Dims()
	off := 0
	for _, ds := range systems {
		n := ds.Dim()
		blk := mat.DenseCopyOf(a.Slice(0, rows, off, off+n))
		blocks = append(blocks, blk)
		trans = append(trans, mat.DenseCopyOf(blk.T()))
		off += n
	}
	return blocks, trans
}

func addInto(dst, src Vector) {
	for i := range dst {
		dst[i] += src[i]
	}
}
