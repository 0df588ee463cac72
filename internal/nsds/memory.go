package nsds

// Memory is a fixed-depth ring of state snapshots, newest first. It keeps
// the start-of-step state for one-step schemes, the history for multi-step
// schemes, and the rollback point.
type Memory struct {
	slots []Vector
	head  int
	count int
}

func NewMemory(depth, size int) *Memory {
	if depth < 1 {
		depth = 1
	}
	slots := make([]Vector, depth)
	for i := range slots {
		slots[i] = NewVector(size)
	}
	return &Memory{slots: slots}
}

// Push copies v into the ring, evicting the oldest snapshot when full.
func (m *Memory) Push(v Vector) {
	m.head = (m.head + len(m.slots) - 1) % len(m.slots)
	m.slots[m.head].CopyFrom(v)
	if m.count < len(m.slots) {
		m.count++
	}
}

// At returns the k-th most recent snapshot (0 = newest), nil when absent.
func (m *Memory) At(k int) Vector {
	if k < 0 || k >= m.count {
		return nil
	}
	return m.slots[(m.head+k)%len(m.slots)]
}

func (m *Memory) Depth() int { return len(m.slots) }
func (m *Memory) Len() int   { return m.count }
