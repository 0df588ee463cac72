// Package indexset keeps, per derivative level, the interactions currently
// considered active.
//
// Level 0 holds every linked interaction (topological eligibility); finer
// levels hold the geometrically or numerically active ones. Sets are always
// nested: IndexSet_0 ⊇ IndexSet_1 ⊇ IndexSet_2. Membership only changes
// through the update pass of the time-stepping orchestrator, which applies
// the activation rules of the integrators.
package indexset

import (
	"fmt"

	"github.com/san-kum/nssim/internal/nsds"
)

// MaxLevels is the largest number of index sets a scheme may request.
const MaxLevels = nsds.MaxLevels

// Set is the subset of interactions active at one level. Iteration is in
// ascending handle order.
type Set struct {
	level  int
	member []bool
	count  int
}

func NewSet(level, numInteractions int) *Set {
	return &Set{level: level, member: make([]bool, numInteractions)}
}

func (s *Set) Level() int { return s.level }
func (s *Set) Len() int   { return s.count }

func (s *Set) Contains(id nsds.InteractionID) bool {
	return id >= 0 && int(id) < len(s.member) && s.member[id]
}

// Insert adds id and reports whether membership changed.
func (s *Set) Insert(id nsds.InteractionID) bool {
	if s.Contains(id) {
		return false
	}
	s.member[id] = true
	s.count++
	return true
}

// Remove drops id and reports whether membership changed.
func (s *Set) Remove(id nsds.InteractionID) bool {
	if !s.Contains(id) {
		return false
	}
	s.member[id] = false
	s.count--
	return true
}

func (s *Set) Clear() {
	for i := range s.member {
		s.member[i] = false
	}
	s.count = 0
}

// IDs returns the members in ascending order.
func (s *Set) IDs() []nsds.InteractionID {
	ids := make([]nsds.InteractionID, 0, s.count)
	for i, in := range s.member {
		if in {
			ids = append(ids, nsds.InteractionID(i))
		}
	}
	return ids
}

// Levels is the stack of index sets used by one simulation.
type Levels struct {
	sets []*Set
}

// NewLevels builds n nested sets over numInteractions interactions. Level 0
// is filled with every interaction.
func NewLevels(n, numInteractions int) (*Levels, error) {
	if n < 1 || n > MaxLevels {
		return nil, nsds.Configf("index sets", "%d levels requested, supported 1..%d", n, MaxLevels)
	}
	l := &Levels{sets: make([]*Set, n)}
	for i := range l.sets {
		l.sets[i] = NewSet(i, numInteractions)
	}
	for i := 0; i < numInteractions; i++ {
		l.sets[0].Insert(nsds.InteractionID(i))
	}
	return l, nil
}

func (l *Levels) Count() int { return len(l.sets) }

// Level returns IndexSet_i, nil when i is out of range.
func (l *Levels) Level(i int) *Set {
	if i < 0 || i >= len(l.sets) {
		return nil
	}
	return l.sets[i]
}

// RemoveFrom drops id from level i and every finer level so the nesting
// invariant survives a removal.
func (l *Levels) RemoveFrom(i int, id nsds.InteractionID) bool {
	changed := false
	for k := i; k < len(l.sets); k++ {
		if l.sets[k].Remove(id) {
			changed = true
		}
	}
	return changed
}

// CheckNested verifies IndexSet_0 ⊇ IndexSet_1 ⊇ … .
func (l *Levels) CheckNested() error {
	for i := 1; i < len(l.sets); i++ {
		for _, id := range l.sets[i].IDs() {
			if !l.sets[i-1].Contains(id) {
				return fmt.Errorf("indexset: interaction %d in level %d but not in level %d", id, i, i-1)
			}
		}
	}
	return nil
}

// Snapshot returns the members of every level; used to compare contact
// sequences across runs.
func (l *Levels) Snapshot() [][]nsds.InteractionID {
	out := make([][]nsds.InteractionID, len(l.sets))
	for i, s := range l.sets {
		out[i] = s.IDs()
	}
	return out
}
