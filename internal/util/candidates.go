package util

import "sort"

// Candidate represents a search candidate with distance
type Candidate struct {
	ID       uint32
	Distance float32
}

// Less orders candidates by distance, breaking ties by ID.
func (c Candidate) Less(o Candidate) bool {
	if c.Distance != o.Distance {
		return c.Distance < o.Distance
	}
	return c.ID < o.ID
}

// CandidateList is a bounded list kept sorted by ascending distance.
// Each entry carries an expanded flag used by best-first graph traversal.
type CandidateList struct {
	items    []Candidate
	expanded []bool
	capacity int
	// all entries before open are expanded
	open int
}

// NewCandidateList creates a list holding at most capacity entries.
func NewCandidateList(capacity int) *CandidateList {
	if capacity < 1 {
		capacity = 1
	}
	return &CandidateList{
		items:    make([]Candidate, 0, capacity+1),
		expanded: make([]bool, 0, capacity+1),
		capacity: capacity,
	}
}

// Reset empties the list and sets a new bound, reusing storage.
func (l *CandidateList) Reset(capacity int) {
	if capacity < 1 {
		capacity = 1
	}
	l.items = l.items[:0]
	l.expanded = l.expanded[:0]
	l.capacity = capacity
	l.open = 0
}

func (l *CandidateList) Len() int      { return len(l.items) }
func (l *CandidateList) Capacity() int { return l.capacity }
func (l *CandidateList) Full() bool    { return len(l.items) >= l.capacity }

// Worst returns the farthest candidate. The list must be non-empty.
func (l *CandidateList) Worst() Candidate {
	return l.items[len(l.items)-1]
}

// Insert adds c in sorted position. When the list is full, c replaces the
// worst entry only if it orders before it. Reports whether c was kept.
func (l *CandidateList) Insert(c Candidate) bool {
	if l.Full() && !c.Less(l.Worst()) {
		return false
	}

	pos := sort.Search(len(l.items), func(i int) bool {
		return c.Less(l.items[i])
	})

	l.items = append(l.items, Candidate{})
	l.expanded = append(l.expanded, false)
	copy(l.items[pos+1:], l.items[pos:])
	copy(l.expanded[pos+1:], l.expanded[pos:])
	l.items[pos] = c
	l.expanded[pos] = false

	if len(l.items) > l.capacity {
		l.items = l.items[:l.capacity]
		l.expanded = l.expanded[:l.capacity]
	}
	if pos < l.open {
		l.open = pos
	}
	return true
}

// PopUnexpanded marks the closest unexpanded candidate as expanded and
// returns it. ok is false once every entry has been expanded.
func (l *CandidateList) PopUnexpanded() (c Candidate, ok bool) {
	for l.open < len(l.items) {
		i := l.open
		l.open++
		if !l.expanded[i] {
			l.expanded[i] = true
			return l.items[i], true
		}
	}
	return Candidate{}, false
}

// Items returns the candidates in ascending order. The slice is shared with
// the list and is invalidated by the next Insert or Reset.
func (l *CandidateList) Items() []Candidate {
	return l.items
}

// SortCandidates sorts in place by distance, breaking ties by ID.
func SortCandidates(cs []Candidate) {
	sort.Slice(cs, func(i, j int) bool { return cs[i].Less(cs[j]) })
}
