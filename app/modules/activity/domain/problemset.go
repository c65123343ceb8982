package activitydomain

import "sort"

// ProblemSet is a set of problems keyed by identity.
type ProblemSet map[ProblemID]Problem

// NewProblemSet builds a set from problems.
func NewProblemSet(problems ...Problem) ProblemSet {
	s := make(ProblemSet, len(problems))
	for _, p := range problems {
		s.Add(p)
	}
	return s
}

// Add inserts p. When the problem is already present, a titled entry wins over
// an untitled one and otherwise the first entry is kept.
func (s ProblemSet) Add(p Problem) {
	if existing, ok := s[p.Key()]; ok {
		if existing.Title != "" || p.Title == "" {
			return
		}
	}
	s[p.Key()] = p
}

// Has reports whether a problem with p's identity is in the set.
func (s ProblemSet) Has(p Problem) bool {
	_, ok := s[p.Key()]
	return ok
}

// Union adds every problem of other to s.
func (s ProblemSet) Union(other ProblemSet) {
	for _, p := range other {
		s.Add(p)
	}
}

// Subtract removes every identity present in other.
func (s ProblemSet) Subtract(other ProblemSet) {
	for key := range other {
		delete(s, key)
	}
}

// Len returns the number of problems.
func (s ProblemSet) Len() int {
	return len(s)
}

// Sorted returns the problems ordered by their rendered key.
func (s ProblemSet) Sorted() []Problem {
	out := make([]Problem, 0, len(s))
	for _, p := range s {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].String() < out[j].String()
	})
	return out
}
