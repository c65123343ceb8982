package activitydomain

// Delta is one fetcher's view of a member's activity since the stored
// watermark.
type Delta struct {
	Source      Source
	Accepted    ProblemSet
	Attempted   ProblemSet
	Submissions int
	Watermark   Watermark
}

// NewDelta returns an empty delta that echoes watermark back.
func NewDelta(source Source, watermark Watermark) Delta {
	return Delta{
		Source:    source,
		Accepted:  NewProblemSet(),
		Attempted: NewProblemSet(),
		Watermark: watermark,
	}
}

// Record classifies one problem.
func (d *Delta) Record(p Problem, accepted bool) {
	if accepted {
		d.Accepted.Add(p)
		return
	}
	d.Attempted.Add(p)
}

// Settle drops attempted problems that were also accepted.
func (d *Delta) Settle() {
	d.Attempted.Subtract(d.Accepted)
}

// IsEmpty reports whether the delta carries no activity.
func (d Delta) IsEmpty() bool {
	return d.Submissions == 0 && d.Accepted.Len() == 0 && d.Attempted.Len() == 0
}
