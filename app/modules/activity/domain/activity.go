package activitydomain

// Activity is a member's merged delta across all sources for one run.
type Activity struct {
	Name        string
	RegNum      string
	Accepted    ProblemSet
	Attempted   ProblemSet
	Submissions int
	Watermarks  map[Source]Watermark

	// Degraded is set when the new watermarks could not be persisted.
	Degraded bool
}

// NewActivity returns an empty activity for a member.
func NewActivity(name, regNum string) *Activity {
	return &Activity{
		Name:       name,
		RegNum:     regNum,
		Accepted:   NewProblemSet(),
		Attempted:  NewProblemSet(),
		Watermarks: make(map[Source]Watermark, len(Sources)),
	}
}

// Merge folds a source delta into the activity.
func (a *Activity) Merge(d Delta) {
	a.Accepted.Union(d.Accepted)
	a.Attempted.Union(d.Attempted)
	a.Submissions += d.Submissions
	a.Watermarks[d.Source] = d.Watermark
}

// Settle applies the accepted-is-sticky rule across sources.
func (a *Activity) Settle() {
	a.Attempted.Subtract(a.Accepted)
}
