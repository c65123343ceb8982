package activitydomain

import (
	"cmp"
	"sort"
	"strconv"
	"strings"
)

// Result is a ranked member activity.
type Result struct {
	Activity
	Rank int
}

// RankResults orders activities by accepted count descending, attempted count
// ascending, submissions ascending and registration number descending, then
// numbers them from 1.
func RankResults(activities []Activity) []Result {
	sorted := make([]Activity, len(activities))
	copy(sorted, activities)

	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Accepted.Len() != b.Accepted.Len() {
			return a.Accepted.Len() > b.Accepted.Len()
		}
		if a.Attempted.Len() != b.Attempted.Len() {
			return a.Attempted.Len() < b.Attempted.Len()
		}
		if a.Submissions != b.Submissions {
			return a.Submissions < b.Submissions
		}
		return compareRegNum(a.RegNum, b.RegNum) > 0
	})

	results := make([]Result, len(sorted))
	for i, a := range sorted {
		results[i] = Result{Activity: a, Rank: i + 1}
	}
	return results
}

// compareRegNum orders integer registration numbers above all others.
// Integers compare numerically and the rest compare as strings, which keeps
// the order total.
func compareRegNum(a, b string) int {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	ai, errA := strconv.ParseInt(a, 10, 64)
	bi, errB := strconv.ParseInt(b, 10, 64)
	switch {
	case errA == nil && errB == nil:
		return cmp.Compare(ai, bi)
	case errA == nil:
		return 1
	case errB == nil:
		return -1
	default:
		return strings.Compare(a, b)
	}
}
