package activitydomain

import (
	"errors"
	"strconv"
	"strings"
)

// ErrMalformed is returned when a source record lacks the fields needed to
// identify a problem.
var ErrMalformed = errors.New("malformed problem record")

// ProblemID is the identity of a problem across sources. Titles are not part
// of it, so "CodeForces 100A" and "CodeForces 100A Binary Search" collapse.
type ProblemID struct {
	Judge string
	ID    string
}

// Problem is a normalized problem reference. Title is display-only.
type Problem struct {
	Judge string
	ID    string
	Title string
}

// Key returns the de-duplication identity of the problem.
func (p Problem) Key() ProblemID {
	return ProblemID{Judge: p.Judge, ID: p.ID}
}

// Plain renders "<Judge> <ID>" without the title.
func (p Problem) Plain() string {
	return p.Judge + " " + p.ID
}

// String renders the canonical key "<Judge> <ID>[ <Title>]".
func (p Problem) String() string {
	if p.Title == "" {
		return p.Plain()
	}
	return p.Plain() + " " + p.Title
}

// WithTitle returns a copy of p carrying title.
func (p Problem) WithTitle(title string) Problem {
	p.Title = strings.TrimSpace(title)
	return p
}

// CodeforcesPrefix classifies a contest as a regular round or a gym contest by
// the decimal length of its id.
func CodeforcesPrefix(contestID int) string {
	if len(strconv.Itoa(contestID)) <= 4 {
		return JudgeCodeforces
	}
	return JudgeGym
}

// CodeforcesProblem normalizes a Codeforces problem reference.
func CodeforcesProblem(contestID int, index, name string) (Problem, error) {
	index = strings.TrimSpace(index)
	if contestID <= 0 || index == "" {
		return Problem{}, ErrMalformed
	}
	return Problem{
		Judge: CodeforcesPrefix(contestID),
		ID:    strconv.Itoa(contestID) + index,
		Title: strings.TrimSpace(name),
	}, nil
}

// AtCoderProblem normalizes an AtCoder problem id such as "abc300_a".
func AtCoderProblem(problemID string) (Problem, error) {
	problemID = strings.TrimSpace(problemID)
	if problemID == "" {
		return Problem{}, ErrMalformed
	}
	return Problem{Judge: JudgeAtCoder, ID: problemID}, nil
}

// VJudgeProblem normalizes a VJudge status row. Mirrored Codeforces and Gym
// problems take their title from cfTitles when this run has already seen it.
func VJudgeProblem(oj, probNum string, cfTitles *TitleCache) (Problem, error) {
	oj, probNum = strings.TrimSpace(oj), strings.TrimSpace(probNum)
	if oj == "" || probNum == "" {
		return Problem{}, ErrMalformed
	}
	p := Problem{Judge: oj, ID: probNum}
	if (oj == JudgeCodeforces || oj == JudgeGym) && cfTitles != nil {
		if title, ok := cfTitles.Get(p.Plain()); ok && title != "" {
			p.Title = title
		}
	}
	return p, nil
}

// CodeChefProblem normalizes a CodeChef problem code.
func CodeChefProblem(code string) (Problem, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return Problem{}, ErrMalformed
	}
	return Problem{Judge: JudgeCodeChef, ID: code}, nil
}
