package activitydomain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeforcesProblem(t *testing.T) {
	tests := []struct {
		name      string
		contestID int
		index     string
		title     string
		want      string
		wantErr   error
	}{
		{name: "regular round", contestID: 1850, index: "A", title: "To My Critics", want: "CodeForces 1850A To My Critics"},
		{name: "four digit boundary", contestID: 9999, index: "B", want: "CodeForces 9999B"},
		{name: "gym contest", contestID: 104114, index: "C", title: "Tree", want: "Gym 104114C Tree"},
		{name: "missing contest", contestID: 0, index: "A", wantErr: ErrMalformed},
		{name: "missing index", contestID: 100, index: " ", wantErr: ErrMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CodeforcesProblem(tt.contestID, tt.index, tt.title)
			if tt.wantErr != nil {
				require.True(t, errors.Is(err, tt.wantErr))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestVJudgeProblem_Enrichment(t *testing.T) {
	cache := NewTitleCache()
	cache.Set("CodeForces 1A", "Theatre Square")
	cache.Set("Gym 100001B", "")

	tests := []struct {
		name    string
		oj      string
		probNum string
		want    string
	}{
		{name: "codeforces hit", oj: "CodeForces", probNum: "1A", want: "CodeForces 1A Theatre Square"},
		{name: "codeforces miss", oj: "CodeForces", probNum: "2B", want: "CodeForces 2B"},
		{name: "gym empty title ignored", oj: "Gym", probNum: "100001B", want: "Gym 100001B"},
		{name: "other judge never enriched", oj: "UVA", probNum: "1A", want: "UVA 1A"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := VJudgeProblem(tt.oj, tt.probNum, cache)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}

	_, err := VJudgeProblem("", "1A", cache)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestAtCoderAndCodeChefProblems(t *testing.T) {
	p, err := AtCoderProblem("abc300_a")
	require.NoError(t, err)
	assert.Equal(t, "AtCoder abc300_a", p.String())

	p, err = CodeChefProblem("START01")
	require.NoError(t, err)
	assert.Equal(t, "CodeChef START01", p.String())

	_, err = AtCoderProblem("")
	assert.ErrorIs(t, err, ErrMalformed)
	_, err = CodeChefProblem("")
	assert.ErrorIs(t, err, ErrMalformed)
}
