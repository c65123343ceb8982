package reportservice

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	activitydomain "github.com/Black-And-White-Club/cp-digest-bot/app/modules/activity/domain"
	"github.com/Black-And-White-Club/cp-digest-bot/config"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResolver struct {
	titles map[string]string
	calls  []string
}

func (f *fakeResolver) Resolve(_ context.Context, judge, id string) string {
	f.calls = append(f.calls, judge+"-"+id)
	return f.titles[judge+"-"+id]
}

func result(rank int, name, reg string, subs int, accepted, attempted []activitydomain.Problem) activitydomain.Result {
	a := activitydomain.NewActivity(name, reg)
	for _, p := range accepted {
		a.Accepted.Add(p)
	}
	for _, p := range attempted {
		a.Attempted.Add(p)
	}
	a.Submissions = subs
	return activitydomain.Result{Activity: *a, Rank: rank}
}

func testRun() *activitydomain.Run {
	return activitydomain.NewRun(time.Date(2026, 10, 19, 3, 4, 0, 0, time.UTC))
}

func TestRenderer_Render(t *testing.T) {
	resolver := &fakeResolver{titles: map[string]string{"UVA-100": "The 3n + 1 problem"}}
	r := NewRenderer(config.Default().Report, "https://vjudge.net/", resolver, nil)

	results := []activitydomain.Result{
		result(1, "Ada <3", "2001", 3,
			[]activitydomain.Problem{{Judge: "CodeForces", ID: "1A", Title: "Theatre Square"}, {Judge: "UVA", ID: "100"}},
			[]activitydomain.Problem{{Judge: "AtCoder", ID: "abc300_a"}},
		),
		result(2, "Grace", "2002", 0, nil, nil),
	}

	msgs := r.Render(context.Background(), testRun(), results)
	require.Len(t, msgs, 1)

	want := "🏆 <b>Daily CP Update</b> 🏆\n  October 19, 2026, 09:04 AM\n\n" +
		"🥇 <b>Ada &lt;3</b> (2001)\n" +
		"  ✅ <b>AC:</b>2  ❌ <b>WA:</b>1  ❔<b>SUB:</b>3\n" +
		"　☑️ <a href=\"https://vjudge.net/problem/CodeForces-1A/origin\">CodeForces 1A Theatre Square</a>\n" +
		"　☑️ <a href=\"https://vjudge.net/problem/UVA-100/origin\">UVA 100 The 3n + 1 problem</a>\n" +
		"　⁉️ <a href=\"https://vjudge.net/problem/AtCoder-abc300_a/origin\">AtCoder abc300_a</a>\n" +
		"\n\n" +
		"🥈 <b>Grace</b> (2002)\n" +
		"  ✅ <b>AC:</b>0  ❌ <b>WA:</b>0  ❔<b>SUB:</b>0\n" +
		"    💤 <i>No activity</i>\n" +
		"\n\n"
	if diff := cmp.Diff(want, msgs[0]); diff != "" {
		t.Errorf("Render() mismatch (-want +got):\n%s", diff)
	}
}

func TestRenderer_RankIcons(t *testing.T) {
	assert.Equal(t, "🥇", rankIcon(1))
	assert.Equal(t, "🥈", rankIcon(2))
	assert.Equal(t, "🥉", rankIcon(3))
	assert.Equal(t, "<b>4.</b>", rankIcon(4))
	assert.Equal(t, "<b>12.</b>", rankIcon(12))
}

func TestRenderer_CachesResolvedTitles(t *testing.T) {
	resolver := &fakeResolver{titles: map[string]string{"UVA-100": "Collatz"}}
	r := NewRenderer(config.Default().Report, "https://vjudge.net", resolver, nil)
	run := testRun()

	uva := activitydomain.Problem{Judge: "UVA", ID: "100"}
	spoj := activitydomain.Problem{Judge: "SPOJ", ID: "PRIME1"}
	results := []activitydomain.Result{
		result(1, "A", "1", 2, []activitydomain.Problem{uva}, []activitydomain.Problem{spoj}),
		result(2, "B", "2", 2, []activitydomain.Problem{uva}, []activitydomain.Problem{spoj}),
	}

	msgs := r.Render(context.Background(), run, results)
	require.Len(t, msgs, 1)

	assert.Equal(t, []string{"UVA-100", "SPOJ-PRIME1", "SPOJ-PRIME1"}, resolver.calls, "only found titles are cached")
	title, ok := run.VJudgeTitles.Get("UVA-100")
	assert.True(t, ok)
	assert.Equal(t, "Collatz", title)
	assert.Equal(t, 2, strings.Count(msgs[0], "UVA 100 Collatz"))
	assert.Contains(t, msgs[0], ">SPOJ PRIME1</a>", "failed lookups render without a title")
}

func TestRenderer_Chunking(t *testing.T) {
	cfg := config.Default().Report
	cfg.MaxMessageLength = 400
	r := NewRenderer(cfg, "https://vjudge.net", nil, nil)

	var results []activitydomain.Result
	for i := range 12 {
		var accepted []activitydomain.Problem
		for j := range 3 {
			accepted = append(accepted, activitydomain.Problem{Judge: "AtCoder", ID: fmt.Sprintf("abc%03d_%c", i, 'a'+j)})
		}
		results = append(results, result(i+1, fmt.Sprintf("Member %d", i), fmt.Sprint(1000+i), 3, accepted, nil))
	}

	msgs := r.Render(context.Background(), testRun(), results)
	require.GreaterOrEqual(t, len(msgs), 2)

	for _, m := range msgs {
		assert.LessOrEqual(t, utf8.RuneCountInString(m), cfg.MaxMessageLength)
	}

	joined := strings.Join(msgs, "")
	cfg.MaxMessageLength = 1 << 20
	unlimited := NewRenderer(cfg, "https://vjudge.net", nil, nil)
	whole := unlimited.Render(context.Background(), testRun(), results)
	require.Len(t, whole, 1)
	assert.Equal(t, whole[0], joined, "no line is lost across messages")
}

func TestRenderer_LongLinesKeepTagsWhole(t *testing.T) {
	cfg := config.Default().Report
	cfg.MaxMessageLength = 120
	r := NewRenderer(cfg, "https://vjudge.net", nil, nil)

	long := strings.Repeat("Strange & Long ", 10)
	results := []activitydomain.Result{
		result(1, strings.Repeat("Name", 40), "3001", 1,
			[]activitydomain.Problem{{Judge: "UVA", ID: "100", Title: long}},
			[]activitydomain.Problem{{Judge: "AtCoder", ID: "abc300_a"}},
		),
	}

	msgs := r.Render(context.Background(), testRun(), results)
	require.NotEmpty(t, msgs)

	joined := strings.Join(msgs, "")
	for i, m := range msgs {
		assert.LessOrEqual(t, utf8.RuneCountInString(m), cfg.MaxMessageLength, "message %d", i)
		assert.Equal(t, strings.Count(m, "<a "), strings.Count(m, "</a>"), "message %d", i)
		assert.Equal(t, strings.Count(m, "<b>"), strings.Count(m, "</b>"), "message %d", i)
		assert.Equal(t, strings.Count(m, "&"), strings.Count(m, "&amp;"), "message %d", i)
	}
	assert.Contains(t, joined, `<a href="https://vjudge.net/problem/UVA-100/origin">UVA 100 Strange &amp; Long`)
	assert.Contains(t, joined, "…</a>")
	assert.Contains(t, joined, ">AtCoder abc300_a</a>")
}

func TestEscapeFit(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		limit int
		want  string
	}{
		{name: "fits", in: "a<b", limit: 6, want: "a&lt;b"},
		{name: "cuts with ellipsis", in: "abcdef", limit: 4, want: "abc…"},
		{name: "never cuts an entity", in: "ab&cd", limit: 5, want: "ab…"},
		{name: "no room", in: "abc", limit: 0, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := escapeFit(tt.in, tt.limit)
			assert.Equal(t, tt.want, got)
			assert.LessOrEqual(t, utf8.RuneCountInString(got), max(tt.limit, 0))
		})
	}
}

func TestChunker(t *testing.T) {
	tests := []struct {
		name     string
		max      int
		segments []string
		want     []string
	}{
		{
			name:     "fits",
			max:      10,
			segments: []string{"abc", "def"},
			want:     []string{"abcdef"},
		},
		{
			name:     "flushes before overflow",
			max:      5,
			segments: []string{"abc", "def", "g"},
			want:     []string{"abc", "defg"},
		},
		{
			name:     "measures runes",
			max:      4,
			segments: []string{"ééé", "é", "ü"},
			want:     []string{"éééé", "ü"},
		},
		{
			name:     "splits oversized segment",
			max:      4,
			segments: []string{"ab", "cdefghij"},
			want:     []string{"ab", "cdef", "ghij"},
		},
		{
			name:     "drops blank messages",
			max:      3,
			segments: []string{"ab", "\n\n", "  "},
			want:     []string{"ab"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &chunker{max: tt.max}
			for _, s := range tt.segments {
				c.add(s)
			}
			assert.Equal(t, tt.want, c.finish())
		})
	}
}
