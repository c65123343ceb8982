package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	activitydomain "github.com/Black-And-White-Club/cp-digest-bot/app/modules/activity/domain"
	"github.com/Black-And-White-Club/cp-digest-bot/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type vjudgeFeed struct {
	pages    map[int][]map[string]any
	failPage int
	hits     atomic.Int32
}

func (f *vjudgeFeed) serve(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.hits.Add(1)
		q := r.URL.Query()
		assert.Equal(t, "/status/data", r.URL.Path)
		assert.Equal(t, "desc", q.Get("sortDir"))
		assert.Equal(t, "runId", q.Get("orderBy"))
		assert.Equal(t, "ada", q.Get("un"))

		start, _ := strconv.Atoi(q.Get("start"))
		length, _ := strconv.Atoi(q.Get("length"))
		page := start / length
		if f.failPage > 0 && page == f.failPage {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"data": f.pages[page]})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func vjRun(id any, oj, prob, status string) map[string]any {
	return map[string]any{"runId": id, "oj": oj, "probNum": prob, "status": status}
}

func newTestVJudge(srv *httptest.Server, pageSize, maxPages int) *VJudge {
	return NewVJudge(newTestClient(srv), config.VJudgeConfig{BaseURL: srv.URL, PageSize: pageSize, MaxPages: maxPages}, nil)
}

func TestVJudge_BootstrapFetchesFirstPageOnly(t *testing.T) {
	feed := &vjudgeFeed{pages: map[int][]map[string]any{
		0: {vjRun(5000, "CodeForces", "1A", "Accepted"), vjRun(4999, "UVA", "100", "Wrong Answer")},
		1: {vjRun(4998, "UVA", "101", "Accepted")},
	}}
	srv := feed.serve(t)

	delta, err := newTestVJudge(srv, 2, 25).Fetch(context.Background(), activitydomain.NewRun(time.Now()), "ada", "")
	require.NoError(t, err)
	assert.True(t, delta.IsEmpty())
	assert.Equal(t, activitydomain.Watermark("5000"), delta.Watermark)
	assert.Equal(t, int32(1), feed.hits.Load())
}

func TestVJudge_IncrementalPagesUntilWatermark(t *testing.T) {
	feed := &vjudgeFeed{pages: map[int][]map[string]any{
		0: {vjRun("5003", "CodeForces", "1A", "Accepted"), vjRun(5002, "Gym", "100001B", "Wrong Answer")},
		1: {vjRun(5001, "CodeForces", "1A", "Wrong Answer"), vjRun(4990, "UVA", "100", "Accepted")},
		2: {vjRun(4980, "UVA", "101", "Accepted")},
	}}
	srv := feed.serve(t)

	run := activitydomain.NewRun(time.Now())
	run.CFTitles.Set("CodeForces 1A", "Theatre Square")

	delta, err := newTestVJudge(srv, 2, 25).Fetch(context.Background(), run, "ada", "4990")
	require.NoError(t, err)
	assert.Equal(t, []string{"CodeForces 1A Theatre Square"}, rendered(delta.Accepted))
	assert.Equal(t, []string{"Gym 100001B"}, rendered(delta.Attempted))
	assert.Equal(t, 3, delta.Submissions)
	assert.Equal(t, activitydomain.Watermark("5003"), delta.Watermark)
	assert.Equal(t, int32(2), feed.hits.Load())
}

func TestVJudge_ErrorDiscardsPartialResults(t *testing.T) {
	feed := &vjudgeFeed{
		pages: map[int][]map[string]any{
			0: {vjRun(5003, "UVA", "1", "Accepted"), vjRun(5002, "UVA", "2", "Accepted")},
		},
		failPage: 1,
	}
	srv := feed.serve(t)

	delta, err := newTestVJudge(srv, 2, 25).Fetch(context.Background(), nil, "ada", "4000")
	assert.ErrorIs(t, err, ErrSourceStatus)
	assert.True(t, delta.IsEmpty())
	assert.Equal(t, activitydomain.Watermark("4000"), delta.Watermark)
}

func TestVJudge_PageCapKeepsCollectedRuns(t *testing.T) {
	pages := map[int][]map[string]any{}
	id := 9000
	for p := range 5 {
		for range 2 {
			pages[p] = append(pages[p], vjRun(id, "UVA", fmt.Sprint(id), "Accepted"))
			id--
		}
	}
	feed := &vjudgeFeed{pages: pages}
	srv := feed.serve(t)

	delta, err := newTestVJudge(srv, 2, 3).Fetch(context.Background(), nil, "ada", "100")
	require.NoError(t, err)
	assert.Equal(t, int32(3), feed.hits.Load())
	assert.Equal(t, 6, delta.Submissions)
	assert.Equal(t, 6, delta.Accepted.Len())
	assert.Equal(t, activitydomain.Watermark("9000"), delta.Watermark)
}

func TestVJudge_NoRunsKeepsWatermark(t *testing.T) {
	feed := &vjudgeFeed{pages: map[int][]map[string]any{}}
	srv := feed.serve(t)

	delta, err := newTestVJudge(srv, 20, 25).Fetch(context.Background(), nil, "ada", "")
	assert.ErrorIs(t, err, ErrNoSubmissions)
	assert.Equal(t, activitydomain.Watermark(""), delta.Watermark)
}

func TestFlexString(t *testing.T) {
	var rows []vjudgeRun
	require.NoError(t, json.Unmarshal([]byte(`[{"runId":123,"probNum":"1A"},{"runId":"456","probNum":7},{"runId":null}]`), &rows))
	require.Len(t, rows, 3)
	assert.Equal(t, flexString("123"), rows[0].RunID)
	assert.Equal(t, flexString("456"), rows[1].RunID)
	assert.Equal(t, flexString("7"), rows[1].ProbNum)
	assert.Equal(t, flexString(""), rows[2].RunID)
}

func TestVJudgeTitleScraper_Resolve(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/problem/CodeForces-1A":
			fmt.Fprint(w, `<html><head><title>Theatre Square - CodeForces 1A - Virtual Judge</title></head></html>`)
		case "/problem/UVA-100":
			fmt.Fprint(w, `<html><head><title>Virtual Judge</title></head></html>`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	scraper := NewVJudgeTitleScraper(newTestClient(srv), config.VJudgeConfig{BaseURL: srv.URL, TitleTimeout: time.Second}, nil)
	ctx := context.Background()

	assert.Equal(t, "Theatre Square", scraper.Resolve(ctx, "CodeForces", "1A"))
	assert.Equal(t, "", scraper.Resolve(ctx, "UVA", "100"), "unexpected title format")
	assert.Equal(t, "", scraper.Resolve(ctx, "SPOJ", "TEST"), "missing page")
}
