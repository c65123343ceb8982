package sources

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	activitydomain "github.com/Black-And-White-Club/cp-digest-bot/app/modules/activity/domain"
	"github.com/Black-And-White-Club/cp-digest-bot/config"
	"github.com/Black-And-White-Club/cp-digest-bot/internal/observability/attr"
)

type cfStatusResponse struct {
	Status  string         `json:"status"`
	Comment string         `json:"comment"`
	Result  []cfSubmission `json:"result"`
}

type cfSubmission struct {
	ID      int64  `json:"id"`
	Verdict string `json:"verdict"`
	Problem struct {
		ContestID int    `json:"contestId"`
		Index     string `json:"index"`
		Name      string `json:"name"`
	} `json:"problem"`
}

// Codeforces reads the newest submissions of a handle from the public API.
type Codeforces struct {
	client *Client
	cfg    config.CodeforcesConfig
	logger *slog.Logger
}

func NewCodeforces(client *Client, cfg config.CodeforcesConfig, logger *slog.Logger) *Codeforces {
	if cfg.Count <= 0 {
		cfg.Count = 200
	}
	return &Codeforces{client: client, cfg: cfg, logger: orDefault(logger)}
}

func (c *Codeforces) Source() activitydomain.Source { return activitydomain.SourceCodeforces }

// Fetch walks the submissions newest first and stops at the watermark. Every
// returned problem name is recorded in run.CFTitles for the VJudge fetcher.
func (c *Codeforces) Fetch(ctx context.Context, run *activitydomain.Run, handle string, watermark activitydomain.Watermark) (activitydomain.Delta, error) {
	unchanged := activitydomain.NewDelta(c.Source(), watermark)
	handle = strings.TrimSpace(handle)
	if handle == "" {
		return unchanged, nil
	}

	q := url.Values{}
	q.Set("handle", handle)
	q.Set("from", "1")
	q.Set("count", strconv.Itoa(c.cfg.Count))

	var resp cfStatusResponse
	if err := c.client.GetJSON(ctx, c.cfg.BaseURL+"/api/user.status?"+q.Encode(), &resp); err != nil {
		return unchanged, fmt.Errorf("codeforces user.status: %w", err)
	}
	if resp.Status != "OK" {
		return unchanged, fmt.Errorf("%w: codeforces %s %s", ErrSourceStatus, resp.Status, resp.Comment)
	}
	if len(resp.Result) == 0 {
		return unchanged, ErrNoSubmissions
	}

	var newest int64
	problems := make([]activitydomain.Problem, len(resp.Result))
	parsed := make([]bool, len(resp.Result))
	for i, sub := range resp.Result {
		newest = max(newest, sub.ID)
		p, err := activitydomain.CodeforcesProblem(sub.Problem.ContestID, sub.Problem.Index, sub.Problem.Name)
		if err != nil {
			continue
		}
		problems[i], parsed[i] = p, true
		if run != nil {
			run.CFTitles.Set(p.Plain(), p.Title)
		}
	}

	last, ok := watermark.ID()
	if !ok {
		return activitydomain.NewDelta(c.Source(), activitydomain.WatermarkFromID(newest)), nil
	}

	delta := activitydomain.NewDelta(c.Source(), watermark.Advance(newest))
	for i, sub := range resp.Result {
		if sub.ID <= last {
			break
		}
		delta.Submissions++
		if !parsed[i] {
			c.logger.DebugContext(ctx, "Skipping malformed submission",
				attr.Source(c.Source()),
				attr.Handle(handle),
				attr.Int64("submission_id", sub.ID),
			)
			continue
		}
		delta.Record(problems[i], sub.Verdict == "OK")
	}
	delta.Settle()
	return delta, nil
}
