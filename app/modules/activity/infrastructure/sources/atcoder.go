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

type atcoderSubmission struct {
	ID        int64  `json:"id"`
	ProblemID string `json:"problem_id"`
	Result    string `json:"result"`
}

// AtCoder reads submissions from the kenkoooo AtCoder Problems mirror.
type AtCoder struct {
	client *Client
	cfg    config.AtCoderConfig
	logger *slog.Logger
}

func NewAtCoder(client *Client, cfg config.AtCoderConfig, logger *slog.Logger) *AtCoder {
	return &AtCoder{client: client, cfg: cfg, logger: orDefault(logger)}
}

func (a *AtCoder) Source() activitydomain.Source { return activitydomain.SourceAtCoder }

// Fetch filters the whole listing by id since the mirror does not guarantee
// ordering.
func (a *AtCoder) Fetch(ctx context.Context, _ *activitydomain.Run, handle string, watermark activitydomain.Watermark) (activitydomain.Delta, error) {
	unchanged := activitydomain.NewDelta(a.Source(), watermark)
	handle = strings.TrimSpace(handle)
	if handle == "" {
		return unchanged, nil
	}

	q := url.Values{}
	q.Set("user", handle)
	q.Set("from_second", strconv.FormatInt(a.cfg.FromSecond, 10))

	var subs []atcoderSubmission
	if err := a.client.GetJSON(ctx, a.cfg.BaseURL+"/atcoder/atcoder-api/v3/user/submissions?"+q.Encode(), &subs); err != nil {
		return unchanged, fmt.Errorf("atcoder submissions: %w", err)
	}
	if len(subs) == 0 {
		return unchanged, ErrNoSubmissions
	}

	var newest int64
	for _, sub := range subs {
		newest = max(newest, sub.ID)
	}

	last, ok := watermark.ID()
	if !ok {
		return activitydomain.NewDelta(a.Source(), activitydomain.WatermarkFromID(newest)), nil
	}

	delta := activitydomain.NewDelta(a.Source(), watermark.Advance(newest))
	for _, sub := range subs {
		if sub.ID <= last {
			continue
		}
		delta.Submissions++
		p, err := activitydomain.AtCoderProblem(sub.ProblemID)
		if err != nil {
			a.logger.DebugContext(ctx, "Skipping malformed submission",
				attr.Source(a.Source()),
				attr.Handle(handle),
				attr.Int64("submission_id", sub.ID),
			)
			continue
		}
		delta.Record(p, sub.Result == "AC")
	}
	delta.Settle()
	return delta, nil
}
