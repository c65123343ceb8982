package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	activitydomain "github.com/Black-And-White-Club/cp-digest-bot/app/modules/activity/domain"
	"github.com/Black-And-White-Club/cp-digest-bot/config"
	"github.com/Black-And-White-Club/cp-digest-bot/internal/observability/attr"
)

// flexString accepts both JSON strings and numbers. VJudge is not consistent
// about which one it sends for run ids and problem numbers.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

type vjudgeStatusPage struct {
	Data []vjudgeRun `json:"data"`
}

type vjudgeRun struct {
	RunID   flexString `json:"runId"`
	OJ      string     `json:"oj"`
	ProbNum flexString `json:"probNum"`
	Status  string     `json:"status"`
}

func (r vjudgeRun) id() (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(string(r.RunID)), 10, 64)
}

// VJudge pages through the public status listing of a handle.
type VJudge struct {
	client *Client
	cfg    config.VJudgeConfig
	logger *slog.Logger
}

func NewVJudge(client *Client, cfg config.VJudgeConfig, logger *slog.Logger) *VJudge {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 20
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 25
	}
	return &VJudge{client: client, cfg: cfg, logger: orDefault(logger)}
}

func (v *VJudge) Source() activitydomain.Source { return activitydomain.SourceVJudge }

// Fetch pages newest first until it reaches the watermark, an empty page or the
// page cap. Any failure discards what was collected so far. Mirrored
// Codeforces problems are titled from run.CFTitles.
func (v *VJudge) Fetch(ctx context.Context, run *activitydomain.Run, handle string, watermark activitydomain.Watermark) (activitydomain.Delta, error) {
	unchanged := activitydomain.NewDelta(v.Source(), watermark)
	handle = strings.TrimSpace(handle)
	if handle == "" {
		return unchanged, nil
	}

	var cfTitles *activitydomain.TitleCache
	if run != nil {
		cfTitles = run.CFTitles
	}

	last, incremental := watermark.ID()
	delta := activitydomain.NewDelta(v.Source(), watermark)
	var newest int64

pages:
	for page := 0; page < v.cfg.MaxPages; page++ {
		rows, err := v.page(ctx, handle, page*v.cfg.PageSize)
		if err != nil {
			return unchanged, fmt.Errorf("vjudge status page %d: %w", page, err)
		}
		if len(rows) == 0 {
			break
		}

		if page == 0 {
			id, err := rows[0].id()
			if err != nil {
				return unchanged, fmt.Errorf("%w: vjudge run id %q", ErrUnparsableBaseline, rows[0].RunID)
			}
			newest = id
			if !incremental {
				return activitydomain.NewDelta(v.Source(), activitydomain.WatermarkFromID(newest)), nil
			}
		}

		for _, row := range rows {
			id, err := row.id()
			if err != nil {
				v.logger.DebugContext(ctx, "Skipping run with unreadable id",
					attr.Source(v.Source()),
					attr.Handle(handle),
					attr.String("run_id", string(row.RunID)),
				)
				continue
			}
			if id <= last {
				break pages
			}
			delta.Submissions++
			p, err := activitydomain.VJudgeProblem(row.OJ, string(row.ProbNum), cfTitles)
			if err != nil {
				continue
			}
			delta.Record(p, row.Status == "Accepted")
		}
	}

	if newest == 0 {
		return unchanged, ErrNoSubmissions
	}
	delta.Watermark = watermark.Advance(newest)
	delta.Settle()
	return delta, nil
}

func (v *VJudge) page(ctx context.Context, handle string, start int) ([]vjudgeRun, error) {
	q := url.Values{}
	q.Set("draw", "1")
	q.Set("start", strconv.Itoa(start))
	q.Set("length", strconv.Itoa(v.cfg.PageSize))
	q.Set("un", handle)
	q.Set("sortDir", "desc")
	q.Set("orderBy", "runId")

	var resp vjudgeStatusPage
	if err := v.client.GetJSON(ctx, v.cfg.BaseURL+"/status/data?"+q.Encode(), &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// VJudgeTitleScraper reads problem titles from VJudge problem pages.
type VJudgeTitleScraper struct {
	client *Client
	cfg    config.VJudgeConfig
	logger *slog.Logger
}

func NewVJudgeTitleScraper(client *Client, cfg config.VJudgeConfig, logger *slog.Logger) *VJudgeTitleScraper {
	return &VJudgeTitleScraper{client: client, cfg: cfg, logger: orDefault(logger)}
}

// Resolve returns the title of judge-id or "" when it cannot be determined.
func (s *VJudgeTitleScraper) Resolve(ctx context.Context, judge, id string) string {
	if s.cfg.TitleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.TitleTimeout)
		defer cancel()
	}

	doc, err := s.client.GetDocument(ctx, s.cfg.BaseURL+"/problem/"+url.PathEscape(judge+"-"+id))
	if err != nil {
		s.logger.DebugContext(ctx, "Title lookup failed",
			attr.String("judge", judge),
			attr.String("problem", id),
			attr.Error(err),
		)
		return ""
	}

	pageTitle := strings.TrimSpace(doc.Find("title").First().Text())
	suffix := fmt.Sprintf(" - %s %s - Virtual Judge", judge, id)
	if !strings.HasSuffix(pageTitle, suffix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimSuffix(pageTitle, suffix))
}
