package sources

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"strconv"
	"strings"

	activitydomain "github.com/Black-And-White-Club/cp-digest-bot/app/modules/activity/domain"
	"github.com/Black-And-White-Club/cp-digest-bot/config"
	"github.com/Black-And-White-Club/cp-digest-bot/internal/observability/attr"
	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"
)

type codechefRecentPage struct {
	Content string `json:"content"`
}

type codechefRow struct {
	runID    int64
	problem  activitydomain.Problem
	parsed   bool
	accepted bool
}

// CodeChef pages through the recent-activity listing, which embeds an HTML
// table in JSON. Page requests are paced by a limiter shared by every member.
type CodeChef struct {
	client  *Client
	cfg     config.CodeChefConfig
	limiter *rate.Limiter
	logger  *slog.Logger
}

func NewCodeChef(client *Client, cfg config.CodeChefConfig, logger *slog.Logger) *CodeChef {
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 40
	}
	limit := rate.Inf
	if cfg.PageDelay > 0 {
		limit = rate.Every(cfg.PageDelay)
	}
	return &CodeChef{
		client:  client,
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, 1),
		logger:  orDefault(logger),
	}
}

func (c *CodeChef) Source() activitydomain.Source { return activitydomain.SourceCodeChef }

// Fetch reads page 0 for the baseline run id and keeps paging until a run at
// or below the watermark appears.
func (c *CodeChef) Fetch(ctx context.Context, _ *activitydomain.Run, handle string, watermark activitydomain.Watermark) (activitydomain.Delta, error) {
	unchanged := activitydomain.NewDelta(c.Source(), watermark)
	handle = strings.TrimSpace(handle)
	if handle == "" {
		return unchanged, nil
	}

	last, incremental := watermark.ID()
	delta := activitydomain.NewDelta(c.Source(), watermark)
	var newest int64

pages:
	for page := 0; page < c.cfg.MaxPages; page++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return unchanged, err
		}
		rows, err := c.page(ctx, handle, page)
		if err != nil {
			return unchanged, fmt.Errorf("codechef recent page %d: %w", page, err)
		}
		if rows == nil || rows.Length() == 0 {
			break
		}

		if page == 0 {
			id, err := solutionID(rows.First().Find("td").Last())
			if err != nil {
				return unchanged, fmt.Errorf("%w: codechef: %v", ErrUnparsableBaseline, err)
			}
			newest = id
			if !incremental {
				return activitydomain.NewDelta(c.Source(), activitydomain.WatermarkFromID(newest)), nil
			}
		}

		for i := range rows.Length() {
			row, ok := parseCodeChefRow(rows.Eq(i))
			if !ok {
				continue
			}
			if row.runID <= last {
				break pages
			}
			delta.Submissions++
			if !row.parsed {
				c.logger.DebugContext(ctx, "Skipping malformed submission",
					attr.Source(c.Source()),
					attr.Handle(handle),
					attr.Int64("submission_id", row.runID),
				)
				continue
			}
			delta.Record(row.problem, row.accepted)
		}
	}

	if newest == 0 {
		return unchanged, ErrNoSubmissions
	}
	delta.Watermark = watermark.Advance(newest)
	delta.Settle()
	return delta, nil
}

func (c *CodeChef) page(ctx context.Context, handle string, page int) (*goquery.Selection, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("user_handle", handle)

	var resp codechefRecentPage
	if err := c.client.GetJSON(ctx, c.cfg.BaseURL+"/recent/user?"+q.Encode(), &resp); err != nil {
		return nil, err
	}
	if strings.TrimSpace(resp.Content) == "" {
		return nil, nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(resp.Content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse content: %w", err)
	}
	return doc.Find("tbody tr"), nil
}

// parseCodeChefRow reads one listing row. ok is false when the row has no
// usable run id; parsed is false when the problem code is missing.
func parseCodeChefRow(tr *goquery.Selection) (row codechefRow, ok bool) {
	cols := tr.Find("td")
	if cols.Length() < 3 {
		return row, false
	}
	id, err := solutionID(cols.Last())
	if err != nil {
		return row, false
	}
	row.runID = id

	href, _ := cols.Eq(1).Find("a").Attr("href")
	if p, err := activitydomain.CodeChefProblem(lastSegment(href)); err == nil {
		row.problem, row.parsed = p, true
	}

	verdict, _ := goquery.OuterHtml(cols.Eq(2))
	verdict = strings.ToLower(verdict)
	row.accepted = strings.Contains(verdict, "tick-icon.gif") || strings.Contains(verdict, "accepted")
	return row, true
}

func solutionID(td *goquery.Selection) (int64, error) {
	href, ok := td.Find("a").Attr("href")
	if !ok {
		return 0, fmt.Errorf("no solution link")
	}
	return strconv.ParseInt(lastSegment(href), 10, 64)
}

func lastSegment(href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	if u, err := url.Parse(href); err == nil {
		href = u.Path
	}
	href = strings.TrimRight(href, "/")
	if href == "" {
		return ""
	}
	return path.Base(href)
}
