package reportservice

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	activitydomain "github.com/Black-And-White-Club/cp-digest-bot/app/modules/activity/domain"
	"github.com/Black-And-White-Club/cp-digest-bot/config"
	"github.com/Black-And-White-Club/cp-digest-bot/internal/observability/attr"
)

const headerTimeLayout = "January 02, 2006, 03:04 PM"

// TitleResolver looks up a problem title on demand. An empty string means
// the title is unknown.
type TitleResolver interface {
	Resolve(ctx context.Context, judge, id string) string
}

// Renderer turns ranked results into HTML chat messages.
type Renderer struct {
	cfg        config.ReportConfig
	vjudgeBase string
	titles     TitleResolver
	logger     *slog.Logger
}

// NewRenderer creates a Renderer. Links point at vjudgeBaseURL; titles may be
// nil to disable on-demand title lookups.
func NewRenderer(cfg config.ReportConfig, vjudgeBaseURL string, titles TitleResolver, logger *slog.Logger) *Renderer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxMessageLength <= 0 {
		cfg.MaxMessageLength = config.Default().Report.MaxMessageLength
	}
	if cfg.Title == "" {
		cfg.Title = config.Default().Report.Title
	}
	return &Renderer{
		cfg:        cfg,
		vjudgeBase: strings.TrimRight(vjudgeBaseURL, "/"),
		titles:     titles,
		logger:     logger,
	}
}

// Render builds the report for run. Every returned message is at most
// MaxMessageLength runes long.
func (r *Renderer) Render(ctx context.Context, run *activitydomain.Run, results []activitydomain.Result) []string {
	c := &chunker{max: r.cfg.MaxMessageLength}

	c.add(r.header(run.StartedAt))
	for _, res := range results {
		c.add(r.memberLine(res))
		c.add(fmt.Sprintf("  ✅ <b>AC:</b>%d  ❌ <b>WA:</b>%d  ❔<b>SUB:</b>%d\n",
			res.Accepted.Len(), res.Attempted.Len(), res.Submissions))

		for _, p := range res.Accepted.Sorted() {
			c.add(r.problemLine(ctx, run, "　☑️ ", p))
		}
		for _, p := range res.Attempted.Sorted() {
			c.add(r.problemLine(ctx, run, "　⁉️ ", p))
		}
		if res.Accepted.Len() == 0 && res.Attempted.Len() == 0 {
			c.add("    💤 <i>No activity</i>\n")
		}
		c.add("\n\n")
	}

	messages := c.finish()
	r.logger.DebugContext(ctx, "Report rendered",
		attr.RunID(run.ID),
		attr.Int("members", len(results)),
		attr.Int("messages", len(messages)),
	)
	return messages
}

func (r *Renderer) header(at time.Time) string {
	zone := time.FixedZone(fmt.Sprintf("UTC%+d", r.cfg.UTCOffsetHours), r.cfg.UTCOffsetHours*3600)
	date := at.In(zone).Format(headerTimeLayout)
	const layout = "🏆 <b>%s</b> 🏆\n  %s\n\n"
	date = html.EscapeString(date)
	room := r.cfg.MaxMessageLength - utf8.RuneCountInString(fmt.Sprintf(layout, "", date))
	return fmt.Sprintf(layout, escapeFit(r.cfg.Title, room), date)
}

// memberLine and problemLine fit their text to the message limit, so a tag is
// never split across messages.
func (r *Renderer) memberLine(res activitydomain.Result) string {
	const layout = "%s <b>%s</b> (%s)\n"
	icon := rankIcon(res.Rank)
	reg := escapeFit(res.RegNum, r.cfg.MaxMessageLength/4)
	room := r.cfg.MaxMessageLength - utf8.RuneCountInString(fmt.Sprintf(layout, icon, "", reg))
	return fmt.Sprintf(layout, icon, escapeFit(res.Name, room), reg)
}

func (r *Renderer) problemLine(ctx context.Context, run *activitydomain.Run, marker string, p activitydomain.Problem) string {
	if p.Title == "" {
		p = p.WithTitle(r.resolveTitle(ctx, run, p))
	}
	const layout = "%s<a href=\"%s\">%s</a>\n"
	href := html.EscapeString(fmt.Sprintf("%s/problem/%s-%s/origin", r.vjudgeBase, p.Judge, p.ID))
	room := r.cfg.MaxMessageLength - utf8.RuneCountInString(fmt.Sprintf(layout, marker, href, ""))
	if room <= 0 {
		// The link alone does not fit; fall back to plain text.
		room = r.cfg.MaxMessageLength - utf8.RuneCountInString(marker) - 1
		return marker + escapeFit(p.String(), room) + "\n"
	}
	return fmt.Sprintf(layout, marker, href, escapeFit(p.String(), room))
}

// escapeFit HTML-escapes s, cutting it with an ellipsis so the escaped text
// is at most limit runes. Entities are never cut.
func escapeFit(s string, limit int) string {
	full := html.EscapeString(s)
	if utf8.RuneCountInString(full) <= limit {
		return full
	}
	if limit <= 0 {
		return ""
	}
	var b strings.Builder
	n := 0
	for _, ch := range s {
		e := html.EscapeString(string(ch))
		l := utf8.RuneCountInString(e)
		if n+l > limit-1 {
			break
		}
		b.WriteString(e)
		n += l
	}
	b.WriteString("…")
	return b.String()
}

// resolveTitle consults the run cache before scraping. Only found titles are
// cached, so a failed lookup is retried for the next occurrence.
func (r *Renderer) resolveTitle(ctx context.Context, run *activitydomain.Run, p activitydomain.Problem) string {
	key := p.Judge + "-" + p.ID
	if run.VJudgeTitles != nil {
		if title, ok := run.VJudgeTitles.Get(key); ok {
			return title
		}
	}
	if r.titles == nil {
		return ""
	}
	title := r.titles.Resolve(ctx, p.Judge, p.ID)
	if title != "" && run.VJudgeTitles != nil {
		run.VJudgeTitles.Set(key, title)
	}
	return title
}

func rankIcon(rank int) string {
	switch rank {
	case 1:
		return "🥇"
	case 2:
		return "🥈"
	case 3:
		return "🥉"
	default:
		return fmt.Sprintf("<b>%d.</b>", rank)
	}
}

// chunker packs segments into messages of at most max runes. Oversized
// segments are hard-split as a last resort.
type chunker struct {
	max  int
	buf  strings.Builder
	n    int
	msgs []string
}

func (c *chunker) add(seg string) {
	l := utf8.RuneCountInString(seg)
	if c.n > 0 && c.n+l > c.max {
		c.flush()
	}
	for l > c.max {
		head, tail := splitRunes(seg, c.max)
		c.buf.WriteString(head)
		c.n = c.max
		c.flush()
		seg, l = tail, l-c.max
	}
	c.buf.WriteString(seg)
	c.n += l
}

func (c *chunker) flush() {
	if strings.TrimSpace(c.buf.String()) != "" {
		c.msgs = append(c.msgs, c.buf.String())
	}
	c.buf.Reset()
	c.n = 0
}

func (c *chunker) finish() []string {
	c.flush()
	return c.msgs
}

// splitRunes cuts s after n runes.
func splitRunes(s string, n int) (string, string) {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos], s[pos:]
		}
		i++
	}
	return s, ""
}
