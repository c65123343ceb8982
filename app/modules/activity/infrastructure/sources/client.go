package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	activitydomain "github.com/Black-And-White-Club/cp-digest-bot/app/modules/activity/domain"
	"github.com/Black-And-White-Club/cp-digest-bot/config"
	"github.com/PuerkitoBio/goquery"
)

var (
	// ErrSourceStatus is returned when a judge answers with a non-success
	// HTTP or API status.
	ErrSourceStatus = errors.New("source returned unsuccessful status")
	// ErrNoSubmissions is returned when a judge lists nothing for a handle.
	// The stored watermark is kept, as for any other failure.
	ErrNoSubmissions = errors.New("source returned no submissions")
	// ErrUnparsableBaseline is returned when the newest run id of a listing
	// cannot be read.
	ErrUnparsableBaseline = errors.New("could not parse baseline run id")
	// ErrMalformed marks a submission record that cannot be normalized.
	ErrMalformed = activitydomain.ErrMalformed
)

const maxBodyBytes = 16 << 20

// Fetcher returns a member's activity on one judge since watermark. On error
// the returned delta is empty and echoes watermark back unchanged.
type Fetcher interface {
	Source() activitydomain.Source
	Fetch(ctx context.Context, run *activitydomain.Run, handle string, watermark activitydomain.Watermark) (activitydomain.Delta, error)
}

// Client is the HTTP client shared by every judge integration.
type Client struct {
	http      *http.Client
	userAgent string
}

// NewClient creates a Client with a per-request timeout and a browser
// User-Agent, which VJudge and CodeChef require.
func NewClient(timeout time.Duration, userAgent string) *Client {
	return NewClientWithHTTP(&http.Client{Timeout: timeout}, userAgent)
}

// NewClientWithHTTP wraps an existing *http.Client.
func NewClientWithHTTP(hc *http.Client, userAgent string) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{http: hc, userAgent: userAgent}
}

func (c *Client) get(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", req.URL.Path, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %s %d", ErrSourceStatus, req.URL.Path, resp.StatusCode)
	}
	return resp.Body, nil
}

// GetJSON decodes a JSON document into out.
func (c *Client) GetJSON(ctx context.Context, rawURL string, out any) error {
	body, err := c.get(ctx, rawURL)
	if err != nil {
		return err
	}
	defer body.Close()

	if err := json.NewDecoder(io.LimitReader(body, maxBodyBytes)).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// GetDocument parses an HTML page.
func (c *Client) GetDocument(ctx context.Context, rawURL string) (*goquery.Document, error) {
	body, err := c.get(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}
	return doc, nil
}

// NewFetchers builds one fetcher per judge, in sync order.
func NewFetchers(client *Client, cfg config.SourcesConfig, logger *slog.Logger) []Fetcher {
	return []Fetcher{
		NewCodeforces(client, cfg.Codeforces, logger),
		NewAtCoder(client, cfg.AtCoder, logger),
		NewVJudge(client, cfg.VJudge, logger),
		NewCodeChef(client, cfg.CodeChef, logger),
	}
}

func orDefault(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}
