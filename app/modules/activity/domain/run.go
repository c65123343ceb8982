package activitydomain

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Run is the state shared by every step of one digest run. The caches live
// only as long as the run.
type Run struct {
	ID        uuid.UUID
	StartedAt time.Time

	// CFTitles maps "<Judge> <ID>" to a Codeforces problem name. Filled by the
	// Codeforces fetcher, read by the VJudge fetcher.
	CFTitles *TitleCache

	// VJudgeTitles maps "<Judge>-<ID>" to a scraped VJudge title. Filled and
	// read by the report renderer.
	VJudgeTitles *TitleCache
}

// NewRun starts a run at now.
func NewRun(now time.Time) *Run {
	return &Run{
		ID:           uuid.New(),
		StartedAt:    now,
		CFTitles:     NewTitleCache(),
		VJudgeTitles: NewTitleCache(),
	}
}

// TitleCache is a concurrency-safe string map.
type TitleCache struct {
	mu     sync.RWMutex
	titles map[string]string
}

// NewTitleCache returns an empty cache.
func NewTitleCache() *TitleCache {
	return &TitleCache{titles: make(map[string]string)}
}

// Get returns the cached title for key.
func (c *TitleCache) Get(key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	title, ok := c.titles[key]
	return title, ok
}

// Set stores title under key.
func (c *TitleCache) Set(key, title string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.titles[key] = title
}

// Len returns the number of cached titles.
func (c *TitleCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.titles)
}
