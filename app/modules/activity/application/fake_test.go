package activityservice

import (
	"context"
	"fmt"
	"sync"
	"time"

	activitydomain "github.com/Black-And-White-Club/cp-digest-bot/app/modules/activity/domain"
	"github.com/Black-And-White-Club/cp-digest-bot/app/modules/activity/infrastructure/sources"
	rosterdb "github.com/Black-And-White-Club/cp-digest-bot/app/modules/roster/infrastructure/repositories"
)

// ------------------------
// Fake Roster Store
// ------------------------

type FakeStore struct {
	mu    sync.Mutex
	trace []string

	LoadFunc            func(ctx context.Context) ([]rosterdb.Member, error)
	UpdateWatermarkFunc func(ctx context.Context, row int, source activitydomain.Source, value activitydomain.Watermark) error
}

func NewFakeStore() *FakeStore {
	return &FakeStore{trace: []string{}}
}

func (f *FakeStore) record(step string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.trace = append(f.trace, step)
}

func (f *FakeStore) Load(ctx context.Context) ([]rosterdb.Member, error) {
	f.record("Load")
	if f.LoadFunc != nil {
		return f.LoadFunc(ctx)
	}
	return nil, nil
}

func (f *FakeStore) UpdateWatermark(ctx context.Context, row int, source activitydomain.Source, value activitydomain.Watermark) error {
	f.record(fmt.Sprintf("UpdateWatermark:%d:%s=%s", row, source, value))
	if f.UpdateWatermarkFunc != nil {
		return f.UpdateWatermarkFunc(ctx, row, source, value)
	}
	return nil
}

func (f *FakeStore) Trace() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.trace))
	copy(out, f.trace)
	return out
}

var _ rosterdb.Store = (*FakeStore)(nil)

// ------------------------
// Fake Fetcher
// ------------------------

type FakeFetcher struct {
	source activitydomain.Source
	calls  *callLog

	FetchFunc func(ctx context.Context, run *activitydomain.Run, handle string, watermark activitydomain.Watermark) (activitydomain.Delta, error)
}

// callLog is shared by the fetchers of one test so call order across sources
// can be asserted.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (c *callLog) add(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, s)
}

func (c *callLog) list() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.calls))
	copy(out, c.calls)
	return out
}

func NewFakeFetcher(source activitydomain.Source, calls *callLog) *FakeFetcher {
	return &FakeFetcher{source: source, calls: calls}
}

func (f *FakeFetcher) Source() activitydomain.Source { return f.source }

func (f *FakeFetcher) Fetch(ctx context.Context, run *activitydomain.Run, handle string, watermark activitydomain.Watermark) (activitydomain.Delta, error) {
	if f.calls != nil {
		f.calls.add(string(f.source) + ":" + handle)
	}
	if f.FetchFunc != nil {
		return f.FetchFunc(ctx, run, handle, watermark)
	}
	return activitydomain.NewDelta(f.source, watermark), nil
}

var _ sources.Fetcher = (*FakeFetcher)(nil)

// ------------------------
// Fake Metrics
// ------------------------

type FakeMetrics struct {
	mu        sync.Mutex
	fetches   map[string]int
	writeBack map[string]int
	failures  int
}

func NewFakeMetrics() *FakeMetrics {
	return &FakeMetrics{fetches: map[string]int{}, writeBack: map[string]int{}}
}

func (m *FakeMetrics) RecordOperationAttempt(context.Context, string, string) {}
func (m *FakeMetrics) RecordOperationSuccess(context.Context, string, string) {}
func (m *FakeMetrics) RecordOperationFailure(context.Context, string, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures++
}
func (m *FakeMetrics) RecordOperationDuration(context.Context, string, string, time.Duration) {}
func (m *FakeMetrics) RecordSubmissions(context.Context, string, int)                         {}

func (m *FakeMetrics) RecordFetch(_ context.Context, source, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetches[source+":"+outcome]++
}

func (m *FakeMetrics) RecordWriteBack(_ context.Context, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeBack[outcome]++
}

func (m *FakeMetrics) Fetches(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fetches[key]
}

func (m *FakeMetrics) WriteBacks(outcome string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writeBack[outcome]
}

var _ Metrics = (*FakeMetrics)(nil)
