package schedulerqueue

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/Black-And-White-Club/cp-digest-bot/config"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type FakeRunner struct {
	calls       int
	RunOnceFunc func(ctx context.Context) error
}

func (f *FakeRunner) RunOnce(ctx context.Context) error {
	f.calls++
	if f.RunOnceFunc != nil {
		return f.RunOnceFunc(ctx)
	}
	return nil
}

var _ Runner = (*FakeRunner)(nil)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testJob() *river.Job[DigestRunJob] {
	return &river.Job[DigestRunJob]{
		JobRow: &rivertype.JobRow{ID: 12, Attempt: 1, Kind: "digest_run"},
		Args:   DigestRunJob{Trigger: TriggerPeriodic},
	}
}

func TestDigestRunWorker_Work(t *testing.T) {
	tests := []struct {
		name    string
		runErr  error
		wantErr bool
	}{
		{name: "success"},
		{name: "run failure fails the job", runErr: errors.New("roster unreachable"), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &FakeRunner{RunOnceFunc: func(context.Context) error { return tt.runErr }}
			w := NewDigestRunWorker(discardLogger(), runner)

			err := w.Work(context.Background(), testJob())
			assert.Equal(t, 1, runner.calls)
			if tt.wantErr {
				assert.ErrorIs(t, err, tt.runErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestDigestRunWorker_Timeout(t *testing.T) {
	w := NewDigestRunWorker(discardLogger(), &FakeRunner{})
	assert.Equal(t, digestJobTimeout, w.Timeout(testJob()))
}

func TestDigestRunJob_Kind(t *testing.T) {
	assert.Equal(t, "digest_run", DigestRunJob{}.Kind())
}

func TestNewRiverConfig(t *testing.T) {
	_, err := newRiverConfig(config.ScheduleConfig{}, &FakeRunner{}, discardLogger())
	assert.ErrorIs(t, err, ErrInvalidInterval)

	cfg, err := newRiverConfig(config.ScheduleConfig{Interval: 24 * time.Hour, RunOnStart: true}, &FakeRunner{}, discardLogger())
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.Queues[QueueDigest].MaxWorkers, "digest runs never overlap")
	assert.Len(t, cfg.PeriodicJobs, 1)
	assert.NotNil(t, cfg.Workers)
}

func TestDigestInsertOpts(t *testing.T) {
	opts := digestInsertOpts(time.Hour)
	assert.Equal(t, QueueDigest, opts.Queue)
	assert.Equal(t, 1, opts.MaxAttempts)
	assert.Equal(t, time.Hour, opts.UniqueOpts.ByPeriod)
}

func TestJobInfos(t *testing.T) {
	scheduled := time.Date(2026, 10, 19, 6, 0, 0, 0, time.UTC)
	infos := jobInfos([]*rivertype.JobRow{{
		ID:          3,
		State:       rivertype.JobStateCompleted,
		ScheduledAt: scheduled,
		Attempt:     1,
		EncodedArgs: []byte(`{"trigger":"manual"}`),
	}})
	assert.Equal(t, []JobInfo{{ID: 3, State: "completed", Trigger: TriggerManual, ScheduledAt: scheduled, Attempt: 1}}, infos)
}
