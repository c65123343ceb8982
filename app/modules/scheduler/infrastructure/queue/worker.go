package schedulerqueue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Black-And-White-Club/cp-digest-bot/internal/observability/attr"
	"github.com/riverqueue/river"
)

// digestJobTimeout bounds one digest run. Large rosters with CodeChef pacing
// take minutes, far beyond River's default job timeout.
const digestJobTimeout = 2 * time.Hour

// Runner performs one digest run.
type Runner interface {
	RunOnce(ctx context.Context) error
}

// DigestRunWorker executes DigestRunJob.
type DigestRunWorker struct {
	river.WorkerDefaults[DigestRunJob]
	runner Runner
	logger *slog.Logger
}

func NewDigestRunWorker(logger *slog.Logger, runner Runner) *DigestRunWorker {
	return &DigestRunWorker{runner: runner, logger: logger}
}

func (w *DigestRunWorker) Timeout(*river.Job[DigestRunJob]) time.Duration {
	return digestJobTimeout
}

func (w *DigestRunWorker) Work(ctx context.Context, job *river.Job[DigestRunJob]) error {
	logger := w.logger.With(
		attr.Int64("job_id", job.ID),
		attr.String("trigger", job.Args.Trigger),
		attr.Int("attempt", job.Attempt),
	)
	logger.InfoContext(ctx, "Digest job started")

	start := time.Now()
	if err := w.runner.RunOnce(ctx); err != nil {
		logger.ErrorContext(ctx, "Digest job failed", attr.Error(err))
		return fmt.Errorf("digest run failed: %w", err)
	}

	logger.InfoContext(ctx, "Digest job completed", attr.Duration("duration", time.Since(start)))
	return nil
}
