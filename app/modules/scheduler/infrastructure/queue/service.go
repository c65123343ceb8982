package schedulerqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Black-And-White-Club/cp-digest-bot/config"
	"github.com/Black-And-White-Club/cp-digest-bot/internal/observability/attr"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/riverqueue/river/rivertype"
)

const serviceName = "river"

var ErrInvalidInterval = errors.New("schedule interval must be positive")

// Metrics interface (the bot's operation metrics)
type Metrics interface {
	RecordOperationAttempt(ctx context.Context, operation, service string)
	RecordOperationSuccess(ctx context.Context, operation, service string)
	RecordOperationFailure(ctx context.Context, operation, service string)
	RecordOperationDuration(ctx context.Context, operation, service string, duration time.Duration)
}

// Service schedules digest runs on River.
type Service struct {
	client  *river.Client[pgx.Tx]
	pool    *pgxpool.Pool
	logger  *slog.Logger
	metrics Metrics
}

// NewService connects to Postgres and builds a River client with the periodic
// digest job registered. Call Start to begin working jobs.
func NewService(ctx context.Context, dsn string, cfg config.ScheduleConfig, runner Runner, logger *slog.Logger, metrics Metrics) (*Service, error) {
	ctxLogger := logger.With(
		attr.String("component", "river_queue"),
	)

	start := time.Now()
	metrics.RecordOperationAttempt(ctx, "initialize_service", serviceName)

	pool, err := openPool(ctx, dsn)
	if err != nil {
		ctxLogger.Error("Failed to open pgx pool for River", attr.Error(err))
		metrics.RecordOperationFailure(ctx, "initialize_service", serviceName)
		return nil, err
	}

	riverConfig, err := newRiverConfig(cfg, runner, ctxLogger)
	if err != nil {
		pool.Close()
		metrics.RecordOperationFailure(ctx, "initialize_service", serviceName)
		return nil, err
	}

	riverClient, err := river.NewClient(riverpgxv5.New(pool), riverConfig)
	if err != nil {
		pool.Close()
		ctxLogger.Error("Failed to create River client", attr.Error(err))
		metrics.RecordOperationFailure(ctx, "initialize_service", serviceName)
		return nil, fmt.Errorf("failed to create River client: %w", err)
	}

	metrics.RecordOperationSuccess(ctx, "initialize_service", serviceName)
	metrics.RecordOperationDuration(ctx, "initialize_service", serviceName, time.Since(start))

	ctxLogger.Info("Digest scheduler initialized",
		attr.Duration("interval", cfg.Interval),
		attr.Bool("run_on_start", cfg.RunOnStart),
	)
	return &Service{client: riverClient, pool: pool, logger: ctxLogger, metrics: metrics}, nil
}

func openPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DSN: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

func newRiverConfig(cfg config.ScheduleConfig, runner Runner, logger *slog.Logger) (*river.Config, error) {
	if cfg.Interval <= 0 {
		return nil, ErrInvalidInterval
	}

	workers := river.NewWorkers()
	river.AddWorker(workers, NewDigestRunWorker(logger, runner))

	return &river.Config{
		Logger: logger,
		Queues: map[string]river.QueueConfig{
			QueueDigest: {MaxWorkers: 1},
		},
		Workers:      workers,
		PeriodicJobs: []*river.PeriodicJob{periodicDigestJob(cfg)},
	}, nil
}

func periodicDigestJob(cfg config.ScheduleConfig) *river.PeriodicJob {
	return river.NewPeriodicJob(
		river.PeriodicInterval(cfg.Interval),
		func() (river.JobArgs, *river.InsertOpts) {
			return DigestRunJob{Trigger: TriggerPeriodic, RequestedAt: time.Now().UTC()}, digestInsertOpts(cfg.Interval)
		},
		&river.PeriodicJobOpts{RunOnStart: cfg.RunOnStart},
	)
}

// digestInsertOpts never retries a digest since a retry would redeliver the
// report. Jobs are unique per interval window.
func digestInsertOpts(interval time.Duration) *river.InsertOpts {
	return &river.InsertOpts{
		Queue:       QueueDigest,
		MaxAttempts: 1,
		UniqueOpts: river.UniqueOpts{
			ByPeriod: interval,
		},
	}
}

// Start starts the River queue service
func (s *Service) Start(ctx context.Context) error {
	s.metrics.RecordOperationAttempt(ctx, "start_service", serviceName)
	if err := s.client.Start(ctx); err != nil {
		s.logger.Error("Failed to start River client", attr.Error(err))
		s.metrics.RecordOperationFailure(ctx, "start_service", serviceName)
		return fmt.Errorf("failed to start River client: %w", err)
	}
	s.metrics.RecordOperationSuccess(ctx, "start_service", serviceName)
	s.logger.Info("Digest scheduler started")
	return nil
}

// Stop waits for the running digest to finish, then closes the pool.
func (s *Service) Stop(ctx context.Context) error {
	s.metrics.RecordOperationAttempt(ctx, "stop_service", serviceName)
	defer s.pool.Close()
	if err := s.client.Stop(ctx); err != nil {
		s.logger.Error("Failed to stop River client", attr.Error(err))
		s.metrics.RecordOperationFailure(ctx, "stop_service", serviceName)
		return fmt.Errorf("failed to stop River client: %w", err)
	}
	s.metrics.RecordOperationSuccess(ctx, "stop_service", serviceName)
	s.logger.Info("Digest scheduler stopped")
	return nil
}

// Trigger enqueues an immediate digest run.
func (s *Service) Trigger(ctx context.Context) (int64, error) {
	s.metrics.RecordOperationAttempt(ctx, "trigger_digest", serviceName)
	res, err := s.client.Insert(ctx, DigestRunJob{Trigger: TriggerManual, RequestedAt: time.Now().UTC()}, &river.InsertOpts{
		Queue:       QueueDigest,
		MaxAttempts: 1,
	})
	if err != nil {
		s.metrics.RecordOperationFailure(ctx, "trigger_digest", serviceName)
		return 0, fmt.Errorf("failed to enqueue digest job: %w", err)
	}
	s.metrics.RecordOperationSuccess(ctx, "trigger_digest", serviceName)
	s.logger.Info("Digest job enqueued", attr.Int64("job_id", res.Job.ID))
	return res.Job.ID, nil
}

// RecentJobs lists the latest digest jobs, newest first.
func (s *Service) RecentJobs(ctx context.Context, limit int) ([]JobInfo, error) {
	params := river.NewJobListParams().
		Kinds(DigestRunJob{}.Kind()).
		OrderBy(river.JobListOrderByID, river.SortOrderDesc).
		First(limit)

	res, err := s.client.JobList(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to list digest jobs: %w", err)
	}
	return jobInfos(res.Jobs), nil
}

func jobInfos(rows []*rivertype.JobRow) []JobInfo {
	out := make([]JobInfo, 0, len(rows))
	for _, row := range rows {
		info := JobInfo{
			ID:          row.ID,
			State:       string(row.State),
			ScheduledAt: row.ScheduledAt,
			Attempt:     row.Attempt,
		}
		var args DigestRunJob
		if err := json.Unmarshal(row.EncodedArgs, &args); err == nil {
			info.Trigger = args.Trigger
		}
		out = append(out, info)
	}
	return out
}

// HealthCheck verifies the queue database is reachable.
func (s *Service) HealthCheck(ctx context.Context) error {
	var count int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM river_job WHERE kind = $1", DigestRunJob{}.Kind()).Scan(&count); err != nil {
		s.logger.Error("Queue service health check failed", attr.Error(err))
		return fmt.Errorf("queue service health check failed: %w", err)
	}
	s.logger.Debug("Queue service health check passed", attr.Int("digest_jobs", count))
	return nil
}

// Migrate applies or rolls back River's schema.
func Migrate(ctx context.Context, dsn string, direction rivermigrate.Direction, logger *slog.Logger) error {
	pool, err := openPool(ctx, dsn)
	if err != nil {
		return err
	}
	defer pool.Close()

	migrator, err := rivermigrate.New(riverpgxv5.New(pool), &rivermigrate.Config{Logger: logger})
	if err != nil {
		return fmt.Errorf("failed to create River migrator: %w", err)
	}

	opts := &rivermigrate.MigrateOpts{}
	if direction == rivermigrate.DirectionDown {
		// One version at a time.
		opts.MaxSteps = 1
	}
	res, err := migrator.Migrate(ctx, direction, opts)
	if err != nil {
		return fmt.Errorf("failed to run River migrations: %w", err)
	}
	for _, v := range res.Versions {
		logger.Info("River migration applied", attr.String("direction", string(direction)), attr.Int("version", v.Version))
	}
	return nil
}
