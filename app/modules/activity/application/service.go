package activityservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	activitydomain "github.com/Black-And-White-Club/cp-digest-bot/app/modules/activity/domain"
	"github.com/Black-And-White-Club/cp-digest-bot/app/modules/activity/infrastructure/sources"
	rosterdb "github.com/Black-And-White-Club/cp-digest-bot/app/modules/roster/infrastructure/repositories"
	"github.com/Black-And-White-Club/cp-digest-bot/config"
	"github.com/Black-And-White-Club/cp-digest-bot/internal/observability"
	"github.com/Black-And-White-Club/cp-digest-bot/internal/observability/attr"
	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"
)

const serviceName = "SyncService"

// Fetch and write-back outcomes reported to metrics.
const (
	OutcomeOK        = "ok"
	OutcomeBootstrap = "bootstrap"
	OutcomeEmpty     = "empty"
	OutcomeError     = "error"
	OutcomeRetry     = "retry"
	OutcomeDegraded  = "degraded"
)

// Metrics is the subset of the bot metrics the sync needs.
type Metrics interface {
	RecordOperationAttempt(ctx context.Context, operation, service string)
	RecordOperationSuccess(ctx context.Context, operation, service string)
	RecordOperationFailure(ctx context.Context, operation, service string)
	RecordOperationDuration(ctx context.Context, operation, service string, d time.Duration)
	RecordFetch(ctx context.Context, source, outcome string)
	RecordSubmissions(ctx context.Context, source string, n int)
	RecordWriteBack(ctx context.Context, outcome string)
}

// SyncService walks the roster, runs every fetcher for each member, persists
// advanced watermarks and ranks the results.
type SyncService struct {
	store    rosterdb.Store
	fetchers []sources.Fetcher
	logger   *slog.Logger
	metrics  Metrics
	tracer   trace.Tracer
	cfg      config.SyncConfig

	sleep func(ctx context.Context, d time.Duration) error
}

// NewSyncService creates a new SyncService. Fetchers run in the judge order of
// activitydomain.Sources whatever order they are passed in.
func NewSyncService(
	store rosterdb.Store,
	fetchers []sources.Fetcher,
	logger *slog.Logger,
	metrics Metrics,
	tracer trace.Tracer,
	cfg config.SyncConfig,
) *SyncService {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observability.NewNoopMetrics()
	}
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer(serviceName)
	}
	if cfg.WriteMaxAttempts < 1 {
		cfg.WriteMaxAttempts = 1
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}

	ordered := slices.Clone(fetchers)
	slices.SortStableFunc(ordered, func(a, b sources.Fetcher) int {
		return slices.Index(activitydomain.Sources, a.Source()) - slices.Index(activitydomain.Sources, b.Source())
	})

	return &SyncService{
		store:    store,
		fetchers: ordered,
		logger:   logger,
		metrics:  metrics,
		tracer:   tracer,
		cfg:      cfg,
		sleep:    sleepContext,
	}
}

// Sync processes the whole roster for run. Only a roster load failure or
// cancellation fails the run; per-source and write-back failures degrade the
// affected member.
func (s *SyncService) Sync(ctx context.Context, run *activitydomain.Run) ([]activitydomain.Result, error) {
	return withTelemetry(s, ctx, "Sync", run.ID.String(), func(ctx context.Context) ([]activitydomain.Result, error) {
		return s.syncLogic(ctx, run)
	})
}

func (s *SyncService) syncLogic(ctx context.Context, run *activitydomain.Run) ([]activitydomain.Result, error) {
	logger := s.logger.With(attr.RunID(run.ID))

	members, err := s.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load roster: %w", err)
	}
	logger.InfoContext(ctx, "Processing roster", attr.Int("members", len(members)))

	activities := make([]activitydomain.Activity, len(members))
	if s.cfg.Concurrency == 1 {
		for i, m := range members {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			activities[i] = s.syncMember(ctx, logger, run, m)
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.cfg.Concurrency)
		for i, m := range members {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				activities[i] = s.syncMember(gctx, logger, run, m)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return activitydomain.RankResults(activities), nil
}

func (s *SyncService) syncMember(ctx context.Context, logger *slog.Logger, run *activitydomain.Run, m rosterdb.Member) activitydomain.Activity {
	ctx, span := s.tracer.Start(ctx, "SyncMember", trace.WithAttributes(
		attribute.String("member", m.Name),
		attribute.Int("row", m.Row),
	))
	defer span.End()

	logger = logger.With(attr.Member(m.Name), attr.Int("row", m.Row))
	logger.DebugContext(ctx, "Checking member")

	act := activitydomain.NewActivity(m.Name, m.RegNum)
	for _, f := range s.fetchers {
		act.Merge(s.fetch(ctx, logger, run, f, m))
	}
	act.Settle()

	changed := make(map[activitydomain.Source]activitydomain.Watermark)
	for _, source := range activitydomain.Sources {
		wm, ok := act.Watermarks[source]
		if !ok {
			continue
		}
		if strings.TrimSpace(string(wm)) != strings.TrimSpace(string(m.Watermark(source))) {
			changed[source] = wm
		}
	}

	if len(changed) > 0 {
		if err := s.writeBack(ctx, logger, m, changed); err != nil {
			act.Degraded = true
			span.SetStatus(codes.Error, "watermark write-back degraded")
			logger.ErrorContext(ctx, "Watermarks not persisted", attr.Error(err))
		}
	}

	if err := s.sleep(ctx, s.cfg.UserDelay); err != nil {
		logger.DebugContext(ctx, "Pacing interrupted", attr.Error(err))
	}

	span.SetAttributes(
		attribute.Int("accepted", act.Accepted.Len()),
		attribute.Int("attempted", act.Attempted.Len()),
		attribute.Int("submissions", act.Submissions),
	)
	return *act
}

// fetch never fails: any error becomes an empty delta carrying the stored
// watermark.
func (s *SyncService) fetch(ctx context.Context, logger *slog.Logger, run *activitydomain.Run, f sources.Fetcher, m rosterdb.Member) activitydomain.Delta {
	source := f.Source()
	stored := m.Watermark(source)
	handle := strings.TrimSpace(m.Handle(source))
	if handle == "" {
		return activitydomain.NewDelta(source, stored)
	}

	ctx, span := s.tracer.Start(ctx, "Fetch", trace.WithAttributes(
		attribute.String("source", string(source)),
		attribute.String("handle", handle),
	))
	defer span.End()

	delta, err := f.Fetch(ctx, run, handle, stored)
	if err != nil {
		outcome := OutcomeError
		if errors.Is(err, sources.ErrNoSubmissions) {
			outcome = OutcomeEmpty
			logger.DebugContext(ctx, "No submissions listed", attr.Source(source), attr.Handle(handle))
		} else {
			span.RecordError(err)
			logger.WarnContext(ctx, "Fetch failed, keeping stored watermark",
				attr.Source(source),
				attr.Handle(handle),
				attr.String("watermark", string(stored)),
				attr.Error(err),
			)
		}
		s.metrics.RecordFetch(ctx, string(source), outcome)
		return activitydomain.NewDelta(source, stored)
	}

	outcome := OutcomeOK
	if stored.IsBootstrap() {
		outcome = OutcomeBootstrap
	}
	s.metrics.RecordFetch(ctx, string(source), outcome)
	s.metrics.RecordSubmissions(ctx, string(source), delta.Submissions)

	logger.DebugContext(ctx, "Fetched",
		attr.Source(source),
		attr.String("outcome", outcome),
		attr.Int("accepted", delta.Accepted.Len()),
		attr.Int("attempted", delta.Attempted.Len()),
		attr.Int("submissions", delta.Submissions),
		attr.String("watermark", string(delta.Watermark)),
	)
	return delta
}

// writeBack persists changed watermarks with a bounded constant backoff. Cells
// already written are not rewritten on retry.
func (s *SyncService) writeBack(ctx context.Context, logger *slog.Logger, m rosterdb.Member, changed map[activitydomain.Source]activitydomain.Watermark) error {
	pending := make(map[activitydomain.Source]activitydomain.Watermark, len(changed))
	for k, v := range changed {
		pending[k] = v
	}

	attempt := 0
	op := func() error {
		attempt++
		for _, source := range activitydomain.Sources {
			wm, ok := pending[source]
			if !ok {
				continue
			}
			if err := s.store.UpdateWatermark(ctx, m.Row, source, wm); err != nil {
				s.metrics.RecordWriteBack(ctx, OutcomeRetry)
				logger.WarnContext(ctx, "Watermark write failed",
					attr.Source(source),
					attr.Int("attempt", attempt),
					attr.Error(err),
				)
				return err
			}
			delete(pending, source)
		}
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(s.cfg.WriteBackoff), uint64(s.cfg.WriteMaxAttempts-1)),
		ctx,
	)
	if err := backoff.Retry(op, policy); err != nil {
		s.metrics.RecordWriteBack(ctx, OutcomeDegraded)
		return fmt.Errorf("write-back gave up after %d attempts: %w", attempt, err)
	}
	s.metrics.RecordWriteBack(ctx, OutcomeOK)
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// operationFunc is the signature of a wrapped service operation.
type operationFunc[T any] func(ctx context.Context) (T, error)

// withTelemetry wraps a service operation with tracing, metrics, and panic recovery.
func withTelemetry[T any](
	s *SyncService,
	ctx context.Context,
	operationName string,
	identifier string,
	op operationFunc[T],
) (result T, err error) {
	var span trace.Span
	if s.tracer != nil {
		ctx, span = s.tracer.Start(ctx, operationName, trace.WithAttributes(
			attribute.String("operation", operationName),
			attribute.String("identifier", identifier),
		))
	} else {
		span = trace.SpanFromContext(ctx)
	}
	defer span.End()

	if s.metrics != nil {
		s.metrics.RecordOperationAttempt(ctx, operationName, serviceName)
	}

	startTime := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.RecordOperationDuration(ctx, operationName, serviceName, time.Since(startTime))
		}
	}()

	s.logger.InfoContext(ctx, "Operation triggered", attr.String("operation", operationName), attr.String("identifier", identifier))

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s: %v", operationName, r)
			s.logger.ErrorContext(ctx, "Critical panic recovered",
				attr.String("identifier", identifier),
				attr.Error(err),
			)
			if s.metrics != nil {
				s.metrics.RecordOperationFailure(ctx, operationName, serviceName)
			}
			span.RecordError(err)
			var zero T
			result = zero
		}
	}()

	result, err = op(ctx)
	if err != nil {
		wrappedErr := fmt.Errorf("%s: %w", operationName, err)
		s.logger.ErrorContext(ctx, "Operation failed with error",
			attr.String("operation", operationName),
			attr.String("identifier", identifier),
			attr.Error(wrappedErr),
		)
		if s.metrics != nil {
			s.metrics.RecordOperationFailure(ctx, operationName, serviceName)
		}
		span.RecordError(wrappedErr)
		return result, wrappedErr
	}

	s.logger.InfoContext(ctx, "Operation completed successfully",
		attr.String("operation", operationName),
		attr.String("identifier", identifier),
	)
	if s.metrics != nil {
		s.metrics.RecordOperationSuccess(ctx, operationName, serviceName)
	}
	return result, nil
}
