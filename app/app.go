package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	activityservice "github.com/Black-And-White-Club/cp-digest-bot/app/modules/activity/application"
	activitydomain "github.com/Black-And-White-Club/cp-digest-bot/app/modules/activity/domain"
	"github.com/Black-And-White-Club/cp-digest-bot/app/modules/activity/infrastructure/sources"
	reportservice "github.com/Black-And-White-Club/cp-digest-bot/app/modules/report/application"
	"github.com/Black-And-White-Club/cp-digest-bot/app/modules/report/infrastructure/events"
	"github.com/Black-And-White-Club/cp-digest-bot/app/modules/report/infrastructure/telegram"
	rosterdb "github.com/Black-And-White-Club/cp-digest-bot/app/modules/roster/infrastructure/repositories"
	"github.com/Black-And-White-Club/cp-digest-bot/config"
	"github.com/Black-And-White-Club/cp-digest-bot/internal/db/bundb"
	"github.com/Black-And-White-Club/cp-digest-bot/internal/observability"
	"github.com/Black-And-White-Club/cp-digest-bot/internal/observability/attr"
	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Options tweak how NewApp wires delivery.
type Options struct {
	// DryRun prints the report to Output instead of sending it.
	DryRun bool
	Output io.Writer

	TracerProvider trace.TracerProvider
}

// App holds the wired services of one process.
type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	Metrics *observability.Metrics

	Store     rosterdb.Store
	Sync      *activityservice.SyncService
	Renderer  *reportservice.Renderer
	Publisher *reportservice.Publisher
	RunEvents *events.RunPublisher

	db  *bun.DB
	now func() time.Time
}

// NewApp validates cfg and wires every module. Configuration errors and an
// unreachable roster database abort here, before any fetch.
func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics, opts Options) (*App, error) {
	if err := cfg.Validate(!opts.DryRun); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observability.NewMetrics()
	}
	tp := opts.TracerProvider
	if tp == nil {
		tp = noop.NewTracerProvider()
	}

	a := &App{Config: cfg, Logger: logger, Metrics: metrics, now: time.Now}

	if err := a.initStore(ctx); err != nil {
		return nil, err
	}

	client := sources.NewClient(cfg.Sources.HTTPTimeout, cfg.Sources.UserAgent)
	a.Sync = activityservice.NewSyncService(
		a.Store,
		sources.NewFetchers(client, cfg.Sources, logger),
		logger,
		metrics,
		tp.Tracer("activity"),
		cfg.Sync,
	)
	a.Renderer = reportservice.NewRenderer(
		cfg.Report,
		cfg.Sources.VJudge.BaseURL,
		sources.NewVJudgeTitleScraper(client, cfg.Sources.VJudge, logger),
		logger,
	)

	sink, err := a.newSink(opts)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Publisher = reportservice.NewPublisher(sink, logger, metrics)

	if cfg.NATS.URL != "" {
		pub, err := events.NewNATSPublisher(cfg.NATS, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.RunEvents = events.NewRunPublisher(pub, cfg.NATS.Topic, logger)
	}

	logger.Info("Application initialized",
		attr.String("roster_backend", cfg.Roster.Backend),
		attr.Bool("dry_run", opts.DryRun),
		attr.Bool("run_events", a.RunEvents != nil),
	)
	return a, nil
}

func (a *App) initStore(ctx context.Context) error {
	cfg := a.Config
	switch cfg.Roster.Backend {
	case config.RosterSheets:
		store, err := rosterdb.NewSheetsStore(ctx, cfg.Roster, a.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize sheets roster: %w", err)
		}
		a.Store = store
	case config.RosterXLSX:
		a.Store = rosterdb.NewXLSXStore(cfg.Roster.XLSXPath, cfg.Roster.SheetName)
	case config.RosterPostgres:
		db, err := bundb.Open(ctx, cfg.Postgres.DSN)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		a.db = db
		a.Store = rosterdb.NewPostgresStore(db)
	default:
		return fmt.Errorf("unknown roster backend %q", cfg.Roster.Backend)
	}
	return nil
}

func (a *App) newSink(opts Options) (reportservice.Sink, error) {
	if opts.DryRun {
		out := opts.Output
		if out == nil {
			out = os.Stdout
		}
		return reportservice.NewWriterSink(out), nil
	}
	sink, err := telegram.NewSink(a.Config.Telegram, a.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telegram sink: %w", err)
	}
	return sink, nil
}

// RunOnce syncs the roster, delivers the report and announces the run. Only a
// failed sync is returned; delivery and event failures are logged.
func (a *App) RunOnce(ctx context.Context) error {
	run := activitydomain.NewRun(a.now())
	logger := a.Logger.With(attr.RunID(run.ID))
	logger.InfoContext(ctx, "Digest run started")

	results, err := a.Sync.Sync(ctx, run)
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}

	messages := a.Renderer.Render(ctx, run, results)
	delivered := a.Publisher.Publish(ctx, messages)

	if a.RunEvents != nil {
		ev := events.NewRunCompleted(run, a.now(), results, len(messages), delivered)
		if err := a.RunEvents.PublishRunCompleted(ctx, ev); err != nil {
			logger.WarnContext(ctx, "Run event not published", attr.Error(err))
		}
	}

	logger.InfoContext(ctx, "Digest run finished",
		attr.Int("members", len(results)),
		attr.Int("messages", len(messages)),
		attr.Int("delivered", delivered),
		attr.Duration("duration", a.now().Sub(run.StartedAt)),
	)
	return nil
}

// HealthCheck reports whether the roster database is reachable. Sheets and
// XLSX rosters have nothing to ping.
func (a *App) HealthCheck(ctx context.Context) error {
	if a.db == nil {
		return nil
	}
	return a.db.PingContext(ctx)
}

// DB returns the Postgres handle, or nil for other roster backends.
func (a *App) DB() *bun.DB { return a.db }

// Close releases the event publisher and database.
func (a *App) Close() error {
	var errs []error
	if a.RunEvents != nil {
		errs = append(errs, a.RunEvents.Close())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	return errors.Join(errs...)
}
