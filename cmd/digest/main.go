package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Black-And-White-Club/cp-digest-bot/app"
	schedulerqueue "github.com/Black-And-White-Club/cp-digest-bot/app/modules/scheduler/infrastructure/queue"
	"github.com/Black-And-White-Club/cp-digest-bot/config"
	"github.com/Black-And-White-Club/cp-digest-bot/internal/observability"
	"github.com/Black-And-White-Club/cp-digest-bot/internal/observability/attr"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
)

func main() {
	// A missing .env is fine; the environment may already be populated.
	_ = godotenv.Load()

	cliApp := &cli.App{
		Name:  "digest",
		Usage: "daily competitive programming digest bot",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "config.yaml",
				Usage:   "path to the configuration file",
				EnvVars: []string{"CONFIG_PATH"},
			},
		},
		Commands: []*cli.Command{
			newRunCommand(),
			newServeCommand(),
			newMigrateCommand(),
			newRosterCommand(),
		},
	}

	if err := cliApp.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// process is the process-wide setup shared by every command.
type process struct {
	cfg      *config.Config
	logger   *slog.Logger
	metrics  *observability.Metrics
	shutdown func(context.Context) error
}

func setup(c *cli.Context) (*process, error) {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return nil, err
	}
	logger := observability.NewLogger(cfg.Observability.LogLevel, cfg.Observability.Environment, os.Stdout)
	slog.SetDefault(logger)
	return &process{cfg: cfg, logger: logger, metrics: observability.NewMetrics()}, nil
}

func (rt *process) newApp(ctx context.Context, dryRun bool) (*app.App, error) {
	tp, shutdown, err := observability.NewTracerProvider(ctx, observability.TracingConfig{
		Endpoint:    rt.cfg.Observability.OTLPEndpoint,
		Insecure:    rt.cfg.Observability.OTLPInsecure,
		SampleRate:  rt.cfg.Observability.TraceSampleRate,
		Environment: rt.cfg.Observability.Environment,
	})
	if err != nil {
		return nil, err
	}
	rt.shutdown = shutdown

	return app.NewApp(ctx, rt.cfg, rt.logger, rt.metrics, app.Options{
		DryRun:         dryRun,
		Output:         os.Stdout,
		TracerProvider: tp,
	})
}

func (rt *process) close(ctx context.Context) {
	if rt.shutdown == nil {
		return
	}
	if err := rt.shutdown(ctx); err != nil {
		rt.logger.Warn("Tracer shutdown failed", attr.Error(err))
	}
}

func newRunCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "sync the roster once and deliver the report",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "dry-run", Usage: "print the report instead of sending it"},
		},
		Action: func(c *cli.Context) error {
			rt, err := setup(c)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := rt.newApp(ctx, c.Bool("dry-run"))
			if err != nil {
				return err
			}
			defer a.Close()
			defer rt.close(context.Background())

			runErr := a.RunOnce(ctx)

			pushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := rt.metrics.Push(pushCtx, rt.cfg.Observability.PushgatewayURL); err != nil {
				rt.logger.Warn("Metrics push failed", attr.Error(err))
			}
			return runErr
		},
	}
}

func newServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the digest on a schedule and expose metrics",
		Action: func(c *cli.Context) error {
			rt, err := setup(c)
			if err != nil {
				return err
			}
			if rt.cfg.Postgres.DSN == "" {
				return fmt.Errorf("%w: postgres.dsn (DATABASE_URL) is required by the scheduler", config.ErrMissingSetting)
			}

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := rt.newApp(ctx, false)
			if err != nil {
				return err
			}
			defer a.Close()
			defer rt.close(context.Background())

			queue, err := schedulerqueue.NewService(ctx, rt.cfg.Postgres.DSN, rt.cfg.Schedule, a, rt.logger, rt.metrics)
			if err != nil {
				return err
			}
			if err := queue.Start(ctx); err != nil {
				return err
			}

			var srv *http.Server
			if addr := rt.cfg.Observability.MetricsAddress; addr != "" {
				srv = observability.NewServer(addr, rt.metrics, func(ctx context.Context) error {
					return errors.Join(a.HealthCheck(ctx), queue.HealthCheck(ctx))
				})
				go func() {
					rt.logger.Info("Metrics server listening", attr.String("address", addr))
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						rt.logger.Error("Metrics server failed", attr.Error(err))
						stop()
					}
				}()
			}

			<-ctx.Done()
			rt.logger.Info("Shutting down")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if srv != nil {
				_ = srv.Shutdown(shutdownCtx)
			}
			return queue.Stop(shutdownCtx)
		},
	}
}
