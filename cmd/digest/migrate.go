package main

import (
	"fmt"
	"strings"

	rosterdb "github.com/Black-And-White-Club/cp-digest-bot/app/modules/roster/infrastructure/repositories"
	rostermigrations "github.com/Black-And-White-Club/cp-digest-bot/app/modules/roster/infrastructure/repositories/migrations"
	schedulerqueue "github.com/Black-And-White-Club/cp-digest-bot/app/modules/scheduler/infrastructure/queue"
	"github.com/Black-And-White-Club/cp-digest-bot/config"
	"github.com/Black-And-White-Club/cp-digest-bot/internal/db/bundb"
	"github.com/Black-And-White-Club/cp-digest-bot/internal/observability/attr"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
	"github.com/urfave/cli/v2"
)

// withMigrators opens the roster database and hands the module migrators to fn.
func withMigrators(c *cli.Context, fn func(rt *process, db *bun.DB, migrators map[string]*migrate.Migrator) error) error {
	rt, err := setup(c)
	if err != nil {
		return err
	}
	if rt.cfg.Postgres.DSN == "" {
		return fmt.Errorf("%w: postgres.dsn (DATABASE_URL)", config.ErrMissingSetting)
	}

	db, err := bundb.Open(c.Context, rt.cfg.Postgres.DSN)
	if err != nil {
		return err
	}
	defer db.Close()

	migrators := map[string]*migrate.Migrator{
		"roster": migrate.NewMigrator(db, rostermigrations.Migrations),
	}
	return fn(rt, db, migrators)
}

func newMigrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "database migrations",
		Subcommands: []*cli.Command{
			{
				Name:  "init",
				Usage: "create migration tables",
				Action: func(c *cli.Context) error {
					return withMigrators(c, func(_ *process, _ *bun.DB, migrators map[string]*migrate.Migrator) error {
						for moduleName, migrator := range migrators {
							fmt.Printf("Initializing migrations for module: %s\n", moduleName)
							if err := migrator.Init(c.Context); err != nil {
								return fmt.Errorf("failed to initialize migrations for module %s: %w", moduleName, err)
							}
						}
						return nil
					})
				},
			},
			{
				Name:  "up",
				Usage: "migrate database",
				Action: func(c *cli.Context) error {
					return withMigrators(c, func(_ *process, _ *bun.DB, migrators map[string]*migrate.Migrator) error {
						for moduleName, migrator := range migrators {
							group, err := migrator.Migrate(c.Context)
							if err != nil {
								return err
							}
							if group.IsZero() {
								fmt.Printf("No new migrations to run for module: %s\n", moduleName)
							} else {
								fmt.Printf("Migrated module: %s to %s\n", moduleName, group)
							}
						}
						return nil
					})
				},
			},
			{
				Name:  "down",
				Usage: "rollback the last migration group",
				Action: func(c *cli.Context) error {
					return withMigrators(c, func(_ *process, _ *bun.DB, migrators map[string]*migrate.Migrator) error {
						for moduleName, migrator := range migrators {
							group, err := migrator.Rollback(c.Context)
							if err != nil {
								return err
							}
							if group.IsZero() {
								fmt.Printf("No groups to roll back for module: %s\n", moduleName)
							} else {
								fmt.Printf("Rolled back module: %s to %s\n", moduleName, group)
							}
						}
						return nil
					})
				},
			},
			{
				Name:  "status",
				Usage: "print migrations status",
				Action: func(c *cli.Context) error {
					return withMigrators(c, func(_ *process, _ *bun.DB, migrators map[string]*migrate.Migrator) error {
						for moduleName, migrator := range migrators {
							ms, err := migrator.MigrationsWithStatus(c.Context)
							if err != nil {
								return err
							}
							fmt.Printf("Migrations for module: %s\n", moduleName)
							fmt.Printf("  Applied: %s\n", ms.Applied())
							fmt.Printf("  Unapplied: %s\n", ms.Unapplied())
						}
						return nil
					})
				},
			},
			{
				Name:      "create_go",
				Usage:     "create Go migration",
				ArgsUsage: "<module> <name...>",
				Action: func(c *cli.Context) error {
					return withMigrators(c, func(_ *process, _ *bun.DB, migrators map[string]*migrate.Migrator) error {
						moduleName := c.Args().First()
						migrator, ok := migrators[moduleName]
						if !ok {
							return fmt.Errorf("invalid module name: %s", moduleName)
						}
						mf, err := migrator.CreateGoMigration(c.Context, strings.Join(c.Args().Tail(), "_"))
						if err != nil {
							return err
						}
						fmt.Printf("Created migration for module %s: %s (%s)\n", moduleName, mf.Name, mf.Path)
						return nil
					})
				},
			},
			{
				Name:      "river",
				Usage:     "apply or roll back the job queue schema",
				ArgsUsage: "up|down",
				Action: func(c *cli.Context) error {
					rt, err := setup(c)
					if err != nil {
						return err
					}
					var direction rivermigrate.Direction
					switch c.Args().First() {
					case "", "up":
						direction = rivermigrate.DirectionUp
					case "down":
						direction = rivermigrate.DirectionDown
					default:
						return fmt.Errorf("unknown direction %q", c.Args().First())
					}
					return schedulerqueue.Migrate(c.Context, rt.cfg.Postgres.DSN, direction, rt.logger)
				},
			},
		},
	}
}

func newRosterCommand() *cli.Command {
	return &cli.Command{
		Name:  "roster",
		Usage: "roster maintenance",
		Subcommands: []*cli.Command{
			{
				Name:      "import",
				Usage:     "copy an XLSX roster into Postgres",
				ArgsUsage: "<file.xlsx>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "sheet", Value: "Sheet1", Usage: "worksheet holding the roster"},
				},
				Action: func(c *cli.Context) error {
					path := c.Args().First()
					if path == "" {
						return fmt.Errorf("missing XLSX path")
					}
					return withMigrators(c, func(rt *process, db *bun.DB, _ map[string]*migrate.Migrator) error {
						members, err := rosterdb.NewXLSXStore(path, c.String("sheet")).Load(c.Context)
						if err != nil {
							return err
						}
						n, err := rosterdb.NewPostgresStore(db).Import(c.Context, members)
						if err != nil {
							return err
						}
						rt.logger.Info("Roster imported", attr.Int("members", n), attr.String("file", path))
						return nil
					})
				},
			},
		},
	}
}
