// Package bundb opens the Postgres connection used by the roster store and
// its migrations.
package bundb

import (
	"context"
	"database/sql"
	"fmt"

	rosterdb "github.com/Black-And-White-Club/cp-digest-bot/app/modules/roster/infrastructure/repositories"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

// Open connects to dsn, pings it and returns a bun.DB with the roster models
// registered.
func Open(ctx context.Context, dsn string) (*bun.DB, error) {
	sqldb, err := pgConn(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db := bun.NewDB(sqldb, pgdialect.New())
	db.RegisterModel((*rosterdb.MemberRecord)(nil))
	return db, nil
}

func pgConn(ctx context.Context, dsn string) (*sql.DB, error) {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))

	if err := sqldb.PingContext(ctx); err != nil {
		sqldb.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return sqldb, nil
}
