package rostermigrations

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		fmt.Println("Creating roster_members table...")

		if _, err := db.ExecContext(ctx, `
			CREATE TABLE IF NOT EXISTS roster_members (
				id BIGSERIAL PRIMARY KEY,
				name TEXT NOT NULL,
				reg_num TEXT NOT NULL DEFAULT '',
				cf_handle TEXT NOT NULL DEFAULT '',
				atcoder_handle TEXT NOT NULL DEFAULT '',
				vjudge_handle TEXT NOT NULL DEFAULT '',
				codechef_handle TEXT NOT NULL DEFAULT '',
				last_cf_id TEXT NOT NULL DEFAULT '',
				last_at_id TEXT NOT NULL DEFAULT '',
				last_vj_id TEXT NOT NULL DEFAULT '',
				last_chef_id TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);
		`); err != nil {
			return fmt.Errorf("failed to create roster_members table: %w", err)
		}
		return nil
	}, func(ctx context.Context, db *bun.DB) error {
		fmt.Println("Dropping roster_members table...")

		if _, err := db.ExecContext(ctx, `DROP TABLE IF EXISTS roster_members;`); err != nil {
			return fmt.Errorf("failed to drop roster_members table: %w", err)
		}
		return nil
	})
}
