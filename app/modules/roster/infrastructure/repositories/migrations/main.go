package rostermigrations

import "github.com/uptrace/bun/migrate"

var Migrations = migrate.NewMigrations()

func init() {
	// Derive migration names from the registering file names.
	if err := Migrations.DiscoverCaller(); err != nil {
		panic(err)
	}
}
