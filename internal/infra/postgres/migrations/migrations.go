package migrations

import (
	"context"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

// Migrations is the ordered set applied by the migrate command and at server start.
var Migrations = migrate.NewMigrations()

// sqlMigration runs embedded SQL up and down. Each migration file registers
// itself so bun derives the version from the file name.
func sqlMigration(up, down string) (migrate.MigrationFunc, migrate.MigrationFunc) {
	return func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, up)
			return err
		}, func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, down)
			return err
		}
}
