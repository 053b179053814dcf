// Package migrations embeds the SQL migrations for direct mode.
package migrations

import (
	"context"
	"embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Files holds every .sql file in this directory (order matters: 001, 002, ...).
//
//go:embed *.sql
var Files embed.FS

// Apply runs the migrations in lexical order. Each file is idempotent, so
// re-running on an initialized database is harmless.
func Apply(ctx context.Context, pool *pgxpool.Pool) error {
	entries, err := Files.ReadDir(".")
	if err != nil {
		return fmt.Errorf("migrations.Apply: %w", err)
	}
	for _, e := range entries {
		data, err := Files.ReadFile(e.Name())
		if err != nil {
			return fmt.Errorf("migrations.Apply read %s: %w", e.Name(), err)
		}
		if _, err := pool.Exec(ctx, string(data)); err != nil {
			return fmt.Errorf("migrations.Apply run %s: %w", e.Name(), err)
		}
	}
	return nil
}
