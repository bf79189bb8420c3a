package store

import (
	"context"
	"embed"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// DefaultTablePrefix is used when Config.TablePrefix is empty.
const DefaultTablePrefix = ""

// Migrate applies the reserved schema (streams, messages, consumer_groups,
// offsets, scheduled_messages, workers) to the database, substituting
// prefix for every {{prefix}} placeholder in the embedded migration files.
// It is idempotent: every statement uses IF NOT EXISTS.
func Migrate(ctx context.Context, pool *pgxpool.Pool, prefix string) error {
	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return errors.WithMessage(err, "reading embedded migrations")
	}

	for _, entry := range entries {
		raw, err := migrationFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return errors.WithMessagef(err, "reading migration %s", entry.Name())
		}
		stmt := strings.ReplaceAll(string(raw), "{{prefix}}", prefix)
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return errors.WithMessagef(err, "applying migration %s", entry.Name())
		}
	}
	return nil
}
