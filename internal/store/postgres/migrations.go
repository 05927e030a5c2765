package postgres

import (
	"context"
	"embed"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// runMigrations executes all pending database migrations in order. Applied
// versions are tracked in the schema_migrations table; each migration runs
// inside its own transaction together with the version bookkeeping.
func runMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	log.Info().Msg("Running database migrations")

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("failed to read migrations directory: %w", err)
	}

	// Filenames carry the version prefix, e.g. "1_initial_schema.sql"
	type migration struct {
		version int
		name    string
		content string
	}

	var migrations []migration
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		parts := strings.SplitN(entry.Name(), "_", 2)
		if len(parts) < 2 {
			log.Warn().Str("file", entry.Name()).Msg("Skipping migration file with invalid name format")
			continue
		}

		version, err := strconv.Atoi(parts[0])
		if err != nil {
			log.Warn().Str("file", entry.Name()).Err(err).Msg("Skipping migration file with invalid version number")
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", entry.Name(), err)
		}

		migrations = append(migrations, migration{
			version: version,
			name:    entry.Name(),
			content: string(content),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].version < migrations[j].version
	})

	for _, m := range migrations {
		if err := executeMigration(ctx, pool, m.version, m.name, m.content); err != nil {
			return fmt.Errorf("migration %s failed: %w", m.name, err)
		}
	}

	log.Info().Int("count", len(migrations)).Msg("Database migrations up to date")
	return nil
}

// executeMigration runs a single migration if it hasn't been applied yet.
func executeMigration(ctx context.Context, pool *pgxpool.Pool, version int, name string, content string) error {
	// The existence check runs outside the transaction; on a fresh database
	// the schema_migrations table itself doesn't exist yet.
	var applied bool
	err := pool.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM schema_migrations WHERE version = $1
		)
	`, version).Scan(&applied)

	if err != nil {
		if strings.Contains(err.Error(), "does not exist") {
			applied = false
		} else {
			return fmt.Errorf("failed to check migration status: %w", err)
		}
	}

	if applied {
		log.Debug().Int("version", version).Str("name", name).Msg("Migration already applied, skipping")
		return nil
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback is safe to call after commit

	log.Info().Int("version", version).Str("name", name).Msg("Applying migration")
	if _, err := tx.Exec(ctx, content); err != nil {
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO schema_migrations (version, name) VALUES ($1, $2)
	`, version, name); err != nil {
		return fmt.Errorf("failed to record migration version: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit migration: %w", err)
	}

	log.Info().Int("version", version).Str("name", name).Msg("Migration applied")
	return nil
}
