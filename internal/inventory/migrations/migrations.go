// Package migrations applies the inventory schema at startup.
package migrations

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/medflow/pharmacy-inventory/pkg/database"
	"github.com/medflow/pharmacy-inventory/pkg/logger"
)

//go:embed sql/*.sql
var files embed.FS

// advisory lock key shared by every replica running migrations
const migrationLockKey = 72_140_001

// Migration is one embedded schema file
type Migration struct {
	Version string
	SQL     string
}

// All returns the embedded migrations in version order
func All() ([]Migration, error) {
	entries, err := fs.ReadDir(files, "sql")
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded migrations: %w", err)
	}

	out := make([]Migration, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		body, err := files.ReadFile("sql/" + e.Name())
		if err != nil {
			return nil, fmt.Errorf("failed to read migration %s: %w", e.Name(), err)
		}
		out = append(out, Migration{
			Version: strings.TrimSuffix(e.Name(), ".sql"),
			SQL:     string(body),
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// Run applies every migration not yet recorded in schema_migrations. Pending
// migrations run in one transaction under an advisory lock, so a failure
// leaves the schema as it was.
func Run(ctx context.Context, db *database.DB, log *logger.Logger) error {
	migrations, err := All()
	if err != nil {
		return err
	}

	return db.InTx(ctx, func(ctx context.Context) error {
		if _, err := db.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, migrationLockKey); err != nil {
			return fmt.Errorf("failed to acquire migration lock: %w", err)
		}

		if _, err := db.ExecContext(ctx, `
			CREATE TABLE IF NOT EXISTS schema_migrations (
				version    VARCHAR(255) PRIMARY KEY,
				applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`); err != nil {
			return fmt.Errorf("failed to create schema_migrations: %w", err)
		}

		var applied []string
		if err := db.SelectContext(ctx, &applied, `SELECT version FROM schema_migrations`); err != nil {
			return fmt.Errorf("failed to read applied migrations: %w", err)
		}
		done := make(map[string]bool, len(applied))
		for _, v := range applied {
			done[v] = true
		}

		for _, m := range migrations {
			if done[m.Version] {
				continue
			}
			if _, err := db.ExecContext(ctx, m.SQL); err != nil {
				return fmt.Errorf("migration %s failed: %w", m.Version, err)
			}
			if _, err := db.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, m.Version); err != nil {
				return fmt.Errorf("failed to record migration %s: %w", m.Version, err)
			}
			log.Info().Str("version", m.Version).Msg("migration applied")
		}
		return nil
	})
}
