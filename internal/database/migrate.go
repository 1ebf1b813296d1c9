package database

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// migration is one numbered schema change with its up and down bodies
type migration struct {
	Version string
	Name    string
	Up      string
	Down    string
}

// MigrationStatus reports whether a known migration has been applied
type MigrationStatus struct {
	Version string
	Name    string
	Applied bool
}

// Migrator applies the embedded catalog schema
type Migrator struct {
	pool       *pgxpool.Pool
	migrations []migration
	loadErr    error
}

// NewMigrator creates a migrator over the embedded migrations
func NewMigrator(pool *pgxpool.Pool) *Migrator {
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return &Migrator{pool: pool, loadErr: err}
	}
	migrations, err := loadMigrations(sub)
	return &Migrator{pool: pool, migrations: migrations, loadErr: err}
}

// loadMigrations pairs NNN_name.up.sql with NNN_name.down.sql, ordered by version.
// Every version needs an up file; a missing down file is an error too.
func loadMigrations(fsys fs.FS) ([]migration, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	byVersion := make(map[string]*migration)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}

		var direction string
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			direction = "up"
		case strings.HasSuffix(name, ".down.sql"):
			direction = "down"
		default:
			return nil, fmt.Errorf("migration %s: expected .up.sql or .down.sql", name)
		}

		base := strings.TrimSuffix(name, "."+direction+".sql")
		version, label, ok := strings.Cut(base, "_")
		if !ok || version == "" {
			return nil, fmt.Errorf("migration %s: expected NNN_name prefix", name)
		}

		body, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("failed to read migration file %s: %w", name, err)
		}

		m, ok := byVersion[version]
		if !ok {
			m = &migration{Version: version, Name: label}
			byVersion[version] = m
		}
		if direction == "up" {
			m.Up = string(body)
		} else {
			m.Down = string(body)
		}
	}

	migrations := make([]migration, 0, len(byVersion))
	for _, m := range byVersion {
		if m.Up == "" {
			return nil, fmt.Errorf("migration %s has no up file", m.Version)
		}
		if m.Down == "" {
			return nil, fmt.Errorf("migration %s has no down file", m.Version)
		}
		migrations = append(migrations, *m)
	}
	sort.Slice(migrations, func(i, j int) bool { return migrations[i].Version < migrations[j].Version })
	return migrations, nil
}

// Up applies every pending migration in version order
func (m *Migrator) Up(ctx context.Context) error {
	if m.loadErr != nil {
		return m.loadErr
	}
	applied, err := m.appliedSet(ctx)
	if err != nil {
		return err
	}

	count := 0
	for _, mig := range m.migrations {
		if applied[mig.Version] {
			log.Debug().Str("version", mig.Version).Msg("migration already applied, skipping")
			continue
		}

		log.Info().Str("version", mig.Version).Str("name", mig.Name).Msg("applying migration")
		err := pgx.BeginFunc(ctx, m.pool, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, mig.Up); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", mig.Version)
			return err
		})
		if err != nil {
			return fmt.Errorf("failed to apply migration %s_%s: %w", mig.Version, mig.Name, err)
		}
		count++
	}

	log.Info().Int("applied", count).Int("known", len(m.migrations)).Msg("migrations up to date")
	return nil
}

// Down rolls back the most recently applied migration
func (m *Migrator) Down(ctx context.Context) error {
	if m.loadErr != nil {
		return m.loadErr
	}
	if err := m.ensureTable(ctx); err != nil {
		return err
	}

	var version string
	err := m.pool.QueryRow(ctx, "SELECT version FROM schema_migrations ORDER BY version DESC LIMIT 1").Scan(&version)
	if err != nil {
		return fmt.Errorf("failed to get last migration: %w", err)
	}

	mig, ok := m.find(version)
	if !ok {
		return fmt.Errorf("no migration files for applied version %s", version)
	}

	log.Info().Str("version", mig.Version).Str("name", mig.Name).Msg("rolling back migration")
	err = pgx.BeginFunc(ctx, m.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, mig.Down); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, "DELETE FROM schema_migrations WHERE version = $1", mig.Version)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to roll back migration %s_%s: %w", mig.Version, mig.Name, err)
	}
	return nil
}

// Status lists every known migration and whether it has been applied
func (m *Migrator) Status(ctx context.Context) ([]MigrationStatus, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	applied, err := m.appliedSet(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]MigrationStatus, 0, len(m.migrations))
	for _, mig := range m.migrations {
		out = append(out, MigrationStatus{Version: mig.Version, Name: mig.Name, Applied: applied[mig.Version]})
	}
	return out, nil
}

func (m *Migrator) find(version string) (migration, bool) {
	for _, mig := range m.migrations {
		if mig.Version == version {
			return mig, true
		}
	}
	return migration{}, false
}

func (m *Migrator) ensureTable(ctx context.Context) error {
	_, err := m.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version VARCHAR(255) PRIMARY KEY,
			applied_at TIMESTAMPTZ DEFAULT NOW() NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}
	return nil
}

func (m *Migrator) appliedSet(ctx context.Context) (map[string]bool, error) {
	if err := m.ensureTable(ctx); err != nil {
		return nil, err
	}

	rows, err := m.pool.Query(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to query migrations: %w", err)
	}
	versions, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations: %w", err)
	}

	applied := make(map[string]bool, len(versions))
	for _, v := range versions {
		applied[v] = true
	}
	return applied, nil
}
