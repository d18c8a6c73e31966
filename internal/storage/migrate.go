package storage

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// EnvProduction is the environment name that blocks destructive
// operations.
const EnvProduction = "production"

// ErrProductionReset is returned when Reset is called while the
// environment indicates production.
var ErrProductionReset = errors.New("refusing to reset database in production environment")

type migrationFile struct {
	version     int
	description string
	name        string
}

// Migrate ensures the ledger table exists and applies every catalog
// entry not yet recorded in it, in ascending version order. Each
// migration's DDL and its ledger row are committed in one transaction,
// so a partially applied migration never appears applied. Re-invocation
// after full success is a no-op; after a mid-run failure it resumes from
// the first unrecorded version. Not safe for concurrent runners; invoke
// from at most one process at a time.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS migrations (
		id          INTEGER PRIMARY KEY,
		description TEXT NOT NULL,
		applied_at  TEXT NOT NULL
	)`); err != nil {
		return fmt.Errorf("creating migrations ledger: %w", err)
	}

	catalog, err := loadCatalog()
	if err != nil {
		return err
	}

	for _, m := range catalog {
		var applied int
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM migrations WHERE id = ?", m.version).Scan(&applied); err != nil {
			return fmt.Errorf("checking migration %d: %w", m.version, err)
		}
		if applied > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + m.name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", m.name, err)
		}

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", m.version, err)
		}

		if _, err := tx.ExecContext(ctx, string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", m.version, err)
		}

		if _, err := tx.ExecContext(ctx, "INSERT INTO migrations (id, description, applied_at) VALUES (?, ?, ?)",
			m.version, m.description, formatTime(time.Now())); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", m.version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", m.version, err)
		}
	}

	return nil
}

// loadCatalog reads the embedded migration files and orders them by
// parsed version number, not by filename.
func loadCatalog() ([]migrationFile, error) {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("reading migrations directory: %w", err)
	}

	var catalog []migrationFile
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		version, description, err := parseMigrationName(entry.Name())
		if err != nil {
			return nil, err
		}
		catalog = append(catalog, migrationFile{version: version, description: description, name: entry.Name()})
	}

	sort.Slice(catalog, func(i, j int) bool { return catalog[i].version < catalog[j].version })
	return catalog, nil
}

// parseMigrationName splits "007_create_feedback.sql" into version 7 and
// description "create feedback".
func parseMigrationName(filename string) (int, string, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, "", fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	rest := strings.TrimSuffix(filename, ".sql")
	if i := strings.Index(rest, "_"); i >= 0 {
		rest = rest[i+1:]
	}
	return version, strings.ReplaceAll(rest, "_", " "), nil
}

// AppliedMigrations returns the ledger contents in ascending version order.
func (s *Store) AppliedMigrations(ctx context.Context) ([]Migration, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, description, applied_at FROM migrations ORDER BY id ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var migrations []Migration
	for rows.Next() {
		var m Migration
		var appliedAt string
		if err := rows.Scan(&m.Version, &m.Description, &appliedAt); err != nil {
			return nil, err
		}
		if m.AppliedAt, err = parseTime(appliedAt); err != nil {
			return nil, err
		}
		migrations = append(migrations, m)
	}
	return migrations, rows.Err()
}

// knownTables are everything Reset drops, ledger included.
var knownTables = []string{"feedback", "summary_cache", "agent_log", "migrations"}

// Reset drops every known table and re-runs all migrations from
// scratch. It refuses to run when env names the production environment;
// the guard is explicit, not a convention.
func (s *Store) Reset(ctx context.Context, env string) error {
	if env == EnvProduction {
		return ErrProductionReset
	}

	for _, table := range knownTables {
		if _, err := s.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
			return fmt.Errorf("dropping table %s: %w", table, err)
		}
	}

	return s.Migrate(ctx)
}

// expectedSchema is derived from the repository mappings so Verify stays
// in lockstep with the columns the repositories actually touch.
func expectedSchema() map[string][]string {
	return map[string][]string{
		feedbackMapping.Table: feedbackMapping.Columns,
		summaryMapping.Table:  summaryMapping.Columns,
		agentLogMapping.Table: agentLogMapping.Columns,
		"migrations":          {"id", "description", "applied_at"},
	}
}

// VerifySchema checks that every table and column the repositories
// depend on exists. It reports what is missing rather than failing
// hard; the caller decides whether to abort. The error return is for
// query failures only.
func (s *Store) VerifySchema(ctx context.Context) ([]string, error) {
	var missing []string

	for table, columns := range expectedSchema() {
		rows, err := s.db.QueryContext(ctx, "SELECT name FROM pragma_table_info(?)", table)
		if err != nil {
			return nil, fmt.Errorf("inspecting table %s: %w", table, err)
		}

		present := make(map[string]bool)
		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				rows.Close()
				return nil, err
			}
			present[name] = true
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()

		if len(present) == 0 {
			missing = append(missing, "table "+table)
			continue
		}
		for _, col := range columns {
			if !present[col] {
				missing = append(missing, table+"."+col)
			}
		}
	}

	sort.Strings(missing)
	return missing, nil
}
