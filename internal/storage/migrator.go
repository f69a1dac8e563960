package storage

import (
	"database/sql"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Migrator applies the versioned schema. Every version is recorded in
// schema_migrations and runs at most once.
type Migrator struct {
	db         *sql.DB
	migrations []Migration
}

// Migration is one schema version.
type Migration struct {
	Version int
	Name    string
	UpSQL   string

	// DownSQL is recorded for operators; rollbacks are applied by hand.
	DownSQL string
}

// MigrationRecord is a row of schema_migrations.
type MigrationRecord struct {
	Version   int
	Name      string
	AppliedAt time.Time
}

const migrationsTableDDL = `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`

// NewMigrator prepares the bookkeeping table and loads the uplight schema.
func NewMigrator(db *sql.DB) (*Migrator, error) {
	if _, err := db.Exec(migrationsTableDDL); err != nil {
		return nil, fmt.Errorf("prepare schema_migrations: %w", err)
	}

	m := &Migrator{db: db}
	m.registerSchema()
	return m, nil
}

// registerSchema registers the schema of the check engine:
//   - monitors: probed targets and their resolved status
//   - maintenances: suppression windows
//   - check_results: append-only per-region probe history
//   - incidents: failure episodes, at most one open per (monitor, cause)
//   - heartbeats / heartbeat_incidents: dead man's switches
func (m *Migrator) registerSchema() {
	m.AddMigration(Migration{
		Version: 1,
		Name:    "create_monitors_table",
		UpSQL: `
			CREATE TABLE monitors (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				team_id INTEGER NOT NULL DEFAULT 0,
				name TEXT NOT NULL,
				type TEXT NOT NULL CHECK (type IN ('http', 'tcp')),
				interval_ms INTEGER NOT NULL DEFAULT 60000,
				timeout_seconds INTEGER NOT NULL DEFAULT 30,
				response_time_threshold INTEGER,
				locations TEXT NOT NULL,
				content_check TEXT,
				url TEXT,
				method TEXT,
				headers TEXT,
				body TEXT,
				username TEXT,
				password TEXT,
				expected_status_codes TEXT,
				follow_redirects BOOLEAN NOT NULL DEFAULT 1,
				verify_ssl BOOLEAN NOT NULL DEFAULT 1,
				check_dns BOOLEAN NOT NULL DEFAULT 1,
				host TEXT,
				port INTEGER,
				status TEXT NOT NULL DEFAULT 'initializing'
					CHECK (status IN ('up', 'down', 'downgraded', 'maintenance', 'paused', 'initializing')),
				created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
				updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
			);
			CREATE INDEX idx_monitors_status ON monitors(status);
			CREATE INDEX idx_monitors_team_id ON monitors(team_id);
		`,
		DownSQL: `DROP TABLE IF EXISTS monitors;`,
	})

	m.AddMigration(Migration{
		Version: 2,
		Name:    "create_maintenances_table",
		UpSQL: `
			CREATE TABLE maintenances (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				monitor_id INTEGER NOT NULL,
				reason TEXT,
				starts_at DATETIME NOT NULL,
				ends_at DATETIME NOT NULL,
				created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
				FOREIGN KEY (monitor_id) REFERENCES monitors(id) ON DELETE CASCADE
			);
			CREATE INDEX idx_maintenances_window ON maintenances(starts_at, ends_at);
		`,
		DownSQL: `DROP TABLE IF EXISTS maintenances;`,
	})

	m.AddMigration(Migration{
		Version: 3,
		Name:    "create_check_results_table",
		UpSQL: `
			CREATE TABLE check_results (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				monitor_id INTEGER NOT NULL,
				location TEXT NOT NULL,
				result TEXT NOT NULL
					CHECK (result IN ('success', 'degraded', 'failure', 'timeout', 'error', 'maintenance')),
				response_time_ms INTEGER NOT NULL DEFAULT 0,
				status_code INTEGER,
				error_message TEXT,
				cause TEXT,
				response_headers TEXT,
				response_body TEXT,
				retry_count INTEGER NOT NULL DEFAULT 0,
				checked_at DATETIME NOT NULL,
				created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
				FOREIGN KEY (monitor_id) REFERENCES monitors(id) ON DELETE CASCADE
			);
			CREATE INDEX idx_check_results_monitor_checked ON check_results(monitor_id, checked_at);
		`,
		DownSQL: `DROP TABLE IF EXISTS check_results;`,
	})

	m.AddMigration(Migration{
		Version: 4,
		Name:    "create_incidents_table",
		UpSQL: `
			CREATE TABLE incidents (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				monitor_id INTEGER NOT NULL,
				cause TEXT NOT NULL,
				status TEXT NOT NULL DEFAULT 'active'
					CHECK (status IN ('active', 'acknowledged', 'fixing', 'resolved')),
				title TEXT,
				description TEXT,
				hint TEXT,
				severity TEXT CHECK (severity IS NULL OR severity IN ('low', 'medium', 'high', 'critical')),
				started_at DATETIME NOT NULL,
				acknowledged_at DATETIME,
				fixing_at DATETIME,
				resolved_at DATETIME,
				created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
				updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
				FOREIGN KEY (monitor_id) REFERENCES monitors(id) ON DELETE CASCADE
			);
			CREATE INDEX idx_incidents_monitor_status ON incidents(monitor_id, status);
			CREATE UNIQUE INDEX idx_incidents_open_cause ON incidents(monitor_id, cause) WHERE status != 'resolved';
		`,
		DownSQL: `DROP TABLE IF EXISTS incidents;`,
	})

	m.AddMigration(Migration{
		Version: 5,
		Name:    "create_heartbeats_tables",
		UpSQL: `
			CREATE TABLE heartbeats (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				team_id INTEGER NOT NULL DEFAULT 0,
				name TEXT NOT NULL,
				slug TEXT NOT NULL UNIQUE,
				grace_period INTEGER NOT NULL,
				status TEXT NOT NULL DEFAULT 'initializing'
					CHECK (status IN ('up', 'down', 'paused', 'initializing')),
				last_ping_at DATETIME,
				created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
				updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
			);
			CREATE TABLE heartbeat_incidents (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				heartbeat_id INTEGER NOT NULL,
				status TEXT NOT NULL DEFAULT 'ongoing' CHECK (status IN ('ongoing', 'resolved')),
				started_at DATETIME NOT NULL,
				resolved_at DATETIME,
				created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
				FOREIGN KEY (heartbeat_id) REFERENCES heartbeats(id) ON DELETE CASCADE
			);
			CREATE UNIQUE INDEX idx_heartbeat_incidents_ongoing ON heartbeat_incidents(heartbeat_id) WHERE status = 'ongoing';
		`,
		DownSQL: `DROP TABLE IF EXISTS heartbeat_incidents; DROP TABLE IF EXISTS heartbeats;`,
	})

	log.Debug().Int("versions", len(m.migrations)).Msg("Schema versions loaded")
}

// AddMigration registers a migration. Versions are applied in ascending order
// regardless of registration order.
func (m *Migrator) AddMigration(migration Migration) {
	m.migrations = append(m.migrations, migration)
	slices.SortFunc(m.migrations, func(a, b Migration) int {
		return a.Version - b.Version
	})
}

// Migrate applies every version not yet recorded, each in its own
// transaction, and returns how many ran.
func (m *Migrator) Migrate() (int, error) {
	done, err := m.appliedVersions()
	if err != nil {
		return 0, err
	}

	applied := 0
	for _, mig := range m.migrations {
		if done[mig.Version] {
			continue
		}

		log.Info().Int("version", mig.Version).Str("name", mig.Name).Msg("Applying schema version")
		if err := m.apply(mig); err != nil {
			return applied, fmt.Errorf("schema version %d (%s): %w", mig.Version, mig.Name, err)
		}
		applied++
	}

	if applied == 0 {
		log.Debug().Msg("Schema is up to date")
	} else {
		log.Info().Int("applied", applied).Msg("Schema upgraded")
	}
	return applied, nil
}

// Status lists recorded versions, oldest first.
func (m *Migrator) Status() ([]MigrationRecord, error) {
	rows, err := m.db.Query(`SELECT version, name, applied_at FROM schema_migrations ORDER BY version`)
	if err != nil {
		return nil, fmt.Errorf("read schema_migrations: %w", err)
	}
	defer rows.Close()

	var out []MigrationRecord
	for rows.Next() {
		var rec MigrationRecord
		if err := rows.Scan(&rec.Version, &rec.Name, &rec.AppliedAt); err != nil {
			return nil, fmt.Errorf("scan schema_migrations: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (m *Migrator) appliedVersions() (map[int]bool, error) {
	records, err := m.Status()
	if err != nil {
		return nil, err
	}
	done := make(map[int]bool, len(records))
	for _, rec := range records {
		done[rec.Version] = true
	}
	return done, nil
}

// apply executes one version and records it in the same transaction.
func (m *Migrator) apply(mig Migration) error {
	tx, err := m.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() // no-op once committed

	for n, stmt := range statements(mig.UpSQL) {
		log.Debug().Int("version", mig.Version).Int("statement", n+1).Str("sql", stmt).Msg("Executing schema statement")
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("statement %d: %w", n+1, err)
		}
	}

	if _, err := tx.Exec(`INSERT INTO schema_migrations (version, name) VALUES (?, ?)`, mig.Version, mig.Name); err != nil {
		return fmt.Errorf("record version: %w", err)
	}
	return tx.Commit()
}

// statements splits a script on semicolons. Literals must not contain one.
func statements(script string) []string {
	var out []string
	for part := range strings.SplitSeq(script, ";") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
