package storage

import (
	"context"
	"database/sql"
	"fmt"

	"uplight/internal/config"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
)

// Storage owns the sqlite connection pool and the repositories built on it.
type Storage struct {
	db  *sql.DB
	orm *ORM

	Monitors           *Repository[Monitor]
	Maintenances       *Repository[Maintenance]
	CheckResults       *Repository[CheckResult]
	Incidents          *Repository[Incident]
	Heartbeats         *Repository[Heartbeat]
	HeartbeatIncidents *Repository[HeartbeatIncident]
}

// New opens the sqlite database at cfg.Path, applies pool settings and
// runs all pending migrations.
func New(cfg config.StorageConfig) (*Storage, error) {
	// WAL lets the API read while a round writes; foreign keys are off by default in sqlite.
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000", cfg.Path)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	migrator, err := NewMigrator(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	if _, err := migrator.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	log.Info().Str("path", cfg.Path).Msg("Storage initialized")
	return newStorage(db), nil
}

func newStorage(db *sql.DB) *Storage {
	orm := NewORM(db)
	return &Storage{
		db:                 db,
		orm:                orm,
		Monitors:           NewRepository[Monitor](orm),
		Maintenances:       NewRepository[Maintenance](orm),
		CheckResults:       NewRepository[CheckResult](orm),
		Incidents:          NewRepository[Incident](orm),
		Heartbeats:         NewRepository[Heartbeat](orm),
		HeartbeatIncidents: NewRepository[HeartbeatIncident](orm),
	}
}

// Ping verifies the database is reachable.
func (s *Storage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}
