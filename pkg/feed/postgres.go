package feed

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib" // Register pgx driver for database/sql
)

//go:embed migrations
var migrationsFS embed.FS

// PostgresStore is the production UpdateStore backed by PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// OpenPostgres connects to PostgreSQL and verifies connectivity.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// Migrate applies the embedded schema migrations. No-op when up to date.
func (s *PostgresStore) Migrate() error {
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("open embedded migrations: %w", err)
	}
	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(s.db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Append stores one event row.
func (s *PostgresStore) Append(ctx context.Context, jobID, eventType string, payload []byte) (Record, error) {
	record := Record{
		ID:        uuid.New().String(),
		JobID:     jobID,
		EventType: eventType,
		Payload:   payload,
	}

	err := s.db.QueryRowContext(ctx,
		`INSERT INTO matching_job_updates (id, matching_job_id, event_type, payload, created_at)
		 VALUES ($1, $2, $3, $4, now())
		 RETURNING created_at`,
		record.ID, jobID, eventType, payload,
	).Scan(&record.CreatedAt)
	if err != nil {
		return Record{}, fmt.Errorf("insert matching job update: %w", err)
	}
	return record, nil
}

// ListByJob returns up to limit records for a job, newest first.
func (s *PostgresStore) ListByJob(ctx context.Context, jobID string, limit int) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, matching_job_id, event_type, payload, created_at
		 FROM matching_job_updates
		 WHERE matching_job_id = $1
		 ORDER BY created_at DESC, id DESC
		 LIMIT $2`,
		jobID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query matching job updates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []Record
	for rows.Next() {
		var record Record
		if err := rows.Scan(&record.ID, &record.JobID, &record.EventType,
			&record.Payload, &record.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan matching job update: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate matching job updates: %w", err)
	}
	return records, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
