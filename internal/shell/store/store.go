// Package store persists run history to SQLite so past deployments can
// be inspected and re-validated without re-deploying.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/artpar/shipward/internal/core/domain"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store errors
var (
	ErrNotFound = errors.New("run not found")
)

// Store holds run history in SQLite.
type Store struct {
	db *sqlx.DB
}

// Open opens the database at dsn, runs migrations, and returns a Store.
func Open(dsn string) (*Store, error) {
	db, err := sqlx.Open("sqlite3", dsn+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func runMigrations(db *sqlx.DB) error {
	driver, err := sqlite3.WithInstance(db.DB, &sqlite3.Config{NoTxWrap: true})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// =============================================================================
// Run Persistence
// =============================================================================

// runRow is the database shape of a domain.RunRecord.
type runRow struct {
	ID            string    `db:"id"`
	StartedAt     time.Time `db:"started_at"`
	Host          string    `db:"host"`
	SSHUser       string    `db:"ssh_user"`
	SSHKeyPath    string    `db:"ssh_key_path"`
	AppPort       int       `db:"app_port"`
	RepoName      string    `db:"repo_name"`
	ContainerName string    `db:"container_name"`
	DeployType    string    `db:"deploy_type"`
	RemotePath    string    `db:"remote_path"`
	LogPath       string    `db:"log_path"`
	Passed        int       `db:"passed"`
	Failed        int       `db:"failed"`
	Warned        int       `db:"warned"`
	Verdict       string    `db:"verdict"`
	ExitCode      int       `db:"exit_code"`
}

func toRow(rec domain.RunRecord) runRow {
	return runRow{
		ID:            rec.ID,
		StartedAt:     rec.StartedAt.UTC(),
		Host:          rec.Host,
		SSHUser:       rec.SSHUser,
		SSHKeyPath:    rec.SSHKeyPath,
		AppPort:       rec.AppPort,
		RepoName:      rec.RepoName,
		ContainerName: rec.ContainerName,
		DeployType:    string(rec.DeployType),
		RemotePath:    rec.RemotePath,
		LogPath:       rec.LogPath,
		Passed:        rec.Passed,
		Failed:        rec.Failed,
		Warned:        rec.Warned,
		Verdict:       rec.Verdict,
		ExitCode:      rec.ExitCode,
	}
}

func fromRow(row runRow) domain.RunRecord {
	return domain.RunRecord{
		ID:            row.ID,
		StartedAt:     row.StartedAt,
		Host:          row.Host,
		SSHUser:       row.SSHUser,
		SSHKeyPath:    row.SSHKeyPath,
		AppPort:       row.AppPort,
		RepoName:      row.RepoName,
		ContainerName: row.ContainerName,
		DeployType:    domain.DeployStrategy(row.DeployType),
		RemotePath:    row.RemotePath,
		LogPath:       row.LogPath,
		Passed:        row.Passed,
		Failed:        row.Failed,
		Warned:        row.Warned,
		Verdict:       row.Verdict,
		ExitCode:      row.ExitCode,
	}
}

// SaveRun inserts or replaces a run record.
func (s *Store) SaveRun(ctx context.Context, rec domain.RunRecord) error {
	const query = `
		INSERT OR REPLACE INTO runs (
			id, started_at, host, ssh_user, ssh_key_path, app_port,
			repo_name, container_name, deploy_type, remote_path, log_path,
			passed, failed, warned, verdict, exit_code
		) VALUES (
			:id, :started_at, :host, :ssh_user, :ssh_key_path, :app_port,
			:repo_name, :container_name, :deploy_type, :remote_path, :log_path,
			:passed, :failed, :warned, :verdict, :exit_code
		)`
	if _, err := s.db.NamedExecContext(ctx, query, toRow(rec)); err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	return nil
}

// LastRun returns the most recent run for a host that recorded complete
// deployment facts. Aborted runs carry no facts and are skipped here,
// so a failed redeploy does not shadow the deployment that is still
// live on the host.
func (s *Store) LastRun(ctx context.Context, host string) (domain.RunRecord, error) {
	var row runRow
	const query = `
		SELECT * FROM runs
		WHERE host = ? AND container_name != ''
		ORDER BY started_at DESC LIMIT 1`
	if err := s.db.GetContext(ctx, &row, query, host); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.RunRecord{}, ErrNotFound
		}
		return domain.RunRecord{}, fmt.Errorf("load last run: %w", err)
	}
	return fromRow(row), nil
}

// ListRuns returns up to limit runs, most recent first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]domain.RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []runRow
	const query = `SELECT * FROM runs ORDER BY started_at DESC LIMIT ?`
	if err := s.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	records := make([]domain.RunRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, fromRow(row))
	}
	return records, nil
}
