// This file implements the SQLite-backed store.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "embed"

	_ "github.com/mattn/go-sqlite3"

	"github.com/flowdesk/flowdesk/internal/models"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN. The DSN is a
// file path to the database; missing parent directories are created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(cfg.DSN)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", cfg.DSN)
	if err != nil {
		slog.Error("failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite store ready", "dsn", cfg.DSN)
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Context(ctx context.Context, workflowID, userID string) (*models.ExecutionContext, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM contexts WHERE workflow_id = ? AND user_id = ?`,
		workflowID, userID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrContextNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query context: %w", err)
	}
	var ec models.ExecutionContext
	if err := json.Unmarshal([]byte(raw), &ec); err != nil {
		return nil, fmt.Errorf("decode context: %w", err)
	}
	return &ec, nil
}

func (s *SQLiteStore) SaveContext(ctx context.Context, ec *models.ExecutionContext) error {
	raw, err := json.Marshal(ec)
	if err != nil {
		return fmt.Errorf("encode context: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO contexts (workflow_id, user_id, data, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (workflow_id, user_id)
		DO UPDATE SET data = excluded.data, updated_at = CURRENT_TIMESTAMP`,
		ec.WorkflowID, ec.UserID, string(raw))
	if err != nil {
		return fmt.Errorf("save context: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DeleteContext(ctx context.Context, workflowID, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM contexts WHERE workflow_id = ? AND user_id = ?`, workflowID, userID)
	if err != nil {
		return fmt.Errorf("delete context: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Definition(ctx context.Context, id string) (*models.Definition, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM definitions WHERE id = ?`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrWorkflowNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query definition: %w", err)
	}
	var def models.Definition
	if err := json.Unmarshal([]byte(raw), &def); err != nil {
		return nil, fmt.Errorf("decode definition: %w", err)
	}
	return &def, nil
}

func (s *SQLiteStore) SaveDefinition(ctx context.Context, def *models.Definition) error {
	raw, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("encode definition: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO definitions (id, name, active, data, updated_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (id)
		DO UPDATE SET name = excluded.name, active = excluded.active,
		              data = excluded.data, updated_at = CURRENT_TIMESTAMP`,
		def.ID, def.Name, def.Active, string(raw))
	if err != nil {
		return fmt.Errorf("save definition: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListDefinitions(ctx context.Context) ([]models.Definition, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT data FROM definitions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list definitions: %w", err)
	}
	defer rows.Close()

	var defs []models.Definition
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan definition: %w", err)
		}
		var def models.Definition
		if err := json.Unmarshal([]byte(raw), &def); err != nil {
			return nil, fmt.Errorf("decode definition: %w", err)
		}
		defs = append(defs, def)
	}
	return defs, rows.Err()
}

func (s *SQLiteStore) Patient(ctx context.Context, id string) (*models.Patient, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM patients WHERE id = ?`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrPatientNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query patient: %w", err)
	}
	return decodePatient(raw)
}

func (s *SQLiteStore) PatientByPhone(ctx context.Context, phone string) (*models.Patient, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM patients WHERE phone = ? ORDER BY created_at DESC LIMIT 1`, phone).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrPatientNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query patient by phone: %w", err)
	}
	return decodePatient(raw)
}

func (s *SQLiteStore) SavePatient(ctx context.Context, p *models.Patient) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode patient: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO patients (id, phone, data)
		VALUES (?, ?, ?)
		ON CONFLICT (id)
		DO UPDATE SET phone = excluded.phone, data = excluded.data`,
		p.ID, p.Phone, string(raw))
	if err != nil {
		return fmt.Errorf("save patient: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SaveAppointment(ctx context.Context, a *models.Appointment) error {
	raw, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode appointment: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO appointments (id, patient_id, data) VALUES (?, ?, ?)`,
		a.ID, a.PatientID, string(raw))
	if err != nil {
		return fmt.Errorf("save appointment: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func decodePatient(raw string) (*models.Patient, error) {
	var p models.Patient
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("decode patient: %w", err)
	}
	return &p, nil
}
