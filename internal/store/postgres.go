// This file implements the PostgreSQL-backed store.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	_ "github.com/lib/pq"

	"github.com/flowdesk/flowdesk/internal/models"
)

// Connection pool configuration.
const (
	DefaultMaxOpenConns    = 25
	DefaultMaxIdleConns    = 25
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		slog.Error("failed to open Postgres connection", "error", err)
		return nil, err
	}
	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres store ready")
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Context(ctx context.Context, workflowID, userID string) (*models.ExecutionContext, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM contexts WHERE workflow_id = $1 AND user_id = $2`,
		workflowID, userID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrContextNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query context: %w", err)
	}
	var ec models.ExecutionContext
	if err := json.Unmarshal(raw, &ec); err != nil {
		return nil, fmt.Errorf("decode context: %w", err)
	}
	return &ec, nil
}

func (s *PostgresStore) SaveContext(ctx context.Context, ec *models.ExecutionContext) error {
	raw, err := json.Marshal(ec)
	if err != nil {
		return fmt.Errorf("encode context: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO contexts (workflow_id, user_id, data, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (workflow_id, user_id)
		DO UPDATE SET data = EXCLUDED.data, updated_at = now()`,
		ec.WorkflowID, ec.UserID, raw)
	if err != nil {
		return fmt.Errorf("save context: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteContext(ctx context.Context, workflowID, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM contexts WHERE workflow_id = $1 AND user_id = $2`, workflowID, userID)
	if err != nil {
		return fmt.Errorf("delete context: %w", err)
	}
	return nil
}

func (s *PostgresStore) Definition(ctx context.Context, id string) (*models.Definition, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM definitions WHERE id = $1`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrWorkflowNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query definition: %w", err)
	}
	var def models.Definition
	if err := json.Unmarshal(raw, &def); err != nil {
		return nil, fmt.Errorf("decode definition: %w", err)
	}
	return &def, nil
}

func (s *PostgresStore) SaveDefinition(ctx context.Context, def *models.Definition) error {
	raw, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("encode definition: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO definitions (id, name, active, data, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (id)
		DO UPDATE SET name = EXCLUDED.name, active = EXCLUDED.active,
		              data = EXCLUDED.data, updated_at = now()`,
		def.ID, def.Name, def.Active, raw)
	if err != nil {
		return fmt.Errorf("save definition: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListDefinitions(ctx context.Context) ([]models.Definition, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT data FROM definitions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list definitions: %w", err)
	}
	defer rows.Close()

	var defs []models.Definition
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan definition: %w", err)
		}
		var def models.Definition
		if err := json.Unmarshal(raw, &def); err != nil {
			return nil, fmt.Errorf("decode definition: %w", err)
		}
		defs = append(defs, def)
	}
	return defs, rows.Err()
}

func (s *PostgresStore) Patient(ctx context.Context, id string) (*models.Patient, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM patients WHERE id = $1`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrPatientNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query patient: %w", err)
	}
	return decodePatient(string(raw))
}

func (s *PostgresStore) PatientByPhone(ctx context.Context, phone string) (*models.Patient, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM patients WHERE phone = $1 ORDER BY created_at DESC LIMIT 1`, phone).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrPatientNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query patient by phone: %w", err)
	}
	return decodePatient(string(raw))
}

func (s *PostgresStore) SavePatient(ctx context.Context, p *models.Patient) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode patient: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO patients (id, phone, data)
		VALUES ($1, $2, $3)
		ON CONFLICT (id)
		DO UPDATE SET phone = EXCLUDED.phone, data = EXCLUDED.data`,
		p.ID, p.Phone, raw)
	if err != nil {
		return fmt.Errorf("save patient: %w", err)
	}
	return nil
}

func (s *PostgresStore) SaveAppointment(ctx context.Context, a *models.Appointment) error {
	raw, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode appointment: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO appointments (id, patient_id, data) VALUES ($1, $2, $3)`,
		a.ID, a.PatientID, raw)
	if err != nil {
		return fmt.Errorf("save appointment: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error { return s.db.Close() }
