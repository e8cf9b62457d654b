// Package store provides storage backends for workflow execution state,
// workflow definitions and patient records.
//
// It ships an in-memory store for tests and single-process runs, plus
// SQLite, PostgreSQL and Redis backed implementations.
package store

import (
	"context"
	"strings"

	"github.com/flowdesk/flowdesk/internal/models"
)

// Store is the persistence surface used by the engine and record service.
type Store interface {
	// Execution contexts, keyed by (workflowID, userID).
	Context(ctx context.Context, workflowID, userID string) (*models.ExecutionContext, error)
	SaveContext(ctx context.Context, ec *models.ExecutionContext) error
	DeleteContext(ctx context.Context, workflowID, userID string) error

	// Workflow definitions.
	Definition(ctx context.Context, id string) (*models.Definition, error)
	SaveDefinition(ctx context.Context, def *models.Definition) error
	ListDefinitions(ctx context.Context) ([]models.Definition, error)

	// Patient records and appointments.
	Patient(ctx context.Context, id string) (*models.Patient, error)
	PatientByPhone(ctx context.Context, phone string) (*models.Patient, error)
	SavePatient(ctx context.Context, p *models.Patient) error
	SaveAppointment(ctx context.Context, a *models.Appointment) error

	Close() error
}

// Opts holds configuration applied via functional options.
type Opts struct {
	DSN string
}

// Option configures a store backend.
type Option func(*Opts)

// WithDSN sets the database connection string.
func WithDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType classifies a DSN as "postgres", "redis" or "sqlite3".
// Anything that is not a recognizable Postgres or Redis DSN is treated as a
// SQLite file path.
func DetectDSNType(dsn string) string {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return "postgres"
	case strings.Contains(dsn, "host=") && strings.Contains(dsn, "dbname="):
		return "postgres"
	case strings.HasPrefix(dsn, "redis://"), strings.HasPrefix(dsn, "rediss://"):
		return "redis"
	default:
		return "sqlite3"
	}
}
