// This file implements the Redis-backed store.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/flowdesk/flowdesk/internal/models"
)

const (
	redisCtxPrefix     = "flowdesk:ctx:"
	redisDefPrefix     = "flowdesk:def:"
	redisDefIndex      = "flowdesk:defs"
	redisPatientPrefix = "flowdesk:patient:"
	redisPhonePrefix   = "flowdesk:patient:phone:"
	redisApptPrefix    = "flowdesk:appt:"
)

type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a Redis store from a redis:// DSN.
func NewRedisStore(opts ...Option) (*RedisStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		slog.Error("RedisStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}
	ropts, err := redis.ParseURL(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse redis DSN: %w", err)
	}
	client := redis.NewClient(ropts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		slog.Error("Redis ping failed", "error", err)
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	slog.Debug("Redis store ready", "addr", ropts.Addr)
	return &RedisStore{client: client}, nil
}

// NewRedisStoreWithClient wraps an existing client, for tests.
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) getJSON(ctx context.Context, key string, out any, missing error) error {
	raw, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return missing
	}
	if err != nil {
		return fmt.Errorf("redis get %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) setJSON(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := s.client.Set(ctx, key, raw, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Context(ctx context.Context, workflowID, userID string) (*models.ExecutionContext, error) {
	var ec models.ExecutionContext
	if err := s.getJSON(ctx, redisCtxPrefix+contextKey(workflowID, userID), &ec, models.ErrContextNotFound); err != nil {
		return nil, err
	}
	return &ec, nil
}

func (s *RedisStore) SaveContext(ctx context.Context, ec *models.ExecutionContext) error {
	return s.setJSON(ctx, redisCtxPrefix+contextKey(ec.WorkflowID, ec.UserID), ec)
}

func (s *RedisStore) DeleteContext(ctx context.Context, workflowID, userID string) error {
	if err := s.client.Del(ctx, redisCtxPrefix+contextKey(workflowID, userID)).Err(); err != nil {
		return fmt.Errorf("redis del context: %w", err)
	}
	return nil
}

func (s *RedisStore) Definition(ctx context.Context, id string) (*models.Definition, error) {
	var def models.Definition
	if err := s.getJSON(ctx, redisDefPrefix+id, &def, models.ErrWorkflowNotFound); err != nil {
		return nil, err
	}
	return &def, nil
}

func (s *RedisStore) SaveDefinition(ctx context.Context, def *models.Definition) error {
	if err := s.setJSON(ctx, redisDefPrefix+def.ID, def); err != nil {
		return err
	}
	if err := s.client.SAdd(ctx, redisDefIndex, def.ID).Err(); err != nil {
		return fmt.Errorf("redis index definition: %w", err)
	}
	return nil
}

func (s *RedisStore) ListDefinitions(ctx context.Context) ([]models.Definition, error) {
	ids, err := s.client.SMembers(ctx, redisDefIndex).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list definitions: %w", err)
	}
	defs := make([]models.Definition, 0, len(ids))
	for _, id := range ids {
		def, err := s.Definition(ctx, id)
		if errors.Is(err, models.ErrWorkflowNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		defs = append(defs, *def)
	}
	return defs, nil
}

func (s *RedisStore) Patient(ctx context.Context, id string) (*models.Patient, error) {
	var p models.Patient
	if err := s.getJSON(ctx, redisPatientPrefix+id, &p, models.ErrPatientNotFound); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *RedisStore) PatientByPhone(ctx context.Context, phone string) (*models.Patient, error) {
	id, err := s.client.Get(ctx, redisPhonePrefix+phone).Result()
	if errors.Is(err, redis.Nil) {
		return nil, models.ErrPatientNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis phone index: %w", err)
	}
	return s.Patient(ctx, id)
}

func (s *RedisStore) SavePatient(ctx context.Context, p *models.Patient) error {
	if err := s.setJSON(ctx, redisPatientPrefix+p.ID, p); err != nil {
		return err
	}
	if err := s.client.Set(ctx, redisPhonePrefix+p.Phone, p.ID, 0).Err(); err != nil {
		return fmt.Errorf("redis phone index: %w", err)
	}
	return nil
}

func (s *RedisStore) SaveAppointment(ctx context.Context, a *models.Appointment) error {
	return s.setJSON(ctx, redisApptPrefix+a.ID, a)
}

func (s *RedisStore) Close() error { return s.client.Close() }
