package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/flowdesk/flowdesk/internal/models"
)

// InMemoryStore keeps everything in process memory. It is the default
// backend when no DSN is configured and the workhorse of the test suite.
type InMemoryStore struct {
	mu           sync.RWMutex
	contexts     map[string]*models.ExecutionContext
	definitions  map[string]*models.Definition
	patients     map[string]*models.Patient
	phoneIndex   map[string]string // phone -> patient id
	appointments []*models.Appointment
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		contexts:    make(map[string]*models.ExecutionContext),
		definitions: make(map[string]*models.Definition),
		patients:    make(map[string]*models.Patient),
		phoneIndex:  make(map[string]string),
	}
}

func contextKey(workflowID, userID string) string {
	return workflowID + "|" + userID
}

// clone round-trips a value through JSON so callers never share memory with
// the store's copy.
func clone[T any](v *T) (*T, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("clone: %w", err)
	}
	out := new(T)
	if err := json.Unmarshal(raw, out); err != nil {
		return nil, fmt.Errorf("clone: %w", err)
	}
	return out, nil
}

func (s *InMemoryStore) Context(_ context.Context, workflowID, userID string) (*models.ExecutionContext, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ec, ok := s.contexts[contextKey(workflowID, userID)]
	if !ok {
		return nil, models.ErrContextNotFound
	}
	return clone(ec)
}

func (s *InMemoryStore) SaveContext(_ context.Context, ec *models.ExecutionContext) error {
	cp, err := clone(ec)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contexts[contextKey(ec.WorkflowID, ec.UserID)] = cp
	return nil
}

func (s *InMemoryStore) DeleteContext(_ context.Context, workflowID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.contexts, contextKey(workflowID, userID))
	return nil
}

func (s *InMemoryStore) Definition(_ context.Context, id string) (*models.Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	def, ok := s.definitions[id]
	if !ok {
		return nil, models.ErrWorkflowNotFound
	}
	return clone(def)
}

func (s *InMemoryStore) SaveDefinition(_ context.Context, def *models.Definition) error {
	cp, err := clone(def)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.definitions[def.ID] = cp
	return nil
}

func (s *InMemoryStore) ListDefinitions(_ context.Context) ([]models.Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Definition, 0, len(s.definitions))
	for _, def := range s.definitions {
		cp, err := clone(def)
		if err != nil {
			return nil, err
		}
		out = append(out, *cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *InMemoryStore) Patient(_ context.Context, id string) (*models.Patient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.patients[id]
	if !ok {
		return nil, models.ErrPatientNotFound
	}
	return clone(p)
}

func (s *InMemoryStore) PatientByPhone(_ context.Context, phone string) (*models.Patient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.phoneIndex[phone]
	if !ok {
		return nil, models.ErrPatientNotFound
	}
	return clone(s.patients[id])
}

func (s *InMemoryStore) SavePatient(_ context.Context, p *models.Patient) error {
	cp, err := clone(p)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.patients[p.ID]; ok && prev.Phone != p.Phone {
		delete(s.phoneIndex, prev.Phone)
	}
	s.patients[p.ID] = cp
	s.phoneIndex[p.Phone] = p.ID
	return nil
}

func (s *InMemoryStore) SaveAppointment(_ context.Context, a *models.Appointment) error {
	cp, err := clone(a)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appointments = append(s.appointments, cp)
	return nil
}

// Appointments returns all stored appointments, for tests and diagnostics.
func (s *InMemoryStore) Appointments() []*models.Appointment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Appointment, len(s.appointments))
	copy(out, s.appointments)
	return out
}

func (s *InMemoryStore) Close() error { return nil }
