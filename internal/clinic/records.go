package clinic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/flowdesk/flowdesk/internal/models"
)

// patientStore is the slice of the storage layer Records needs.
type patientStore interface {
	PatientByPhone(ctx context.Context, phone string) (*models.Patient, error)
	SavePatient(ctx context.Context, p *models.Patient) error
	SaveAppointment(ctx context.Context, a *models.Appointment) error
}

// Records manages patient profiles and appointment bookings on behalf of
// Action nodes.
type Records struct {
	store patientStore
	now   func() time.Time
}

// RecordsOption configures a Records service.
type RecordsOption func(*Records)

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) RecordsOption {
	return func(r *Records) { r.now = now }
}

// NewRecords builds a Records service over the given store.
func NewRecords(store patientStore, opts ...RecordsOption) *Records {
	r := &Records{store: store, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// FindByPhone looks a patient up by phone number. Returns
// models.ErrPatientNotFound when no profile exists.
func (r *Records) FindByPhone(ctx context.Context, phone string) (*models.Patient, error) {
	digits := onlyDigits(phone)
	if digits == "" {
		return nil, fmt.Errorf("find patient: empty phone")
	}
	p, err := r.store.PatientByPhone(ctx, digits)
	if err != nil {
		if errors.Is(err, models.ErrPatientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("find patient by phone: %w", err)
	}
	return p, nil
}

// Create persists a new patient profile built from collected workflow data.
func (r *Records) Create(ctx context.Context, p models.Patient) (*models.Patient, error) {
	if p.Name == "" || p.Phone == "" {
		return nil, fmt.Errorf("create patient: name and phone are required")
	}
	p.ID = uuid.NewString()
	p.Phone = onlyDigits(p.Phone)
	p.CreatedAt = r.now().UTC()
	if err := r.store.SavePatient(ctx, &p); err != nil {
		return nil, fmt.Errorf("create patient: %w", err)
	}
	slog.Info("patient profile created", "patient_id", p.ID, "location", p.LocationID)
	return &p, nil
}

// Book records an appointment request for a patient. dateText accepts
// "hoje", "amanhã", a weekday name or a DD/MM/YYYY date.
func (r *Records) Book(ctx context.Context, patientID, procedure, dateText, shift string) (*models.Appointment, error) {
	if patientID == "" {
		return nil, fmt.Errorf("book appointment: missing patient id")
	}
	date, err := r.resolveDate(dateText)
	if err != nil {
		return nil, fmt.Errorf("book appointment: %w", err)
	}
	appt := &models.Appointment{
		ID:        uuid.NewString(),
		PatientID: patientID,
		Procedure: procedure,
		Date:      date,
		Shift:     shift,
		Status:    "requested",
		CreatedAt: r.now().UTC(),
	}
	if err := r.store.SaveAppointment(ctx, appt); err != nil {
		return nil, fmt.Errorf("book appointment: %w", err)
	}
	slog.Info("appointment requested", "appointment_id", appt.ID, "patient_id", patientID, "date", date.Format("2006-01-02"), "shift", shift)
	return appt, nil
}

var weekdayNames = map[string]time.Weekday{
	"domingo": time.Sunday,
	"segunda": time.Monday, "segunda-feira": time.Monday,
	"terca": time.Tuesday, "terça": time.Tuesday, "terca-feira": time.Tuesday, "terça-feira": time.Tuesday,
	"quarta": time.Wednesday, "quarta-feira": time.Wednesday,
	"quinta": time.Thursday, "quinta-feira": time.Thursday,
	"sexta": time.Friday, "sexta-feira": time.Friday,
	"sabado": time.Saturday, "sábado": time.Saturday,
}

// resolveDate turns the collected preferred-date text into a concrete day.
// Weekday names resolve to the next occurrence of that weekday.
func (r *Records) resolveDate(text string) (time.Time, error) {
	norm := strings.ToLower(strings.TrimSpace(text))
	today := r.now()
	today = time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
	switch norm {
	case "hoje":
		return today, nil
	case "amanha", "amanhã":
		return today.AddDate(0, 0, 1), nil
	}
	if wd, ok := weekdayNames[norm]; ok {
		days := (int(wd) - int(today.Weekday()) + 7) % 7
		if days == 0 {
			days = 7
		}
		return today.AddDate(0, 0, days), nil
	}
	if t, err := time.Parse("02/01/2006", norm); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", text)
}

func onlyDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
