package clinic

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/flowdesk/flowdesk/internal/models"
)

func TestNormalizeInsurance(t *testing.T) {
	cases := map[string]string{
		"sulamerica":           "SULAMÉRICA",
		"SUL AMERICA":          "SULAMÉRICA",
		"sula":                 "SULAMÉRICA",
		"bradisco":             "BRADESCO",
		"bradesco saúde":       "BRADESCO",
		"saude caixa":          "SAÚDE CAIXA",
		"correios":             "POSTAL SAÚDE",
		"gama":                 "GAMA SAÚDE",
		"particular":           "Particular",
		"não tenho":            "Particular",
		"sem convênio":         "Particular",
		"":                     "Particular",
		"plano desconhecido x": "PLANO DESCONHECIDO X",
	}
	for in, want := range cases {
		if got := NormalizeInsurance(in); got != want {
			t.Errorf("NormalizeInsurance(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDirectoryLocations(t *testing.T) {
	dir := DefaultDirectory()
	if len(dir.Locations()) != 2 {
		t.Fatalf("expected two units, got %d", len(dir.Locations()))
	}

	loc, ok := dir.FindLocation("ponta_negra")
	if !ok || loc.ID != "ponta-negra" {
		t.Errorf("underscore variant not resolved: %+v %v", loc, ok)
	}

	// Unknown ids fall back to the first unit so rendering never breaks.
	loc, ok = dir.FindLocation("marte")
	if ok {
		t.Error("unknown location reported as found")
	}
	if loc.ID != "centro" {
		t.Errorf("fallback unit = %q, want centro", loc.ID)
	}
}

func TestDirectoryProcedures(t *testing.T) {
	dir := DefaultDirectory()

	centro := dir.Procedures("centro")
	for _, p := range centro {
		if p.ID == "drenagem" {
			t.Error("location-restricted procedure offered at wrong unit")
		}
	}

	p, ok := dir.DetectProcedure("quanto custa o pilates?", "centro")
	if !ok || p.ID != "pilates" {
		t.Errorf("DetectProcedure = %+v %v", p, ok)
	}
	if _, ok := dir.DetectProcedure("quanto custa a drenagem?", "centro"); ok {
		t.Error("detected procedure unavailable at the unit")
	}

	price, ok := p.Price("centro")
	if !ok || price != 90 {
		t.Errorf("pilates price at centro = %v %v", price, ok)
	}
}

func TestFormatBlocks(t *testing.T) {
	dir := DefaultDirectory()

	if got := FormatPrice(120); got != "R$ 120,00" {
		t.Errorf("FormatPrice = %q", got)
	}

	block := dir.ProceduresBlock("centro")
	for _, want := range []string{"Fisioterapia Ortopédica", "R$ 120,00", "Pacote 10 sessões"} {
		if !strings.Contains(block, want) {
			t.Errorf("procedures block missing %q:\n%s", want, block)
		}
	}

	ins := dir.InsurancesBlock()
	if !strings.Contains(ins, "BRADESCO") || !strings.Contains(ins, "desconto") {
		t.Errorf("insurances block = %q", ins)
	}

	menu := dir.LocationsMenu()
	if !strings.Contains(menu, "1️⃣") || !strings.Contains(menu, "Ponta Negra") {
		t.Errorf("locations menu = %q", menu)
	}
}

type memPatientStore struct {
	byPhone map[string]*models.Patient
	saved   []*models.Patient
	appts   []*models.Appointment
}

func (m *memPatientStore) PatientByPhone(_ context.Context, phone string) (*models.Patient, error) {
	if p, ok := m.byPhone[phone]; ok {
		return p, nil
	}
	return nil, models.ErrPatientNotFound
}

func (m *memPatientStore) SavePatient(_ context.Context, p *models.Patient) error {
	m.saved = append(m.saved, p)
	return nil
}

func (m *memPatientStore) SaveAppointment(_ context.Context, a *models.Appointment) error {
	m.appts = append(m.appts, a)
	return nil
}

func TestRecordsCreateAndFind(t *testing.T) {
	st := &memPatientStore{byPhone: map[string]*models.Patient{}}
	rec := NewRecords(st)

	created, err := rec.Create(context.Background(), models.Patient{
		Name:  "Ana Souza",
		Phone: "(92) 99999-0000",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.ID == "" {
		t.Error("created patient has no id")
	}
	if created.Phone != "92999990000" {
		t.Errorf("phone not normalized: %q", created.Phone)
	}

	if _, err := rec.Create(context.Background(), models.Patient{Name: "Sem Telefone"}); err == nil {
		t.Error("accepted patient without phone")
	}

	st.byPhone["92999990000"] = created
	found, err := rec.FindByPhone(context.Background(), "+92 99999-0000")
	if err != nil {
		t.Fatalf("FindByPhone: %v", err)
	}
	if found.ID != created.ID {
		t.Errorf("found wrong patient: %+v", found)
	}

	if _, err := rec.FindByPhone(context.Background(), "000"); !errors.Is(err, models.ErrPatientNotFound) {
		t.Errorf("expected ErrPatientNotFound, got %v", err)
	}
}

func TestRecordsBookResolvesDates(t *testing.T) {
	st := &memPatientStore{byPhone: map[string]*models.Patient{}}
	// Fixed clock: Monday 2026-08-31.
	now := time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)
	rec := NewRecords(st, WithClock(func() time.Time { return now }))

	cases := map[string]string{
		"hoje":       "2026-08-31",
		"amanhã":     "2026-09-01",
		"sexta":      "2026-09-04",
		"segunda":    "2026-09-07", // same weekday rolls to next week
		"15/09/2026": "2026-09-15",
	}
	for in, want := range cases {
		appt, err := rec.Book(context.Background(), "p1", "Pilates Clínico", in, "Tarde")
		if err != nil {
			t.Fatalf("Book(%q): %v", in, err)
		}
		if got := appt.Date.Format("2006-01-02"); got != want {
			t.Errorf("Book(%q) date = %s, want %s", in, got, want)
		}
		if appt.Status != "requested" {
			t.Errorf("status = %q", appt.Status)
		}
	}

	if _, err := rec.Book(context.Background(), "p1", "x", "qualquer", "Tarde"); err == nil {
		t.Error("accepted unparseable date")
	}
	if _, err := rec.Book(context.Background(), "", "x", "hoje", ""); err == nil {
		t.Error("accepted booking without patient")
	}
}
