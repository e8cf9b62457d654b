package workflow

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/flowdesk/flowdesk/internal/clinic"
	"github.com/flowdesk/flowdesk/internal/genai"
	"github.com/flowdesk/flowdesk/internal/models"
)

type fakeAI struct {
	out   string
	err   error
	calls int
}

func (f *fakeAI) Complete(ctx context.Context, req genai.CompletionRequest) (string, error) {
	f.calls++
	return f.out, f.err
}

type fakeRecords struct {
	patients map[string]*models.Patient
	created  []models.Patient
	booked   []string
}

func newFakeRecords() *fakeRecords {
	return &fakeRecords{patients: make(map[string]*models.Patient)}
}

func (f *fakeRecords) FindByPhone(_ context.Context, phone string) (*models.Patient, error) {
	if p, ok := f.patients[phone]; ok {
		return p, nil
	}
	return nil, models.ErrPatientNotFound
}

func (f *fakeRecords) Create(_ context.Context, p models.Patient) (*models.Patient, error) {
	p.ID = fmt.Sprintf("p%d", len(f.created)+1)
	f.created = append(f.created, p)
	f.patients[p.Phone] = &p
	return &p, nil
}

func (f *fakeRecords) Book(_ context.Context, patientID, procedure, dateText, shift string) (*models.Appointment, error) {
	f.booked = append(f.booked, patientID+"|"+dateText+"|"+shift)
	return &models.Appointment{ID: "a1", PatientID: patientID}, nil
}

func newTestEngine(t *testing.T, opts ...EngineOption) *Engine {
	t.Helper()
	e, err := NewEngine(DefaultDefinition(), clinic.DefaultDirectory(), opts...)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}

func turn(t *testing.T, e *Engine, ec *models.ExecutionContext, msg string) (string, models.Signal) {
	t.Helper()
	ec.Message = msg
	reply, sig := e.Process(context.Background(), ec)
	return reply, sig
}

func newCtx() *models.ExecutionContext {
	return &models.ExecutionContext{WorkflowID: "clinic-scheduling", UserID: "5592999990000"}
}

func TestFirstTurnAutoAdvance(t *testing.T) {
	e := newTestEngine(t, WithRecords(newFakeRecords()))
	ec := newCtx()

	reply, sig := turn(t, e, ec, "oi")
	if sig != models.SignalContinue {
		t.Fatalf("signal = %v, want continue", sig)
	}
	parts := strings.Split(reply, "\n\n")
	if len(parts) < 2 {
		t.Fatalf("expected welcome and location prompt joined, got %q", reply)
	}
	if !strings.Contains(parts[0], "Bem-vindo") {
		t.Errorf("first part should be the welcome, got %q", parts[0])
	}
	if !strings.Contains(reply, "unidade") {
		t.Errorf("reply should ask for the unit, got %q", reply)
	}
	if ec.CurrentNodeID != "pick_location" {
		t.Errorf("current node = %q, want pick_location", ec.CurrentNodeID)
	}
}

func TestLocationRepromptIsSticky(t *testing.T) {
	e := newTestEngine(t, WithRecords(newFakeRecords()))
	ec := newCtx()
	turn(t, e, ec, "oi")

	for i := 0; i < 3; i++ {
		reply, _ := turn(t, e, ec, "aeroporto")
		if !strings.Contains(reply, "1") || ec.CurrentNodeID != "pick_location" {
			t.Fatalf("attempt %d: expected re-prompt at pick_location, got %q at %q", i, reply, ec.CurrentNodeID)
		}
		if ec.SelectedLocation != "" {
			t.Fatal("location set from unmatched input")
		}
	}

	turn(t, e, ec, "1")
	if ec.SelectedLocation != "centro" {
		t.Errorf("selected location = %q, want centro", ec.SelectedLocation)
	}
	if ec.CurrentNodeID != "route_service" {
		t.Errorf("current node = %q, want route_service", ec.CurrentNodeID)
	}
}

func TestMenuRoutesToHandoff(t *testing.T) {
	e := newTestEngine(t, WithRecords(newFakeRecords()))
	ec := newCtx()
	turn(t, e, ec, "oi")
	turn(t, e, ec, "1")

	reply, sig := turn(t, e, ec, "6")
	if sig != models.SignalHandoff {
		t.Fatalf("signal = %v, want handoff", sig)
	}
	if !strings.Contains(reply, "atendente") {
		t.Errorf("handoff reply = %q", reply)
	}
}

func TestMenuNumberWords(t *testing.T) {
	e := newTestEngine(t, WithRecords(newFakeRecords()))
	ec := newCtx()
	turn(t, e, ec, "oi")
	turn(t, e, ec, "dois")
	if ec.SelectedLocation != "ponta-negra" {
		t.Fatalf("selected location = %q, want ponta-negra", ec.SelectedLocation)
	}

	reply, _ := turn(t, e, ec, "um")
	if !strings.Contains(reply, "Fisioterapia") {
		t.Errorf("price lookup reply = %q", reply)
	}
	if strings.Contains(reply, "Posso ajudar") {
		t.Errorf("follow-up should wait for the next turn, got %q", reply)
	}
	if ec.CurrentNodeID != "after_topic" {
		t.Errorf("current node = %q, want after_topic remembered", ec.CurrentNodeID)
	}
}

func TestLookupStopsAndRemembersNext(t *testing.T) {
	e := newTestEngine(t, WithRecords(newFakeRecords()))
	ec := newCtx()
	turn(t, e, ec, "oi")
	turn(t, e, ec, "1")

	// The lookup result arrives on its own; the follow-up prompt is
	// deferred to the next inbound message.
	reply, _ := turn(t, e, ec, "2")
	if !strings.Contains(reply, "convênio") && !strings.Contains(reply, "Convênio") {
		t.Fatalf("insurance lookup reply = %q", reply)
	}
	if strings.Contains(reply, "Posso ajudar") {
		t.Fatalf("follow-up emitted in the same turn: %q", reply)
	}
	if ec.CurrentNodeID != "after_topic" {
		t.Fatalf("current node = %q, want after_topic", ec.CurrentNodeID)
	}

	reply, _ = turn(t, e, ec, "3")
	if !strings.Contains(reply, "Posso ajudar") {
		t.Errorf("deferred follow-up missing: %q", reply)
	}
	if !strings.Contains(reply, "📍") {
		t.Errorf("next choice should still be routed to the address card: %q", reply)
	}
}

func TestRegistrationAccumulates(t *testing.T) {
	rec := newFakeRecords()
	e := newTestEngine(t, WithRecords(rec))
	ec := newCtx()

	turn(t, e, ec, "oi")
	turn(t, e, ec, "1")
	reply, _ := turn(t, e, ec, "5") // scheduling, patient unknown
	if !strings.Contains(reply, "nome completo") {
		t.Fatalf("expected name prompt, got %q", reply)
	}

	steps := []struct {
		msg   string
		field string
		want  string
	}{
		{"ana souza", "nome", "Ana Souza"},
		{"111.444.777-35", "cpf", "111.444.777-35"},
		{"25/03/1990", "data_nascimento", "25/03/1990"},
		{"ana@example.com", "email", "ana@example.com"},
		{"sulamerica", "convenio", "SULAMÉRICA"},
	}
	seen := map[string]string{}
	histLen := len(ec.History)
	for _, st := range steps {
		turn(t, e, ec, st.msg)
		if got := ec.Collect(st.field); got != st.want {
			t.Fatalf("collected[%s] = %q, want %q", st.field, got, st.want)
		}
		// Everything collected earlier must still be there.
		seen[st.field] = st.want
		for k, v := range seen {
			if ec.Collect(k) != v {
				t.Fatalf("collected[%s] lost after collecting %s", k, st.field)
			}
		}
		if len(ec.History) <= histLen {
			t.Fatal("history did not grow")
		}
		histLen = len(ec.History)
	}

	// Phone confirmation: accept the WhatsApp number.
	reply, _ = turn(t, e, ec, "sim")
	if ec.Collect("telefone") != "5592999990000" {
		t.Fatalf("telefone = %q, want WhatsApp digits", ec.Collect("telefone"))
	}
	if len(rec.created) != 1 {
		t.Fatalf("expected one created patient, got %d", len(rec.created))
	}
	if rec.created[0].Name != "Ana Souza" || rec.created[0].Insurance != "SULAMÉRICA" {
		t.Errorf("created patient = %+v", rec.created[0])
	}
	if !strings.Contains(reply, "Ana Souza") {
		t.Errorf("registration summary should greet by name, got %q", reply)
	}
	if !strings.Contains(reply, "agendar") {
		t.Errorf("should continue into date collection, got %q", reply)
	}
}

func TestInvalidCPFIsSticky(t *testing.T) {
	e := newTestEngine(t, WithRecords(newFakeRecords()))
	ec := newCtx()
	turn(t, e, ec, "oi")
	turn(t, e, ec, "1")
	turn(t, e, ec, "5")
	turn(t, e, ec, "ana souza")

	for i := 0; i < 3; i++ {
		reply, _ := turn(t, e, ec, "123")
		if !strings.Contains(reply, "CPF inválido") {
			t.Fatalf("attempt %d: expected CPF error, got %q", i, reply)
		}
		if ec.Collect("cpf") != "" {
			t.Fatal("invalid CPF was stored")
		}
		if ec.CollectingField != "cpf" {
			t.Fatalf("collection moved off cpf: %q", ec.CollectingField)
		}
	}

	turn(t, e, ec, "11144477735")
	if ec.Collect("cpf") != "111.444.777-35" {
		t.Errorf("cpf = %q after valid input", ec.Collect("cpf"))
	}
}

func TestKnownPatientBooksDirectly(t *testing.T) {
	rec := newFakeRecords()
	rec.patients["5592999990000"] = &models.Patient{ID: "p9", Name: "Carlos Lima", Phone: "5592999990000", Insurance: "GEAP"}
	e := newTestEngine(t, WithRecords(rec))
	ec := newCtx()

	turn(t, e, ec, "oi")
	reply, _ := turn(t, e, ec, "1")
	if !strings.Contains(reply, "Carlos Lima") {
		t.Fatalf("known patient not greeted by name: %q", reply)
	}
	if !ec.PatientFound || ec.PatientID != "p9" {
		t.Fatalf("patient flags not set: %+v", ec)
	}

	reply, _ = turn(t, e, ec, "5")
	if !strings.Contains(reply, "qual dia") && !strings.Contains(reply, "Para qual dia") {
		t.Fatalf("expected date prompt, got %q", reply)
	}
	turn(t, e, ec, "amanhã")
	turn(t, e, ec, "tarde")
	reply, _ = turn(t, e, ec, "nope")
	if len(rec.booked) != 0 {
		t.Fatal("booked without confirmation")
	}
	reply, sig := turn(t, e, ec, "amanhã")
	_ = reply
	turn(t, e, ec, "tarde")
	reply, sig = turn(t, e, ec, "sim")
	if sig != models.SignalEnded {
		t.Fatalf("signal = %v, want ended", sig)
	}
	if len(rec.booked) != 1 {
		t.Fatalf("booked = %v, want one entry", rec.booked)
	}
	if rec.booked[0] != "p9|amanhã|Tarde" {
		t.Errorf("booking = %q", rec.booked[0])
	}
	if !strings.Contains(reply, "🎉") || !strings.Contains(reply, "Obrigado") {
		t.Errorf("final reply should confirm and close: %q", reply)
	}
}

func TestClassifierConfidenceGating(t *testing.T) {
	ai := &fakeAI{out: `{"intent_port": "2", "brief": "Aceitamos vários convênios, veja a lista.", "confidence": 0.3}`}
	e := newTestEngine(t, WithRecords(newFakeRecords()), WithAI(ai))
	ec := newCtx()
	turn(t, e, ec, "oi")
	turn(t, e, ec, "1")

	reply, _ := turn(t, e, ec, "vocês trabalham com planos de saúde?")
	if !strings.Contains(reply, "não entendi") && !strings.Contains(reply, "menu") {
		t.Fatalf("low confidence should re-prompt, got %q", reply)
	}
	if ec.LastTopic != "" {
		t.Errorf("topic set despite low confidence: %q", ec.LastTopic)
	}

	ai.out = `{"intent_port": "2", "brief": "Aceitamos vários convênios, veja a lista.", "confidence": 0.9}`
	reply, _ = turn(t, e, ec, "vocês trabalham com planos de saúde?")
	if !strings.Contains(reply, "convênios") {
		t.Fatalf("high confidence should answer, got %q", reply)
	}
	if ec.LastTopic != "insurance" {
		t.Errorf("topic = %q, want insurance", ec.LastTopic)
	}
}

func TestClassifierSkipsGreeting(t *testing.T) {
	ai := &fakeAI{out: `{"intent_port": "1", "brief": "x", "confidence": 0.9}`}
	e := newTestEngine(t, WithRecords(newFakeRecords()), WithAI(ai))
	ec := newCtx()
	turn(t, e, ec, "oi")
	turn(t, e, ec, "1")

	reply, _ := turn(t, e, ec, "beleza")
	if ai.calls != 0 {
		t.Errorf("greeting triggered %d model calls", ai.calls)
	}
	if reply != "" {
		t.Errorf("greeting should be skipped silently, got %q", reply)
	}
}

func TestPriceQueryResetOnGenericQuestion(t *testing.T) {
	ai := &fakeAI{out: `{"intent_port": "1", "brief": "", "confidence": 0.9}`}
	e := newTestEngine(t, WithRecords(newFakeRecords()), WithAI(ai))
	ec := newCtx()
	turn(t, e, ec, "oi")
	turn(t, e, ec, "1")

	reply, _ := turn(t, e, ec, "quanto custa o pilates?")
	if ec.LastPriceQuery != "Pilates Clínico" {
		t.Fatalf("LastPriceQuery = %q, want Pilates Clínico", ec.LastPriceQuery)
	}
	if !strings.Contains(reply, "Pilates Clínico") {
		t.Fatalf("procedure block missing: %q", reply)
	}

	// A follow-up price question that names no procedure must not reuse the
	// earlier single-procedure answer.
	reply, _ = turn(t, e, ec, "e quais os outros preços?")
	if ec.LastPriceQuery != "" {
		t.Errorf("LastPriceQuery = %q, want cleared", ec.LastPriceQuery)
	}
	if !strings.Contains(reply, "Fisioterapia") {
		t.Errorf("generic question should list all procedures, got %q", reply)
	}
}

func TestUnknownCurrentNodeEndsConversation(t *testing.T) {
	e := newTestEngine(t, WithRecords(newFakeRecords()))
	ec := newCtx()
	ec.CurrentNodeID = "deleted_node"

	_, sig := turn(t, e, ec, "oi")
	if sig != models.SignalEnded {
		t.Fatalf("signal = %v, want ended for missing node", sig)
	}
}

func TestDuplicatePromptSuppression(t *testing.T) {
	e := newTestEngine(t, WithRecords(newFakeRecords()))
	ec := newCtx()
	ec.AppendTurn(models.RoleBot, "Em qual unidade você prefere atendimento?\n\n1️⃣ Centro")

	node := e.nodes["ask_location"]
	res, err := e.execMessage(node, ec)
	if err != nil {
		t.Fatalf("execMessage: %v", err)
	}
	if res.Response != "" {
		t.Errorf("duplicate prompt re-emitted: %q", res.Response)
	}
	if !res.Stop {
		t.Error("suppressed prompt must still stop")
	}
}

func TestEngineConstructionIsPermissive(t *testing.T) {
	dir := clinic.DefaultDirectory()

	// Structural defects never fail construction; they surface when a
	// conversation actually walks into them.
	noStart := &models.Definition{ID: "x", Name: "x", Nodes: []models.WorkflowNode{
		{ID: "m", Type: models.NodeMessage},
	}}
	if _, err := NewEngine(noStart, dir); err != nil {
		t.Errorf("definition without start node failed to build: %v", err)
	}

	dup := &models.Definition{ID: "x", Name: "x", Nodes: []models.WorkflowNode{
		{ID: "start", Type: models.NodeStart},
		{ID: "start", Type: models.NodeMessage},
	}}
	if _, err := NewEngine(dup, dir); err != nil {
		t.Errorf("duplicate node ids failed to build: %v", err)
	}
}

func TestDanglingEdgeEndsAtExecutionTime(t *testing.T) {
	def := &models.Definition{ID: "x", Name: "x",
		Nodes: []models.WorkflowNode{
			{ID: "start", Type: models.NodeStart},
			{ID: "ask_nome", Type: models.NodeMessage, Content: models.NodeContent{Message: "Qual o seu nome?"}},
		},
		Edges: []models.Edge{
			{ID: "e1", Source: "start", Target: "ask_nome"},
			{ID: "e2", Source: "ask_nome", Target: "ghost"},
		},
	}
	e, err := NewEngine(def, clinic.DefaultDirectory())
	if err != nil {
		t.Fatalf("dangling edge failed to build: %v", err)
	}

	ec := newCtx()
	reply, sig := turn(t, e, ec, "oi")
	if !strings.Contains(reply, "Qual o seu nome?") {
		t.Errorf("reachable node not executed: %q", reply)
	}

	// Walking into the missing node only ends this conversation.
	_, sig = turn(t, e, ec, "qualquer coisa")
	if sig != models.SignalEnded {
		t.Errorf("signal = %v, want ended at the dangling edge", sig)
	}
}

func TestFlagConditionWithoutPortStops(t *testing.T) {
	def := &models.Definition{ID: "x", Name: "x",
		Nodes: []models.WorkflowNode{
			{ID: "start", Type: models.NodeStart},
			{ID: "gate", Type: models.NodeCondition, Content: models.NodeContent{Condition: "patientFound"}},
			{ID: "known", Type: models.NodeMessage, Content: models.NodeContent{Message: "Bem-vindo de volta!"}},
		},
		Edges: []models.Edge{
			{ID: "e1", Source: "start", Target: "gate"},
			{ID: "e2", Source: "gate", Target: "known", Port: "true"},
		},
	}
	e, err := NewEngine(def, clinic.DefaultDirectory())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	// A false flag must not fall through to the lone "true" edge.
	ec := newCtx()
	reply, sig := turn(t, e, ec, "oi")
	if sig != models.SignalContinue {
		t.Fatalf("signal = %v, want continue", sig)
	}
	if strings.Contains(reply, "Bem-vindo de volta") {
		t.Fatalf("false flag routed down the true edge: %q", reply)
	}
	if ec.CurrentNodeID != "gate" {
		t.Errorf("current node = %q, want gate", ec.CurrentNodeID)
	}

	ec2 := newCtx()
	ec2.PatientFound = true
	reply, _ = turn(t, e, ec2, "oi")
	if !strings.Contains(reply, "Bem-vindo de volta") {
		t.Errorf("true flag did not route: %q", reply)
	}
}
