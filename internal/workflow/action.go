package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/flowdesk/flowdesk/internal/models"
)

// execAction performs a record-side effect and advances. Actions never talk
// to the user directly; surrounding Message and Condition nodes carry the
// conversation.
func (e *Engine) execAction(ctx context.Context, node models.WorkflowNode, ec *models.ExecutionContext) (models.ExecResult, error) {
	if e.records == nil {
		return models.ExecResult{Stop: true}, fmt.Errorf("action node %s: record service not configured", node.ID)
	}

	var err error
	switch node.Content.Action {
	case "search_patient_by_phone":
		err = e.actionSearchPatient(ctx, ec)
	case "create_patient_profile":
		err = e.actionCreatePatient(ctx, ec)
	case "book_appointment":
		err = e.actionBookAppointment(ctx, ec)
	default:
		return models.ExecResult{Stop: true}, fmt.Errorf("unknown action %q at %s", node.Content.Action, node.ID)
	}
	if err != nil {
		return models.ExecResult{}, fmt.Errorf("action %s at %s: %w", node.Content.Action, node.ID, err)
	}

	next, found := e.next(node.ID, "main")
	if !found {
		return models.ExecResult{Stop: true}, nil
	}
	return models.ExecResult{NextNodeID: next, AutoAdvance: true}, nil
}

// actionSearchPatient resolves the conversation's phone number to an
// existing patient profile. Not finding one is a routing outcome, not an
// error.
func (e *Engine) actionSearchPatient(ctx context.Context, ec *models.ExecutionContext) error {
	p, err := e.records.FindByPhone(ctx, ec.UserID)
	if errors.Is(err, models.ErrPatientNotFound) {
		ec.PatientFound = false
		ec.Logf("patient not found by phone")
		return nil
	}
	if err != nil {
		return err
	}
	ec.PatientFound = true
	ec.PatientID = p.ID
	ec.PatientName = p.Name
	ec.PatientInsurance = p.Insurance
	ec.Logf("patient found: " + p.ID)
	return nil
}

// actionCreatePatient builds a profile from the collected registration
// fields.
func (e *Engine) actionCreatePatient(ctx context.Context, ec *models.ExecutionContext) error {
	phone := ec.Collect("telefone")
	if phone == "" {
		phone = ec.UserID
	}
	patient := models.Patient{
		Name:       ec.Collect("nome"),
		Phone:      phone,
		CPF:        ec.Collect("cpf"),
		Email:      ec.Collect("email"),
		Insurance:  ec.Collect("convenio"),
		LocationID: ec.SelectedLocation,
	}
	created, err := e.records.Create(ctx, patient)
	if err != nil {
		return err
	}
	ec.PatientID = created.ID
	ec.PatientName = created.Name
	ec.PatientInsurance = created.Insurance
	ec.PatientFound = true
	ec.RegistrationDone = true
	ec.Logf("patient created: " + created.ID)
	return nil
}

// actionBookAppointment records the appointment request from the collected
// scheduling fields.
func (e *Engine) actionBookAppointment(ctx context.Context, ec *models.ExecutionContext) error {
	procedure := ec.LastPriceQuery
	if v := ec.Collect("procedimento"); v != "" {
		procedure = v
	}
	appt, err := e.records.Book(ctx, ec.PatientID, procedure, ec.Collect("data_escolhida"), ec.Collect("turno"))
	if err != nil {
		return err
	}
	ec.Logf("appointment booked: " + appt.ID)
	return nil
}
