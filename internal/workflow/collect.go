package workflow

import (
	"fmt"
	"strings"

	"github.com/flowdesk/flowdesk/internal/models"
)

// phoneConfirmYes accepts the "use this number" confirmation.
const phoneConfirmYes = "sim|ok|pode|confirmo|isso|esse mesmo|claro"

// execCollect runs the single-field collection state machine. The first
// visit emits the prompt and suspends; subsequent visits validate the
// inbound message, re-prompting on failure and never advancing until a
// value is accepted.
func (e *Engine) execCollect(node models.WorkflowNode, ec *models.ExecutionContext) (models.ExecResult, error) {
	field := strings.TrimSpace(node.Content.Field)
	if field == "" {
		return models.ExecResult{Stop: true}, fmt.Errorf("data collection node %s has no field", node.ID)
	}
	phone := isPhoneField(field)

	if ec.CollectingField != field {
		ec.CollectingField = field
		prompt := node.Content.Prompt
		if prompt == "" {
			prompt = node.Content.Message
		}
		if phone {
			digits := onlyDigits(ec.UserID)
			if v := ValidatePhone(digits); v.Valid {
				ec.PhoneConfirmPending = true
				prompt = fmt.Sprintf("Posso usar este número de WhatsApp (%s) como contato? Responda *sim* ou envie outro número.", digits)
			}
		}
		rendered := e.interp.Render(prompt, ec)
		if isDuplicatePrompt(ec, rendered) {
			ec.Logf("suppressed duplicate collection prompt for " + field)
			return models.ExecResult{Stop: true}, nil
		}
		return models.ExecResult{Response: prompt, Stop: true}, nil
	}

	msg := strings.TrimSpace(ec.Message)
	if msg == "" {
		// Nothing to validate yet; keep waiting.
		return models.ExecResult{Stop: true}, nil
	}

	var value string
	if phone && ec.PhoneConfirmPending {
		if matchPattern(phoneConfirmYes, msg) {
			value = onlyDigits(ec.UserID)
		} else {
			res := ValidatePhone(msg)
			if !res.Valid {
				return e.collectionError(node, res.Error), nil
			}
			value = res.NormalizedValue
		}
		ec.PhoneConfirmPending = false
	} else {
		res := validatorFor(field)(msg)
		if !res.Valid {
			return e.collectionError(node, res.Error), nil
		}
		value = res.NormalizedValue
	}

	ec.SetCollected(field, value)
	ec.CollectingField = ""
	ec.Logf("collected " + field)

	next, found := e.next(node.ID, "main")
	if !found {
		return models.ExecResult{Stop: true}, nil
	}
	return models.ExecResult{NextNodeID: next, AutoAdvance: true}, nil
}

// collectionError keeps the conversation on the same field with either the
// node's custom error wording or the validator's message.
func (e *Engine) collectionError(node models.WorkflowNode, validatorMsg string) models.ExecResult {
	msg := node.Content.ErrorMessage
	if msg == "" {
		msg = validatorMsg
	}
	return models.ExecResult{Response: msg, Stop: true}
}

func isPhoneField(field string) bool {
	switch strings.ToLower(field) {
	case "telefone", "phone", "celular":
		return true
	}
	return false
}
