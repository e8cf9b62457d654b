package workflow

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/flowdesk/flowdesk/internal/models"
)

// execCondition routes the conversation. Three behaviors share the node
// type, selected by the condition expression:
//
//   - "location_selection" matches the inbound text against the business
//     units and routes on the unit id port;
//   - "service_menu" resolves a numeric or spelled menu choice and routes
//     on the "1".."6" ports;
//   - context flag names (patientFound, schedulingIntent, ...) route on
//     "true"/"false" without consuming the message;
//   - anything else is a pattern of |-separated alternatives matched
//     against the message.
func (e *Engine) execCondition(node models.WorkflowNode, ec *models.ExecutionContext) (models.ExecResult, error) {
	cond := strings.TrimSpace(node.Content.Condition)
	switch cond {
	case "location_selection":
		return e.condLocation(node, ec)
	case "service_menu":
		return e.condServiceMenu(node, ec)
	}
	if val, ok := flagValue(cond, ec); ok {
		return e.condFlag(node, ec, val)
	}
	return e.condPattern(node, ec, cond)
}

func (e *Engine) condLocation(node models.WorkflowNode, ec *models.ExecutionContext) (models.ExecResult, error) {
	loc, ok := e.dir.MatchLocation(ec.Message)
	if !ok {
		return e.reprompt(node, ec, "Não entendi. Pode escolher a unidade pelo número?")
	}
	ec.SelectedLocation = loc.ID
	ec.Logf("location selected: " + loc.ID)
	next, found := e.nextStrict(node.ID, loc.ID)
	if !found {
		next, found = e.next(node.ID, "true")
	}
	if !found {
		return models.ExecResult{Stop: true}, fmt.Errorf("no edge for location %q from %s", loc.ID, node.ID)
	}
	return models.ExecResult{
		Response:    node.Content.TrueMessage,
		NextNodeID:  next,
		AutoAdvance: true,
	}, nil
}

func (e *Engine) condServiceMenu(node models.WorkflowNode, ec *models.ExecutionContext) (models.ExecResult, error) {
	idx, ok := parseMenuChoice(ec.Message)
	if ok {
		if next, found := e.nextStrict(node.ID, fmt.Sprintf("%d", idx)); found {
			return models.ExecResult{NextNodeID: next, AutoAdvance: true}, nil
		}
	}
	// Free text falls through to the fallback port (usually an AI
	// classifier) when the flow wires one.
	if next, found := e.nextStrict(node.ID, "fallback"); found {
		return models.ExecResult{NextNodeID: next, AutoAdvance: true}, nil
	}
	return e.reprompt(node, ec, "Não entendi. Pode responder com o número de uma das opções?")
}

// flagValue reads a context flag by its condition-language name.
func flagValue(cond string, ec *models.ExecutionContext) (bool, bool) {
	switch cond {
	case "patientFound":
		return ec.PatientFound, true
	case "schedulingIntent":
		return ec.SchedulingIntent, true
	case "registrationDone":
		return ec.RegistrationDone, true
	case "phoneConfirmPending":
		return ec.PhoneConfirmPending, true
	}
	if field, ok := strings.CutPrefix(cond, "collected."); ok {
		return ec.Collect(field) != "", true
	}
	return false, false
}

func (e *Engine) condFlag(node models.WorkflowNode, ec *models.ExecutionContext, val bool) (models.ExecResult, error) {
	port := "false"
	if val {
		port = "true"
	}
	// Pure port selection; a missing branch stops the turn rather than
	// falling through to whichever edge happens to be wired.
	next, found := e.nextStrict(node.ID, port)
	if !found {
		ec.Logf("no " + port + " edge from " + node.ID)
		return models.ExecResult{Stop: true}, nil
	}
	return models.ExecResult{NextNodeID: next, AutoAdvance: true}, nil
}

func (e *Engine) condPattern(node models.WorkflowNode, ec *models.ExecutionContext, pattern string) (models.ExecResult, error) {
	if matchPattern(pattern, ec.Message) {
		next, found := e.next(node.ID, "true")
		if !found {
			return models.ExecResult{Stop: true}, fmt.Errorf("no true edge from %s", node.ID)
		}
		return models.ExecResult{
			Response:    node.Content.TrueMessage,
			NextNodeID:  next,
			AutoAdvance: true,
		}, nil
	}
	if next, found := e.nextStrict(node.ID, "false"); found {
		return models.ExecResult{
			Response:    node.Content.FalseMessage,
			NextNodeID:  next,
			AutoAdvance: true,
		}, nil
	}
	// No false branch: stay on this node and re-prompt until the pattern
	// matches.
	return e.reprompt(node, ec, "Não entendi. Pode responder novamente?")
}

// matchPattern tests a |-separated alternative list against the message.
// Each alternative matches on whole-message equality or on a word boundary;
// multi-word alternatives additionally match as substrings. First match
// wins. Matching never depends on history, only on the current message.
func matchPattern(pattern, message string) bool {
	msg := strings.ToLower(strings.TrimSpace(message))
	if msg == "" {
		return false
	}
	for _, alt := range strings.Split(pattern, "|") {
		alt = strings.ToLower(strings.TrimSpace(alt))
		if alt == "" {
			continue
		}
		if msg == alt {
			return true
		}
		re, err := regexp.Compile(`\b` + regexp.QuoteMeta(alt) + `\b`)
		if err == nil && re.MatchString(msg) {
			return true
		}
		if strings.Contains(alt, " ") && strings.Contains(msg, alt) {
			return true
		}
	}
	return false
}

// reprompt answers with the node's falseMessage (or a default) and keeps
// the conversation on the same node.
func (e *Engine) reprompt(node models.WorkflowNode, ec *models.ExecutionContext, fallback string) (models.ExecResult, error) {
	msg := node.Content.FalseMessage
	if msg == "" {
		msg = fallback
	}
	ec.Logf("reprompt at " + node.ID)
	return models.ExecResult{Response: msg, Stop: true}, nil
}
