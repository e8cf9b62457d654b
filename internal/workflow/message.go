package workflow

import (
	"strings"

	"github.com/flowdesk/flowdesk/internal/models"
)

// execStart emits the optional welcome text and always advances.
func (e *Engine) execStart(node models.WorkflowNode, ec *models.ExecutionContext) (models.ExecResult, error) {
	next, _ := e.next(node.ID, "main")
	return models.ExecResult{
		Response:    node.Content.Message,
		NextNodeID:  next,
		AutoAdvance: true,
	}, nil
}

// execMessage emits static text. Whether the node waits for a reply is
// decided by the explicit awaitsReply field when present, otherwise by
// wording and naming heuristics kept compatible with flows authored before
// the field existed.
func (e *Engine) execMessage(node models.WorkflowNode, ec *models.ExecutionContext) (models.ExecResult, error) {
	text := node.Content.Message
	if text == "" {
		text = node.Content.Prompt
	}
	next, hasNext := e.next(node.ID, "main")
	waits := messageAwaitsReply(node, text)

	if waits && isDuplicatePrompt(ec, e.interp.Render(text, ec)) {
		// The exact question is already the last thing we said; stay put
		// silently instead of repeating it.
		ec.Logf("suppressed duplicate prompt at " + node.ID)
		return models.ExecResult{NextNodeID: next, Stop: true}, nil
	}

	if !hasNext {
		// A message without an outgoing edge behaves as a soft end.
		return models.ExecResult{Response: text, Stop: true}, nil
	}
	return models.ExecResult{
		Response:    text,
		NextNodeID:  next,
		Stop:        waits,
		AutoAdvance: !waits,
	}, nil
}

// messageAwaitsReply decides whether a Message node suspends the turn.
func messageAwaitsReply(node models.WorkflowNode, text string) bool {
	if node.Content.AwaitsReply != nil {
		return *node.Content.AwaitsReply
	}
	if strings.HasPrefix(node.ID, "ask_") || strings.HasPrefix(node.ID, "menu") {
		return true
	}
	low := strings.ToLower(text)
	for _, kw := range []string{"confirma", "está correto", "esta correto", "responda", "digite", "escolha", "qual "} {
		if strings.Contains(low, kw) {
			return true
		}
	}
	return false
}

// isDuplicatePrompt reports whether the rendered prompt was already the last
// bot turn. Comparison uses a prefix so interpolated suffixes do not defeat
// the check.
func isDuplicatePrompt(ec *models.ExecutionContext, rendered string) bool {
	last := ec.LastBotTurn()
	if last == nil {
		return false
	}
	prefix := rendered
	if runes := []rune(prefix); len(runes) > 30 {
		prefix = string(runes[:30])
	}
	return prefix != "" && strings.Contains(last.Content, prefix)
}

// execTransfer emits the hand-off notice and signals the caller to move the
// conversation to a human.
func (e *Engine) execTransfer(node models.WorkflowNode, ec *models.ExecutionContext) (models.ExecResult, error) {
	msg := node.Content.Message
	if msg == "" {
		msg = "Um momento, vou transferir você para um de nossos atendentes. 🧑‍💼"
	}
	ec.Logf("handoff requested at " + node.ID)
	return models.ExecResult{Response: msg, Handoff: true, Stop: true}, nil
}

// execEnd emits the farewell and terminates the flow.
func (e *Engine) execEnd(node models.WorkflowNode, ec *models.ExecutionContext) (models.ExecResult, error) {
	return models.ExecResult{Response: node.Content.Message, Stop: true}, nil
}
