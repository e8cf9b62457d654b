package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/flowdesk/flowdesk/internal/genai"
	"github.com/flowdesk/flowdesk/internal/models"
)

// historyTail is how many recent turns are given to the generator model.
const historyTail = 6

// execGenerate produces a free-form grounded answer. The node suspends
// after answering so the user can follow up; the flow's edge decides where
// the follow-up lands.
func (e *Engine) execGenerate(ctx context.Context, node models.WorkflowNode, ec *models.ExecutionContext) (models.ExecResult, error) {
	next, _ := e.next(node.ID, "main")

	if e.ai == nil {
		ec.Logf("generator unavailable at " + node.ID)
		msg := node.Content.FalseMessage
		if msg == "" {
			msg = "No momento não consigo responder a essa pergunta. Posso chamar um atendente?"
		}
		return models.ExecResult{Response: msg, NextNodeID: next, Stop: true}, nil
	}

	system := node.Content.SystemPrompt
	if system == "" {
		system = "Você é um atendente virtual simpático e objetivo. Responda em português, com base apenas nos dados do negócio."
	}
	system += "\n\nDados do negócio:\n" + e.dir.PromptContext(ec.SelectedLocation)

	out, err := e.ai.Complete(ctx, genai.CompletionRequest{
		System:      system,
		User:        e.conversationTail(ec),
		Temperature: 0.7,
		MaxTokens:   300,
	})
	if err != nil {
		return models.ExecResult{}, fmt.Errorf("generate at %s: %w", node.ID, err)
	}
	return models.ExecResult{Response: out, NextNodeID: next, Stop: true}, nil
}

// conversationTail renders the last few turns (the current message is
// already the newest history entry) as the user prompt.
func (e *Engine) conversationTail(ec *models.ExecutionContext) string {
	var b strings.Builder
	turns := ec.History
	if len(turns) > historyTail {
		turns = turns[len(turns)-historyTail:]
	}
	for _, t := range turns {
		label := "Cliente"
		if t.Role == models.RoleBot {
			label = "Atendente"
		}
		fmt.Fprintf(&b, "%s: %s\n", label, t.Content)
	}
	return b.String()
}
