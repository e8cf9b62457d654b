package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/flowdesk/flowdesk/internal/genai"
	"github.com/flowdesk/flowdesk/internal/models"
)

// classification is the JSON contract the classifier model must produce.
type classification struct {
	IntentPort string  `json:"intent_port"`
	Brief      string  `json:"brief"`
	Confidence float64 `json:"confidence"`
}

// intentTopics maps classifier ports to the topic flag recorded on the
// context.
var intentTopics = map[string]string{
	"1": "price",
	"2": "insurance",
	"3": "location",
	"4": "procedure_info",
	"5": "scheduling",
	"6": "human",
}

var greetings = map[string]struct{}{
	"oi": {}, "olá": {}, "ola": {}, "hey": {}, "hi": {}, "hello": {},
	"ok": {}, "okay": {}, "beleza": {}, "bom dia": {}, "boa tarde": {}, "boa noite": {},
}

// execClassify maps free text onto one of the six intent ports using the
// completion client, with deterministic short-circuits for greetings and
// unit names so trivial messages never cost a model call.
func (e *Engine) execClassify(ctx context.Context, node models.WorkflowNode, ec *models.ExecutionContext) (models.ExecResult, error) {
	msg := strings.TrimSpace(ec.Message)
	if msg == "" {
		return models.ExecResult{Stop: true}, nil
	}

	if _, ok := greetings[strings.ToLower(msg)]; ok {
		// Bare greetings are skipped entirely; no reply, no model call.
		return models.ExecResult{Stop: true}, nil
	}
	if loc, ok := e.dir.MatchLocation(msg); ok && ec.SelectedLocation == "" {
		ec.SelectedLocation = loc.ID
		return models.ExecResult{Stop: true}, nil
	}

	if e.ai == nil {
		ec.Logf("classifier unavailable at " + node.ID)
		return e.classifyFallback(node, ec), nil
	}

	out, err := e.ai.Complete(ctx, genai.CompletionRequest{
		System:      e.classifierSystemPrompt(node, ec),
		User:        msg,
		Temperature: 0.3,
		MaxTokens:   150,
	})
	if err != nil {
		ec.Logf(fmt.Sprintf("classifier call failed: %v", err))
		return e.classifyFallback(node, ec), nil
	}

	cls, err := parseClassification(out)
	if err != nil {
		ec.Logf(fmt.Sprintf("classifier output rejected: %v", err))
		return e.classifyFallback(node, ec), nil
	}
	if cls.Confidence < e.threshold {
		ec.Logf(fmt.Sprintf("classifier confidence %.2f below threshold", cls.Confidence))
		return e.classifyFallback(node, ec), nil
	}

	topic := intentTopics[cls.IntentPort]
	ec.LastTopic = topic
	switch topic {
	case "price":
		// Overwritten on every price classification so a generic follow-up
		// question is not answered with a stale single-procedure block.
		if p, ok := e.dir.DetectProcedure(msg, ec.SelectedLocation); ok {
			ec.LastPriceQuery = p.Name
		} else {
			ec.LastPriceQuery = ""
		}
	case "scheduling":
		ec.SchedulingIntent = true
	}
	ec.Logf("classified intent " + cls.IntentPort + " (" + topic + ")")

	next, found := e.nextStrict(node.ID, cls.IntentPort)
	if !found {
		ec.Logf("no edge for intent port " + cls.IntentPort)
		return e.classifyFallback(node, ec), nil
	}

	brief := strings.TrimSpace(cls.Brief)
	if len([]rune(brief)) < 10 {
		brief = e.thinBrief(topic, ec)
	}
	return models.ExecResult{
		Response:    brief,
		NextNodeID:  next,
		AutoAdvance: true,
	}, nil
}

// classifierSystemPrompt combines the node's instructions with grounded
// business data and the output contract.
func (e *Engine) classifierSystemPrompt(node models.WorkflowNode, ec *models.ExecutionContext) string {
	var b strings.Builder
	if node.Content.SystemPrompt != "" {
		b.WriteString(node.Content.SystemPrompt)
		b.WriteString("\n\n")
	}
	b.WriteString("Dados do negócio:\n")
	b.WriteString(e.dir.PromptContext(ec.SelectedLocation))
	b.WriteString("\n\nClassifique a mensagem do cliente em uma das intenções:\n")
	b.WriteString("1 = preços e valores\n2 = convênios\n3 = endereço e unidades\n")
	b.WriteString("4 = informações sobre procedimentos\n5 = agendar ou remarcar\n6 = falar com atendente humano\n\n")
	b.WriteString(`Responda APENAS com JSON: {"intent_port": "1".."6", "brief": "resposta curta ao cliente", "confidence": 0.0-1.0}`)
	return b.String()
}

var fenceRe = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")
var portSalvageRe = regexp.MustCompile(`"intent_port"\s*:\s*"?([1-6])"?`)

// parseClassification decodes the model output, tolerating code fences and,
// as a last resort, salvaging a bare intent port from malformed JSON.
func parseClassification(out string) (classification, error) {
	raw := strings.TrimSpace(out)
	if m := fenceRe.FindStringSubmatch(raw); m != nil {
		raw = m[1]
	}
	var cls classification
	if err := json.Unmarshal([]byte(raw), &cls); err != nil {
		if m := portSalvageRe.FindStringSubmatch(raw); m != nil {
			// Port recovered but confidence lost; treat as barely confident
			// so default thresholds still accept an explicit port.
			return classification{IntentPort: m[1], Confidence: 0.5}, nil
		}
		return cls, fmt.Errorf("%w: %v", models.ErrClassifierInvalid, err)
	}
	if _, ok := intentTopics[cls.IntentPort]; !ok {
		return cls, fmt.Errorf("%w: port %q", models.ErrClassifierInvalid, cls.IntentPort)
	}
	return cls, nil
}

// classifyFallback routes to the node's fallback edge when wired, otherwise
// re-prompts on the spot.
func (e *Engine) classifyFallback(node models.WorkflowNode, ec *models.ExecutionContext) models.ExecResult {
	if next, found := e.nextStrict(node.ID, "fallback"); found {
		return models.ExecResult{NextNodeID: next, AutoAdvance: true}
	}
	return models.ExecResult{
		Response: "Desculpe, não entendi. Pode escolher uma das opções do menu?",
		Stop:     true,
	}
}

// thinBrief builds a grounded answer from directory data when the model
// returned an unusably short brief.
func (e *Engine) thinBrief(topic string, ec *models.ExecutionContext) string {
	loc, _ := e.dir.FindLocation(ec.SelectedLocation)
	switch topic {
	case "price":
		if ec.LastPriceQuery != "" {
			if p, ok := e.dir.FindProcedureByName(ec.LastPriceQuery); ok {
				return e.dir.ProcedureBlock(p, loc.ID)
			}
		}
		return e.dir.ProceduresBlock(loc.ID)
	case "insurance":
		return e.dir.InsurancesBlock()
	case "location":
		return e.dir.LocationBlock(loc)
	case "procedure_info":
		return e.dir.ProceduresBlock(loc.ID)
	case "scheduling":
		return "Vamos agendar! 😊"
	case "human":
		return "Um momento, vou chamar um atendente."
	}
	return ""
}
