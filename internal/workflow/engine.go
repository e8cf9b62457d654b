// Package workflow implements the conversational workflow engine: a
// node/edge graph interpreter that drives multi-turn chats through message
// emission, branching, data collection, AI classification, lookups and
// human hand-off.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/flowdesk/flowdesk/internal/clinic"
	"github.com/flowdesk/flowdesk/internal/genai"
	"github.com/flowdesk/flowdesk/internal/models"
)

const (
	// DefaultMaxChain caps consecutive auto-advance hops in one turn. A
	// well-formed flow stops long before this; the cap turns a miswired
	// cycle into a bounded turn instead of a hang.
	DefaultMaxChain = 32

	// DefaultConfidenceThreshold is the minimum classifier confidence
	// accepted before falling back to the re-prompt path.
	DefaultConfidenceThreshold = 0.5

	// apologyMessage is emitted when a turn fails irrecoverably.
	apologyMessage = "Desculpe, ocorreu um erro. Pode tentar novamente?"
)

// recordsService is the slice of the patient record layer the engine needs.
type recordsService interface {
	FindByPhone(ctx context.Context, phone string) (*models.Patient, error)
	Create(ctx context.Context, p models.Patient) (*models.Patient, error)
	Book(ctx context.Context, patientID, procedure, dateText, shift string) (*models.Appointment, error)
}

// Engine executes one workflow definition. It is stateless across turns:
// all conversation state lives in the ExecutionContext passed to Process.
// Safe for concurrent use once built.
type Engine struct {
	def     *models.Definition
	nodes   map[string]models.WorkflowNode
	conns   models.ConnectionMap
	startID string

	dir       *clinic.Directory
	records   recordsService
	ai        genai.ClientInterface
	interp    *Interpolator
	threshold float64
	maxChain  int
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithAI wires the completion client used by AI nodes. Without it those
// nodes take their fallback paths.
func WithAI(client genai.ClientInterface) EngineOption {
	return func(e *Engine) { e.ai = client }
}

// WithRecords wires the patient record service used by Action nodes.
func WithRecords(r recordsService) EngineOption {
	return func(e *Engine) { e.records = r }
}

// WithConfidenceThreshold overrides the classifier acceptance threshold.
func WithConfidenceThreshold(v float64) EngineOption {
	return func(e *Engine) { e.threshold = v }
}

// WithMaxChain overrides the auto-advance hop cap.
func WithMaxChain(n int) EngineOption {
	return func(e *Engine) { e.maxChain = n }
}

// NewEngine builds the executable graph for a definition. Construction is
// permissive: no structural validation happens here. Dangling edges, missing
// start nodes and other graph defects surface at execution time as "no next
// node" stops, so one broken branch never takes down the whole definition.
// Authoring-time validation lives in ValidateDefinitionJSON.
func NewEngine(def *models.Definition, dir *clinic.Directory, opts ...EngineOption) (*Engine, error) {
	e := &Engine{
		def:       def,
		nodes:     make(map[string]models.WorkflowNode, len(def.Nodes)),
		conns:     make(models.ConnectionMap, len(def.Edges)),
		dir:       dir,
		interp:    NewInterpolator(dir),
		threshold: DefaultConfidenceThreshold,
		maxChain:  DefaultMaxChain,
	}
	for _, opt := range opts {
		opt(e)
	}

	for _, n := range def.Nodes {
		if n.Data != nil {
			n.Content = n.Content.Merge(*n.Data)
			n.Data = nil
		}
		e.nodes[n.ID] = n
		if n.Type == models.NodeStart && e.startID == "" {
			e.startID = n.ID
		}
	}

	for _, edge := range def.Edges {
		port := edge.Port
		cond := edge.Condition
		if edge.Data != nil {
			if port == "" {
				port = edge.Data.Port
			}
			if cond == "" {
				cond = edge.Data.Condition
			}
		}
		if port == "" {
			port = "main"
		}
		e.conns[edge.Source] = append(e.conns[edge.Source], models.Connection{
			TargetID:  edge.Target,
			Port:      port,
			Condition: cond,
		})
	}

	slog.Debug("workflow engine built", "workflow", def.ID, "nodes", len(e.nodes), "edges", len(def.Edges))
	return e, nil
}

// Definition returns the definition the engine was built from.
func (e *Engine) Definition() *models.Definition { return e.def }

// next resolves the outgoing connection for a port. It falls back to the
// "main" port and then to the first edge, so a single-exit node never needs
// explicit port labels.
func (e *Engine) next(nodeID, port string) (string, bool) {
	conns := e.conns[nodeID]
	if len(conns) == 0 {
		return "", false
	}
	for _, c := range conns {
		if c.Port == port {
			return c.TargetID, true
		}
	}
	if port != "main" {
		for _, c := range conns {
			if c.Port == "main" {
				return c.TargetID, true
			}
		}
	}
	return conns[0].TargetID, true
}

// nextStrict resolves a port without falling back to the first edge. Used
// where landing on an arbitrary branch would be worse than stopping.
func (e *Engine) nextStrict(nodeID, port string) (string, bool) {
	for _, c := range e.conns[nodeID] {
		if c.Port == port {
			return c.TargetID, true
		}
	}
	return "", false
}

// Process runs one conversation turn: it executes the current node with the
// inbound message and keeps auto-advancing until an executor stops to wait
// for the user. The reply is the interpolated concatenation of every
// response produced this turn, earliest first.
//
// Process never returns an error to the caller: failures and panics inside
// executors degrade to an apology reply, leaving the context at its last
// consistent node.
func (e *Engine) Process(ctx context.Context, ec *models.ExecutionContext) (reply string, sig models.Signal) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("workflow turn panicked", "workflow", ec.WorkflowID, "user", ec.UserID, "node", ec.CurrentNodeID, "panic", r)
			reply, sig = apologyMessage, models.SignalContinue
		}
	}()

	if strings.TrimSpace(ec.Message) != "" {
		ec.AppendTurn(models.RoleUser, ec.Message)
	}
	if ec.CurrentNodeID == "" {
		ec.CurrentNodeID = e.startID
	}

	sig = models.SignalContinue
	var parts []string
	for hops := 0; ; hops++ {
		if hops >= e.maxChain {
			slog.Warn("auto-advance cap reached", "workflow", ec.WorkflowID, "node", ec.CurrentNodeID)
			break
		}

		node, ok := e.nodes[ec.CurrentNodeID]
		if !ok {
			slog.Error("current node missing from graph", "workflow", ec.WorkflowID, "node", ec.CurrentNodeID)
			ec.Logf(fmt.Sprintf("node %s not found, stopping", ec.CurrentNodeID))
			sig = models.SignalEnded
			break
		}

		res, err := e.execute(ctx, node, ec)
		if err != nil {
			slog.Error("node execution failed", "workflow", ec.WorkflowID, "node", node.ID, "type", node.Type, "error", err)
			ec.Logf(fmt.Sprintf("node %s failed: %v", node.ID, err))
			parts = append(parts, apologyMessage)
			break
		}

		if res.Response != "" {
			parts = append(parts, e.interp.Render(res.Response, ec))
		}
		if res.NextNodeID != "" {
			ec.CurrentNodeID = res.NextNodeID
		}
		if res.Handoff {
			sig = models.SignalHandoff
			break
		}
		if node.Type == models.NodeEnd {
			sig = models.SignalEnded
			break
		}
		if res.Stop || !res.AutoAdvance {
			break
		}
	}

	reply = strings.Join(parts, "\n\n")
	if reply != "" {
		ec.AppendTurn(models.RoleBot, reply)
	}
	return reply, sig
}

// execute dispatches one node to its executor.
func (e *Engine) execute(ctx context.Context, node models.WorkflowNode, ec *models.ExecutionContext) (models.ExecResult, error) {
	switch node.Type {
	case models.NodeStart:
		return e.execStart(node, ec)
	case models.NodeMessage:
		return e.execMessage(node, ec)
	case models.NodeCondition:
		return e.execCondition(node, ec)
	case models.NodeDataCollection:
		return e.execCollect(node, ec)
	case models.NodeAIClassify:
		return e.execClassify(ctx, node, ec)
	case models.NodeAIGenerate:
		return e.execGenerate(ctx, node, ec)
	case models.NodeExternalLookup:
		return e.execLookup(node, ec)
	case models.NodeAction:
		return e.execAction(ctx, node, ec)
	case models.NodeTransferHuman:
		return e.execTransfer(node, ec)
	case models.NodeEnd:
		return e.execEnd(node, ec)
	default:
		// Unknown types stop the conversation instead of guessing.
		ec.Logf(fmt.Sprintf("unknown node type %q at %s", node.Type, node.ID))
		return models.ExecResult{Stop: true}, fmt.Errorf("%w: %q", models.ErrUnknownNodeType, node.Type)
	}
}
