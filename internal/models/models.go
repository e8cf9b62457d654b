// Package models defines the core data structures for flowdesk.
//
// It includes the workflow graph types (nodes, edges, definitions), the
// per-conversation execution context, and the executor result contract that
// every node executor adheres to. These types are shared across modules.
package models

import (
	"errors"
	"time"
)

// NodeType identifies the behavior of a workflow node. The set is closed;
// the engine treats unknown types as a structural failure.
type NodeType string

const (
	// NodeStart emits the welcome message and always advances.
	NodeStart NodeType = "START"
	// NodeMessage emits static (interpolated) text.
	NodeMessage NodeType = "MESSAGE"
	// NodeCondition routes on the inbound text or on context flags.
	NodeCondition NodeType = "CONDITION"
	// NodeDataCollection prompts for and validates a single field.
	NodeDataCollection NodeType = "DATA_COLLECTION"
	// NodeAIClassify maps free text to one of a fixed set of intent ports.
	NodeAIClassify NodeType = "AI_CLASSIFY"
	// NodeAIGenerate produces a free-form model response from business context.
	NodeAIGenerate NodeType = "AI_GENERATE"
	// NodeAction performs a record-side effect (patient lookup, registration,
	// appointment booking).
	NodeAction NodeType = "ACTION"
	// NodeExternalLookup resolves a named endpoint into formatted text.
	NodeExternalLookup NodeType = "EXTERNAL_LOOKUP"
	// NodeTransferHuman ends the bot's turn and requests a human hand-off.
	NodeTransferHuman NodeType = "TRANSFER_HUMAN"
	// NodeEnd terminates the conversation flow.
	NodeEnd NodeType = "END"
)

// IsValidNodeType reports whether t belongs to the closed node type set.
func IsValidNodeType(t NodeType) bool {
	switch t {
	case NodeStart, NodeMessage, NodeCondition, NodeDataCollection,
		NodeAIClassify, NodeAIGenerate, NodeAction, NodeExternalLookup,
		NodeTransferHuman, NodeEnd:
		return true
	default:
		return false
	}
}

// NodeContent holds the type-specific parameters of a node. The field set is
// closed per node type (see the definition schema); unused fields stay empty.
type NodeContent struct {
	Message      string `json:"message,omitempty"`
	Prompt       string `json:"prompt,omitempty"`
	Field        string `json:"field,omitempty"`
	Condition    string `json:"condition,omitempty"`
	TrueMessage  string `json:"trueMessage,omitempty"`
	FalseMessage string `json:"falseMessage,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
	SystemPrompt string `json:"systemPrompt,omitempty"`
	Action       string `json:"action,omitempty"`
	Endpoint     string `json:"endpoint,omitempty"`
	// AwaitsReply overrides the Message executor's stop heuristics when set.
	AwaitsReply *bool `json:"awaitsReply,omitempty"`
}

// Merge overlays non-empty fields of other onto a copy of c. Used to fold the
// legacy per-node "data" block into the canonical content map at graph build.
func (c NodeContent) Merge(other NodeContent) NodeContent {
	out := c
	if other.Message != "" {
		out.Message = other.Message
	}
	if other.Prompt != "" {
		out.Prompt = other.Prompt
	}
	if other.Field != "" {
		out.Field = other.Field
	}
	if other.Condition != "" {
		out.Condition = other.Condition
	}
	if other.TrueMessage != "" {
		out.TrueMessage = other.TrueMessage
	}
	if other.FalseMessage != "" {
		out.FalseMessage = other.FalseMessage
	}
	if other.ErrorMessage != "" {
		out.ErrorMessage = other.ErrorMessage
	}
	if other.SystemPrompt != "" {
		out.SystemPrompt = other.SystemPrompt
	}
	if other.Action != "" {
		out.Action = other.Action
	}
	if other.Endpoint != "" {
		out.Endpoint = other.Endpoint
	}
	if other.AwaitsReply != nil {
		out.AwaitsReply = other.AwaitsReply
	}
	return out
}

// WorkflowNode is one step in a conversation graph. Position carries no
// execution semantics; it exists only for the visual editor.
type WorkflowNode struct {
	ID      string      `json:"id"`
	Type    NodeType    `json:"type"`
	Label   string      `json:"label,omitempty"`
	Content NodeContent `json:"content"`
	// Data is the legacy location of node parameters; merged into Content
	// when the graph is built.
	Data     *NodeContent `json:"data,omitempty"`
	Position *Position    `json:"position,omitempty"`
}

// Position is editor layout data only.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Edge is a directed connection between two nodes. Port defaults to "main";
// condition/classification executors select outgoing edges by port.
type Edge struct {
	ID        string `json:"id,omitempty"`
	Source    string `json:"source"`
	Target    string `json:"target"`
	Port      string `json:"port,omitempty"`
	Condition string `json:"condition,omitempty"`
	// Data is the legacy location of port/condition labels.
	Data *EdgeData `json:"data,omitempty"`
}

// EdgeData is the legacy nested edge payload.
type EdgeData struct {
	Port      string `json:"port,omitempty"`
	Condition string `json:"condition,omitempty"`
}

// Connection is an edge as seen from its source node after graph build.
type Connection struct {
	TargetID  string
	Port      string
	Condition string
}

// ConnectionMap groups a graph's connections by source node id, in edge order.
type ConnectionMap map[string][]Connection

// Definition is one named workflow: its nodes plus its edges. Read-only
// during execution; many conversations may run the same definition.
type Definition struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Active      bool           `json:"active"`
	Nodes       []WorkflowNode `json:"nodes"`
	Edges       []Edge         `json:"edges"`
}

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser Role = "user"
	RoleBot  Role = "bot"
)

// Turn is a single entry in a conversation history.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ExecutionContext is the full mutable state of one conversation and the unit
// of persistence. Callers must store it verbatim between invocations.
//
// Collected accumulates values gathered by data-collection nodes. Once a key
// is set it is never removed or blanked by the engine; this invariant is
// load-bearing business logic and callers must preserve it across turns.
type ExecutionContext struct {
	WorkflowID string `json:"workflowId"`
	UserID     string `json:"userId"`
	// Message is the inbound text of the current turn only; it is not part
	// of the persisted snapshot.
	Message string `json:"-"`
	// CurrentNodeID is the single state pointer. Empty means not started or
	// terminated.
	CurrentNodeID string `json:"currentNodeId,omitempty"`
	// History is append-only; the engine never truncates it.
	History   []Turn            `json:"history,omitempty"`
	Collected map[string]string `json:"collected,omitempty"`

	// Free-form flags, additively updated by executors.
	SelectedLocation    string `json:"selectedLocation,omitempty"`
	LastTopic           string `json:"lastTopic,omitempty"`
	LastPriceQuery      string `json:"lastPriceQuery,omitempty"`
	SchedulingIntent    bool   `json:"schedulingIntent,omitempty"`
	CollectingField     string `json:"collectingField,omitempty"`
	PhoneConfirmPending bool   `json:"phoneConfirmPending,omitempty"`
	PatientFound        bool   `json:"patientFound,omitempty"`
	PatientID           string `json:"patientId,omitempty"`
	PatientName         string `json:"patientName,omitempty"`
	PatientInsurance    string `json:"patientInsurance,omitempty"`
	RegistrationDone    bool   `json:"registrationDone,omitempty"`

	// Logs is an ordered diagnostic trace; append-only, never used for
	// control flow.
	Logs []string `json:"logs,omitempty"`
}

// SetCollected writes a collected value, allocating the bag on first use.
// Existing keys may be overwritten with fresher values but never deleted.
func (ec *ExecutionContext) SetCollected(key, value string) {
	if ec.Collected == nil {
		ec.Collected = make(map[string]string)
	}
	ec.Collected[key] = value
}

// Collect returns the collected value for key, or "".
func (ec *ExecutionContext) Collect(key string) string {
	return ec.Collected[key]
}

// AppendTurn appends a turn to the conversation history.
func (ec *ExecutionContext) AppendTurn(role Role, content string) {
	ec.History = append(ec.History, Turn{Role: role, Content: content})
}

// LastBotTurn returns the most recent bot turn, or nil.
func (ec *ExecutionContext) LastBotTurn() *Turn {
	for i := len(ec.History) - 1; i >= 0; i-- {
		if ec.History[i].Role == RoleBot {
			return &ec.History[i]
		}
	}
	return nil
}

// Logf appends an entry to the diagnostic trace.
func (ec *ExecutionContext) Logf(entry string) {
	ec.Logs = append(ec.Logs, entry)
}

// ExecResult is what every node executor returns.
type ExecResult struct {
	// NextNodeID is the node to transition to, if any.
	NextNodeID string
	// Response is text to append to the outbound list and to the history.
	Response string
	// Stop suspends execution after this node until the next inbound message.
	Stop bool
	// AutoAdvance executes NextNodeID immediately within the same invocation
	// when Stop is false.
	AutoAdvance bool
	// Handoff signals the caller that the conversation should move to a
	// human. Carried on the result, not on the context.
	Handoff bool
}

// Signal tells the caller what should happen after an engine invocation.
type Signal string

const (
	// SignalContinue means the conversation keeps flowing through the bot.
	SignalContinue Signal = "continue"
	// SignalHandoff means the caller should route the conversation to a
	// human via the transfer coordinator.
	SignalHandoff Signal = "awaiting-human-handoff"
	// SignalEnded means the flow terminated (End node or structural failure).
	SignalEnded Signal = "ended"
)

// ValidationResult is returned by every field validator.
type ValidationResult struct {
	Valid           bool
	NormalizedValue string
	Error           string
}

// Patient is a business record created or matched by Action nodes.
type Patient struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Phone      string     `json:"phone"`
	CPF        string     `json:"cpf,omitempty"`
	Email      string     `json:"email,omitempty"`
	BirthDate  *time.Time `json:"birthDate,omitempty"`
	Insurance  string     `json:"insurance,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	LocationID string     `json:"locationId,omitempty"`
}

// Appointment is a scheduling record created by the book_appointment action.
type Appointment struct {
	ID        string    `json:"id"`
	PatientID string    `json:"patientId"`
	Procedure string    `json:"procedure"`
	Date      time.Time `json:"date"`
	Shift     string    `json:"shift,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// Response is an inbound message event from a messaging channel.
type Response struct {
	From string `json:"from"`
	Body string `json:"body"`
	Time int64  `json:"time"`
}

// Receipt is a delivery status event for an outbound message.
type Receipt struct {
	To     string     `json:"to"`
	Status StatusType `json:"status"`
	Time   int64      `json:"time"`
}

// StatusType enumerates delivery receipt states.
type StatusType string

const (
	StatusTypeSent      StatusType = "sent"
	StatusTypeDelivered StatusType = "delivered"
	StatusTypeRead      StatusType = "read"
)

// Error variables shared across modules for better testability.
var (
	ErrNodeNotFound        = errors.New("workflow node not found")
	ErrUnknownNodeType     = errors.New("unknown node type")
	ErrWorkflowNotFound    = errors.New("workflow definition not found")
	ErrContextNotFound     = errors.New("conversation context not found")
	ErrPatientNotFound     = errors.New("patient not found")
	ErrEmptyRecipient      = errors.New("recipient cannot be empty")
	ErrTransferPending     = errors.New("a transfer request is already pending for this conversation")
	ErrTransferNotFound    = errors.New("no active transfer request for this conversation")
	ErrTransferWrongParty  = errors.New("user is not a party of this transfer request")
	ErrSessionNotFound     = errors.New("session not found")
	ErrServiceStopped      = errors.New("messaging service is stopped")
	ErrCompletionEmpty     = errors.New("completion service returned no choices")
	ErrDefinitionInvalid   = errors.New("workflow definition failed schema validation")
	ErrMissingAPIKey       = errors.New("OPENAI_API_KEY not set")
	ErrClassifierInvalid   = errors.New("classifier returned an invalid intent port")
	ErrClassifierLowScore  = errors.New("classifier confidence below threshold")
	ErrLocationNotSelected = errors.New("no location selected for this conversation")
)
