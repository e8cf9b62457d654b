package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/flowdesk/flowdesk/internal/models"
	"github.com/flowdesk/flowdesk/internal/session"
	"github.com/flowdesk/flowdesk/internal/store"
	"github.com/flowdesk/flowdesk/internal/transfer"
	"github.com/flowdesk/flowdesk/internal/workflow"
)

// User-facing notices sent by the bot outside the workflow itself.
const (
	transferCancelledMsg = "Transferência cancelada. Como posso ajudar?"
	sessionWarningMsg    = "Nossa conversa será encerrada em breve por inatividade. Envie uma mensagem para continuar."
	sessionEndedMsg      = "Conversa encerrada por inatividade. Envie uma mensagem quando quiser recomeçar. 😊"
)

// Bot consumes inbound responses from a messaging service and drives the
// workflow engine, persisting conversation state between turns. One Bot
// serves many concurrent conversations; turns within a single conversation
// are serialized by a per-conversation mutex.
type Bot struct {
	svc        Service
	store      store.Store
	engine     *workflow.Engine
	transfers  *transfer.Coordinator
	sessions   *session.Manager
	workflowID string
	attendant  string

	mu     sync.Mutex
	convMu map[string]*sync.Mutex

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// BotOption defines a configuration option for the Bot.
type BotOption func(*Bot)

// WithWorkflowID sets the workflow definition the bot runs. Defaults to the
// seeded clinic scheduling workflow.
func WithWorkflowID(id string) BotOption {
	return func(b *Bot) { b.workflowID = id }
}

// WithAttendantNumber sets the phone number of the human attendant used as
// the target of transfer requests.
func WithAttendantNumber(number string) BotOption {
	return func(b *Bot) { b.attendant = number }
}

// NewBot wires a messaging service, a store, the workflow engine and the
// transfer and session managers into a runnable bot.
func NewBot(svc Service, st store.Store, engine *workflow.Engine, transfers *transfer.Coordinator, sessions *session.Manager, opts ...BotOption) *Bot {
	b := &Bot{
		svc:        svc,
		store:      st,
		engine:     engine,
		transfers:  transfers,
		sessions:   sessions,
		workflowID: engine.Definition().ID,
		convMu:     make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Start begins consuming responses and receipts from the service.
func (b *Bot) Start(ctx context.Context) error {
	if err := b.svc.Start(ctx); err != nil {
		return fmt.Errorf("failed to start messaging service: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	b.cancel = cancel

	b.wg.Add(2)
	go b.consumeResponses(runCtx)
	go b.consumeReceipts(runCtx)

	slog.Info("Bot started", "workflow_id", b.workflowID)
	return nil
}

// Stop stops the bot and the underlying service.
func (b *Bot) Stop() error {
	if b.cancel != nil {
		b.cancel()
	}
	err := b.svc.Stop()
	b.wg.Wait()
	slog.Info("Bot stopped")
	return err
}

func (b *Bot) consumeResponses(ctx context.Context) {
	defer b.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case resp, ok := <-b.svc.Responses():
			if !ok {
				return
			}
			b.wg.Add(1)
			go func(resp models.Response) {
				defer b.wg.Done()
				if err := b.HandleResponse(ctx, resp); err != nil {
					slog.Error("Bot failed to handle response", "error", err, "from", resp.From)
				}
			}(resp)
		}
	}
}

func (b *Bot) consumeReceipts(ctx context.Context) {
	defer b.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case receipt, ok := <-b.svc.Receipts():
			if !ok {
				return
			}
			slog.Debug("Bot receipt", "to", receipt.To, "status", receipt.Status)
		}
	}
}

// HandleResponse processes one inbound message end to end: load or create
// the conversation context, run the engine, persist the updated context and
// deliver the reply. Turns for the same conversation never interleave.
func (b *Bot) HandleResponse(ctx context.Context, resp models.Response) error {
	conversationID, err := b.svc.ValidateAndCanonicalizeRecipient(resp.From)
	if err != nil {
		return fmt.Errorf("invalid sender: %w", err)
	}

	lock := b.conversationLock(conversationID)
	lock.Lock()
	defer lock.Unlock()

	if b.sessions != nil {
		b.sessions.Touch(conversationID)
	}

	// While a hand-off is pending the human side owns the conversation;
	// the only bot action the user can take is cancelling the transfer.
	if b.transfers != nil {
		if _, pending := b.transfers.Pending(conversationID); pending {
			return b.handlePendingTransfer(ctx, conversationID, resp.Body)
		}
	}

	ec, err := b.store.Context(ctx, b.workflowID, conversationID)
	if err != nil {
		if !errors.Is(err, models.ErrContextNotFound) {
			return fmt.Errorf("failed to load conversation context: %w", err)
		}
		ec = &models.ExecutionContext{WorkflowID: b.workflowID, UserID: conversationID}
	}
	ec.Message = resp.Body

	reply, sig := b.engine.Process(ctx, ec)

	switch sig {
	case models.SignalEnded:
		if err := b.store.DeleteContext(ctx, b.workflowID, conversationID); err != nil && !errors.Is(err, models.ErrContextNotFound) {
			slog.Error("Bot failed to delete ended context", "error", err, "conversation_id", conversationID)
		}
		if b.sessions != nil {
			if err := b.sessions.End(conversationID); err != nil && !errors.Is(err, models.ErrSessionNotFound) {
				slog.Error("Bot failed to end session", "error", err, "conversation_id", conversationID)
			}
		}
	case models.SignalHandoff:
		if err := b.store.SaveContext(ctx, ec); err != nil {
			return fmt.Errorf("failed to save conversation context: %w", err)
		}
		b.requestTransfer(ctx, conversationID, ec)
	default:
		if err := b.store.SaveContext(ctx, ec); err != nil {
			return fmt.Errorf("failed to save conversation context: %w", err)
		}
	}

	if reply != "" {
		if err := b.svc.SendMessage(ctx, conversationID, reply); err != nil {
			return fmt.Errorf("failed to send reply: %w", err)
		}
	}
	return nil
}

func (b *Bot) handlePendingTransfer(ctx context.Context, conversationID, body string) error {
	if strings.Contains(strings.ToLower(body), "cancelar") {
		if err := b.transfers.Cancel(ctx, conversationID, conversationID); err != nil {
			slog.Error("Bot failed to cancel transfer", "error", err, "conversation_id", conversationID)
			return nil
		}
		return b.svc.SendMessage(ctx, conversationID, transferCancelledMsg)
	}
	slog.Debug("Bot ignoring message during pending transfer", "conversation_id", conversationID)
	return nil
}

func (b *Bot) requestTransfer(ctx context.Context, conversationID string, ec *models.ExecutionContext) {
	if b.transfers == nil {
		slog.Warn("Bot handoff requested but no transfer coordinator configured", "conversation_id", conversationID)
		return
	}
	reason := "atendimento humano solicitado"
	if ec.LastTopic != "" {
		reason = "atendimento humano solicitado (assunto: " + ec.LastTopic + ")"
	}
	if _, err := b.transfers.Request(ctx, conversationID, conversationID, b.attendant, reason); err != nil {
		if errors.Is(err, models.ErrTransferPending) {
			return
		}
		slog.Error("Bot failed to request transfer", "error", err, "conversation_id", conversationID)
	}
}

// WarnConversation notifies a user that their session is about to expire.
// Wire it as the session manager's WarnFunc.
func (b *Bot) WarnConversation(conversationID string, _ time.Duration) {
	if err := b.svc.SendMessage(context.Background(), conversationID, sessionWarningMsg); err != nil {
		slog.Error("Bot failed to send session warning", "error", err, "conversation_id", conversationID)
	}
}

// ReleaseConversation drops the persisted context for an expired session and
// tells the user. Wire it as the session manager's ReleaseFunc.
func (b *Bot) ReleaseConversation(conversationID string) {
	ctx := context.Background()
	if err := b.store.DeleteContext(ctx, b.workflowID, conversationID); err != nil && !errors.Is(err, models.ErrContextNotFound) {
		slog.Error("Bot failed to delete expired context", "error", err, "conversation_id", conversationID)
	}
	if b.transfers != nil {
		if _, pending := b.transfers.Pending(conversationID); pending {
			if err := b.transfers.Cancel(ctx, conversationID, conversationID); err != nil {
				slog.Error("Bot failed to cancel transfer on expiry", "error", err, "conversation_id", conversationID)
			}
		}
	}
	if err := b.svc.SendMessage(ctx, conversationID, sessionEndedMsg); err != nil {
		slog.Error("Bot failed to send session ended notice", "error", err, "conversation_id", conversationID)
	}
}

func (b *Bot) conversationLock(conversationID string) *sync.Mutex {
	b.mu.Lock()
	defer b.mu.Unlock()
	lock, ok := b.convMu[conversationID]
	if !ok {
		lock = &sync.Mutex{}
		b.convMu[conversationID] = lock
	}
	return lock
}

// ServiceNotifier adapts a messaging Service to the transfer Notifier
// interface so coordinator notices reach users and agents over the same
// channel as the bot.
type ServiceNotifier struct {
	svc Service
}

// NewServiceNotifier wraps a messaging service as a transfer notifier.
func NewServiceNotifier(svc Service) *ServiceNotifier {
	return &ServiceNotifier{svc: svc}
}

// Notify delivers a coordinator notice to one party.
func (n *ServiceNotifier) Notify(ctx context.Context, party, message string) error {
	if party == "" {
		return nil
	}
	return n.svc.SendMessage(ctx, party, message)
}
