// Package transfer coordinates hand-offs from the bot to human agents.
//
// A conversation may have at most one pending transfer request. Each request
// carries a one-shot expiry timer; on expiry both parties are notified
// exactly once and the slot is freed.
package transfer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flowdesk/flowdesk/internal/models"
)

// DefaultTimeout is how long a transfer request waits for the agent.
const DefaultTimeout = 30 * time.Second

// Notifier delivers coordinator notices to a party (a phone number or agent
// handle). Implementations must be safe for concurrent use.
type Notifier interface {
	Notify(ctx context.Context, party, message string) error
}

// Request is one pending or resolved hand-off request.
type Request struct {
	ID             string
	ConversationID string
	From           string // the user being handed off
	To             string // the agent asked to take over
	Reason         string
	CreatedAt      time.Time
}

// Stats counts coordinator outcomes since start.
type Stats struct {
	Requested uint64
	Accepted  uint64
	Rejected  uint64
	Cancelled uint64
	Expired   uint64
}

type pendingTransfer struct {
	req   Request
	timer *time.Timer
}

// Coordinator tracks pending transfer requests per conversation.
type Coordinator struct {
	mu       sync.Mutex
	pending  map[string]*pendingTransfer
	notifier Notifier
	timeout  time.Duration
	stats    Stats
	stopped  bool
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithTimeout overrides the request expiry window.
func WithTimeout(d time.Duration) Option {
	return func(c *Coordinator) { c.timeout = d }
}

// NewCoordinator builds a Coordinator delivering notices through notifier.
func NewCoordinator(notifier Notifier, opts ...Option) *Coordinator {
	c := &Coordinator{
		pending:  make(map[string]*pendingTransfer),
		notifier: notifier,
		timeout:  DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Request opens a hand-off request for a conversation. Returns
// models.ErrTransferPending when one is already waiting.
func (c *Coordinator) Request(ctx context.Context, conversationID, from, to, reason string) (Request, error) {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return Request{}, models.ErrServiceStopped
	}
	if _, exists := c.pending[conversationID]; exists {
		c.mu.Unlock()
		return Request{}, models.ErrTransferPending
	}
	req := Request{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		From:           from,
		To:             to,
		Reason:         reason,
		CreatedAt:      time.Now().UTC(),
	}
	id := req.ID
	p := &pendingTransfer{req: req}
	p.timer = time.AfterFunc(c.timeout, func() { c.expire(conversationID, id) })
	c.pending[conversationID] = p
	c.stats.Requested++
	c.mu.Unlock()

	slog.Info("transfer requested", "conversation", conversationID, "request_id", req.ID, "to", to)
	if err := c.notifier.Notify(ctx, to, fmt.Sprintf("Novo atendimento aguardando: %s (%s). Responda *aceitar* ou *recusar*.", from, reason)); err != nil {
		slog.Error("transfer notify failed", "conversation", conversationID, "error", err)
	}
	return req, nil
}

// Accept resolves the pending request in favor of the agent. Only the party
// the request was addressed to may accept it.
func (c *Coordinator) Accept(ctx context.Context, conversationID, party string) (Request, error) {
	req, err := c.resolve(conversationID, party, func(r Request) string { return r.To }, &c.stats.Accepted)
	if err != nil {
		return Request{}, err
	}
	slog.Info("transfer accepted", "conversation", conversationID, "request_id", req.ID)
	if err := c.notifier.Notify(ctx, req.From, "Você está sendo atendido por um de nossos atendentes. 🧑‍💼"); err != nil {
		slog.Error("transfer notify failed", "conversation", conversationID, "error", err)
	}
	return req, nil
}

// Reject declines the pending request. Only the addressed agent may reject.
func (c *Coordinator) Reject(ctx context.Context, conversationID, party string) error {
	req, err := c.resolve(conversationID, party, func(r Request) string { return r.To }, &c.stats.Rejected)
	if err != nil {
		return err
	}
	slog.Info("transfer rejected", "conversation", conversationID, "request_id", req.ID)
	if err := c.notifier.Notify(ctx, req.From, "No momento nossos atendentes estão ocupados. Pode continuar comigo ou tentar novamente mais tarde."); err != nil {
		slog.Error("transfer notify failed", "conversation", conversationID, "error", err)
	}
	return nil
}

// Cancel withdraws the pending request. Only the requesting user may cancel.
func (c *Coordinator) Cancel(ctx context.Context, conversationID, party string) error {
	req, err := c.resolve(conversationID, party, func(r Request) string { return r.From }, &c.stats.Cancelled)
	if err != nil {
		return err
	}
	slog.Info("transfer cancelled", "conversation", conversationID, "request_id", req.ID)
	if err := c.notifier.Notify(ctx, req.To, "A solicitação de atendimento foi cancelada pelo cliente."); err != nil {
		slog.Error("transfer notify failed", "conversation", conversationID, "error", err)
	}
	return nil
}

// resolve removes the pending request after checking the acting party, and
// stops its timer so expiry can no longer fire.
func (c *Coordinator) resolve(conversationID, party string, owner func(Request) string, counter *uint64) (Request, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.pending[conversationID]
	if !ok {
		return Request{}, models.ErrTransferNotFound
	}
	if owner(p.req) != party {
		return Request{}, models.ErrTransferWrongParty
	}
	p.timer.Stop()
	delete(c.pending, conversationID)
	*counter++
	return p.req, nil
}

// expire fires from the request's timer. The request id guard makes expiry
// a no-op when the slot was resolved and reused in the meantime, so each
// request notifies at most once.
func (c *Coordinator) expire(conversationID, requestID string) {
	c.mu.Lock()
	p, ok := c.pending[conversationID]
	if !ok || p.req.ID != requestID {
		c.mu.Unlock()
		return
	}
	delete(c.pending, conversationID)
	c.stats.Expired++
	req := p.req
	c.mu.Unlock()

	slog.Warn("transfer expired", "conversation", conversationID, "request_id", requestID)
	ctx := context.Background()
	if err := c.notifier.Notify(ctx, req.From, "Nossos atendentes não estão disponíveis agora. Pode continuar comigo ou tentar novamente mais tarde."); err != nil {
		slog.Error("transfer notify failed", "conversation", conversationID, "error", err)
	}
	if err := c.notifier.Notify(ctx, req.To, fmt.Sprintf("A solicitação de atendimento de %s expirou.", req.From)); err != nil {
		slog.Error("transfer notify failed", "conversation", conversationID, "error", err)
	}
}

// Pending returns the open request for a conversation, if any.
func (c *Coordinator) Pending(conversationID string) (Request, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.pending[conversationID]
	if !ok {
		return Request{}, false
	}
	return p.req, true
}

// Stats returns a snapshot of the outcome counters.
func (c *Coordinator) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Stop cancels every pending timer and refuses new requests.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
	for id, p := range c.pending {
		p.timer.Stop()
		delete(c.pending, id)
	}
}
