package transfer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/flowdesk/flowdesk/internal/models"
)

// recordingNotifier captures notifications per party.
type recordingNotifier struct {
	mu    sync.Mutex
	notes map[string][]string
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{notes: make(map[string][]string)}
}

func (n *recordingNotifier) Notify(_ context.Context, party, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notes[party] = append(n.notes[party], message)
	return nil
}

func (n *recordingNotifier) count(party string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.notes[party])
}

func TestRequestAcceptLifecycle(t *testing.T) {
	n := newRecordingNotifier()
	c := NewCoordinator(n, WithTimeout(time.Minute))
	defer c.Stop()
	ctx := context.Background()

	req, err := c.Request(ctx, "conv1", "user1", "agent1", "agendamento")
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if req.ID == "" {
		t.Error("request has no id")
	}
	if n.count("agent1") != 1 {
		t.Errorf("agent notified %d times, want 1", n.count("agent1"))
	}

	// Second request for the same conversation while one is pending.
	if _, err := c.Request(ctx, "conv1", "user1", "agent1", "x"); !errors.Is(err, models.ErrTransferPending) {
		t.Errorf("expected ErrTransferPending, got %v", err)
	}

	// Only the addressed agent may accept.
	if _, err := c.Accept(ctx, "conv1", "someone-else"); !errors.Is(err, models.ErrTransferWrongParty) {
		t.Errorf("expected ErrTransferWrongParty, got %v", err)
	}

	got, err := c.Accept(ctx, "conv1", "agent1")
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if got.ID != req.ID {
		t.Errorf("accepted wrong request: %+v", got)
	}
	if n.count("user1") != 1 {
		t.Errorf("user notified %d times on accept, want 1", n.count("user1"))
	}

	// The slot is free again.
	if _, err := c.Accept(ctx, "conv1", "agent1"); !errors.Is(err, models.ErrTransferNotFound) {
		t.Errorf("expected ErrTransferNotFound, got %v", err)
	}
	if _, ok := c.Pending("conv1"); ok {
		t.Error("request still pending after accept")
	}

	s := c.Stats()
	if s.Requested != 2 || s.Accepted != 1 {
		t.Errorf("stats = %+v", s)
	}
}

func TestRejectAndCancelParties(t *testing.T) {
	n := newRecordingNotifier()
	c := NewCoordinator(n, WithTimeout(time.Minute))
	defer c.Stop()
	ctx := context.Background()

	if _, err := c.Request(ctx, "conv1", "user1", "agent1", "dúvida"); err != nil {
		t.Fatalf("Request: %v", err)
	}
	// The user cannot reject, and the agent cannot cancel.
	if err := c.Reject(ctx, "conv1", "user1"); !errors.Is(err, models.ErrTransferWrongParty) {
		t.Errorf("Reject by user: %v", err)
	}
	if err := c.Cancel(ctx, "conv1", "agent1"); !errors.Is(err, models.ErrTransferWrongParty) {
		t.Errorf("Cancel by agent: %v", err)
	}
	if err := c.Reject(ctx, "conv1", "agent1"); err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if n.count("user1") != 1 {
		t.Errorf("user notified %d times on reject, want 1", n.count("user1"))
	}

	if _, err := c.Request(ctx, "conv1", "user1", "agent1", "dúvida"); err != nil {
		t.Fatalf("Request after reject: %v", err)
	}
	if err := c.Cancel(ctx, "conv1", "user1"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	s := c.Stats()
	if s.Rejected != 1 || s.Cancelled != 1 {
		t.Errorf("stats = %+v", s)
	}
}

// On expiry both parties are notified exactly once, and a request resolved
// before the timer fires is never double-notified.
func TestExpiryNotifiesBothPartiesOnce(t *testing.T) {
	n := newRecordingNotifier()
	c := NewCoordinator(n, WithTimeout(20*time.Millisecond))
	defer c.Stop()
	ctx := context.Background()

	if _, err := c.Request(ctx, "conv1", "user1", "agent1", "x"); err != nil {
		t.Fatalf("Request: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for c.Stats().Expired == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if c.Stats().Expired != 1 {
		t.Fatal("request did not expire")
	}
	// agent1: initial notice + expiry notice. user1: expiry notice only.
	if got := n.count("agent1"); got != 2 {
		t.Errorf("agent notifications = %d, want 2", got)
	}
	if got := n.count("user1"); got != 1 {
		t.Errorf("user notifications = %d, want 1", got)
	}
	if _, ok := c.Pending("conv1"); ok {
		t.Error("expired request still pending")
	}

	// A new request in the same slot must not be hit by the old timer.
	if _, err := c.Request(ctx, "conv1", "user1", "agent1", "x"); err != nil {
		t.Fatalf("Request after expiry: %v", err)
	}
	if _, err := c.Accept(ctx, "conv1", "agent1"); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if c.Stats().Expired != 1 {
		t.Errorf("resolved request expired anyway: %+v", c.Stats())
	}
}

func TestStopRefusesNewRequests(t *testing.T) {
	c := NewCoordinator(newRecordingNotifier(), WithTimeout(time.Minute))
	c.Stop()
	if _, err := c.Request(context.Background(), "conv1", "u", "a", "x"); !errors.Is(err, models.ErrServiceStopped) {
		t.Errorf("expected ErrServiceStopped, got %v", err)
	}
}
