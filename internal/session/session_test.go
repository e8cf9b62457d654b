package session

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/flowdesk/flowdesk/internal/models"
)

// fakeClock is a settable clock shared with the manager under test.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestManager(t *testing.T) (*Manager, *fakeClock, *[]string, *[]string) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 8, 31, 8, 0, 0, 0, time.UTC)}
	var released, warned []string
	var mu sync.Mutex
	m := NewManager(
		func(id string) {
			mu.Lock()
			released = append(released, id)
			mu.Unlock()
		},
		WithClock(clock.Now),
		WithMaxIdle(24*time.Hour),
		WithWarningWindow(time.Hour),
		WithWarnFunc(func(id string, _ time.Duration) {
			mu.Lock()
			warned = append(warned, id)
			mu.Unlock()
		}),
	)
	t.Cleanup(m.Stop)
	return m, clock, &released, &warned
}

func TestSweepExpiresIdleSessions(t *testing.T) {
	m, clock, released, _ := newTestManager(t)

	m.Touch("conv1")
	m.Touch("conv2")
	clock.Advance(2 * time.Hour)
	m.Touch("conv2") // conv2 stays active

	clock.Advance(23 * time.Hour) // conv1 idle 25h, conv2 idle 23h
	m.Sweep()

	if len(*released) != 1 || (*released)[0] != "conv1" {
		t.Fatalf("released = %v, want [conv1]", *released)
	}
	s := m.Stats()
	if s.Active != 1 || s.Expired != 1 {
		t.Errorf("stats = %+v", s)
	}
}

func TestWarningFiresOncePerWindow(t *testing.T) {
	m, clock, released, warned := newTestManager(t)

	m.Touch("conv1")
	clock.Advance(23*time.Hour + 30*time.Minute) // 30m remaining
	m.Sweep()
	m.Sweep() // second sweep must not warn again

	if len(*warned) != 1 || (*warned)[0] != "conv1" {
		t.Fatalf("warned = %v, want one warning for conv1", *warned)
	}
	if len(*released) != 0 {
		t.Fatalf("released prematurely: %v", *released)
	}

	// Activity inside the warning window extends the session and re-arms
	// the warning.
	m.Touch("conv1")
	clock.Advance(23 * time.Hour)
	m.Sweep()
	if len(*released) != 0 {
		t.Fatalf("released after touch: %v", *released)
	}
	clock.Advance(30 * time.Minute)
	m.Sweep()
	if len(*warned) != 2 {
		t.Errorf("warned = %v, want a second warning after re-arm", *warned)
	}
}

func TestEndRemovesWithoutRelease(t *testing.T) {
	m, clock, released, _ := newTestManager(t)

	m.Touch("conv1")
	if err := m.End("conv1"); err != nil {
		t.Fatalf("End: %v", err)
	}
	if err := m.End("conv1"); !errors.Is(err, models.ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}

	clock.Advance(48 * time.Hour)
	m.Sweep()
	if len(*released) != 0 {
		t.Errorf("ended session released: %v", *released)
	}
}

func TestBackgroundSweeper(t *testing.T) {
	var mu sync.Mutex
	var released []string
	m := NewManager(
		func(id string) {
			mu.Lock()
			released = append(released, id)
			mu.Unlock()
		},
		WithMaxIdle(10*time.Millisecond),
		WithWarningWindow(time.Millisecond),
		WithSweepInterval(5*time.Millisecond),
	)
	defer m.Stop()

	m.Touch("conv1")
	m.Start()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(released)
		mu.Unlock()
		if n > 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("background sweeper never released the idle session")
}
