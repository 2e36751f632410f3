// ABOUTME: Tests for the notification dispatcher
// ABOUTME: Covers fan-out, failure isolation, and bounded blocking on stalled peers

package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/OSama2626/chequegate/internal/registry"
	"github.com/OSama2626/chequegate/internal/store"
)

// recordingConn captures every event pushed through it.
type recordingConn struct {
	mu     sync.Mutex
	events []*Event
	err    error
}

func (c *recordingConn) SendJSON(ctx context.Context, v any) error {
	if c.err != nil {
		return c.err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, v.(*Event))
	return nil
}

func (c *recordingConn) Close() error { return nil }

func (c *recordingConn) received() []*Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Event(nil), c.events...)
}

// stalledConn blocks every send until the context expires.
type stalledConn struct{}

func (stalledConn) SendJSON(ctx context.Context, v any) error {
	<-ctx.Done()
	return ctx.Err()
}

func (stalledConn) Close() error { return nil }

func testEvent() *Event {
	return &Event{
		Type:     EventChequeReceived,
		ChequeID: "chq-1",
		Message:  "test",
		Status:   store.StatusPending,
	}
}

func TestNotifyDeliversToAllConnections(t *testing.T) {
	reg := registry.New(nil)
	c1 := &recordingConn{}
	c2 := &recordingConn{}
	reg.Register("agent-1", c1)
	reg.Register("agent-1", c2)

	d := NewDispatcher(reg, 0, nil)
	d.Notify("agent-1", testEvent())

	for i, c := range []*recordingConn{c1, c2} {
		events := c.received()
		if len(events) != 1 {
			t.Fatalf("conn %d: expected 1 event, got %d", i, len(events))
		}
		if events[0].ChequeID != "chq-1" {
			t.Errorf("conn %d: wrong cheque ID %q", i, events[0].ChequeID)
		}
	}
}

func TestNotifyNoConnectionsIsSilent(t *testing.T) {
	reg := registry.New(nil)
	d := NewDispatcher(reg, 0, nil)

	// Must not panic or block
	d.Notify("offline-agent", testEvent())
}

func TestNotifyFailureDoesNotAffectOthers(t *testing.T) {
	reg := registry.New(nil)
	bad := &recordingConn{err: errors.New("peer gone")}
	good := &recordingConn{}
	reg.Register("agent-1", bad)
	reg.Register("agent-1", good)

	d := NewDispatcher(reg, 0, nil)
	d.Notify("agent-1", testEvent())

	if len(good.received()) != 1 {
		t.Error("healthy connection should still receive the event")
	}
}

func TestNotifyBoundedByOneTimeout(t *testing.T) {
	reg := registry.New(nil)
	reg.Register("agent-1", stalledConn{})
	reg.Register("agent-1", stalledConn{})
	reg.Register("agent-1", stalledConn{})

	timeout := 50 * time.Millisecond
	d := NewDispatcher(reg, timeout, nil)

	start := time.Now()
	d.Notify("agent-1", testEvent())
	elapsed := time.Since(start)

	// Three stalled peers, but sends run concurrently: the call should be
	// bounded by roughly one timeout, not three.
	if elapsed > 3*timeout {
		t.Errorf("Notify took %v, expected about %v", elapsed, timeout)
	}
}

func TestNotifyTargetsOnlyTheNamedAgent(t *testing.T) {
	reg := registry.New(nil)
	mine := &recordingConn{}
	other := &recordingConn{}
	reg.Register("agent-1", mine)
	reg.Register("agent-2", other)

	d := NewDispatcher(reg, 0, nil)
	d.Notify("agent-1", testEvent())

	if len(mine.received()) != 1 {
		t.Error("target agent should receive the event")
	}
	if len(other.received()) != 0 {
		t.Error("other agents must not receive the event")
	}
}
