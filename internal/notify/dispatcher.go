// ABOUTME: Best-effort fan-out of notification events to an agent's live connections
// ABOUTME: Bounded per-send timeout; failures are logged, never returned to the caller

package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/OSama2626/chequegate/internal/metrics"
	"github.com/OSama2626/chequegate/internal/registry"
)

// DefaultSendTimeout bounds how long one connection send may stall.
const DefaultSendTimeout = 250 * time.Millisecond

// Dispatcher delivers events to every live connection of one agent.
// Notification is a side channel: a routing transition that triggered a
// Notify never learns about delivery failures.
type Dispatcher struct {
	registry    *registry.Registry
	sendTimeout time.Duration
	logger      *slog.Logger
}

// NewDispatcher creates a Dispatcher. A non-positive timeout falls back to
// DefaultSendTimeout. Pass nil logger for default.
func NewDispatcher(reg *registry.Registry, sendTimeout time.Duration, logger *slog.Logger) *Dispatcher {
	if sendTimeout <= 0 {
		sendTimeout = DefaultSendTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		registry:    reg,
		sendTimeout: sendTimeout,
		logger:      logger.With("component", "dispatcher"),
	}
}

// Notify pushes the event to each of the agent's live connections. Each
// send gets its own bounded timeout, so one dead peer cannot delay the
// others or the caller for long. Errors are swallowed after logging.
func (d *Dispatcher) Notify(agentID string, event *Event) {
	conns := d.registry.ConnectionsFor(agentID)
	if len(conns) == 0 {
		d.logger.Debug("no live connections, notification dropped",
			"agent_id", agentID,
			"type", event.Type,
			"cheque_id", event.ChequeID,
		)
		return
	}

	// Sends run concurrently so one stalled peer bounds the whole call by
	// a single timeout instead of one per connection.
	var wg sync.WaitGroup
	for _, conn := range conns {
		wg.Add(1)
		go func(c registry.Conn) {
			defer wg.Done()

			ctx, cancel := context.WithTimeout(context.Background(), d.sendTimeout)
			defer cancel()

			if err := c.SendJSON(ctx, event); err != nil {
				metrics.NotificationsDropped.Inc()
				d.logger.Warn("notification send failed",
					"agent_id", agentID,
					"type", event.Type,
					"cheque_id", event.ChequeID,
					"error", err,
				)
				return
			}
			metrics.NotificationsSent.Inc()
		}(conn)
	}
	wg.Wait()

	d.logger.Debug("notification dispatched",
		"agent_id", agentID,
		"type", event.Type,
		"cheque_id", event.ChequeID,
		"connections", len(conns),
	)
}
