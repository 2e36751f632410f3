// ABOUTME: In-memory registry of live agent connections keyed by agent ID
// ABOUTME: Supports multiple simultaneous connections per agent, safe under concurrency

package registry

import (
	"context"
	"log/slog"
	"sync"

	"github.com/OSama2626/chequegate/internal/metrics"
)

// Conn is one live push channel to a connected client. SendJSON must honor
// the context deadline; implementations wrap a WebSocket or, in tests, a
// recording stub.
type Conn interface {
	SendJSON(ctx context.Context, v any) error
	Close() error
}

// Registry tracks the set of currently-live connections per agent. An
// agent may hold several at once (multiple open sessions). The mutex
// guards only the map mutation; it is never held across a send.
type Registry struct {
	mu     sync.RWMutex
	conns  map[string]map[Conn]struct{} // agentID -> set of connections
	logger *slog.Logger
}

// New creates a Registry. Pass nil logger for default.
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		conns:  make(map[string]map[Conn]struct{}),
		logger: logger.With("component", "registry"),
	}
}

// Register adds a connection under agentID. Registering the same handle
// twice is a no-op.
func (r *Registry) Register(agentID string, conn Conn) {
	r.mu.Lock()
	if _, ok := r.conns[agentID]; !ok {
		r.conns[agentID] = make(map[Conn]struct{})
	}
	r.conns[agentID][conn] = struct{}{}
	total := len(r.conns[agentID])
	r.mu.Unlock()

	metrics.LiveConnections.Inc()
	r.logger.Info("agent connected",
		"agent_id", agentID,
		"connections", total,
	)
}

// Unregister removes exactly that connection; if it was the last one for
// agentID the entry is dropped entirely. Calling it for a connection that
// was already removed is a no-op.
func (r *Registry) Unregister(agentID string, conn Conn) {
	r.mu.Lock()
	set, ok := r.conns[agentID]
	if !ok {
		r.mu.Unlock()
		return
	}
	if _, exists := set[conn]; !exists {
		r.mu.Unlock()
		return
	}
	delete(set, conn)
	if len(set) == 0 {
		delete(r.conns, agentID)
	}
	remaining := len(set)
	r.mu.Unlock()

	metrics.LiveConnections.Dec()
	r.logger.Info("agent disconnected",
		"agent_id", agentID,
		"connections", remaining,
	)
}

// ConnectionsFor returns a snapshot of the agent's live connections,
// possibly empty. The snapshot is safe to iterate while other goroutines
// register and unregister.
func (r *Registry) ConnectionsFor(agentID string) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set, ok := r.conns[agentID]
	if !ok {
		return nil
	}

	conns := make([]Conn, 0, len(set))
	for c := range set {
		conns = append(conns, c)
	}
	return conns
}

// AgentsOnline returns the number of agents with at least one connection.
func (r *Registry) AgentsOnline() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Close closes every connection and empties the registry.
func (r *Registry) Close() {
	r.mu.Lock()
	var all []Conn
	for agentID, set := range r.conns {
		for c := range set {
			all = append(all, c)
		}
		delete(r.conns, agentID)
	}
	r.mu.Unlock()

	for _, c := range all {
		_ = c.Close()
		metrics.LiveConnections.Dec()
	}

	r.logger.Debug("registry closed", "connections_closed", len(all))
}
