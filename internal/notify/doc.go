// Package notify pushes cheque events to agents' live connections.
//
// Delivery is best effort. A send failure on one connection does not stop
// delivery to the agent's others, is never retried, and never surfaces to
// the routing transition that triggered it. Each send carries a short
// bounded timeout so a stalled peer cannot hold up the dispatch loop.
package notify
