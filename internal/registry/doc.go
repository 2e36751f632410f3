// Package registry tracks live real-time connections per agent identity.
//
// The registry is the only in-process mutable shared structure in the
// routing core. A sync.RWMutex protects the agentID -> connection-set map;
// dispatch takes a snapshot under the read lock and performs sends outside
// it, so a stalled peer never blocks an unrelated agent's connect or
// disconnect.
package registry
