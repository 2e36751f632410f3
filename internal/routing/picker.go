// ABOUTME: Round-robin selection over a bank's active agent roster
// ABOUTME: Keeps a per-bank cursor; the roster itself is re-read every call

package routing

import "sync"

// rrPicker spreads assignments across a bank's agents. The cursor is
// in-process only; after a restart distribution simply starts over, which
// is fine because the selection policy is a free choice as long as only
// active agents are picked.
type rrPicker struct {
	mu      sync.Mutex
	cursors map[string]int // bankID -> next index
}

// pick returns one agent from the non-empty roster, advancing the bank's
// cursor. The roster is ordered by the directory, so consecutive calls
// walk it in a stable cycle even as agents come and go.
func (p *rrPicker) pick(bankID string, agents []string) string {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cursors == nil {
		p.cursors = make(map[string]int)
	}

	i := p.cursors[bankID] % len(agents)
	p.cursors[bankID] = i + 1
	return agents[i]
}
