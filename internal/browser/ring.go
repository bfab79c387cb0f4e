package browser

import (
	"strings"
	"sync"

	"github.com/agentyard/agentyard/pkg/types"
)

const ringCapacity = 1000

// ring is the bounded FIFO of captured console entries. Navigation resets
// it; eviction is purely size-based.
type ring struct {
	mu      sync.Mutex
	entries []types.ConsoleEntry
	cap     int
}

func newRing(capacity int) *ring {
	if capacity <= 0 {
		capacity = ringCapacity
	}
	return &ring{cap: capacity}
}

func (r *ring) push(e types.ConsoleEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	if len(r.entries) > r.cap {
		r.entries = r.entries[len(r.entries)-r.cap:]
	}
}

func (r *ring) clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = nil
}

// list returns entries matching filter (empty matches all), optionally
// draining the ring.
func (r *ring) list(filter string, drain bool) []types.ConsoleEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []types.ConsoleEntry
	for _, e := range r.entries {
		if filter != "" && !strings.EqualFold(e.Type, filter) {
			continue
		}
		out = append(out, e)
	}
	if drain {
		r.entries = nil
	}
	return out
}

func (r *ring) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
