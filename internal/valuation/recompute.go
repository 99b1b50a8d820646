package valuation

import "sync"

// Recomputer keeps the most recent result of a series of recomputations that may
// finish out of order. Every edit takes a ticket from Begin; a result is only
// accepted by Commit when no later edit has begun since its ticket was issued.
type Recomputer struct {
	mu     sync.Mutex
	latest uint64
	result Result
	held   bool
}

// Begin registers a new edit and returns its ticket.
func (r *Recomputer) Begin() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.latest++
	return r.latest
}

// Commit stores res if ticket is still the latest edit. It reports whether the
// result was kept; stale results are discarded.
func (r *Recomputer) Commit(ticket uint64, res Result) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ticket != r.latest {
		return false
	}
	r.result = res
	r.held = true
	return true
}

// Current returns the last accepted result.
func (r *Recomputer) Current() (Result, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.result, r.held
}
