package nonstd

import (
	"sync"
	"time"

	"github.com/noah-isme/motor-valuation/internal/valuation"
)

const draftIdle = 30 * time.Minute

// draftGates holds one Recomputer per open draft so that a preview finishing
// after a newer edit of the same draft is reported as superseded.
type draftGates struct {
	mu    sync.Mutex
	gates map[string]*draftGate
}

type draftGate struct {
	gate valuation.Recomputer
	used time.Time
}

func newDraftGates() *draftGates {
	return &draftGates{gates: map[string]*draftGate{}}
}

// begin registers an edit of key and returns its gate and ticket. Gates idle
// longer than draftIdle are dropped.
func (d *draftGates) begin(key string, now time.Time) (*valuation.Recomputer, uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for k, g := range d.gates {
		if now.Sub(g.used) > draftIdle {
			delete(d.gates, k)
		}
	}
	g, ok := d.gates[key]
	if !ok {
		g = &draftGate{}
		d.gates[key] = g
	}
	g.used = now
	return &g.gate, g.gate.Begin()
}

func (d *draftGates) len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.gates)
}
