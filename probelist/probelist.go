// Package probelist owns the collection of /24 blocks the prober cycles
// through: loading it from a file (see parser.go), shuffling it, and
// swapping in a new generation without halting probing (see swap.go).
package probelist

import (
	"fmt"
	"sync"

	"github.com/blockwatch/prober/contracts"
)

// Probelist is an immutable-per-generation collection of /24 blocks plus
// the mutable per-/24 state the scheduler maintains across rounds. Per
// spec.md §3, the ordered key slice is shuffled once at load time and then
// walked round after round; the maps are never resized after load.
type Probelist struct {
	Version string

	order   []uint32 // shuffled /24 network keys
	blocks  map[uint32]*contracts.Slash24
	states  map[uint32]*contracts.Slash24State

	mu sync.RWMutex // guards nothing structural (order/blocks/states are
	// fixed after load); protects callers that read while the scheduler
	// iterates, matching go/core/backend_registry.go's mutex-guarded-map
	// shape even though this prober is single-writer by construction.
}

// New builds a Probelist from already-parsed blocks, assigning the given
// shuffled key order.
func New(version string, order []uint32, blocks map[uint32]*contracts.Slash24) *Probelist {
	states := make(map[uint32]*contracts.Slash24State, len(blocks))
	for k := range blocks {
		states[k] = contracts.NewSlash24State()
	}
	return &Probelist{
		Version: version,
		order:   order,
		blocks:  blocks,
		states:  states,
	}
}

// Len returns the number of /24 blocks in this generation.
func (p *Probelist) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.order)
}

// KeyAt returns the /24 network key at position i in shuffled order.
func (p *Probelist) KeyAt(i int) (uint32, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if i < 0 || i >= len(p.order) {
		return 0, fmt.Errorf("probelist: index %d out of range [0,%d)", i, len(p.order))
	}
	return p.order[i], nil
}

// Block returns the immutable Slash24 description for a network key.
func (p *Probelist) Block(key uint32) (*contracts.Slash24, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	b, ok := p.blocks[key]
	return b, ok
}

// State returns the mutable per-/24 state for a network key.
func (p *Probelist) State(key uint32) (*contracts.Slash24State, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.states[key]
	return s, ok
}

// Mask24 masks a 32-bit IP down to its /24 network key.
func Mask24(ip uint32) uint32 {
	return ip &^ 0xFF
}
