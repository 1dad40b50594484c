package driver

import (
	"context"
	"fmt"
	"sync"

	"github.com/blockwatch/prober/contracts"
)

// maxDrivers mirrors spec.md §6's CLI cap of up to 100 -D instances.
const maxDrivers = 100

// Pool dispatches probe requests round-robin across a fixed set of named
// drivers and fans their responses back in on a single channel. Grounded
// on go/core/probe_pool.go's bounded named-worker registry.
type Pool struct {
	mu      sync.Mutex
	names   []string
	handles map[string]*Handle
	next    int

	merged chan contracts.ProbeResp
}

// NewPool constructs an empty pool. Drivers are added with Add.
func NewPool() *Pool {
	return &Pool{
		handles: make(map[string]*Handle),
		merged:  make(chan contracts.ProbeResp, 4096),
	}
}

// Add creates and registers a new driver instance under name. Returns an
// error if name is already registered or the pool is at capacity.
func (p *Pool) Add(ctx context.Context, name string, impl Impl, config string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.handles[name]; exists {
		return fmt.Errorf("driver pool: duplicate driver name %q", name)
	}
	if len(p.names) >= maxDrivers {
		return fmt.Errorf("driver pool: at capacity (%d drivers)", maxDrivers)
	}

	h, err := Create(ctx, name, impl, config)
	if err != nil {
		return err
	}
	p.names = append(p.names, name)
	p.handles[name] = h

	go p.pump(h)
	return nil
}

// pump forwards one driver's responses onto the pool's merged channel
// until that driver is destroyed.
func (p *Pool) pump(h *Handle) {
	for resp := range h.PollChan() {
		p.merged <- resp
	}
}

// Len returns the number of registered drivers.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.names)
}

// Dispatch enqueues req on the next driver in round-robin order.
func (p *Pool) Dispatch(req contracts.ProbeReq) error {
	p.mu.Lock()
	if len(p.names) == 0 {
		p.mu.Unlock()
		return fmt.Errorf("driver pool: no drivers registered")
	}
	name := p.names[p.next%len(p.names)]
	p.next++
	h := p.handles[name]
	p.mu.Unlock()

	return h.QueueReq(req)
}

// Responses exposes the merged response stream from all registered
// drivers.
func (p *Pool) Responses() <-chan contracts.ProbeResp {
	return p.merged
}

// Close destroys every registered driver. It does not close the merged
// response channel, since pump goroutines exit on their own once each
// driver's PollChan is drained; callers should stop reading Responses()
// once all drivers are known destroyed.
func (p *Pool) Close() {
	p.mu.Lock()
	handles := make([]*Handle, 0, len(p.handles))
	for _, h := range p.handles {
		handles = append(handles, h)
	}
	p.mu.Unlock()

	var wg sync.WaitGroup
	for _, h := range handles {
		wg.Add(1)
		go func(h *Handle) {
			defer wg.Done()
			h.Destroy()
		}(h)
	}
	wg.Wait()
}
