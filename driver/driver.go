// Package driver decouples probe dispatch from the prober: a driver is a
// long-lived worker, on its own goroutine, accepting a stream of
// contracts.ProbeReq and emitting a stream of contracts.ProbeResp in
// arbitrary order (spec.md §4.1).
package driver

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/blockwatch/prober/contracts"
)

// ErrQueueDropped is returned by QueueReq when a driver's request queue is
// full. Every Handle's request queue is a channel buffered to 4096
// requests, whichever Impl it wraps.
var ErrQueueDropped = errors.New("driver: request dropped, queue full")

// Impl is the tagged-variant vtable a concrete driver implements
// (spec.md §9's "subclassing" design note, expressed as a Go interface
// rather than inheritance). init/initThread/handleReq/destroy mirror
// original_source/lib/trinarkular_driver_interface.h one-to-one.
type Impl interface {
	// Init validates the driver's config string.
	Init(config string) error
	// InitThread spawns the worker goroutine; it must not return until the
	// worker has signaled readiness (or failed to start).
	InitThread(ctx context.Context, h *Handle) error
	// HandleReq is invoked by the worker's event loop for each queued
	// request.
	HandleReq(h *Handle, req contracts.ProbeReq)
	// Destroy releases any resources the worker owns. Called after the
	// worker goroutine has been signaled to stop and has exited.
	Destroy()
}

// Factory constructs a new, uninitialized Impl for a registered driver
// name (original_source/lib/trinarkular_driver_factory.c's name->
// constructor registry, expressed as a map of these).
type Factory func() Impl

// Handle is the per-driver header carrying the channel endpoints, a
// liveness flag, and bookkeeping the prober uses to talk to one driver
// worker. Grounded on go/core/probe_task_queue.go's mutex-guarded queue
// shape for the request side.
type Handle struct {
	Name string

	impl Impl

	reqCh  chan contracts.ProbeReq
	respCh chan contracts.ProbeResp
	termCh chan struct{}
	doneCh chan struct{}

	mu   sync.Mutex
	dead bool
}

// Create spawns the driver worker and returns only after it signals
// readiness. Fails if the worker exits during startup.
func Create(ctx context.Context, name string, impl Impl, config string) (*Handle, error) {
	if err := impl.Init(config); err != nil {
		return nil, fmt.Errorf("driver %s: init: %w", name, err)
	}

	h := &Handle{
		Name:   name,
		impl:   impl,
		reqCh:  make(chan contracts.ProbeReq, 4096),
		respCh: make(chan contracts.ProbeResp, 4096),
		termCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}

	if err := impl.InitThread(ctx, h); err != nil {
		return nil, fmt.Errorf("driver %s: init thread: %w", name, err)
	}
	return h, nil
}

// QueueReq non-blockingly enqueues a probe request. It returns
// ErrQueueDropped if the driver's bounded queue is full.
func (h *Handle) QueueReq(req contracts.ProbeReq) error {
	select {
	case h.reqCh <- req:
		return nil
	default:
		return ErrQueueDropped
	}
}

// PollChan exposes the response channel directly for use in a multi-source
// select-based reactor (the Go analogue of spec.md's recv_resp/poll_handle:
// a blocking receive is a plain `<-h.PollChan()`, a non-blocking one is the
// same channel in a select with a default case).
func (h *Handle) PollChan() <-chan contracts.ProbeResp {
	return h.respCh
}

// Dead reports whether the driver worker has exited unexpectedly.
func (h *Handle) Dead() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dead
}

// markDead flags the driver as dead; called by the worker loop on
// unexpected exit.
func (h *Handle) markDead() {
	h.mu.Lock()
	h.dead = true
	h.mu.Unlock()
}

// yieldResp is the helper a driver worker calls, from any thread it owns,
// to send a response back to the prober.
func (h *Handle) yieldResp(resp contracts.ProbeResp) {
	select {
	case h.respCh <- resp:
	case <-h.termCh:
	}
}

// requests exposes the inbound request channel to a driver's worker loop.
func (h *Handle) requests() <-chan contracts.ProbeReq { return h.reqCh }

// terminated exposes the termination channel to a driver's worker loop.
func (h *Handle) terminated() <-chan struct{} { return h.termCh }

// signalDone marks the worker loop as having exited cleanly.
func (h *Handle) signalDone() { close(h.doneCh) }

// Destroy sends a termination signal, joins the worker, and releases
// resources.
func (h *Handle) Destroy() {
	close(h.termCh)
	<-h.doneCh
	h.impl.Destroy()
	close(h.respCh)
}
