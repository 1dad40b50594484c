package probelist

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// ReloadState is the probelist swap state machine from spec.md §4.5:
// NONE -> SCHEDULED -> RUNNING -> DONE -> NONE.
type ReloadState int32

const (
	ReloadNone ReloadState = iota
	ReloadScheduled
	ReloadRunning
	ReloadDone
)

func (s ReloadState) String() string {
	switch s {
	case ReloadScheduled:
		return "scheduled"
	case ReloadRunning:
		return "running"
	case ReloadDone:
		return "done"
	default:
		return "none"
	}
}

// KeyResolver resolves per-/24 and per-tag metric key handles with the
// newly loaded generation before it is considered ready to swap in. It
// models the "allocates time-series key handles and resolves them with the
// backend" step of spec.md §4.5; ResolveAll may fail transiently and is
// retried forever with a 10s backoff (spec.md §7).
type KeyResolver interface {
	ResolveAll(p *Probelist) error
}

// ReloadController owns the active/inactive probelist slot pair and the
// reload state machine. Only the scheduler goroutine flips the active slot
// (at a round boundary, via Promote); Active() takes mu and may be called
// from other goroutines too (the /status handler does). Only the loader
// goroutine this controller spawns writes the inactive slot.
// Grounded on go/core/heartbeat_client.go's ticker+retry shape, generalized
// to infinite retry.
type ReloadController struct {
	log *zap.SugaredLogger

	state     atomic.Int32
	activeIdx atomic.Int32 // 0 or 1

	mu      sync.Mutex
	slots   [2]*Probelist
	pending string // path requested while a reload is in flight

	resolver KeyResolver
}

// NewReloadController creates a controller already serving the given
// initial probelist in slot 0.
func NewReloadController(initial *Probelist, resolver KeyResolver, log *zap.SugaredLogger) *ReloadController {
	c := &ReloadController{resolver: resolver, log: log}
	c.slots[0] = initial
	c.state.Store(int32(ReloadNone))
	return c
}

// Active returns the currently active probelist generation.
func (c *ReloadController) Active() *Probelist {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.slots[c.activeIdx.Load()]
}

// State returns the current reload state.
func (c *ReloadController) State() ReloadState {
	return ReloadState(c.state.Load())
}

// RequestReload schedules a reload of path. Concurrent requests while a
// reload is already in flight (!= NONE) are ignored with a warning, per
// spec.md §4.5.
func (c *ReloadController) RequestReload(path string) {
	if !c.state.CompareAndSwap(int32(ReloadNone), int32(ReloadScheduled)) {
		c.log.Warnw("reload already in progress, ignoring request", "path", path)
		return
	}
	c.mu.Lock()
	c.pending = path
	c.mu.Unlock()
}

// Tick is called by the scheduler once per slice. If a reload was
// SCHEDULED, it promotes to RUNNING and spawns the loader goroutine. It
// never blocks.
func (c *ReloadController) Tick(ctx context.Context) {
	if c.state.CompareAndSwap(int32(ReloadScheduled), int32(ReloadRunning)) {
		c.mu.Lock()
		path := c.pending
		c.mu.Unlock()
		go c.runLoader(ctx, path)
	}
}

// runLoader parses the new probelist into the inactive slot and resolves
// its metric key handles, retrying forever on failure with a 10s backoff.
// On success it marks the reload DONE; on fatal parse failure it discards
// the inactive slot and reverts to NONE (spec.md §7) without touching the
// active slot.
func (c *ReloadController) runLoader(ctx context.Context, path string) {
	newList, report, err := Load(path)
	if err != nil {
		c.log.Errorw("probelist reload failed, keeping current generation", "path", path, "error", err)
		c.state.Store(int32(ReloadNone))
		return
	}
	c.log.Infow("probelist parsed", "path", path, "version", newList.Version,
		"accepted", report.Accepted, "rejected", report.Rejected)

	if mean, median := newList.AEBSummary(); newList.Len() > 0 {
		c.log.Infow("probelist aeb summary", "mean", mean, "median", median)
	}

	if c.resolver != nil {
		bo := backoff.NewConstantBackOff(10 * time.Second)
		err := backoff.Retry(func() error {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return c.resolver.ResolveAll(newList)
		}, backoff.WithContext(bo, ctx))
		if err != nil {
			c.log.Warnw("probelist reload abandoned during key resolution", "path", path, "error", err)
			c.state.Store(int32(ReloadNone))
			return
		}
	}

	c.mu.Lock()
	inactive := 1 - c.activeIdx.Load()
	c.slots[inactive] = newList
	c.mu.Unlock()

	c.state.Store(int32(ReloadDone))
}

// Promote is called by the scheduler at a round boundary: if a reload is
// DONE, it flips the active slot and returns true. The old slot's
// resources are released (GC'd) after the flip.
func (c *ReloadController) Promote() bool {
	if !c.state.CompareAndSwap(int32(ReloadDone), int32(ReloadNone)) {
		return false
	}
	c.mu.Lock()
	old := c.activeIdx.Load()
	c.activeIdx.Store(1 - old)
	c.slots[old] = nil
	c.mu.Unlock()
	return true
}
