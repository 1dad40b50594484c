// Package scheduler ticks the round/slice reactor described in spec.md
// §4.3–§4.4: it paces PERIODIC probes across a round, absorbs driver
// responses, drives the per-/24 belief update and adaptive/recovery
// policy, and publishes end-of-round aggregates.
package scheduler

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/blockwatch/prober/belief"
	"github.com/blockwatch/prober/contracts"
	"github.com/blockwatch/prober/driver"
	"github.com/blockwatch/prober/metrics"
	"github.com/blockwatch/prober/probelist"
)

// Params are the round-scheduler parameters from spec.md §4.3.
type Params struct {
	RoundDuration  time.Duration
	SliceCount     int
	RoundLimit     uint64 // 0 means unlimited
	ProbeTimeout   time.Duration
	AlignStart     bool
	BackpressureAt int // multiple of slice_size outstanding probes that triggers a skip; spec default 5
}

// DefaultParams mirrors spec.md §4.3's defaults.
func DefaultParams() Params {
	return Params{
		RoundDuration:  10 * time.Minute,
		SliceCount:     60,
		RoundLimit:     0,
		ProbeTimeout:   3 * time.Second,
		AlignStart:     true,
		BackpressureAt: 5,
	}
}

// Scheduler owns the single scheduler goroutine: the reactor described in
// spec.md §5 that is the sole reader/writer of probelist iteration state,
// round-scoped counters, and the active probelist slot index. Grounded on
// go/algorithms/prequal.go's probeSchedulerLoop (ticker + select) and on
// other_examples/malbeclabs-doublezero's scheduler for the wake/flag idea,
// here expressed as the plain tickInRound/iterPos counters since our
// cadence is fixed-interval rather than per-item due times.
type Scheduler struct {
	params Params
	log    *zap.SugaredLogger

	reload *probelist.ReloadController
	pool   *driver.Pool
	sink   metrics.Sink
	names  metrics.Names
	limit  *rate.Limiter

	sliceInterval time.Duration
	sliceSize     int

	tickInRound int
	iterPos     int
	roundStats  contracts.RoundStats

	// statusMu guards roundID, outstanding, and stateCounts: the reactor
	// goroutine (this file and response.go) is their only writer, but
	// httpstatus's /status handler (status.go) reads them from a separate
	// goroutine.
	statusMu    sync.Mutex
	roundID     uint64
	outstanding int
	stateCounts [3]int

	tagStateCnts  map[string][3]int
	metricHandles map[string]metrics.Handle

	shutdown atomic.Bool
}

// New constructs a Scheduler. sink and names may be the zero value of a
// no-op sink if metrics publishing isn't wired in (e.g. tests).
func New(params Params, reload *probelist.ReloadController, pool *driver.Pool, sink metrics.Sink, names metrics.Names, log *zap.SugaredLogger) *Scheduler {
	sliceInterval := params.RoundDuration / time.Duration(params.SliceCount)
	sliceSize := sliceSizeFor(reload.Active().Len(), params.SliceCount)
	s := &Scheduler{
		params: params,
		log:    log,
		reload: reload,
		pool:   pool,
		sink:   sink,
		names:  names,
		// burst = slice_size: the full slice's worth of tokens is available
		// again by the next tick (spec.md §4.3).
		limit:         rate.NewLimiter(rate.Every(sliceInterval/time.Duration(maxInt(1, sliceSize))), maxInt(1, sliceSize)),
		sliceInterval: sliceInterval,
		sliceSize:     sliceSize,
		tagStateCnts:  make(map[string][3]int),
		metricHandles: make(map[string]metrics.Handle),
	}
	s.initAggregateCounts()
	return s
}

// sliceSizeFor computes ceil(total/sliceCount), satisfying spec.md §4.3's
// "slice_size * slice_count >= |probelist|".
func sliceSizeFor(total, sliceCount int) int {
	if sliceCount <= 0 {
		return total
	}
	return int(math.Ceil(float64(total) / float64(sliceCount)))
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// addOutstanding adjusts the in-flight probe counter under statusMu,
// clamping at zero against any HandleResponse/probeOne ordering slop.
func (s *Scheduler) addOutstanding(delta int) {
	s.statusMu.Lock()
	s.outstanding += delta
	if s.outstanding < 0 {
		s.outstanding = 0
	}
	s.statusMu.Unlock()
}

// adjustStateCounts moves one /24 from oldState's bucket to newState's,
// under statusMu.
func (s *Scheduler) adjustStateCounts(oldState, newState contracts.BeliefState) {
	s.statusMu.Lock()
	s.stateCounts[oldState]--
	s.stateCounts[newState]++
	s.statusMu.Unlock()
}

// initAggregateCounts seeds the global belief-state counters from the
// active probelist's current per-/24 states (all UNCERTAIN at first load).
func (s *Scheduler) initAggregateCounts() {
	var counts [3]int
	pl := s.reload.Active()
	for i := 0; i < pl.Len(); i++ {
		key, err := pl.KeyAt(i)
		if err != nil {
			continue
		}
		st, ok := pl.State(key)
		if !ok {
			continue
		}
		counts[st.CurrentState]++
		blk, _ := pl.Block(key)
		if blk != nil {
			for _, tag := range blk.Tags {
				c := s.tagStateCnts[tag]
				c[st.CurrentState]++
				s.tagStateCnts[tag] = c
			}
		}
	}
	s.statusMu.Lock()
	s.stateCounts = counts
	s.statusMu.Unlock()
}

// RequestShutdown flags the scheduler to exit at the next event boundary
// (spec.md §5). Safe to call from a signal handler goroutine.
func (s *Scheduler) RequestShutdown() {
	s.shutdown.Store(true)
}

// Run is the scheduler's reactor. It blocks until the context is
// cancelled, RequestShutdown is called, or round_limit is reached.
func (s *Scheduler) Run(ctx context.Context) {
	if s.params.AlignStart {
		s.sleepUntilAligned()
	}

	s.roundStats.Reset(s.roundID, s.alignedNow())

	ticker := time.NewTicker(s.sliceInterval)
	defer ticker.Stop()

	for {
		if s.shutdown.Load() {
			s.log.Infow("scheduler shutting down", "round_id", s.roundID)
			s.pool.Close()
			return
		}
		select {
		case <-ctx.Done():
			s.pool.Close()
			return
		case <-ticker.C:
			s.onTick(ctx)
		case resp, ok := <-s.pool.Responses():
			if !ok {
				continue
			}
			s.HandleResponse(resp)
		}
	}
}

// sleepUntilAligned blocks until the next multiple of round_duration on
// the wall clock, per spec.md §4.3.
func (s *Scheduler) sleepUntilAligned() {
	now := time.Now()
	next := now.Truncate(s.params.RoundDuration).Add(s.params.RoundDuration)
	time.Sleep(time.Until(next))
}

func (s *Scheduler) alignedNow() time.Time {
	return time.Now().Truncate(s.params.RoundDuration)
}

// onTick implements the four numbered steps of spec.md §4.3 for a single
// slice-interval firing.
func (s *Scheduler) onTick(ctx context.Context) {
	// 1. Promote a scheduled reload to running.
	s.reload.Tick(ctx)

	// 2. Round-boundary handling.
	if s.tickInRound == 0 {
		s.finalizeRound()

		if s.reload.State() == probelist.ReloadDone {
			s.reload.Promote()
			s.sliceSize = sliceSizeFor(s.reload.Active().Len(), s.params.SliceCount)
			s.limit.SetBurst(s.sliceSize)
			s.limit.SetLimit(rate.Every(s.sliceInterval / time.Duration(maxInt(1, s.sliceSize))))
			s.initAggregateCounts()
		}

		if s.params.RoundLimit > 0 && s.roundID >= s.params.RoundLimit {
			s.RequestShutdown()
			return
		}

		s.iterPos = 0
		s.statusMu.Lock()
		s.roundID++
		s.statusMu.Unlock()
		s.roundStats.Reset(s.roundID, s.alignedNow())
	}

	// 3. Backpressure.
	if s.outstanding > s.params.BackpressureAt*maxInt(1, s.sliceSize) {
		s.log.Warnw("backpressure, skipping slice", "outstanding", s.outstanding, "slice_size", s.sliceSize)
		s.advanceTick()
		return
	}

	// 4. Iterate up to slice_size blocks, unless this round's iteration
	// already exhausted the probelist before slice_count ticks elapsed.
	pl := s.reload.Active()
	if s.iterPos < pl.Len() {
		end := s.iterPos + s.sliceSize
		if end > pl.Len() {
			end = pl.Len()
		}
		for i := s.iterPos; i < end; i++ {
			_ = s.limit.Wait(ctx)
			s.probeOne(pl, i)
		}
		s.iterPos = end
	}

	s.advanceTick()
}

func (s *Scheduler) advanceTick() {
	s.tickInRound++
	if s.tickInRound >= s.params.SliceCount {
		s.tickInRound = 0
	}
}

// probeOne resets a block's slice-scoped budgets, advances its recovery
// backoff counter, clears any stale probe marker, and dispatches one
// PERIODIC probe (spec.md §4.3 step 4).
func (s *Scheduler) probeOne(pl *probelist.Probelist, idx int) {
	key, err := pl.KeyAt(idx)
	if err != nil {
		return
	}
	blk, ok := pl.Block(key)
	if !ok {
		return
	}
	st, ok := pl.State(key)
	if !ok {
		return
	}

	st.AdaptiveBudget = belief.AdaptiveBudgetDefault
	st.RecoveryBudget = belief.RecoveryBudget(blk.AEB)

	if st.CurrentState == contracts.Up {
		st.RoundsSinceUp = 0
	} else if st.RoundsSinceUp < 255 {
		st.RoundsSinceUp++
	} else {
		st.RoundsSinceUp = contracts.RecoveryBackoffMax
	}

	st.LastProbeType = contracts.Periodic

	if len(blk.Hosts) == 0 {
		return
	}
	host := blk.Hosts[st.CurrentHost%len(blk.Hosts)]
	req := contracts.ProbeReq{
		TargetIP: blk.Network | uint32(host.Octet),
		Wait:     s.params.ProbeTimeout,
	}
	if err := s.pool.Dispatch(req); err != nil {
		s.log.Warnw("probe dropped, driver queue full", "network", blk.Network, "error", err)
		st.LastProbeType = contracts.Unprobed
		return
	}
	s.addOutstanding(1)
	s.roundStats.ProbeCnt[contracts.Periodic]++

	st.CurrentHost = (st.CurrentHost + 1) % len(blk.Hosts)
}

// finalizeRound publishes the prior round's aggregates and flushes the
// metrics sink at the round's aligned start time (spec.md §6).
func (s *Scheduler) finalizeRound() {
	if s.sink == nil {
		return
	}
	ts := s.roundStats.StartedAt.Unix()

	s.setMetric(s.names.RoundID(), float64(s.roundStats.RoundID))
	s.setMetric(s.names.RoundDuration(), s.params.RoundDuration.Seconds())

	for _, pt := range []contracts.ProbeType{contracts.Periodic, contracts.Adaptive, contracts.Recovery} {
		s.setMetric(s.names.Probing(pt.String(), "probe_cnt"), float64(s.roundStats.ProbeCnt[pt]))
		s.setMetric(s.names.Probing(pt.String(), "completed_probe_cnt"), float64(s.roundStats.CompletedProbeCnt[pt]))
		s.setMetric(s.names.Probing(pt.String(), "responsive_probe_cnt"), float64(s.roundStats.ResponsiveProbeCnt[pt]))
	}

	s.setMetric(s.names.StateCnt("up"), float64(s.stateCounts[contracts.Up]))
	s.setMetric(s.names.StateCnt("down"), float64(s.stateCounts[contracts.Down]))
	s.setMetric(s.names.StateCnt("uncertain"), float64(s.stateCounts[contracts.Uncertain]))
	s.setMetric(s.names.Slash24Cnt(), float64(s.reload.Active().Len()))

	if err := s.sink.Flush(ts); err != nil {
		s.log.Errorw("metrics flush failed", "error", err)
	}
}

func (s *Scheduler) setMetric(name string, value float64) {
	h, ok := s.metricHandles[name]
	if !ok {
		h = s.sink.RegisterKey(name)
		s.metricHandles[name] = h
	}
	s.sink.Set(h, value)
}
