package scheduler

import (
	"github.com/blockwatch/prober/belief"
	"github.com/blockwatch/prober/contracts"
	"github.com/blockwatch/prober/probelist"
)

// HandleResponse implements spec.md §4.4's eight-step response handler.
// It is called synchronously from the scheduler's single reactor
// goroutine; the only locks it takes are Probelist's own and statusMu
// (for the counters the /status handler reads).
func (s *Scheduler) HandleResponse(resp contracts.ProbeResp) {
	s.addOutstanding(-1)

	key := probelist.Mask24(resp.TargetIP)
	pl := s.reload.Active()

	blk, ok := pl.Block(key)
	if !ok {
		s.log.Warnw("response for unknown /24, dropped", "target_ip", resp.TargetIP)
		return
	}
	st, ok := pl.State(key)
	if !ok {
		s.log.Warnw("response for unknown /24 state, dropped", "target_ip", resp.TargetIP)
		return
	}

	// 3. Stale response: no probe currently outstanding for this block.
	if st.LastProbeType == contracts.Unprobed {
		return
	}

	probeType := st.LastProbeType

	// 4. Per-round counters for the probe type that was just answered.
	s.roundStats.CompletedProbeCnt[probeType]++
	if resp.Verdict == contracts.Responsive {
		s.roundStats.ResponsiveProbeCnt[probeType]++
	}

	// 5. Belief update.
	prevState := st.CurrentState
	newBelief := belief.Update(st.CurrentBelief, blk.AEB, resp.Verdict)
	newState := belief.Classify(newBelief)

	// 6. Policy selection.
	becomingUncertain := newState == contracts.Uncertain ||
		(prevState == contracts.Up && newBelief < st.CurrentBelief) ||
		(prevState == contracts.Down && newBelief > st.CurrentBelief)

	nextProbeType := contracts.Unprobed

	switch {
	case becomingUncertain:
		if st.AdaptiveBudget > 0 {
			st.AdaptiveBudget--
			nextProbeType = contracts.Adaptive
		} else if newState != contracts.Uncertain {
			newBelief = 0.5
			newState = contracts.Uncertain
		}
	case prevState == contracts.Down && newState == contracts.Down && recoveryEligible(st.RoundsSinceUp) && st.RecoveryBudget > 0:
		st.RecoveryBudget--
		nextProbeType = contracts.Recovery
	}

	if nextProbeType != contracts.Unprobed {
		s.dispatchExtra(blk, st, nextProbeType)
	} else {
		// 7. Publish per-/24 values and adjust aggregate counters, then
		// transition state.
		s.publishBlock(blk, st, newState, newBelief)
		st.LastProbeType = contracts.Unprobed
	}

	// 8. Persist new belief regardless of branch taken.
	st.CurrentBelief = newBelief
}

// recoveryEligible matches spec.md §4.4's schedule: every round for the
// first 4, then round 8, then every multiple of 16 thereafter (the
// counter drops back to RecoveryBackoffMax after 255, see probeOne).
func recoveryEligible(roundsSinceUp int) bool {
	if roundsSinceUp <= 4 {
		return true
	}
	if roundsSinceUp == 8 {
		return true
	}
	return roundsSinceUp%16 == 0
}

// dispatchExtra queues an ADAPTIVE or RECOVERY probe to the block's
// current host, consuming the budget already decremented by the caller.
func (s *Scheduler) dispatchExtra(blk *contracts.Slash24, st *contracts.Slash24State, probeType contracts.ProbeType) {
	if len(blk.Hosts) == 0 {
		st.LastProbeType = contracts.Unprobed
		return
	}
	host := blk.Hosts[st.CurrentHost%len(blk.Hosts)]
	req := contracts.ProbeReq{
		TargetIP: blk.Network | uint32(host.Octet),
		Wait:     s.params.ProbeTimeout,
	}
	if err := s.pool.Dispatch(req); err != nil {
		s.log.Warnw("extra probe dropped, driver queue full", "network", blk.Network, "probe_type", probeType.String(), "error", err)
		st.LastProbeType = contracts.Unprobed
		return
	}
	s.addOutstanding(1)
	s.roundStats.ProbeCnt[probeType]++
	st.LastProbeType = probeType
}

// publishBlock updates per-/24 time-series values and the aggregate
// belief-state counters (global and per-tag) when a block transitions to
// UNPROBED at the end of its probe chain (spec.md §4.4 step 7).
func (s *Scheduler) publishBlock(blk *contracts.Slash24, st *contracts.Slash24State, newState contracts.BeliefState, newBelief float64) {
	oldState := st.CurrentState

	s.adjustStateCounts(oldState, newState)

	for _, tag := range blk.Tags {
		c := s.tagStateCnts[tag]
		c[oldState]--
		c[newState]++
		s.tagStateCnts[tag] = c
	}

	st.CurrentState = newState

	if s.sink != nil {
		dotted := probelist.Uint32ToIP(blk.Network)
		for _, tag := range blk.Tags {
			s.setMetric(s.names.Block(tag, dotted, "belief"), newBelief)
			s.setMetric(s.names.Block(tag, dotted, "state"), float64(newState))
		}
	}
}
