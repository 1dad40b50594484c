package contracts

import "time"

// Verdict is the outcome of a single probe.
type Verdict int

const (
	Unresponsive Verdict = iota
	Responsive
)

// ProbeReq flows from the prober to a driver.
type ProbeReq struct {
	TargetIP uint32        // network byte order semantics preserved by callers
	Wait     time.Duration // probe timeout
}

// ProbeResp flows from a driver back to the prober.
type ProbeResp struct {
	TargetIP uint32
	Verdict  Verdict
	// RTT is carried for richer metrics but is never consumed by the belief
	// engine (spec.md §9 design note).
	RTT time.Duration
}

// RoundStats accumulates per-round counters. Reset at round start, flushed
// at round end.
type RoundStats struct {
	RoundID   uint64
	StartedAt time.Time

	ProbeCnt          [4]int // indexed by ProbeType
	CompletedProbeCnt [4]int
	ResponsiveProbeCnt [4]int

	UpCnt        int
	DownCnt      int
	UncertainCnt int
}

// Reset zeroes the counters for a new round, keeping the round id and start
// time assignment to the caller.
func (r *RoundStats) Reset(roundID uint64, startedAt time.Time) {
	*r = RoundStats{RoundID: roundID, StartedAt: startedAt}
}
