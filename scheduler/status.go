package scheduler

import (
	"github.com/blockwatch/prober/contracts"
	"github.com/blockwatch/prober/httpstatus"
)

// StatusSnapshot implements httpstatus.StatusProvider, giving the debug
// server a point-in-time read of the scheduler's round/reload state. It
// runs on the HTTP handler's goroutine, so roundID/outstanding/stateCounts
// — otherwise owned by the reactor goroutine — are read under statusMu.
func (s *Scheduler) StatusSnapshot() httpstatus.Snapshot {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	return httpstatus.Snapshot{
		RoundID:         s.roundID,
		ProbelistSize:   s.reload.Active().Len(),
		OutstandingReqs: s.outstanding,
		ReloadState:     s.reload.State().String(),
		Up:              s.stateCounts[contracts.Up],
		Down:            s.stateCounts[contracts.Down],
		Uncertain:       s.stateCounts[contracts.Uncertain],
	}
}
