package metrics

import "fmt"

// Names builds the full set of metric-name templates for a given metrics
// root and prober instance name, resolved against spec.md §6's hierarchy.
// Grounded on src/metrics.go and pkg/metrics/metrics.go's package-level
// metric-name construction, generalized into a small builder so callers
// (the scheduler, per-/24 state) don't string-format ad hoc.
type Names struct {
	Root string
	Name string
}

// RoundID returns the metric name for the current round id gauge.
func (n Names) RoundID() string {
	return fmt.Sprintf(tmplRoundID, n.Root, n.Name)
}

// RoundDuration returns the metric name for the round-duration gauge.
func (n Names) RoundDuration() string {
	return fmt.Sprintf(tmplRoundDuration, n.Root, n.Name)
}

// Probing returns the metric name for a per-probe-type counter, e.g.
// probeType="periodic", counter="probe_cnt".
func (n Names) Probing(probeType, counter string) string {
	return fmt.Sprintf(tmplProbing, n.Root, n.Name, probeType, counter)
}

// StateCnt returns the metric name for an aggregate belief-state counter,
// state one of "up", "down", "uncertain".
func (n Names) StateCnt(state string) string {
	return fmt.Sprintf(tmplStateCnt, n.Root, n.Name, state)
}

// Slash24Cnt returns the metric name for the total-blocks-in-probelist
// gauge.
func (n Names) Slash24Cnt() string {
	return fmt.Sprintf(tmplSlash24Cnt, n.Root, n.Name)
}

// Block returns the per-/24 metric name for a tag + dotted network
// address, field one of "belief" or "state".
func (n Names) Block(tag, dottedIP, field string) string {
	return fmt.Sprintf(tmplBlock, n.Root, GraphiteSafe(tag), n.Name, dottedIP, field)
}
