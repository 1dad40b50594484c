package probelist

import (
	"sort"

	"gonum.org/v1/gonum/stat"
)

// AEBSummary returns the mean and median aeb across all blocks in this
// generation, used only for the one-line post-load log summary
// (SPEC_FULL.md §4.6 expansion). Grounded on pkg/probe/probe.go's
// stat.Quantile(0.5, stat.Empirical, ...) median pattern.
func (p *Probelist) AEBSummary() (mean, median float64) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if len(p.blocks) == 0 {
		return 0, 0
	}
	vals := make([]float64, 0, len(p.blocks))
	for _, b := range p.blocks {
		vals = append(vals, b.AEB)
	}
	sort.Float64s(vals)
	mean = stat.Mean(vals, nil)
	median = stat.Quantile(0.5, stat.Empirical, vals, nil)
	return mean, median
}
