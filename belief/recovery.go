package belief

import "math"

// recoveryBudgetTable[i] is the recovery-probe budget for a block whose aeb
// falls in [i/100, (i+1)/100). Precomputed once at package init per
// spec.md §4.4: the smallest k such that (1-aeb)^k <= 0.2, i.e. the number
// of probes needed to reach 80% probability of at least one response if the
// block is actually up. Entries for aeb < 0.10 are disabled (-1).
var recoveryBudgetTable [100]int

const recoveryConfidence = 0.2

func init() {
	for i := range recoveryBudgetTable {
		aeb := float64(i) / 100.0
		if aeb < 0.10 {
			recoveryBudgetTable[i] = -1
			continue
		}
		recoveryBudgetTable[i] = smallestK(aeb)
	}
}

func smallestK(aeb float64) int {
	if aeb >= 1 {
		return 1
	}
	// (1-aeb)^k <= confidence  =>  k >= log(confidence) / log(1-aeb)
	k := math.Ceil(math.Log(recoveryConfidence) / math.Log(1-aeb))
	if k < 1 {
		k = 1
	}
	return int(k)
}

// RecoveryBudget returns the per-round recovery-probe budget upper bound for
// a block with the given aeb, or 0 if recovery probing is disabled for that
// aeb (aeb < 0.10).
func RecoveryBudget(aeb float64) int {
	idx := int(aeb * 100)
	if idx < 0 {
		idx = 0
	}
	if idx > 99 {
		idx = 99
	}
	v := recoveryBudgetTable[idx]
	if v < 0 {
		return 0
	}
	return v
}

// AdaptiveBudgetDefault is the fixed per-slice adaptive-probe budget
// (spec.md §4.4).
const AdaptiveBudgetDefault = 14
