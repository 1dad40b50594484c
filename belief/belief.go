// Package belief implements the per-/24 Bayesian belief update described in
// spec.md §4.2: a pure function from (prior belief, aeb, verdict) to a new,
// clamped belief, plus the UP/DOWN/UNCERTAIN classification.
package belief

import "github.com/blockwatch/prober/contracts"

const (
	// BackgroundLossFreq (ε) is the background packet-loss frequency used
	// when a block is actually down but still produces a spurious reply.
	BackgroundLossFreq = 0.01
	// HostsPerSlash24 is the fixed address-space size of a /24.
	HostsPerSlash24 = 256

	MinBelief = 0.01
	MaxBelief = 0.99

	upThreshold   = 0.9
	downThreshold = 0.1
)

// Update computes the posterior belief_up given the prior belief, the
// block's average expected response rate (aeb), and whether the probe
// that was just answered came back RESPONSIVE or UNRESPONSIVE.
func Update(priorUp, aeb float64, verdict contracts.Verdict) float64 {
	bu := priorUp
	bd := 1 - bu

	pPosGivenUp := aeb
	pPosGivenDown := (1 - BackgroundLossFreq) / HostsPerSlash24
	pNegGivenUp := 1 - pPosGivenUp
	pNegGivenDown := 1 - pPosGivenDown

	var bdPrime float64
	if verdict == contracts.Responsive {
		denom := pPosGivenDown*bd + pPosGivenUp*bu
		bdPrime = safeDiv(pPosGivenDown*bd, denom, bd)
	} else {
		denom := pNegGivenDown*bd + pNegGivenUp*bu
		bdPrime = safeDiv(pNegGivenDown*bd, denom, bd)
	}

	bdPrime = clamp(bdPrime, MinBelief, MaxBelief)
	return 1 - bdPrime
}

func safeDiv(num, denom, fallback float64) float64 {
	if denom == 0 {
		return fallback
	}
	return num / denom
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Classify discretizes a belief value into UP/DOWN/UNCERTAIN using the
// fixed 0.9/0.1 thresholds from spec.md §4.2.
func Classify(beliefUp float64) contracts.BeliefState {
	switch {
	case beliefUp > upThreshold:
		return contracts.Up
	case beliefUp < downThreshold:
		return contracts.Down
	default:
		return contracts.Uncertain
	}
}
