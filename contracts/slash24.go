// Package contracts holds the plain data types shared across the prober:
// /24 blocks and their mutable state, probe requests/responses, and
// per-round counters.
package contracts

// BeliefState is the discretized classification of a Slash24's belief.
type BeliefState int

const (
	Uncertain BeliefState = iota
	Up
	Down
)

func (s BeliefState) String() string {
	switch s {
	case Up:
		return "up"
	case Down:
		return "down"
	default:
		return "uncertain"
	}
}

// ProbeType identifies why a probe was queued.
type ProbeType int

const (
	Unprobed ProbeType = iota
	Periodic
	Adaptive
	Recovery
)

func (t ProbeType) String() string {
	switch t {
	case Periodic:
		return "periodic"
	case Adaptive:
		return "adaptive"
	case Recovery:
		return "recovery"
	default:
		return "unprobed"
	}
}

// Host is a candidate address within a /24, keyed by its low octet.
type Host struct {
	Octet byte
	// ExpectedResponse is the per-host e_b value carried by the probelist
	// file; currently unused by the belief engine (spec treats aeb as the
	// per-block average) but kept for richer future metrics.
	ExpectedResponse float64
}

// Slash24 is the immutable-per-generation description of a /24 network:
// its candidate hosts, its average expected response rate, and its tags.
type Slash24 struct {
	Network uint32 // network-masked /24 key, e.g. 1.2.3.0
	Hosts   []Host
	AEB     float64  // A(E(b)), average expected response rate, (0,1]
	Tags    []string // "L:..." leaf or "N:..." non-leaf metadata tags
}

// Slash24State is the mutable per-/24 state the prober maintains across
// rounds. It is created at probelist load and destroyed on swap.
type Slash24State struct {
	CurrentBelief  float64
	CurrentState   BeliefState
	CurrentHost    int // index into the owning Slash24.Hosts
	LastProbeType  ProbeType
	AdaptiveBudget int
	RecoveryBudget int
	RoundsSinceUp  int // counts up to 255, then drops back to RecoveryBackoffMax
}

// RecoveryBackoffMax is the value rounds_since_up drops back to once it
// would pass 255, so a long-down block stays on the every-16-rounds
// recovery schedule (spec.md §4.3).
const RecoveryBackoffMax = 16

// NewSlash24State returns the state for a freshly loaded block: unprobed,
// with belief 0.5 and state UNCERTAIN until the first probe lands.
func NewSlash24State() *Slash24State {
	return &Slash24State{
		CurrentBelief: 0.5,
		CurrentState:  Uncertain,
		LastProbeType: Unprobed,
	}
}
