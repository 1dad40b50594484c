// Package metrics publishes per-/24 and per-round time-series points
// through a pluggable sink, keeping the prober itself ignorant of which
// backend (in-memory, Prometheus, ...) is wired in (spec.md §6).
package metrics

import "strings"

// Handle identifies a registered metric key. Callers obtain one from
// Sink.RegisterKey; the built-in sinks number handles from 0 in
// registration order.
type Handle int

// Sink is the pluggable metrics backend contract from spec.md §6:
// register_key, resolve_all, set, get, flush.
type Sink interface {
	// RegisterKey reserves a handle for name, idempotently: registering
	// the same name twice returns the same handle.
	RegisterKey(name string) Handle
	// ResolveAll finalizes every key registered so far against the
	// backend. Retriable on failure. Both built-in sinks treat it as a
	// no-op (PrometheusSink creates its gauges in RegisterKey).
	ResolveAll() error
	// Set assigns value to the metric identified by handle.
	Set(h Handle, value float64)
	// Get returns the last value assigned to handle, or 0 if never set.
	Get(h Handle) float64
	// Flush publishes all current values at the given timestamp (unix
	// seconds).
	Flush(timestampSec int64) error
}

// GraphiteSafe replaces characters that are unsafe in a dotted metric path
// — '.' and '*' — with '-'. Per spec.md §9, the '*' case only matters if
// upstream tags can contain it, but the substitution is applied
// unconditionally since it's a no-op otherwise.
func GraphiteSafe(s string) string {
	s = strings.ReplaceAll(s, ".", "-")
	s = strings.ReplaceAll(s, "*", "-")
	return s
}

// Templates for the metric-name hierarchy from spec.md §6. root and name
// are the metrics root prefix and the prober instance name.
const (
	tmplRoundID       = "%s.probers.%s.meta.round_id"
	tmplRoundDuration = "%s.probers.%s.meta.round_duration"
	tmplProbing       = "%s.probers.%s.probing.%s.%s" // root, name, probeType, counter
	tmplStateCnt      = "%s.probers.%s.states.%s_slash24_cnt"
	tmplSlash24Cnt    = "%s.probers.%s.slash24_cnt"
	tmplBlock         = "%s.%s.probers.%s.blocks.__PFX_%s_24.%s" // root, tag, name, dottedIP, field
)
