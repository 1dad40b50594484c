package metrics

import (
	"sync"

	dto "github.com/prometheus/client_model/go"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusSink publishes metric values as Prometheus gauges, one per
// registered key name. Grounded on cmd/backend/metrics.go and
// src/metrics.go's package-level prometheus.NewGaugeVec registration
// pattern, adapted to register keys lazily as the scheduler requests them
// rather than all up front.
type PrometheusSink struct {
	registry *prometheus.Registry

	mu     sync.Mutex
	names  []string
	index  map[string]Handle
	gauges []prometheus.Gauge
}

// NewPrometheusSink constructs a PrometheusSink backed by registry. Pass
// prometheus.NewRegistry() for an isolated registry, or
// prometheus.DefaultRegisterer's registry to expose on the default
// /metrics handler.
func NewPrometheusSink(registry *prometheus.Registry) *PrometheusSink {
	return &PrometheusSink{registry: registry, index: make(map[string]Handle)}
}

func (s *PrometheusSink) RegisterKey(name string) Handle {
	s.mu.Lock()
	defer s.mu.Unlock()

	if h, ok := s.index[name]; ok {
		return h
	}
	g := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: prometheusName(name),
		Help: "trinarkular prober metric: " + name,
	})
	s.registry.MustRegister(g)

	s.names = append(s.names, name)
	s.gauges = append(s.gauges, g)
	h := Handle(len(s.names) - 1)
	s.index[name] = h
	return h
}

// ResolveAll is a no-op: Prometheus gauges are usable the instant they're
// registered, there is no separate backend round-trip.
func (s *PrometheusSink) ResolveAll() error { return nil }

func (s *PrometheusSink) Set(h Handle, value float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if int(h) < 0 || int(h) >= len(s.gauges) {
		return
	}
	s.gauges[int(h)].Set(value)
}

func (s *PrometheusSink) Get(h Handle) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if int(h) < 0 || int(h) >= len(s.gauges) {
		return 0
	}
	m := &dto.Metric{}
	if err := s.gauges[int(h)].Write(m); err != nil || m.Gauge == nil {
		return 0
	}
	return m.Gauge.GetValue()
}

// Flush is a no-op for Prometheus: the registry is scraped on demand by
// the debug HTTP server, there is no push step.
func (s *PrometheusSink) Flush(timestampSec int64) error { return nil }

// prometheusName converts a dotted graphite-style metric name into a
// Prometheus-safe identifier.
func prometheusName(name string) string {
	out := make([]rune, 0, len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}
