// Package httpstatus exposes the prober's debug HTTP surface: liveness,
// a point-in-time status snapshot, and (when wired to a PrometheusSink) a
// scrape endpoint. Grounded on src/main.go's mux.NewRouter()/
// r.Handle(...).Methods(...) wiring.
package httpstatus

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StatusProvider is implemented by the scheduler to expose a read-only
// snapshot for the /status endpoint without coupling this package to
// scheduler's concrete type.
type StatusProvider interface {
	StatusSnapshot() Snapshot
}

// Snapshot is the JSON body served at /status.
type Snapshot struct {
	RoundID         uint64 `json:"round_id"`
	ProbelistSize   int    `json:"probelist_size"`
	OutstandingReqs int    `json:"outstanding_probes"`
	ReloadState     string `json:"reload_state"`
	Up              int    `json:"up_slash24_cnt"`
	Down            int    `json:"down_slash24_cnt"`
	Uncertain       int    `json:"uncertain_slash24_cnt"`
}

// NewRouter builds the debug server's mux.Router. registry may be nil, in
// which case /metrics is not registered at all.
func NewRouter(provider StatusProvider, registry *prometheus.Registry) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", healthzHandler).Methods("GET")
	r.HandleFunc("/status", statusHandler(provider)).Methods("GET")

	if registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{})).Methods("GET")
	}

	return r
}

func healthzHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func statusHandler(provider StatusProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := provider.StatusSnapshot()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(snap)
	}
}
