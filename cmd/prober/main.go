// Command prober runs the outage-probing reactor: it loads a probelist,
// spawns the configured probe drivers, and cycles rounds indefinitely
// (or until -l round_limit is reached), publishing belief/state time
// series as it goes. Grounded on go/cmd/proxy/main.go's wiring order and
// its signal.Notify shutdown pattern, extended with a second signal for
// SIGHUP-triggered probelist reloads per spec.md §6.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/blockwatch/prober/config"
	"github.com/blockwatch/prober/driver"
	"github.com/blockwatch/prober/httpstatus"
	"github.com/blockwatch/prober/metrics"
	"github.com/blockwatch/prober/probelist"
	"github.com/blockwatch/prober/scheduler"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, err := config.NewFromFlags("prober", args)
	if err != nil {
		fmt.Fprintln(os.Stderr, "prober:", err)
		return 1
	}

	log, err := config.SetupLogging(false)
	if err != nil {
		fmt.Fprintln(os.Stderr, "prober: logging setup failed:", err)
		return 1
	}
	defer log.Sync() //nolint:errcheck

	initial, report, err := probelist.Load(cfg.ProbelistPath)
	if err != nil {
		log.Errorw("initial probelist load failed", "path", cfg.ProbelistPath, "error", err)
		return 1
	}
	log.Infow("probelist loaded", "version", initial.Version, "accepted", report.Accepted, "rejected", report.Rejected)

	registry := prometheus.NewRegistry()
	sink := metrics.NewPrometheusSink(registry)
	names := metrics.Names{Root: "trinarkular", Name: "prober"}

	reloadCtrl := probelist.NewReloadController(initial, metricsResolver{}, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool := driver.NewPool()
	for _, ds := range cfg.Drivers {
		impl, err := buildDriver(ds.Name)
		if err != nil {
			log.Errorw("driver startup failed", "name", ds.Name, "error", err)
			return 1
		}
		if err := pool.Add(ctx, ds.Name, impl, ds.Args); err != nil {
			log.Errorw("driver startup failed", "name", ds.Name, "error", err)
			return 1
		}
	}

	params := scheduler.DefaultParams()
	params.RoundDuration = cfg.RoundDuration()
	params.SliceCount = cfg.SliceCount
	params.RoundLimit = cfg.RoundLimit
	params.ProbeTimeout = cfg.ProbeTimeout()
	params.AlignStart = !cfg.DisableAlign

	sched := scheduler.New(params, reloadCtrl, pool, sink, names, log)

	debugSrv := &http.Server{Addr: ":6343", Handler: httpstatus.NewRouter(sched, registry)}
	go func() {
		if err := debugSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorw("debug server error", "error", err)
		}
	}()

	sigTerm := make(chan os.Signal, 1)
	signal.Notify(sigTerm, os.Interrupt, syscall.SIGTERM)
	sigHup := make(chan os.Signal, 1)
	signal.Notify(sigHup, syscall.SIGHUP)

	go func() {
		for range sigHup {
			log.Infow("SIGHUP received, scheduling probelist reload", "path", cfg.ProbelistPath)
			reloadCtrl.RequestReload(cfg.ProbelistPath)
		}
	}()

	schedDone := make(chan struct{})
	go func() {
		sched.Run(ctx)
		close(schedDone)
	}()

	select {
	case <-sigTerm:
		log.Infow("shutdown signal received")
	case <-schedDone:
		log.Infow("scheduler stopped")
	}
	sched.RequestShutdown()
	cancel()

	select {
	case <-schedDone:
	case <-time.After(10 * time.Second):
		log.Warnw("scheduler did not shut down within timeout")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = debugSrv.Shutdown(shutdownCtx)

	return 0
}

// buildDriver resolves a CLI driver name to a driver.Impl. "test" is the
// synthetic driver; "net" is the real-network stub; anything else is a
// startup error.
func buildDriver(name string) (driver.Impl, error) {
	switch {
	case name == "test" || strings.HasPrefix(name, "test:"):
		return driver.NewTestDriver(1), nil
	case name == "net" || strings.HasPrefix(name, "net:"):
		return driver.NewNetDriver(), nil
	default:
		return nil, fmt.Errorf("unknown driver name %q", name)
	}
}

// metricsResolver adapts the metrics sink into probelist.KeyResolver;
// Prometheus gauges are created lazily as the scheduler first references
// a /24's metric name, so there is nothing to pre-resolve here.
type metricsResolver struct{}

func (metricsResolver) ResolveAll(p *probelist.Probelist) error { return nil }
