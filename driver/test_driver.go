package driver

import (
	"context"
	"math/rand"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/blockwatch/prober/contracts"
)

// drainInterval is the cadence at which the test driver's worker scans its
// pending-response list for entries whose scheduled time has arrived
// (spec.md §4.1).
const drainInterval = 500 * time.Millisecond

// TestDriverConfig is the parsed form of the config string a TestDriver
// accepts, e.g. "unresp_targets=0.1,unresp_probes=0.05,max_rtt_ms=3000".
// Fields and defaults mirror
// original_source/lib/drivers/trinarkular_driver_test.c's MAX_RTT/
// UNRESP_PROBES/UNRESP_TARGETS knobs (there expressed as 0-100 percentages;
// here as 0-1 fractions, matching spec.md §4.1's p_responsive formula).
type TestDriverConfig struct {
	UnrespTargets float64       // fraction of targets that never respond to any probe
	UnrespProbes  float64       // fraction of individual probes lost in flight
	MaxRTT        time.Duration // RTT is drawn uniformly from [0, MaxRTT)
}

func defaultTestDriverConfig() TestDriverConfig {
	return TestDriverConfig{UnrespTargets: 0, UnrespProbes: 0, MaxRTT: 3 * time.Second}
}

// parseTestDriverConfig parses "key=value,key=value" pairs. Unknown keys
// are ignored so new knobs can be added without breaking old configs.
func parseTestDriverConfig(s string) (TestDriverConfig, error) {
	cfg := defaultTestDriverConfig()
	if s == "" {
		return cfg, nil
	}
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			continue
		}
		key, val := kv[0], kv[1]
		switch key {
		case "unresp_targets":
			f, err := strconv.ParseFloat(val, 64)
			if err != nil {
				return cfg, err
			}
			cfg.UnrespTargets = f
		case "unresp_probes":
			f, err := strconv.ParseFloat(val, 64)
			if err != nil {
				return cfg, err
			}
			cfg.UnrespProbes = f
		case "max_rtt_ms":
			n, err := strconv.Atoi(val)
			if err != nil {
				return cfg, err
			}
			cfg.MaxRTT = time.Duration(n) * time.Millisecond
		}
	}
	return cfg, nil
}

// pendingResp is a scheduled-but-not-yet-delivered response. Ties in
// scheduled time are broken FIFO by enqueue sequence (spec.md §4.1).
type pendingResp struct {
	due resp
	seq uint64
}

type resp struct {
	at       time.Time
	response contracts.ProbeResp
}

// TestDriver is the synthetic driver used for tests and local
// experimentation: it answers every probe itself, drawing a responsive/
// unresponsive verdict and an RTT from the model in
// original_source/lib/drivers/trinarkular_driver_test.c's send_probe,
// instead of sending packets.
// Grounded on go/core/probe_task_queue.go (mutex-guarded pending list) and
// go/core/heartbeat_client.go (ticker-driven drain loop).
type TestDriver struct {
	cfg  TestDriverConfig
	rand *rand.Rand

	mu      sync.Mutex
	pending []pendingResp
	nextSeq uint64
}

// NewTestDriver constructs an uninitialized TestDriver. Seed controls the
// deterministic PRNG used for loss/RTT simulation, allowing tests to be
// reproducible.
func NewTestDriver(seed int64) *TestDriver {
	return &TestDriver{rand: rand.New(rand.NewSource(seed))}
}

func (d *TestDriver) Init(config string) error {
	cfg, err := parseTestDriverConfig(config)
	if err != nil {
		return err
	}
	d.cfg = cfg
	return nil
}

func (d *TestDriver) InitThread(ctx context.Context, h *Handle) error {
	go d.run(ctx, h)
	return nil
}

// HandleReq draws this probe's verdict and RTT per spec.md §4.1:
// p_responsive = (1 - unresp_targets) * (1 - unresp_probes), and, when
// responsive, an RTT uniform on [0, max_rtt) capped at the caller's wait
// (a draw exceeding wait is itself treated as a timeout, matching
// send_probe's "rw->rtt > rw->req.wait" check).
func (d *TestDriver) HandleReq(h *Handle, req contracts.ProbeReq) {
	d.mu.Lock()
	defer d.mu.Unlock()

	pResponsive := (1 - d.cfg.UnrespTargets) * (1 - d.cfg.UnrespProbes)
	responsive := d.rand.Float64() < pResponsive

	verdict := contracts.Unresponsive
	rtt := time.Duration(0)
	if responsive && d.cfg.MaxRTT > 0 {
		rtt = time.Duration(d.rand.Int63n(int64(d.cfg.MaxRTT)))
	}
	if rtt > req.Wait {
		rtt = 0
	}

	due := time.Now().Add(req.Wait)
	if rtt > 0 {
		verdict = contracts.Responsive
		due = time.Now().Add(rtt)
	}

	d.pending = append(d.pending, pendingResp{
		due: resp{at: due, response: contracts.ProbeResp{
			TargetIP: req.TargetIP,
			Verdict:  verdict,
			RTT:      rtt,
		}},
		seq: d.nextSeq,
	})
	d.nextSeq++
}

func (d *TestDriver) Destroy() {}

// run is the worker goroutine's event loop: it drains queued requests
// immediately via HandleReq, and every drainInterval scans the pending
// list for due responses, delivering them in (due time, seq) order.
func (d *TestDriver) run(ctx context.Context, h *Handle) {
	ticker := time.NewTicker(drainInterval)
	defer ticker.Stop()
	defer h.signalDone()

	for {
		select {
		case <-h.terminated():
			return
		case <-ctx.Done():
			return
		case req := <-h.requests():
			d.HandleReq(h, req)
		case <-ticker.C:
			d.drain(h)
		}
	}
}

// drain delivers every response whose scheduled time has passed, in
// (due time, enqueue seq) order, and removes them from the pending list.
func (d *TestDriver) drain(h *Handle) {
	now := time.Now()

	d.mu.Lock()
	sort.Slice(d.pending, func(i, j int) bool {
		if d.pending[i].due.at.Equal(d.pending[j].due.at) {
			return d.pending[i].seq < d.pending[j].seq
		}
		return d.pending[i].due.at.Before(d.pending[j].due.at)
	})
	var due []pendingResp
	var rest []pendingResp
	for _, p := range d.pending {
		if !p.due.at.After(now) {
			due = append(due, p)
		} else {
			rest = append(rest, p)
		}
	}
	d.pending = rest
	d.mu.Unlock()

	for _, p := range due {
		h.yieldResp(p.due.response)
	}
}
