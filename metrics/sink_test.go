package metrics

import "testing"

func TestGraphiteSafeReplacesDotsAndStars(t *testing.T) {
	got := GraphiteSafe("L:us.ca*west")
	want := "L:us-ca-west"
	if got != want {
		t.Fatalf("GraphiteSafe(%q) = %q, want %q", "L:us.ca*west", got, want)
	}
}

func TestMemorySinkRegisterIsIdempotent(t *testing.T) {
	s := NewMemorySink()
	h1 := s.RegisterKey("a.b.c")
	h2 := s.RegisterKey("a.b.c")
	if h1 != h2 {
		t.Fatalf("expected same handle for repeated RegisterKey, got %v and %v", h1, h2)
	}
}

func TestMemorySinkSetGetFlush(t *testing.T) {
	s := NewMemorySink()
	h := s.RegisterKey("x")
	s.Set(h, 42)
	if got := s.Get(h); got != 42 {
		t.Fatalf("Get = %v, want 42", got)
	}
	if err := s.Flush(1000); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	flushed := s.Flushed()
	if len(flushed) != 1 {
		t.Fatalf("expected 1 flushed point, got %d", len(flushed))
	}
	if flushed[0].Values["x"] != 42 {
		t.Fatalf("expected flushed value 42, got %v", flushed[0].Values["x"])
	}
	if flushed[0].TimestampSec != 1000 {
		t.Fatalf("expected timestamp 1000, got %d", flushed[0].TimestampSec)
	}
}

func TestNamesBuildsExpectedTemplates(t *testing.T) {
	n := Names{Root: "trinarkular", Name: "prober1"}
	if got, want := n.RoundID(), "trinarkular.probers.prober1.meta.round_id"; got != want {
		t.Fatalf("RoundID() = %q, want %q", got, want)
	}
	if got, want := n.Probing("periodic", "probe_cnt"), "trinarkular.probers.prober1.probing.periodic.probe_cnt"; got != want {
		t.Fatalf("Probing() = %q, want %q", got, want)
	}
	if got, want := n.StateCnt("up"), "trinarkular.probers.prober1.states.up_slash24_cnt"; got != want {
		t.Fatalf("StateCnt() = %q, want %q", got, want)
	}
	if got, want := n.Block("L:us", "1.2.3.0", "belief"), "trinarkular.L:us.probers.prober1.blocks.__PFX_1.2.3.0_24.belief"; got != want {
		t.Fatalf("Block() = %q, want %q", got, want)
	}
}
