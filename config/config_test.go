package config

import "testing"

func TestNewFromFlagsDefaults(t *testing.T) {
	c, err := NewFromFlags("prober", []string{"-D", "test loss=0.1", "probelist.json"})
	if err != nil {
		t.Fatalf("NewFromFlags: %v", err)
	}
	if c.RoundDurationMs != 600_000 {
		t.Fatalf("expected default round duration 600000ms, got %d", c.RoundDurationMs)
	}
	if c.SliceCount != 60 {
		t.Fatalf("expected default slice count 60, got %d", c.SliceCount)
	}
	if c.ProbeTimeoutS != 3 {
		t.Fatalf("expected default probe timeout 3s, got %d", c.ProbeTimeoutS)
	}
	if c.DisableAlign {
		t.Fatalf("expected alignment enabled by default")
	}
	if c.ProbelistPath != "probelist.json" {
		t.Fatalf("expected positional probelist path, got %q", c.ProbelistPath)
	}
	if len(c.Drivers) != 1 || c.Drivers[0].Name != "test" || c.Drivers[0].Args != "loss=0.1" {
		t.Fatalf("unexpected drivers: %+v", c.Drivers)
	}
}

func TestNewFromFlagsRepeatableDrivers(t *testing.T) {
	c, err := NewFromFlags("prober", []string{
		"-D", "a cfg1",
		"-D", "b cfg2",
		"-d", "120000",
		"-s", "12",
		"-A",
		"list.json.gz",
	})
	if err != nil {
		t.Fatalf("NewFromFlags: %v", err)
	}
	if len(c.Drivers) != 2 {
		t.Fatalf("expected 2 drivers, got %d", len(c.Drivers))
	}
	if !c.DisableAlign {
		t.Fatalf("expected alignment disabled via -A")
	}
	if c.RoundDurationMs != 120_000 || c.SliceCount != 12 {
		t.Fatalf("unexpected overridden values: %+v", c)
	}
}

func TestNewFromFlagsRequiresProbelistPath(t *testing.T) {
	_, err := NewFromFlags("prober", []string{"-D", "test args"})
	if err == nil {
		t.Fatalf("expected error when probelist path is missing")
	}
}

func TestNewFromFlagsRequiresAtLeastOneDriver(t *testing.T) {
	_, err := NewFromFlags("prober", []string{"list.json"})
	if err == nil {
		t.Fatalf("expected error when no -D driver is specified")
	}
}
