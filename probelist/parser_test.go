package probelist

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleJSON = `{
  "1.2.3.0/24": {
    "version": "v1",
    "host_cnt": 2,
    "avg_resp_rate": 0.42,
    "meta": ["L:us", "N:as1234"],
    "hosts": [
      {"host_ip": "1.2.3.10", "e_b": 0.5},
      {"host_ip": "1.2.3.20", "e_b": 0.3}
    ]
  },
  "10.0.0.0/24": {
    "version": "v1",
    "host_cnt": 1,
    "avg_resp_rate": 0.9,
    "meta": ["L:eu"],
    "hosts": [
      {"host_ip": "10.0.0.5", "e_b": 0.9}
    ]
  },
  "bad-entry/24": {
    "version": "v1",
    "host_cnt": 1,
    "meta": ["L:xx"],
    "hosts": [{"host_ip": "1.1.1.1", "e_b": 0.1}]
  }
}`

func writeSample(t *testing.T, name, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write sample: %v", err)
	}
	return path
}

func TestLoadParsesAcceptsAndRejects(t *testing.T) {
	path := writeSample(t, "probelist.json", sampleJSON)

	pl, report, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if report.Accepted != 2 {
		t.Fatalf("expected 2 accepted, got %d", report.Accepted)
	}
	if report.Rejected != 1 {
		t.Fatalf("expected 1 rejected (missing avg_resp_rate), got %d", report.Rejected)
	}
	if pl.Len() != 2 {
		t.Fatalf("expected 2 blocks in probelist, got %d", pl.Len())
	}
	if report.Version != "v1" {
		t.Fatalf("expected version v1, got %q", report.Version)
	}
}

func TestLoadRejectsMissingFields(t *testing.T) {
	missing := `{"1.2.3.0/24": {"version": "v1", "meta": ["L:us"], "hosts": [{"host_ip": "1.2.3.1", "e_b": 0.1}]}}`
	path := writeSample(t, "missing.json", missing)

	pl, report, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if report.Accepted != 0 || report.Rejected != 1 {
		t.Fatalf("expected entry missing host_cnt/avg_resp_rate to be rejected, got %+v", report)
	}
	if pl.Len() != 0 {
		t.Fatalf("expected empty probelist, got %d", pl.Len())
	}
}

func TestParseNetworkKeyMasks(t *testing.T) {
	key, err := parseNetworkKey("1.2.3.200/24")
	if err != nil {
		t.Fatalf("parseNetworkKey: %v", err)
	}
	want, _ := parseNetworkKey("1.2.3.0/24")
	if key != want {
		t.Fatalf("expected masked key %v, got %v", want, key)
	}
}

func TestMask24(t *testing.T) {
	key, _ := parseNetworkKey("192.168.5.77/24")
	if Mask24(key) != key {
		t.Fatalf("expected already-masked key to be idempotent under Mask24")
	}
}
