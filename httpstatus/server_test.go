package httpstatus

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

type fakeProvider struct{ snap Snapshot }

func (f fakeProvider) StatusSnapshot() Snapshot { return f.snap }

func TestHealthzReturnsOK(t *testing.T) {
	r := NewRouter(fakeProvider{}, nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestStatusReturnsSnapshotJSON(t *testing.T) {
	want := Snapshot{RoundID: 7, ProbelistSize: 100, Up: 90, Down: 5, Uncertain: 5, ReloadState: "none"}
	r := NewRouter(fakeProvider{snap: want}, nil)
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected json content type, got %q", ct)
	}
}

func TestMetricsNotRegisteredWhenNoRegistry(t *testing.T) {
	r := NewRouter(fakeProvider{}, nil)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for /metrics with no registry, got %d", rec.Code)
	}
}
