package probelist

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
)

type fakeResolver struct{ fail bool }

func (f *fakeResolver) ResolveAll(p *Probelist) error {
	if f.fail {
		f.fail = false // succeed on next attempt so tests don't hang
		return errTransient
	}
	return nil
}

var errTransient = errShort("transient resolve failure")

type errShort string

func (e errShort) Error() string { return string(e) }

func testLogger(t *testing.T) *zap.SugaredLogger {
	t.Helper()
	l, err := zap.NewDevelopment()
	if err != nil {
		t.Fatalf("zap.NewDevelopment: %v", err)
	}
	return l.Sugar()
}

func TestReloadControllerSwapsAtPromote(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "probelist.json")
	if err := os.WriteFile(path, []byte(sampleJSON), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	initial := New("v0", nil, nil)
	ctrl := NewReloadController(initial, &fakeResolver{}, testLogger(t))

	if ctrl.Active().Version != "v0" {
		t.Fatalf("expected initial version v0")
	}

	ctrl.RequestReload(path)
	if ctrl.State() != ReloadScheduled {
		t.Fatalf("expected SCHEDULED after request, got %v", ctrl.State())
	}

	ctrl.Tick(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for ctrl.State() != ReloadDone {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for reload to reach DONE, state=%v", ctrl.State())
		}
		time.Sleep(10 * time.Millisecond)
	}

	// Active generation must not change until Promote is called.
	if ctrl.Active().Version != "v0" {
		t.Fatalf("active generation changed before Promote")
	}

	if !ctrl.Promote() {
		t.Fatalf("expected Promote to succeed from DONE state")
	}
	if ctrl.Active().Version != "v1" {
		t.Fatalf("expected active version v1 after promote, got %s", ctrl.Active().Version)
	}
	if ctrl.State() != ReloadNone {
		t.Fatalf("expected NONE after promote, got %v", ctrl.State())
	}
}

func TestReloadControllerIgnoresConcurrentRequest(t *testing.T) {
	initial := New("v0", nil, nil)
	ctrl := NewReloadController(initial, &fakeResolver{}, testLogger(t))

	ctrl.RequestReload("/one")
	ctrl.RequestReload("/two") // should be ignored; state already SCHEDULED

	ctrl.mu.Lock()
	got := ctrl.pending
	ctrl.mu.Unlock()
	if got != "/one" {
		t.Fatalf("expected first pending path to stick, got %q", got)
	}
}

func TestReloadControllerRevertsToNoneOnLoadFailure(t *testing.T) {
	initial := New("v0", nil, nil)
	ctrl := NewReloadController(initial, &fakeResolver{}, testLogger(t))

	ctrl.RequestReload("/no/such/file.json")
	ctrl.Tick(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for ctrl.State() != ReloadNone {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for revert to NONE, state=%v", ctrl.State())
		}
		time.Sleep(10 * time.Millisecond)
	}
	if ctrl.Active().Version != "v0" {
		t.Fatalf("active generation must be unchanged after failed reload")
	}
}
