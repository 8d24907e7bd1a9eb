package session

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"snapdiff/internal/diff"
	"snapdiff/internal/identity"
)

func TestRecorderNumbersScreenshotsWithinGroup(t *testing.T) {
	s := newTestSession(t, &memRepo{}, 2)
	r := NewRecorder(s, diff.Exact())
	r.Section("admin")
	if err := r.Group("login"); err != nil {
		t.Fatalf("group: %v", err)
	}

	var names []string
	for _, label := range []string{"form", "error"} {
		v, err := r.Screenshot(context.Background(), label, static(solid()))
		if err != nil {
			t.Fatalf("screenshot %s: %v", label, err)
		}
		names = append(names, v.Identity.Name())
	}
	want := []string{"admin/login/01_form", "admin/login/02_error"}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, names)
		}
	}
}

func TestRecorderGroupPurgesPreviousArtifacts(t *testing.T) {
	s := newTestSession(t, &memRepo{}, 2)
	r := NewRecorder(s, diff.Exact())
	r.Group("checkout")
	v, err := r.Screenshot(context.Background(), "cart", static(solid()))
	if err != nil {
		t.Fatalf("screenshot: %v", err)
	}
	stale := filepath.Join(filepath.Dir(v.CurrentPath), "09_removed.png")
	if err := os.WriteFile(stale, []byte("x"), 0o644); err != nil {
		t.Fatalf("write stale: %v", err)
	}

	if err := r.Group("checkout"); err != nil {
		t.Fatalf("regroup: %v", err)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Fatalf("expected stale artifact purged, stat err=%v", err)
	}
}

func TestRecorderCollectsFailuresWithCaller(t *testing.T) {
	repo := &memRepo{}
	s := newTestSession(t, repo, 2)
	repo.commit(t, s.Layout.CommittedPath(identity.Identity{Label: "home"}), solid())
	r := NewRecorder(s, diff.Exact())

	if _, err := r.Screenshot(context.Background(), "home", static(redSquare())); err != nil {
		t.Fatalf("screenshot: %v", err)
	}
	failures := r.Failures()
	if len(failures) != 1 {
		t.Fatalf("expected 1 failure, got %d", len(failures))
	}
	if !strings.HasPrefix(failures[0].Caller, "recorder_test.go:") {
		t.Fatalf("caller should point at the test, got %q", failures[0].Caller)
	}
	err := r.Err()
	if err == nil || !strings.Contains(err.Error(), "Screenshot does not match for 'home'") {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestRecorderOptionsOverrideThresholds(t *testing.T) {
	repo := &memRepo{}
	s := newTestSession(t, repo, 2)
	repo.commit(t, s.Layout.CommittedPath(identity.Identity{Label: "home"}), solid())
	r := NewRecorder(s, diff.Exact())

	v, err := r.Screenshot(context.Background(), "home", static(redSquare()),
		WithColorDistanceLimit(80), WithAreaSizeLimit(25))
	if err != nil {
		t.Fatalf("screenshot: %v", err)
	}
	if v.Kind != Identical {
		t.Fatalf("expected tolerated difference, got %v", v.Kind)
	}
	if r.Err() != nil {
		t.Fatalf("no failures expected")
	}
}

func TestRecorderInactiveDoesNothing(t *testing.T) {
	s := newTestSession(t, &memRepo{}, 2)
	r := NewRecorder(s, diff.Exact())
	r.SetActive(false)
	src := static(solid())

	v, err := r.Screenshot(context.Background(), "home", src)
	if err != nil {
		t.Fatalf("screenshot: %v", err)
	}
	if src.calls != 0 || v.CurrentPath != "" {
		t.Fatalf("inactive recorder must not capture")
	}
}
