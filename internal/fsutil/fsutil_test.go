package fsutil

import (
	"os"
	"path/filepath"
	"testing"
)

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestGroupFramesOrdersByFrame(t *testing.T) {
	root := t.TempDir()
	for _, rel := range []string{
		"login/01_form@2.png",
		"login/01_form@10.png",
		"login/01_form@1.png",
		"home.png",
		"home.diff.png",
		"notes.txt",
		".cache/ignored.png",
	} {
		touch(t, filepath.Join(root, rel))
	}

	sets, err := GroupFrames(root)
	if err != nil {
		t.Fatalf("group: %v", err)
	}
	if len(sets) != 2 {
		t.Fatalf("expected 2 sets, got %+v", sets)
	}
	if sets[0].Name != "home" || len(sets[0].Paths) != 1 {
		t.Fatalf("unexpected home set %+v", sets[0])
	}
	login := sets[1]
	if login.Name != "login/01_form" || len(login.Paths) != 3 {
		t.Fatalf("unexpected login set %+v", login)
	}
	if filepath.Base(login.Paths[2]) != "01_form@10.png" || filepath.Base(login.Paths[0]) != "01_form@1.png" {
		t.Fatalf("frames not numerically ordered: %v", login.Paths)
	}
}

func TestFrameName(t *testing.T) {
	root := filepath.Join("tmp", "inbox")
	tests := []struct {
		path  string
		name  string
		frame int
		ok    bool
	}{
		{filepath.Join(root, "a", "b.png"), "a/b", 0, true},
		{filepath.Join(root, "a", "b@3.png"), "a/b", 3, true},
		{filepath.Join(root, "a", "b@x.png"), "", 0, false},
		{filepath.Join(root, "a", "b.diff.png"), "", 0, false},
		{filepath.Join(root, "a", "b.txt"), "", 0, false},
		{filepath.Join("elsewhere", "b.png"), "", 0, false},
	}
	for _, tt := range tests {
		name, frame, ok := FrameName(root, tt.path)
		if name != tt.name || frame != tt.frame || ok != tt.ok {
			t.Errorf("FrameName(%q) = %q, %d, %v; want %q, %d, %v", tt.path, name, frame, ok, tt.name, tt.frame, tt.ok)
		}
	}
}

func TestFramesForMissingIdentity(t *testing.T) {
	set, err := FramesFor(t.TempDir(), "absent")
	if err != nil {
		t.Fatalf("frames: %v", err)
	}
	if set.Name != "absent" || len(set.Paths) != 0 {
		t.Fatalf("unexpected set %+v", set)
	}
}
