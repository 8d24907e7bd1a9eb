package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFileMissingUsesDefaults(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "none.json"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Processing.ParallelJobs != defaultParallel {
		t.Fatalf("expected default parallelism, got %d", cfg.Processing.ParallelJobs)
	}
	if cfg.Paths.ScreenshotArea != "doc/screenshots" {
		t.Fatalf("unexpected area %q", cfg.Paths.ScreenshotArea)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{"compare": {"color_distance_limit": 50, "area_size_limit": 10, "width": 1024, "height": 768},
	"stabilize": {"max_attempts": 3, "interval_ms": 10, "color_distance_limit": 0}}`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	th := cfg.Thresholds()
	if th.ColorDistanceLimit != 50 || th.AreaSizeLimit != 10 {
		t.Fatalf("unexpected thresholds %+v", th)
	}
	if d := cfg.Dimensions(); d.X != 1024 || d.Y != 768 {
		t.Fatalf("unexpected dimensions %v", d)
	}

	sc := cfg.StabilizeConfig()
	if sc.MaxAttempts != 3 || sc.Interval != 10*time.Millisecond {
		t.Fatalf("unexpected stabilize config %+v", sc)
	}
	if sc.Thresholds.ColorDistanceLimit != 0 {
		t.Fatalf("expected stricter stabilization limit, got %v", sc.Thresholds.ColorDistanceLimit)
	}
	if sc.Thresholds.AreaSizeLimit != 10 {
		t.Fatalf("expected area limit inherited, got %d", sc.Thresholds.AreaSizeLimit)
	}
	// defaults untouched by the file survive
	if cfg.Storage.Driver != "sqlite" {
		t.Fatalf("expected default driver, got %q", cfg.Storage.Driver)
	}
}

func TestLoadFileRejectsBadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	os.WriteFile(path, []byte("{"), 0644)
	if _, err := LoadFile(path); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestExpandUser(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	got, err := expandUser("~/x/y")
	if err != nil || got != filepath.Join(home, "x/y") {
		t.Fatalf("unexpected expansion %q err=%v", got, err)
	}
	if got, _ := expandUser("/abs"); got != "/abs" {
		t.Fatalf("absolute path changed: %q", got)
	}
}
