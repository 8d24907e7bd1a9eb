package config

import (
	"encoding/json"
	"errors"
	"image"
	"os"
	"path/filepath"
	"time"

	"snapdiff/internal/diff"
	"snapdiff/internal/stabilize"
)

const (
	defaultConfigPath = "~/.config/snapdiff/config.json"
	defaultParallel   = 4
)

// Config holds user-editable settings. Nothing in here is read through
// globals: callers build explicit values (Thresholds, StabilizeConfig)
// per comparison.
type Config struct {
	Compare    Compare    `json:"compare"`
	Stabilize  Stabilize  `json:"stabilize"`
	Processing Processing `json:"processing"`
	Logging    Logging    `json:"logging"`
	Paths      Paths      `json:"paths"`
	Browser    Browser    `json:"browser"`
	Server     Server     `json:"server"`
	Storage    Storage    `json:"storage"`
}

// Compare holds the process-wide comparison defaults.
type Compare struct {
	ColorDistanceLimit float64 `json:"color_distance_limit"`
	AreaSizeLimit      int     `json:"area_size_limit"`
	NoiseFloor         float64 `json:"noise_floor"`
	Width              int     `json:"width"`  // expected viewport width, 0 = unchecked
	Height             int     `json:"height"` // expected viewport height, 0 = unchecked
}

// Stabilize configures the capture loop.
type Stabilize struct {
	MaxAttempts int `json:"max_attempts"`
	IntervalMS  int `json:"interval_ms"`
	TimeoutMS   int `json:"timeout_ms"` // 0 = bounded by attempts only
	// Thresholds used between consecutive captures. Nil pointers fall back
	// to the comparison defaults.
	ColorDistanceLimit *float64 `json:"color_distance_limit,omitempty"`
	AreaSizeLimit      *int     `json:"area_size_limit,omitempty"`
}

// Processing captures execution preferences.
type Processing struct {
	ParallelJobs int `json:"parallel_jobs"`
}

// Logging controls logging verbosity and destinations.
type Logging struct {
	Level      string `json:"level"`       // debug, info, warn, error
	Format     string `json:"format"`      // text, json
	FileOutput bool   `json:"file_output"` // Enable file logging
	LogDir     string `json:"log_dir"`     // Directory for log files
}

// Paths configures repository and artifact locations.
type Paths struct {
	RepoRoot       string `json:"repo_root"`
	ScreenshotArea string `json:"screenshot_area"`
	DatabasePath   string `json:"database_path"`
	Inbox          string `json:"inbox"`
}

// Browser configures the Rod capture source.
type Browser struct {
	RemoteURL string `json:"remote_url"`
	Headless  bool   `json:"headless"`
	Stealth   bool   `json:"stealth"`
	FullPage  bool   `json:"full_page"`
}

// Server configures the report API.
type Server struct {
	Addr     string `json:"addr"`
	GRPCAddr string `json:"grpc_addr"`
}

// Storage selects the SQLite driver: "sqlite" (pure Go) or "sqlite3" (cgo).
type Storage struct {
	Driver string `json:"driver"`
}

// Load reads configuration from disk, falling back to sensible defaults.
func Load() (*Config, error) {
	configPath := os.Getenv("SNAPDIFF_CONFIG")
	if configPath == "" {
		configPath = defaultConfigPath
	}
	return LoadFile(configPath)
}

// LoadFile reads the given file over the defaults. A missing file is not
// an error.
func LoadFile(configPath string) (*Config, error) {
	cfg := defaultConfig()

	expanded, err := expandUser(configPath)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(expanded)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	if err := dec.Decode(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config { return defaultConfig() }

func defaultConfig() *Config {
	return &Config{
		Compare: Compare{},
		Stabilize: Stabilize{
			MaxAttempts: stabilize.DefaultMaxAttempts,
			IntervalMS:  500,
		},
		Processing: Processing{
			ParallelJobs: defaultParallel,
		},
		Logging: Logging{
			Level:      "info",
			Format:     "text",
			FileOutput: false,
			LogDir:     "./logs",
		},
		Paths: Paths{
			RepoRoot:       ".",
			ScreenshotArea: "doc/screenshots",
			DatabasePath:   filepath.Join(os.TempDir(), "snapdiff.db"),
			Inbox:          "./tmp/screenshots",
		},
		Browser: Browser{
			Headless: true,
		},
		Server: Server{
			Addr:     ":8080",
			GRPCAddr: ":9090",
		},
		Storage: Storage{
			Driver: "sqlite",
		},
	}
}

// Thresholds returns the default comparison thresholds.
func (c *Config) Thresholds() diff.Thresholds {
	return diff.Thresholds{
		ColorDistanceLimit: c.Compare.ColorDistanceLimit,
		AreaSizeLimit:      c.Compare.AreaSizeLimit,
		NoiseFloor:         c.Compare.NoiseFloor,
	}
}

// Dimensions is the expected viewport, zero when unchecked.
func (c *Config) Dimensions() image.Point {
	return image.Pt(c.Compare.Width, c.Compare.Height)
}

// StabilizeConfig builds the stabilization settings.
func (c *Config) StabilizeConfig() stabilize.Config {
	th := c.Thresholds()
	if c.Stabilize.ColorDistanceLimit != nil {
		th.ColorDistanceLimit = *c.Stabilize.ColorDistanceLimit
	}
	if c.Stabilize.AreaSizeLimit != nil {
		th.AreaSizeLimit = *c.Stabilize.AreaSizeLimit
	}
	return stabilize.Config{
		MaxAttempts: c.Stabilize.MaxAttempts,
		Thresholds:  th,
		Interval:    time.Duration(c.Stabilize.IntervalMS) * time.Millisecond,
		Timeout:     time.Duration(c.Stabilize.TimeoutMS) * time.Millisecond,
	}
}

func expandUser(path string) (string, error) {
	if path == "" || path[0] != '~' {
		return path, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	if path == "~" {
		return home, nil
	}

	return filepath.Join(home, path[2:]), nil
}
