package logging

import (
	"bytes"
	"log"
	"log/slog"
	"strings"
	"testing"
)

func TestTraditionalHandlerFormatsAttrs(t *testing.T) {
	var buf bytes.Buffer
	h := &TraditionalHandler{logger: log.New(&buf, "", 0), level: slog.LevelInfo}
	logger := slog.New(h).With("run", "r1").WithGroup("cmp")

	logger.Info("verdict", "identity", "login/01_form")
	logger.Debug("hidden")

	out := buf.String()
	if !strings.Contains(out, "[INFO] verdict [") {
		t.Fatalf("unexpected output %q", out)
	}
	if !strings.Contains(out, "run=r1") || !strings.Contains(out, "cmp.identity=login/01_form") {
		t.Fatalf("missing attributes in %q", out)
	}
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug record should be filtered")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARNING": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewWithWriterJSON(t *testing.T) {
	var buf bytes.Buffer
	NewWithWriter(&buf, "info", "json").Info("hello", "k", 1)
	if !strings.HasPrefix(buf.String(), "{") {
		t.Fatalf("expected json output, got %q", buf.String())
	}
}
