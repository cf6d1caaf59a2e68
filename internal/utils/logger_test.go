package utils

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/miradorstack/mirador-perf/internal/config"
)

func TestNewLoggerToRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, "warn", true)
	logger.Info("hidden")
	logger.Warn("shown", slog.String("scope", "overall"))

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info line should be filtered at warn level: %s", out)
	}
	if !strings.Contains(out, `"scope":"overall"`) {
		t.Fatalf("expected JSON attrs, got %s", out)
	}
}

func TestNewLoggerWritesRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "perf.log")
	logger := NewLogger(config.LoggingConfig{Level: "debug", File: path, MaxSizeMB: 1})
	logger.Debug("analysis complete")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "analysis complete") {
		t.Fatalf("expected log line in file, got %q", data)
	}
}

func TestParseLevel(t *testing.T) {
	if ParseLevel("WARNING") != slog.LevelWarn {
		t.Fatalf("expected warn")
	}
	if ParseLevel("bogus") != slog.LevelInfo {
		t.Fatalf("expected info default")
	}
}
