package logging_test

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"courtclip/internal/config"
	"courtclip/internal/logging"
	"courtclip/internal/services"
)

func readLines(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	defer f.Close()
	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines
}

func TestJSONLoggerIncludesContextFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.log")
	logger, err := logging.New(logging.Options{Level: "info", Format: "json", OutputPaths: []string{path}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx := services.WithRunID(context.Background(), "run-1")
	ctx = services.WithAsset(ctx, "Arena_Court1_SideA_20250101_120000.mp4")
	ctx = services.WithStage(ctx, "brand")
	ctx = services.WithRequestID(ctx, "req-9")

	component := logging.NewComponentLogger(logger, "finishing")
	logging.WithContext(ctx, component).Info("brand complete", logging.Int("overlays", 2))

	lines := readLines(t, path)
	if len(lines) != 1 {
		t.Fatalf("expected one log line, got %d", len(lines))
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := map[string]any{
		logging.FieldComponent:     "finishing",
		logging.FieldRunID:         "run-1",
		logging.FieldAsset:         "Arena_Court1_SideA_20250101_120000.mp4",
		logging.FieldStage:         "brand",
		logging.FieldCorrelationID: "req-9",
		"level":                    "info",
		"msg":                      "brand complete",
	}
	for key, value := range want {
		if entry[key] != value {
			t.Fatalf("field %s: got %v want %v", key, entry[key], value)
		}
	}
	if entry["overlays"] != float64(2) {
		t.Fatalf("unexpected overlays field %v", entry["overlays"])
	}
	if _, ok := entry["ts"]; !ok {
		t.Fatal("expected ts field")
	}
}

func TestLevelFiltering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "warn.log")
	logger, err := logging.New(logging.Options{Level: "warn", Format: "json", OutputPaths: []string{path}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Info("hidden")
	logger.Warn("shown")
	lines := readLines(t, path)
	if len(lines) != 1 || !strings.Contains(lines[0], "shown") {
		t.Fatalf("expected only warn line, got %v", lines)
	}
}

func TestConsoleLoggerLiftsSubjectIntoHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "console.log")
	logger, err := logging.New(logging.Options{Level: "info", Format: "console", OutputPaths: []string{path}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := services.WithAsset(context.Background(), "clip.mp4")
	ctx = services.WithStage(ctx, "splice")
	logging.WithContext(ctx, logging.NewComponentLogger(logger, "finishing")).
		Warn("intro missing", logging.Cell("Arena/Court1/SideA"))

	lines := readLines(t, path)
	if len(lines) != 2 {
		t.Fatalf("expected header and one field line, got %v", lines)
	}
	header := lines[0]
	for _, fragment := range []string{"WARN", "[finishing]", "clip.mp4 (splice)", "intro missing"} {
		if !strings.Contains(header, fragment) {
			t.Fatalf("header %q missing %q", header, fragment)
		}
	}
	if strings.TrimSpace(lines[1]) != "cell: Arena/Court1/SideA" {
		t.Fatalf("unexpected field line %q", lines[1])
	}
}

func TestWarnWithContextInjectsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "warn.log")
	logger, err := logging.New(logging.Options{Level: "info", Format: "json", OutputPaths: []string{path}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logging.WarnWithContext(logger, "delete failed", "inbound_delete_failed",
		logging.Error(errors.New("permission denied")),
		logging.String(logging.FieldImpact, "original remains in inbound"),
	)
	lines := readLines(t, path)
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if entry[logging.FieldEventType] != "inbound_delete_failed" {
		t.Fatalf("unexpected event type %v", entry[logging.FieldEventType])
	}
	if entry[logging.FieldErrorHint] == nil {
		t.Fatal("expected default error hint")
	}
	if entry[logging.FieldImpact] != "original remains in inbound" {
		t.Fatalf("caller impact should win, got %v", entry[logging.FieldImpact])
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestNewFromConfigWritesLogFile(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()
	cfg.Logging.Format = "json"
	logger, err := logging.NewFromConfig(&cfg)
	if err != nil {
		t.Fatalf("NewFromConfig: %v", err)
	}
	logger.Info("hello")
	lines := readLines(t, filepath.Join(cfg.Paths.LogDir, "courtclip.log"))
	if len(lines) != 1 || !strings.Contains(lines[0], "hello") {
		t.Fatalf("unexpected log file contents %v", lines)
	}
}

func TestNopLoggerDiscards(t *testing.T) {
	logger := logging.NewNop()
	if logger.Enabled(context.Background(), 12) {
		t.Fatal("nop logger should not be enabled")
	}
	logging.ErrorWithContext(nil, "ignored", "noop")
}
