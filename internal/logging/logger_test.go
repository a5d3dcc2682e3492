package logging_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"figurespeaker/internal/logging"
	"figurespeaker/internal/services"
)

func newFileLogger(t *testing.T, format, level string, levelVar *slog.LevelVar) (*slog.Logger, string) {
	t.Helper()
	logPath := filepath.Join(t.TempDir(), "test.log")
	logger, err := logging.New(logging.Options{
		Format:      format,
		Level:       level,
		OutputPaths: []string{logPath},
		LevelVar:    levelVar,
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	return logger, logPath
}

func readLog(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	return string(content)
}

func TestConsoleLoggerRendersComponentAndTagHeader(t *testing.T) {
	logger, logPath := newFileLogger(t, "console", "info", nil)

	ctx := services.WithTag(services.WithTrigger(context.Background(), "rfid"), "04a1b2")
	logging.WithContext(ctx, logging.NewComponentLogger(logger, "playback")).Info("play requested",
		logging.URI("local:track:song.mp3"),
	)

	content := readLog(t, logPath)
	if !strings.Contains(content, "INFO [playback] Rfid 04a1b2 - play requested") {
		t.Fatalf("expected header with component and subject, got %q", content)
	}
	if !strings.Contains(content, "    uri: local:track:song.mp3") {
		t.Fatalf("expected uri field line, got %q", content)
	}
	if strings.Contains(content, ".go:") {
		t.Fatalf("expected no caller information at info level, got %q", content)
	}
}

func TestConsoleLoggerIncludesCallerForDebug(t *testing.T) {
	logger, logPath := newFileLogger(t, "console", "debug", nil)
	logger.Debug("debug line")

	if content := readLog(t, logPath); !strings.Contains(content, "logger_test.go:") {
		t.Fatalf("expected caller information in debug logs, got %q", content)
	}
}

func TestJSONLoggerEmitsStructuredFields(t *testing.T) {
	logger, logPath := newFileLogger(t, "json", "info", nil)
	logging.NewComponentLogger(logger, "engine").Info("engine ready",
		logging.Event("engine_ready"),
		logging.Duration("startup", 1500*time.Millisecond),
	)

	var entry map[string]any
	line := strings.TrimSpace(readLog(t, logPath))
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("unmarshal json log line %q: %v", line, err)
	}
	if entry["level"] != "info" {
		t.Fatalf("unexpected level: %v", entry["level"])
	}
	if entry["component"] != "engine" || entry["event_type"] != "engine_ready" {
		t.Fatalf("unexpected fields: %v", entry)
	}
	if _, ok := entry["ts"]; !ok {
		t.Fatalf("expected ts field, got %v", entry)
	}
	if entry["startup_ms"] != float64(1500) {
		t.Fatalf("expected startup_ms=1500, got %v", entry)
	}
}

func TestLevelVarAdjustsVerbosityAtRuntime(t *testing.T) {
	levelVar := new(slog.LevelVar)
	logger, logPath := newFileLogger(t, "console", "warn", levelVar)

	logger.Info("hidden")
	levelVar.Set(slog.LevelInfo)
	logger.Info("visible")

	content := readLog(t, logPath)
	if strings.Contains(content, "hidden") {
		t.Fatalf("expected info suppressed at warn level, got %q", content)
	}
	if !strings.Contains(content, "visible") {
		t.Fatalf("expected info emitted after level change, got %q", content)
	}
}

func TestParseLevelRejectsUnknown(t *testing.T) {
	if _, err := logging.ParseLevel("verbose"); err == nil {
		t.Fatal("expected error for unknown level")
	}
	level, err := logging.ParseLevel("WARN")
	if err != nil || level != slog.LevelWarn {
		t.Fatalf("ParseLevel(WARN) = %v, %v", level, err)
	}
}

func TestWarnWithContextInjectsDefaults(t *testing.T) {
	logger, logPath := newFileLogger(t, "json", "info", nil)
	logging.WarnWithContext(logger, "reader lost", "rfid_read_failed")

	var entry map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(readLog(t, logPath))), &entry); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{logging.FieldEventType, logging.FieldErrorHint, logging.FieldImpact} {
		if _, ok := entry[key]; !ok {
			t.Fatalf("expected %s injected, got %v", key, entry)
		}
	}
}

func TestCleanupOldLogsKeepsCurrentAndRecent(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "figurespeaker-old.log")
	current := filepath.Join(dir, "figurespeaker-current.log")
	recent := filepath.Join(dir, "figurespeaker-recent.log")
	for _, path := range []string{old, current, recent} {
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}
	past := time.Now().AddDate(0, 0, -10)
	for _, path := range []string{old, current} {
		if err := os.Chtimes(path, past, past); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
	}

	removed := logging.CleanupOldLogs(logging.NewNop(), 3, dir, "figurespeaker-*.log", current)
	if removed != 1 {
		t.Fatalf("expected one file removed, got %d", removed)
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Fatalf("expected old log removed, stat err=%v", err)
	}
	for _, path := range []string{current, recent} {
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("expected %s kept: %v", path, err)
		}
	}
}
