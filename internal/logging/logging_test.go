package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDailyFile_RollsOverOnDateChange(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2025, 3, 14, 23, 59, 0, 0, time.UTC)
	df := NewDailyFile(dir)
	df.now = func() time.Time { return now }
	defer df.Close()

	if _, err := df.Write([]byte("first\n")); err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	now = now.Add(2 * time.Minute)
	if _, err := df.Write([]byte("second\n")); err != nil {
		t.Fatalf("Write() error: %v", err)
	}

	for day, want := range map[string]string{"2025-03-14": "first\n", "2025-03-15": "second\n"} {
		data, err := os.ReadFile(filepath.Join(dir, day+".log"))
		if err != nil {
			t.Fatalf("ReadFile(%s) error: %v", day, err)
		}
		if string(data) != want {
			t.Errorf("%s.log = %q, want %q", day, data, want)
		}
	}
}

func TestDailyFile_AppendsToExistingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "2025-03-14.log")
	if err := os.WriteFile(path, []byte("earlier\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	df := NewDailyFile(dir)
	df.now = func() time.Time { return time.Date(2025, 3, 14, 8, 0, 0, 0, time.UTC) }
	df.Write([]byte("later\n"))
	df.Close()

	data, _ := os.ReadFile(path)
	if string(data) != "earlier\nlater\n" {
		t.Errorf("Expected appended content, got %q", data)
	}
}

func TestDailyFile_UnwritableDirNeverFails(t *testing.T) {
	df := NewDailyFile(filepath.Join(t.TempDir(), "missing", "nested"))

	n, err := df.Write([]byte("dropped\n"))
	if err != nil {
		t.Errorf("Write() should not fail, got %v", err)
	}
	if n != len("dropped\n") {
		t.Errorf("Expected full length reported, got %d", n)
	}
}

func TestFanout(t *testing.T) {
	var text, js bytes.Buffer
	h := NewFanout(
		slog.NewTextHandler(&text, &slog.HandlerOptions{Level: slog.LevelInfo}),
		slog.NewJSONHandler(&js, &slog.HandlerOptions{Level: slog.LevelWarn}),
	)
	logger := slog.New(h).With("runId", "r1")

	logger.Info("Run started")
	logger.Warn("Low confidence match", "tier", "name")

	if strings.Count(text.String(), "\n") != 2 {
		t.Errorf("Expected both records in text output, got %q", text.String())
	}
	if !strings.Contains(text.String(), "runId=r1") {
		t.Errorf("Expected attrs propagated, got %q", text.String())
	}

	lines := strings.Split(strings.TrimSpace(js.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("Expected only the WARN record in JSON output, got %d lines", len(lines))
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("JSON output not parseable: %v", err)
	}
	if rec["msg"] != "Low confidence match" || rec["runId"] != "r1" || rec["tier"] != "name" {
		t.Errorf("Unexpected JSON record %v", rec)
	}

	if h.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("DEBUG should be disabled when no handler accepts it")
	}
}

func TestSetup_WritesDailyJSONFile(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	dir := filepath.Join(t.TempDir(), "logs")
	closer := Setup(slog.LevelInfo, dir)

	slog.Info("hello", "k", "v")
	slog.Debug("hidden")
	closer.Close()

	data, err := os.ReadFile(filepath.Join(dir, time.Now().Format("2006-01-02")+".log"))
	if err != nil {
		t.Fatalf("Expected today's log file: %v", err)
	}
	if !strings.Contains(string(data), `"msg":"hello"`) || strings.Contains(string(data), "hidden") {
		t.Errorf("Unexpected log file content %q", data)
	}
}
