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

	"screencap/internal/config"
	"screencap/internal/services"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"":        slog.LevelInfo,
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for input, want := range tests {
		if got := parseLevel(input); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := New(Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestNewJSONWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "out.log")
	logger, err := New(Options{Level: "info", Format: "json", OutputPaths: []string{path}, ErrorOutputPaths: []string{path}, SessionID: "abc"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Info("recording started", "segments", 2)
	logger.Debug("hidden")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one record, got %d: %s", len(lines), data)
	}
	var record map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &record); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if record["msg"] != "recording started" || record["level"] != "info" {
		t.Fatalf("unexpected record: %v", record)
	}
	if record[FieldSessionID] != "abc" {
		t.Fatalf("expected session id, got %v", record[FieldSessionID])
	}
	if _, ok := record["ts"]; !ok {
		t.Fatalf("expected ts key, got %v", record)
	}
}

func TestPrettyHandlerFormatsHeaderAndFields(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	logger := slog.New(newPrettyHandler(&buf, lvl, false))

	ctx := services.WithStage(services.WithSessionID(context.Background(), "0123456789abcdef"), "record")
	logger = NewComponentLogger(WithContext(ctx, logger), "recorder")
	logger.Info("encoder launched", "segment_seconds", 5.0, FieldCorrelationID, "req-1")

	out := buf.String()
	if !strings.Contains(out, "INFO [recorder] Session 01234567 (record) – encoder launched") {
		t.Fatalf("unexpected header: %q", out)
	}
	if !strings.Contains(out, "    - Segment Seconds: 5") {
		t.Fatalf("expected bullet field, got %q", out)
	}
	if strings.Contains(out, "req-1") {
		t.Fatalf("correlation id should be hidden at info: %q", out)
	}
}

func TestPrettyHandlerDebugShowsAllFields(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	lvl.Set(slog.LevelDebug)
	logger := slog.New(newPrettyHandler(&buf, lvl, false))
	logger.Debug("probe", FieldCorrelationID, "req-2", "args", "-display :1")

	out := buf.String()
	if !strings.Contains(out, "DEBUG") || !strings.Contains(out, "correlation_id: req-2") {
		t.Fatalf("unexpected debug output: %q", out)
	}
	if !strings.Contains(out, "args: -display :1") {
		t.Fatalf("expected args field, got %q", out)
	}
}

func TestPrettyHandlerHidesOverflow(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newPrettyHandler(&buf, new(slog.LevelVar), false))
	args := make([]any, 0, 2*(maxInfoFields+2))
	for i := 0; i < maxInfoFields+2; i++ {
		args = append(args, "k"+string(rune('a'+i)), i)
	}
	logger.Info("many", args...)
	if !strings.Contains(buf.String(), "+ 2 more fields hidden") {
		t.Fatalf("expected overflow marker, got %q", buf.String())
	}
}

func TestComposeSubject(t *testing.T) {
	cases := []struct{ id, stage, want string }{
		{"", "", ""},
		{"abc", "", "Session abc"},
		{"", "concat", "concat"},
		{"0123456789", "concat", "Session 01234567 (concat)"},
	}
	for _, tc := range cases {
		if got := composeSubject(tc.id, tc.stage); got != tc.want {
			t.Errorf("composeSubject(%q,%q) = %q, want %q", tc.id, tc.stage, got, tc.want)
		}
	}
}

func TestWarnWithContextInjectsDefaults(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	WarnWithContext(logger, "stop signal failed", "stop_signal_failed", String(FieldImpact, "encoder may linger"))

	out := buf.String()
	for _, want := range []string{`"event_type":"stop_signal_failed"`, `"error_hint":"check logs for details"`, `"impact":"encoder may linger"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %s in %s", want, out)
		}
	}
}

func TestNewFromConfigWritesDailyLog(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{}
	cfg.Paths.LogDir = filepath.Join(dir, "logs")
	cfg.Logging.Format = "json"
	cfg.Logging.Level = "error"

	logger, err := NewFromConfig(cfg, "info")
	if err != nil {
		t.Fatalf("NewFromConfig: %v", err)
	}
	logger.Info("override applied")

	data, err := os.ReadFile(DailyLogPath(cfg.Paths.LogDir, time.Now()))
	if err != nil {
		t.Fatalf("read daily log: %v", err)
	}
	if !strings.Contains(string(data), "override applied") {
		t.Fatalf("expected record in daily log: %s", data)
	}
}

func TestCleanupOldLogs(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "screencap-2020-01-01.log")
	recent := filepath.Join(dir, "screencap-2099-01-01.log")
	keep := filepath.Join(dir, "screencap-2019-01-01.log")
	other := filepath.Join(dir, "notes.txt")
	for _, path := range []string{old, recent, keep, other} {
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	past := time.Now().AddDate(0, 0, -40)
	for _, path := range []string{old, keep, other} {
		if err := os.Chtimes(path, past, past); err != nil {
			t.Fatal(err)
		}
	}

	removed := CleanupOldLogs(NewNop(), 30, RetentionTarget{Dir: dir, Pattern: LogFilePattern, Exclude: []string{keep}})
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Fatal("expected old log to be pruned")
	}
	for _, path := range []string{recent, keep, other} {
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("expected %s to remain: %v", path, err)
		}
	}
	if CleanupOldLogs(NewNop(), 0, RetentionTarget{Dir: dir}) != 0 {
		t.Fatal("retention 0 must disable pruning")
	}
}

func TestJSONHandlerWritesDurationsAsSeconds(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	logger := slog.New(newJSONHandler(&buf, lvl, false))
	logger.Info("recording stopped", "elapsed", 2500*time.Millisecond)

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if record["elapsed"] != 2.5 {
		t.Fatalf("elapsed = %v, want 2.5", record["elapsed"])
	}
	ts, _ := record["ts"].(string)
	if _, err := time.Parse(jsonTimeLayout, ts); err != nil || !strings.Contains(ts, ".") {
		t.Fatalf("ts %q should carry milliseconds (%v)", ts, err)
	}
}

func TestFormatTimestampAt(t *testing.T) {
	now := time.Date(2026, 3, 4, 18, 0, 0, 0, time.Local)
	if got := formatTimestampAt(time.Date(2026, 3, 4, 9, 5, 7, 250*int(time.Millisecond), time.Local), now); got != "09:05:07.250" {
		t.Fatalf("same day = %q", got)
	}
	if got := formatTimestampAt(time.Date(2026, 3, 3, 23, 59, 1, 0, time.Local), now); got != "2026-03-03 23:59:01" {
		t.Fatalf("other day = %q", got)
	}
	if formatTimestampAt(time.Time{}, now) != "" {
		t.Fatal("zero time should render empty")
	}
}
