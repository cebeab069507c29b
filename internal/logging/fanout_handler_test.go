package logging

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewFanoutHandlerCollapses(t *testing.T) {
	if _, ok := newFanoutHandler(nil, nil).(NoopHandler); !ok {
		t.Fatal("expected NoopHandler when every handler is nil")
	}

	var buf bytes.Buffer
	inner := slog.NewJSONHandler(&buf, nil)
	if h := newFanoutHandler(nil, inner, nil); h != inner {
		t.Fatal("expected the single non-nil handler to be returned unwrapped")
	}
}

func TestFanoutHandlerRespectsLevels(t *testing.T) {
	var infoBuf, debugBuf bytes.Buffer
	h := newFanoutHandler(
		slog.NewJSONHandler(&infoBuf, &slog.HandlerOptions{Level: slog.LevelInfo}),
		slog.NewJSONHandler(&debugBuf, &slog.HandlerOptions{Level: slog.LevelDebug}),
	)
	if !h.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("expected fanout to be enabled when any handler accepts debug")
	}

	slog.New(h).Debug("encoder stderr", "line", "frame=  25")

	if infoBuf.Len() != 0 {
		t.Fatalf("info handler should not receive debug records, got %q", infoBuf.String())
	}
	if debugBuf.Len() == 0 {
		t.Fatal("debug handler should receive debug records")
	}
}

func TestFanoutHandlerPropagatesAttrsAndGroups(t *testing.T) {
	var buf1, buf2 bytes.Buffer
	h := newFanoutHandler(slog.NewJSONHandler(&buf1, nil), slog.NewJSONHandler(&buf2, nil))

	logger := slog.New(h).With(FieldComponent, "recorder").WithGroup("capture")
	logger.Info("encoder launched", "pid", 4242)

	for i, out := range []string{buf1.String(), buf2.String()} {
		if !strings.Contains(out, `"component":"recorder"`) {
			t.Fatalf("handler %d missing component: %s", i, out)
		}
		if !strings.Contains(out, `"capture":{"pid":4242}`) {
			t.Fatalf("handler %d missing grouped attr: %s", i, out)
		}
	}
}

func TestTeeLogger(t *testing.T) {
	var baseBuf, teeBuf bytes.Buffer
	logger := TeeLogger(slog.New(slog.NewJSONHandler(&baseBuf, nil)), slog.NewJSONHandler(&teeBuf, nil))
	logger.Info("teed message")

	if baseBuf.Len() == 0 || teeBuf.Len() == 0 {
		t.Fatalf("expected output in both buffers, base=%q tee=%q", baseBuf.String(), teeBuf.String())
	}

	teeBuf.Reset()
	TeeLogger(nil, slog.NewJSONHandler(&teeBuf, nil)).Info("no base")
	if teeBuf.Len() == 0 {
		t.Fatal("expected output when base is nil")
	}
}

func TestTeeToSessionLog(t *testing.T) {
	dir := t.TempDir()
	var baseBuf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&baseBuf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	logger, closer, err := TeeToSessionLog(base, dir)
	if err != nil {
		t.Fatalf("TeeToSessionLog: %v", err)
	}
	logger.Debug("segment observed", "segment", "record_screen_000")
	logger.Info("recording stopped")
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, SessionLogName))
	if err != nil {
		t.Fatalf("read session log: %v", err)
	}
	if !strings.Contains(string(data), "segment observed") || !strings.Contains(string(data), "recording stopped") {
		t.Fatalf("session log missing records: %s", data)
	}
	if strings.Contains(baseBuf.String(), "segment observed") {
		t.Fatal("base logger should not receive debug records")
	}
}

func TestTeeToSessionLogMissingDir(t *testing.T) {
	base := NewNop()
	logger, closer, err := TeeToSessionLog(base, filepath.Join(t.TempDir(), "missing"))
	if err == nil {
		t.Fatal("expected error for missing directory")
	}
	if logger != base {
		t.Fatal("expected base logger to be returned on failure")
	}
	if closer == nil || closer.Close() != nil {
		t.Fatal("expected usable no-op closer")
	}
}
