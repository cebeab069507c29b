package segwatch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"screencap/internal/logging"
)

func nextEvent(t *testing.T, events <-chan Event) Event {
	t.Helper()
	select {
	case ev, ok := <-events:
		if !ok {
			t.Fatal("events channel closed")
		}
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func TestWatcherReportsRotationAndManifest(t *testing.T) {
	dir := t.TempDir()
	w, err := New(dir, "record_screen_", "out.manifest", logging.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	write := func(name, content string) {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	write("record_screen_000", "a")
	if ev := nextEvent(t, w.Events()); ev.Kind != SegmentStarted || ev.Name != "record_screen_000" {
		t.Fatalf("unexpected event %+v", ev)
	}

	write("out.manifest", "file record_screen_000\n")
	for {
		ev := nextEvent(t, w.Events())
		if ev.Kind == ManifestUpdated {
			break
		}
		if ev.Name != "record_screen_000" {
			t.Fatalf("unexpected event %+v", ev)
		}
	}

	write("notes.txt", "ignored")
	write("record_screen_001", "b")
	for {
		ev := nextEvent(t, w.Events())
		if ev.Kind == SegmentStarted {
			if ev.Name != "record_screen_001" {
				t.Fatalf("unexpected rotation %+v", ev)
			}
			break
		}
	}

	summary := w.Summary()
	if summary.Rotations != 2 || len(summary.Segments) != 2 || summary.ManifestUpdates == 0 {
		t.Fatalf("unexpected summary %+v", summary)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestWatcherMissingDir(t *testing.T) {
	if _, err := New(filepath.Join(t.TempDir(), "missing"), "record_screen_", "out.manifest", nil); err == nil {
		t.Fatal("expected error for missing directory")
	}
}
