package testsupport

import (
	"context"
	"testing"
	"time"

	"screencap/internal/config"
	"screencap/internal/history"
)

// MustOpenHistory opens a history.Store for tests and registers cleanup.
func MustOpenHistory(t testing.TB, cfg *config.Config) *history.Store {
	t.Helper()

	store, err := history.Open(cfg)
	if err != nil {
		t.Fatalf("history.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// BeginSession inserts a recording session row for tests.
func BeginSession(t testing.TB, store *history.Store, id string, startedAt time.Time) history.Record {
	t.Helper()

	rec := history.Record{
		ID:             id,
		Dir:            "/tmp/recordings/" + id,
		TotalSeconds:   10,
		SegmentCount:   2,
		SegmentSeconds: 5,
		StartedAt:      startedAt,
	}
	if err := store.Begin(context.Background(), rec); err != nil {
		t.Fatalf("store.Begin: %v", err)
	}
	return rec
}
