package segwatch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"screencap/internal/logging"
)

// Kind identifies what changed in the recording directory.
type Kind string

const (
	SegmentStarted  Kind = "segment_started"
	ManifestUpdated Kind = "manifest_updated"
)

// Event is one observed change.
type Event struct {
	Kind Kind
	Name string
	At   time.Time
}

// Summary counts what a watcher has seen so far.
type Summary struct {
	Rotations       int
	ManifestUpdates int
	Segments        []string
}

// Watcher reports activity for files matching a segment prefix and a manifest name.
type Watcher struct {
	dir      string
	prefix   string
	manifest string
	logger   *slog.Logger
	fs       *fsnotify.Watcher
	events   chan Event

	mu      sync.Mutex
	active  string
	summary Summary
	seen    map[string]struct{}
}

// New starts watching dir. Close must be called to release the inotify handle.
func New(dir, segmentPrefix, manifestName string, logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}
	return &Watcher{
		dir:      dir,
		prefix:   segmentPrefix,
		manifest: manifestName,
		logger:   logging.NewComponentLogger(logger, "segwatch"),
		fs:       fsw,
		events:   make(chan Event, 64),
		seen:     make(map[string]struct{}),
	}, nil
}

// Events delivers observed changes. Events are dropped when nobody reads.
func (w *Watcher) Events() <-chan Event { return w.events }

// Run processes filesystem notifications until ctx ends or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) error {
	defer close(w.events)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			w.handle(ev)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			logging.WarnWithContext(w.logger, "segment watcher error", "segwatch_error",
				logging.Error(err),
				logging.String(logging.FieldImpact, "segment rotation may go unreported"),
			)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		return
	}
	name := filepath.Base(ev.Name)
	switch {
	case name == w.manifest:
		w.mu.Lock()
		w.summary.ManifestUpdates++
		w.mu.Unlock()
		w.logger.Debug("manifest updated", logging.String("manifest", name))
		w.emit(Event{Kind: ManifestUpdated, Name: name, At: time.Now()})
	case strings.HasPrefix(name, w.prefix):
		w.mu.Lock()
		if name == w.active {
			w.mu.Unlock()
			return
		}
		w.active = name
		w.summary.Rotations++
		if _, ok := w.seen[name]; !ok {
			w.seen[name] = struct{}{}
			w.summary.Segments = append(w.summary.Segments, name)
		}
		rotations := w.summary.Rotations
		w.mu.Unlock()
		w.logger.Info("segment started",
			logging.String(logging.FieldEventType, "segment_started"),
			logging.String("segment", name),
			logging.Int("rotation", rotations),
		)
		w.emit(Event{Kind: SegmentStarted, Name: name, At: time.Now()})
	}
}

func (w *Watcher) emit(ev Event) {
	select {
	case w.events <- ev:
	default:
	}
}

// Summary returns a snapshot of what has been observed.
func (w *Watcher) Summary() Summary {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := w.summary
	out.Segments = append([]string(nil), w.summary.Segments...)
	return out
}

// Close stops the underlying inotify watcher; Run returns afterwards.
func (w *Watcher) Close() error {
	return w.fs.Close()
}
