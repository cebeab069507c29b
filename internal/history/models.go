package history

import (
	"strings"
	"time"
)

// Status is the lifecycle state of a recorded session.
type Status string

const (
	StatusRecording Status = "recording"
	StatusStopped   Status = "stopped"
	StatusCompleted Status = "completed"
	StatusEmpty     Status = "empty"
	StatusFailed    Status = "failed"
)

var allStatuses = []Status{StatusRecording, StatusStopped, StatusCompleted, StatusEmpty, StatusFailed}

// AllStatuses returns every known status in lifecycle order.
func AllStatuses() []Status {
	return append([]Status(nil), allStatuses...)
}

// ParseStatus maps a user supplied name onto a Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	for _, s := range allStatuses {
		if s == normalized {
			return s, true
		}
	}
	return "", false
}

// Terminal reports whether no further transitions are expected.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusEmpty || s == StatusFailed
}

// Record is one row of the sessions table.
type Record struct {
	ID              string
	Dir             string
	TotalSeconds    float64
	SegmentCount    int
	SegmentSeconds  float64
	Status          Status
	StartedAt       time.Time
	StoppedAt       time.Time
	ArtifactPath    string
	ArtifactSeconds float64
	ErrorMessage    string
	UpdatedAt       time.Time
}

// Elapsed is the wall time between start and stop, or zero while recording.
func (r Record) Elapsed() time.Duration {
	if r.StoppedAt.IsZero() || r.StartedAt.IsZero() {
		return 0
	}
	return r.StoppedAt.Sub(r.StartedAt)
}
