package recorder

import (
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"screencap/internal/services"
)

// File names produced inside a recording directory.
const (
	SegmentPrefix  = "record_screen_"
	SegmentPattern = SegmentPrefix + "%03d"
	ManifestName   = "out.manifest"
	UniqueSuffix   = ".unique"
	ArtifactName   = "record_screen"
)

// Session describes one recording: where it lands and how it is split.
type Session struct {
	ID           string
	Dir          string
	Duration     time.Duration
	SegmentCount int
	CreatedAt    time.Time
}

// NewSession validates the recording parameters and assigns a fresh id.
func NewSession(dir string, duration time.Duration, segmentCount int) (*Session, error) {
	if duration <= 0 {
		return nil, services.Wrap(services.ErrValidation, "record", "new session", "duration must be positive", nil)
	}
	if segmentCount < 1 {
		return nil, services.Wrap(services.ErrValidation, "record", "new session", "segment count must be at least 1", nil)
	}
	if duration/time.Duration(segmentCount) <= 0 {
		return nil, services.Wrap(services.ErrValidation, "record", "new session", "segment duration rounds to zero", nil)
	}
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, services.Wrap(services.ErrValidation, "record", "new session", "target directory required", nil)
	}
	return &Session{
		ID:           uuid.NewString(),
		Dir:          dir,
		Duration:     duration,
		SegmentCount: segmentCount,
		CreatedAt:    time.Now().UTC(),
	}, nil
}

// SegmentDuration is the total duration divided evenly across segments.
func (s *Session) SegmentDuration() time.Duration {
	return s.Duration / time.Duration(s.SegmentCount)
}

// SegmentTimeArg renders the segment duration in seconds for -segment_time.
func (s *Session) SegmentTimeArg() string {
	return formatSeconds(s.SegmentDuration())
}

// ShortID returns the first eight characters of the session id.
func (s *Session) ShortID() string {
	if len(s.ID) > 8 {
		return s.ID[:8]
	}
	return s.ID
}

// DirName is the per-session directory name used under an output root:
// the UTC start time followed by the short id.
func (s *Session) DirName() string {
	return s.CreatedAt.Format("20060102-150405") + "-" + s.ShortID()
}

func (s *Session) ManifestPath() string       { return ManifestPath(s.Dir) }
func (s *Session) UniqueManifestPath() string { return UniqueManifestPath(s.Dir) }
func (s *Session) ArtifactPath() string       { return ArtifactPath(s.Dir) }

// SegmentOutputPattern is the printf-style output path handed to the segment muxer.
func (s *Session) SegmentOutputPattern() string {
	return filepath.Join(s.Dir, SegmentPattern)
}

// ManifestPath returns the encoder-maintained manifest inside dir.
func ManifestPath(dir string) string { return filepath.Join(dir, ManifestName) }

// UniqueManifestPath returns the deduplicated manifest inside dir.
func UniqueManifestPath(dir string) string { return ManifestPath(dir) + UniqueSuffix }

// ArtifactPath returns the concatenated output inside dir.
func ArtifactPath(dir string) string { return filepath.Join(dir, ArtifactName) }

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}
