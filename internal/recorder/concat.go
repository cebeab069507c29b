package recorder

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"screencap/internal/logging"
	"screencap/internal/services"
)

// Reasons a concatenation did not run.
const (
	ReasonNoManifest    = "manifest missing"
	ReasonEmptyManifest = "manifest empty"
)

// DefaultVerifyTolerance is the allowed gap between the artifact duration and
// the summed segment durations.
const DefaultVerifyTolerance = 0.5

// Executor runs an external command to completion and returns its combined output.
type Executor interface {
	Run(ctx context.Context, binary string, args []string) ([]byte, error)
}

// DurationProber reports the playable duration of a media file in seconds.
type DurationProber interface {
	DurationSeconds(ctx context.Context, path string) (float64, error)
}

// ConcatOption configures a Concatenator.
type ConcatOption func(*Concatenator)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) ConcatOption {
	return func(c *Concatenator) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// WithConcatLogger attaches a logger.
func WithConcatLogger(logger *slog.Logger) ConcatOption {
	return func(c *Concatenator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithDurationProber enables Verify.
func WithDurationProber(prober DurationProber) ConcatOption {
	return func(c *Concatenator) {
		c.prober = prober
	}
}

// WithVerifyTolerance overrides DefaultVerifyTolerance.
func WithVerifyTolerance(seconds float64) ConcatOption {
	return func(c *Concatenator) {
		if seconds > 0 {
			c.tolerance = seconds
		}
	}
}

// Concatenator joins the segments listed in a recording directory.
type Concatenator struct {
	binary    string
	exec      Executor
	prober    DurationProber
	logger    *slog.Logger
	tolerance float64
}

// ConcatResult describes what Run did.
type ConcatResult struct {
	Dir          string
	Ran          bool
	Reason       string
	ManifestPath string
	UniquePath   string
	ArtifactPath string
	Segments     []string
	Dedupe       DedupeResult
}

// NewConcatenator builds a Concatenator for the given ffmpeg binary.
func NewConcatenator(binary string, opts ...ConcatOption) *Concatenator {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffmpeg"
	}
	c := &Concatenator{
		binary:    binary,
		exec:      commandExecutor{},
		logger:    logging.NewNop(),
		tolerance: DefaultVerifyTolerance,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.NewComponentLogger(c.logger, "concat")
	return c
}

// BuildConcatArgs returns the argv (without the binary) for a stream-copy join.
func BuildConcatArgs(uniquePath, artifactPath string) []string {
	return []string{
		"-nostdin",
		"-loglevel", "error",
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", uniquePath,
		"-c", "copy",
		"-f", "mp4",
		artifactPath,
	}
}

// Run deduplicates dir/out.manifest and joins the listed segments into
// dir/record_screen. A missing or empty manifest is not an error: the result
// reports Ran=false with the reason.
func (c *Concatenator) Run(ctx context.Context, dir string) (ConcatResult, error) {
	logger := logging.WithContext(ctx, c.logger)
	result := ConcatResult{
		Dir:          dir,
		ManifestPath: ManifestPath(dir),
		UniquePath:   UniqueManifestPath(dir),
		ArtifactPath: ArtifactPath(dir),
	}

	if _, err := os.Stat(result.ManifestPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			result.Reason = ReasonNoManifest
			logger.Info("no manifest found; skipping concatenation",
				logging.String(logging.FieldEventType, "concat_skipped"),
				logging.String("manifest", result.ManifestPath),
			)
			return result, nil
		}
		return result, services.Wrap(services.ErrExternalTool, "concat", "stat manifest", result.ManifestPath, err)
	}

	dedupe, err := DeduplicateTo(result.ManifestPath, result.UniquePath)
	if err != nil {
		return result, services.Wrap(services.ErrExternalTool, "concat", "deduplicate manifest", "", err)
	}
	result.Dedupe = dedupe
	logger.Info("manifest deduplicated",
		logging.String(logging.FieldEventType, "manifest_deduplicated"),
		logging.Int("lines", dedupe.InputLines),
		logging.Int("unique_lines", dedupe.OutputLines),
	)

	segments, err := ParseEntries(result.UniquePath)
	if err != nil {
		return result, services.Wrap(services.ErrExternalTool, "concat", "parse manifest", "", err)
	}
	result.Segments = segments
	if dedupe.OutputLines == 0 || len(segments) == 0 {
		result.Reason = ReasonEmptyManifest
		logger.Info("deduplicated manifest lists no segments; skipping concatenation",
			logging.String(logging.FieldEventType, "concat_skipped"),
			logging.String("manifest", result.UniquePath),
		)
		return result, nil
	}

	args := BuildConcatArgs(result.UniquePath, result.ArtifactPath)
	logger.Debug("concat argv", logging.String("binary", c.binary), logging.Any("args", args))
	output, err := c.exec.Run(ctx, c.binary, args)
	if err != nil {
		return result, services.Wrap(services.ErrExternalTool, "concat", "join segments", strings.TrimSpace(string(output)), err)
	}

	result.Ran = true
	logger.Info("segments joined",
		logging.String(logging.FieldEventType, "concat_completed"),
		logging.Int("segments", len(segments)),
		logging.String("artifact", result.ArtifactPath),
	)
	return result, nil
}

// Verification compares the artifact against its inputs.
type Verification struct {
	ArtifactSeconds float64
	SegmentSeconds  float64
	Segments        int
	Delta           float64
	OK              bool
}

// Verify probes each listed segment and the artifact and reports whether the
// artifact duration matches the segment total within the tolerance.
func (c *Concatenator) Verify(ctx context.Context, result ConcatResult) (Verification, error) {
	if c.prober == nil {
		return Verification{}, services.Wrap(services.ErrConfiguration, "concat", "verify", "no duration prober configured", nil)
	}
	if !result.Ran {
		return Verification{}, services.Wrap(services.ErrValidation, "concat", "verify", "no artifact was produced", nil)
	}

	var v Verification
	for _, segment := range result.Segments {
		path := segment
		if !filepath.IsAbs(path) {
			path = filepath.Join(result.Dir, segment)
		}
		seconds, err := c.prober.DurationSeconds(ctx, path)
		if err != nil {
			return v, services.Wrap(services.ErrExternalTool, "concat", "probe segment", segment, err)
		}
		v.SegmentSeconds += seconds
		v.Segments++
	}
	seconds, err := c.prober.DurationSeconds(ctx, result.ArtifactPath)
	if err != nil {
		return v, services.Wrap(services.ErrExternalTool, "concat", "probe artifact", result.ArtifactPath, err)
	}
	v.ArtifactSeconds = seconds
	v.Delta = math.Abs(v.ArtifactSeconds - v.SegmentSeconds)
	v.OK = v.Delta <= c.tolerance

	attrs := []logging.Attr{
		logging.Float64("artifact_seconds", v.ArtifactSeconds),
		logging.Float64("segment_seconds", v.SegmentSeconds),
		logging.Float64("delta_seconds", v.Delta),
	}
	if v.OK {
		c.logger.Info("artifact verified", logging.Args(append(attrs, logging.String(logging.FieldEventType, "verify_passed"))...)...)
	} else {
		logging.WarnWithContext(c.logger, "artifact duration differs from segments", "verify_mismatch",
			append(attrs,
				logging.String(logging.FieldErrorHint, fmt.Sprintf("inspect %s and the segments with ffprobe", result.ArtifactPath)),
				logging.String(logging.FieldImpact, "joined recording may be truncated"),
			)...,
		)
	}
	return v, nil
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, binary string, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	return cmd.CombinedOutput()
}
