package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"screencap/internal/config"
	"screencap/internal/deps"
	"screencap/internal/fileutil"
	"screencap/internal/history"
	"screencap/internal/logging"
	"screencap/internal/media/ffprobe"
	"screencap/internal/notifications"
	"screencap/internal/preflight"
	"screencap/internal/recorder"
	"screencap/internal/segwatch"
	"screencap/internal/services"
)

type recordOptions struct {
	duration      time.Duration
	segments      int
	display       string
	dir           string
	export        string
	skipPreflight bool
}

type recordOutcome struct {
	Session         *recorder.Session
	Status          history.Status
	StopReason      string
	ArtifactPath    string
	ArtifactSeconds float64
	ExportPath      string
	Reason          string
	Verification    *recorder.Verification
}

// recording drives one capture from launch to joined artifact.
type recording struct {
	cfg      *config.Config
	opts     recordOptions
	logger   *slog.Logger
	store    *history.Store
	notifier notifications.Service
	signals  []os.Signal
}

func (r *recording) run(ctx context.Context) (recordOutcome, error) {
	var outcome recordOutcome
	cfg := r.cfg

	if err := r.checkEnvironment(ctx); err != nil {
		return outcome, err
	}

	session, err := r.newSession()
	if err != nil {
		return outcome, err
	}
	outcome.Session = session
	if err := os.MkdirAll(session.Dir, 0o755); err != nil {
		return outcome, services.Wrap(services.ErrConfiguration, "record", "create session directory", session.Dir, err)
	}

	logger, closer, err := logging.TeeToSessionLog(r.logger, session.Dir)
	if err != nil {
		logging.WarnWithContext(r.logger, "session log unavailable", "session_log_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "recording details only appear in the daily log"),
		)
	}
	defer closer.Close()

	ctx = services.WithSessionID(ctx, session.ID)
	ctx = services.WithStage(ctx, "record")
	logger = logging.WithContext(ctx, logging.NewComponentLogger(logger, "record"))

	if err := r.store.Begin(ctx, history.Record{
		ID:             session.ID,
		Dir:            session.Dir,
		TotalSeconds:   session.Duration.Seconds(),
		SegmentCount:   session.SegmentCount,
		SegmentSeconds: session.SegmentDuration().Seconds(),
		StartedAt:      session.CreatedAt,
	}); err != nil {
		return outcome, fmt.Errorf("record session history: %w", err)
	}

	display := strings.TrimSpace(r.opts.display)
	if display == "" {
		display = cfg.Capture.Display
	}
	controller, err := recorder.NewController(session,
		recorder.WithBinary(cfg.Capture.FFmpegBinary),
		recorder.WithDisplay(display),
		recorder.WithFrameRate(cfg.Capture.FrameRate),
		recorder.WithEncoder(cfg.Capture.VideoCodec, cfg.Capture.Preset, cfg.Capture.Tune),
		recorder.WithGeometryProber(recorder.XdpyinfoProber{Binary: cfg.Capture.XdpyinfoBinary}),
		recorder.WithLogger(logger),
		recorder.WithLockFile(cfg.LockPath()),
	)
	if err != nil {
		return outcome, r.fail(ctx, logger, session, "launch", err)
	}

	watchCtx, stopWatching := context.WithCancel(ctx)
	watcher := r.startWatcher(watchCtx, logger, session)

	if err := controller.Start(ctx); err != nil {
		stopWatching()
		if watcher != nil {
			_ = watcher.Close()
		}
		return outcome, r.fail(ctx, logger, session, "launch", err)
	}
	r.publish(ctx, logger, notifications.EventRecordingStarted, notifications.Payload{
		"session":  session.ID,
		"duration": session.Duration.String(),
		"segments": session.SegmentCount,
	})

	outcome.StopReason = r.awaitStop(ctx, controller, session.Duration)
	controller.Stop()
	// Joining and bookkeeping must finish even when the run was cancelled.
	ctx = context.WithoutCancel(ctx)
	stoppedAt := time.Now()
	encoderErr := r.awaitEncoder(logger, controller)

	stopWatching()
	if watcher != nil {
		summary := watcher.Summary()
		_ = watcher.Close()
		logger.Info("segment activity",
			logging.String(logging.FieldEventType, "segments_observed"),
			logging.Int("rotations", summary.Rotations),
			logging.Int("manifest_updates", summary.ManifestUpdates),
			logging.Int("segments", len(summary.Segments)),
		)
	}

	logger.Info("recording stopped",
		logging.String(logging.FieldEventType, "recording_stopped"),
		logging.String("reason", outcome.StopReason),
		logging.Duration("elapsed", stoppedAt.Sub(session.CreatedAt).Round(time.Millisecond)),
	)
	if err := r.store.MarkStopped(ctx, session.ID, stoppedAt); err != nil {
		logging.WarnWithContext(logger, "session history update failed", "history_update_failed", logging.Error(err))
	}

	ctx = services.WithStage(ctx, "concat")
	result, err := r.concatenator(logger).Run(ctx, session.Dir)
	if err != nil {
		return outcome, r.fail(ctx, logger, session, "concat", err)
	}
	if !result.Ran {
		if encoderErr != nil {
			return outcome, r.fail(ctx, logger, session, "record", encoderErr)
		}
		outcome.Status = history.StatusEmpty
		outcome.Reason = result.Reason
		if err := r.store.MarkEmpty(ctx, session.ID, result.Reason); err != nil {
			logging.WarnWithContext(logger, "session history update failed", "history_update_failed", logging.Error(err))
		}
		r.publish(ctx, logger, notifications.EventRecordingEmpty, notifications.Payload{
			"session": session.ID,
			"reason":  result.Reason,
		})
		return outcome, nil
	}

	outcome.Status = history.StatusCompleted
	outcome.ArtifactPath = result.ArtifactPath
	if cfg.Capture.Verify {
		outcome.Verification = r.verify(ctx, logger, result)
		if outcome.Verification != nil {
			outcome.ArtifactSeconds = outcome.Verification.ArtifactSeconds
		}
	}
	if err := r.store.MarkCompleted(ctx, session.ID, result.ArtifactPath, outcome.ArtifactSeconds); err != nil {
		logging.WarnWithContext(logger, "session history update failed", "history_update_failed", logging.Error(err))
	}

	if target := strings.TrimSpace(r.opts.export); target != "" {
		exported, err := exportArtifact(result.ArtifactPath, target, session)
		if err != nil {
			return outcome, r.fail(ctx, logger, session, "export", err)
		}
		outcome.ExportPath = exported
		logger.Info("artifact exported",
			logging.String(logging.FieldEventType, "artifact_exported"),
			logging.String("path", exported),
		)
	}

	payload := notifications.Payload{
		"session":  session.ID,
		"artifact": result.ArtifactPath,
		"filename": session.DirName() + ".mp4",
	}
	if outcome.ArtifactSeconds > 0 {
		payload["seconds"] = outcome.ArtifactSeconds
	}
	r.publish(ctx, logger, notifications.EventRecordingCompleted, payload)
	return outcome, nil
}

func (r *recording) checkEnvironment(ctx context.Context) error {
	if r.opts.skipPreflight {
		return nil
	}
	if missing := deps.Missing(preflight.CheckSystemDeps(ctx, r.cfg)); len(missing) > 0 {
		names := make([]string, 0, len(missing))
		for _, m := range missing {
			names = append(names, fmt.Sprintf("%s (%s)", m.Name, m.Detail))
		}
		return services.Wrap(services.ErrConfiguration, "record", "check dependencies", strings.Join(names, ", "), nil)
	}
	if failed := preflight.Failed(preflight.RunAll(ctx, r.cfg)); len(failed) > 0 {
		details := make([]string, 0, len(failed))
		for _, f := range failed {
			details = append(details, f.Name+": "+f.Detail)
		}
		return services.Wrap(services.ErrConfiguration, "record", "preflight", strings.Join(details, "; "), nil)
	}
	return nil
}

func (r *recording) newSession() (*recorder.Session, error) {
	duration := r.opts.duration
	if duration == 0 {
		duration = r.cfg.RecordingDuration()
	}
	segments := r.opts.segments
	if segments == 0 {
		segments = r.cfg.Capture.SegmentCount
	}

	if dir := strings.TrimSpace(r.opts.dir); dir != "" {
		expanded, err := config.ExpandPath(dir)
		if err != nil {
			return nil, services.Wrap(services.ErrValidation, "record", "resolve directory", dir, err)
		}
		return recorder.NewSession(expanded, duration, segments)
	}
	session, err := recorder.NewSession(r.cfg.Paths.OutputDir, duration, segments)
	if err != nil {
		return nil, err
	}
	session.Dir = filepath.Join(session.Dir, session.DirName())
	return session, nil
}

// awaitStop blocks until the duration elapses, a termination signal arrives,
// or the encoder exits on its own, and reports which happened.
func (r *recording) awaitStop(ctx context.Context, controller *recorder.Controller, duration time.Duration) string {
	signals := r.signals
	if len(signals) == 0 {
		signals = []os.Signal{os.Interrupt, syscall.SIGTERM}
	}
	sigCtx, stop := signal.NotifyContext(ctx, signals...)
	defer stop()

	timer := time.NewTimer(duration)
	defer timer.Stop()

	select {
	case <-timer.C:
		return "duration elapsed"
	case <-sigCtx.Done():
		return "interrupted"
	case <-controller.Done():
		return "encoder exited"
	}
}

// awaitEncoder lets the encoder flush its last segment. A slow exit is logged
// and tolerated; an encoder that died on its own is returned.
func (r *recording) awaitEncoder(logger *slog.Logger, controller *recorder.Controller) error {
	err := controller.WaitTimeout(r.cfg.StopGrace())
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		logging.WarnWithContext(logger, "encoder still running after grace period", "encoder_slow_exit",
			logging.Duration("grace", r.cfg.StopGrace()),
			logging.String(logging.FieldImpact, "the last segment may be truncated"),
		)
		return nil
	default:
		logging.WarnWithContext(logger, "encoder exited before stop", "encoder_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the display and encoder settings"),
		)
		return err
	}
}

func (r *recording) startWatcher(ctx context.Context, logger *slog.Logger, session *recorder.Session) *segwatch.Watcher {
	watcher, err := segwatch.New(session.Dir, recorder.SegmentPrefix, recorder.ManifestName, logger)
	if err != nil {
		logger.Debug("segment watcher unavailable", logging.Error(err))
		return nil
	}
	go func() {
		_ = watcher.Run(ctx)
	}()
	go reportSegmentWraps(logger, watcher.Events())
	return watcher
}

// reportSegmentWraps warns the first time a segment name is reused, which
// means the muxer wrapped and is overwriting earlier footage. Rotation itself
// is already logged by the watcher. It returns once events is closed.
func reportSegmentWraps(logger *slog.Logger, events <-chan segwatch.Event) int {
	seen := make(map[string]struct{})
	wraps := 0
	for ev := range events {
		if ev.Kind != segwatch.SegmentStarted {
			continue
		}
		if _, ok := seen[ev.Name]; !ok {
			seen[ev.Name] = struct{}{}
			continue
		}
		wraps++
		if wraps == 1 {
			logging.WarnWithContext(logger, "segment index wrapped", "segment_wrapped",
				logging.String("segment", ev.Name),
				logging.String(logging.FieldImpact, "earlier footage in this segment is overwritten"),
			)
		}
	}
	return wraps
}

func (r *recording) concatenator(logger *slog.Logger) *recorder.Concatenator {
	return newConcatenator(r.cfg, logger)
}

func (r *recording) verify(ctx context.Context, logger *slog.Logger, result recorder.ConcatResult) *recorder.Verification {
	check, err := r.concatenator(logger).Verify(ctx, result)
	if err != nil {
		logging.WarnWithContext(logger, "artifact verification failed", "verify_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "artifact duration was not checked"),
		)
		return nil
	}
	return &check
}

func (r *recording) fail(ctx context.Context, logger *slog.Logger, session *recorder.Session, step string, err error) error {
	logging.ErrorWithContext(logger, "recording failed", "recording_failed",
		logging.String("step", step),
		logging.Error(err),
	)
	if markErr := r.store.MarkFailed(ctx, session.ID, err); markErr != nil {
		logging.WarnWithContext(logger, "session history update failed", "history_update_failed", logging.Error(markErr))
	}
	r.publish(ctx, logger, notifications.EventError, notifications.Payload{
		"session": session.ID,
		"context": step,
		"error":   err,
	})
	return err
}

func (r *recording) publish(ctx context.Context, logger *slog.Logger, event notifications.Event, payload notifications.Payload) {
	if r.notifier == nil {
		return
	}
	if err := r.notifier.Publish(ctx, event, payload); err != nil {
		logger.Debug("notification not delivered", logging.String("event", string(event)), logging.Error(err))
	}
}

func newConcatenator(cfg *config.Config, logger *slog.Logger) *recorder.Concatenator {
	return recorder.NewConcatenator(cfg.Capture.FFmpegBinary,
		recorder.WithConcatLogger(logger),
		recorder.WithDurationProber(ffprobe.Prober{Binary: cfg.Capture.FFprobeBinary}),
	)
}

// exportArtifact copies the artifact to target. A directory target receives
// the session's directory name with an .mp4 extension.
func exportArtifact(artifact, target string, session *recorder.Session) (string, error) {
	dest, err := config.ExpandPath(target)
	if err != nil {
		return "", fmt.Errorf("resolve export path: %w", err)
	}
	if info, err := os.Stat(dest); err == nil && info.IsDir() {
		dest = filepath.Join(dest, session.DirName()+".mp4")
	} else if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("create export directory: %w", err)
	}
	if err := fileutil.CopyFileVerified(artifact, dest); err != nil {
		return "", fmt.Errorf("export artifact: %w", err)
	}
	return dest, nil
}
