package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sys/unix"

	"screencap/internal/logging"
	"screencap/internal/services"
)

var (
	// ErrAlreadyRecording is returned by Start while an encoder is tracked.
	ErrAlreadyRecording = errors.New("recording already in progress")
	// ErrLocked is returned by Start when another process holds the lock file.
	ErrLocked = errors.New("another recording holds the lock")
)

// State is the controller lifecycle state.
type State int

const (
	StateIdle State = iota
	StateRecording
)

func (s State) String() string {
	if s == StateRecording {
		return "recording"
	}
	return "idle"
}

// Option configures a Controller.
type Option func(*Controller)

// WithBinary overrides the encoder executable.
func WithBinary(binary string) Option {
	return func(c *Controller) {
		if b := strings.TrimSpace(binary); b != "" {
			c.params.Binary = b
		}
	}
}

// WithDisplay selects the X display to capture.
func WithDisplay(display string) Option {
	return func(c *Controller) {
		if d := strings.TrimSpace(display); d != "" {
			c.params.Display = d
		}
	}
}

// WithFrameRate sets the capture frame rate.
func WithFrameRate(fps int) Option {
	return func(c *Controller) {
		if fps > 0 {
			c.params.FrameRate = fps
		}
	}
}

// WithEncoder sets codec, preset and tune. Empty preset or tune omits the flag.
func WithEncoder(codec, preset, tune string) Option {
	return func(c *Controller) {
		if codec = strings.TrimSpace(codec); codec != "" {
			c.params.VideoCodec = codec
		}
		c.params.Preset = strings.TrimSpace(preset)
		c.params.Tune = strings.TrimSpace(tune)
	}
}

// WithGeometryProber replaces the xdpyinfo probe.
func WithGeometryProber(prober GeometryProber) Option {
	return func(c *Controller) {
		if prober != nil {
			c.prober = prober
		}
	}
}

// WithLogger attaches a logger; the controller tags it with its component.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithLockFile enables an exclusive flock held from Start until the encoder
// has exited, not merely until Stop.
func WithLockFile(path string) Option {
	return func(c *Controller) {
		c.lockPath = strings.TrimSpace(path)
	}
}

// outputDrainDelay bounds how long reaping waits for descendants that still
// hold the encoder's output pipe after the encoder itself exited.
const outputDrainDelay = time.Second

// process tracks one launched encoder. pgid is fixed at launch: with Setpgid
// the encoder leads a group that outlives it while any child is alive.
type process struct {
	cmd     *exec.Cmd
	pid     int
	pgid    int
	done    chan struct{}
	err     error
	stopped atomic.Bool
	output  *lineLogger
	lock    *flock.Flock
	logger  *slog.Logger
}

// Controller owns the lifecycle of a single encoder process.
type Controller struct {
	session  *Session
	params   CaptureParams
	prober   GeometryProber
	logger   *slog.Logger
	lockPath string

	mu      sync.Mutex
	current *process
	last    *process
}

// NewController builds an idle controller for session.
func NewController(session *Session, opts ...Option) (*Controller, error) {
	if session == nil {
		return nil, services.Wrap(services.ErrValidation, "record", "new controller", "session required", nil)
	}
	c := &Controller{
		session: session,
		params: CaptureParams{
			Binary:     "ffmpeg",
			Display:    ":1",
			FrameRate:  25,
			VideoCodec: "libx264",
			Preset:     "ultrafast",
			Tune:       "zerolatency",
		},
		prober: XdpyinfoProber{},
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.NewComponentLogger(c.logger, "recorder").With(
		logging.String(logging.FieldSessionID, session.ID),
	)
	return c, nil
}

// Session returns the session the controller records into.
func (c *Controller) Session() *Session { return c.session }

// State reports whether an encoder is currently tracked.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil {
		return StateRecording
	}
	return StateIdle
}

// Recording is shorthand for State() == StateRecording.
func (c *Controller) Recording() bool { return c.State() == StateRecording }

// PID returns the tracked encoder pid, or 0 when idle.
func (c *Controller) PID() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return 0
	}
	return c.current.pid
}

// Done is closed when the tracked encoder exits. It is nil while idle.
func (c *Controller) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return nil
	}
	return c.current.done
}

// Start probes the display size and launches the encoder in a new process
// group. The target directory is not checked; a missing directory surfaces as
// an encoder failure.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil {
		return ErrAlreadyRecording
	}

	lock, err := c.acquireLock()
	if err != nil {
		return err
	}

	geometry, err := c.prober.Probe(ctx, c.params.Display)
	if err != nil {
		releaseLock(lock, c.logger)
		return err
	}
	params := c.params
	params.Geometry = geometry
	args := BuildCaptureArgs(c.session, params)

	output := newLineLogger(c.logger)
	cmd := exec.Command(params.Binary, args...) //nolint:gosec
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Stdout = output
	cmd.Stderr = output
	cmd.WaitDelay = outputDrainDelay
	if err := cmd.Start(); err != nil {
		releaseLock(lock, c.logger)
		return services.Wrap(services.ErrExternalTool, "record", "launch encoder", params.Binary, err)
	}

	pid := cmd.Process.Pid
	proc := &process{
		cmd:    cmd,
		pid:    pid,
		pgid:   pid,
		done:   make(chan struct{}),
		output: output,
		lock:   lock,
		logger: c.logger,
	}
	go proc.reap()
	c.current = proc
	c.last = proc

	c.logger.Info("encoder launched",
		logging.String(logging.FieldEventType, "encoder_started"),
		logging.Int("pid", proc.pid),
		logging.String("display", params.Display),
		logging.String("geometry", geometry.String()),
		logging.Duration("duration", c.session.Duration),
		logging.Int("segment_count", c.session.SegmentCount),
		logging.String("segment_seconds", c.session.SegmentTimeArg()),
		logging.String("dir", c.session.Dir),
	)
	c.logger.Debug("encoder argv", logging.String("binary", params.Binary), logging.Any("args", args))
	return nil
}

// reap waits for the encoder itself; WaitDelay keeps a child holding the
// output pipe from delaying it. The lock is held until this point.
func (p *process) reap() {
	err := p.cmd.Wait()
	if errors.Is(err, exec.ErrWaitDelay) {
		err = nil
	}
	p.err = err
	p.output.Flush()
	releaseLock(p.lock, p.logger)
	close(p.done)
}

// Stop sends SIGTERM to the encoder's process group and forgets the handle.
// The group is signalled even when the encoder already exited, so children it
// left behind are terminated too. It is a no-op when idle and never fails;
// signalling problems are logged.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	proc := c.current
	c.current = nil

	if proc == nil {
		c.logger.Debug("stop requested while idle")
		return
	}

	select {
	case <-proc.done:
		c.logger.Info("encoder exited before stop",
			logging.String(logging.FieldEventType, "encoder_exited_early"),
			logging.Int("pid", proc.pid),
			logging.String("exit", exitSummary(proc.err)),
		)
	default:
		proc.stopped.Store(true)
	}

	if err := unix.Kill(-proc.pgid, unix.SIGTERM); err != nil {
		msg := "could not signal encoder process group"
		if errors.Is(err, unix.ESRCH) {
			msg = "encoder process group already gone"
		}
		c.logger.Info(msg,
			logging.String(logging.FieldEventType, "encoder_stop_failed"),
			logging.Int("pgid", proc.pgid),
			logging.Error(err),
		)
		return
	}
	c.logger.Info("encoder stop requested",
		logging.String(logging.FieldEventType, "encoder_stopping"),
		logging.Int("pgid", proc.pgid),
	)
}

// Wait blocks until the most recently launched encoder exits or ctx ends. An
// exit that follows Stop is not an error; an exit on its own is reported as an
// external tool failure.
func (c *Controller) Wait(ctx context.Context) error {
	c.mu.Lock()
	proc := c.last
	c.mu.Unlock()
	if proc == nil {
		return nil
	}

	select {
	case <-proc.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	if proc.err == nil || proc.stopped.Load() {
		return nil
	}
	return services.Wrap(services.ErrExternalTool, "record", "encoder exited", proc.output.Tail(), proc.err)
}

// WaitTimeout is Wait bounded by d.
func (c *Controller) WaitTimeout(d time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return c.Wait(ctx)
}

func (c *Controller) acquireLock() (*flock.Flock, error) {
	if c.lockPath == "" {
		return nil, nil
	}
	lock := flock.New(c.lockPath)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", c.lockPath, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLocked, c.lockPath)
	}
	return lock, nil
}

func releaseLock(lock *flock.Flock, logger *slog.Logger) {
	if lock == nil {
		return
	}
	if err := lock.Unlock(); err != nil {
		logger.Debug("lock release failed", logging.Error(err))
	}
}

func exitSummary(err error) string {
	if err == nil {
		return "exit status 0"
	}
	return err.Error()
}
