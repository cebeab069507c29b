package recorder

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"screencap/internal/logging"
	"screencap/internal/services"
)

func writeScript(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func waitForFile(t *testing.T, path string) []byte {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if data, err := os.ReadFile(path); err == nil && len(data) > 0 {
			return data
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", path)
	return nil
}

// processGone reports whether pid no longer runs; zombies count as gone.
func processGone(pid int) bool {
	if err := unix.Kill(pid, 0); errors.Is(err, unix.ESRCH) {
		return true
	}
	data, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/stat")
	if err != nil {
		return true
	}
	fields := strings.Fields(string(data))
	return len(fields) > 2 && fields[2] == "Z"
}

func newTestController(t *testing.T, binary string, opts ...Option) (*Controller, *Session) {
	t.Helper()
	session, err := NewSession(t.TempDir(), 10*time.Second, 2)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	base := []Option{
		WithBinary(binary),
		WithDisplay(":5"),
		WithGeometryProber(StaticGeometry{Width: 1280, Height: 720}),
	}
	ctrl, err := NewController(session, append(base, opts...)...)
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	return ctrl, session
}

func TestStopBeforeStartIsNoop(t *testing.T) {
	ctrl, _ := newTestController(t, "ffmpeg")
	ctrl.Stop()
	ctrl.Stop()
	if ctrl.State() != StateIdle {
		t.Fatalf("state = %v, want idle", ctrl.State())
	}
	if err := ctrl.Wait(context.Background()); err != nil {
		t.Fatalf("Wait while never started: %v", err)
	}
}

func TestStartLaunchesEncoderWithExplicitArgv(t *testing.T) {
	dir := t.TempDir()
	argsFile := filepath.Join(dir, "args.txt")
	stub := writeScript(t, "ffmpeg", `printf '%s\n' "$@" > `+argsFile+`
exec sleep 30
`)
	ctrl, session := newTestController(t, stub)

	if err := ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !ctrl.Recording() || ctrl.PID() == 0 {
		t.Fatal("expected controller to track a running encoder")
	}

	got := strings.Split(strings.TrimSuffix(string(waitForFile(t, argsFile)), "\n"), "\n")
	want := BuildCaptureArgs(session, CaptureParams{
		Display:    ":5",
		Geometry:   Geometry{Width: 1280, Height: 720},
		FrameRate:  25,
		VideoCodec: "libx264",
		Preset:     "ultrafast",
		Tune:       "zerolatency",
	})
	if strings.Join(got, " ") != strings.Join(want, " ") {
		t.Fatalf("argv mismatch\n got: %v\nwant: %v", got, want)
	}

	pid := ctrl.PID()
	pgid, err := unix.Getpgid(pid)
	if err != nil {
		t.Fatalf("getpgid: %v", err)
	}
	if pgid != pid {
		t.Fatalf("encoder should lead its own process group: pgid=%d pid=%d", pgid, pid)
	}

	ctrl.Stop()
	if ctrl.State() != StateIdle {
		t.Fatal("expected idle after stop")
	}
	if err := ctrl.WaitTimeout(5 * time.Second); err != nil {
		t.Fatalf("Wait after stop: %v", err)
	}
}

func TestStopTerminatesWholeProcessGroup(t *testing.T) {
	dir := t.TempDir()
	childFile := filepath.Join(dir, "child.pid")
	stub := writeScript(t, "ffmpeg", `sleep 30 &
echo $! > `+childFile+`
wait
`)
	ctrl, _ := newTestController(t, stub)
	if err := ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	child, err := strconv.Atoi(strings.TrimSpace(string(waitForFile(t, childFile))))
	if err != nil {
		t.Fatalf("parse child pid: %v", err)
	}

	ctrl.Stop()
	if err := ctrl.WaitTimeout(5 * time.Second); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for !processGone(child) {
		if time.Now().After(deadline) {
			_ = unix.Kill(child, unix.SIGKILL)
			t.Fatalf("child %d survived group termination", child)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestDoubleStopIsSafe(t *testing.T) {
	stub := writeScript(t, "ffmpeg", "exec sleep 30\n")
	ctrl, _ := newTestController(t, stub)
	if err := ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	ctrl.Stop()
	ctrl.Stop()
	if ctrl.State() != StateIdle {
		t.Fatal("expected idle after repeated stop")
	}
	if err := ctrl.WaitTimeout(5 * time.Second); err != nil {
		t.Fatalf("Wait: %v", err)
	}
}

func TestSecondStartIsRejected(t *testing.T) {
	stub := writeScript(t, "ffmpeg", "exec sleep 30\n")
	ctrl, _ := newTestController(t, stub)
	if err := ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(ctrl.Stop)
	pid := ctrl.PID()

	if err := ctrl.Start(context.Background()); !errors.Is(err, ErrAlreadyRecording) {
		t.Fatalf("expected ErrAlreadyRecording, got %v", err)
	}
	if ctrl.PID() != pid || !ctrl.Recording() {
		t.Fatal("running encoder must be left untouched")
	}
}

func TestRestartAfterStop(t *testing.T) {
	stub := writeScript(t, "ffmpeg", "exec sleep 30\n")
	ctrl, _ := newTestController(t, stub)
	for i := 0; i < 2; i++ {
		if err := ctrl.Start(context.Background()); err != nil {
			t.Fatalf("Start #%d: %v", i+1, err)
		}
		ctrl.Stop()
		if err := ctrl.WaitTimeout(5 * time.Second); err != nil {
			t.Fatalf("Wait #%d: %v", i+1, err)
		}
	}
}

func TestLaunchFailurePropagates(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "record.lock")
	ctrl, _ := newTestController(t, filepath.Join(t.TempDir(), "missing-ffmpeg"), WithLockFile(lockPath))

	err := ctrl.Start(context.Background())
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
	if ctrl.State() != StateIdle {
		t.Fatal("failed launch must leave the controller idle")
	}

	other, _ := newTestController(t, writeScript(t, "ffmpeg", "exec sleep 30\n"), WithLockFile(lockPath))
	if err := other.Start(context.Background()); err != nil {
		t.Fatalf("lock should be released after a failed launch: %v", err)
	}
	other.Stop()
}

type failingProber struct{}

func (failingProber) Probe(context.Context, string) (Geometry, error) {
	return Geometry{}, services.Wrap(services.ErrExternalTool, "record", "probe geometry", "no display", nil)
}

func TestGeometryFailurePreventsLaunch(t *testing.T) {
	dir := t.TempDir()
	marker := filepath.Join(dir, "launched")
	stub := writeScript(t, "ffmpeg", "touch "+marker+"\n")
	ctrl, _ := newTestController(t, stub, WithGeometryProber(failingProber{}))

	if err := ctrl.Start(context.Background()); !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected probe error, got %v", err)
	}
	if _, err := os.Stat(marker); !os.IsNotExist(err) {
		t.Fatal("encoder must not launch when the geometry probe fails")
	}
}

func TestLockContention(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "record.lock")
	stub := writeScript(t, "ffmpeg", "exec sleep 30\n")
	first, _ := newTestController(t, stub, WithLockFile(lockPath))
	second, _ := newTestController(t, stub, WithLockFile(lockPath))

	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	if err := second.Start(context.Background()); !errors.Is(err, ErrLocked) {
		first.Stop()
		t.Fatalf("expected ErrLocked, got %v", err)
	}
	first.Stop()
	if err := first.WaitTimeout(5 * time.Second); err != nil {
		t.Fatalf("first Wait: %v", err)
	}

	if err := second.Start(context.Background()); err != nil {
		t.Fatalf("second Start after release: %v", err)
	}
	second.Stop()
	_ = second.WaitTimeout(5 * time.Second)
}

func TestLockHeldUntilEncoderExits(t *testing.T) {
	dir := t.TempDir()
	lockPath := filepath.Join(dir, "record.lock")
	ready := filepath.Join(dir, "ready")
	slow := writeScript(t, "ffmpeg", `trap 'sleep 1; exit 0' TERM
echo ok > `+ready+`
while :; do sleep 0.1; done
`)
	first, _ := newTestController(t, slow, WithLockFile(lockPath))
	second, _ := newTestController(t, writeScript(t, "ffmpeg", "exec sleep 30\n"), WithLockFile(lockPath))

	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	waitForFile(t, ready)
	first.Stop()

	if err := second.Start(context.Background()); !errors.Is(err, ErrLocked) {
		second.Stop()
		t.Fatalf("lock must stay held while the stopped encoder finishes, got %v", err)
	}

	if err := first.WaitTimeout(5 * time.Second); err != nil {
		t.Fatalf("first Wait: %v", err)
	}
	if err := second.Start(context.Background()); err != nil {
		t.Fatalf("second Start after encoder exit: %v", err)
	}
	second.Stop()
	_ = second.WaitTimeout(5 * time.Second)
}

func TestStopTerminatesChildrenOfExitedEncoder(t *testing.T) {
	dir := t.TempDir()
	childFile := filepath.Join(dir, "child.pid")
	stub := writeScript(t, "ffmpeg", `sleep 30 &
echo $! > `+childFile+`
exit 0
`)
	ctrl, _ := newTestController(t, stub)
	if err := ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	child, err := strconv.Atoi(strings.TrimSpace(string(waitForFile(t, childFile))))
	if err != nil {
		t.Fatalf("parse child pid: %v", err)
	}
	t.Cleanup(func() { _ = unix.Kill(child, unix.SIGKILL) })

	// The child keeps the output pipe open; the encoder's own exit must
	// still be observed promptly.
	select {
	case <-ctrl.Done():
	case <-time.After(3 * outputDrainDelay):
		t.Fatal("Done did not fire after the encoder exited")
	}
	if processGone(child) {
		t.Fatal("child should still be running before Stop")
	}
	if !ctrl.Recording() {
		t.Fatal("state changes only on Stop")
	}

	ctrl.Stop()
	deadline := time.Now().Add(5 * time.Second)
	for !processGone(child) {
		if time.Now().After(deadline) {
			t.Fatalf("child %d of the exited encoder survived Stop", child)
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err := ctrl.Wait(context.Background()); err != nil {
		t.Fatalf("clean encoder exit should not be an error: %v", err)
	}
}

func TestEncoderExitWithoutStopIsReported(t *testing.T) {
	stub := writeScript(t, "ffmpeg", "echo 'x11grab: cannot open display' >&2\nexit 3\n")
	ctrl, _ := newTestController(t, stub)
	if err := ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	select {
	case <-ctrl.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("encoder did not exit")
	}
	err := ctrl.Wait(context.Background())
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
	if !strings.Contains(err.Error(), "cannot open display") {
		t.Fatalf("expected encoder output in error, got %v", err)
	}

	// Still tracked until Stop.
	if !ctrl.Recording() {
		t.Fatal("state changes only on Stop")
	}
	ctrl.Stop()
	if ctrl.Recording() {
		t.Fatal("expected idle after stop")
	}
	if err := ctrl.Wait(context.Background()); !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("exit before Stop must stay an error, got %v", err)
	}
}

func TestWaitHonoursContext(t *testing.T) {
	stub := writeScript(t, "ffmpeg", "exec sleep 30\n")
	ctrl, _ := newTestController(t, stub)
	if err := ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(ctrl.Stop)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := ctrl.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestNewControllerRequiresSession(t *testing.T) {
	if _, err := NewController(nil); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestLineLoggerKeepsTail(t *testing.T) {
	l := newLineLogger(logging.NewNop())
	for i := 0; i < outputTailLines+2; i++ {
		_, _ = l.Write([]byte("line " + strconv.Itoa(i) + "\n"))
	}
	_, _ = l.Write([]byte("partial"))
	l.Flush()
	tail := l.Tail()
	if strings.Contains(tail, "line 0") || !strings.HasSuffix(tail, "partial") {
		t.Fatalf("unexpected tail %q", tail)
	}
}
