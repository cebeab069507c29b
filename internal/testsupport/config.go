package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"screencap/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Notifications are disabled unless an option enables them.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.OutputDir = filepath.Join(base, "recordings")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Capture.Display = ":99"
	cfgVal.Capture.DurationSeconds = 1
	cfgVal.Capture.StopGraceSeconds = 2
	cfgVal.Notifications.NtfyTopic = ""
	cfgVal.Notifications.SlackToken = ""
	cfgVal.Notifications.SlackChannel = ""
	cfgVal.Logging.RetentionDays = 0

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithCapture overrides the recording duration and segment count.
func WithCapture(durationSeconds float64, segments int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Capture.DurationSeconds = durationSeconds
		b.cfg.Capture.SegmentCount = segments
	}
}

// WithNtfyTopic points notifications at the given topic URL.
func WithNtfyTopic(topic string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Notifications.NtfyTopic = topic
	}
}

// WithStubbedBinaries writes stub executables that exit 0 for the provided
// names and prepends them to PATH. If names is empty, the default external
// binaries are stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"ffmpeg", "ffprobe", "xdpyinfo"}
		}
		for _, name := range names {
			WriteScript(b.t, b.binDir(), name, "exit 0\n")
		}
		b.prependPath()
	}
}

// WithBinaryScript installs a named stub whose body is the given shell script
// and points the matching capture setting at it when one exists.
func WithBinaryScript(name, body string) ConfigOption {
	return func(b *configBuilder) {
		path := WriteScript(b.t, b.binDir(), name, body)
		switch name {
		case "ffmpeg":
			b.cfg.Capture.FFmpegBinary = path
		case "ffprobe":
			b.cfg.Capture.FFprobeBinary = path
		case "xdpyinfo":
			b.cfg.Capture.XdpyinfoBinary = path
		}
		b.prependPath()
	}
}

func (b *configBuilder) binDir() string {
	dir := filepath.Join(b.baseDir, "bin")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		b.t.Fatalf("mkdir bin dir: %v", err)
	}
	return dir
}

func (b *configBuilder) prependPath() {
	dir := b.binDir()
	b.t.Setenv("PATH", dir+string(os.PathListSeparator)+os.Getenv("PATH"))
}

// WriteScript writes an executable /bin/sh script and returns its path.
func WriteScript(t testing.TB, dir, name, body string) string {
	t.Helper()
	target := filepath.Join(dir, name)
	if err := os.WriteFile(target, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("write stub %s: %v", name, err)
	}
	return target
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.OutputDir)
}
