package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"screencap/internal/config"
	"screencap/internal/testsupport"
)

// ffmpegStub writes a two-entry manifest with a duplicate and waits for
// SIGTERM in capture mode; in concat mode it writes the output file.
const ffmpegStub = `if [ "$1" = "-version" ]; then echo 'ffmpeg version 6.1-stub'; exit 0; fi
prev=""
last=""
manifest=""
concat=0
for a in "$@"; do
  if [ "$prev" = "-segment_list" ]; then manifest="$a"; fi
  if [ "$prev" = "-f" ] && [ "$a" = "concat" ]; then concat=1; fi
  prev="$a"
  last="$a"
done
if [ "$concat" = 1 ]; then
  printf 'joined' > "$last"
  exit 0
fi
dir=$(dirname "$manifest")
: > "$dir/record_screen_000"
printf 'ffconcat version 1.0\nfile record_screen_000\n' > "$manifest"
: > "$dir/record_screen_001"
printf 'file record_screen_001\nfile record_screen_000\n' >> "$manifest"
trap 'exit 0' TERM
while :; do sleep 0.05; done
`

const idleFFmpegStub = `if [ "$1" = "-version" ]; then echo 'ffmpeg version 6.1-stub'; exit 0; fi
trap 'exit 0' TERM
while :; do sleep 0.05; done
`

const xdpyinfoStub = `echo 'name of display:    :99'
echo 'screen #0:'
echo '  dimensions:    1280x720 pixels (338x190 millimeters)'
`

const ffprobeStub = `for a in "$@"; do last="$a"; done
case "$last" in
  *record_screen) d=2.0 ;;
  *) d=1.0 ;;
esac
printf '{"format":{"duration":"%s"},"streams":[{"index":0,"codec_type":"video","duration":"%s"}]}' "$d" "$d"
`

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	baseDir    string
}

func setupCLITestEnv(t *testing.T, opts ...testsupport.ConfigOption) *cliTestEnv {
	t.Helper()

	defaults := []testsupport.ConfigOption{
		testsupport.WithBinaryScript("ffmpeg", ffmpegStub),
		testsupport.WithBinaryScript("xdpyinfo", xdpyinfoStub),
		testsupport.WithBinaryScript("ffprobe", ffprobeStub),
	}
	cfg := testsupport.NewConfig(t, append(defaults, opts...)...)
	base := testsupport.BaseDir(cfg)

	homeDir := filepath.Join(base, "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)
	t.Setenv("NTFY_TOPIC", "")
	t.Setenv("SLACK_TOKEN", "")
	t.Setenv("SLACK_CHANNEL", "")

	configPath := filepath.Join(base, "screencap.toml")
	writeTestConfig(t, configPath, cfg)

	return &cliTestEnv{cfg: cfg, configPath: configPath, baseDir: base}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := cfg.Encode()
	if err != nil {
		t.Fatalf("encode config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{"--log-level", "error"}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
