package preflight

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"screencap/internal/config"
	"screencap/internal/recorder"
)

type failingProber struct{}

func (failingProber) Probe(context.Context, string) (recorder.Geometry, error) {
	return recorder.Geometry{}, errors.New("cannot open display")
}

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckDirectoryAccess_Blank(t *testing.T) {
	if result := CheckDirectoryAccess("test", ""); result.Passed {
		t.Fatal("expected failure for blank path")
	}
}

func TestCheckDisplay(t *testing.T) {
	ok := CheckDisplay(context.Background(), recorder.StaticGeometry{Width: 1920, Height: 1080}, ":1")
	if !ok.Passed || ok.Detail != ":1 (1920x1080)" {
		t.Fatalf("unexpected result: %#v", ok)
	}

	bad := CheckDisplay(context.Background(), failingProber{}, ":9")
	if bad.Passed || !strings.Contains(bad.Detail, "cannot open display") {
		t.Fatalf("expected probe failure, got %#v", bad)
	}

	if blank := CheckDisplay(context.Background(), failingProber{}, ""); blank.Passed {
		t.Fatal("expected failure for empty display")
	}
}

func TestCheckNtfy(t *testing.T) {
	healthy := true
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/health" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if healthy {
			_, _ = w.Write([]byte(`{"healthy":true}`))
			return
		}
		_, _ = w.Write([]byte(`{"healthy":false}`))
	}))
	defer srv.Close()

	if result := CheckNtfy(context.Background(), srv.URL+"/screencap"); !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
	healthy = false
	if result := CheckNtfy(context.Background(), srv.URL+"/screencap"); result.Passed {
		t.Fatal("expected failure for unhealthy server")
	}
	if result := CheckNtfy(context.Background(), "not a url"); result.Passed {
		t.Fatal("expected failure for invalid url")
	}
}

func TestCheckSlack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/auth.test" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.Header.Get("Authorization") != "Bearer good" {
			_, _ = w.Write([]byte(`{"ok":false,"error":"invalid_auth"}`))
			return
		}
		_, _ = w.Write([]byte(`{"ok":true,"team":"Example"}`))
	}))
	defer srv.Close()

	good := CheckSlack(context.Background(), srv.URL+"/api", "good")
	if !good.Passed || good.Detail != "Authenticated to Example" {
		t.Fatalf("unexpected result: %#v", good)
	}
	bad := CheckSlack(context.Background(), srv.URL+"/api/", "bad")
	if bad.Passed || !strings.Contains(bad.Detail, "invalid_auth") {
		t.Fatalf("expected auth failure, got %#v", bad)
	}
	if missing := CheckSlack(context.Background(), srv.URL, ""); missing.Passed {
		t.Fatal("expected failure for missing token")
	}
}

func TestCheckNotificationsDisabled(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	cfg.Notifications.SlackToken = ""
	cfg.Notifications.SlackChannel = ""

	results := CheckNotifications(context.Background(), &cfg)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	for _, r := range results {
		if !r.Passed || r.Detail != "Disabled" {
			t.Fatalf("expected disabled pass, got %#v", r)
		}
	}

	cfg.Notifications.SlackToken = "token"
	results = CheckNotifications(context.Background(), &cfg)
	if results[1].Passed || results[1].Detail != "missing channel" {
		t.Fatalf("expected missing channel failure, got %#v", results[1])
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	if results := RunAll(context.Background(), nil); results != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestRunAll_StubbedDisplay(t *testing.T) {
	bin := t.TempDir()
	xdpyinfo := filepath.Join(bin, "xdpyinfo")
	script := "#!/bin/sh\necho 'screen #0:'\necho '  dimensions:    800x600 pixels (211x158 millimeters)'\n"
	if err := os.WriteFile(xdpyinfo, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.Paths.OutputDir = t.TempDir()
	cfg.Paths.StateDir = t.TempDir()
	cfg.Paths.LogDir = cfg.Paths.StateDir
	cfg.Capture.Display = ":42"
	cfg.Capture.XdpyinfoBinary = xdpyinfo

	results := RunAll(context.Background(), &cfg)
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if failed := Failed(results); len(failed) != 0 {
		t.Fatalf("unexpected failures: %#v", failed)
	}
	if results[2].Detail != ":42 (800x600)" {
		t.Fatalf("unexpected display detail %q", results[2].Detail)
	}
}

func TestCheckSystemDepsMarksFFprobeOptional(t *testing.T) {
	cfg := config.Default()
	cfg.Capture.FFmpegBinary = "definitely-missing-ffmpeg"
	cfg.Capture.XdpyinfoBinary = "definitely-missing-xdpyinfo"
	cfg.Capture.FFprobeBinary = "definitely-missing-ffprobe"
	cfg.Capture.Verify = false

	statuses := CheckSystemDeps(context.Background(), &cfg)
	if len(statuses) != 3 {
		t.Fatalf("expected 3 statuses, got %d", len(statuses))
	}
	if !statuses[2].Optional {
		t.Fatal("expected ffprobe optional when verification disabled")
	}
	for _, s := range statuses {
		if s.Available {
			t.Fatalf("expected %s unavailable", s.Name)
		}
	}
}
