package main

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"screencap/internal/testsupport"
)

func TestNotifyCommandPostsMessageAndFile(t *testing.T) {
	var mu sync.Mutex
	type request struct {
		method   string
		filename string
		body     string
	}
	var requests []request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		requests = append(requests, request{method: r.Method, filename: r.Header.Get("Filename"), body: string(body)})
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	env := setupCLITestEnv(t, testsupport.WithNtfyTopic(srv.URL+"/screencap"))

	out, _, err := runCLI(t, []string{"notify"}, env.configPath)
	if err != nil {
		t.Fatalf("notify test: %v", err)
	}
	requireContains(t, out, "Test notification sent")

	out, _, err = runCLI(t, []string{"notify", "hello there"}, env.configPath)
	if err != nil {
		t.Fatalf("notify message: %v", err)
	}
	requireContains(t, out, "Message sent")

	clip := filepath.Join(t.TempDir(), "clip.mp4")
	if err := os.WriteFile(clip, []byte("data"), 0o644); err != nil {
		t.Fatal(err)
	}
	out, _, err = runCLI(t, []string{"notify", "see attached", "--file", clip, "--filename", "demo.mp4"}, env.configPath)
	if err != nil {
		t.Fatalf("notify file: %v", err)
	}
	requireContains(t, out, "Sent demo.mp4 (4 bytes)")

	mu.Lock()
	defer mu.Unlock()
	if len(requests) != 3 {
		t.Fatalf("expected 3 requests, got %d", len(requests))
	}
	if requests[1].body != "hello there" {
		t.Fatalf("unexpected message body %q", requests[1].body)
	}
	if requests[2].method != http.MethodPut || requests[2].filename != "demo.mp4" || requests[2].body != "data" {
		t.Fatalf("unexpected file request %+v", requests[2])
	}
}

func TestNotifyCommandRejectsDirectory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	env := setupCLITestEnv(t, testsupport.WithNtfyTopic(srv.URL+"/screencap"))
	if _, _, err := runCLI(t, []string{"notify", "--file", t.TempDir()}, env.configPath); err == nil {
		t.Fatal("expected error for directory attachment")
	}
}
