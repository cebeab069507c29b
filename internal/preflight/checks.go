package preflight

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"screencap/internal/config"
	"screencap/internal/deps"
	"screencap/internal/recorder"
)

const endpointTimeout = 5 * time.Second

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	if strings.TrimSpace(path) == "" {
		return Result{Name: name, Detail: "not configured"}
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckDisplay probes the X display geometry the encoder would capture.
func CheckDisplay(ctx context.Context, prober recorder.GeometryProber, display string) Result {
	const name = "Display"

	if strings.TrimSpace(display) == "" {
		return Result{Name: name, Detail: "no display configured"}
	}
	checkCtx, cancel := context.WithTimeout(ctx, endpointTimeout)
	defer cancel()

	geometry, err := prober.Probe(checkCtx, display)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s unreachable (%v)", display, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%s)", display, geometry)}
}

// CheckNtfy verifies the ntfy server hosting topicURL answers its health endpoint.
func CheckNtfy(ctx context.Context, topicURL string) Result {
	const name = "ntfy"

	parsed, err := url.Parse(strings.TrimSpace(topicURL))
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return Result{Name: name, Detail: "invalid topic url"}
	}
	healthURL := parsed.Scheme + "://" + parsed.Host + "/v1/health"

	var body struct {
		Healthy bool `json:"healthy"`
	}
	status, err := getJSON(ctx, http.MethodGet, healthURL, nil, &body)
	if err != nil {
		return Result{Name: name, Detail: summarizeEndpointError(err)}
	}
	if status != http.StatusOK {
		return Result{Name: name, Detail: fmt.Sprintf("health check failed (%d)", status)}
	}
	if !body.Healthy {
		return Result{Name: name, Detail: "server reports unhealthy"}
	}
	return Result{Name: name, Passed: true, Detail: "Reachable"}
}

// CheckSlack verifies the bot token with Slack's auth.test method.
func CheckSlack(ctx context.Context, apiURL, token string) Result {
	const name = "Slack"

	if strings.TrimSpace(token) == "" {
		return Result{Name: name, Detail: "missing token"}
	}
	base := strings.TrimSpace(apiURL)
	if base == "" {
		base = "https://slack.com/api/"
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}

	var body struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
		Team  string `json:"team"`
	}
	headers := map[string]string{"Authorization": "Bearer " + strings.TrimSpace(token)}
	status, err := getJSON(ctx, http.MethodPost, base+"auth.test", headers, &body)
	if err != nil {
		return Result{Name: name, Detail: summarizeEndpointError(err)}
	}
	if status != http.StatusOK {
		return Result{Name: name, Detail: fmt.Sprintf("auth check failed (%d)", status)}
	}
	if !body.OK {
		return Result{Name: name, Detail: fmt.Sprintf("auth failed (%s)", body.Error)}
	}
	if body.Team != "" {
		return Result{Name: name, Passed: true, Detail: "Authenticated to " + body.Team}
	}
	return Result{Name: name, Passed: true, Detail: "Authenticated"}
}

// CheckNotifications evaluates every configured notification backend.
// Unconfigured backends are reported as disabled and counted as passing.
func CheckNotifications(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}
	n := cfg.Notifications
	var results []Result
	if strings.TrimSpace(n.NtfyTopic) == "" {
		results = append(results, Result{Name: "ntfy", Passed: true, Detail: "Disabled"})
	} else {
		results = append(results, CheckNtfy(ctx, n.NtfyTopic))
	}
	switch {
	case strings.TrimSpace(n.SlackToken) == "" && strings.TrimSpace(n.SlackChannel) == "":
		results = append(results, Result{Name: "Slack", Passed: true, Detail: "Disabled"})
	case strings.TrimSpace(n.SlackChannel) == "":
		results = append(results, Result{Name: "Slack", Detail: "missing channel"})
	default:
		results = append(results, CheckSlack(ctx, n.SlackAPIURL, n.SlackToken))
	}
	return results
}

// CheckSystemDeps evaluates the external binaries for the given config.
// Both the record command and the status command use this list.
func CheckSystemDeps(ctx context.Context, cfg *config.Config) []deps.Status {
	requirements := []deps.Requirement{
		{
			Name:        "FFmpeg",
			Command:     cfg.Capture.FFmpegBinary,
			Description: "Required for capture and concatenation",
			VersionArgs: []string{"-version"},
		},
		{
			Name:        "xdpyinfo",
			Command:     cfg.Capture.XdpyinfoBinary,
			Description: "Required to read display geometry",
			VersionArgs: []string{"-version"},
		},
		{
			Name:        "FFprobe",
			Command:     cfg.Capture.FFprobeBinary,
			Description: "Verifies artifact duration after concatenation",
			Optional:    !cfg.Capture.Verify,
			VersionArgs: []string{"-version"},
		},
	}
	return deps.CheckBinaries(ctx, requirements)
}

func getJSON(ctx context.Context, method, target string, headers map[string]string, out any) (int, error) {
	checkCtx, cancel := context.WithTimeout(ctx, endpointTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(checkCtx, method, target, nil)
	if err != nil {
		return 0, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	client := &http.Client{Timeout: endpointTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("decode response: %w", err)
	}
	return resp.StatusCode, nil
}

func summarizeEndpointError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "health check timed out (endpoint unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "health check timed out (endpoint unreachable)"
	}
	return err.Error()
}
