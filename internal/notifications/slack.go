package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
)

type slackPoster struct {
	apiURL  string
	token   string
	channel string
	client  *http.Client
}

type slackResponse struct {
	OK        bool   `json:"ok"`
	Error     string `json:"error"`
	UploadURL string `json:"upload_url"`
	FileID    string `json:"file_id"`
}

func (s *slackPoster) name() string { return "slack" }

func (s *slackPoster) post(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(map[string]string{
		"channel": s.channel,
		"text":    slackText(msg),
	})
	if err != nil {
		return fmt.Errorf("encode slack message: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint("chat.postMessage"), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	_, err = s.call(req)
	return err
}

// postFile runs the external upload flow: reserve an upload URL, send the
// bytes, then share the file in the channel with the message as comment.
func (s *slackPoster) postFile(ctx context.Context, msg Message, path, filename string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read attachment: %w", err)
	}

	form := url.Values{}
	form.Set("filename", filename)
	form.Set("length", strconv.Itoa(len(data)))
	reserved, err := s.callForm(ctx, "files.getUploadURLExternal", form)
	if err != nil {
		return err
	}
	if reserved.UploadURL == "" || reserved.FileID == "" {
		return fmt.Errorf("slack files.getUploadURLExternal: missing upload url")
	}

	upload, err := http.NewRequestWithContext(ctx, http.MethodPost, reserved.UploadURL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build slack upload: %w", err)
	}
	upload.Header.Set("Content-Type", "application/octet-stream")
	upload.Header.Set("User-Agent", userAgent)
	resp, err := s.client.Do(upload)
	if err != nil {
		return fmt.Errorf("slack upload: %w", err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("slack upload returned %d", resp.StatusCode)
	}

	files, err := json.Marshal([]map[string]string{{"id": reserved.FileID, "title": filename}})
	if err != nil {
		return fmt.Errorf("encode slack files: %w", err)
	}
	complete := url.Values{}
	complete.Set("files", string(files))
	complete.Set("channel_id", s.channel)
	if text := slackText(msg); text != "" {
		complete.Set("initial_comment", text)
	}
	_, err = s.callForm(ctx, "files.completeUploadExternal", complete)
	return err
}

func (s *slackPoster) callForm(ctx context.Context, method string, form url.Values) (slackResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint(method), strings.NewReader(form.Encode()))
	if err != nil {
		return slackResponse{}, fmt.Errorf("build slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return s.call(req)
}

func (s *slackPoster) call(req *http.Request) (slackResponse, error) {
	method := strings.TrimPrefix(req.URL.Path[strings.LastIndex(req.URL.Path, "/"):], "/")
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return slackResponse{}, fmt.Errorf("slack %s: %w", method, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return slackResponse{}, fmt.Errorf("slack %s: read response: %w", method, err)
	}
	if resp.StatusCode >= 300 {
		return slackResponse{}, fmt.Errorf("slack %s returned %d: %s", method, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var decoded slackResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return slackResponse{}, fmt.Errorf("slack %s: decode response: %w", method, err)
	}
	if !decoded.OK {
		return decoded, fmt.Errorf("slack %s: %s", method, decoded.Error)
	}
	return decoded, nil
}

func (s *slackPoster) endpoint(method string) string {
	base := s.apiURL
	if base == "" {
		base = "https://slack.com/api/"
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return base + method
}

func slackText(msg Message) string {
	switch {
	case msg.Title != "" && msg.Body != "":
		return "*" + msg.Title + "*\n" + msg.Body
	case msg.Title != "":
		return "*" + msg.Title + "*"
	default:
		return msg.Body
	}
}
