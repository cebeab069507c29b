package notifications

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"strings"
	"unicode"
)

type ntfyPoster struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyPoster) name() string { return "ntfy" }

func (n *ntfyPoster) post(ctx context.Context, msg Message) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.Body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	setNtfyHeaders(req, msg)
	return n.do(req)
}

// postFile uploads the file as the request body; ntfy takes the text from the
// Message header in that mode, so the body goes through headerValue.
func (n *ntfyPoster) postFile(ctx context.Context, msg Message, path, filename string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open attachment: %w", err)
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("stat attachment: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, n.endpoint, file)
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.ContentLength = info.Size()
	req.Header.Set("Filename", filename)
	if msg.Body != "" {
		req.Header.Set("Message", headerValue(msg.Body))
	}
	setNtfyHeaders(req, msg)
	return n.do(req)
}

func setNtfyHeaders(req *http.Request, msg Message) {
	req.Header.Set("User-Agent", userAgent)
	if msg.Title != "" {
		req.Header.Set("Title", headerValue(msg.Title))
	}
	if len(msg.Tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.Tags, ","))
	}
	if msg.Priority != "" && msg.Priority != "default" {
		req.Header.Set("Priority", msg.Priority)
	}
}

func (n *ntfyPoster) do(req *http.Request) error {
	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// headerValue makes text safe for an HTTP header. Newlines become the literal
// "\n" that ntfy expands again; other control characters are dropped and
// non-ASCII text is RFC 2047 encoded, which ntfy decodes.
func headerValue(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var b strings.Builder
	ascii := true
	for _, r := range text {
		switch {
		case r == '\n' || r == '\r':
			b.WriteString(`\n`)
		case r == '\t':
			b.WriteRune(' ')
		case unicode.IsControl(r):
		default:
			if r > unicode.MaxASCII {
				ascii = false
			}
			b.WriteRune(r)
		}
	}
	if ascii {
		return b.String()
	}
	return mime.BEncoding.Encode("utf-8", b.String())
}
