package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"screencap/internal/config"
	"screencap/internal/logging"
)

const userAgent = "screencap/0.1"

// Event identifies a recording lifecycle milestone.
type Event string

const (
	EventRecordingStarted   Event = "recording_started"
	EventRecordingCompleted Event = "recording_completed"
	EventRecordingEmpty     Event = "recording_empty"
	EventError              Event = "error"
	EventTest               Event = "test"
)

// Payload carries event fields such as "session", "artifact" or "error".
type Payload map[string]any

// Message is a rendered notification.
type Message struct {
	Title    string
	Body     string
	Tags     []string
	Priority string
}

// Service is the messaging collaborator used by the CLI.
type Service interface {
	// Publish renders a lifecycle event and delivers it when enabled.
	Publish(ctx context.Context, event Event, payload Payload) error
	// PostMessage sends free text.
	PostMessage(ctx context.Context, msg Message) error
	// PostFile sends text with the file at path attached as filename.
	PostFile(ctx context.Context, msg Message, path, filename string) error
	TestNotification(ctx context.Context) error
}

// poster is one delivery backend.
type poster interface {
	name() string
	post(ctx context.Context, msg Message) error
	postFile(ctx context.Context, msg Message, path, filename string) error
}

// Configured reports whether cfg enables at least one backend.
func Configured(cfg *config.Config) bool {
	if cfg == nil {
		return false
	}
	n := cfg.Notifications
	if strings.TrimSpace(n.NtfyTopic) != "" {
		return true
	}
	return strings.TrimSpace(n.SlackToken) != "" && strings.TrimSpace(n.SlackChannel) != ""
}

// NewService builds a service for every configured backend. When neither ntfy
// nor Slack is configured a noop implementation is returned.
func NewService(cfg *config.Config, logger *slog.Logger) Service {
	if cfg == nil {
		return noopService{}
	}
	n := cfg.Notifications
	timeout := time.Duration(n.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := &http.Client{Timeout: timeout}

	var posters []poster
	if topic := strings.TrimSpace(n.NtfyTopic); topic != "" {
		posters = append(posters, &ntfyPoster{endpoint: topic, client: client})
	}
	if strings.TrimSpace(n.SlackToken) != "" && strings.TrimSpace(n.SlackChannel) != "" {
		posters = append(posters, &slackPoster{
			apiURL:  n.SlackAPIURL,
			token:   n.SlackToken,
			channel: n.SlackChannel,
			client:  client,
		})
	}
	if len(posters) == 0 {
		return noopService{}
	}
	return &service{
		posters:        posters,
		recording:      n.Recording,
		errors:         n.Errors,
		attachArtifact: n.AttachArtifact,
		logger:         logging.NewComponentLogger(logger, "notifications"),
	}
}

type service struct {
	posters        []poster
	recording      bool
	errors         bool
	attachArtifact bool
	logger         *slog.Logger
}

func (s *service) Publish(ctx context.Context, event Event, payload Payload) error {
	switch event {
	case EventRecordingStarted, EventRecordingCompleted, EventRecordingEmpty:
		if !s.recording {
			return nil
		}
	case EventError:
		if !s.errors {
			return nil
		}
	}

	msg, ok := render(event, payload)
	if !ok {
		s.logger.Debug("notification event ignored", logging.String("event", string(event)))
		return nil
	}
	if event == EventRecordingCompleted && s.attachArtifact {
		if artifact := payloadString(payload, "artifact"); artifact != "" {
			return s.PostFile(ctx, msg, artifact, attachmentName(payload, artifact))
		}
	}
	return s.PostMessage(ctx, msg)
}

func (s *service) PostMessage(ctx context.Context, msg Message) error {
	return s.fanout(func(p poster) error { return p.post(ctx, msg) })
}

func (s *service) PostFile(ctx context.Context, msg Message, path, filename string) error {
	if strings.TrimSpace(filename) == "" {
		filename = filepath.Base(path)
	}
	return s.fanout(func(p poster) error { return p.postFile(ctx, msg, path, filename) })
}

func (s *service) TestNotification(ctx context.Context) error {
	msg, _ := render(EventTest, nil)
	return s.PostMessage(ctx, msg)
}

// fanout delivers to every backend and joins their failures.
func (s *service) fanout(send func(poster) error) error {
	var errs []error
	for _, p := range s.posters {
		if err := send(p); err != nil {
			logging.WarnWithContext(s.logger, "notification delivery failed", "notification_failed",
				logging.String("backend", p.name()),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check notification settings and network reachability"),
				logging.String(logging.FieldImpact, "operator was not notified"),
			)
			errs = append(errs, fmt.Errorf("%s: %w", p.name(), err))
		}
	}
	return errors.Join(errs...)
}

func render(event Event, payload Payload) (Message, bool) {
	session := shortID(payloadString(payload, "session"))
	switch event {
	case EventRecordingStarted:
		return Message{
			Title: "screencap - Recording Started",
			Body: fmt.Sprintf("Recording %s started: %s in %s segments",
				session, payloadString(payload, "duration"), payloadString(payload, "segments")),
			Tags: []string{"screencap", "record", "started"},
		}, true
	case EventRecordingCompleted:
		body := fmt.Sprintf("Recording %s ready: %s", session, payloadString(payload, "artifact"))
		if seconds := payloadString(payload, "seconds"); seconds != "" {
			body += fmt.Sprintf(" (%ss)", seconds)
		}
		return Message{
			Title: "screencap - Recording Complete",
			Body:  body,
			Tags:  []string{"screencap", "record", "completed"},
		}, true
	case EventRecordingEmpty:
		return Message{
			Title: "screencap - Nothing Recorded",
			Body:  fmt.Sprintf("Recording %s produced no output: %s", session, payloadString(payload, "reason")),
			Tags:  []string{"screencap", "record", "empty"},
		}, true
	case EventError:
		var b strings.Builder
		b.WriteString("Error")
		if label := payloadString(payload, "context"); label != "" {
			b.WriteString(" during ")
			b.WriteString(label)
		}
		if session != "" {
			b.WriteString(" (recording ")
			b.WriteString(session)
			b.WriteString(")")
		}
		b.WriteString(": ")
		if msg := payloadString(payload, "error"); msg != "" {
			b.WriteString(msg)
		} else {
			b.WriteString("unknown")
		}
		return Message{
			Title:    "screencap - Error",
			Body:     b.String(),
			Tags:     []string{"screencap", "error", "alert"},
			Priority: "high",
		}, true
	case EventTest:
		return Message{
			Title:    "screencap - Test",
			Body:     "Notification system test",
			Tags:     []string{"screencap", "test"},
			Priority: "low",
		}, true
	}
	return Message{}, false
}

func payloadString(payload Payload, key string) string {
	if payload == nil {
		return ""
	}
	switch v := payload[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case error:
		return strings.TrimSpace(v.Error())
	case float64:
		return fmt.Sprintf("%.1f", v)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func attachmentName(payload Payload, artifact string) string {
	if name := payloadString(payload, "filename"); name != "" {
		return name
	}
	name := filepath.Base(artifact)
	if filepath.Ext(name) == "" {
		name += ".mp4"
	}
	return name
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error           { return nil }
func (noopService) PostMessage(context.Context, Message) error              { return nil }
func (noopService) PostFile(context.Context, Message, string, string) error { return nil }
func (noopService) TestNotification(context.Context) error                 { return nil }
