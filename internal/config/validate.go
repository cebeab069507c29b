package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateCapture(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateCapture() error {
	if c.Capture.DurationSeconds <= 0 {
		return errors.New("capture.duration_seconds must be positive")
	}
	if c.Capture.SegmentCount < 1 {
		return errors.New("capture.segment_count must be at least 1")
	}
	if c.Capture.FrameRate <= 0 {
		return errors.New("capture.frame_rate must be positive")
	}
	if c.Capture.DurationSeconds/float64(c.Capture.SegmentCount) < 0.001 {
		return fmt.Errorf("capture.duration_seconds %.3f is too short for %d segments", c.Capture.DurationSeconds, c.Capture.SegmentCount)
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	token := strings.TrimSpace(c.Notifications.SlackToken)
	channel := strings.TrimSpace(c.Notifications.SlackChannel)
	if token != "" && channel == "" {
		return errors.New("notifications.slack_channel must be set when notifications.slack_token is set (or set SLACK_CHANNEL)")
	}
	if channel != "" && token == "" {
		return errors.New("notifications.slack_token must be set when notifications.slack_channel is set (or set SLACK_TOKEN)")
	}
	if topic := c.Notifications.NtfyTopic; topic != "" && !strings.HasPrefix(topic, "http://") && !strings.HasPrefix(topic, "https://") {
		return fmt.Errorf("notifications.ntfy_topic must be a full URL, got %q", topic)
	}
	return nil
}
