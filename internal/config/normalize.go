package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeCapture()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		c.Paths.OutputDir = defaultOutputDir
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeCapture() {
	c.Capture.Display = strings.TrimSpace(c.Capture.Display)
	if c.Capture.Display == "" {
		if value, ok := os.LookupEnv("DISPLAY"); ok && strings.TrimSpace(value) != "" {
			c.Capture.Display = strings.TrimSpace(value)
		} else {
			c.Capture.Display = defaultDisplay
		}
	}
	c.Capture.VideoCodec = strings.TrimSpace(c.Capture.VideoCodec)
	if c.Capture.VideoCodec == "" {
		c.Capture.VideoCodec = defaultVideoCodec
	}
	c.Capture.Preset = strings.TrimSpace(c.Capture.Preset)
	c.Capture.Tune = strings.TrimSpace(c.Capture.Tune)
	c.Capture.FFmpegBinary = strings.TrimSpace(c.Capture.FFmpegBinary)
	if c.Capture.FFmpegBinary == "" {
		c.Capture.FFmpegBinary = defaultFFmpegBinary
	}
	c.Capture.FFprobeBinary = strings.TrimSpace(c.Capture.FFprobeBinary)
	if c.Capture.FFprobeBinary == "" {
		c.Capture.FFprobeBinary = defaultFFprobeBinary
	}
	c.Capture.XdpyinfoBinary = strings.TrimSpace(c.Capture.XdpyinfoBinary)
	if c.Capture.XdpyinfoBinary == "" {
		c.Capture.XdpyinfoBinary = defaultXdpyinfoBinary
	}
	if c.Capture.StopGraceSeconds < 0 {
		c.Capture.StopGraceSeconds = 0
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv("NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = strings.TrimSpace(value)
		}
	}
	c.Notifications.SlackToken = strings.TrimSpace(c.Notifications.SlackToken)
	if c.Notifications.SlackToken == "" {
		if value, ok := os.LookupEnv("SLACK_TOKEN"); ok {
			c.Notifications.SlackToken = strings.TrimSpace(value)
		}
	}
	c.Notifications.SlackChannel = strings.TrimSpace(c.Notifications.SlackChannel)
	if c.Notifications.SlackChannel == "" {
		if value, ok := os.LookupEnv("SLACK_CHANNEL"); ok {
			c.Notifications.SlackChannel = strings.TrimSpace(value)
		}
	}
	c.Notifications.SlackAPIURL = strings.TrimSpace(c.Notifications.SlackAPIURL)
	if c.Notifications.SlackAPIURL == "" {
		c.Notifications.SlackAPIURL = defaultSlackAPIURL
	}
	if !strings.HasSuffix(c.Notifications.SlackAPIURL, "/") {
		c.Notifications.SlackAPIURL += "/"
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
