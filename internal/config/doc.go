// Package config loads, normalizes, and validates screencap configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// DISPLAY, NTFY_TOPIC, and SLACK_TOKEN. The Config type centralizes every knob
// the recorder and CLI need so capture settings and notifier credentials are
// discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
