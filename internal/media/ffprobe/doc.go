// Package ffprobe provides a typed wrapper around ffprobe JSON output.
//
// Inspect executes ffprobe and returns the parsed Result; Prober narrows that
// to the duration checks used when verifying a joined recording.
package ffprobe
