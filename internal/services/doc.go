// Package services defines shared utilities consumed by the recorder, the
// notifier backends, and the CLI.
//
// Key responsibilities:
//   - Context helpers that stamp recording session IDs, stage names, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper so callers can classify
//     failures (bad input vs external tool vs transient) with errors.Is.
//
// Use these helpers when wiring new components so error classification and
// log context stay uniform across the tool.
package services
