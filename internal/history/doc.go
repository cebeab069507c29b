// Package history persists a record of every recording session in SQLite so
// the CLI can list past captures and their outcome.
//
// The store mirrors the lifecycle driven by the record command: Begin when the
// encoder launches, MarkStopped once it has been signalled, then exactly one
// of MarkCompleted, MarkEmpty or MarkFailed after concatenation.
package history
