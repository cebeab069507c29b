// Package logs reads screencap log files for the CLI: the last N lines of a
// daily or per-session log, and follow mode that streams appended lines as
// they are written.
//
// Follow mode is driven by fsnotify on the log's directory, so it also picks
// up a file that does not exist yet (a recording that is about to start) and
// restarts from the top when the file is truncated.
package logs
