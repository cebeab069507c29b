// Package main hosts the screencap CLI entrypoint and command graph.
//
// The Cobra-based command tree drives a recording end to end (launch the
// encoder, stop it, deduplicate the manifest, join the segments) and exposes
// each step on its own for recovery: concat and dedup operate on an existing
// recording directory, sessions inspects the history database, notify posts
// messages or files, status reports the environment, and logs tails the
// daily or per-session log.
//
// Keep this package lean: behaviour lives in the internal packages and the
// commands here only resolve configuration, build loggers, and render output.
package main
