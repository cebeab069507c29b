// Package segwatch observes a recording directory while the encoder runs and
// reports segment rotations and manifest updates. It never touches the files.
package segwatch
