// Package preflight provides readiness checks for the display, directories,
// and notification endpoints that screencap depends on.
//
// These checks run in two contexts:
//   - The record command calls RunAll before launching the encoder. If any
//     check fails the recording is refused instead of producing an empty
//     session directory.
//   - The CLI "screencap status" command uses the individual check functions
//     to display environment health, including notification reachability.
package preflight
