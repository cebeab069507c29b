// Package recorder supervises a single ffmpeg screen-capture process and turns
// its segmented output into one file.
//
// A Controller launches the encoder in its own process group so Stop can
// terminate it together with any children. The encoder writes fixed-length
// segments named record_screen_NNN and appends each finished segment to the
// ffconcat manifest out.manifest. Because the segment muxer wraps its index,
// the manifest can list the same segment more than once; Deduplicate keeps the
// last occurrence of every line. The Concatenator then joins the listed
// segments losslessly into record_screen.
package recorder
