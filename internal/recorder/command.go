package recorder

import "strconv"

// CaptureParams are the encoder settings that do not depend on the session.
type CaptureParams struct {
	Binary     string
	Display    string
	Geometry   Geometry
	FrameRate  int
	VideoCodec string
	Preset     string
	Tune       string
}

// BuildCaptureArgs returns the encoder argv (without the binary) for an
// x11grab capture split by the segment muxer.
func BuildCaptureArgs(session *Session, params CaptureParams) []string {
	args := []string{
		"-loglevel", "error",
		"-f", "x11grab",
		"-s", params.Geometry.String(),
		"-i", params.Display,
		"-r", strconv.Itoa(params.FrameRate),
		"-vcodec", params.VideoCodec,
	}
	if params.Preset != "" {
		args = append(args, "-preset", params.Preset)
	}
	if params.Tune != "" {
		args = append(args, "-tune", params.Tune)
	}
	args = append(args,
		"-f", "segment",
		"-segment_time", session.SegmentTimeArg(),
		"-segment_wrap", strconv.Itoa(session.SegmentCount),
		"-segment_list", session.ManifestPath(),
		"-segment_list_type", "ffconcat",
		"-segment_format", "mp4",
		"-reset_timestamps", "1",
		session.SegmentOutputPattern(),
	)
	return args
}
