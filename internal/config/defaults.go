package config

const (
	defaultConfigPath       = "~/.config/screencap/config.toml"
	defaultOutputDir        = "~/.local/share/screencap/recordings"
	defaultLogDir           = "~/.local/share/screencap/logs"
	defaultStateDir         = "~/.local/share/screencap"
	defaultLogRetentionDays = 30
	defaultLogFormat        = "console"
	defaultLogLevel         = "info"
	defaultDisplay          = ":1"
	defaultFrameRate        = 25
	defaultDurationSeconds  = 10.0
	defaultSegmentCount     = 2
	defaultVideoCodec       = "libx264"
	defaultPreset           = "ultrafast"
	defaultTune             = "zerolatency"
	defaultFFmpegBinary     = "ffmpeg"
	defaultFFprobeBinary    = "ffprobe"
	defaultXdpyinfoBinary   = "xdpyinfo"
	defaultStopGraceSeconds = 10
	defaultNotifyTimeout    = 10
	defaultSlackAPIURL      = "https://slack.com/api/"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			OutputDir: defaultOutputDir,
			LogDir:    defaultLogDir,
			StateDir:  defaultStateDir,
		},
		Capture: Capture{
			FrameRate:        defaultFrameRate,
			DurationSeconds:  defaultDurationSeconds,
			SegmentCount:     defaultSegmentCount,
			VideoCodec:       defaultVideoCodec,
			Preset:           defaultPreset,
			Tune:             defaultTune,
			FFmpegBinary:     defaultFFmpegBinary,
			FFprobeBinary:    defaultFFprobeBinary,
			XdpyinfoBinary:   defaultXdpyinfoBinary,
			StopGraceSeconds: defaultStopGraceSeconds,
			Verify:           true,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			SlackAPIURL:    defaultSlackAPIURL,
			Recording:      true,
			Errors:         true,
			AttachArtifact: true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
