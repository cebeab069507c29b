package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"screencap/internal/history"
	"screencap/internal/logging"
	"screencap/internal/notifications"
	"screencap/internal/services"
)

func newRecordCommand(ctx *commandContext) *cobra.Command {
	var opts recordOptions

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record the display into segments and join them",
		Long: `Record launches ffmpeg in its own process group to capture the X display
into fixed-length segments, stops the whole group when the duration elapses
or on Ctrl-C, then deduplicates the segment manifest and joins the segments
into a single MP4 without re-encoding.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.duration < 0 {
				return services.Wrap(services.ErrValidation, "record", "parse flags", "--duration must be positive", nil)
			}
			if opts.segments < 0 {
				return services.Wrap(services.ErrValidation, "record", "parse flags", "--segments must be at least 1", nil)
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			defer logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays, logging.RetentionTarget{
				Dir:     cfg.Paths.LogDir,
				Pattern: logging.LogFilePattern,
				Exclude: []string{logging.DailyLogPath(cfg.Paths.LogDir, time.Now())},
			})

			return ctx.withHistory(func(store *history.Store) error {
				rec := &recording{
					cfg:      cfg,
					opts:     opts,
					logger:   logger,
					store:    store,
					notifier: notifications.NewService(cfg, logger),
				}
				outcome, err := rec.run(cmd.Context())
				if err != nil {
					return err
				}
				printRecordOutcome(cmd.OutOrStdout(), outcome)
				return nil
			})
		},
	}

	cmd.Flags().DurationVarP(&opts.duration, "duration", "d", 0, "Total recording length (default from config)")
	cmd.Flags().IntVarP(&opts.segments, "segments", "n", 0, "Number of segments (default from config)")
	cmd.Flags().StringVar(&opts.display, "display", "", "X display to capture (default from config or $DISPLAY)")
	cmd.Flags().StringVar(&opts.dir, "dir", "", "Exact recording directory instead of a new one under output_dir")
	cmd.Flags().StringVar(&opts.export, "export", "", "Copy the joined recording to this file or directory")
	cmd.Flags().BoolVar(&opts.skipPreflight, "skip-preflight", false, "Skip dependency and display checks")
	return cmd
}

func printRecordOutcome(out io.Writer, outcome recordOutcome) {
	session := outcome.Session
	fmt.Fprintf(out, "Session %s (%s)\n", session.ShortID(), outcome.StopReason)
	fmt.Fprintf(out, "Directory: %s\n", session.Dir)
	switch outcome.Status {
	case history.StatusCompleted:
		fmt.Fprintf(out, "Recording: %s\n", outcome.ArtifactPath)
		if v := outcome.Verification; v != nil {
			fmt.Fprintf(out, "Duration: %.2fs (segments %.2fs, verified: %s)\n", v.ArtifactSeconds, v.SegmentSeconds, yesNo(v.OK))
		}
		if outcome.ExportPath != "" {
			fmt.Fprintf(out, "Exported: %s\n", outcome.ExportPath)
		}
	default:
		fmt.Fprintf(out, "No recording produced: %s\n", outcome.Reason)
	}
}
