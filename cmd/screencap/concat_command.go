package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"screencap/internal/config"
	"screencap/internal/logging"
)

func newConcatCommand(ctx *commandContext) *cobra.Command {
	var verify bool

	cmd := &cobra.Command{
		Use:   "concat <dir>",
		Short: "Deduplicate a recording's manifest and join its segments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			dir, err := config.ExpandPath(args[0])
			if err != nil {
				return fmt.Errorf("resolve directory: %w", err)
			}

			joiner := newConcatenator(cfg, logger)
			result, err := joiner.Run(cmd.Context(), dir)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !result.Ran {
				fmt.Fprintf(out, "Nothing to join in %s: %s\n", dir, result.Reason)
				return nil
			}
			fmt.Fprintf(out, "Joined %d segments (%d duplicate manifest lines removed)\n", len(result.Segments), result.Dedupe.Removed())
			fmt.Fprintf(out, "Recording: %s\n", result.ArtifactPath)

			if verify {
				check, err := joiner.Verify(cmd.Context(), result)
				if err != nil {
					logging.WarnWithContext(logger, "artifact verification failed", "verify_failed", logging.Error(err))
					return err
				}
				fmt.Fprintf(out, "Duration: %.2fs (segments %.2fs, verified: %s)\n", check.ArtifactSeconds, check.SegmentSeconds, yesNo(check.OK))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&verify, "verify", false, "Compare the joined duration with the segments using ffprobe")
	return cmd
}
