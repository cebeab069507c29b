package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"screencap/internal/history"
	"screencap/internal/logging"
	"screencap/internal/logs"
	"screencap/internal/services"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var sessionID string
	var lines int
	var follow bool

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the daily log or a recording's session log",
		Long: `Logs prints the tail of the most recent daily log in paths.log_dir.
With --session it reads session.log from that recording's directory instead.
--follow keeps streaming new lines until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if lines < 0 {
				return services.Wrap(services.ErrValidation, "logs", "", "--lines must not be negative", nil)
			}
			path, err := resolveLogPath(cmd, ctx, sessionID)
			if err != nil {
				return err
			}

			tail, offset, err := logs.Last(path, lines)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, line := range tail {
				fmt.Fprintln(out, line)
			}
			if !follow {
				if len(tail) == 0 {
					fmt.Fprintf(cmd.ErrOrStderr(), "No log lines in %s\n", path)
				}
				return nil
			}

			watchCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return logs.Follow(watchCtx, path, offset, func(line string) {
				fmt.Fprintln(out, line)
			})
		},
	}
	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "Session id or unique prefix")
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of trailing lines to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Stream new lines as they are written")
	return cmd
}

func resolveLogPath(cmd *cobra.Command, ctx *commandContext, sessionID string) (string, error) {
	if strings.TrimSpace(sessionID) != "" {
		var path string
		err := ctx.withHistory(func(store *history.Store) error {
			rec, err := store.Get(cmd.Context(), sessionID)
			if err != nil {
				return err
			}
			if strings.TrimSpace(rec.Dir) == "" {
				return services.Wrap(services.ErrNotFound, "logs", "", "session "+shortSessionID(rec.ID)+" has no directory", nil)
			}
			path = filepath.Join(rec.Dir, logging.SessionLogName)
			return nil
		})
		return path, err
	}

	cfg, err := ctx.ensureConfig()
	if err != nil {
		return "", err
	}
	path, err := logs.Latest(cfg.Paths.LogDir, logging.LogFilePattern)
	if errors.Is(err, os.ErrNotExist) {
		return "", services.Wrap(services.ErrNotFound, "logs", "", "no log files in "+cfg.Paths.LogDir, nil)
	}
	return path, err
}
