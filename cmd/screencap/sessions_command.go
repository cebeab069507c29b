package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"screencap/internal/history"
	"screencap/internal/services"
)

func newSessionsCommand(ctx *commandContext) *cobra.Command {
	sessionsCmd := &cobra.Command{
		Use:     "sessions",
		Aliases: []string{"history"},
		Short:   "Inspect recorded sessions",
	}
	sessionsCmd.AddCommand(newSessionsListCommand(ctx))
	sessionsCmd.AddCommand(newSessionsShowCommand(ctx))
	sessionsCmd.AddCommand(newSessionsRemoveCommand(ctx))
	return sessionsCmd
}

func newSessionsListCommand(ctx *commandContext) *cobra.Command {
	var statusFlags []string
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sessions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			statuses, err := parseStatusFlags(statusFlags)
			if err != nil {
				return err
			}
			return ctx.withHistory(func(store *history.Store) error {
				records, err := store.List(cmd.Context(), limit, statuses...)
				if err != nil {
					return err
				}
				if asJSON {
					views := make([]sessionView, 0, len(records))
					for _, rec := range records {
						views = append(views, newSessionView(rec))
					}
					return writeJSON(cmd, views)
				}
				out := cmd.OutOrStdout()
				if len(records) == 0 {
					fmt.Fprintln(out, "No sessions recorded")
					return nil
				}
				fmt.Fprintln(out, renderSessionTable(records))
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVarP(&statusFlags, "status", "s", nil, "Filter by status (recording, stopped, completed, empty, failed)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum sessions to show (0 for all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func newSessionsShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one session; a unique id prefix is enough",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withHistory(func(store *history.Store) error {
				rec, err := store.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, newSessionView(*rec))
				}
				printSessionDetail(cmd.OutOrStdout(), *rec)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func newSessionsRemoveCommand(ctx *commandContext) *cobra.Command {
	var purge bool

	cmd := &cobra.Command{
		Use:   "remove <id>",
		Short: "Forget a session, optionally deleting its directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withHistory(func(store *history.Store) error {
				rec, err := store.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if rec.Status == history.StatusRecording {
					return services.Wrap(services.ErrValidation, "sessions", "remove", "session "+shortSessionID(rec.ID)+" is still recording", nil)
				}
				if err := store.Remove(cmd.Context(), rec.ID); err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Session %s removed\n", shortSessionID(rec.ID))
				if purge && strings.TrimSpace(rec.Dir) != "" {
					if err := os.RemoveAll(rec.Dir); err != nil && !errors.Is(err, os.ErrNotExist) {
						return fmt.Errorf("delete %s: %w", rec.Dir, err)
					}
					fmt.Fprintf(out, "Deleted %s\n", rec.Dir)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&purge, "purge", false, "Also delete the recording directory")
	return cmd
}

func parseStatusFlags(values []string) ([]history.Status, error) {
	statuses := make([]history.Status, 0, len(values))
	for _, value := range values {
		status, ok := history.ParseStatus(value)
		if !ok {
			return nil, services.Wrap(services.ErrValidation, "sessions", "parse status", fmt.Sprintf("unknown status %q", value), nil)
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

type sessionView struct {
	ID              string  `json:"id"`
	Dir             string  `json:"dir"`
	Status          string  `json:"status"`
	TotalSeconds    float64 `json:"total_seconds"`
	SegmentCount    int     `json:"segment_count"`
	SegmentSeconds  float64 `json:"segment_seconds"`
	StartedAt       string  `json:"started_at"`
	StoppedAt       string  `json:"stopped_at,omitempty"`
	ArtifactPath    string  `json:"artifact_path,omitempty"`
	ArtifactSeconds float64 `json:"artifact_seconds,omitempty"`
	Error           string  `json:"error,omitempty"`
}

func newSessionView(rec history.Record) sessionView {
	view := sessionView{
		ID:              rec.ID,
		Dir:             rec.Dir,
		Status:          string(rec.Status),
		TotalSeconds:    rec.TotalSeconds,
		SegmentCount:    rec.SegmentCount,
		SegmentSeconds:  rec.SegmentSeconds,
		StartedAt:       rec.StartedAt.Format(time.RFC3339),
		ArtifactPath:    rec.ArtifactPath,
		ArtifactSeconds: rec.ArtifactSeconds,
		Error:           rec.ErrorMessage,
	}
	if !rec.StoppedAt.IsZero() {
		view.StoppedAt = rec.StoppedAt.Format(time.RFC3339)
	}
	return view
}

func renderSessionTable(records []history.Record) string {
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		rows = append(rows, []string{
			shortSessionID(rec.ID),
			statusLabel(rec.Status),
			rec.StartedAt.Local().Format("2006-01-02 15:04:05"),
			formatSeconds(rec.TotalSeconds),
			strconv.Itoa(rec.SegmentCount),
			sessionOutput(rec),
		})
	}
	return renderTable(
		[]string{"ID", "Status", "Started", "Length", "Segments", "Output"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
	)
}

func printSessionDetail(out io.Writer, rec history.Record) {
	fmt.Fprintf(out, "Session:   %s\n", rec.ID)
	fmt.Fprintf(out, "Status:    %s\n", statusLabel(rec.Status))
	fmt.Fprintf(out, "Directory: %s\n", rec.Dir)
	fmt.Fprintf(out, "Started:   %s\n", rec.StartedAt.Local().Format(time.RFC3339))
	if !rec.StoppedAt.IsZero() {
		fmt.Fprintf(out, "Stopped:   %s (after %s)\n", rec.StoppedAt.Local().Format(time.RFC3339), rec.Elapsed().Round(time.Millisecond))
	}
	fmt.Fprintf(out, "Length:    %s in %d segments of %s\n", formatSeconds(rec.TotalSeconds), rec.SegmentCount, formatSeconds(rec.SegmentSeconds))
	if rec.ArtifactPath != "" {
		fmt.Fprintf(out, "Recording: %s\n", rec.ArtifactPath)
	}
	if rec.ArtifactSeconds > 0 {
		fmt.Fprintf(out, "Duration:  %s\n", formatSeconds(rec.ArtifactSeconds))
	}
	if rec.ErrorMessage != "" {
		fmt.Fprintf(out, "Error:     %s\n", rec.ErrorMessage)
	}
}

func sessionOutput(rec history.Record) string {
	switch {
	case rec.ArtifactPath != "":
		return rec.ArtifactPath
	case rec.ErrorMessage != "":
		return truncate(rec.ErrorMessage, 60)
	default:
		return rec.Dir
	}
}

func shortSessionID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatSeconds(seconds float64) string {
	return strconv.FormatFloat(seconds, 'f', -1, 64) + "s"
}

func truncate(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit-1]) + "…"
}
