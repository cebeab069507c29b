package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"screencap/internal/deps"
	"screencap/internal/history"
	"screencap/internal/preflight"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var skipNetwork bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show dependency, display, notification, and history status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			runCtx := cmd.Context()
			if runCtx == nil {
				runCtx = context.Background()
			}

			var lines []string
			lines = append(lines, renderSectionHeader("Dependencies", colorize)...)
			lines = append(lines, dependencyLines(preflight.CheckSystemDeps(runCtx, cfg), colorize)...)

			lines = append(lines, "")
			lines = append(lines, renderSectionHeader("Environment", colorize)...)
			if ctx.configPath != "" {
				lines = append(lines, renderStatusLine("Config", statusInfo, ctx.configPath, colorize))
			}
			for _, result := range preflight.RunAll(runCtx, cfg) {
				lines = append(lines, resultLine(result, statusError, colorize))
			}

			lines = append(lines, "")
			lines = append(lines, renderSectionHeader("Notifications", colorize)...)
			if skipNetwork {
				lines = append(lines, renderStatusLine("Endpoints", statusInfo, "Skipped (--offline)", colorize))
			} else {
				for _, result := range preflight.CheckNotifications(runCtx, cfg) {
					lines = append(lines, resultLine(result, statusWarn, colorize))
				}
			}

			lines = append(lines, "")
			lines = append(lines, renderSectionHeader("Sessions", colorize)...)
			err = ctx.withHistory(func(store *history.Store) error {
				lines = append(lines, historyLines(runCtx, store, colorize)...)
				return nil
			})
			if err != nil {
				lines = append(lines, renderStatusLine("History", statusError, err.Error(), colorize))
			}

			fmt.Fprintln(out, strings.Join(lines, "\n"))
			return nil
		},
	}
	cmd.Flags().BoolVar(&skipNetwork, "offline", false, "Skip notification endpoint checks")
	return cmd
}

func resultLine(result preflight.Result, failKind statusKind, colorize bool) string {
	kind := statusOK
	switch {
	case !result.Passed:
		kind = failKind
	case result.Detail == "Disabled":
		kind = statusInfo
	}
	return renderStatusLine(result.Name, kind, result.Detail, colorize)
}

func dependencyLines(statuses []deps.Status, colorize bool) []string {
	lines := make([]string, 0, len(statuses)+2)
	missingRequired := deps.Missing(statuses)
	switch {
	case len(missingRequired) > 0:
		lines = append(lines, renderStatusLine("Summary", statusError, fmt.Sprintf("%d required dependencies missing", len(missingRequired)), colorize))
	default:
		lines = append(lines, renderStatusLine("Summary", statusOK, "All required dependencies available", colorize))
	}

	missing := make([]string, 0)
	for _, dep := range statuses {
		if dep.Available {
			message := "Ready"
			switch {
			case dep.Version != "":
				message = fmt.Sprintf("Ready (%s)", dep.Version)
			case dep.Command != "":
				message = fmt.Sprintf("Ready (command: %s)", dep.Command)
			}
			lines = append(lines, renderStatusLine(dep.Name, statusOK, message, colorize))
			continue
		}

		detail := strings.TrimSpace(dep.Detail)
		if detail == "" {
			detail = "not available"
		}
		kind := statusError
		if dep.Optional {
			kind = statusWarn
		}
		lines = append(lines, renderStatusLine(dep.Name, kind, detail, colorize))
		missing = append(missing, dep.Name)
	}
	if len(missing) > 0 {
		lines = append(lines, renderStatusLine("Missing dependencies", statusWarn, strings.Join(missing, ", "), colorize))
	}
	return lines
}

func historyLines(ctx context.Context, store *history.Store, colorize bool) []string {
	counts, err := store.StatusCounts(ctx)
	if err != nil {
		return []string{renderStatusLine("History", statusError, err.Error(), colorize)}
	}
	parts := make([]string, 0, len(counts))
	total := 0
	for _, status := range history.AllStatuses() {
		if n := counts[status]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s %d", statusLabel(status), n))
			total += n
		}
	}
	if total == 0 {
		return []string{renderStatusLine("History", statusInfo, "No sessions recorded", colorize)}
	}
	lines := []string{renderStatusLine("History", statusInfo, strings.Join(parts, ", "), colorize)}

	recent, err := store.List(ctx, 1)
	if err == nil && len(recent) == 1 {
		rec := recent[0]
		detail := fmt.Sprintf("%s %s at %s", shortSessionID(rec.ID), strings.ToLower(statusLabel(rec.Status)), rec.StartedAt.Local().Format("2006-01-02 15:04"))
		lines = append(lines, renderStatusLine("Last session", sessionKind(rec.Status), detail, colorize))
	}
	return lines
}
