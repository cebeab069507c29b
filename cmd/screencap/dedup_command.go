package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"screencap/internal/config"
	"screencap/internal/recorder"
)

func newDedupCommand() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:         "dedup <manifest>",
		Short:       "Keep only the last occurrence of each manifest line",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := config.ExpandPath(args[0])
			if err != nil {
				return fmt.Errorf("resolve manifest path: %w", err)
			}
			target := input + recorder.UniqueSuffix
			if strings.TrimSpace(output) != "" {
				if target, err = config.ExpandPath(output); err != nil {
					return fmt.Errorf("resolve output path: %w", err)
				}
			}
			result, err := recorder.DeduplicateTo(input, target)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Kept %d of %d lines -> %s\n", result.OutputLines, result.InputLines, result.OutputPath)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output path (default <manifest>.unique)")
	return cmd
}
