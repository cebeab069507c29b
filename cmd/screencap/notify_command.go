package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"screencap/internal/config"
	"screencap/internal/notifications"
	"screencap/internal/services"
)

func newNotifyCommand(ctx *commandContext) *cobra.Command {
	var title string
	var filePath string
	var fileName string

	cmd := &cobra.Command{
		Use:   "notify [message]",
		Short: "Send a message, optionally with a file, to the configured channels",
		Long: `Notify posts a message through every configured backend (ntfy, Slack).
With --file the file is attached; Slack uses the external upload flow and
ntfy receives it as a PUT attachment. Without a message or file a test
notification is sent.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if !notifications.Configured(cfg) {
				return services.Wrap(services.ErrConfiguration, "notify", "", "no notification backend configured (set ntfy_topic or slack_token and slack_channel)", nil)
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			svc := notifications.NewService(cfg, logger)
			out := cmd.OutOrStdout()

			message := ""
			if len(args) == 1 {
				message = strings.TrimSpace(args[0])
			}
			if message == "" && strings.TrimSpace(filePath) == "" {
				if err := svc.TestNotification(cmd.Context()); err != nil {
					return services.Wrap(services.ErrTransient, "notify", "test", "", err)
				}
				fmt.Fprintln(out, "Test notification sent")
				return nil
			}

			msg := notifications.Message{Title: strings.TrimSpace(title), Body: message}
			if strings.TrimSpace(filePath) == "" {
				if err := svc.PostMessage(cmd.Context(), msg); err != nil {
					return services.Wrap(services.ErrTransient, "notify", "post message", "", err)
				}
				fmt.Fprintln(out, "Message sent")
				return nil
			}

			path, err := config.ExpandPath(filePath)
			if err != nil {
				return fmt.Errorf("resolve file path: %w", err)
			}
			info, err := os.Stat(path)
			if err != nil {
				return services.Wrap(services.ErrValidation, "notify", "attach file", path, err)
			}
			if info.IsDir() {
				return services.Wrap(services.ErrValidation, "notify", "attach file", path+" is a directory", nil)
			}
			name := strings.TrimSpace(fileName)
			if name == "" {
				name = filepath.Base(path)
			}
			if err := svc.PostFile(cmd.Context(), msg, path, name); err != nil {
				return services.Wrap(services.ErrTransient, "notify", "post file", name, err)
			}
			fmt.Fprintf(out, "Sent %s (%d bytes)\n", name, info.Size())
			return nil
		},
	}
	cmd.Flags().StringVarP(&title, "title", "t", "", "Message title")
	cmd.Flags().StringVarP(&filePath, "file", "f", "", "File to attach")
	cmd.Flags().StringVar(&fileName, "filename", "", "Attachment name shown to recipients (default: base name of --file)")
	return cmd
}
