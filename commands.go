package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"webhook-chat/internal/config"
	"webhook-chat/internal/history"
	"webhook-chat/internal/terminal"
)

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "webhook-chat",
		Short:         "Terminal chat client for an n8n-style chat webhook",
		Version:       fmt.Sprintf("%s (%s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, runREPL)
		},
	}

	f := cmd.PersistentFlags()
	f.StringVar(&opts.settingsPath, "settings", config.DefaultSettingsPath(), "YAML settings file")
	f.StringVar(&opts.dataDir, "data-dir", "", "Directory for persisted config and history")
	f.StringVar(&opts.backend, "backend", "", "Storage backend: file, pebble, sqlite or memory")
	f.StringVar(&opts.webhookURL, "webhook-url", "", "Webhook URL, replaces the stored one")
	f.StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	f.StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	f.BoolVar(&opts.noMarkdown, "no-markdown", false, "Print replies as plain text")
	f.BoolVar(&opts.ephemeral, "ephemeral", false, "Keep nothing on disk (memory backend)")

	cmd.AddCommand(
		newSendCmd(opts),
		newConfigCmd(opts),
		newHistoryCmd(opts),
		newClearCmd(opts),
	)
	return cmd
}

func withApp(cmd *cobra.Command, opts *rootOptions, run func(*app) error) error {
	cfg, err := loadConfig(opts, cmd.Flags().Changed)
	if err != nil {
		return err
	}
	a, err := openApp(cfg, cmd.InOrStdin(), cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer a.Close()
	return run(a)
}

func newSendCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "send <message>",
		Short: "Send one message and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(a *app) error {
				ex, err := a.ctrl.Send(strings.Join(args, " "))
				if err != nil {
					return err
				}
				a.display.PrintReply(ex.Wait())
				// The diagnostic reply is already printed and stored.
				if err := ex.Err(); err != nil {
					return fmt.Errorf("webhook exchange failed: %w", err)
				}
				return nil
			})
		},
	}
}

func newConfigCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change the chat configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the webhook URL and session id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(a *app) error {
				a.display.PrintConfig(a.ctrl.Snapshot().Config)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set-webhook <url>",
		Short: "Store a new webhook URL, keeping the session id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(a *app) error {
				if err := a.ctrl.UpdateConfig(history.ChatConfig{WebhookURL: strings.TrimSpace(args[0])}); err != nil {
					return err
				}
				a.display.PrintSuccess("Webhook URL saved")
				a.display.PrintConfig(a.ctrl.Snapshot().Config)
				return nil
			})
		},
	})

	return cmd
}

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "Print the stored conversation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(a *app) error {
				a.display.PrintHistory(a.ctrl.Snapshot().Messages)
				return nil
			})
		},
	}
}

func newClearCmd(opts *rootOptions) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete the stored conversation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(a *app) error {
				if !yes {
					a.display.PrintWarning("Delete the whole conversation? [y/N]")
					if !terminal.NewReader(a.in).Confirm() {
						return errors.New("aborted")
					}
				}
				if err := a.ctrl.ClearConversation(); err != nil {
					return err
				}
				a.display.PrintSuccess("Conversation cleared")
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")
	return cmd
}
