package main

import (
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	logLevel   string
	url        string
	token      string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "goblin-desktop",
		Short:         "Terminal chat client for the Goblin assistant",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runClient(cmd.Context(), opts)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "path to a YAML config file (reloaded on change)")
	pf.StringVar(&opts.logLevel, "log-level", "", "log level override: trace|debug|info|warn|error")

	f := root.Flags()
	f.StringVar(&opts.url, "url", "", "WebSocket URL of the chat backend (overrides config)")
	f.StringVar(&opts.token, "token", "", "auth token (overrides config)")

	root.AddCommand(newMockServerCmd(opts))
	return root
}
