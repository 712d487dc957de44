package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goblin/desktop/internal/logging"
	"github.com/goblin/desktop/internal/mockserver"
	"github.com/spf13/cobra"
)

func newMockServerCmd(root *rootOptions) *cobra.Command {
	var (
		addr       string
		token      string
		chunkDelay time.Duration
	)

	cmd := &cobra.Command{
		Use:   "mock-server",
		Short: "Run a local chat backend that streams canned replies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			level := root.logLevel
			if level == "" {
				level = "info"
			}
			log := logging.NewConsole(os.Stderr, level)

			srv := mockserver.New(mockserver.Options{
				Token:      token,
				ChunkDelay: chunkDelay,
				Log:        log,
			})
			return srv.ListenAndServe(ctx, addr)
		},
	}

	f := cmd.Flags()
	f.StringVar(&addr, "addr", "127.0.0.1:8000", "listen address")
	f.StringVar(&token, "token", "", "require this bearer token")
	f.DurationVar(&chunkDelay, "chunk-delay", 40*time.Millisecond, "delay between streamed chunks")
	return cmd
}
