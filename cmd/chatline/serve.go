package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/codefionn/chatline/internal/chatserver"
	"github.com/codefionn/chatline/internal/logger"
)

func serveCmd() *cobra.Command {
	var (
		addr      string
		heartbeat time.Duration
		maxConns  int
		logLevel  string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a local reference chat server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			log := logger.NewWriter(logger.ParseLevel(logLevel), cmd.ErrOrStderr(), "serve")
			srv := chatserver.NewServer(chatserver.Config{
				Addr:              addr,
				HeartbeatInterval: heartbeat,
				MaxConnections:    maxConns,
				Logger:            log,
			})
			return srv.Run(ctx)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&addr, "addr", ":9432", "listen address")
	flags.DurationVar(&heartbeat, "heartbeat", chatserver.DefaultHeartbeatInterval, "heartbeat interval")
	flags.IntVar(&maxConns, "max-connections", chatserver.DefaultMaxConnections, "maximum concurrent connections")
	flags.StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error, none)")

	return cmd
}
