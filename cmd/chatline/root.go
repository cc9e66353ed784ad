package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/codefionn/chatline/internal/config"
	"github.com/codefionn/chatline/internal/diag"
	"github.com/codefionn/chatline/internal/logger"
	"github.com/codefionn/chatline/internal/repl"
	"github.com/codefionn/chatline/internal/socketclient"
)

type options struct {
	configPath  string
	host        string
	port        int
	metricsAddr string
	logLevel    string
	pprof       bool
	timeout     time.Duration
}

func rootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "chatline",
		Short: "Interactive client for line-oriented JSON chat servers",
		Long: `chatline keeps a persistent connection to a chat server, re-authenticates
after every reconnect and resends requests that were not answered.

Commands:
  /send <text>   send a chat message
  /count         ask how many users are connected
  /time          ask for the server time
  /raw <json>    send arbitrary JSON without waiting for a reply
  /quit          exit`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "config file (.json, .yaml or .toml)")
	flags.StringVar(&opts.host, "host", "", "server host")
	flags.IntVarP(&opts.port, "port", "p", 0, "server port")
	flags.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error, none)")
	flags.BoolVar(&opts.pprof, "pprof", false, "also serve /debug/pprof on the metrics address")
	flags.DurationVar(&opts.timeout, "timeout", config.DefaultRequestTimeout, "how long a command waits for its responses")

	return cmd
}

// loadConfig reads the config file and lets explicitly set flags win.
func loadConfig(cmd *cobra.Command, opts *options) (*config.Config, error) {
	if opts.configPath == "" {
		opts.configPath = config.GetConfigPath()
	}
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Host = opts.host
	}
	if flags.Changed("port") {
		cfg.Port = opts.port
	}
	if flags.Changed("metrics-addr") {
		cfg.MetricsAddr = opts.metricsAddr
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = opts.logLevel
	}
	if flags.Changed("timeout") {
		cfg.RequestTimeoutMS = int(opts.timeout / time.Millisecond)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func run(parent context.Context, cfg *config.Config, opts *options) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log, err := logger.New(cfg.Level(), cfg.LogPath, "chatline")
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Close()
	connLog := log.WithPrefix("conn")

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	clientCfg := cfg.ClientConfig()
	clientCfg.Logger = connLog
	clientCfg.Registerer = reg
	client, err := socketclient.New(clientCfg)
	if err != nil {
		return err
	}
	defer client.Close()

	console := repl.New(client, os.Stdin, os.Stdout, log)
	console.SetTimeout(cfg.RequestTimeout())
	name, password, err := console.Credentials(cfg.Name)
	if err != nil {
		return fmt.Errorf("failed to read credentials: %w", err)
	}
	if err := client.SetCredentials(name, password); err != nil {
		return err
	}

	client.On(socketclient.EventMessage, func(ev socketclient.Event) {
		console.Print(ev.Data)
	})
	client.On(socketclient.EventReady, func(socketclient.Event) {
		log.Info("connected to %s as %s", clientCfg.Address(), name)
	})

	g, gctx := errgroup.WithContext(ctx)

	if cfg.MetricsAddr != "" {
		srv := diag.NewServer(diag.Config{
			Addr:     cfg.MetricsAddr,
			Gatherer: reg,
			Pprof:    opts.pprof,
			Logger:   log,
		})
		g.Go(func() error { return srv.Run(gctx) })
	}

	if _, err := os.Stat(opts.configPath); err == nil {
		g.Go(func() error {
			return config.Watch(gctx, opts.configPath, log, func(next *config.Config) {
				log.SetLevel(next.Level())
			})
		})
	}

	if err := client.Connect(gctx); err != nil {
		return err
	}

	// stdin reads cannot be interrupted, so the REPL is not part of the
	// group and is left behind on shutdown.
	replDone := make(chan error, 1)
	go func() { replDone <- console.Run(gctx) }()

	g.Go(func() error {
		select {
		case err := <-replDone:
			stop()
			return err
		case <-gctx.Done():
			return nil
		}
	})

	return g.Wait()
}
