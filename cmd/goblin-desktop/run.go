package main

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/goblin/desktop/internal/app"
	"github.com/goblin/desktop/internal/bus"
	"github.com/goblin/desktop/internal/capture"
	"github.com/goblin/desktop/internal/client"
	"github.com/goblin/desktop/internal/config"
	"github.com/goblin/desktop/internal/logging"
	"github.com/goblin/desktop/internal/metrics"
	"github.com/goblin/desktop/internal/stream"
	"github.com/rs/zerolog"
)

const reloadDebounce = 250 * time.Millisecond

// loadConfig reads the config file and applies command-line overrides.
func loadConfig(opts *rootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	if opts.url != "" {
		cfg.WebSocket.URL = opts.url
	}
	if opts.token != "" {
		cfg.WebSocket.Token = opts.token
	}
	return cfg, cfg.Validate()
}

func newProvider(cfg config.CaptureConfig) capture.Provider {
	if cfg.File != "" {
		return &capture.FileProvider{Path: cfg.File}
	}
	args := cfg.Command
	if len(args) == 0 {
		args = capture.DefaultCommand()
	}
	return &capture.CommandProvider{Args: args}
}

func runClient(ctx context.Context, opts *rootOptions) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	log, logCloser, err := logging.NewFile(cfg.Log)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	m := metrics.New()
	b := bus.New(log)

	mgr := client.NewManager(client.Options{
		URL: cfg.WebSocket.URL,
		Policy: client.Policy{
			MaxAttempts:  cfg.WebSocket.ReconnectAttempts,
			BaseInterval: cfg.WebSocket.ReconnectInterval,
		},
		Dialer: &client.WebsocketDialer{
			HandshakeTimeout: cfg.WebSocket.HandshakeTimeout,
			PingInterval:     cfg.WebSocket.PingInterval,
			Token:            cfg.WebSocket.Token,
		},
		Metrics: m,
		Log:     log,
	}, b)

	asm := stream.New(b, m, log)
	mgr.OnFrame(asm.HandleFrame)

	sched := capture.NewScheduler(capture.Options{
		Transport:     mgr,
		Provider:      newProvider(cfg.Capture),
		DefaultPeriod: cfg.Capture.DefaultFrequency,
		Metrics:       m,
		Log:           log,
	}, b)
	sched.SetTargetContext(cfg.CaptureTarget())
	if cfg.Capture.Enabled {
		// Ticks are skipped until the first connection comes up.
		if err := sched.Start(cfg.CaptureTarget(), 0); err != nil {
			log.Warn().Err(err).Msg("capture not started")
		}
	}

	if cfg.Metrics.Addr != "" {
		srv := metrics.NewServer(cfg.Metrics.Addr, m, func() any {
			return map[string]any{
				"state":    mgr.State().String(),
				"attempts": mgr.Attempts(),
				"capture":  sched.Job().Active,
			}
		}, log)
		go func() {
			if err := srv.Run(ctx); err != nil {
				log.Error().Err(err).Msg("diagnostics server stopped")
			}
		}()
	}

	if opts.configPath != "" {
		startWatcher(ctx, opts.configPath, sched, log)
	}

	bridge := app.NewBridge(b)
	model := app.New(app.Options{
		Bus:      b,
		Conn:     mgr,
		Capture:  sched,
		Bridge:   bridge,
		Provider: cfg.Chat.Provider,
		Project:  cfg.Chat.Project,
	})

	log.Info().Str("url", cfg.WebSocket.URL).Msg("starting")
	_, runErr := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx)).Run()

	// The bridge goes first so no publisher stays blocked on the closed UI.
	bridge.Close()
	sched.Close()
	mgr.Close()
	asm.Close()
	log.Info().Msg("stopped")

	return runErr
}

// startWatcher applies capture settings from config reloads. Connection
// settings only take effect on restart.
func startWatcher(ctx context.Context, path string, sched *capture.Scheduler, log zerolog.Logger) {
	w, err := config.NewWatcher(path, reloadDebounce, log, func(c *config.Config) {
		if err := sched.UpdateFrequency(c.Capture.DefaultFrequency); err != nil {
			log.Warn().Err(err).Msg("capture frequency not applied")
		}
		if target := c.CaptureTarget(); target != sched.Job().Target {
			if err := sched.SetTargetContext(target); err != nil {
				log.Warn().Err(err).Msg("capture target not applied")
			}
		}
	})
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("config reload disabled")
		return
	}
	go w.Run(ctx)
}
