package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"wabridge/internal/api"
	"wabridge/internal/bus"
	"wabridge/internal/config"
	"wabridge/internal/relay"
	"wabridge/internal/resolve"
	"wabridge/internal/session"
)

var (
	version    = "1.0.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	// .env is optional; real env vars win either way.
	_ = godotenv.Load()

	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:   "wabridge",
		Short: "wabridge: WhatsApp message relay",
		Long:  "wabridge bridges WhatsApp to an HTTP webhook and exposes send endpoints for text, media, polls and buttons.",
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json (default: ~/.wabridge/config.json)")

	root.AddCommand(initCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(bulkCmd())
	root.AddCommand(doctorCmd())
	root.AddCommand(configCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize config and data directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgDir := config.DefaultConfigDir()
			cfgPath := config.DefaultConfigPath()
			if err := os.MkdirAll(cfgDir, 0o755); err != nil {
				return err
			}
			cfg := config.Defaults()
			if err := config.Save(cfgPath, cfg); err != nil {
				return err
			}
			if err := os.MkdirAll(cfg.General.DataDir, 0o755); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath, "dataDir", cfg.General.DataDir)
			return nil
		},
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the relay (session + webhook forwarder + HTTP API)",
		Long:  "Connects the WhatsApp session, forwards inbound messages to the webhook, and serves the send API. Press Ctrl+C to stop.",
		RunE:  runServe,
	}
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

func loadConfig() (*config.Config, error) {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Warn("config not found, using defaults", "path", cfgPath, "err", err)
		cfg = config.Defaults()
		config.ApplyEnvOverrides(cfg)
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLogLevel(cfg.General.LogLevel)}))

	if err := os.MkdirAll(cfg.General.DataDir, 0o755); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eventBus := bus.New(100, logger)
	defer eventBus.Close()

	manager := session.New(session.Options{
		StorePath:      cfg.Session.StorePath,
		ReconnectDelay: time.Duration(cfg.Session.ReconnectDelaySeconds) * time.Second,
		SendRate:       cfg.Session.SendRatePerMinute,
		PrintQR:        cfg.Session.PrintQR,
	}, eventBus, logger)

	if err := manager.Start(ctx); err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer manager.Close()

	forwarder := relay.NewForwarder(
		cfg.Webhook.URL,
		time.Duration(cfg.Webhook.TimeoutSeconds)*time.Second,
		manager,
		logger,
	)
	resolver := resolve.New(manager, logger)
	dispatcher := relay.NewDispatcher(eventBus.Subscribe(), resolver, forwarder, logger)
	go dispatcher.Run(ctx)

	mediaStore := api.NewMediaStore(
		cfg.Media.Dir,
		cfg.Media.MaxBytes,
		time.Duration(cfg.Media.CleanupDelaySeconds)*time.Second,
		logger,
	)
	server := api.NewServer(api.Options{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		BulkDelay:       time.Duration(cfg.Bulk.DelayMs) * time.Millisecond,
		BulkJitter:      time.Duration(cfg.Bulk.JitterMs) * time.Millisecond,
		MetricsEnabled:  cfg.Metrics.Enabled,
		MetricsEndpoint: cfg.Metrics.Endpoint,
	}, manager, mediaStore, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Run(ctx) }()

	logger.Info("relay started. Press Ctrl+C to stop.", "version", version)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("api server: %w", err)
		}
	}

	logger.Info("shutting down...")
	return nil
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Query a running relay for its session state",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			status, err := fetchStatus(cmd.Context(), fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port))
			if err != nil {
				return fmt.Errorf("relay not reachable: %w", err)
			}
			data, _ := json.MarshalIndent(status, "", "  ")
			fmt.Println(string(data))
			return nil
		},
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and modify configuration",
		Long:  "Get, set, and list configuration values. Changes are saved to the config file.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get [path]",
		Short: "Get a config value (e.g. webhook.url)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			val, err := config.GetByPath(cfg, args[0])
			if err != nil {
				return err
			}
			data, _ := json.MarshalIndent(val, "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set [path] [value]",
		Short: "Set a config value (e.g. bulk.delayMs 2500)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := config.SetByPath(cfg, args[0], args[1]); err != nil {
				return fmt.Errorf("set value: %w", err)
			}
			if err := config.Save(cfgPath, cfg); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			logger.Info("config updated", "path", args[0], "value", args[1], "file", cfgPath)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all config values",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			data, _ := json.MarshalIndent(cfg, "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show config file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(resolveConfigPath())
		},
	})

	return cmd
}
