package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/youngmoe/obsync/internal/logger"
	"github.com/youngmoe/obsync/pkg/api"
	"github.com/youngmoe/obsync/pkg/auth"
	"github.com/youngmoe/obsync/pkg/config"
	"github.com/youngmoe/obsync/pkg/metrics"
	"github.com/youngmoe/obsync/pkg/secret"
	"github.com/youngmoe/obsync/pkg/store"
	"github.com/youngmoe/obsync/pkg/sync"
)

// Build-time variables injected via ldflags
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const usage = `obsync - Self-hosted Obsidian sync and publish backend

Usage:
  obsync <command> [flags]

Commands:
  init     Initialize a sample configuration file
  start    Start the sync server
  version  Show version information

Flags:
  --config string    Path to config file (default: ./config.yaml)
  --force            Force overwrite existing config file (init command only)

Examples:
  # Initialize config file
  obsync init

  # Start server with default config location
  obsync start

  # Start server with custom config
  obsync start --config /etc/obsync/config.yaml

  # Use environment variables to override config
  OBSYNC_LOGGING_LEVEL=DEBUG obsync start

Environment Variables:
  All configuration options can be overridden using environment variables.
  Format: OBSYNC_<SECTION>_<KEY> (use underscores for nested keys)

  Examples:
    OBSYNC_SIGNUP_KEY=letmein
    OBSYNC_LOGGING_LEVEL=DEBUG
    OBSYNC_DATABASE_TYPE=postgres
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "init":
		runInit()
	case "start":
		runStart()
	case "help", "--help", "-h":
		fmt.Print(usage)
		os.Exit(0)
	case "version", "--version", "-v":
		fmt.Printf("obsync %s (commit: %s, built: %s)\n", version, commit, date)
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
}

// runInit handles the init subcommand
func runInit() {
	initFlags := flag.NewFlagSet("init", flag.ExitOnError)
	configFile := initFlags.String("config", "config.yaml", "Path to config file")
	force := initFlags.Bool("force", false, "Force overwrite existing config file")

	if err := initFlags.Parse(os.Args[2:]); err != nil {
		log.Fatalf("Failed to parse flags: %v", err)
	}

	if err := config.InitFile(*configFile, *force); err != nil {
		log.Fatalf("Failed to initialize config: %v", err)
	}

	fmt.Printf("Configuration file created at: %s\n", *configFile)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Edit the configuration file to customize your setup")
	fmt.Printf("  2. Start the server with: obsync start --config %s\n", *configFile)
}

// runStart handles the start subcommand
func runStart() {
	startFlags := flag.NewFlagSet("start", flag.ExitOnError)
	configFile := startFlags.String("config", "", "Path to config file (default: ./config.yaml)")

	if err := startFlags.Parse(os.Args[2:]); err != nil {
		log.Fatalf("Failed to parse flags: %v", err)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	logger.Info("configuration loaded", "source", configSource(*configFile), "data_dir", cfg.DataDir)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}

	// Token signing secret: generated on first boot, re-read thereafter.
	signingSecret, err := secret.Load(cfg.DataDir)
	if err != nil {
		log.Fatalf("Failed to load signing secret: %v", err)
	}
	tokens, err := auth.NewTokenService(signingSecret)
	if err != nil {
		log.Fatalf("Failed to create token service: %v", err)
	}

	st, err := store.New(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error("store close error", "error", err)
		}
	}()
	logger.Info("store opened", "type", cfg.Database.Type)

	m := metrics.NewSyncMetrics(cfg.Metrics.Enabled)
	if cfg.Metrics.Enabled {
		logger.Info("metrics enabled", "path", "/metrics")
	}

	engine := sync.NewEngine(st, tokens, sync.Config{
		SnapshotOnConnect: cfg.Sync.SnapshotEnabled(),
		MaxFrameBytes:     cfg.Sync.MaxFrameBytes,
		IdleTimeout:       cfg.Sync.IdleTimeout,
		QuotaBytes:        cfg.MaxStorageBytes(),
	}, m)

	server := api.NewServer(cfg, st, tokens, engine, m)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- server.Start(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("server is running, press Ctrl+C to stop", "host", cfg.Host)

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("shutdown signal received, initiating graceful shutdown")
		cancel()

		if err := <-serverDone; err != nil {
			logger.Error("server shutdown error", "error", err)
			os.Exit(1)
		}
		logger.Info("server stopped gracefully")

	case err := <-serverDone:
		signal.Stop(sigChan)
		if err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
		logger.Info("server stopped")
	}
}

// configSource returns a description of where the config was loaded from
func configSource(configFile string) string {
	if configFile != "" {
		return configFile
	}
	if _, err := os.Stat("config.yaml"); err == nil {
		return "./config.yaml"
	}
	return "defaults"
}
