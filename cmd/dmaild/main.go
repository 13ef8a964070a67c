// Package main is the entry point for the dmaild reference server.
// dmaild stores peers and messages in SQLite and fans new messages out to
// connected websocket clients.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/tOgg1/dmail/internal/config"
	"github.com/tOgg1/dmail/internal/dmaild"
	"github.com/tOgg1/dmail/internal/logging"
)

// Version information (set by goreleaser)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	addr := flag.String("addr", "", "listen address (default serve.addr or "+dmaild.DefaultAddr+")")
	database := flag.String("database", "", "SQLite database path (default serve.database or $CONFIG_DIR/dmaild.db)")
	configFile := flag.String("config", "", "config file (default is $HOME/.config/dmail/config.yaml)")
	logLevel := flag.String("log-level", "", "override logging level (debug, info, warn, error)")
	logFormat := flag.String("log-format", "", "override logging format (json, console)")
	flag.Parse()

	loader := config.NewLoader()
	if *configFile != "" {
		loader.SetConfigFile(*configFile)
	}
	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *logFormat != "" {
		cfg.Logging.Format = *logFormat
	}

	closer, err := logging.Init(logging.Config{
		Level:        cfg.Logging.Level,
		Format:       cfg.Logging.Format,
		File:         cfg.Logging.File,
		EnableCaller: cfg.Logging.EnableCaller,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logging: %v\n", err)
		os.Exit(1)
	}
	defer closer.Close()
	logger := logging.Component("dmaild")

	if err := cfg.EnsureDirectories(); err != nil {
		logger.Warn().Err(err).Msg("failed to create directories")
	}
	if cfgUsed := loader.ConfigFileUsed(); cfgUsed != "" {
		logger.Debug().Str("config_file", cfgUsed).Msg("loaded config file")
	}

	logger.Info().
		Str("version", version).
		Str("commit", commit).
		Str("built", date).
		Msg("dmaild starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	daemon, err := dmaild.New(cfg, logger, dmaild.Options{Addr: *addr, DatabasePath: *database})
	if err != nil {
		logger.Error().Err(err).Msg("failed to initialize dmaild")
		os.Exit(1)
	}
	defer daemon.Close()

	if err := daemon.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("dmaild exited with error")
		os.Exit(1)
	}
}
