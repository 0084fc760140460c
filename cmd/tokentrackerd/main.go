// Package main provides tokentrackerd - the PSP-22 token tracker: it keeps
// per-contract supply, metadata and holder snapshots current and serves
// them over HTTP.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/azero-tools/azero-indexer/internal/api"
	"github.com/azero-tools/azero-indexer/internal/chain"
	"github.com/azero-tools/azero-indexer/internal/config"
	"github.com/azero-tools/azero-indexer/internal/tokendb"
	"github.com/azero-tools/azero-indexer/pkg/logging"
)

var (
	version = "0.1.0-dev"
	commit  = "unknown"
)

func main() {
	var (
		configFile  = flag.String("config", "", "Config file path")
		port        = flag.Int("port", 3002, "HTTP listen port, overrides config")
		logLevel    = flag.String("log-level", "", "Log level (debug, info, warn, error), overrides config")
		showVersion = flag.Bool("version", false, "Show version and exit")
	)
	flag.Parse()

	log := logging.New(&logging.Config{Level: "info", TimeFormat: time.TimeOnly})
	logging.SetDefault(log)

	if *showVersion {
		log.Infof("tokentrackerd %s (commit: %s)", version, commit)
		os.Exit(0)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatal("Failed to load config", "error", err)
	}
	if *port != 0 {
		cfg.Port = *port
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	log = logging.New(&logging.Config{Level: cfg.LogLevel, TimeFormat: time.TimeOnly})
	logging.SetDefault(log)

	prefixes, err := cfg.PrefixBytes()
	if err != nil {
		log.Fatal("Bad balance prefixes", "error", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	client, err := chain.Connect(ctx, cfg.RPCEndpoint)
	if err != nil {
		log.Fatal("Failed to connect to node", "url", cfg.RPCEndpoint, "error", err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		log.Fatal("Failed to create data directory", "path", cfg.DataDir, "error", err)
	}
	backupPath := filepath.Join(cfg.DataDir, cfg.Network+"_token_db.json")
	db, err := tokendb.FromDisk(backupPath)
	if err != nil {
		log.Warn("Starting with an empty token DB", "path", backupPath, "error", err)
	} else {
		log.Info("Loaded token DB", "path", backupPath, "contracts", db.Len())
	}

	tracker := tokendb.NewTracker(db, client, cfg.Network, backupPath, prefixes)
	go tracker.Run(ctx)

	server := api.NewTokenServer(":"+strconv.Itoa(cfg.Port), db, cfg.Network)
	if err := server.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatal("Server stopped", "error", err)
	}
}
