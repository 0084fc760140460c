// Package main provides eventindexerd - the contract event indexer: a
// two-ended block scraper feeding the event store, served over HTTP.
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
	"github.com/azero-tools/azero-indexer/internal/eventdb"
	"github.com/azero-tools/azero-indexer/internal/scraper"
	"github.com/azero-tools/azero-indexer/pkg/logging"
)

var (
	version = "0.1.0-dev"
	commit  = "unknown"
)

func main() {
	var (
		configFile  = flag.String("config", "", "Config file path")
		port        = flag.Int("port", 3000, "HTTP listen port, overrides config")
		logLevel    = flag.String("log-level", "", "Log level (debug, info, warn, error), overrides config")
		showVersion = flag.Bool("version", false, "Show version and exit")
	)
	flag.Parse()

	log := logging.New(&logging.Config{Level: "info", TimeFormat: time.TimeOnly})
	logging.SetDefault(log)

	if *showVersion {
		log.Infof("eventindexerd %s (commit: %s)", version, commit)
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

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	client, err := chain.Connect(ctx, cfg.RPCEndpoint)
	if err != nil {
		log.Fatal("Failed to connect to node", "url", cfg.RPCEndpoint, "error", err)
	}
	log.Info("Connected to node", "url", cfg.RPCEndpoint)

	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		log.Fatal("Failed to create data directory", "path", cfg.DataDir, "error", err)
	}
	store := eventdb.Open(filepath.Join(cfg.DataDir, cfg.Network+"_events.db"))
	defer store.Close()

	seed := finalizedWithRetry(ctx, client, log)
	if err := store.Init(seed); err != nil {
		log.Fatal("Failed to initialize event store", "error", err)
	}
	from, to, err := store.Bounds()
	if err != nil {
		log.Fatal("Failed to read event store window", "error", err)
	}
	log.Info("Event store ready", "indexed_from", from, "indexed_to", to)

	engine := scraper.New(scraper.NewChainSource(client), store, scraper.DefaultConfig())
	go func() {
		if err := engine.Run(ctx); err != nil && ctx.Err() == nil {
			log.Fatal("Scraper stopped", "error", err)
		}
	}()

	server := api.NewEventServer(":"+strconv.Itoa(cfg.Port), store)
	if err := server.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatal("Server stopped", "error", err)
	}
}

func finalizedWithRetry(ctx context.Context, client *chain.Client, log *logging.Logger) uint32 {
	for {
		num, err := client.FinalizedNumber()
		if err == nil {
			return num
		}
		log.Error("Failed to read finalized block number", "error", err)
		select {
		case <-ctx.Done():
			os.Exit(1)
		case <-time.After(2 * time.Second):
		}
	}
}
