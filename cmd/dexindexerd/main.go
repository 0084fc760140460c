// Package main provides dexindexerd - the derived trade indexer: it
// consumes the event service, decodes pool swaps into trades and serves
// trades, pools and token prices over HTTP.
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
	"github.com/azero-tools/azero-indexer/internal/dexindexer"
	"github.com/azero-tools/azero-indexer/internal/pricefeed"
	"github.com/azero-tools/azero-indexer/internal/tradedb"
	"github.com/azero-tools/azero-indexer/pkg/logging"
)

var (
	version = "0.1.0-dev"
	commit  = "unknown"
)

func main() {
	var (
		configFile  = flag.String("config", "", "Config file path")
		port        = flag.Int("port", 0, "HTTP listen port, overrides config")
		logLevel    = flag.String("log-level", "", "Log level (debug, info, warn, error), overrides config")
		showVersion = flag.Bool("version", false, "Show version and exit")
	)
	flag.Parse()

	log := logging.New(&logging.Config{Level: "info", TimeFormat: time.TimeOnly})
	logging.SetDefault(log)

	if *showVersion {
		log.Infof("dexindexerd %s (commit: %s)", version, commit)
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
	log.Info("Running config", "port", cfg.Port, "rpc_azero", cfg.RPCEndpoint, "indexer_url", cfg.IndexerURL)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	router, err := cfg.Router()
	if err != nil {
		log.Fatal("Bad router address", "error", err)
	}
	client, err := chain.Connect(ctx, cfg.RPCEndpoint)
	if err != nil {
		log.Fatal("Failed to connect to node", "url", cfg.RPCEndpoint, "error", err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		log.Fatal("Failed to create data directory", "path", cfg.DataDir, "error", err)
	}
	store := tradedb.Open(filepath.Join(cfg.DataDir, cfg.Network+"_trades.db"))
	defer store.Close()
	if err := store.Init(cfg.StartBlock); err != nil {
		log.Fatal("Failed to initialize trade store", "error", err)
	}

	feed := pricefeed.New(pricefeed.DefaultOracles())
	if len(cfg.Oracles) > 0 {
		feed = pricefeed.New(cfg.Oracles)
	}
	go feed.Run(ctx)

	indexer := dexindexer.New(
		store,
		dexindexer.NewHTTPEventService(cfg.IndexerURL),
		dexindexer.NewChainPoolSource(client, router),
		client,
	)
	go indexer.Run(ctx)

	server := api.NewDexServer(":"+strconv.Itoa(cfg.Port), store, feed, cfg.StartBlock)
	if err := server.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatal("Server stopped", "error", err)
	}
}
