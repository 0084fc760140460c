// Package config provides configuration for the indexer daemons. Values
// resolve in precedence order: CLI flags (applied by the daemons), then
// environment variables, then the yaml config file, then defaults.
package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/azero-tools/azero-indexer/internal/chain"
	"github.com/azero-tools/azero-indexer/internal/dexindexer"
	"github.com/azero-tools/azero-indexer/internal/tokendb"
)

// DefaultStartBlock is the dex indexer's initial watermark: the router
// contract's deployment era.
const DefaultStartBlock uint32 = 78272779

// Config holds every daemon's settings; each daemon reads its slice.
type Config struct {
	// Port is the HTTP listen port.
	Port int `yaml:"port"`
	// RPCEndpoint is the node's WebSocket URL.
	RPCEndpoint string `yaml:"rpc_azero"`
	// IndexerURL is the upstream event service consumed by the dex
	// indexer.
	IndexerURL string `yaml:"indexer_url"`
	// DataDir holds the SQLite databases and token DB checkpoints.
	DataDir string `yaml:"data_dir"`
	// Network names the chain in logs and summaries.
	Network string `yaml:"network"`
	// LogLevel is debug, info, warn or error.
	LogLevel string `yaml:"log_level"`
	// StartBlock seeds the dex indexer's watermark.
	StartBlock uint32 `yaml:"start_block"`
	// RouterAddress is the AMM router whose storage lists the pools.
	RouterAddress string `yaml:"router_address"`
	// BalancePrefixes are the hex 4-byte prefixes of PSP-22 balances
	// mappings recognized by the holder decoder.
	BalancePrefixes []string `yaml:"balance_prefixes"`
	// Oracles maps price symbols to oracle URLs.
	Oracles map[string]string `yaml:"oracles"`
}

// Default returns the mainnet defaults.
func Default() *Config {
	return &Config{
		Port:            3001,
		RPCEndpoint:     chain.WSAzeroMainnet,
		IndexerURL:      "http://localhost:3000",
		DataDir:         "db",
		Network:         "mainnet",
		LogLevel:        "info",
		StartBlock:      DefaultStartBlock,
		RouterAddress:   dexindexer.RouterAddress,
		BalancePrefixes: tokendb.DefaultBalancePrefixes,
	}
}

// Load resolves the configuration: defaults, overlaid by the yaml file at
// path (when it exists), overlaid by the environment.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if port := os.Getenv("PORT"); port != "" {
		parsed, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("PORT: %w", err)
		}
		c.Port = parsed
	}
	if rpc := os.Getenv("RPC_AZERO"); rpc != "" {
		c.RPCEndpoint = rpc
	}
	if indexer := os.Getenv("INDEXER_URL"); indexer != "" {
		c.IndexerURL = indexer
	}
	return nil
}

// PrefixBytes decodes the configured balance prefixes.
func (c *Config) PrefixBytes() ([][]byte, error) {
	out := make([][]byte, 0, len(c.BalancePrefixes))
	for _, p := range c.BalancePrefixes {
		decoded, err := hex.DecodeString(p)
		if err != nil || len(decoded) != 4 {
			return nil, fmt.Errorf("balance prefix %q is not 4 hex bytes", p)
		}
		out = append(out, decoded)
	}
	return out, nil
}

// Router parses the configured router address.
func (c *Config) Router() (chain.AccountID, error) {
	return chain.AccountIDFromSS58(c.RouterAddress)
}
