package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.Port != 3001 {
		t.Errorf("Port = %d, want 3001", cfg.Port)
	}
	if cfg.RPCEndpoint == "" || cfg.IndexerURL == "" {
		t.Error("endpoints must default")
	}
	if len(cfg.BalancePrefixes) != 4 {
		t.Errorf("BalancePrefixes = %v", cfg.BalancePrefixes)
	}
	if _, err := cfg.Router(); err != nil {
		t.Errorf("default router does not parse: %v", err)
	}
	if _, err := cfg.PrefixBytes(); err != nil {
		t.Errorf("default prefixes do not parse: %v", err)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	dir, err := os.MkdirTemp("", "config-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "config.yaml")
	yaml := "port: 4000\nnetwork: testnet\nrpc_azero: wss://file.example:443\n"
	if err := os.WriteFile(path, []byte(yaml), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("PORT", "5000")
	t.Setenv("RPC_AZERO", "")
	t.Setenv("INDEXER_URL", "http://env.example")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	// Env beats file, file beats default.
	if cfg.Port != 5000 {
		t.Errorf("Port = %d, want 5000", cfg.Port)
	}
	if cfg.RPCEndpoint != "wss://file.example:443" {
		t.Errorf("RPCEndpoint = %s", cfg.RPCEndpoint)
	}
	if cfg.IndexerURL != "http://env.example" {
		t.Errorf("IndexerURL = %s", cfg.IndexerURL)
	}
	if cfg.Network != "testnet" {
		t.Errorf("Network = %s", cfg.Network)
	}
	if cfg.StartBlock != DefaultStartBlock {
		t.Errorf("StartBlock = %d", cfg.StartBlock)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("RPC_AZERO", "")
	t.Setenv("INDEXER_URL", "")
	cfg, err := Load("/nonexistent/config.yaml")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Port != 3001 {
		t.Errorf("Port = %d, want 3001", cfg.Port)
	}
}

func TestBadPrefixRejected(t *testing.T) {
	cfg := Default()
	cfg.BalancePrefixes = []string{"zz"}
	if _, err := cfg.PrefixBytes(); err == nil {
		t.Error("PrefixBytes() should reject bad hex")
	}
	cfg.BalancePrefixes = []string{"aabbcc"}
	if _, err := cfg.PrefixBytes(); err == nil {
		t.Error("PrefixBytes() should reject non-4-byte prefixes")
	}
}
