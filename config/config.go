// Package config loads the standalone engine's runtime configuration: where
// its box store lives, which storage backend holds it, and which genesis file
// seeds it. Adapted from the teacher's TOML-based config.Load, trimmed to
// these three inputs — the
// gossip, RPC, and validator-keystore fields the teacher's Config carries
// are all out of scope here (spec.md §1).
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Backend names which storage.BatchDatabase implementation the engine
// should open its box store against.
type Backend string

const (
	BackendMemory  Backend = "memory"
	BackendLevelDB Backend = "leveldb"
	BackendBolt    Backend = "bolt"
)

// Config is the engine's standalone runtime configuration.
type Config struct {
	DataDir     string  `toml:"DataDir"`
	GenesisFile string  `toml:"GenesisFile"`
	Backend     Backend `toml:"Backend"`
}

// Load reads cfg from path, writing a default file in its place if none
// exists yet (the teacher's createDefault pattern).
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	if cfg.DataDir == "" {
		cfg.DataDir = defaultDataDir
	}
	if cfg.Backend == "" {
		cfg.Backend = BackendLevelDB
	}
	return cfg, nil
}

const defaultDataDir = "./boxchain-data"

func createDefault(path string) (*Config, error) {
	cfg := &Config{
		DataDir: defaultDataDir,
		Backend: BackendLevelDB,
	}
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
