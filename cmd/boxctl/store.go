package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/nhbchain/boxchain/config"
	"github.com/nhbchain/boxchain/core/state"
	"github.com/nhbchain/boxchain/storage"
	"github.com/nhbchain/boxchain/storage/boxstore"
)

// openEngine loads cfg from path and opens the box store backend it names,
// returning a ready state.Engine plus a closer the caller must run.
func openEngine(configPath string) (*state.Engine, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("boxctl: load config: %w", err)
	}

	db, closeFn, err := openBackend(cfg)
	if err != nil {
		return nil, nil, err
	}

	store := boxstore.New(db)
	return state.NewEngine(store), closeFn, nil
}

func openBackend(cfg *config.Config) (storage.BatchDatabase, func(), error) {
	switch cfg.Backend {
	case config.BackendMemory, "":
		db := storage.NewMemDB()
		return db, func() {}, nil
	case config.BackendLevelDB:
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("boxctl: create data dir: %w", err)
		}
		db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "leveldb"))
		if err != nil {
			return nil, nil, fmt.Errorf("boxctl: open leveldb: %w", err)
		}
		return db, db.Close, nil
	case config.BackendBolt:
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("boxctl: create data dir: %w", err)
		}
		db, err := storage.NewBoltDB(filepath.Join(cfg.DataDir, "boxchain.bolt"))
		if err != nil {
			return nil, nil, fmt.Errorf("boxctl: open bolt: %w", err)
		}
		return db, db.Close, nil
	default:
		return nil, nil, fmt.Errorf("boxctl: unknown backend %q", cfg.Backend)
	}
}
