package main

import (
	"flag"
	"fmt"
	"io"

	"github.com/nhbchain/boxchain/config"
	"github.com/nhbchain/boxchain/core/genesis"
	"github.com/nhbchain/boxchain/core/state"
	"github.com/nhbchain/boxchain/storage/boxstore"
)

func runGenesisCommand(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("boxctl genesis", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "boxchain.toml", "path to the node config file")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "boxctl: %v\n", err)
		return 1
	}
	if cfg.GenesisFile == "" {
		fmt.Fprintln(stderr, "boxctl: config has no GenesisFile set")
		return 1
	}

	db, closeFn, err := openBackend(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "boxctl: %v\n", err)
		return 1
	}
	defer closeFn()

	e := state.NewEngine(boxstore.New(db))
	if err := genesis.Apply(e, cfg.GenesisFile); err != nil {
		fmt.Fprintf(stderr, "boxctl: apply genesis: %v\n", err)
		return 1
	}

	version, _ := e.Version()
	fmt.Fprintf(stdout, "Genesis applied. version=%x timestamp=%d\n", version, e.Timestamp())
	return 0
}
