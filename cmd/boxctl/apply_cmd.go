package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/nhbchain/boxchain/core/types"
)

func runApplyCommand(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("boxctl apply", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "boxchain.toml", "path to the node config file")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	rest := fs.Args()
	if len(rest) < 1 {
		fmt.Fprintln(stderr, "Usage: boxctl apply -config <path> <block.json>")
		return 1
	}

	raw, err := os.ReadFile(rest[0])
	if err != nil {
		fmt.Fprintf(stderr, "boxctl: read %s: %v\n", rest[0], err)
		return 1
	}
	var block types.Block
	if err := json.Unmarshal(raw, &block); err != nil {
		fmt.Fprintf(stderr, "boxctl: decode %s: %v\n", rest[0], err)
		return 1
	}

	e, closeFn, err := openEngine(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "boxctl: %v\n", err)
		return 1
	}
	defer closeFn()

	if err := e.ApplyBlock(context.Background(), &block); err != nil {
		fmt.Fprintf(stderr, "boxctl: apply block: %v\n", err)
		return 1
	}

	version, _ := e.Version()
	fmt.Fprintf(stdout, "Block %x applied. version=%x timestamp=%d\n", block.ID, version, e.Timestamp())
	return 0
}
