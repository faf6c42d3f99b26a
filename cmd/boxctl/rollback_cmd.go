package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"io"
)

func runRollbackCommand(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("boxctl rollback", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "boxchain.toml", "path to the node config file")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	rest := fs.Args()
	if len(rest) < 1 {
		fmt.Fprintln(stderr, "Usage: boxctl rollback -config <path> <version-hex>")
		return 1
	}

	targetBytes, err := hex.DecodeString(rest[0])
	if err != nil || len(targetBytes) != 32 {
		fmt.Fprintln(stderr, "boxctl: version must be 32 bytes of hex")
		return 1
	}
	var target [32]byte
	copy(target[:], targetBytes)

	e, closeFn, err := openEngine(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "boxctl: %v\n", err)
		return 1
	}
	defer closeFn()

	if err := e.RollbackTo(target); err != nil {
		fmt.Fprintf(stderr, "boxctl: rollback: %v\n", err)
		return 1
	}

	fmt.Fprintf(stdout, "Rolled back to version=%x timestamp=%d\n", target, e.Timestamp())
	return 0
}

func runVersionCommand(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("boxctl version", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "boxchain.toml", "path to the node config file")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	e, closeFn, err := openEngine(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "boxctl: %v\n", err)
		return 1
	}
	defer closeFn()

	version, ok := e.Version()
	if !ok {
		fmt.Fprintln(stdout, "No version committed yet.")
		return 0
	}
	fmt.Fprintf(stdout, "version=%x timestamp=%d\n", version, e.Timestamp())
	return 0
}
