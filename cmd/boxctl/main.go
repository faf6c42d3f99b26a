// Command boxctl operates a standalone box store and state-transition
// engine: seed it from a genesis file, apply blocks, inspect boxes, and roll
// back to an earlier version. Modeled on cmd/nhb-cli's subcommand dispatch,
// but boxctl talks to a local store directly rather than an RPC endpoint —
// there is no gossip/consensus layer in this system's scope (spec.md §1).
package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/nhbchain/boxchain/observability/logging"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	logging.Setup("boxctl", strings.TrimSpace(os.Getenv("BOXCTL_ENV")))

	if len(args) < 1 {
		printUsage(stderr)
		return 1
	}

	command := args[0]
	rest := args[1:]
	switch command {
	case "genesis":
		return runGenesisCommand(rest, stdout, stderr)
	case "box":
		return runBoxCommand(rest, stdout, stderr)
	case "apply":
		return runApplyCommand(rest, stdout, stderr)
	case "rollback":
		return runRollbackCommand(rest, stdout, stderr)
	case "version":
		return runVersionCommand(rest, stdout, stderr)
	case "help", "-h", "--help":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", command)
		printUsage(stderr)
		return 1
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: boxctl <command> [arguments]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  genesis  -config <path>                       Seed a fresh store from its configured genesis file")
	fmt.Fprintln(w, "  box      -config <path> <box-id-hex>          Print a closed box by id")
	fmt.Fprintln(w, "  apply    -config <path> <block.json>          Apply a block file to the store")
	fmt.Fprintln(w, "  rollback -config <path> <version-hex>         Roll the store back to an earlier version")
	fmt.Fprintln(w, "  version  -config <path>                       Print the store's current version and timestamp")
}
