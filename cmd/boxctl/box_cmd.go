package main

import (
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/nhbchain/boxchain/core/types"
)

func runBoxCommand(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("boxctl box", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "boxchain.toml", "path to the node config file")
	format := fs.String("format", "json", "output format: json or yaml")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	rest := fs.Args()
	if len(rest) < 1 {
		fmt.Fprintln(stderr, "Usage: boxctl box -config <path> <box-id-hex>")
		return 1
	}

	idBytes, err := hex.DecodeString(rest[0])
	if err != nil || len(idBytes) != 32 {
		fmt.Fprintf(stderr, "boxctl: box id must be 32 bytes of hex\n")
		return 1
	}
	var id [32]byte
	copy(id[:], idBytes)

	e, closeFn, err := openEngine(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "boxctl: %v\n", err)
		return 1
	}
	defer closeFn()

	box, ok, err := e.ClosedBox(id)
	if err != nil {
		fmt.Fprintf(stderr, "boxctl: %v\n", err)
		return 1
	}
	if !ok {
		fmt.Fprintf(stderr, "boxctl: no live box with id %s\n", rest[0])
		return 1
	}

	rendered := renderBox(box)
	switch *format {
	case "yaml":
		out, err := yaml.Marshal(rendered)
		if err != nil {
			fmt.Fprintf(stderr, "boxctl: %v\n", err)
			return 1
		}
		fmt.Fprint(stdout, string(out))
	default:
		out, err := json.MarshalIndent(rendered, "", "  ")
		if err != nil {
			fmt.Fprintf(stderr, "boxctl: %v\n", err)
			return 1
		}
		fmt.Fprintln(stdout, string(out))
	}
	return 0
}

// renderBox flattens a types.Box into plain maps and strings so both the
// JSON and YAML encoders print base58/hex forms instead of raw byte arrays.
func renderBox(box types.Box) map[string]any {
	id := box.BoxID()
	switch b := box.(type) {
	case types.PolyBox:
		return map[string]any{
			"kind": "PolyBox", "id": hex.EncodeToString(id[:]),
			"prop": b.Prop.String(), "nonce": b.Nonce, "value": b.Value,
		}
	case types.ArbitBox:
		return map[string]any{
			"kind": "ArbitBox", "id": hex.EncodeToString(id[:]),
			"prop": b.Prop.String(), "nonce": b.Nonce, "value": b.Value,
		}
	case types.ContractBox:
		keys := make([]string, len(b.Prop.Keys))
		for i, k := range b.Prop.Keys {
			keys[i] = k.String()
		}
		return map[string]any{
			"kind": "ContractBox", "id": hex.EncodeToString(id[:]),
			"m": b.Prop.M, "keys": keys, "nonce": b.Nonce,
			"producer": b.Value.Producer, "hub": b.Value.Hub, "investor": b.Value.Investor,
			"agreement": string(b.Value.Agreement), "storage": string(b.Value.Storage),
			"lastUpdated": b.Value.LastUpdated,
		}
	case types.ProfileBox:
		return map[string]any{
			"kind": "ProfileBox", "id": hex.EncodeToString(id[:]),
			"prop": b.Prop.String(), "field": b.Field, "value": b.Value,
		}
	default:
		return map[string]any{"kind": "unknown", "id": hex.EncodeToString(id[:])}
	}
}
