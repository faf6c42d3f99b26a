// Package genesis loads the JSON file that seeds a fresh box store: an
// initial set of PolyBox allocations and role-keyed ProfileBox bindings,
// committed through core/state.Engine.Genesis as version zero (spec §6).
// Adapted from the teacher's core/genesis (JSON spec -> validate -> build a
// block against the state layer), trimmed to this domain's two box kinds —
// there are no tokens, validators, or loyalty parameters to seed here.
package genesis

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/nhbchain/boxchain/core/codec"
	"github.com/nhbchain/boxchain/core/state"
	"github.com/nhbchain/boxchain/core/types"
	"github.com/nhbchain/boxchain/crypto"
)

// Alloc seeds one PolyBox.
type Alloc struct {
	Pub   string `json:"pub"`
	Nonce uint64 `json:"nonce"`
	Value uint64 `json:"value"`
}

// RoleBinding seeds one role-keyed ProfileBox.
type RoleBinding struct {
	Pub  string `json:"pub"`
	Role string `json:"role"`
}

// Spec is the on-disk genesis file shape.
type Spec struct {
	Timestamp uint64        `json:"timestamp"`
	Allocs    []Alloc       `json:"allocs"`
	Roles     []RoleBinding `json:"roles"`
}

// Load reads and validates a genesis spec from path.
func Load(path string) (*Spec, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("genesis: spec path must be provided")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("genesis: read %s: %w", path, err)
	}
	var spec Spec
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&spec); err != nil {
		return nil, fmt.Errorf("genesis: decode %s: %w", path, err)
	}
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("genesis: invalid spec %s: %w", path, err)
	}
	return &spec, nil
}

// Validate checks the spec's shape-level invariants: every pubkey decodes,
// every role is recognised, and no (pub, nonce) pair repeats.
func (s *Spec) Validate() error {
	if s.Timestamp == 0 {
		return fmt.Errorf("genesis: timestamp must be set")
	}
	seen := make(map[string]struct{}, len(s.Allocs))
	for i, a := range s.Allocs {
		if _, err := crypto.Ed25519PubFromBase58(a.Pub); err != nil {
			return fmt.Errorf("alloc[%d]: %w", i, err)
		}
		key := fmt.Sprintf("%s/%d", a.Pub, a.Nonce)
		if _, dup := seen[key]; dup {
			return fmt.Errorf("alloc[%d]: duplicate (pub, nonce) pair", i)
		}
		seen[key] = struct{}{}
	}
	for i, r := range s.Roles {
		if _, err := crypto.Ed25519PubFromBase58(r.Pub); err != nil {
			return fmt.Errorf("role[%d]: %w", i, err)
		}
		if !types.Role(r.Role).Valid() {
			return fmt.Errorf("role[%d]: unrecognised role %q", i, r.Role)
		}
	}
	return nil
}

// Boxes renders the spec's allocs and roles into the box set Apply commits,
// sorted deterministically so two processes loading the same file produce
// byte-identical genesis content regardless of map/slice iteration order.
func (s *Spec) Boxes() ([]types.Box, error) {
	boxes := make([]types.Box, 0, len(s.Allocs)+len(s.Roles))

	allocs := append([]Alloc(nil), s.Allocs...)
	sort.Slice(allocs, func(i, j int) bool {
		if allocs[i].Pub != allocs[j].Pub {
			return allocs[i].Pub < allocs[j].Pub
		}
		return allocs[i].Nonce < allocs[j].Nonce
	})
	for _, a := range allocs {
		pub, err := crypto.Ed25519PubFromBase58(a.Pub)
		if err != nil {
			return nil, err
		}
		boxes = append(boxes, codec.NewPolyBox(pub, a.Nonce, a.Value))
	}

	roles := append([]RoleBinding(nil), s.Roles...)
	sort.Slice(roles, func(i, j int) bool { return roles[i].Pub < roles[j].Pub })
	for _, r := range roles {
		pub, err := crypto.Ed25519PubFromBase58(r.Pub)
		if err != nil {
			return nil, err
		}
		boxes = append(boxes, codec.NewProfileBox(pub, r.Role, "role"))
	}

	return boxes, nil
}

// Apply loads the genesis file at path and commits it into e.
func Apply(e *state.Engine, path string) error {
	spec, err := Load(path)
	if err != nil {
		return err
	}
	boxes, err := spec.Boxes()
	if err != nil {
		return fmt.Errorf("genesis: %w", err)
	}
	return e.Genesis(boxes, spec.Timestamp)
}
