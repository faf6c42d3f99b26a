package types

import (
	"encoding/json"

	"github.com/nhbchain/boxchain/crypto"
)

// BoxKind identifies which of the four box variants a Box value holds.
type BoxKind uint8

const (
	BoxKindPoly BoxKind = iota
	BoxKindArbit
	BoxKindContract
	BoxKindProfile
)

// Tag returns the wire type_tag used by the box codec (spec §4.1).
func (k BoxKind) Tag() string {
	switch k {
	case BoxKindPoly:
		return "PolyBox"
	case BoxKindArbit:
		return "ArbitBox"
	case BoxKindContract:
		return "ContractBox"
	case BoxKindProfile:
		return "ProfileBox"
	default:
		return ""
	}
}

// Box is the sum type shared by all four unspent-record variants. Every box
// carries a stable id, derived deterministically from its contents, that
// drives equality and store keys (spec §3).
type Box interface {
	Kind() BoxKind
	BoxID() [32]byte
}

// PolyBox is a fungible "poly" holding locked by a single Ed25519 key.
type PolyBox struct {
	Prop  crypto.Ed25519Pub
	Nonce uint64
	Value uint64
	ID    [32]byte
}

func (b PolyBox) Kind() BoxKind   { return BoxKindPoly }
func (b PolyBox) BoxID() [32]byte { return b.ID }

// ArbitBox is a fungible "arbit" holding. No transaction in this system
// produces, spends, or validates it; it is encodable and storable only
// (spec §1 Non-goals, §9 open question — resolved as a read-only relic).
type ArbitBox struct {
	Prop  crypto.Ed25519Pub
	Nonce uint64
	Value uint64
	ID    [32]byte
}

func (b ArbitBox) Kind() BoxKind   { return BoxKindArbit }
func (b ArbitBox) BoxID() [32]byte { return b.ID }

// ContractValue is the JSON-shaped payload carried by a ContractBox (spec
// §3). Agreement and Storage are kept as raw JSON rather than fully typed
// structs because the contract engine mutates Storage sub-fields per method
// and the box id must hash the exact canonical bytes of whatever is stored
// (spec §9 design note on JSON-valued boxes).
type ContractValue struct {
	Producer    string          `json:"producer"`
	Hub         string          `json:"hub"`
	Investor    string          `json:"investor"`
	Agreement   json.RawMessage `json:"agreement"`
	Storage     json.RawMessage `json:"storage"`
	LastUpdated uint64          `json:"lastUpdated"`
}

// ContractBox is a live three-party supply-chain contract, locked by an MofN
// proposition over the three parties' keys.
type ContractBox struct {
	Prop  crypto.MofN
	Nonce uint64
	Value ContractValue
	ID    [32]byte
}

func (b ContractBox) Kind() BoxKind   { return BoxKindContract }
func (b ContractBox) BoxID() [32]byte { return b.ID }

// ProfileBox binds a role-keyed identity fact to a public key. Nonce is
// always 0; the id is pinned by (prop, field), independent of Value, so a
// profile's id never changes even if its value is later overwritten by a
// fresh box of the same (prop, field) pair created after the old one is
// spent (spec §3 invariant 5).
type ProfileBox struct {
	Prop  crypto.Ed25519Pub
	Value string
	Field string
	ID    [32]byte
}

func (b ProfileBox) Kind() BoxKind   { return BoxKindProfile }
func (b ProfileBox) BoxID() [32]byte { return b.ID }
func (b ProfileBox) BoxNonce() uint64 { return 0 }
