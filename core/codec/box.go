package codec

import (
	"encoding/json"
	"fmt"

	"github.com/nhbchain/boxchain/core/types"
	"github.com/nhbchain/boxchain/crypto"
)

// CanonicalContractValue renders a ContractBox's value field to canonical
// bytes. Marshalling the struct first and then re-canonicalizing the result
// sorts both the top-level fields and any nested object inside Agreement /
// Storage in one pass, so a contract's id depends only on content, never on
// field declaration order (spec §4.1, §9).
func CanonicalContractValue(v types.ContractValue) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("codec: marshal contract value: %w", err)
	}
	return CanonicalizeJSON(raw)
}

// NewPolyBox constructs a PolyBox with its id derived per spec §3.
func NewPolyBox(prop crypto.Ed25519Pub, nonce, value uint64) types.PolyBox {
	return types.PolyBox{Prop: prop, Nonce: nonce, Value: value, ID: PolyArbitID(prop, nonce)}
}

// NewArbitBox constructs an ArbitBox with its id derived per spec §3. No
// transaction in this system spends or creates one (spec §1 Non-goals), and
// the genesis loader does not seed one either; DecodeBox is its only caller.
func NewArbitBox(prop crypto.Ed25519Pub, nonce, value uint64) types.ArbitBox {
	return types.ArbitBox{Prop: prop, Nonce: nonce, Value: value, ID: PolyArbitID(prop, nonce)}
}

// NewContractBox constructs a ContractBox, deriving its id from the
// canonical bytes of value.
func NewContractBox(prop crypto.MofN, nonce uint64, value types.ContractValue) (types.ContractBox, error) {
	canon, err := CanonicalContractValue(value)
	if err != nil {
		return types.ContractBox{}, err
	}
	return types.ContractBox{Prop: prop, Nonce: nonce, Value: value, ID: ContractID(prop, nonce, canon)}, nil
}

// NewProfileBox constructs a ProfileBox. Nonce is always 0 (spec §3).
func NewProfileBox(prop crypto.Ed25519Pub, value, field string) types.ProfileBox {
	return types.ProfileBox{Prop: prop, Value: value, Field: field, ID: ProfileID(prop, field)}
}
