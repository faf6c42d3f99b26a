package types

import (
	"encoding/json"

	"github.com/nhbchain/boxchain/crypto"
)

// TxKind identifies which of the four transaction kinds a Transaction holds.
type TxKind uint8

const (
	TxKindPolyTransfer TxKind = iota
	TxKindContractCreation
	TxKindContractMethodExecution
	TxKindProfileTransaction
)

func (k TxKind) String() string {
	switch k {
	case TxKindPolyTransfer:
		return "PolyTransfer"
	case TxKindContractCreation:
		return "ContractCreation"
	case TxKindContractMethodExecution:
		return "ContractMethodExecution"
	case TxKindProfileTransaction:
		return "ProfileTransaction"
	default:
		return ""
	}
}

// PolyInput names a PolyBox to spend by the key that locks it and the nonce
// that (together with the key) derives its id.
type PolyInput struct {
	Pub   crypto.Ed25519Pub
	Nonce uint64
}

// PolyOutput describes a recipient and the value a new PolyBox should carry.
type PolyOutput struct {
	Pub   crypto.Ed25519Pub
	Value uint64
}

// PolyTransfer spends one or more PolyBoxes and creates new ones, subject to
// value conservation (spec §3, §4.3).
type PolyTransfer struct {
	From []PolyInput
	To   []PolyOutput
	Sigs []crypto.Signature
	Fee  uint64
	Ts   uint64
}

// Party names one of the three roles in a contract and the key bound to it.
type Party struct {
	Role Role
	Pub  crypto.Ed25519Pub
}

// ContractCreation stands up a new three-party ContractBox.
type ContractCreation struct {
	Agreement json.RawMessage
	Parties   [3]Party
	Sigs      [3]crypto.Signature
	Fee       uint64
	Ts        uint64
}

// ContractMethodExecution invokes a named method on an existing ContractBox,
// identified by id, on behalf of one of its three parties. The box's current
// content is looked up from state at validation time, never carried on the
// wire.
type ContractMethodExecution struct {
	ContractBoxID [32]byte
	Party         Party
	Method        string
	Params        json.RawMessage
	Sigs          [2]crypto.Signature
	Fee           uint64
	Ts            uint64
}

// ProfileTransaction registers or asserts role-keyed identity facts about
// From. Today the only recognised key is "role" (spec §4.3).
type ProfileTransaction struct {
	From crypto.Ed25519Pub
	Sig  crypto.Signature
	KV   map[string]string
	Fee  uint64
	Ts   uint64
}

// Transaction is the sum of the four transaction kinds. Exactly one of the
// kind-specific fields is populated, selected by Kind.
type Transaction struct {
	Kind                    TxKind
	PolyTransfer            *PolyTransfer
	ContractCreation        *ContractCreation
	ContractMethodExecution *ContractMethodExecution
	ProfileTransaction      *ProfileTransaction
}

// Fee returns the transaction's declared fee, regardless of kind.
func (t *Transaction) Fee() uint64 {
	switch t.Kind {
	case TxKindPolyTransfer:
		return t.PolyTransfer.Fee
	case TxKindContractCreation:
		return t.ContractCreation.Fee
	case TxKindContractMethodExecution:
		return t.ContractMethodExecution.Fee
	case TxKindProfileTransaction:
		return t.ProfileTransaction.Fee
	default:
		return 0
	}
}

// Timestamp returns the transaction's declared timestamp, regardless of kind.
func (t *Transaction) Timestamp() uint64 {
	switch t.Kind {
	case TxKindPolyTransfer:
		return t.PolyTransfer.Ts
	case TxKindContractCreation:
		return t.ContractCreation.Ts
	case TxKindContractMethodExecution:
		return t.ContractMethodExecution.Ts
	case TxKindProfileTransaction:
		return t.ProfileTransaction.Ts
	default:
		return 0
	}
}
