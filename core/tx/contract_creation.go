package tx

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/nhbchain/boxchain/core/codec"
	boxerrors "github.com/nhbchain/boxchain/core/errors"
	"github.com/nhbchain/boxchain/core/types"
	"github.com/nhbchain/boxchain/crypto"
)

// ContractCreationMessageToSign builds the signing payload: u64_be(ts) ||
// encode(agreement) || concat(parties[*].pub), where encode(agreement) is
// the canonical JSON bytes of the raw agreement (spec §4.3).
func ContractCreationMessageToSign(t *types.ContractCreation) ([]byte, error) {
	canonAgreement, err := codec.CanonicalizeJSON(t.Agreement)
	if err != nil {
		return nil, fmt.Errorf("tx: ContractCreation agreement: %w", err)
	}
	pubs := make([]crypto.Ed25519Pub, len(t.Parties))
	for i, p := range t.Parties {
		pubs[i] = p.Pub
	}
	var buf bytes.Buffer
	buf.Write(codec.PutUint64(t.Ts))
	buf.Write(canonAgreement)
	buf.Write(concatPubs(pubs))
	return buf.Bytes(), nil
}

// ContractCreationSemanticValidate runs the stateless checks spec §4.3
// assigns to ContractCreation: exactly three parties covering the three
// distinct roles, each signature valid under its party's key, and a
// well-formed agreement.
func ContractCreationSemanticValidate(t *types.ContractCreation) error {
	seen := map[types.Role]bool{}
	for _, p := range t.Parties {
		if !p.Role.Valid() {
			return boxerrors.Errorf(boxerrors.Malformed, "ContractCreation", "unknown role %q", p.Role)
		}
		if seen[p.Role] {
			return boxerrors.Errorf(boxerrors.Malformed, "ContractCreation", "role %q appears more than once", p.Role)
		}
		seen[p.Role] = true
	}
	if len(seen) != 3 {
		return boxerrors.Errorf(boxerrors.Malformed, "ContractCreation", "parties must cover producer, hub and investor")
	}

	agreement, err := types.ParseAgreement(t.Agreement)
	if err != nil {
		return boxerrors.New(boxerrors.Malformed, "ContractCreation", err)
	}
	if err := agreement.Validate(); err != nil {
		return boxerrors.New(boxerrors.SemanticInvalid, "ContractCreation", err)
	}

	msg, err := ContractCreationMessageToSign(t)
	if err != nil {
		return boxerrors.New(boxerrors.Malformed, "ContractCreation", err)
	}
	for i, p := range t.Parties {
		if !p.Pub.Verify(msg, t.Sigs[i]) {
			return boxerrors.Errorf(boxerrors.SemanticInvalid, "ContractCreation", "signature %d invalid", i)
		}
	}
	return nil
}

// partyByRole returns the party entry with the given role, panicking if
// absent — callers must run ContractCreationSemanticValidate first, which
// guarantees all three roles are present exactly once.
func partyByRole(t *types.ContractCreation, role types.Role) types.Party {
	for _, p := range t.Parties {
		if p.Role == role {
			return p
		}
	}
	panic(fmt.Sprintf("tx: ContractCreation missing role %q", role))
}

// ContractCreationHashNoNonces computes H(encode(agreement) ||
// concat(parties.pub) || u64_be(ts) || u64_be(fee)) (spec §4.3).
func ContractCreationHashNoNonces(t *types.ContractCreation) ([32]byte, error) {
	canonAgreement, err := codec.CanonicalizeJSON(t.Agreement)
	if err != nil {
		return [32]byte{}, err
	}
	pubs := make([]crypto.Ed25519Pub, len(t.Parties))
	for i, p := range t.Parties {
		pubs[i] = p.Pub
	}
	return codec.H(canonAgreement, concatPubs(pubs), codec.PutUint64(t.Ts), codec.PutUint64(t.Fee)), nil
}

// ContractCreationNewBox derives the ContractBox a ContractCreation produces:
// prop = MofN(1, parties.pub), value = {role -> base58(pub)} merged with
// agreement/storage/lastUpdated, nonce = first_8_bytes_as_u64_be(H(encode(prop)
// || hash_no_nonces)) (spec §4.3).
func ContractCreationNewBox(t *types.ContractCreation) (types.ContractBox, error) {
	pubs := make([]crypto.Ed25519Pub, len(t.Parties))
	for i, p := range t.Parties {
		pubs[i] = p.Pub
	}
	prop := crypto.NewMofN(1, pubs)

	hashNoNonces, err := ContractCreationHashNoNonces(t)
	if err != nil {
		return types.ContractBox{}, err
	}
	nonce := codec.FirstEightBytesAsUint64(codec.H(prop.Encode(), hashNoNonces[:]))

	value := types.ContractValue{
		Producer:    partyByRole(t, types.RoleProducer).Pub.String(),
		Hub:         partyByRole(t, types.RoleHub).Pub.String(),
		Investor:    partyByRole(t, types.RoleInvestor).Pub.String(),
		Agreement:   t.Agreement,
		Storage:     json.RawMessage(`{"status":"initialized"}`),
		LastUpdated: t.Ts,
	}

	return codec.NewContractBox(prop, nonce, value)
}
