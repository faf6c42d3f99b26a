package tx

import (
	"bytes"
	"fmt"

	"github.com/nhbchain/boxchain/core/codec"
	boxerrors "github.com/nhbchain/boxchain/core/errors"
	"github.com/nhbchain/boxchain/core/types"
)

var validRoleValues = map[string]bool{
	string(types.RoleProducer): true,
	string(types.RoleHub):      true,
	string(types.RoleInvestor): true,
}

// ProfileTransactionMessageToSign builds the signing payload: u64_be(ts) ||
// from.pub || utf8(canonical_json(kv)) (spec §4.3).
func ProfileTransactionMessageToSign(t *types.ProfileTransaction) ([]byte, error) {
	canonKV, err := codec.CanonicalJSON(t.KV)
	if err != nil {
		return nil, fmt.Errorf("tx: ProfileTransaction kv: %w", err)
	}
	var buf bytes.Buffer
	buf.Write(codec.PutUint64(t.Ts))
	buf.Write(t.From.Bytes())
	buf.Write(canonKV)
	return buf.Bytes(), nil
}

// ProfileTransactionSemanticValidate runs the stateless checks spec §4.3
// assigns to ProfileTransaction: kv carries only the "role" key, with a
// recognised role value, and the single signature validates.
func ProfileTransactionSemanticValidate(t *types.ProfileTransaction) error {
	for k := range t.KV {
		if k != "role" {
			return boxerrors.Errorf(boxerrors.Malformed, "ProfileTransaction", "unknown kv key %q", k)
		}
	}
	role, ok := t.KV["role"]
	if !ok {
		return boxerrors.Errorf(boxerrors.Malformed, "ProfileTransaction", "missing role")
	}
	if !validRoleValues[role] {
		return boxerrors.Errorf(boxerrors.Malformed, "ProfileTransaction", "unknown role %q", role)
	}

	msg, err := ProfileTransactionMessageToSign(t)
	if err != nil {
		return boxerrors.New(boxerrors.Malformed, "ProfileTransaction", err)
	}
	if !t.From.Verify(msg, t.Sig) {
		return boxerrors.Errorf(boxerrors.SemanticInvalid, "ProfileTransaction", "signature invalid")
	}
	return nil
}

// ProfileTransactionNewBoxes derives the ProfileBox(es) a ProfileTransaction
// produces — one per kv entry, though today only "role" is recognised.
func ProfileTransactionNewBoxes(t *types.ProfileTransaction) []types.ProfileBox {
	out := make([]types.ProfileBox, 0, len(t.KV))
	for field, value := range t.KV {
		out = append(out, codec.NewProfileBox(t.From, value, field))
	}
	return out
}
