// Package tx implements message_to_sign and semantic_validate for the four
// transaction kinds (spec §4.3). Every function here is stateless: it never
// touches the box store, so it is safe to call from mempool admission as
// well as from the state engine's pre-dispatch checks.
package tx

import (
	"bytes"

	"github.com/nhbchain/boxchain/core/codec"
	boxerrors "github.com/nhbchain/boxchain/core/errors"
	"github.com/nhbchain/boxchain/core/types"
	"github.com/nhbchain/boxchain/crypto"
)

func concatPubs(pubs []crypto.Ed25519Pub) []byte {
	out := make([]byte, 0, len(pubs)*32)
	for _, p := range pubs {
		out = append(out, p.Bytes()...)
	}
	return out
}

func concatIDs(boxIDs [][32]byte) []byte {
	out := make([]byte, 0, len(boxIDs)*32)
	for _, id := range boxIDs {
		out = append(out, id[:]...)
	}
	return out
}

// PolyInputID is the id of the PolyBox a PolyInput names: H(pub ||
// u64_be(nonce)) (spec §4.3).
func PolyInputID(in types.PolyInput) [32]byte {
	return codec.H(in.Pub.Bytes(), codec.PutUint64(in.Nonce))
}

// PolyTransferMessageToSign builds the PolyTransfer signing payload:
// concat(pub_of(to[*]), id_of(inputs[*]), u64_be(ts), u64_be(fee)) (spec
// §4.3).
func PolyTransferMessageToSign(t *types.PolyTransfer) []byte {
	toPubs := make([]crypto.Ed25519Pub, len(t.To))
	for i, o := range t.To {
		toPubs[i] = o.Pub
	}
	inputIDs := PolyTransferInputIDs(t)
	var buf bytes.Buffer
	buf.Write(concatPubs(toPubs))
	buf.Write(concatIDs(inputIDs))
	buf.Write(codec.PutUint64(t.Ts))
	buf.Write(codec.PutUint64(t.Fee))
	return buf.Bytes()
}

// PolyTransferSemanticValidate runs the stateless checks spec §4.3 assigns to
// PolyTransfer: equal input/signature counts and each signature validating
// under its corresponding input key.
func PolyTransferSemanticValidate(t *types.PolyTransfer) error {
	if len(t.From) == 0 {
		return boxerrors.Errorf(boxerrors.Malformed, "PolyTransfer", "no inputs")
	}
	if len(t.From) != len(t.Sigs) {
		return boxerrors.Errorf(boxerrors.Malformed, "PolyTransfer", "have %d inputs, %d signatures", len(t.From), len(t.Sigs))
	}
	if len(t.To) == 0 {
		return boxerrors.Errorf(boxerrors.Malformed, "PolyTransfer", "no outputs")
	}
	msg := PolyTransferMessageToSign(t)
	for i, in := range t.From {
		if !in.Pub.Verify(msg, t.Sigs[i]) {
			return boxerrors.Errorf(boxerrors.SemanticInvalid, "PolyTransfer", "signature %d invalid", i)
		}
	}
	return nil
}

// polyHashNoNonces computes H(concat(to.pub) || concat(input_ids) ||
// u64_be(ts) || u64_be(fee)), the nonce-derivation seed shared by every
// output box of one PolyTransfer (spec §4.3).
func polyHashNoNonces(t *types.PolyTransfer, inputIDs [][32]byte) [32]byte {
	toPubs := make([]crypto.Ed25519Pub, len(t.To))
	for i, o := range t.To {
		toPubs[i] = o.Pub
	}
	return codec.H(concatPubs(toPubs), concatIDs(inputIDs), codec.PutUint64(t.Ts), codec.PutUint64(t.Fee))
}

// PolyTransferInputIDs returns the box ids spent by t, in order.
func PolyTransferInputIDs(t *types.PolyTransfer) [][32]byte {
	out := make([][32]byte, len(t.From))
	for i, in := range t.From {
		out[i] = PolyInputID(in)
	}
	return out
}

// PolyTransferNewBoxes derives the new PolyBox for every recipient: nonce =
// first_8_bytes_as_u64_be(H(prop.pub || hash_no_nonces || u32_be(i))) (spec
// §4.3).
func PolyTransferNewBoxes(t *types.PolyTransfer) []types.PolyBox {
	inputIDs := PolyTransferInputIDs(t)
	hashNoNonces := polyHashNoNonces(t, inputIDs)
	out := make([]types.PolyBox, len(t.To))
	for i, o := range t.To {
		nonce := codec.FirstEightBytesAsUint64(codec.H(o.Pub.Bytes(), hashNoNonces[:], codec.PutUint32(uint32(i))))
		out[i] = codec.NewPolyBox(o.Pub, nonce, o.Value)
	}
	return out
}
