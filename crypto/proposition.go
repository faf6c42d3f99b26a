package crypto

import (
	"bytes"
	"crypto/ed25519"
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/btcsuite/btcutil/base58"
)

// Ed25519Pub is a 32-byte Ed25519 public key, the single-key proposition used
// to lock poly/arbit holdings and profile records.
type Ed25519Pub [ed25519.PublicKeySize]byte

// Signature is a 64-byte Ed25519 signature.
type Signature [ed25519.SignatureSize]byte

// Bytes returns the raw public key bytes.
func (p Ed25519Pub) Bytes() []byte { return p[:] }

// String renders the key base58-encoded, the form used by the canonical
// transaction JSON (spec §6).
func (p Ed25519Pub) String() string { return base58.Encode(p[:]) }

// Verify reports whether sig is a valid Ed25519 signature over msg under p.
func (p Ed25519Pub) Verify(msg []byte, sig Signature) bool {
	return ed25519.Verify(p[:], msg, sig[:])
}

// Ed25519PubFromBase58 decodes a base58-encoded public key.
func Ed25519PubFromBase58(s string) (Ed25519Pub, error) {
	decoded := base58.Decode(s)
	if len(decoded) != ed25519.PublicKeySize {
		return Ed25519Pub{}, fmt.Errorf("crypto: public key %q decodes to %d bytes, want %d", s, len(decoded), ed25519.PublicKeySize)
	}
	var out Ed25519Pub
	copy(out[:], decoded)
	return out, nil
}

// SignatureFromBase58 decodes a base58-encoded signature.
func SignatureFromBase58(s string) (Signature, error) {
	decoded := base58.Decode(s)
	if len(decoded) != ed25519.SignatureSize {
		return Signature{}, fmt.Errorf("crypto: signature %q decodes to %d bytes, want %d", s, len(decoded), ed25519.SignatureSize)
	}
	var out Signature
	copy(out[:], decoded)
	return out, nil
}

// String renders the signature base58-encoded.
func (s Signature) String() string { return base58.Encode(s[:]) }

// MofN is an m-of-n proposition over a set of Ed25519 keys, satisfied by any
// m valid signatures under distinct keys from the set. This system only ever
// constructs m=1 instances (spec §9 design note on M=1 MofN), but the
// general form is kept for forward compatibility.
type MofN struct {
	M    uint32
	Keys []Ed25519Pub
}

// NewMofN builds a MofN proposition, deduplicating keys and sorting them into
// ascending byte order so Encode is deterministic (spec §4.1).
func NewMofN(m uint32, keys []Ed25519Pub) MofN {
	seen := make(map[Ed25519Pub]struct{}, len(keys))
	uniq := make([]Ed25519Pub, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		uniq = append(uniq, k)
	}
	sort.Slice(uniq, func(i, j int) bool {
		return bytes.Compare(uniq[i][:], uniq[j][:]) < 0
	})
	return MofN{M: m, Keys: uniq}
}

// Encode renders the proposition as u32_be(m) || u32_be(n) || n*pub(32) with
// keys in ascending byte order (spec §4.1).
func (p MofN) Encode() []byte {
	out := make([]byte, 8+len(p.Keys)*ed25519.PublicKeySize)
	binary.BigEndian.PutUint32(out[0:4], p.M)
	binary.BigEndian.PutUint32(out[4:8], uint32(len(p.Keys)))
	for i, k := range p.Keys {
		copy(out[8+i*ed25519.PublicKeySize:], k[:])
	}
	return out
}

// DecodeMofN parses the Encode wire format, returning the proposition and the
// number of bytes consumed.
func DecodeMofN(data []byte) (MofN, int, error) {
	if len(data) < 8 {
		return MofN{}, 0, fmt.Errorf("crypto: MofN header truncated")
	}
	m := binary.BigEndian.Uint32(data[0:4])
	n := binary.BigEndian.Uint32(data[4:8])
	need := 8 + int(n)*ed25519.PublicKeySize
	if len(data) < need {
		return MofN{}, 0, fmt.Errorf("crypto: MofN keys truncated: have %d bytes, need %d", len(data), need)
	}
	keys := make([]Ed25519Pub, n)
	for i := range keys {
		copy(keys[i][:], data[8+i*ed25519.PublicKeySize:8+(i+1)*ed25519.PublicKeySize])
	}
	return MofN{M: m, Keys: keys}, need, nil
}

// Verify reports whether sigs contains at least M valid signatures over msg,
// each under a distinct key in Keys.
func (p MofN) Verify(msg []byte, sigs []Signature) bool {
	used := make([]bool, len(p.Keys))
	matched := 0
	for _, sig := range sigs {
		for i, k := range p.Keys {
			if used[i] {
				continue
			}
			if k.Verify(msg, sig) {
				used[i] = true
				matched++
				break
			}
		}
	}
	return matched >= int(p.M)
}
