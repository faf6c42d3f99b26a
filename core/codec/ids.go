package codec

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/nhbchain/boxchain/crypto"
)

// H is the 32-byte cryptographic hash spec §3 writes H. SHA-256 is used
// rather than the teacher's keccak256 (github.com/ethereum/go-ethereum):
// nothing else in this module needs go-ethereum, and pulling in the whole
// EVM-crypto dependency tree for one hash function would be the opposite of
// grounded reuse (DESIGN.md).
func H(parts ...[]byte) [32]byte {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// PutUint64 renders n as a big-endian 8-byte slice (spec §3: "all multi-byte
// integers are big-endian").
func PutUint64(n uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, n)
	return b
}

// PutUint32 renders n as a big-endian 4-byte slice.
func PutUint32(n uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, n)
	return b
}

// FirstEightBytesAsUint64 interprets the first 8 bytes of h as a big-endian
// u64, the nonce-derivation primitive used throughout §4.3.
func FirstEightBytesAsUint64(h [32]byte) uint64 {
	return binary.BigEndian.Uint64(h[:8])
}

// PolyArbitID derives a poly or arbit box id: H(prop.pub || u64_be(nonce))
// (spec §3).
func PolyArbitID(prop crypto.Ed25519Pub, nonce uint64) [32]byte {
	return H(prop.Bytes(), PutUint64(nonce))
}

// ContractID derives a contract box id: H(encode(prop) || u64_be(nonce) ||
// canonical_json(value)) (spec §3). canonicalValue must already be the
// canonical JSON rendering of the box's value.
func ContractID(prop crypto.MofN, nonce uint64, canonicalValue []byte) [32]byte {
	return H(prop.Encode(), PutUint64(nonce), canonicalValue)
}

// ProfileID derives a profile box id: H(prop.pub || utf8(field)) (spec §3).
// Deliberately independent of value: a profile's id is pinned by its field.
func ProfileID(prop crypto.Ed25519Pub, field string) [32]byte {
	return H(prop.Bytes(), []byte(field))
}
