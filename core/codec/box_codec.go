package codec

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/nhbchain/boxchain/core/types"
	"github.com/nhbchain/boxchain/crypto"
)

// EncodeBox renders b as u32_be(type_tag_len) || utf8(type_tag) || body
// (spec §4.1).
func EncodeBox(b types.Box) ([]byte, error) {
	var tag string
	var body []byte
	var err error

	switch v := b.(type) {
	case types.PolyBox:
		tag = types.BoxKindPoly.Tag()
		body = encodePolyArbitBody(v.Prop, v.Nonce, v.Value)
	case types.ArbitBox:
		tag = types.BoxKindArbit.Tag()
		body = encodePolyArbitBody(v.Prop, v.Nonce, v.Value)
	case types.ContractBox:
		tag = types.BoxKindContract.Tag()
		body, err = encodeContractBody(v)
	case types.ProfileBox:
		tag = types.BoxKindProfile.Tag()
		body = encodeProfileBody(v.Prop, v.Value, v.Field)
	default:
		return nil, fmt.Errorf("codec: unknown box type %T", b)
	}
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, 4+len(tag)+len(body))
	out = append(out, PutUint32(uint32(len(tag)))...)
	out = append(out, []byte(tag)...)
	out = append(out, body...)
	return out, nil
}

func encodePolyArbitBody(prop crypto.Ed25519Pub, nonce, value uint64) []byte {
	out := make([]byte, 0, 32+8+8)
	out = append(out, prop.Bytes()...)
	out = append(out, PutUint64(nonce)...)
	out = append(out, PutUint64(value)...)
	return out
}

func encodeContractBody(v types.ContractBox) ([]byte, error) {
	canon, err := CanonicalContractValue(v.Value)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(v.Prop.Encode())+8+4+len(canon))
	out = append(out, v.Prop.Encode()...)
	out = append(out, PutUint64(v.Nonce)...)
	out = append(out, PutUint32(uint32(len(canon)))...)
	out = append(out, canon...)
	return out, nil
}

func encodeProfileBody(prop crypto.Ed25519Pub, value, field string) []byte {
	out := make([]byte, 0, 32+4+len(value)+4+len(field))
	out = append(out, prop.Bytes()...)
	out = append(out, PutUint32(uint32(len(value)))...)
	out = append(out, []byte(value)...)
	out = append(out, PutUint32(uint32(len(field)))...)
	out = append(out, []byte(field)...)
	return out
}

// DecodeBox parses the EncodeBox wire format, recomputing the box's id from
// its decoded contents rather than trusting any id embedded on the wire
// (there is none) — ids always derive from content (spec §3 invariant 1).
func DecodeBox(data []byte) (types.Box, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("codec: box truncated: no tag length")
	}
	tagLen := binary.BigEndian.Uint32(data[0:4])
	if uint64(len(data)) < 4+uint64(tagLen) {
		return nil, fmt.Errorf("codec: box truncated: tag")
	}
	tag := string(data[4 : 4+tagLen])
	body := data[4+tagLen:]

	switch tag {
	case types.BoxKindPoly.Tag():
		prop, nonce, value, err := decodePolyArbitBody(body)
		if err != nil {
			return nil, err
		}
		return NewPolyBox(prop, nonce, value), nil
	case types.BoxKindArbit.Tag():
		prop, nonce, value, err := decodePolyArbitBody(body)
		if err != nil {
			return nil, err
		}
		return NewArbitBox(prop, nonce, value), nil
	case types.BoxKindContract.Tag():
		return decodeContractBody(body)
	case types.BoxKindProfile.Tag():
		prop, value, field, err := decodeProfileBody(body)
		if err != nil {
			return nil, err
		}
		return NewProfileBox(prop, value, field), nil
	default:
		return nil, fmt.Errorf("codec: unknown box tag %q", tag)
	}
}

func decodePolyArbitBody(body []byte) (crypto.Ed25519Pub, uint64, uint64, error) {
	const want = 32 + 8 + 8
	if len(body) != want {
		return crypto.Ed25519Pub{}, 0, 0, fmt.Errorf("codec: poly/arbit body length %d, want %d", len(body), want)
	}
	var prop crypto.Ed25519Pub
	copy(prop[:], body[0:32])
	nonce := binary.BigEndian.Uint64(body[32:40])
	value := binary.BigEndian.Uint64(body[40:48])
	return prop, nonce, value, nil
}

func decodeContractBody(body []byte) (types.ContractBox, error) {
	prop, n, err := crypto.DecodeMofN(body)
	if err != nil {
		return types.ContractBox{}, err
	}
	body = body[n:]
	if len(body) < 12 {
		return types.ContractBox{}, fmt.Errorf("codec: contract body truncated: nonce/json length")
	}
	nonce := binary.BigEndian.Uint64(body[0:8])
	jsonLen := binary.BigEndian.Uint32(body[8:12])
	body = body[12:]
	if uint64(len(body)) < uint64(jsonLen) {
		return types.ContractBox{}, fmt.Errorf("codec: contract body truncated: json")
	}
	var value types.ContractValue
	if err := json.Unmarshal(body[:jsonLen], &value); err != nil {
		return types.ContractBox{}, fmt.Errorf("codec: contract value malformed: %w", err)
	}
	return NewContractBox(prop, nonce, value)
}

func decodeProfileBody(body []byte) (crypto.Ed25519Pub, string, string, error) {
	if len(body) < 32+4 {
		return crypto.Ed25519Pub{}, "", "", fmt.Errorf("codec: profile body truncated: header")
	}
	var prop crypto.Ed25519Pub
	copy(prop[:], body[0:32])
	valueLen := binary.BigEndian.Uint32(body[32:36])
	rest := body[36:]
	if uint64(len(rest)) < uint64(valueLen)+4 {
		return crypto.Ed25519Pub{}, "", "", fmt.Errorf("codec: profile body truncated: value")
	}
	value := string(rest[:valueLen])
	rest = rest[valueLen:]
	fieldLen := binary.BigEndian.Uint32(rest[0:4])
	rest = rest[4:]
	if uint64(len(rest)) < uint64(fieldLen) {
		return crypto.Ed25519Pub{}, "", "", fmt.Errorf("codec: profile body truncated: field")
	}
	field := string(rest[:fieldLen])
	return prop, value, field, nil
}
