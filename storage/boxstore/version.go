package boxstore

import (
	"encoding/binary"
	"fmt"
)

// removedEntry captures a box's bytes as they stood immediately before a
// version removed it, so a later rollback can restore them verbatim.
type removedEntry struct {
	ID    [32]byte
	Bytes []byte
}

// versionRecord is the log entry committed for one Update call: enough to
// both describe the version (its parent) and undo it exactly (spec §4.5).
type versionRecord struct {
	Parent   [32]byte
	Removed  []removedEntry
	Appended [][32]byte
}

// encode renders a versionRecord as parent(32) || u32_be(n_removed) ||
// n_removed*(id(32) || u32_be(len) || bytes) || u32_be(n_appended) ||
// n_appended*id(32).
func (r versionRecord) encode() []byte {
	size := 32 + 4
	for _, e := range r.Removed {
		size += 32 + 4 + len(e.Bytes)
	}
	size += 4 + len(r.Appended)*32

	out := make([]byte, 0, size)
	out = append(out, r.Parent[:]...)
	out = append(out, putUint32(uint32(len(r.Removed)))...)
	for _, e := range r.Removed {
		out = append(out, e.ID[:]...)
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(e.Bytes)))
		out = append(out, lenBuf[:]...)
		out = append(out, e.Bytes...)
	}
	var appendedLenBuf [4]byte
	binary.BigEndian.PutUint32(appendedLenBuf[:], uint32(len(r.Appended)))
	out = append(out, appendedLenBuf[:]...)
	for _, id := range r.Appended {
		out = append(out, id[:]...)
	}
	return out
}

func putUint32(n uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, n)
	return b
}

func decodeVersionRecord(data []byte) (versionRecord, error) {
	if len(data) < 36 {
		return versionRecord{}, fmt.Errorf("boxstore: version record truncated: header")
	}
	var rec versionRecord
	copy(rec.Parent[:], data[0:32])
	nRemoved := binary.BigEndian.Uint32(data[32:36])
	pos := 36
	rec.Removed = make([]removedEntry, 0, nRemoved)
	for i := uint32(0); i < nRemoved; i++ {
		if len(data) < pos+36 {
			return versionRecord{}, fmt.Errorf("boxstore: version record truncated: removed entry %d header", i)
		}
		var id [32]byte
		copy(id[:], data[pos:pos+32])
		pos += 32
		blen := binary.BigEndian.Uint32(data[pos : pos+4])
		pos += 4
		if len(data) < pos+int(blen) {
			return versionRecord{}, fmt.Errorf("boxstore: version record truncated: removed entry %d bytes", i)
		}
		b := append([]byte(nil), data[pos:pos+int(blen)]...)
		pos += int(blen)
		rec.Removed = append(rec.Removed, removedEntry{ID: id, Bytes: b})
	}
	if len(data) < pos+4 {
		return versionRecord{}, fmt.Errorf("boxstore: version record truncated: appended count")
	}
	nAppended := binary.BigEndian.Uint32(data[pos : pos+4])
	pos += 4
	rec.Appended = make([][32]byte, 0, nAppended)
	for i := uint32(0); i < nAppended; i++ {
		if len(data) < pos+32 {
			return versionRecord{}, fmt.Errorf("boxstore: version record truncated: appended id %d", i)
		}
		var id [32]byte
		copy(id[:], data[pos:pos+32])
		pos += 32
		rec.Appended = append(rec.Appended, id)
	}
	return rec, nil
}
