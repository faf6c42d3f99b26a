// Package boxstore implements the versioned, rollback-capable key-value
// store C5 of the state engine: box bytes keyed by content-derived id, with
// a linear version history keyed by block id (spec §4.5).
package boxstore

import (
	"errors"
	"fmt"
	"sync"

	boxerrors "github.com/nhbchain/boxchain/core/errors"
	"github.com/nhbchain/boxchain/storage"
)

// ErrUnknownVersion is returned by Rollback for a version id this store has
// never committed or has already discarded.
var ErrUnknownVersion = errors.New("boxstore: unknown version")

var keyHead = []byte{'h'}

func keyBox(id [32]byte) []byte {
	out := make([]byte, 0, 33)
	out = append(out, 'b')
	return append(out, id[:]...)
}

func keyVersion(v [32]byte) []byte {
	out := make([]byte, 0, 33)
	out = append(out, 'v')
	return append(out, v[:]...)
}

// Store is C5: a log-structured, versioned box store. A single mutex
// serializes writers, matching the state engine's single-writer model (spec
// §5); readers go straight to the backing database and never block on it.
type Store struct {
	mu sync.Mutex
	db storage.BatchDatabase
}

// New wraps db as a versioned box store.
func New(db storage.BatchDatabase) *Store {
	return &Store{db: db}
}

// Get returns the committed bytes for id, or ok=false if no such box is
// live in the latest snapshot.
func (s *Store) Get(id [32]byte) (data []byte, ok bool, err error) {
	data, err = s.db.Get(keyBox(id))
	if err != nil {
		return nil, false, nil
	}
	return data, true, nil
}

// LastVersionID returns the current head version, or ok=false if no commit
// has ever been made.
func (s *Store) LastVersionID() (version [32]byte, ok bool) {
	raw, err := s.db.Get(keyHead)
	if err != nil {
		return [32]byte{}, false
	}
	copy(version[:], raw)
	return version, true
}

// Update atomically applies one block's delta: removing the boxes in remove
// and inserting the boxes in append, then rooting a new snapshot at
// newVersion whose parent is the current head. Box ids in remove and append
// must be disjoint for a single call to make sense; the state engine (C6)
// is responsible for that block-level conflict check before calling Update
// (spec §4.6). The one exception is bookkeeping keys outside box-id space,
// such as the timestamp sentinel, which every call implicitly overwrites —
// Update detects any id in append that already has a live value and records
// it in the version's Removed list so Rollback restores rather than deletes
// it.
func (s *Store) Update(newVersion [32]byte, remove map[[32]byte]struct{}, add map[[32]byte][]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	parent, _ := s.LastVersionID()

	rec := versionRecord{Parent: parent}
	puts := make(map[string][]byte, len(add)+2)
	var deletes [][]byte

	for id := range remove {
		existing, err := s.db.Get(keyBox(id))
		if err != nil {
			return boxerrors.Errorf(boxerrors.StateInvalid, "boxstore.Update", "box %x not found for removal", id)
		}
		rec.Removed = append(rec.Removed, removedEntry{ID: id, Bytes: append0(existing)})
		deletes = append(deletes, keyBox(id))
	}
	for id, data := range add {
		puts[string(keyBox(id))] = data
		if _, explicit := remove[id]; explicit {
			// Already captured in the Removed loop above: this id is spent
			// and re-created with fresh bytes in the same call.
			rec.Appended = append(rec.Appended, id)
			continue
		}
		if existing, err := s.db.Get(keyBox(id)); err == nil {
			// id already has a live value outside the caller's remove set
			// (e.g. the timestamp sentinel, overwritten every block):
			// record the prior value so Rollback restores it rather than
			// deleting it outright.
			rec.Removed = append(rec.Removed, removedEntry{ID: id, Bytes: append0(existing)})
			continue
		}
		rec.Appended = append(rec.Appended, id)
	}

	puts[string(keyVersion(newVersion))] = rec.encode()
	puts[string(keyHead)] = newVersion[:]

	if err := s.db.WriteBatch(puts, deletes); err != nil {
		return boxerrors.New(boxerrors.StoreError, "boxstore.Update", err)
	}
	return nil
}

// append0 copies b so a later mutation of the caller's slice cannot corrupt
// the version log's record of a removed box's bytes.
func append0(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Rollback discards every snapshot strictly after version, restoring the
// store to exactly the state it held right after version was committed.
// Rolling back to the current head is a no-op (idempotent per spec §4.5).
// The zero value is a valid target representing the state before any
// commit.
func (s *Store) Rollback(version [32]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	head, ok := s.LastVersionID()
	if !ok {
		if version == ([32]byte{}) {
			return nil
		}
		return fmt.Errorf("%w: %x", ErrUnknownVersion, version)
	}
	if head == version {
		return nil
	}

	puts := make(map[string][]byte)
	var deletes [][]byte

	cur := head
	zero := [32]byte{}
	for cur != version {
		if cur == zero {
			return fmt.Errorf("%w: %x", ErrUnknownVersion, version)
		}
		raw, err := s.db.Get(keyVersion(cur))
		if err != nil {
			return fmt.Errorf("%w: %x", ErrUnknownVersion, version)
		}
		rec, err := decodeVersionRecord(raw)
		if err != nil {
			return boxerrors.New(boxerrors.StoreError, "boxstore.Rollback", err)
		}

		for _, id := range rec.Appended {
			deletes = append(deletes, keyBox(id))
			delete(puts, string(keyBox(id)))
		}
		for _, e := range rec.Removed {
			puts[string(keyBox(e.ID))] = e.Bytes
		}
		deletes = append(deletes, keyVersion(cur))
		cur = rec.Parent
	}

	if version == zero {
		deletes = append(deletes, keyHead)
	} else {
		puts[string(keyHead)] = version[:]
	}

	if err := s.db.WriteBatch(puts, deletes); err != nil {
		return boxerrors.New(boxerrors.StoreError, "boxstore.Rollback", err)
	}
	return nil
}
