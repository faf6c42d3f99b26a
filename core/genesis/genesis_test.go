package genesis

import (
	"crypto/ed25519"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nhbchain/boxchain/core/state"
	"github.com/nhbchain/boxchain/crypto"
	"github.com/nhbchain/boxchain/storage"
	"github.com/nhbchain/boxchain/storage/boxstore"
)

func mustPub(t *testing.T) crypto.Ed25519Pub {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	var p crypto.Ed25519Pub
	copy(p[:], pub)
	return p
}

func writeSpec(t *testing.T, spec Spec) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "genesis.json")
	raw, err := json.Marshal(spec)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, raw, 0o644))
	return path
}

func TestLoadHappyPath(t *testing.T) {
	a := mustPub(t)
	r := mustPub(t)
	spec := Spec{
		Timestamp: 1000,
		Allocs:    []Alloc{{Pub: a.String(), Nonce: 1, Value: 500}},
		Roles:     []RoleBinding{{Pub: r.String(), Role: "producer"}},
	}
	path := writeSpec(t, spec)

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, uint64(1000), loaded.Timestamp)
	require.Len(t, loaded.Allocs, 1)
	require.Len(t, loaded.Roles, 1)
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "genesis.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"timestamp":1,"bogus":true}`), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsMissingPath(t *testing.T) {
	_, err := Load("")
	require.Error(t, err)
}

func TestValidateRejectsZeroTimestamp(t *testing.T) {
	spec := &Spec{Allocs: []Alloc{}}
	require.Error(t, spec.Validate())
}

func TestValidateRejectsDuplicateAlloc(t *testing.T) {
	a := mustPub(t)
	spec := &Spec{
		Timestamp: 1,
		Allocs: []Alloc{
			{Pub: a.String(), Nonce: 1, Value: 10},
			{Pub: a.String(), Nonce: 1, Value: 20},
		},
	}
	err := spec.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "duplicate")
}

func TestValidateRejectsUnrecognisedRole(t *testing.T) {
	r := mustPub(t)
	spec := &Spec{
		Timestamp: 1,
		Roles:     []RoleBinding{{Pub: r.String(), Role: "astronaut"}},
	}
	err := spec.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "unrecognised role")
}

func TestValidateRejectsBadPubkey(t *testing.T) {
	spec := &Spec{
		Timestamp: 1,
		Allocs:    []Alloc{{Pub: "not-base58!!", Nonce: 0, Value: 1}},
	}
	require.Error(t, spec.Validate())
}

func TestBoxesIsDeterministicallyOrdered(t *testing.T) {
	a := mustPub(t)
	b := mustPub(t)
	spec := &Spec{
		Timestamp: 1,
		Allocs: []Alloc{
			{Pub: b.String(), Nonce: 0, Value: 1},
			{Pub: a.String(), Nonce: 0, Value: 2},
		},
	}
	boxes1, err := spec.Boxes()
	require.NoError(t, err)
	boxes2, err := spec.Boxes()
	require.NoError(t, err)
	require.Equal(t, boxes1, boxes2)
}

func TestApplyCommitsGenesisThroughEngine(t *testing.T) {
	a := mustPub(t)
	r := mustPub(t)
	spec := Spec{
		Timestamp: 42,
		Allocs:    []Alloc{{Pub: a.String(), Nonce: 7, Value: 900}},
		Roles:     []RoleBinding{{Pub: r.String(), Role: "hub"}},
	}
	path := writeSpec(t, spec)

	e := state.NewEngine(boxstore.New(storage.NewMemDB()))
	require.NoError(t, Apply(e, path))

	version, ok := e.Version()
	require.True(t, ok)
	require.NotEqual(t, [32]byte{}, version)
	require.Equal(t, uint64(42), e.Timestamp())

	loaded, err := Load(path)
	require.NoError(t, err)
	boxes, err := loaded.Boxes()
	require.NoError(t, err)
	for _, b := range boxes {
		_, found, err := e.ClosedBox(b.BoxID())
		require.NoError(t, err)
		require.True(t, found)
	}
}

func TestApplyRejectsSecondGenesis(t *testing.T) {
	a := mustPub(t)
	spec := Spec{Timestamp: 1, Allocs: []Alloc{{Pub: a.String(), Nonce: 0, Value: 1}}}
	path := writeSpec(t, spec)

	e := state.NewEngine(boxstore.New(storage.NewMemDB()))
	require.NoError(t, Apply(e, path))
	require.Error(t, Apply(e, path))
}
