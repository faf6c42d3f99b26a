package boxstore

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nhbchain/boxchain/storage"
)

func idFrom(b byte) [32]byte {
	var id [32]byte
	id[0] = b
	return id
}

func TestGetMissingBoxNotOK(t *testing.T) {
	s := New(storage.NewMemDB())
	_, ok, err := s.Get(idFrom(1))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestUpdateThenGet(t *testing.T) {
	s := New(storage.NewMemDB())
	v1 := idFrom(0xA1)
	require.NoError(t, s.Update(v1, nil, map[[32]byte][]byte{idFrom(1): []byte("box-1")}))

	data, ok, err := s.Get(idFrom(1))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("box-1"), data)

	head, ok := s.LastVersionID()
	require.True(t, ok)
	require.Equal(t, v1, head)
}

func TestUpdateRemovesAndAppends(t *testing.T) {
	s := New(storage.NewMemDB())
	v1 := idFrom(0xA1)
	require.NoError(t, s.Update(v1, nil, map[[32]byte][]byte{idFrom(1): []byte("box-1")}))

	v2 := idFrom(0xA2)
	err := s.Update(v2,
		map[[32]byte]struct{}{idFrom(1): {}},
		map[[32]byte][]byte{idFrom(2): []byte("box-2")},
	)
	require.NoError(t, err)

	_, ok, _ := s.Get(idFrom(1))
	require.False(t, ok)
	data, ok, _ := s.Get(idFrom(2))
	require.True(t, ok)
	require.Equal(t, []byte("box-2"), data)
}

func TestUpdateRejectsRemovingMissingBox(t *testing.T) {
	s := New(storage.NewMemDB())
	err := s.Update(idFrom(0xA1), map[[32]byte]struct{}{idFrom(99): {}}, nil)
	require.Error(t, err)
}

func TestRollbackToPriorVersionRestoresState(t *testing.T) {
	s := New(storage.NewMemDB())
	v1 := idFrom(0xA1)
	require.NoError(t, s.Update(v1, nil, map[[32]byte][]byte{idFrom(1): []byte("box-1")}))

	v2 := idFrom(0xA2)
	require.NoError(t, s.Update(v2,
		map[[32]byte]struct{}{idFrom(1): {}},
		map[[32]byte][]byte{idFrom(2): []byte("box-2")},
	))

	require.NoError(t, s.Rollback(v1))

	data, ok, _ := s.Get(idFrom(1))
	require.True(t, ok)
	require.Equal(t, []byte("box-1"), data)

	_, ok, _ = s.Get(idFrom(2))
	require.False(t, ok)

	head, ok := s.LastVersionID()
	require.True(t, ok)
	require.Equal(t, v1, head)
}

func TestRollbackThroughMultipleVersions(t *testing.T) {
	s := New(storage.NewMemDB())
	v1 := idFrom(0xA1)
	require.NoError(t, s.Update(v1, nil, map[[32]byte][]byte{idFrom(1): []byte("box-1")}))
	v2 := idFrom(0xA2)
	require.NoError(t, s.Update(v2, nil, map[[32]byte][]byte{idFrom(2): []byte("box-2")}))
	v3 := idFrom(0xA3)
	require.NoError(t, s.Update(v3, nil, map[[32]byte][]byte{idFrom(3): []byte("box-3")}))

	require.NoError(t, s.Rollback([32]byte{}))

	for _, id := range []byte{1, 2, 3} {
		_, ok, _ := s.Get(idFrom(id))
		require.False(t, ok)
	}
	_, ok := s.LastVersionID()
	require.False(t, ok)
}

func TestRollbackToCurrentHeadIsNoop(t *testing.T) {
	s := New(storage.NewMemDB())
	v1 := idFrom(0xA1)
	require.NoError(t, s.Update(v1, nil, map[[32]byte][]byte{idFrom(1): []byte("box-1")}))
	require.NoError(t, s.Rollback(v1))

	data, ok, _ := s.Get(idFrom(1))
	require.True(t, ok)
	require.Equal(t, []byte("box-1"), data)
}

func TestRollbackUnknownVersionFails(t *testing.T) {
	s := New(storage.NewMemDB())
	v1 := idFrom(0xA1)
	require.NoError(t, s.Update(v1, nil, map[[32]byte][]byte{idFrom(1): []byte("box-1")}))

	err := s.Rollback(idFrom(0xFF))
	require.ErrorIs(t, err, ErrUnknownVersion)
}
