package state

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"workmesh/storage"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(storage.NewMemDB())
}

func TestKVRoundTrip(t *testing.T) {
	m := newTestManager(t)

	type record struct {
		Name  string
		Value uint64
	}
	require.NoError(t, m.KVPut([]byte("records/1"), &record{Name: "first", Value: 42}))

	var got record
	ok, err := m.KVGet([]byte("records/1"), &got)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, record{Name: "first", Value: 42}, got)

	ok, err = m.KVGet([]byte("records/2"), &got)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestKVEmptyKeyRejected(t *testing.T) {
	m := newTestManager(t)
	require.Error(t, m.KVPut(nil, uint64(1)))
	_, err := m.KVGet(nil, new(uint64))
	require.Error(t, err)
}

func TestKVAppendDeduplicates(t *testing.T) {
	m := newTestManager(t)
	key := []byte("index/members")
	require.NoError(t, m.KVAppend(key, []byte("a")))
	require.NoError(t, m.KVAppend(key, []byte("b")))
	require.NoError(t, m.KVAppend(key, []byte("a")))

	var list [][]byte
	ok, err := m.KVGet(key, &list)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, [][]byte{[]byte("a"), []byte("b")}, list)
}

func TestNextSequence(t *testing.T) {
	m := newTestManager(t)
	first, err := m.NextSequence("disputes")
	require.NoError(t, err)
	require.Equal(t, uint64(1), first)

	second, err := m.NextSequence("disputes")
	require.NoError(t, err)
	require.Equal(t, uint64(2), second)

	other, err := m.NextSequence("appeals")
	require.NoError(t, err)
	require.Equal(t, uint64(1), other)

	_, err = m.NextSequence("")
	require.Error(t, err)
}

func TestBalances(t *testing.T) {
	m := newTestManager(t)
	addr := [20]byte{0x01}

	bal, err := m.Balance(addr, "native")
	require.NoError(t, err)
	require.Zero(t, bal.Sign())

	require.NoError(t, m.Credit(addr, "native", big.NewInt(100)))
	require.NoError(t, m.Debit(addr, "native", big.NewInt(40)))

	bal, err = m.Balance(addr, "native")
	require.NoError(t, err)
	require.Equal(t, int64(60), bal.Int64())

	require.Error(t, m.Debit(addr, "native", big.NewInt(61)))
}

func TestSupplyReduction(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.SetSupply("WMESH", big.NewInt(1_000)))
	require.NoError(t, m.ReduceSupply("WMESH", big.NewInt(400)))

	supply, err := m.Supply("WMESH")
	require.NoError(t, err)
	require.Equal(t, int64(600), supply.Int64())

	require.Error(t, m.ReduceSupply("WMESH", big.NewInt(601)))
}
