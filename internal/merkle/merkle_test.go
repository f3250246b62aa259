package merkle_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftvcs/weft/internal/graph"
	"github.com/weftvcs/weft/internal/merkle"
	"github.com/weftvcs/weft/internal/pristine"
)

func openTestStore(t *testing.T) *pristine.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "store.db")
	store, err := pristine.Open(path, pristine.OpenOptions{})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Update(t.Context(), func(tx *pristine.Tx) error {
		return tx.CreateChannel("main")
	}))
	return store
}

func TestRollIsDeterministicAndOrderSensitive(t *testing.T) {
	var prev merkle.State
	a := merkle.Roll(prev, graph.Hash{1}, 0)
	b := merkle.Roll(prev, graph.Hash{1}, 0)
	assert.Equal(t, a, b)

	afterA := merkle.Roll(a, graph.Hash{2}, 1)
	afterB := merkle.Roll(b, graph.Hash{3}, 1)
	assert.NotEqual(t, afterA, afterB)
}

func TestCurrentStateZeroWhenEmpty(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, store.Update(t.Context(), func(tx *pristine.Tx) error {
		s, counter, err := merkle.CurrentState(tx, "main")
		require.NoError(t, err)
		assert.Equal(t, merkle.State{}, s)
		assert.Zero(t, counter)
		return nil
	}))
}

func TestRecordStateAdvancesCurrentState(t *testing.T) {
	store := openTestStore(t)
	var s1, s2 merkle.State
	require.NoError(t, store.Update(t.Context(), func(tx *pristine.Tx) error {
		var prev merkle.State
		s1 = merkle.Roll(prev, graph.Hash{1}, 0)
		require.NoError(t, merkle.RecordState(tx, "main", 0, s1))
		s2 = merkle.Roll(s1, graph.Hash{2}, 1)
		return merkle.RecordState(tx, "main", 1, s2)
	}))

	require.NoError(t, store.View(func(tx *pristine.ReadTx) error {
		current, counter, err := merkle.CurrentState(tx, "main")
		require.NoError(t, err)
		assert.Equal(t, s2, current)
		assert.Equal(t, uint64(1), counter)

		at0, ok, err := merkle.StateAt(tx, "main", 0)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, s1, at0)
		return nil
	}))
}

func TestUnrecordTruncatesAndRewindsCounter(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, store.Update(t.Context(), func(tx *pristine.Tx) error {
		var prev merkle.State
		for i := uint64(0); i < 3; i++ {
			next := merkle.Roll(prev, graph.Hash{byte(i) + 1}, i)
			if err := merkle.RecordState(tx, "main", i, next); err != nil {
				return err
			}
			if _, err := tx.NextApplyCounter("main"); err != nil {
				return err
			}
			prev = next
		}
		return nil
	}))

	require.NoError(t, store.Update(t.Context(), func(tx *pristine.Tx) error {
		return merkle.Unrecord(tx, "main", 0)
	}))

	require.NoError(t, store.View(func(tx *pristine.ReadTx) error {
		_, ok, err := merkle.StateAt(tx, "main", 1)
		require.NoError(t, err)
		assert.False(t, ok, "state recorded after cutoff should have been dropped")

		_, ok, err = merkle.StateAt(tx, "main", 0)
		require.NoError(t, err)
		assert.True(t, ok, "state at cutoff should survive")
		return nil
	}))

	require.NoError(t, store.Update(t.Context(), func(tx *pristine.Tx) error {
		next, err := tx.NextApplyCounter("main")
		require.NoError(t, err)
		assert.Equal(t, uint64(1), next, "apply counter should resume just after the cutoff")
		return nil
	}))
}
