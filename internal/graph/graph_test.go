package graph_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftvcs/weft/internal/graph"
	"github.com/weftvcs/weft/internal/pristine"
)

func openTestStore(t *testing.T) *pristine.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "store.db")
	store, err := pristine.Open(path, pristine.OpenOptions{})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Update(t.Context(), func(tx *pristine.Tx) error {
		if err := tx.CreateChannel("main"); err != nil {
			return err
		}
		return graph.PutVertex(tx, "main", graph.Root)
	}))
	return store
}

func TestPutVertexAndLookup(t *testing.T) {
	store := openTestStore(t)
	v := graph.Vertex{Change: 1, Start: 0, End: 10}

	require.NoError(t, store.Update(t.Context(), func(tx *pristine.Tx) error {
		return graph.PutVertex(tx, "main", v)
	}))

	require.NoError(t, store.Update(t.Context(), func(tx *pristine.Tx) error {
		got, ok, err := graph.VertexLength(tx, "main", v.ID())
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, v, got)
		return nil
	}))
}

func TestPutEdgeWritesReverse(t *testing.T) {
	store := openTestStore(t)
	src := graph.Vertex{Change: 1, Start: 0, End: 5}
	dst := graph.Vertex{Change: 1, Start: 5, End: 10}

	require.NoError(t, store.Update(t.Context(), func(tx *pristine.Tx) error {
		require.NoError(t, graph.PutVertex(tx, "main", src))
		require.NoError(t, graph.PutVertex(tx, "main", dst))
		return graph.PutEdge(tx, "main", src, graph.Edge{
			Flag: graph.FlagBlock, Dest: dst.ID(), IntroducedBy: 1,
		})
	}))

	require.NoError(t, store.Update(t.Context(), func(tx *pristine.Tx) error {
		fwd, err := graph.EdgesFrom(tx, "main", src.ID())
		require.NoError(t, err)
		require.Len(t, fwd, 1)
		assert.Equal(t, graph.FlagBlock, fwd[0].Flag)
		assert.Equal(t, dst.ID(), fwd[0].Dest)

		rev, err := graph.EdgesFrom(tx, "main", dst.ID())
		require.NoError(t, err)
		require.Len(t, rev, 1)
		assert.True(t, rev[0].Flag.Has(graph.FlagBlock))
		assert.True(t, rev[0].Flag.Has(graph.FlagParent))
		assert.Equal(t, src.ID(), rev[0].Dest)
		return nil
	}))
}

func TestIsAliveRequiresLiveParentEdge(t *testing.T) {
	store := openTestStore(t)
	src := graph.Vertex{Change: 1, Start: 0, End: 5}
	dst := graph.Vertex{Change: 1, Start: 5, End: 10}

	require.NoError(t, store.Update(t.Context(), func(tx *pristine.Tx) error {
		require.NoError(t, graph.PutVertex(tx, "main", src))
		require.NoError(t, graph.PutVertex(tx, "main", dst))
		return graph.PutEdge(tx, "main", src, graph.Edge{
			Flag: graph.FlagBlock, Dest: dst.ID(), IntroducedBy: 1,
		})
	}))

	require.NoError(t, store.Update(t.Context(), func(tx *pristine.Tx) error {
		alive, err := graph.IsAlive(tx, "main", dst)
		require.NoError(t, err)
		assert.True(t, alive)

		notYetAlive, err := graph.IsAlive(tx, "main", src)
		require.NoError(t, err)
		assert.False(t, notYetAlive)
		return nil
	}))
}

func TestIsAliveFalseAfterDeletedEdge(t *testing.T) {
	store := openTestStore(t)
	src := graph.Vertex{Change: 1, Start: 0, End: 5}
	dst := graph.Vertex{Change: 1, Start: 5, End: 10}
	edge := graph.Edge{Flag: graph.FlagBlock, Dest: dst.ID(), IntroducedBy: 1}

	require.NoError(t, store.Update(t.Context(), func(tx *pristine.Tx) error {
		require.NoError(t, graph.PutVertex(tx, "main", src))
		require.NoError(t, graph.PutVertex(tx, "main", dst))
		require.NoError(t, graph.PutEdge(tx, "main", src, edge))
		require.NoError(t, graph.DelEdge(tx, "main", src, edge))
		return graph.PutEdge(tx, "main", src, graph.Edge{
			Flag: graph.FlagBlock | graph.FlagDeleted, Dest: dst.ID(), IntroducedBy: 1,
		})
	}))

	require.NoError(t, store.Update(t.Context(), func(tx *pristine.Tx) error {
		alive, err := graph.IsAlive(tx, "main", dst)
		require.NoError(t, err)
		assert.False(t, alive)
		return nil
	}))
}

func TestVertexContainingPositionFindsInterior(t *testing.T) {
	store := openTestStore(t)
	v := graph.Vertex{Change: 1, Start: 0, End: 100}

	require.NoError(t, store.Update(t.Context(), func(tx *pristine.Tx) error {
		return graph.PutVertex(tx, "main", v)
	}))

	require.NoError(t, store.Update(t.Context(), func(tx *pristine.Tx) error {
		got, ok, err := graph.VertexContainingPosition(tx, "main", graph.Position{Change: 1, Pos: 42})
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, v, got)
		return nil
	}))
}

func TestInternChangeIsIdempotent(t *testing.T) {
	store := openTestStore(t)
	hash := graph.Hash{1, 2, 3}
	next := func() func() (graph.ChangeID, error) {
		n := graph.ChangeID(0)
		return func() (graph.ChangeID, error) {
			n++
			return n, nil
		}
	}()

	var first, second graph.ChangeID
	require.NoError(t, store.Update(t.Context(), func(tx *pristine.Tx) error {
		var err error
		first, err = graph.InternChange(tx, hash, next)
		return err
	}))
	require.NoError(t, store.Update(t.Context(), func(tx *pristine.Tx) error {
		var err error
		second, err = graph.InternChange(tx, hash, next)
		return err
	}))
	assert.Equal(t, first, second)
}

func TestTreeTableRoundTrip(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, store.Update(t.Context(), func(tx *pristine.Tx) error {
		return graph.PutPath(tx, "dir/file.txt", graph.Inode(7))
	}))

	require.NoError(t, store.Update(t.Context(), func(tx *pristine.Tx) error {
		inode, ok, err := graph.LookupInode(tx, "dir/file.txt")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, graph.Inode(7), inode)

		path, ok, err := graph.LookupPath(tx, graph.Inode(7))
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "dir/file.txt", path)
		return nil
	}))
}
