package repair_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftvcs/weft/internal/graph"
	"github.com/weftvcs/weft/internal/pristine"
	"github.com/weftvcs/weft/internal/repair"
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

func TestRepairZombiesReconnectsOrphan(t *testing.T) {
	store := openTestStore(t)
	a := graph.Vertex{Change: 1, Start: 0, End: 5}
	b := graph.Vertex{Change: 2, Start: 0, End: 5}
	c := graph.Vertex{Change: 3, Start: 0, End: 5}

	require.NoError(t, store.Update(t.Context(), func(tx *pristine.Tx) error {
		require.NoError(t, graph.PutVertex(tx, "main", a))
		require.NoError(t, graph.PutVertex(tx, "main", b))
		require.NoError(t, graph.PutVertex(tx, "main", c))
		// c hangs below b, so b is still referenced downstream.
		require.NoError(t, graph.PutEdge(tx, "main", b, graph.Edge{
			Flag: graph.FlagBlock, Dest: c.ID(), IntroducedBy: 3,
		}))
		require.NoError(t, graph.PutEdge(tx, "main", graph.Root, graph.Edge{
			Flag: graph.FlagBlock | graph.FlagFolder, Dest: a.ID(), IntroducedBy: 1,
		}))
		ab := graph.Edge{Flag: graph.FlagBlock, Dest: b.ID(), IntroducedBy: 2}
		require.NoError(t, graph.PutEdge(tx, "main", a, ab))
		require.NoError(t, graph.DelEdge(tx, "main", a, ab))
		// b's only link to the rest of the graph is now deleted, the way
		// applyEdgeChange leaves a trace: the old edge removed, a new one
		// re-added with the deleted bit set.
		return graph.PutEdge(tx, "main", a, graph.Edge{
			Flag: ab.Flag | graph.FlagDeleted, Dest: b.ID(), IntroducedBy: 2,
		})
	}))

	require.NoError(t, store.Update(t.Context(), func(tx *pristine.Tx) error {
		alive, err := graph.IsAlive(tx, "main", b)
		require.NoError(t, err)
		assert.False(t, alive, "b should be a zombie before repair")

		n, err := repair.RepairZombies(tx, "main")
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		edges, err := graph.EdgesFrom(tx, "main", a.ID())
		require.NoError(t, err)
		found := false
		for _, e := range edges {
			if e.Dest == b.ID() && e.Flag.Has(graph.FlagPseudo) {
				found = true
			}
		}
		assert.True(t, found, "expected a pseudo edge reconnecting b from a")
		return nil
	}))
}

func TestRepairZombiesNoopWhenEverythingAlive(t *testing.T) {
	store := openTestStore(t)
	a := graph.Vertex{Change: 1, Start: 0, End: 5}

	require.NoError(t, store.Update(t.Context(), func(tx *pristine.Tx) error {
		require.NoError(t, graph.PutVertex(tx, "main", a))
		return graph.PutEdge(tx, "main", graph.Root, graph.Edge{
			Flag: graph.FlagBlock | graph.FlagFolder, Dest: a.ID(), IntroducedBy: 1,
		})
	}))

	require.NoError(t, store.Update(t.Context(), func(tx *pristine.Tx) error {
		n, err := repair.RepairZombies(tx, "main")
		require.NoError(t, err)
		assert.Zero(t, n)
		return nil
	}))
}

func TestCleanObsoletePseudoEdgesRemovesResolved(t *testing.T) {
	store := openTestStore(t)
	a := graph.Vertex{Change: 1, Start: 0, End: 5}
	b := graph.Vertex{Change: 2, Start: 0, End: 5}
	c := graph.Vertex{Change: 3, Start: 0, End: 5}

	require.NoError(t, store.Update(t.Context(), func(tx *pristine.Tx) error {
		require.NoError(t, graph.PutVertex(tx, "main", a))
		require.NoError(t, graph.PutVertex(tx, "main", b))
		require.NoError(t, graph.PutVertex(tx, "main", c))
		require.NoError(t, graph.PutEdge(tx, "main", a, graph.Edge{
			Flag: graph.FlagBlock | graph.FlagPseudo, Dest: b.ID(), IntroducedBy: graph.RootChange,
		}))
		// A later, genuine change reconnects b independently.
		return graph.PutEdge(tx, "main", c, graph.Edge{
			Flag: graph.FlagBlock, Dest: b.ID(), IntroducedBy: 3,
		})
	}))

	require.NoError(t, store.Update(t.Context(), func(tx *pristine.Tx) error {
		n, err := repair.CleanObsoletePseudoEdges(tx, "main")
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		edges, err := graph.EdgesFrom(tx, "main", a.ID())
		require.NoError(t, err)
		for _, e := range edges {
			assert.False(t, e.Flag.Has(graph.FlagPseudo), "pseudo edge should have been removed")
		}
		return nil
	}))
}

func TestCleanObsoletePseudoEdgesKeepsUnresolved(t *testing.T) {
	store := openTestStore(t)
	a := graph.Vertex{Change: 1, Start: 0, End: 5}
	b := graph.Vertex{Change: 2, Start: 0, End: 5}

	require.NoError(t, store.Update(t.Context(), func(tx *pristine.Tx) error {
		require.NoError(t, graph.PutVertex(tx, "main", a))
		require.NoError(t, graph.PutVertex(tx, "main", b))
		return graph.PutEdge(tx, "main", a, graph.Edge{
			Flag: graph.FlagBlock | graph.FlagPseudo, Dest: b.ID(), IntroducedBy: graph.RootChange,
		})
	}))

	require.NoError(t, store.Update(t.Context(), func(tx *pristine.Tx) error {
		n, err := repair.CleanObsoletePseudoEdges(tx, "main")
		require.NoError(t, err)
		assert.Zero(t, n)
		return nil
	}))
}

func TestDetectFolderConflictResolutionsFindsMultipleParents(t *testing.T) {
	store := openTestStore(t)
	p1 := graph.Vertex{Change: 1, Start: 0, End: 5}
	p2 := graph.Vertex{Change: 2, Start: 0, End: 5}
	x := graph.Vertex{Change: 3, Start: 0, End: 5}

	require.NoError(t, store.Update(t.Context(), func(tx *pristine.Tx) error {
		require.NoError(t, graph.PutVertex(tx, "main", p1))
		require.NoError(t, graph.PutVertex(tx, "main", p2))
		require.NoError(t, graph.PutVertex(tx, "main", x))
		require.NoError(t, graph.PutEdge(tx, "main", p1, graph.Edge{
			Flag: graph.FlagBlock | graph.FlagFolder, Dest: x.ID(), IntroducedBy: 1,
		}))
		return graph.PutEdge(tx, "main", p2, graph.Edge{
			Flag: graph.FlagBlock | graph.FlagFolder, Dest: x.ID(), IntroducedBy: 2,
		})
	}))

	require.NoError(t, store.Update(t.Context(), func(tx *pristine.Tx) error {
		conflicts, err := repair.DetectFolderConflictResolutions(tx, "main")
		require.NoError(t, err)
		assert.Contains(t, conflicts, x.ID())
		return nil
	}))
}

func TestDetectFolderConflictResolutionsIgnoresSingleParent(t *testing.T) {
	store := openTestStore(t)
	p1 := graph.Vertex{Change: 1, Start: 0, End: 5}
	x := graph.Vertex{Change: 2, Start: 0, End: 5}

	require.NoError(t, store.Update(t.Context(), func(tx *pristine.Tx) error {
		require.NoError(t, graph.PutVertex(tx, "main", p1))
		require.NoError(t, graph.PutVertex(tx, "main", x))
		return graph.PutEdge(tx, "main", p1, graph.Edge{
			Flag: graph.FlagBlock | graph.FlagFolder, Dest: x.ID(), IntroducedBy: 1,
		})
	}))

	require.NoError(t, store.Update(t.Context(), func(tx *pristine.Tx) error {
		conflicts, err := repair.DetectFolderConflictResolutions(tx, "main")
		require.NoError(t, err)
		assert.NotContains(t, conflicts, x.ID())
		return nil
	}))
}

func TestRepairCyclicPathsBreaksCycle(t *testing.T) {
	store := openTestStore(t)
	a := graph.Vertex{Change: 1, Start: 0, End: 5}
	b := graph.Vertex{Change: 2, Start: 0, End: 5}
	c := graph.Vertex{Change: 3, Start: 0, End: 5}

	require.NoError(t, store.Update(t.Context(), func(tx *pristine.Tx) error {
		require.NoError(t, graph.PutVertex(tx, "main", a))
		require.NoError(t, graph.PutVertex(tx, "main", b))
		require.NoError(t, graph.PutVertex(tx, "main", c))
		require.NoError(t, graph.PutEdge(tx, "main", graph.Root, graph.Edge{
			Flag: graph.FlagFolder, Dest: a.ID(), IntroducedBy: 1,
		}))
		require.NoError(t, graph.PutEdge(tx, "main", a, graph.Edge{
			Flag: graph.FlagFolder, Dest: b.ID(), IntroducedBy: 2,
		}))
		require.NoError(t, graph.PutEdge(tx, "main", b, graph.Edge{
			Flag: graph.FlagFolder, Dest: c.ID(), IntroducedBy: 3,
		}))
		// c -> a closes the cycle started at a.
		return graph.PutEdge(tx, "main", c, graph.Edge{
			Flag: graph.FlagFolder, Dest: a.ID(), IntroducedBy: 3,
		})
	}))

	require.NoError(t, store.Update(t.Context(), func(tx *pristine.Tx) error {
		n, err := repair.RepairCyclicPaths(tx, "main")
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		edges, err := graph.EdgesFrom(tx, "main", c.ID())
		require.NoError(t, err)
		for _, e := range edges {
			if e.Flag.Has(graph.FlagFolder) && !e.Flag.Has(graph.FlagParent) {
				assert.NotEqual(t, a.ID(), e.Dest, "the back edge closing the cycle should have been removed")
			}
		}
		return nil
	}))
}

func TestRepairCyclicPathsNoopWithoutCycle(t *testing.T) {
	store := openTestStore(t)
	a := graph.Vertex{Change: 1, Start: 0, End: 5}
	b := graph.Vertex{Change: 2, Start: 0, End: 5}

	require.NoError(t, store.Update(t.Context(), func(tx *pristine.Tx) error {
		require.NoError(t, graph.PutVertex(tx, "main", a))
		require.NoError(t, graph.PutVertex(tx, "main", b))
		require.NoError(t, graph.PutEdge(tx, "main", graph.Root, graph.Edge{
			Flag: graph.FlagFolder, Dest: a.ID(), IntroducedBy: 1,
		}))
		return graph.PutEdge(tx, "main", a, graph.Edge{
			Flag: graph.FlagFolder, Dest: b.ID(), IntroducedBy: 2,
		})
	}))

	require.NoError(t, store.Update(t.Context(), func(tx *pristine.Tx) error {
		n, err := repair.RepairCyclicPaths(tx, "main")
		require.NoError(t, err)
		assert.Zero(t, n)
		return nil
	}))
}

func TestRunAllOrdersPassesConsistently(t *testing.T) {
	store := openTestStore(t)
	a := graph.Vertex{Change: 1, Start: 0, End: 5}
	b := graph.Vertex{Change: 2, Start: 0, End: 5}
	c := graph.Vertex{Change: 3, Start: 0, End: 5}

	require.NoError(t, store.Update(t.Context(), func(tx *pristine.Tx) error {
		require.NoError(t, graph.PutVertex(tx, "main", a))
		require.NoError(t, graph.PutVertex(tx, "main", b))
		require.NoError(t, graph.PutVertex(tx, "main", c))
		require.NoError(t, graph.PutEdge(tx, "main", b, graph.Edge{
			Flag: graph.FlagBlock, Dest: c.ID(), IntroducedBy: 3,
		}))
		require.NoError(t, graph.PutEdge(tx, "main", graph.Root, graph.Edge{
			Flag: graph.FlagBlock | graph.FlagFolder, Dest: a.ID(), IntroducedBy: 1,
		}))
		ab := graph.Edge{Flag: graph.FlagBlock, Dest: b.ID(), IntroducedBy: 2}
		require.NoError(t, graph.PutEdge(tx, "main", a, ab))
		require.NoError(t, graph.DelEdge(tx, "main", a, ab))
		return graph.PutEdge(tx, "main", a, graph.Edge{
			Flag: ab.Flag | graph.FlagDeleted, Dest: b.ID(), IntroducedBy: 2,
		})
	}))

	require.NoError(t, store.Update(t.Context(), func(tx *pristine.Tx) error {
		report, err := repair.RunAll(tx, "main")
		require.NoError(t, err)
		assert.Equal(t, 1, report.ZombiesReconnected)
		assert.Zero(t, report.CyclesBroken)
		assert.Empty(t, report.FolderConflicts)
		return nil
	}))
}
