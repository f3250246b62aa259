package change_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftvcs/weft/internal/change"
	"github.com/weftvcs/weft/internal/graph"
)

func sampleChange() *change.Change {
	return &change.Change{
		Header:       change.Header{Author: "alice", Message: "add greeting"},
		Dependencies: []graph.Hash{{2}, {1}},
		Contents:     []byte("hello\n"),
		Hunks: []change.Hunk{{
			Atoms: []change.Atom{{
				Kind: change.AtomNewVertex,
				NewVertex: &change.NewVertexAtom{
					Flag:  graph.FlagBlock | graph.FlagFolder,
					Start: 0,
					End:   6,
				},
			}},
		}},
	}
}

func TestHashIsDeterministic(t *testing.T) {
	a := sampleChange()
	b := sampleChange()
	assert.Equal(t, a.Hash(), b.Hash())
}

func TestHashIgnoresHeader(t *testing.T) {
	a := sampleChange()
	b := sampleChange()
	b.Header = change.Header{Author: "bob", Message: "different message"}
	assert.Equal(t, a.Hash(), b.Hash())
}

func TestHashIgnoresDependencyOrder(t *testing.T) {
	a := sampleChange()
	b := sampleChange()
	b.Dependencies = []graph.Hash{{1}, {2}}
	assert.Equal(t, a.Hash(), b.Hash())
}

func TestHashDiffersOnContent(t *testing.T) {
	a := sampleChange()
	b := sampleChange()
	b.Contents = []byte("goodbye\n")
	assert.NotEqual(t, a.Hash(), b.Hash())
}

func TestKnowsHash(t *testing.T) {
	c := sampleChange()
	known := graph.Hash{9, 9}
	c.Knows = []graph.Hash{known}
	assert.True(t, c.KnowsHash(known))
	assert.False(t, c.KnowsHash(graph.Hash{1, 2, 3}))
}

func TestShortHashFixedLength(t *testing.T) {
	h := sampleChange().Hash()
	assert.Len(t, change.ShortHash(h), 12)
}

func TestFileRoundTrip(t *testing.T) {
	c := sampleChange()
	path := filepath.Join(t.TempDir(), "change.json")

	require.NoError(t, change.WriteFile(path, c))

	got, err := change.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, c.Hash(), got.Hash())
	assert.Equal(t, c.Header.Author, got.Header.Author)
	assert.Equal(t, c.Contents, got.Contents)
}
