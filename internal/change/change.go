// Package change implements the portable, content-addressed patch
// format described in spec §2: a Change is a list of Hunks, each a
// list of Atoms (NewVertex or EdgeMap), plus the dependency and
// context metadata apply needs to decide whether the change can be
// applied yet.
package change

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/weftvcs/weft/internal/graph"
	"github.com/weftvcs/weft/internal/idgen"
)

// AtomKind distinguishes the two atom shapes a hunk can carry (spec §2
// "Atom").
type AtomKind string

const (
	AtomNewVertex AtomKind = "new_vertex"
	AtomEdgeMap   AtomKind = "edge_map"
)

// NewVertexAtom introduces a new vertex covering Contents[Start:End]
// lying between up and down context, plus the FLAGS the new vertex's
// introducing edges should carry (spec §2: "NewVertex { up_context,
// down_context, flag, start, end, content }").
type NewVertexAtom struct {
	UpContext   []PositionRef `json:"up_context"`
	DownContext []PositionRef `json:"down_context"`
	Flag        graph.EdgeFlag `json:"flag"`
	Start       uint64        `json:"start"`
	End         uint64        `json:"end"`
}

// EdgeMapAtom rewrites the flags of one or more existing edges (spec
// §2: deletions, un-deletions, and folder-conflict markers are all
// expressed as edge-map atoms, never by removing a NewVertex).
type EdgeMapAtom struct {
	Edges []EdgeChange `json:"edges"`
}

// EdgeChange names a single edge whose flags this atom rewrites: from
// `from` to `to`, setting the resulting edge's flag to `to_flag`.
type EdgeChange struct {
	From   PositionRef    `json:"from"`
	To     PositionRef    `json:"to"`
	Flag   graph.EdgeFlag `json:"flag"`    // flag the edge had before this atom
	ToFlag graph.EdgeFlag `json:"to_flag"` // flag to set
}

// PositionRef addresses an endpoint by the hash of the change that
// introduced it plus a byte offset, so a change is meaningful before
// its dependencies have been assigned dense ChangeIDs (spec §2
// "Positions are named by change hash, not ChangeID, until applied").
type PositionRef struct {
	Change graph.Hash `json:"change"`
	Pos    uint64     `json:"pos"`
}

// Atom is exactly one of NewVertex or EdgeMap, tagged by Kind.
type Atom struct {
	Kind     AtomKind       `json:"kind"`
	NewVertex *NewVertexAtom `json:"new_vertex,omitempty"`
	EdgeMap   *EdgeMapAtom   `json:"edge_map,omitempty"`
}

// Hunk groups atoms that were generated from one diff operation (spec
// §2 "Hunk"); apply processes a change hunk-by-hunk so that a
// conflicting hunk can be isolated without discarding the rest of the
// change.
type Hunk struct {
	Atoms []Atom `json:"atoms"`
}

// Header carries the change's free-text metadata — author, message,
// timestamp — none of which affects the hash (spec §2: "the header is
// not part of the content hash; two changes with identical atoms but
// different authorship are still the same change").
type Header struct {
	Author    string `json:"author"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"` // RFC3339; kept as string to stay out of the hash deterministically
}

// Change is the unit of work apply consumes: a content-addressed list
// of hunks plus the dependency/context metadata needed to decide
// whether it is applicable yet (spec §2).
type Change struct {
	Header Header `json:"header"`

	// Dependencies lists every change hash this change's context
	// atoms reference; apply refuses to run until all are present on
	// the target channel (spec §2 Invariant "no dangling context").
	Dependencies []graph.Hash `json:"dependencies"`

	// Knows is the set of change hashes the author's repository had
	// already applied when this change was recorded — a SUPPLEMENTED
	// feature (recovered from original_source) used to deduplicate
	// "already known" dependencies from Dependencies during push/pull
	// so the wire format doesn't repeat a transitive closure every
	// time (see SPEC_FULL.md Supplemented Features).
	Knows []graph.Hash `json:"knows,omitempty"`

	Hunks []Hunk `json:"hunks"`

	// Contents holds the raw bytes every NewVertexAtom's [start,end)
	// range slices into, concatenated in hunk order. Kept separate
	// from the atoms themselves so the structural part of the change
	// can be hashed and diffed independently of its payload.
	Contents []byte `json:"contents"`
}

// Hash returns the change's content-addressed identifier: sha256 over
// a canonical JSON encoding of the sorted Dependencies, Hunks and
// Contents; Header and Knows are not hashed (spec §2
// "the hash must be stable across reserialization and must not
// include free-text metadata").
func (c *Change) Hash() graph.Hash {
	type hashable struct {
		Dependencies []graph.Hash `json:"dependencies"`
		Hunks        []Hunk       `json:"hunks"`
		Contents     []byte       `json:"contents"`
	}
	buf, err := json.Marshal(hashable{
		Dependencies: sortedHashes(c.Dependencies),
		Hunks:        c.Hunks,
		Contents:     c.Contents,
	})
	if err != nil {
		// Marshal of a struct containing only slices/strings/bytes
		// never fails; a panic here means a caller mutated Change
		// with a non-serializable type, which is a programming error.
		panic(fmt.Sprintf("change: hash marshal: %v", err))
	}
	return sha256.Sum256(buf)
}

// ShortHash renders h as the same base36 textual form the rest of the
// repository uses for user-facing identifiers (grounded on
// internal/idgen's hash-ID scheme).
func ShortHash(h graph.Hash) string {
	return idgen.EncodeBase36(h[:], 12)
}

func sortedHashes(hs []graph.Hash) []graph.Hash {
	out := make([]graph.Hash, len(hs))
	copy(out, hs)
	sort.Slice(out, func(i, j int) bool {
		for k := 0; k < len(out[i]); k++ {
			if out[i][k] != out[j][k] {
				return out[i][k] < out[j][k]
			}
		}
		return false
	})
	return out
}

// KnowsHash reports whether the change declares hash as already known,
// letting a push/pull session skip re-sending a transitive dependency
// the peer is certain to already have.
func (c *Change) KnowsHash(hash graph.Hash) bool {
	for _, h := range c.Knows {
		if h == hash {
			return true
		}
	}
	return false
}
