package apply

import (
	"github.com/weftvcs/weft/internal/graph"
	"github.com/weftvcs/weft/internal/pristine"
)

// resolvePosition maps a change-hash-relative PositionRef to the
// internal (ChangeID, pos) Position apply's graph operations use. It
// does not intern: a hash with no ChangeID yet yields
// ErrDependencyMissing (spec §4.2: "context positions name changes by
// hash; resolving them is the first step of application").
func resolvePosition(tx *pristine.Tx, ref graph.Hash, pos uint64) (graph.Position, error) {
	id, ok, err := graph.IDOf(tx, ref)
	if err != nil {
		return graph.Position{}, err
	}
	if !ok {
		return graph.Position{}, ErrDependencyMissing
	}
	return graph.Position{Change: id, Pos: pos}, nil
}

// anchorAt resolves a context position to the vertex that starts
// exactly there, splitting the vertex that currently contains it if
// the position falls in its interior (spec §4.2: "a context position
// that falls inside an existing vertex forces a split before the new
// vertex can be attached").
//
// Edges in this implementation attach only at a vertex's start
// position — a deliberate simplification from the two-sided
// (start/end) attachment a production Pijul-style graph uses; see
// DESIGN.md's apply engine entry. This keeps the per-vertex storage
// key uniform (one length marker, one family of incident-edge keys)
// at the cost of not distinguishing which side of a vertex an edge
// conceptually leaves from.
func anchorAt(tx *pristine.Tx, channel string, p graph.Position) (graph.Vertex, error) {
	if ok, err := graph.HasVertex(tx, channel, p); err != nil {
		return graph.Vertex{}, err
	} else if ok {
		v, _, err := graph.VertexLength(tx, channel, p)
		return v, err
	}
	v, found, err := graph.VertexContainingPosition(tx, channel, p)
	if err != nil {
		return graph.Vertex{}, err
	}
	if !found {
		return graph.Vertex{}, ErrDependencyMissing
	}
	if v.Start == p.Pos {
		return v, nil
	}
	_, tail, err := splitBlock(tx, channel, v, p.Pos)
	return tail, err
}

// splitBlock splits the vertex starting at v.Start so that a new
// vertex boundary exists at splitAt (v.Start < splitAt < v.End). It
// shortens v in place to [v.Start, splitAt) and creates a new vertex
// [splitAt, v.End); every edge already recorded against v remains
// valid for the shortened head (they share the same start-key), and a
// single BLOCK edge is added from head to the new tail so graph walks
// (output, repair) can still reach it.
func splitBlock(tx *pristine.Tx, channel string, v graph.Vertex, splitAt uint64) (head, tail graph.Vertex, err error) {
	if splitAt <= v.Start || splitAt >= v.End {
		return graph.Vertex{}, graph.Vertex{}, ErrInvalidChange
	}

	head = graph.Vertex{Change: v.Change, Start: v.Start, End: splitAt}
	tail = graph.Vertex{Change: v.Change, Start: splitAt, End: v.End}

	if err := graph.PutVertex(tx, channel, head); err != nil {
		return graph.Vertex{}, graph.Vertex{}, err
	}
	if err := graph.PutVertex(tx, channel, tail); err != nil {
		return graph.Vertex{}, graph.Vertex{}, err
	}
	if err := graph.PutEdge(tx, channel, head, graph.Edge{
		Flag:         graph.FlagBlock,
		Dest:         tail.ID(),
		IntroducedBy: v.Change,
	}); err != nil {
		return graph.Vertex{}, graph.Vertex{}, err
	}
	return head, tail, nil
}
