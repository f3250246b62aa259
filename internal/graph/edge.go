package graph

import "encoding/binary"

// EdgeFlag is the bitset carried by every edge (spec §3).
type EdgeFlag uint8

const (
	// FlagBlock marks a structural parent/child relation; removing it
	// would disconnect the graph.
	FlagBlock EdgeFlag = 1 << iota
	// FlagFolder marks a directory/filename relation rather than file
	// content.
	FlagFolder
	// FlagParent is the reverse-index bit: every forward edge with
	// flag f has a matching reverse edge with flag f|PARENT on the
	// destination vertex.
	FlagParent
	// FlagDeleted records a deletion relationship.
	FlagDeleted
	// FlagPseudo marks an edge synthesised by repair to maintain
	// reachability; never authored by users (spec Invariant 2).
	FlagPseudo
)

// Has reports whether f contains every bit in mask.
func (f EdgeFlag) Has(mask EdgeFlag) bool { return f&mask == mask }

// Edge is a labelled directed edge. In the graph table it is keyed by
// its source vertex's start position; Encode serialises the flag and
// destination as SerializedEdge (spec §6): flag:1 | pad:7 |
// dest_change:8 | dest_pos:8, 24 bytes total. IntroducedBy is not part
// of those 24 bytes; it follows them in the graph-table key.
type Edge struct {
	Flag         EdgeFlag
	Dest         Position
	IntroducedBy ChangeID
}

// Encode serialises e to its 24-byte SerializedEdge representation.
func (e Edge) Encode() []byte {
	buf := make([]byte, 24)
	buf[0] = byte(e.Flag)
	binary.BigEndian.PutUint64(buf[8:16], uint64(e.Dest.Change))
	binary.BigEndian.PutUint64(buf[16:24], e.Dest.Pos)
	// introduced_by packed into the padding region is not spec-legal
	// (padding must stay zero); introduced_by is carried in the graph
	// table's composite key instead — see store.go's edgeKey, which
	// appends it after the 24-byte SerializedEdge so distinct authors
	// of structurally-identical edges remain distinguishable entries
	// in the multimap.
	return buf
}

// DecodeEdgeFields parses the flag and destination out of a 24-byte
// SerializedEdge (introduced_by is read separately from the composite
// graph-table key; see store.go).
func DecodeEdgeFields(b []byte) (EdgeFlag, Position) {
	flag := EdgeFlag(b[0])
	dest := Position{
		Change: ChangeID(binary.BigEndian.Uint64(b[8:16])),
		Pos:    binary.BigEndian.Uint64(b[16:24]),
	}
	return flag, dest
}

// Reverse returns the mandatory paired reverse edge for e, sourced
// from dest and pointing back at src (spec Invariant 1: "for every
// forward edge with flag f, a matching edge with flag f|PARENT exists
// on the destination vertex").
func (e Edge) Reverse(src Vertex) Edge {
	return Edge{
		Flag:         e.Flag | FlagParent,
		Dest:         Position{Change: src.Change, Pos: src.Start},
		IntroducedBy: e.IntroducedBy,
	}
}
