// Package graph implements the labelled directed multigraph schema of
// spec §3/§6: vertices (contiguous byte ranges introduced by a change),
// positions (byte offsets inside a vertex), and bidirectionally-stored
// flagged edges, plus the repository-wide id and tree bookkeeping
// tables that sit alongside a channel's graph table.
package graph

import "encoding/binary"

// ChangeID is the dense, per-repository 8-byte integer identifier
// allocated to a change the first time any channel references it
// (spec §3 "Lifecycle").
type ChangeID uint64

// RootChange is the sentinel change id used for the repository root
// marker vertex and for pseudo-edges synthesised by repair
// (introduced_by == ROOT, spec §3 Edge).
const RootChange ChangeID = 0

// Vertex is a contiguous byte range introduced by a single change.
// start == end denotes an empty marker vertex (files/directories are
// marker vertices with FOLDER edges to name/content vertices).
// Encodes to 24 bytes (change, start, end), spec §6, but the graph
// table keys it by its start position alone (see ID).
type Vertex struct {
	Change ChangeID
	Start  uint64
	End    uint64
}

// IsMarker reports whether this vertex is an empty marker (start==end).
func (v Vertex) IsMarker() bool { return v.Start == v.End }

// ID returns the vertex's stable storage identity: its start position.
// Edges and the graph table key on this, not on the full (start, end)
// range, because end can shrink independently per channel (splitBlock).
func (v Vertex) ID() Position { return Position{Change: v.Change, Pos: v.Start} }

// Encode serialises v to its exact 24-byte on-disk representation:
// change_id:8 | start:8 | end:8 (spec §6).
func (v Vertex) Encode() []byte {
	buf := make([]byte, 24)
	binary.BigEndian.PutUint64(buf[0:8], uint64(v.Change))
	binary.BigEndian.PutUint64(buf[8:16], v.Start)
	binary.BigEndian.PutUint64(buf[16:24], v.End)
	return buf
}

// DecodeVertex parses a 24-byte encoded vertex key.
func DecodeVertex(b []byte) Vertex {
	return Vertex{
		Change: ChangeID(binary.BigEndian.Uint64(b[0:8])),
		Start:  binary.BigEndian.Uint64(b[8:16]),
		End:    binary.BigEndian.Uint64(b[16:24]),
	}
}

// Position addresses a byte inside a vertex: (change, pos) — 16 bytes.
// Used to name endpoints in changes that pre-date internal-id
// allocation; changes reference by hash and are resolved to an
// internal ChangeID during apply.
type Position struct {
	Change ChangeID
	Pos    uint64
}

// Encode serialises p to its 16-byte representation.
func (p Position) Encode() []byte {
	buf := make([]byte, 16)
	binary.BigEndian.PutUint64(buf[0:8], uint64(p.Change))
	binary.BigEndian.PutUint64(buf[8:16], p.Pos)
	return buf
}

// DecodePosition parses a 16-byte encoded position.
func DecodePosition(b []byte) Position {
	return Position{
		Change: ChangeID(binary.BigEndian.Uint64(b[0:8])),
		Pos:    binary.BigEndian.Uint64(b[8:16]),
	}
}

// Root is the marker vertex representing the repository root (the
// folder every alive folder vertex must transitively reach, spec §3
// Invariant 4).
var Root = Vertex{Change: RootChange, Start: 0, End: 0}
