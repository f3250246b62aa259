package graph

import (
	"bytes"
	"encoding/binary"
	"sort"

	"github.com/weftvcs/weft/internal/pristine"
)

// Vertices are identified by their start position alone (change, start)
// — 16 bytes, same shape as Position — because a vertex's end boundary
// is channel-local (splitBlock shortens a vertex on one channel without
// affecting any other channel sharing the same change) while its start
// is the stable identity every edge and every other channel agrees on.
// The graph table therefore stores, per channel:
//
//	<16-byte start>                                -> <8-byte end>   (vertex presence + current length)
//	<16-byte start><24-byte edge><8-byte introducer> -> ()            (one entry per incident edge)
//
// A vertex-presence key is always the shortest key sharing its 16-byte
// prefix, so a prefix scan naturally yields the length marker first
// followed by every incident edge in (flag, dest) order.

func edgeKey(srcStart Position, e Edge) []byte {
	buf := make([]byte, 48)
	copy(buf[0:16], srcStart.Encode())
	copy(buf[16:40], e.Encode())
	binary.BigEndian.PutUint64(buf[40:48], uint64(e.IntroducedBy))
	return buf
}

func decodeEdgeKey(k []byte) (Position, Edge) {
	src := DecodePosition(k[0:16])
	flag, dest := DecodeEdgeFields(k[16:40])
	introducedBy := ChangeID(binary.BigEndian.Uint64(k[40:48]))
	return src, Edge{Flag: flag, Dest: dest, IntroducedBy: introducedBy}
}

// PutVertex writes (or refreshes) v's presence/length marker (spec
// §4.2 write phase A: "write n to graph").
func PutVertex(tx *pristine.Tx, channel string, v Vertex) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v.End)
	return tx.ChanPut(channel, pristine.TableGraph, v.ID().Encode(), buf)
}

// VertexLength looks up v's current end boundary on channel, which may
// be smaller than the end a NewVertex atom originally declared if
// splitBlock has since shortened it.
func VertexLength(tx *pristine.Tx, channel string, start Position) (Vertex, bool, error) {
	v, err := tx.ChanGet(channel, pristine.TableGraph, start.Encode())
	if err != nil || v == nil {
		return Vertex{}, false, err
	}
	return Vertex{Change: start.Change, Start: start.Pos, End: binary.BigEndian.Uint64(v)}, true, nil
}

// PutEdge inserts a forward edge rooted at src's start position plus
// its mandatory reverse (spec Invariant 1). Both directions are
// written atomically within the caller's transaction.
func PutEdge(tx *pristine.Tx, channel string, src Vertex, e Edge) error {
	if err := tx.ChanPut(channel, pristine.TableGraph, edgeKey(src.ID(), e), []byte{}); err != nil {
		return err
	}
	rev := e.Reverse(src)
	return tx.ChanPut(channel, pristine.TableGraph, edgeKey(e.Dest, rev), []byte{})
}

// DelEdge removes both directions of an edge.
func DelEdge(tx *pristine.Tx, channel string, src Vertex, e Edge) error {
	if err := tx.ChanDel(channel, pristine.TableGraph, edgeKey(src.ID(), e)); err != nil {
		return err
	}
	rev := e.Reverse(src)
	return tx.ChanDel(channel, pristine.TableGraph, edgeKey(e.Dest, rev))
}

// EdgesFrom returns every edge incident to the vertex starting at
// start, sorted by (flag, dest) per spec §4.3's deterministic
// tie-break ("children iterated in ascending (flag, dest) order").
func EdgesFrom(tx *pristine.Tx, channel string, start Position) ([]Edge, error) {
	prefix := start.Encode()
	c, k, _, err := tx.ChanCursor(channel, pristine.TableGraph, prefix)
	if err != nil {
		return nil, err
	}
	var edges []Edge
	for ; k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
		if len(k) == 16 {
			continue // the vertex's own presence/length marker
		}
		_, e := decodeEdgeKey(k)
		edges = append(edges, e)
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Flag != edges[j].Flag {
			return edges[i].Flag < edges[j].Flag
		}
		if edges[i].Dest.Change != edges[j].Dest.Change {
			return edges[i].Dest.Change < edges[j].Dest.Change
		}
		return edges[i].Dest.Pos < edges[j].Dest.Pos
	})
	return edges, nil
}

// HasVertex reports whether a vertex starting at start exists in the
// graph table, by its presence key; edge entries alone do not count.
func HasVertex(tx *pristine.Tx, channel string, start Position) (bool, error) {
	val, err := tx.ChanGet(channel, pristine.TableGraph, start.Encode())
	if err != nil {
		return false, err
	}
	return val != nil, nil
}

// IsAlive reports spec Invariant 3: v is alive iff it has at least one
// incoming PARENT edge with no DELETED bit (a BLOCK|PARENT edge for an
// ordinary vertex, any live PARENT edge for a marker).
func IsAlive(tx *pristine.Tx, channel string, v Vertex) (bool, error) {
	edges, err := EdgesFrom(tx, channel, v.ID())
	if err != nil {
		return false, err
	}
	for _, e := range edges {
		if !e.Flag.Has(FlagParent) || e.Flag.Has(FlagDeleted) {
			continue
		}
		if v.IsMarker() || e.Flag.Has(FlagBlock) {
			return true, nil
		}
	}
	return false, nil
}

// AllVertexStarts enumerates every vertex's start position on channel,
// in key order. Used by repair's full-graph passes; not meant for hot
// paths over large repositories.
func AllVertexStarts(tx *pristine.Tx, channel string) ([]Position, error) {
	c, k, _, err := tx.ChanCursor(channel, pristine.TableGraph, nil)
	if err != nil {
		return nil, err
	}
	var out []Position
	for ; k != nil; k, _ = c.Next() {
		if len(k) != 16 {
			continue
		}
		out = append(out, DecodePosition(k))
	}
	return out, nil
}

// VertexContainingPosition finds the vertex whose [start, end) range
// contains p, walking back from the first start-key >= p.Pos to the
// nearest preceding vertex marker for the same change (vertex ranges
// within one change's address space are contiguous and non-overlapping,
// so at most one candidate precedes p).
func VertexContainingPosition(tx *pristine.Tx, channel string, p Position) (Vertex, bool, error) {
	changePrefix := make([]byte, 8)
	binary.BigEndian.PutUint64(changePrefix, uint64(p.Change))

	c, k, v, err := tx.ChanCursor(channel, pristine.TableGraph, p.Encode())
	if err != nil {
		return Vertex{}, false, err
	}
	if k != nil && len(k) == 16 && bytes.Equal(k, p.Encode()) {
		return Vertex{Change: p.Change, Start: p.Pos, End: binary.BigEndian.Uint64(v)}, true, nil
	}
	// Walk backward past any edge entries to the previous vertex marker.
	for k, v = c.Prev(); k != nil && bytes.HasPrefix(k, changePrefix); k, v = c.Prev() {
		if len(k) != 16 {
			continue
		}
		start := DecodePosition(k)
		end := binary.BigEndian.Uint64(v)
		if start.Pos <= p.Pos && p.Pos < end {
			return Vertex{Change: p.Change, Start: start.Pos, End: end}, true, nil
		}
		return Vertex{}, false, nil // nearest marker doesn't cover p; no further marker can
	}
	return Vertex{}, false, nil
}
