package repair

import (
	"github.com/weftvcs/weft/internal/graph"
	"github.com/weftvcs/weft/internal/pristine"
)

// CleanObsoletePseudoEdges removes PSEUDO edges whose destination has
// since gained a genuine, non-deleted PARENT edge — the pseudo edge
// RepairZombies added is no longer the only thing keeping that vertex
// reachable, so it is pure clutter (spec §4.3: "a pseudo-edge outlives
// its purpose once a real change reconnects the same vertex").
func CleanObsoletePseudoEdges(tx *pristine.Tx, channelName string) (int, error) {
	starts, err := graph.AllVertexStarts(tx, channelName)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, start := range starts {
		edges, err := graph.EdgesFrom(tx, channelName, start)
		if err != nil {
			return removed, err
		}
		for _, e := range edges {
			if !e.Flag.Has(graph.FlagPseudo) || e.Flag.Has(graph.FlagParent) {
				continue // only clean up from the forward side; its reverse is deleted alongside
			}
			genuinelyAlive, err := destHasGenuineParent(tx, channelName, e.Dest)
			if err != nil {
				return removed, err
			}
			if !genuinelyAlive {
				continue
			}
			srcVertex, ok, err := graph.VertexLength(tx, channelName, start)
			if err != nil {
				return removed, err
			}
			if !ok {
				continue
			}
			if err := graph.DelEdge(tx, channelName, srcVertex, e); err != nil {
				return removed, err
			}
			removed++
		}
	}
	return removed, nil
}

func destHasGenuineParent(tx *pristine.Tx, channelName string, dest graph.Position) (bool, error) {
	edges, err := graph.EdgesFrom(tx, channelName, dest)
	if err != nil {
		return false, err
	}
	for _, e := range edges {
		if e.Flag.Has(graph.FlagParent) && !e.Flag.Has(graph.FlagDeleted) && !e.Flag.Has(graph.FlagPseudo) {
			return true, nil
		}
	}
	return false, nil
}
