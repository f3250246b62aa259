package repair

import (
	"github.com/weftvcs/weft/internal/graph"
	"github.com/weftvcs/weft/internal/pristine"
)

// RepairZombies finds every vertex with no live incoming edge (a
// "zombie": still referenced by something downstream but cut off from
// the alive portion of the graph, typically because every edge on its
// only path to the root was deleted by a later, independently-applied
// change) and reconnects it with a PSEUDO edge from the nearest alive
// ancestor it can still reach through its existing — possibly deleted
// — PARENT edges (spec §4.3). Walks with an explicit stack rather than
// recursion since a pathological chain of zombies could be arbitrarily
// deep.
func RepairZombies(tx *pristine.Tx, channelName string) (int, error) {
	starts, err := graph.AllVertexStarts(tx, channelName)
	if err != nil {
		return 0, err
	}

	reconnected := 0
	for _, start := range starts {
		if start == graph.Root.ID() {
			continue
		}
		v, ok, err := graph.VertexLength(tx, channelName, start)
		if err != nil {
			return reconnected, err
		}
		if !ok {
			continue
		}
		alive, err := graph.IsAlive(tx, channelName, v)
		if err != nil {
			return reconnected, err
		}
		if alive {
			continue
		}
		edges, err := graph.EdgesFrom(tx, channelName, start)
		if err != nil {
			return reconnected, err
		}
		referenced := false
		for _, e := range edges {
			if !e.Flag.Has(graph.FlagParent) && !e.Flag.Has(graph.FlagDeleted) {
				referenced = true
				break
			}
		}
		if !referenced {
			continue // a plain deletion with nothing live below it stays deleted
		}

		ancestor, found, err := findAliveAncestor(tx, channelName, start)
		if err != nil {
			return reconnected, err
		}
		if !found {
			continue // nothing alive reachable yet; a later repair pass (once more context lands) may succeed
		}
		ancestorVertex, ok, err := graph.VertexLength(tx, channelName, ancestor)
		if err != nil {
			return reconnected, err
		}
		if !ok {
			continue
		}
		if err := graph.PutEdge(tx, channelName, ancestorVertex, graph.Edge{
			Flag:         graph.FlagBlock | graph.FlagPseudo,
			Dest:         start,
			IntroducedBy: graph.RootChange,
		}); err != nil {
			return reconnected, err
		}
		reconnected++
	}
	return reconnected, nil
}

// findAliveAncestor walks backward from start through recorded PARENT
// edges (which exist regardless of the DELETED bit — a deleted edge
// still records that its destination used to follow its source) until
// it finds a vertex that is currently alive, or the root.
func findAliveAncestor(tx *pristine.Tx, channelName string, start graph.Position) (graph.Position, bool, error) {
	stack := []graph.Position{start}
	visited := map[graph.Position]bool{}

	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[cur] {
			continue
		}
		visited[cur] = true

		edges, err := graph.EdgesFrom(tx, channelName, cur)
		if err != nil {
			return graph.Position{}, false, err
		}
		for _, e := range edges {
			if !e.Flag.Has(graph.FlagParent) {
				continue
			}
			pred := e.Dest
			if pred == graph.Root.ID() {
				return pred, true, nil
			}
			predVertex, ok, err := graph.VertexLength(tx, channelName, pred)
			if err != nil {
				return graph.Position{}, false, err
			}
			if !ok {
				continue
			}
			alive, err := graph.IsAlive(tx, channelName, predVertex)
			if err != nil {
				return graph.Position{}, false, err
			}
			if alive {
				return pred, true, nil
			}
			if !visited[pred] {
				stack = append(stack, pred)
			}
		}
	}
	return graph.Position{}, false, nil
}
