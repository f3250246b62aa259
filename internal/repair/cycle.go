package repair

import (
	"github.com/weftvcs/weft/internal/graph"
	"github.com/weftvcs/weft/internal/pristine"
)

const (
	colorWhite = iota
	colorGray
	colorBlack
)

// RepairCyclicPaths detects cycles in the alive folder hierarchy
// (possible when two concurrent changes move directories into each
// other) by walking FOLDER|PARENT edges with an explicit stack — never
// recursion, since a cycle makes a naive recursive walk loop forever
// rather than merely go deep — and breaks each one found by deleting
// the back-edge that closed it (spec §4.3 "cyclic-path repair").
func RepairCyclicPaths(tx *pristine.Tx, channelName string) (int, error) {
	starts, err := graph.AllVertexStarts(tx, channelName)
	if err != nil {
		return 0, err
	}

	color := make(map[graph.Position]int, len(starts))
	broken := 0

	type frame struct {
		pos   graph.Position
		edges []graph.Edge
		next  int
	}

	for _, root := range starts {
		if color[root] != colorWhite {
			continue
		}
		stack := []*frame{{pos: root}}
		color[root] = colorGray

		for len(stack) > 0 {
			top := stack[len(stack)-1]
			if top.edges == nil {
				edges, err := graph.EdgesFrom(tx, channelName, top.pos)
				if err != nil {
					return broken, err
				}
				top.edges = folderChildren(edges)
			}
			if top.next >= len(top.edges) {
				color[top.pos] = colorBlack
				stack = stack[:len(stack)-1]
				continue
			}
			e := top.edges[top.next]
			top.next++

			switch color[e.Dest] {
			case colorGray:
				srcVertex, ok, err := graph.VertexLength(tx, channelName, top.pos)
				if err != nil {
					return broken, err
				}
				if ok {
					if err := graph.DelEdge(tx, channelName, srcVertex, e); err != nil {
						return broken, err
					}
					broken++
				}
			case colorWhite:
				color[e.Dest] = colorGray
				stack = append(stack, &frame{pos: e.Dest})
			}
		}
	}
	return broken, nil
}

// folderChildren filters edges down to alive FOLDER child links (the
// direction a cycle would traverse: parent -> child, not the PARENT
// reverse copies also present in the adjacency list).
func folderChildren(edges []graph.Edge) []graph.Edge {
	var out []graph.Edge
	for _, e := range edges {
		if e.Flag.Has(graph.FlagFolder) && !e.Flag.Has(graph.FlagParent) && !e.Flag.Has(graph.FlagDeleted) {
			out = append(out, e)
		}
	}
	return out
}
