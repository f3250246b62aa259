package repair

import (
	"github.com/weftvcs/weft/internal/graph"
	"github.com/weftvcs/weft/internal/pristine"
)

// DetectFolderConflictResolutions scans every vertex for more than one
// alive, non-deleted FOLDER parent edge — a naming conflict, where two
// concurrently-applied changes gave the same filesystem entry two
// different locations (spec §4.3 "folder conflicts surface as a
// vertex with multiple alive incoming FOLDER edges; resolving one
// requires a further change that deletes all-but-one"). Returns the
// position of every vertex currently in that state, for the output
// layer's conflict-marker writer to report.
func DetectFolderConflictResolutions(tx *pristine.Tx, channelName string) ([]graph.Position, error) {
	starts, err := graph.AllVertexStarts(tx, channelName)
	if err != nil {
		return nil, err
	}

	var conflicts []graph.Position
	for _, start := range starts {
		edges, err := graph.EdgesFrom(tx, channelName, start)
		if err != nil {
			return nil, err
		}
		aliveFolderParents := 0
		for _, e := range edges {
			if e.Flag.Has(graph.FlagParent) && e.Flag.Has(graph.FlagFolder) && !e.Flag.Has(graph.FlagDeleted) {
				aliveFolderParents++
			}
		}
		if aliveFolderParents > 1 {
			conflicts = append(conflicts, start)
		}
	}
	return conflicts, nil
}
