package output

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/weftvcs/weft/internal/change"
	"github.com/weftvcs/weft/internal/graph"
	"github.com/weftvcs/weft/internal/pristine"
	"github.com/weftvcs/weft/internal/repair"
	"github.com/weftvcs/weft/internal/vertexbuf"
)

// ChangeStore is the minimal content boundary output needs (spec §6's
// ChangeStore interface, restricted to the reads output requires):
// the raw bytes a vertex covers, plus the header annotating a
// conflict side's change in a marker.
type ChangeStore interface {
	GetContent(hash graph.Hash, start, end uint64) ([]byte, error)
	GetHeader(ctx context.Context, hash graph.Hash) (*change.Header, error)
}

// walkLevelOrder produces one Plan per alive file vertex. The tree
// table (spec §3 "tree: path -> inode") only ever names files, never
// the intermediate directories along the way to them, so there is no
// directory vertex to breadth-first over; instead every known path is
// processed in ascending depth order, which gives the same guarantee
// output needs (spec §5 "a parent directory is always created before
// anything underneath it is written") since writeViaTemp always
// creates a file's parent directory itself before writing through it.
func walkLevelOrder(ctx context.Context, tx *pristine.Tx, channelName string, cs ChangeStore) ([]Plan, error) {
	known, err := graph.ListChildren(tx, "")
	if err != nil {
		return nil, err
	}

	folderConflicts, err := repair.DetectFolderConflictResolutions(tx, channelName)
	if err != nil {
		return nil, err
	}
	contested := make(map[graph.Position]bool, len(folderConflicts))
	for _, p := range folderConflicts {
		contested[p] = true
	}

	paths := make([]string, 0, len(known))
	for p := range known {
		paths = append(paths, p)
	}
	sort.Slice(paths, func(i, j int) bool {
		di, dj := strings.Count(paths[i], "/"), strings.Count(paths[j], "/")
		if di != dj {
			return di < dj
		}
		return paths[i] < paths[j]
	})

	var plans []Plan
	for _, path := range paths {
		inode := known[path]

		pos, ok, err := graph.InodeVertex(tx, inode)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		v, ok, err := graph.VertexLength(tx, channelName, pos)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		alive, err := graph.IsAlive(tx, channelName, v)
		if err != nil {
			return nil, err
		}
		if !alive {
			continue // dead inode; drainDeadFiles handles its removal separately
		}

		content, err := fileContent(tx, v, cs)
		if err != nil {
			return nil, err
		}

		var conflicts []vertexbuf.Conflict
		if contested[v.ID()] {
			conflicts, err = namingConflictSides(ctx, tx, channelName, v, content, cs)
			if err != nil {
				return nil, err
			}
		}

		plans = append(plans, Plan{Path: path, Inode: inode, Content: content, Conflicts: conflicts})
	}
	return plans, nil
}

// namingConflictSides builds one conflict side per change that put an
// alive FOLDER edge into v, a vertex repair.DetectFolderConflictResolutions
// has already flagged as having more than one — two concurrently-applied
// changes each gave this entry a different containing directory (spec
// §4.3 folder conflict). The file's own content is unambiguous, so
// every side repeats it; the marker's purpose is to name the
// contending changes, not to show different bytes.
func namingConflictSides(ctx context.Context, tx *pristine.Tx, channelName string, v graph.Vertex, content []byte, cs ChangeStore) ([]vertexbuf.Conflict, error) {
	edges, err := graph.EdgesFrom(tx, channelName, v.ID())
	if err != nil {
		return nil, err
	}
	var sides []vertexbuf.Conflict
	for _, e := range edges {
		if !e.Flag.Has(graph.FlagParent) || !e.Flag.Has(graph.FlagFolder) || e.Flag.Has(graph.FlagDeleted) {
			continue
		}
		side := vertexbuf.Conflict{Kind: vertexbuf.ConflictMultipleNames, Side: e.IntroducedBy, Content: content}
		if hash, ok, err := graph.HashOf(tx, e.IntroducedBy); err != nil {
			return nil, err
		} else if ok {
			side.ChangeHash = hash
			if hdr, err := cs.GetHeader(ctx, hash); err == nil && hdr != nil {
				side.Summary = firstLine(hdr.Message)
			}
		}
		sides = append(sides, side)
	}
	return sides, nil
}

// firstLine returns s up to its first newline, the "commit summary"
// convention the original's conflict-marker annotation follows.
func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// fileContent reassembles a file's bytes for its single backing vertex.
func fileContent(tx *pristine.Tx, v graph.Vertex, cs ChangeStore) ([]byte, error) {
	hash, ok, err := graph.HashOf(tx, v.Change)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("output: no hash recorded for change %d", v.Change)
	}
	return cs.GetContent(hash, v.Start, v.End)
}
