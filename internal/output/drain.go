package output

import (
	"github.com/weftvcs/weft/internal/graph"
	"github.com/weftvcs/weft/internal/pristine"
)

// drainDeadFiles removes any previously-output path whose inode is no
// longer alive in channelName and is not among the plans the current
// walk just produced (spec §5 "a deletion must be reflected on disk by
// removing the file, not merely skipping it on the next write").
func drainDeadFiles(tx *pristine.Tx, channelName string, wc WorkingCopy, plans []Plan) error {
	live := make(map[string]bool, len(plans))
	for _, p := range plans {
		live[p.Path] = true
	}

	everKnown, err := graph.ListChildren(tx, "")
	if err != nil {
		return err
	}
	for path, inode := range everKnown {
		if live[path] {
			continue
		}
		pos, ok, err := graph.InodeVertex(tx, inode)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		v, ok, err := graph.VertexLength(tx, channelName, pos)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		alive, err := graph.IsAlive(tx, channelName, v)
		if err != nil {
			return err
		}
		if alive {
			continue
		}
		if err := wc.Remove(path); err != nil {
			return err
		}
	}
	return nil
}
