package apply

import (
	"fmt"

	"github.com/weftvcs/weft/internal/graph"
	"github.com/weftvcs/weft/internal/pristine"
)

// checkPartialScope refuses to apply a change against channelName when
// the channel is partial (has registered subtree roots, the "partial/
// lazy channel state" feature) and any position the change's atoms
// touched resolves to an already-bound inode outside every registered
// root. This is the original's UnknownBlock handling for content a
// shallow clone deliberately never fetched — distinct from
// ErrDependencyMissing, which means the hash was never heard of at
// all. Positions with no inode binding yet (new, unnamed content) have
// no file identity to scope-check and are skipped, same as
// recordTouchedFiles.
func checkPartialScope(tx *pristine.Tx, channelName string, touched map[graph.Position]struct{}) error {
	rootIDs, err := tx.PartialRootInodes(channelName)
	if err != nil {
		return err
	}
	if len(rootIDs) == 0 {
		return nil
	}
	roots := make([]graph.Inode, len(rootIDs))
	for i, r := range rootIDs {
		roots[i] = graph.Inode(r)
	}
	for p := range touched {
		inode, ok, err := graph.VertexInode(tx, p)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		inScope, err := graph.InPartialScope(tx, roots, inode)
		if err != nil {
			return err
		}
		if !inScope {
			return fmt.Errorf("%w: channel %q, inode %d", ErrPartialContextMissing, channelName, inode)
		}
	}
	return nil
}
