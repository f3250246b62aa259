package graph

import (
	"strings"

	"github.com/weftvcs/weft/internal/pristine"
)

// InPartialScope reports whether inode's current path lies within one
// of roots' subtrees, resolving each root inode to its current path via
// LookupPath (spec's "partial/lazy channel state" feature: a shallow
// clone only ever has context for files under a directory it actually
// fetched). An empty roots means the channel isn't partial, so every
// inode is in scope. An inode with no path binding at all (not yet
// named by the tree table) cannot be proven to lie under any root and
// is reported out of scope.
func InPartialScope(tx *pristine.Tx, roots []Inode, inode Inode) (bool, error) {
	if len(roots) == 0 {
		return true, nil
	}
	path, ok, err := LookupPath(tx, inode)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	for _, root := range roots {
		rootPath, ok, err := LookupPath(tx, root)
		if err != nil {
			return false, err
		}
		if !ok {
			continue
		}
		if path == rootPath || strings.HasPrefix(path, rootPath+"/") {
			return true, nil
		}
	}
	return false, nil
}
