package apply

import (
	"encoding/binary"

	"github.com/weftvcs/weft/internal/change"
	"github.com/weftvcs/weft/internal/graph"
	"github.com/weftvcs/weft/internal/pristine"
)

// CollectMissingContexts reports every dependency hash and context
// position c references that channelName cannot currently resolve,
// without mutating anything. Used to give a caller (push/pull, or a
// CLI operator) a complete list of what's missing in one pass instead
// of failing on the first unresolved reference mid-apply.
func CollectMissingContexts(tx *pristine.ReadTx, channelName string, c *change.Change) ([]graph.Hash, error) {
	var missing []graph.Hash
	seen := map[graph.Hash]bool{}

	for _, dep := range c.Dependencies {
		v, err := tx.ChanGet(channelName, pristine.TableChanges, dep[:])
		if err != nil {
			return nil, err
		}
		if v == nil && !seen[dep] {
			seen[dep] = true
			missing = append(missing, dep)
		}
	}

	checkRef := func(ref change.PositionRef) error {
		if id, ok, err := idOfRead(tx, ref.Change); err != nil {
			return err
		} else if !ok {
			if !seen[ref.Change] {
				seen[ref.Change] = true
				missing = append(missing, ref.Change)
			}
		} else {
			_ = id
		}
		return nil
	}

	for _, hunk := range c.Hunks {
		for _, atom := range hunk.Atoms {
			if atom.Kind != change.AtomNewVertex || atom.NewVertex == nil {
				continue
			}
			for _, ref := range atom.NewVertex.UpContext {
				if err := checkRef(ref); err != nil {
					return nil, err
				}
			}
			for _, ref := range atom.NewVertex.DownContext {
				if err := checkRef(ref); err != nil {
					return nil, err
				}
			}
		}
	}
	return missing, nil
}

// idOfRead is graph.IDOf's read-only-transaction counterpart; the
// external id map is repository-wide and read-only lookups never need
// the writer.
func idOfRead(tx *pristine.ReadTx, hash graph.Hash) (graph.ChangeID, bool, error) {
	v, err := tx.Get(pristine.RootExternal, hash.Encode())
	if err != nil || v == nil {
		return 0, false, err
	}
	return graph.ChangeID(binary.BigEndian.Uint64(v)), true, nil
}
