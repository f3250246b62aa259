package pristine

import (
	"bytes"
	"encoding/binary"
)

// partialKey packs a channel name and a root inode into one RootPartials
// key so every channel's registered roots sort together under that
// channel's prefix.
func partialKey(channel string, rootInode uint64) []byte {
	key := append([]byte(channel), 0)
	inodeBuf := make([]byte, 8)
	binary.BigEndian.PutUint64(inodeBuf, rootInode)
	return append(key, inodeBuf...)
}

// MarkPartialRoot registers rootInode as a materialised subtree root
// for channel (spec §3 "partials" table: a shallow clone records which
// directories it actually fetched, rather than the whole tree).
func (tx *Tx) MarkPartialRoot(channel string, rootInode uint64) error {
	return tx.Put(RootPartials, partialKey(channel, rootInode), []byte{})
}

// cursorFromer is the read shape both Tx and ReadTx share, letting
// partialRootInodes serve both without duplicating the scan.
type cursorFromer interface {
	CursorFrom(root Root, key []byte) (*Cursor, []byte, []byte, error)
}

func partialRootInodes(c cursorFromer, channel string) ([]uint64, error) {
	prefix := append([]byte(channel), 0)
	cur, k, _, err := c.CursorFrom(RootPartials, prefix)
	if err != nil {
		return nil, err
	}
	var roots []uint64
	for ; k != nil && bytes.HasPrefix(k, prefix); k, _ = cur.Next() {
		roots = append(roots, binary.BigEndian.Uint64(k[len(prefix):]))
	}
	return roots, nil
}

// PartialRootInodes returns every root inode registered for channel. An
// empty result means channel is not partial — every position it names
// is considered fully materialised.
func (tx *Tx) PartialRootInodes(channel string) ([]uint64, error) {
	return partialRootInodes(tx, channel)
}

// PartialRootInodes is ReadTx's read-only counterpart to Tx's.
func (tx *ReadTx) PartialRootInodes(channel string) ([]uint64, error) {
	return partialRootInodes(tx, channel)
}

// PartialReadTx is a read snapshot paired with one channel's registered
// partial subtree roots (recovered from the original's shallow-clone
// pristine). The snapshot itself is unfiltered: every table of the
// store stays readable through it, whatever Roots holds.
type PartialReadTx struct {
	*ReadTx
	Channel string
	Roots   []uint64
}

// OpenPartial opens a read snapshot and reports channel's registered
// partial roots alongside it. An empty Roots means channel was never
// marked partial, so a caller should treat every position as in scope.
func (s *Store) OpenPartial(channel string, fn func(tx *PartialReadTx) error) error {
	return s.View(func(rtx *ReadTx) error {
		roots, err := rtx.PartialRootInodes(channel)
		if err != nil {
			return err
		}
		return fn(&PartialReadTx{ReadTx: rtx, Channel: channel, Roots: roots})
	})
}
