package graph

import (
	"bytes"
	"encoding/binary"

	"github.com/weftvcs/weft/internal/pristine"
)

// Inode is the repository-wide, path-independent identifier of a
// tracked file or directory (spec §3 "Lifecycle": a file's identity
// survives rename because the tree/inodes tables key on Inode, not on
// path). Allocated once, on first add, and never reused.
type Inode uint64

func (i Inode) Encode() []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(i))
	return buf
}

func DecodeInode(b []byte) Inode { return Inode(binary.BigEndian.Uint64(b)) }

// Hash is a change's content-addressed identifier (spec §3 Change
// "Lifecycle": changes are named by hash until first applied, after
// which the repository also knows them by a dense ChangeID").
type Hash [32]byte

func (h Hash) Encode() []byte { return h[:] }

func DecodeHash(b []byte) Hash {
	var h Hash
	copy(h[:], b)
	return h
}

// PutPath records path as the current name of inode (spec §3 tree
// table: "path -> inode", and its inverse revtree: "inode -> path").
// Both directions are kept so rename can look up either way without a
// scan.
func PutPath(tx *pristine.Tx, path string, inode Inode) error {
	if err := tx.Put(pristine.RootTree, []byte(path), inode.Encode()); err != nil {
		return err
	}
	return tx.Put(pristine.RootRevTree, inode.Encode(), []byte(path))
}

// DelPath removes path's tree/revtree entries.
func DelPath(tx *pristine.Tx, path string, inode Inode) error {
	if err := tx.Del(pristine.RootTree, []byte(path)); err != nil {
		return err
	}
	return tx.Del(pristine.RootRevTree, inode.Encode())
}

// LookupInode returns the inode currently bound to path, if any.
func LookupInode(tx *pristine.Tx, path string) (Inode, bool, error) {
	v, err := tx.Get(pristine.RootTree, []byte(path))
	if err != nil || v == nil {
		return 0, false, err
	}
	return DecodeInode(v), true, nil
}

// LookupPath returns the path currently bound to inode, if any.
func LookupPath(tx *pristine.Tx, inode Inode) (string, bool, error) {
	v, err := tx.Get(pristine.RootRevTree, inode.Encode())
	if err != nil || v == nil {
		return "", false, err
	}
	return string(v), true, nil
}

// ListChildren returns every (path, inode) pair whose path begins with
// dirPrefix (a directory listing for output's level-order walk).
func ListChildren(tx *pristine.Tx, dirPrefix string) (map[string]Inode, error) {
	c, k, v, err := tx.CursorFrom(pristine.RootTree, []byte(dirPrefix))
	if err != nil {
		return nil, err
	}
	out := map[string]Inode{}
	for ; k != nil && pristine.HasPrefix(k, []byte(dirPrefix)); k, v = c.Next() {
		out[string(k)] = DecodeInode(v)
	}
	return out, nil
}

// BindInodeVertex records that inode's current file-metadata marker
// vertex lives at p (spec §3 inodes table), and its inverse (revinodes:
// position -> inode) so output can map a graph position back to the
// file it belongs to.
func BindInodeVertex(tx *pristine.Tx, inode Inode, p Position) error {
	if err := tx.Put(pristine.RootInodes, inode.Encode(), p.Encode()); err != nil {
		return err
	}
	return tx.Put(pristine.RootRevInodes, p.Encode(), inode.Encode())
}

// UnbindInodeVertex removes inode's vertex binding.
func UnbindInodeVertex(tx *pristine.Tx, inode Inode, p Position) error {
	if err := tx.Del(pristine.RootInodes, inode.Encode()); err != nil {
		return err
	}
	return tx.Del(pristine.RootRevInodes, p.Encode())
}

// InodeVertex returns the vertex position currently bound to inode.
func InodeVertex(tx *pristine.Tx, inode Inode) (Position, bool, error) {
	v, err := tx.Get(pristine.RootInodes, inode.Encode())
	if err != nil || v == nil {
		return Position{}, false, err
	}
	return DecodePosition(v), true, nil
}

// VertexInode returns the inode currently bound to a vertex position.
func VertexInode(tx *pristine.Tx, p Position) (Inode, bool, error) {
	v, err := tx.Get(pristine.RootRevInodes, p.Encode())
	if err != nil || v == nil {
		return 0, false, err
	}
	return DecodeInode(v), true, nil
}

// InternChange allocates (or returns the existing) dense ChangeID for
// hash, recording both the internal (id->hash) and external (hash->id)
// directions (spec §3 Change "Lifecycle": "the first channel to apply
// a change allocates it a ChangeID; every other channel reuses it").
func InternChange(tx *pristine.Tx, hash Hash, nextID func() (ChangeID, error)) (ChangeID, error) {
	if v, err := tx.Get(pristine.RootExternal, hash.Encode()); err != nil {
		return 0, err
	} else if v != nil {
		return ChangeID(binary.BigEndian.Uint64(v)), nil
	}
	id, err := nextID()
	if err != nil {
		return 0, err
	}
	idBuf := make([]byte, 8)
	binary.BigEndian.PutUint64(idBuf, uint64(id))
	if err := tx.Put(pristine.RootInternal, idBuf, hash.Encode()); err != nil {
		return 0, err
	}
	if err := tx.Put(pristine.RootExternal, hash.Encode(), idBuf); err != nil {
		return 0, err
	}
	return id, nil
}

// HashOf returns the hash a ChangeID was allocated for.
func HashOf(tx *pristine.Tx, id ChangeID) (Hash, bool, error) {
	idBuf := make([]byte, 8)
	binary.BigEndian.PutUint64(idBuf, uint64(id))
	v, err := tx.Get(pristine.RootInternal, idBuf)
	if err != nil || v == nil {
		return Hash{}, false, err
	}
	return DecodeHash(v), true, nil
}

// IDOf returns the ChangeID a hash was interned as, if any.
func IDOf(tx *pristine.Tx, hash Hash) (ChangeID, bool, error) {
	v, err := tx.Get(pristine.RootExternal, hash.Encode())
	if err != nil || v == nil {
		return 0, false, err
	}
	return ChangeID(binary.BigEndian.Uint64(v)), true, nil
}

// depKey packs a (from, to) pair for the dep/revdep multimaps.
func depKey(a, b ChangeID) []byte {
	buf := make([]byte, 16)
	binary.BigEndian.PutUint64(buf[0:8], uint64(a))
	binary.BigEndian.PutUint64(buf[8:16], uint64(b))
	return buf
}

// PutDependency records that change depends on dependency (spec §3
// "dep: change -> its dependencies", "revdep: change -> its
// dependents"). Apply writes one pair per declared dependency after
// checking the dependencies against the channel's changes table (not
// against these pairs); Dependencies and Dependents read them back.
func PutDependency(tx *pristine.Tx, change, dependency ChangeID) error {
	if err := tx.Put(pristine.RootDep, depKey(change, dependency), []byte{}); err != nil {
		return err
	}
	return tx.Put(pristine.RootRevDep, depKey(dependency, change), []byte{})
}

// Dependencies returns every change that `change` directly depends on.
func Dependencies(tx *pristine.Tx, change ChangeID) ([]ChangeID, error) {
	return scanSecondColumn(tx, pristine.RootDep, change)
}

// Dependents returns every change that directly depends on `change`.
func Dependents(tx *pristine.Tx, change ChangeID) ([]ChangeID, error) {
	return scanSecondColumn(tx, pristine.RootRevDep, change)
}

func scanSecondColumn(tx *pristine.Tx, root pristine.Root, first ChangeID) ([]ChangeID, error) {
	prefix := make([]byte, 8)
	binary.BigEndian.PutUint64(prefix, uint64(first))
	c, k, _, err := tx.CursorFrom(root, prefix)
	if err != nil {
		return nil, err
	}
	var out []ChangeID
	for ; k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
		out = append(out, ChangeID(binary.BigEndian.Uint64(k[8:16])))
	}
	return out, nil
}

// PutTouchedFile records that change touched inode's content or
// metadata (a SUPPLEMENTED feature recovered from the original
// implementation's per-change file index: it lets dependency pruning
// and `log --file` style queries avoid walking every change to find
// which ones mention a given file).
func PutTouchedFile(tx *pristine.Tx, change ChangeID, inode Inode) error {
	if err := tx.Put(pristine.RootTouchedFiles, depKey(change, ChangeID(inode)), []byte{}); err != nil {
		return err
	}
	return tx.Put(pristine.RootRevTouchedFiles, depKey(ChangeID(inode), change), []byte{})
}

// TouchedFiles returns every inode change touched.
func TouchedFiles(tx *pristine.Tx, change ChangeID) ([]Inode, error) {
	ids, err := scanSecondColumn(tx, pristine.RootTouchedFiles, change)
	if err != nil {
		return nil, err
	}
	inodes := make([]Inode, len(ids))
	for i, id := range ids {
		inodes[i] = Inode(id)
	}
	return inodes, nil
}

// ChangesTouching returns every change that has touched inode, in
// allocation order — the basis for `log --file`.
func ChangesTouching(tx *pristine.Tx, inode Inode) ([]ChangeID, error) {
	return scanSecondColumn(tx, pristine.RootRevTouchedFiles, ChangeID(inode))
}
