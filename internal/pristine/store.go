// Package pristine implements the transactional key/value engine that
// backs every persistent table in a repository: the graph, channel
// bookkeeping, and repository-wide id maps described in spec §3/§4.1.
//
// The engine is go.etcd.io/bbolt: a single-file, mmap'd copy-on-write
// B+tree with one writer transaction and many concurrent read-only
// snapshot transactions, alternating two meta pages on commit. That is
// the on-disk contract this package's callers rely on; pristine itself
// only adds the Root bucket taxonomy, fork/drop semantics, and a
// non-blocking open-lock so front-ends can surface contention instead
// of blocking forever.
package pristine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	bolt "go.etcd.io/bbolt"

	"github.com/weftvcs/weft/internal/lockfile"
)

// Version is the on-disk schema version this binary understands.
// Opening a store whose Version root holds a different value fails
// with ErrVersionMismatch (spec §4.1 "transaction refuses to open if
// on-disk version != code version").
const Version = 1

var versionKey = []byte("version")

// Root enumerates the top-level bucket namespace. Every table named in
// spec §3 is one of these buckets (channel-scoped tables are namespaced
// further by channel name inside the Channels bucket tree).
type Root string

const (
	RootVersion         Root = "version"
	RootTree            Root = "tree"
	RootRevTree         Root = "revtree"
	RootInodes          Root = "inodes"
	RootRevInodes       Root = "revinodes"
	RootInternal        Root = "internal"
	RootExternal        Root = "external"
	RootDep             Root = "dep"
	RootRevDep          Root = "revdep"
	RootChannels        Root = "channels"
	RootTouchedFiles    Root = "touched_files"
	RootRevTouchedFiles Root = "rev_touched_files"
	RootPartials        Root = "partials"
	RootRemotes         Root = "remotes"
)

// allRoots lists every bucket created on a fresh store.
var allRoots = []Root{
	RootVersion, RootTree, RootRevTree, RootInodes, RootRevInodes,
	RootInternal, RootExternal, RootDep, RootRevDep, RootChannels,
	RootTouchedFiles, RootRevTouchedFiles, RootPartials, RootRemotes,
}

var (
	// ErrVersionMismatch is returned by Open when the on-disk schema
	// version does not match Version.
	ErrVersionMismatch = errors.New("pristine: on-disk version mismatch")
	// ErrCorruption indicates a structural B-tree error. Fatal: the
	// caller must abort the surrounding transaction (spec §7).
	ErrCorruption = errors.New("pristine: corruption")
	// ErrLocked is returned when the writer lock is already held by
	// another process and the caller asked for a non-blocking open.
	ErrLocked = lockfile.ErrLocked
)

// Store wraps a single bbolt database file plus the process-local
// advisory lock that enforces "one writer transaction at a time"
// across processes sharing the same repository directory.
type Store struct {
	db   *bolt.DB
	path string
	lock *os.File
}

// OpenOptions configures Open.
type OpenOptions struct {
	// Blocking, if true, waits for the writer lock instead of failing
	// fast with ErrLocked.
	Blocking bool
}

// Open opens (creating if absent) the pristine store at path.
func Open(path string, opts OpenOptions) (*Store, error) {
	lockPath := path + ".lock"
	lf, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("pristine: open lock file: %w", err)
	}
	if opts.Blocking {
		if err := lockfile.FlockExclusiveBlocking(lf); err != nil {
			lf.Close()
			return nil, fmt.Errorf("pristine: acquire lock: %w", err)
		}
	} else if err := lockfile.FlockExclusiveNonBlocking(lf); err != nil {
		lf.Close()
		if lockfile.IsLocked(err) {
			return nil, ErrLocked
		}
		return nil, fmt.Errorf("pristine: acquire lock: %w", err)
	}

	db, err := bolt.Open(path, 0o644, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		_ = lockfile.FlockUnlock(lf)
		lf.Close()
		return nil, fmt.Errorf("pristine: open db: %w", err)
	}

	s := &Store{db: db, path: path, lock: lf}
	if err := s.initOrCheckVersion(); err != nil {
		db.Close()
		_ = lockfile.FlockUnlock(lf)
		lf.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initOrCheckVersion() error {
	return s.db.Update(func(btx *bolt.Tx) error {
		for _, r := range allRoots {
			if _, err := btx.CreateBucketIfNotExists([]byte(r)); err != nil {
				return fmt.Errorf("%w: create bucket %s: %v", ErrCorruption, r, err)
			}
		}
		vb := btx.Bucket([]byte(RootVersion))
		existing := vb.Get(versionKey)
		if existing == nil {
			buf := make([]byte, 8)
			putUint64(buf, Version)
			if err := vb.Put(versionKey, buf); err != nil {
				return err
			}
			return internRootChange(btx)
		}
		if getUint64(existing) != Version {
			return ErrVersionMismatch
		}
		return nil
	})
}

// Close releases the database file and the writer lock.
func (s *Store) Close() error {
	err := s.db.Close()
	_ = lockfile.FlockUnlock(s.lock)
	_ = s.lock.Close()
	return err
}

// Update runs fn inside the single writer transaction. Retries
// transiently on ErrLocked-class contention using exponential backoff
// (grounded on the teacher's RunInTransaction retry loop); any other
// error aborts immediately and the transaction is rolled back — no
// partial state is ever committed (spec §7).
func (s *Store) Update(ctx context.Context, fn func(tx *Tx) error) error {
	op := func() error {
		return s.db.Update(func(btx *bolt.Tx) error {
			return fn(&Tx{btx: btx})
		})
	}
	bo := backoff.WithContext(backoff.NewExponentialBackOff(), ctx)
	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrLocked) {
			return err // retryable
		}
		return backoff.Permanent(err)
	}, bo)
}

// View runs fn inside a read-only snapshot transaction. Multiple
// readers may run concurrently with each other and with the single
// writer (spec §4.1/§5 MVCC).
func (s *Store) View(fn func(tx *ReadTx) error) error {
	return s.db.View(func(btx *bolt.Tx) error {
		return fn(&ReadTx{btx: btx})
	})
}

// internRootChange seeds the id maps on a fresh store with the
// all-zero hash mapped to change id 0 (graph.RootChange), so that a
// change's up-context can name "the repository root" by hashing to
// the zero value instead of needing some other out-of-band sentinel.
// Written here rather than in internal/graph to avoid an import cycle
// (graph already depends on pristine); the 32/8-byte widths mirror
// graph.Hash/graph.ChangeID's Encode layouts exactly.
func internRootChange(btx *bolt.Tx) error {
	internal := btx.Bucket([]byte(RootInternal))
	external := btx.Bucket([]byte(RootExternal))
	zeroHash := make([]byte, 32)
	zeroID := make([]byte, 8)
	if err := internal.Put(zeroID, zeroHash); err != nil {
		return err
	}
	return external.Put(zeroHash, zeroID)
}

func putUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

func getUint64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8 && i < len(b); i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v
}
