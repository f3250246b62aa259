// Package collab defines the external boundaries apply, output and the
// rest of the core never reach past directly (spec §6): ChangeStore,
// which owns how changes are persisted and fetched (by hash, as a file,
// over a network — the core doesn't care), and WorkingCopy, which owns
// how a channel's alive tree gets reflected onto a real filesystem (or
// an in-memory one, for tests).
//
// internal/output already defines its own ChangeStore and WorkingCopy,
// cut down to the two reads (GetContent, GetHeader) and handful of writes
// (WriteFile/Rename/Remove/CreateDirAll) the output walk actually
// performs. Rather than duplicate those method sets with a second,
// incompatible signature, collab's interfaces embed output's and add
// only what a repository-level caller needs beyond output's reach:
// reading a change back out by hash, listing what's known, and
// stat'ing a path without reading it. A collab.WorkingCopy or
// collab.ChangeStore is always usable wherever output wants its
// narrower one; the reverse isn't true, which is the point.
package collab

import (
	"context"
	"os"
	"time"

	"github.com/weftvcs/weft/internal/change"
	"github.com/weftvcs/weft/internal/graph"
	"github.com/weftvcs/weft/internal/output"
)

// ChangeStore persists and retrieves change content addressed by hash.
type ChangeStore interface {
	output.ChangeStore

	// GetChange returns the full change named by hash.
	GetChange(ctx context.Context, hash graph.Hash) (*change.Change, error)
	// GetHeader returns just hash's free-text metadata, without
	// paying to deserialize Contents (used by `log`-style listings).
	GetHeader(ctx context.Context, hash graph.Hash) (*change.Header, error)
	// GetChanges returns every change hash currently stored (order
	// unspecified; callers that need an order sort themselves).
	GetChanges(ctx context.Context) ([]graph.Hash, error)
	// SaveChange persists c, returning its hash.
	SaveChange(ctx context.Context, c *change.Change) (graph.Hash, error)
	// Knows reports whether hash is already stored, letting a
	// push/pull session skip re-fetching a change the peer is certain
	// to already have (spec §2's Knows set, SUPPLEMENTED from
	// original_source).
	Knows(ctx context.Context, hash graph.Hash) (bool, error)
}

// FileMetadata is the subset of filesystem metadata WorkingCopy
// exposes — enough for apply to detect an out-of-band edit and for
// output to decide whether a path needs rewriting.
type FileMetadata struct {
	Size    int64
	Mode    os.FileMode
	ModTime time.Time
	IsDir   bool
}

// WorkingCopy is the filesystem boundary: everything apply and output
// need to read from, or write to, the tree a channel materializes.
type WorkingCopy interface {
	output.WorkingCopy

	FileMetadata(path string) (FileMetadata, error)
	ReadFile(path string) ([]byte, error)
	SetPermissions(path string, mode os.FileMode) error
	ModifiedTime(path string) (time.Time, error)
	IsWritable(path string) (bool, error)
}
