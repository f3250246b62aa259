// Package output implements the reconciliation algorithm of spec §5:
// a level-order walk of a channel's alive folder tree, a two-phase
// rename so that a rename chain and a file replacing a directory (or
// vice versa) never collide mid-walk, and parallel file materialization
// via a worker pool (grounded on internal/compact/compactor.go's
// channel fan-out, upgraded to golang.org/x/sync/errgroup for
// first-error propagation and cancellation).
package output

import (
	"context"
	"crypto/sha256"
	"encoding/base32"
	"fmt"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/weftvcs/weft/internal/graph"
	"github.com/weftvcs/weft/internal/pristine"
	"github.com/weftvcs/weft/internal/vertexbuf"
)

// WorkingCopy is the minimal filesystem boundary output writes
// through (spec §6's working-copy interface, restricted to the
// operations output needs).
type WorkingCopy interface {
	WriteFile(path string, content []byte, conflicts []vertexbuf.Conflict) error
	Rename(oldPath, newPath string) error
	Remove(path string) error
	CreateDirAll(path string) error
}

// Options configures a single OutputRepository run.
type Options struct {
	Concurrency int // worker pool size; defaults to 4
}

// Plan is one file the walk decided needs writing, keyed by its final
// path and the inode that names it. Conflicts is non-empty only when
// the walk found this file's vertex contested (spec §4.3); its sides
// are appended as marker blocks after Content.
type Plan struct {
	Path      string
	Inode     graph.Inode
	Content   []byte
	Conflicts []vertexbuf.Conflict
}

// OutputRepository walks channelName's alive tree, writes every alive
// file to wc (whether or not it changed), and removes files whose
// inode is no longer alive. Renames happen in two phases (spec §5 "a
// rename never writes through a path that might still be occupied by
// something else mid-walk"): first every file's content is written
// under a temporary stem derived from its inode's hash, then every
// temporary is renamed to
// its real final name, so a swap (A renamed to B, B renamed to A)
// never transiently collides.
func OutputRepository(ctx context.Context, tx *pristine.Tx, channelName string, cs ChangeStore, wc WorkingCopy, opts Options) error {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}

	plans, err := walkLevelOrder(ctx, tx, channelName, cs)
	if err != nil {
		return fmt.Errorf("output: walk: %w", err)
	}

	tempNames := make(map[string]string, len(plans))
	for _, p := range plans {
		tempNames[p.Path] = tempStem(p.Inode)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)
	for _, p := range plans {
		p := p
		g.Go(func() error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return writeViaTemp(wc, p, tempNames[p.Path])
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("output: materialize: %w", err)
	}

	g2, _ := errgroup.WithContext(ctx)
	g2.SetLimit(opts.Concurrency)
	for _, p := range plans {
		p := p
		g2.Go(func() error {
			return wc.Rename(tempNames[p.Path], p.Path)
		})
	}
	if err := g2.Wait(); err != nil {
		return fmt.Errorf("output: finalize rename: %w", err)
	}

	return drainDeadFiles(tx, channelName, wc, plans)
}

func writeViaTemp(wc WorkingCopy, p Plan, temp string) error {
	if err := wc.CreateDirAll(filepath.Dir(p.Path)); err != nil {
		return err
	}
	return wc.WriteFile(temp, p.Content, p.Conflicts)
}

// tempStem derives a collision-proof temporary filename from inode's
// hash: base32 of the sha256 of the inode number, not of a graph
// position (grounded
// on the teacher's base36 hash-ID idiom in internal/idgen, adapted to
// base32 here because output temp names land directly on a
// case-insensitive filesystem on some platforms).
func tempStem(inode graph.Inode) string {
	sum := sha256.Sum256(inode.Encode())
	return ".weft-tmp-" + base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(sum[:10])
}
