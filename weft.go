// Package weft provides the public API for embedding the repository
// engine in other Go programs: opening a store, applying changes,
// running repair, and reconciling a channel onto a working copy. Most
// callers should use this package rather than internal/pristine,
// internal/apply and internal/output directly — Repository wires them
// together the way cmd/weft's debug CLI does, so the two never drift.
package weft

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/weftvcs/weft/internal/apply"
	"github.com/weftvcs/weft/internal/change"
	"github.com/weftvcs/weft/internal/collab"
	"github.com/weftvcs/weft/internal/graph"
	"github.com/weftvcs/weft/internal/merkle"
	"github.com/weftvcs/weft/internal/output"
	"github.com/weftvcs/weft/internal/pristine"
	"github.com/weftvcs/weft/internal/repair"
)

// Core re-exported types for callers who only need the vocabulary, not
// the storage internals.
type (
	Change   = change.Change
	Hash     = graph.Hash
	ChangeID = graph.ChangeID
)

// Repository wraps an open pristine store; every method that works on
// a channel takes the channel's name as an argument.
type Repository struct {
	store *pristine.Store
}

// Open opens (creating if absent) the repository at path.
func Open(path string, opts pristine.OpenOptions) (*Repository, error) {
	store, err := pristine.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("weft: open: %w", err)
	}
	return &Repository{store: store}, nil
}

// Close releases the underlying store.
func (r *Repository) Close() error {
	return r.store.Close()
}

// CreateChannel creates a new, empty channel, seeded with the
// repository root marker vertex every change's up-context can anchor
// to via the zero hash (see pristine.internRootChange).
func (r *Repository) CreateChannel(ctx context.Context, name string) error {
	return r.store.Update(ctx, func(tx *pristine.Tx) error {
		if err := tx.CreateChannel(name); err != nil {
			return err
		}
		return graph.PutVertex(tx, name, graph.Root)
	})
}

// ForkChannel creates dst as a copy of src.
func (r *Repository) ForkChannel(ctx context.Context, src, dst string) error {
	return r.store.Update(ctx, func(tx *pristine.Tx) error {
		return tx.ForkChannel(src, dst)
	})
}

// ApplyChange applies c to channelName, returning its assigned id.
// ApplyChange already runs every repair pass on channelName as part of
// the same write transaction (spec §4.2/§4.3: repair runs after every
// apply, not as a separate step a caller must remember), so callers
// never need to follow it with a Repair call of their own.
func (r *Repository) ApplyChange(ctx context.Context, channelName string, c *Change) (ChangeID, error) {
	return apply.ApplyChange(ctx, r.store, channelName, c)
}

// Repair re-runs every repair pass over channelName and reports what it
// fixed. ApplyChange already repairs channelName after every apply, so
// this exists for channels that changed without going through
// ApplyChange — a channel forked from one repaired at an older schema,
// or one a future remote transport populated directly — not as a
// required second step after ApplyChange.
func (r *Repository) Repair(ctx context.Context, channelName string) (repair.Report, error) {
	var report repair.Report
	err := r.store.Update(ctx, func(tx *pristine.Tx) error {
		var err error
		report, err = repair.RunAll(tx, channelName)
		return err
	})
	return report, err
}

// Output materializes channelName's alive tree onto wc, using cs to
// resolve the byte content of each alive vertex.
func (r *Repository) Output(ctx context.Context, channelName string, cs collab.ChangeStore, wc collab.WorkingCopy, opts output.Options) error {
	return r.store.Update(ctx, func(tx *pristine.Tx) error {
		return output.OutputRepository(ctx, tx, channelName, cs, wc, opts)
	})
}

// ChannelID returns name's stable identity, allocated once when the
// channel was created. Distinct from any change's dense ChangeID; a
// future remote transport would use this to tell one peer's copy of a
// channel apart from another's.
func (r *Repository) ChannelID(name string) (uuid.UUID, error) {
	var id uuid.UUID
	err := r.store.View(func(tx *pristine.ReadTx) error {
		var err error
		id, err = tx.ChannelID(name)
		return err
	})
	return id, err
}

// ChannelLastModified returns the time of the most recent successful
// apply against name, or the channel's creation time if nothing has
// been applied to it yet.
func (r *Repository) ChannelLastModified(name string) (time.Time, error) {
	var t time.Time
	err := r.store.View(func(tx *pristine.ReadTx) error {
		var err error
		t, err = tx.ChannelLastModified(name)
		return err
	})
	return t, err
}

// ChannelState returns the rolling state hash recorded after
// channelName's most recent apply, and the apply counter it was
// recorded at. Two channels (in this repository or another) agree on
// State iff they have applied the same changes in the same order.
func (r *Repository) ChannelState(channelName string) (merkle.State, uint64, error) {
	var s merkle.State
	var counter uint64
	err := r.store.View(func(tx *pristine.ReadTx) error {
		var err error
		s, counter, err = merkle.CurrentState(tx, channelName)
		return err
	})
	return s, counter, err
}

// Unrecord rewinds channelName's history back to (and including)
// cutoff, discarding every state recorded after it and freeing the
// apply counters it held so a later apply can reuse them.
func (r *Repository) Unrecord(ctx context.Context, channelName string, cutoff uint64) error {
	return r.store.Update(ctx, func(tx *pristine.Tx) error {
		return merkle.Unrecord(tx, channelName, cutoff)
	})
}

// ListChannels returns every channel name in the repository.
func (r *Repository) ListChannels() ([]string, error) {
	var names []string
	err := r.store.View(func(tx *pristine.ReadTx) error {
		var err error
		names, err = tx.ListChannels()
		return err
	})
	return names, err
}
