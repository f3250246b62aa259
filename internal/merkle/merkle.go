// Package merkle implements the per-channel rolling state hash and the
// states index spec §4.2/§7 uses to let two channels (or two
// repositories) detect divergence without comparing their entire
// graphs, plus unrecord: rewinding a channel's states index and apply
// counter to a prior state. Grounded on internal/idgen/hash.go's
// sha256-plus-deterministic-encoding pattern and types.Issue's
// ComputeContentHash idiom (hash a canonical encoding of the current
// fact, not the history that produced it).
package merkle

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/weftvcs/weft/internal/graph"
	"github.com/weftvcs/weft/internal/pristine"
)

// State is the channel's rolling hash after its most recent apply: a
// digest of (previous state, applied change hash, apply counter) so
// two channels agree on State iff they applied the same changes in
// the same order (spec §7 "a state is a checkpoint; two channels in
// the same state are provably identical up to that point").
type State [32]byte

// Roll folds the application of (hash, counter) into prev, producing
// the channel's next state.
func Roll(prev State, hash graph.Hash, counter uint64) State {
	buf := make([]byte, 32+32+8)
	copy(buf[0:32], prev[:])
	copy(buf[32:64], hash[:])
	binary.BigEndian.PutUint64(buf[64:72], counter)
	return sha256.Sum256(buf)
}

// RecordState appends state to channelName's states index, keyed by
// apply counter so unrecord can find exactly which prefix of history
// to discard.
func RecordState(tx *pristine.Tx, channelName string, counter uint64, s State) error {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, counter)
	return tx.ChanPut(channelName, pristine.TableStates, key, s[:])
}

// chanReader is the read-only subset of *pristine.Tx/*pristine.ReadTx
// CurrentState and StateAt need, so either a writer transaction or a
// snapshot reader can ask what a channel's state is without taking the
// single writer lock just to read.
type chanReader interface {
	ChanGet(channel string, table pristine.Table, key []byte) ([]byte, error)
	ChanCursor(channel string, table pristine.Table, key []byte) (*pristine.Cursor, []byte, []byte, error)
}

// CurrentState returns the channel's most recently recorded state, or
// the zero state if nothing has been applied yet.
func CurrentState(tx chanReader, channelName string) (State, uint64, error) {
	c, k, v, err := tx.ChanCursor(channelName, pristine.TableStates, []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff})
	if err != nil {
		return State{}, 0, err
	}
	if k == nil {
		k, v = c.Prev()
	}
	if k == nil {
		return State{}, 0, nil
	}
	var s State
	copy(s[:], v)
	return s, binary.BigEndian.Uint64(k), nil
}

// StateAt returns the state recorded at exactly counter, if any — the
// basis for deciding how far two channels have diverged.
func StateAt(tx chanReader, channelName string, counter uint64) (State, bool, error) {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, counter)
	v, err := tx.ChanGet(channelName, pristine.TableStates, key)
	if err != nil || v == nil {
		return State{}, false, err
	}
	var s State
	copy(s[:], v)
	return s, true, nil
}

// Unrecord truncates channelName's states index back to (and
// including) cutoff, and rewinds the apply counter so a subsequent
// apply reuses the freed counter slots — the basis of `unrecord`/local
// history editing (spec §7, SUPPLEMENTED from original_source: the
// distilled spec only describes forward apply, but every patch-based
// VCS in the retrieval pack's lineage supports rewinding a channel to
// drop its most recent local changes).
func Unrecord(tx *pristine.Tx, channelName string, cutoff uint64) error {
	prefix := make([]byte, 8)
	binary.BigEndian.PutUint64(prefix, cutoff+1)
	c, k, _, err := tx.ChanCursor(channelName, pristine.TableStates, prefix)
	if err != nil {
		return err
	}
	var drop [][]byte
	for ; k != nil; k, _ = c.Next() {
		drop = append(drop, append([]byte{}, k...))
	}
	for _, k := range drop {
		if err := tx.ChanDel(channelName, pristine.TableStates, k); err != nil {
			return err
		}
	}
	return tx.SetApplyCounter(channelName, cutoff+1)
}
