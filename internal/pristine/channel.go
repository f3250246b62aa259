package pristine

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

// Table names the five per-channel tables from spec §3, plus the
// counter/meta keys stored alongside them.
type Table string

const (
	TableGraph      Table = "graph"
	TableChanges    Table = "changes"
	TableRevChanges Table = "revchanges"
	TableStates     Table = "states"
	TableTags       Table = "tags"
	TableMeta       Table = "meta" // apply_counter, last_modified, id, name
)

var metaApplyCounterKey = []byte("apply_counter")
var metaLastModifiedKey = []byte("last_modified")
var metaIDKey = []byte("id")
var metaNameKey = []byte("name")

// channelsRoot returns the top-level "channels" bucket.
func channelsRoot(btx *bolt.Tx) (*bolt.Bucket, error) {
	b := btx.Bucket([]byte(RootChannels))
	if b == nil {
		return nil, fmt.Errorf("%w: missing channels root", ErrCorruption)
	}
	return b, nil
}

// CreateChannel creates a new, empty named channel with its five
// tables. Returns an error if the name is already in use.
func (tx *Tx) CreateChannel(name string) error {
	root, err := channelsRoot(tx.btx)
	if err != nil {
		return err
	}
	cb, err := root.CreateBucket([]byte(name))
	if err != nil {
		return fmt.Errorf("create channel %q: %w", name, err)
	}
	for _, t := range []Table{TableGraph, TableChanges, TableRevChanges, TableStates, TableTags, TableMeta} {
		if _, err := cb.CreateBucketIfNotExists([]byte(t)); err != nil {
			return fmt.Errorf("%w: create table %s/%s: %v", ErrCorruption, name, t, err)
		}
	}
	meta := cb.Bucket([]byte(TableMeta))
	zero := make([]byte, 8)
	if err := meta.Put(metaApplyCounterKey, zero); err != nil {
		return err
	}
	if err := meta.Put(metaNameKey, []byte(name)); err != nil {
		return err
	}
	id := uuid.New()
	if err := meta.Put(metaIDKey, id[:]); err != nil {
		return err
	}
	return putLastModified(meta, time.Now().UTC())
}

func putLastModified(meta *bolt.Bucket, t time.Time) error {
	ts, err := t.MarshalBinary()
	if err != nil {
		return err
	}
	return meta.Put(metaLastModifiedKey, ts)
}

// ChannelID returns name's stable 16-byte identity, allocated once at
// creation (spec §3 "Channel.id"). Distinct from the dense, per-
// repository ChangeIDs changes get on first apply — a channel's id
// names the channel itself across forks and renames, for a future
// remote transport to distinguish one peer's copy of a channel from
// another's.
func (tx *Tx) ChannelID(name string) (uuid.UUID, error) {
	return channelID(tx.btx, name)
}

// ChannelID (read-only) is ChannelID's snapshot-transaction counterpart.
func (tx *ReadTx) ChannelID(name string) (uuid.UUID, error) {
	return channelID(tx.btx, name)
}

func channelID(btx *bolt.Tx, name string) (uuid.UUID, error) {
	b, err := tableBucket(btx, name, TableMeta)
	if err != nil {
		return uuid.UUID{}, err
	}
	v := b.Get(metaIDKey)
	if v == nil {
		return uuid.UUID{}, fmt.Errorf("%w: channel %q missing id", ErrCorruption, name)
	}
	id, err := uuid.FromBytes(v)
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("%w: channel %q: %v", ErrCorruption, name, err)
	}
	return id, nil
}

// ChannelLastModified returns the timestamp of the most recent
// TouchChannel call (set on every successful apply).
func (tx *Tx) ChannelLastModified(name string) (time.Time, error) {
	return channelLastModified(tx.btx, name)
}

// ChannelLastModified (read-only) is ChannelLastModified's snapshot-
// transaction counterpart.
func (tx *ReadTx) ChannelLastModified(name string) (time.Time, error) {
	return channelLastModified(tx.btx, name)
}

func channelLastModified(btx *bolt.Tx, name string) (time.Time, error) {
	b, err := tableBucket(btx, name, TableMeta)
	if err != nil {
		return time.Time{}, err
	}
	v := b.Get(metaLastModifiedKey)
	if v == nil {
		return time.Time{}, nil
	}
	var t time.Time
	if err := t.UnmarshalBinary(v); err != nil {
		return time.Time{}, fmt.Errorf("%w: channel %q: %v", ErrCorruption, name, err)
	}
	return t, nil
}

// TouchChannel stamps name's last-modified time with the current time;
// called after every successful apply (spec §3 channel metadata).
func (tx *Tx) TouchChannel(name string) error {
	b, err := tableBucket(tx.btx, name, TableMeta)
	if err != nil {
		return err
	}
	return putLastModified(b, time.Now().UTC())
}

// ForkChannel creates dst as a copy of src's five tables (spec §3
// "forked (copy-on-write share of all five tables)"; see ForkDB's doc
// comment for why this is an O(n) copy rather than a true COW share).
func (tx *Tx) ForkChannel(src, dst string) error {
	root, err := channelsRoot(tx.btx)
	if err != nil {
		return err
	}
	srcB := root.Bucket([]byte(src))
	if srcB == nil {
		return fmt.Errorf("fork channel: source %q not found", src)
	}
	dstB, err := root.CreateBucket([]byte(dst))
	if err != nil {
		return fmt.Errorf("fork channel: dst %q: %w", dst, err)
	}
	if err := srcB.ForEachBucket(func(name []byte, b *bolt.Bucket) error {
		nb, err := dstB.CreateBucketIfNotExists(name)
		if err != nil {
			return err
		}
		return b.ForEach(func(k, v []byte) error {
			return nb.Put(append([]byte{}, k...), append([]byte{}, v...))
		})
	}); err != nil {
		return err
	}
	// The copied meta bucket still carries src's name; correct it so a
	// later reader of dst's meta sees dst, not the channel it was
	// copied from (its id is left alone: a fork or rename keeps its
	// source's identity, and nothing later assigns it a new one).
	dstMeta := dstB.Bucket([]byte(TableMeta))
	return dstMeta.Put(metaNameKey, []byte(dst))
}

// RenameChannel renames src to dst.
func (tx *Tx) RenameChannel(src, dst string) error {
	root, err := channelsRoot(tx.btx)
	if err != nil {
		return err
	}
	if err := tx.ForkChannel(src, dst); err != nil {
		return err
	}
	return root.DeleteBucket([]byte(src))
}

// DropChannel removes a channel's tables entirely.
func (tx *Tx) DropChannel(name string) error {
	root, err := channelsRoot(tx.btx)
	if err != nil {
		return err
	}
	return root.DeleteBucket([]byte(name))
}

// ListChannels returns every channel name.
func (tx *ReadTx) ListChannels() ([]string, error) {
	root, err := channelsRoot(tx.btx)
	if err != nil {
		return nil, err
	}
	var names []string
	err = root.ForEach(func(k, v []byte) error {
		if v == nil { // only buckets, not stray keys
			names = append(names, string(k))
		}
		return nil
	})
	return names, err
}

func tableBucket(btx *bolt.Tx, channel string, table Table) (*bolt.Bucket, error) {
	root, err := channelsRoot(btx)
	if err != nil {
		return nil, err
	}
	cb := root.Bucket([]byte(channel))
	if cb == nil {
		return nil, fmt.Errorf("channel %q not found", channel)
	}
	tb := cb.Bucket([]byte(table))
	if tb == nil {
		return nil, fmt.Errorf("%w: missing table %s/%s", ErrCorruption, channel, table)
	}
	return tb, nil
}

// ChanGet reads key from one of channel's tables.
func (tx *Tx) ChanGet(channel string, table Table, key []byte) ([]byte, error) {
	b, err := tableBucket(tx.btx, channel, table)
	if err != nil {
		return nil, err
	}
	v := b.Get(key)
	if v == nil {
		return nil, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

// ChanPut writes key/value into one of channel's tables.
func (tx *Tx) ChanPut(channel string, table Table, key, value []byte) error {
	b, err := tableBucket(tx.btx, channel, table)
	if err != nil {
		return err
	}
	return b.Put(key, value)
}

// ChanDel removes key from one of channel's tables.
func (tx *Tx) ChanDel(channel string, table Table, key []byte) error {
	b, err := tableBucket(tx.btx, channel, table)
	if err != nil {
		return err
	}
	return b.Delete(key)
}

// ChanCursor returns a cursor over one of channel's tables, seeked to
// the first key >= key.
func (tx *Tx) ChanCursor(channel string, table Table, key []byte) (*Cursor, []byte, []byte, error) {
	b, err := tableBucket(tx.btx, channel, table)
	if err != nil {
		return nil, nil, nil, err
	}
	c := b.Cursor()
	k, v := c.Seek(key)
	return &Cursor{c: c}, k, v, nil
}

// ChanGet (read-only) reads key from one of channel's tables in a
// snapshot transaction.
func (tx *ReadTx) ChanGet(channel string, table Table, key []byte) ([]byte, error) {
	b, err := tableBucket(tx.btx, channel, table)
	if err != nil {
		return nil, err
	}
	v := b.Get(key)
	if v == nil {
		return nil, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

// ChanCursor (read-only) returns a cursor seeked to the first key >= key.
func (tx *ReadTx) ChanCursor(channel string, table Table, key []byte) (*Cursor, []byte, []byte, error) {
	b, err := tableBucket(tx.btx, channel, table)
	if err != nil {
		return nil, nil, nil, err
	}
	c := b.Cursor()
	k, v := c.Seek(key)
	return &Cursor{c: c}, k, v, nil
}

// NextApplyCounter returns the channel's next apply timestamp and
// advances the stored counter. This is the dense, total ordering used
// for deterministic conflict resolution (spec §5).
func (tx *Tx) NextApplyCounter(channel string) (uint64, error) {
	b, err := tableBucket(tx.btx, channel, TableMeta)
	if err != nil {
		return 0, err
	}
	v := b.Get(metaApplyCounterKey)
	var counter uint64
	for i := 0; i < 8 && i < len(v); i++ {
		counter |= uint64(v[i]) << (8 * i)
	}
	next := counter
	counter++
	buf := make([]byte, 8)
	for i := 0; i < 8; i++ {
		buf[i] = byte(counter >> (8 * i))
	}
	if err := b.Put(metaApplyCounterKey, buf); err != nil {
		return 0, err
	}
	return next, nil
}

// SetApplyCounter forcibly sets the channel's next apply timestamp;
// used by unrecord to rewind the counter after truncating the states
// index.
func (tx *Tx) SetApplyCounter(channel string, next uint64) error {
	b, err := tableBucket(tx.btx, channel, TableMeta)
	if err != nil {
		return err
	}
	buf := make([]byte, 8)
	for i := 0; i < 8; i++ {
		buf[i] = byte(next >> (8 * i))
	}
	return b.Put(metaApplyCounterKey, buf)
}
