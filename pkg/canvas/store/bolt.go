package store

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketMeta    = []byte("meta")
	bucketChunks  = []byte("chunks")
	bucketObjects = []byte("objects")
	bucketJournal = []byte("journal")
)

// boltLockTimeout bounds how long Open waits for bbolt's own file lock.
const boltLockTimeout = 100 * time.Millisecond

// Bolt is a [Store] backed by a single bbolt file.
//
// Every update is its own bbolt transaction, which fsyncs on commit. Journal
// sequence numbers come from the journal bucket's persisted sequence, so
// they stay monotonic across truncation and reopen.
type Bolt struct {
	path string

	mu sync.Mutex
	db *bolt.DB
}

// NewBolt returns an unopened bbolt store for path.
func NewBolt(path string) *Bolt {
	return &Bolt{path: path}
}

// Path returns the database file path.
func (b *Bolt) Path() string {
	return b.path
}

// Open opens the file (bbolt holds an exclusive flock while open) and creates
// the buckets. Opening an already open store is a no-op.
func (b *Bolt) Open(ctx context.Context) error {
	if ctx == nil {
		return errors.New("open bolt: context is nil")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.db != nil {
		return nil
	}

	if b.path == "" {
		return errors.New("open bolt: path is empty")
	}

	err := os.MkdirAll(filepath.Dir(b.path), 0o750)
	if err != nil {
		return fmt.Errorf("open bolt: create parent dir: %w", err)
	}

	db, err := bolt.Open(b.path, 0o600, &bolt.Options{Timeout: boltLockTimeout})
	if err != nil {
		if errors.Is(err, bolt.ErrTimeout) {
			return fmt.Errorf("open bolt %s: %w", b.path, ErrLocked)
		}

		return fmt.Errorf("open bolt: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketMeta, bucketChunks, bucketObjects, bucketJournal} {
			_, err := tx.CreateBucketIfNotExists(name)
			if err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}

		return nil
	})
	if err != nil {
		return errors.Join(fmt.Errorf("open bolt: %w", err), db.Close())
	}

	b.db = db

	return nil
}

// Close releases the file. Safe on nil, idempotent.
func (b *Bolt) Close() error {
	if b == nil {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.db == nil {
		return nil
	}

	err := b.db.Close()
	b.db = nil

	if err != nil {
		return fmt.Errorf("bolt: close: %w", err)
	}

	return nil
}

func (b *Bolt) conn() (*bolt.DB, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.db == nil {
		return nil, ErrNotConnected
	}

	return b.db, nil
}

func (b *Bolt) view(ctx context.Context, fn func(tx *bolt.Tx) error) error {
	db, err := b.conn()
	if err != nil {
		return err
	}

	err = ctx.Err()
	if err != nil {
		return context.Cause(ctx)
	}

	return db.View(fn)
}

func (b *Bolt) update(ctx context.Context, fn func(tx *bolt.Tx) error) error {
	db, err := b.conn()
	if err != nil {
		return err
	}

	err = ctx.Err()
	if err != nil {
		return context.Cause(ctx)
	}

	return db.Update(fn)
}

func (b *Bolt) GetMeta(ctx context.Context, key string) ([]byte, error) {
	var value []byte

	err := b.view(ctx, func(tx *bolt.Tx) error {
		value = cloneBytes(tx.Bucket(bucketMeta).Get([]byte(key)))

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get meta %q: %w", key, err)
	}

	return value, nil
}

func (b *Bolt) SetMeta(ctx context.Context, key string, value []byte) error {
	err := b.update(ctx, func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMeta).Put([]byte(key), nonNil(value))
	})
	if err != nil {
		return fmt.Errorf("set meta %q: %w", key, err)
	}

	return nil
}

func (b *Bolt) GetChunk(ctx context.Context, cx, cy int) ([]byte, error) {
	var data []byte

	err := b.view(ctx, func(tx *bolt.Tx) error {
		data = cloneBytes(tx.Bucket(bucketChunks).Get(chunkKey(cx, cy)))

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get chunk (%d,%d): %w", cx, cy, err)
	}

	return data, nil
}

func (b *Bolt) PutChunk(ctx context.Context, cx, cy int, data []byte) error {
	err := b.update(ctx, func(tx *bolt.Tx) error {
		return tx.Bucket(bucketChunks).Put(chunkKey(cx, cy), nonNil(data))
	})
	if err != nil {
		return fmt.Errorf("put chunk (%d,%d): %w", cx, cy, err)
	}

	return nil
}

func (b *Bolt) DeleteChunk(ctx context.Context, cx, cy int) error {
	err := b.update(ctx, func(tx *bolt.Tx) error {
		return tx.Bucket(bucketChunks).Delete(chunkKey(cx, cy))
	})
	if err != nil {
		return fmt.Errorf("delete chunk (%d,%d): %w", cx, cy, err)
	}

	return nil
}

func (b *Bolt) AllObjects(ctx context.Context) ([]ObjectRow, error) {
	var out []ObjectRow

	err := b.view(ctx, func(tx *bolt.Tx) error {
		return tx.Bucket(bucketObjects).ForEach(func(k, v []byte) error {
			typ, data, err := decodeObjectValue(v)
			if err != nil {
				return fmt.Errorf("object %s: %w", k, err)
			}

			out = append(out, ObjectRow{ID: string(k), Type: typ, Data: data})

			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list objects: %w", err)
	}

	return out, nil
}

func (b *Bolt) PutObject(ctx context.Context, id, typ string, data []byte) error {
	if id == "" {
		return errors.New("put object: id is empty")
	}

	err := b.update(ctx, func(tx *bolt.Tx) error {
		return tx.Bucket(bucketObjects).Put([]byte(id), encodeObjectValue(typ, data))
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", id, err)
	}

	return nil
}

func (b *Bolt) DeleteObject(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}

	err := b.update(ctx, func(tx *bolt.Tx) error {
		return tx.Bucket(bucketObjects).Delete([]byte(id))
	})
	if err != nil {
		return fmt.Errorf("delete object %s: %w", id, err)
	}

	return nil
}

func (b *Bolt) AppendJournal(ctx context.Context, timestamp int64, op []byte) (uint64, error) {
	var seq uint64

	err := b.update(ctx, func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketJournal)

		next, err := bucket.NextSequence()
		if err != nil {
			return err
		}

		value := make([]byte, 8+len(op))
		binary.BigEndian.PutUint64(value, uint64(timestamp))
		copy(value[8:], op)

		err = bucket.Put(seqKey(next), value)
		if err != nil {
			return err
		}

		seq = next

		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("append journal: %w", err)
	}

	return seq, nil
}

func (b *Bolt) JournalAfter(ctx context.Context, after uint64) ([]JournalEntry, error) {
	var out []JournalEntry

	err := b.view(ctx, func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketJournal).Cursor()

		for k, v := c.Seek(seqKey(after + 1)); k != nil; k, v = c.Next() {
			if len(k) != 8 || len(v) < 8 {
				return fmt.Errorf("malformed journal entry %x", k)
			}

			out = append(out, JournalEntry{
				Seq:       binary.BigEndian.Uint64(k),
				Timestamp: int64(binary.BigEndian.Uint64(v[:8])),
				Op:        cloneBytes(v[8:]),
			})
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read journal: %w", err)
	}

	return out, nil
}

func (b *Bolt) LastJournalSeq(ctx context.Context) (uint64, error) {
	var seq uint64

	err := b.view(ctx, func(tx *bolt.Tx) error {
		k, _ := tx.Bucket(bucketJournal).Cursor().Last()
		if k != nil {
			seq = binary.BigEndian.Uint64(k)
		}

		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("last journal seq: %w", err)
	}

	return seq, nil
}

func (b *Bolt) TruncateJournalBefore(ctx context.Context, upTo uint64) error {
	err := b.update(ctx, func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketJournal)
		limit := seqKey(upTo)

		// Collect first: deleting under a live cursor can skip keys.
		var keys [][]byte

		c := bucket.Cursor()
		for k, _ := c.First(); k != nil && bytes.Compare(k, limit) <= 0; k, _ = c.Next() {
			keys = append(keys, cloneBytes(k))
		}

		for _, k := range keys {
			err := bucket.Delete(k)
			if err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("truncate journal: %w", err)
	}

	return nil
}

func seqKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)

	return key
}

// chunkKey flips the sign bit so negative coordinates sort before positive ones.
func chunkKey(cx, cy int) []byte {
	key := make([]byte, 16)
	binary.BigEndian.PutUint64(key[:8], uint64(int64(cx))^(1<<63))
	binary.BigEndian.PutUint64(key[8:], uint64(int64(cy))^(1<<63))

	return key
}

// encodeObjectValue frames an object as uvarint(len(type)) | type | data.
func encodeObjectValue(typ string, data []byte) []byte {
	out := binary.AppendUvarint(make([]byte, 0, binary.MaxVarintLen64+len(typ)+len(data)), uint64(len(typ)))
	out = append(out, typ...)

	return append(out, data...)
}

func decodeObjectValue(v []byte) (string, []byte, error) {
	n, width := binary.Uvarint(v)
	if width <= 0 || n > uint64(len(v)-width) {
		return "", nil, errors.New("malformed object value")
	}

	typ := string(v[width : width+int(n)])

	return typ, cloneBytes(v[width+int(n):]), nil
}

// cloneBytes copies bbolt memory that is only valid inside the transaction.
func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}

	out := make([]byte, len(b))
	copy(out, b)

	return out
}

func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}

	return b
}
