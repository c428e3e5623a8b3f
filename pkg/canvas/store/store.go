// Package store persists canvas documents.
//
// A document is four logical tables: key/value metadata, chunk payloads keyed
// by chunk coordinate, object payloads keyed by object id, and an append-only
// journal of operations keyed by a monotonic sequence number.
//
// Payloads are opaque bytes here; encoding and compression belong to the
// canvas package. Two backends implement [Store]: SQLite (the default) and
// bbolt. Both allow exactly one open writer per document.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ErrNotConnected is returned by every [Store] method called before Open
// succeeded or after Close.
var ErrNotConnected = errors.New("store not connected")

// ErrLocked is returned by Open when another writer holds the document.
var ErrLocked = errors.New("store locked by another writer")

// ErrUnknownBackend is returned by [New] for an unregistered backend name.
var ErrUnknownBackend = errors.New("unknown store backend")

// ObjectRow is one persisted object: its id, variant type tag and payload.
type ObjectRow struct {
	ID   string
	Type string
	Data []byte
}

// JournalEntry is one journaled operation.
type JournalEntry struct {
	Seq       uint64
	Timestamp int64 // unix seconds
	Op        []byte
}

// Store is durable storage for one canvas document.
//
// Journal appends are durable before AppendJournal returns. Chunk and object
// writes may be eventually durable: they are always reconstructible from the
// journal after the last checkpoint marker.
type Store interface {
	// Open connects and ensures the schema exists.
	Open(ctx context.Context) error
	// Close releases the connection. Safe to call multiple times.
	Close() error

	// GetMeta returns nil, nil when key is absent.
	GetMeta(ctx context.Context, key string) ([]byte, error)
	SetMeta(ctx context.Context, key string, value []byte) error

	// GetChunk returns nil, nil when the chunk has no persisted cells.
	GetChunk(ctx context.Context, cx, cy int) ([]byte, error)
	PutChunk(ctx context.Context, cx, cy int, data []byte) error
	DeleteChunk(ctx context.Context, cx, cy int) error

	AllObjects(ctx context.Context) ([]ObjectRow, error)
	PutObject(ctx context.Context, id, typ string, data []byte) error
	DeleteObject(ctx context.Context, id string) error

	// AppendJournal assigns the next sequence number. Sequence numbers are
	// strictly increasing for the life of the document, across reopen and
	// truncation.
	AppendJournal(ctx context.Context, timestamp int64, op []byte) (uint64, error)
	// JournalAfter returns entries with seq > after, ascending.
	JournalAfter(ctx context.Context, after uint64) ([]JournalEntry, error)
	// LastJournalSeq returns the highest seq present, 0 if the journal is empty.
	LastJournalSeq(ctx context.Context) (uint64, error)
	// TruncateJournalBefore deletes every entry with seq <= upTo.
	TruncateJournalBefore(ctx context.Context, upTo uint64) error
}

// Factory builds an unopened store for the document at path.
type Factory func(path string) Store

// Backend names accepted by [New].
const (
	BackendSQLite = "sqlite"
	BackendBolt   = "bolt"
)

var registry = struct {
	mu        sync.RWMutex
	factories map[string]Factory
}{
	factories: map[string]Factory{
		BackendSQLite: func(path string) Store { return NewSQLite(path) },
		BackendBolt:   func(path string) Store { return NewBolt(path) },
	},
}

// Register adds or replaces a backend factory.
func Register(name string, factory Factory) {
	name = normalizeBackend(name)
	if name == "" || factory == nil {
		return
	}

	registry.mu.Lock()
	defer registry.mu.Unlock()

	registry.factories[name] = factory
}

// Backends lists registered backend names, sorted.
func Backends() []string {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	names := make([]string, 0, len(registry.factories))
	for name := range registry.factories {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// New returns an unopened store for path using the named backend.
// An empty name selects SQLite.
func New(backend, path string) (Store, error) {
	if path == "" {
		return nil, errors.New("new store: path is empty")
	}

	name := normalizeBackend(backend)
	if name == "" {
		name = BackendSQLite
	}

	registry.mu.RLock()
	factory, ok := registry.factories[name]
	registry.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q (have %s)", ErrUnknownBackend, backend, strings.Join(Backends(), ", "))
	}

	return factory(path), nil
}

func normalizeBackend(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))

	switch name {
	case "sqlite3":
		return BackendSQLite
	case "bbolt", "boltdb":
		return BackendBolt
	default:
		return name
	}
}
