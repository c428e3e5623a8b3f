package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver

	"github.com/calvinalkan/asciicanvas/internal/fs"
)

const (
	// schemaVersion is stored in PRAGMA user_version.
	schemaVersion = 1
	// sqliteBusyTimeout is the time SQLite waits when the database is locked.
	sqliteBusyTimeout = 10000 // milliseconds
)

// ErrSchemaVersion is returned by Open when the document was written by a
// newer schema.
var ErrSchemaVersion = errors.New("unsupported schema version")

// SQLite is the default [Store] backend: one SQLite file per document.
//
// The journal uses AUTOINCREMENT so sequence numbers are never reused, even
// after every entry has been truncated. An exclusive flock on path+".lock"
// keeps the document to one writer.
type SQLite struct {
	path string

	mu   sync.Mutex
	db   *sql.DB
	lock *fs.Lock
}

// NewSQLite returns an unopened SQLite store for path.
func NewSQLite(path string) *SQLite {
	return &SQLite{path: path}
}

// Path returns the database file path.
func (s *SQLite) Path() string {
	return s.path
}

// Open takes the writer lock, opens the database and ensures the schema.
// Opening an already open store is a no-op.
func (s *SQLite) Open(ctx context.Context) error {
	if ctx == nil {
		return errors.New("open sqlite: context is nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return nil
	}

	if s.path == "" {
		return errors.New("open sqlite: path is empty")
	}

	err := os.MkdirAll(filepath.Dir(s.path), 0o750)
	if err != nil {
		return fmt.Errorf("open sqlite: create parent dir: %w", err)
	}

	lock, err := fs.NewLocker().TryLock(s.path + ".lock")
	if err != nil {
		if errors.Is(err, fs.ErrWouldBlock) {
			return fmt.Errorf("open sqlite %s: %w", s.path, ErrLocked)
		}

		return fmt.Errorf("open sqlite: %w", err)
	}

	db, err := openSqlite(ctx, s.path)
	if err != nil {
		return errors.Join(err, lock.Close())
	}

	err = ensureSchema(ctx, db)
	if err != nil {
		return errors.Join(err, db.Close(), lock.Close())
	}

	s.db = db
	s.lock = lock

	return nil
}

// Close releases the database handle and the writer lock. Safe on nil,
// idempotent.
func (s *SQLite) Close() error {
	if s == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error

	if s.db != nil {
		err := s.db.Close()
		if err != nil {
			errs = append(errs, fmt.Errorf("sqlite: close: %w", err))
		}

		s.db = nil
	}

	if s.lock != nil {
		err := s.lock.Close()
		if err != nil {
			errs = append(errs, fmt.Errorf("sqlite: release lock: %w", err))
		}

		s.lock = nil
	}

	return errors.Join(errs...)
}

// conn returns the open handle or ErrNotConnected.
func (s *SQLite) conn() (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil, ErrNotConnected
	}

	return s.db, nil
}

func (s *SQLite) GetMeta(ctx context.Context, key string) ([]byte, error) {
	db, err := s.conn()
	if err != nil {
		return nil, fmt.Errorf("get meta %q: %w", key, err)
	}

	var value []byte

	err = db.QueryRowContext(ctx, "SELECT value FROM meta WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("get meta %q: %w", key, err)
	}

	if value == nil {
		value = []byte{}
	}

	return value, nil
}

func (s *SQLite) SetMeta(ctx context.Context, key string, value []byte) error {
	db, err := s.conn()
	if err != nil {
		return fmt.Errorf("set meta %q: %w", key, err)
	}

	_, err = db.ExecContext(ctx, "INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)", key, value)
	if err != nil {
		return fmt.Errorf("set meta %q: %w", key, err)
	}

	return nil
}

func (s *SQLite) GetChunk(ctx context.Context, cx, cy int) ([]byte, error) {
	db, err := s.conn()
	if err != nil {
		return nil, fmt.Errorf("get chunk (%d,%d): %w", cx, cy, err)
	}

	var data []byte

	err = db.QueryRowContext(ctx, "SELECT data FROM chunks WHERE cx = ? AND cy = ?", cx, cy).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("get chunk (%d,%d): %w", cx, cy, err)
	}

	return data, nil
}

func (s *SQLite) PutChunk(ctx context.Context, cx, cy int, data []byte) error {
	db, err := s.conn()
	if err != nil {
		return fmt.Errorf("put chunk (%d,%d): %w", cx, cy, err)
	}

	_, err = db.ExecContext(ctx, "INSERT OR REPLACE INTO chunks (cx, cy, data) VALUES (?, ?, ?)", cx, cy, data)
	if err != nil {
		return fmt.Errorf("put chunk (%d,%d): %w", cx, cy, err)
	}

	return nil
}

func (s *SQLite) DeleteChunk(ctx context.Context, cx, cy int) error {
	db, err := s.conn()
	if err != nil {
		return fmt.Errorf("delete chunk (%d,%d): %w", cx, cy, err)
	}

	_, err = db.ExecContext(ctx, "DELETE FROM chunks WHERE cx = ? AND cy = ?", cx, cy)
	if err != nil {
		return fmt.Errorf("delete chunk (%d,%d): %w", cx, cy, err)
	}

	return nil
}

func (s *SQLite) AllObjects(ctx context.Context) ([]ObjectRow, error) {
	db, err := s.conn()
	if err != nil {
		return nil, fmt.Errorf("list objects: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT id, type, data FROM objects ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list objects: %w", err)
	}

	defer func() { _ = rows.Close() }()

	var out []ObjectRow

	for rows.Next() {
		var row ObjectRow

		err = rows.Scan(&row.ID, &row.Type, &row.Data)
		if err != nil {
			return nil, fmt.Errorf("list objects: scan: %w", err)
		}

		out = append(out, row)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("list objects: %w", err)
	}

	return out, nil
}

func (s *SQLite) PutObject(ctx context.Context, id, typ string, data []byte) error {
	db, err := s.conn()
	if err != nil {
		return fmt.Errorf("put object %s: %w", id, err)
	}

	_, err = db.ExecContext(ctx, "INSERT OR REPLACE INTO objects (id, type, data) VALUES (?, ?, ?)", id, typ, data)
	if err != nil {
		return fmt.Errorf("put object %s: %w", id, err)
	}

	return nil
}

func (s *SQLite) DeleteObject(ctx context.Context, id string) error {
	db, err := s.conn()
	if err != nil {
		return fmt.Errorf("delete object %s: %w", id, err)
	}

	_, err = db.ExecContext(ctx, "DELETE FROM objects WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete object %s: %w", id, err)
	}

	return nil
}

func (s *SQLite) AppendJournal(ctx context.Context, timestamp int64, op []byte) (uint64, error) {
	db, err := s.conn()
	if err != nil {
		return 0, fmt.Errorf("append journal: %w", err)
	}

	res, err := db.ExecContext(ctx, "INSERT INTO journal (ts, op) VALUES (?, ?)", timestamp, op)
	if err != nil {
		return 0, fmt.Errorf("append journal: %w", err)
	}

	seq, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("append journal: last insert id: %w", err)
	}

	return uint64(seq), nil
}

func (s *SQLite) JournalAfter(ctx context.Context, after uint64) ([]JournalEntry, error) {
	db, err := s.conn()
	if err != nil {
		return nil, fmt.Errorf("read journal: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT seq, ts, op FROM journal WHERE seq > ? ORDER BY seq ASC", int64(after))
	if err != nil {
		return nil, fmt.Errorf("read journal: %w", err)
	}

	defer func() { _ = rows.Close() }()

	var out []JournalEntry

	for rows.Next() {
		var (
			seq   int64
			entry JournalEntry
		)

		err = rows.Scan(&seq, &entry.Timestamp, &entry.Op)
		if err != nil {
			return nil, fmt.Errorf("read journal: scan: %w", err)
		}

		entry.Seq = uint64(seq)
		out = append(out, entry)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("read journal: %w", err)
	}

	return out, nil
}

func (s *SQLite) LastJournalSeq(ctx context.Context) (uint64, error) {
	db, err := s.conn()
	if err != nil {
		return 0, fmt.Errorf("last journal seq: %w", err)
	}

	var seq sql.NullInt64

	err = db.QueryRowContext(ctx, "SELECT MAX(seq) FROM journal").Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("last journal seq: %w", err)
	}

	if !seq.Valid {
		return 0, nil
	}

	return uint64(seq.Int64), nil
}

func (s *SQLite) TruncateJournalBefore(ctx context.Context, upTo uint64) error {
	db, err := s.conn()
	if err != nil {
		return fmt.Errorf("truncate journal: %w", err)
	}

	_, err = db.ExecContext(ctx, "DELETE FROM journal WHERE seq <= ?", int64(upTo))
	if err != nil {
		return fmt.Errorf("truncate journal: %w", err)
	}

	return nil
}

// openSqlite opens the document database and applies the connection pragmas.
func openSqlite(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// Ensure per-connection PRAGMAs apply consistently.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	err = db.PingContext(ctx)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("ping sqlite: %w", err), db.Close())
	}

	_, err = db.ExecContext(ctx, fmt.Sprintf(`
		PRAGMA busy_timeout = %d;
		PRAGMA journal_mode = WAL;
		PRAGMA synchronous = FULL;
		PRAGMA temp_store = MEMORY;
	`, sqliteBusyTimeout))
	if err != nil {
		return nil, errors.Join(fmt.Errorf("apply pragmas: %w", err), db.Close())
	}

	return db, nil
}

// ensureSchema creates the four tables on a fresh file and rejects files
// written by a newer schema.
func ensureSchema(ctx context.Context, db *sql.DB) error {
	var version int

	err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version)
	if err != nil {
		return fmt.Errorf("read user_version: %w", err)
	}

	if version > schemaVersion {
		return fmt.Errorf("%w: file has %d, want <= %d", ErrSchemaVersion, version, schemaVersion)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema txn: %w", err)
	}

	committed := false

	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	statements := []string{
		"CREATE TABLE IF NOT EXISTS meta (key TEXT PRIMARY KEY, value BLOB)",
		"CREATE TABLE IF NOT EXISTS chunks (cx INTEGER NOT NULL, cy INTEGER NOT NULL, data BLOB, PRIMARY KEY (cx, cy))",
		"CREATE TABLE IF NOT EXISTS objects (id TEXT PRIMARY KEY, type TEXT NOT NULL, data BLOB)",
		"CREATE TABLE IF NOT EXISTS journal (seq INTEGER PRIMARY KEY AUTOINCREMENT, ts INTEGER NOT NULL, op BLOB)",
		fmt.Sprintf("PRAGMA user_version = %d", schemaVersion),
	}

	for _, stmt := range statements {
		_, err = tx.ExecContext(ctx, stmt)
		if err != nil {
			return fmt.Errorf("apply schema statement %q: %w", stmt, err)
		}
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("commit schema txn: %w", err)
	}

	committed = true

	return nil
}
