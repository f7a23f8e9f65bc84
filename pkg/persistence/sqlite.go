package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

const sqliteBlobSchemaV1 = `
CREATE TABLE IF NOT EXISTS conversation_states (
    key TEXT PRIMARY KEY,
    payload_json TEXT NOT NULL,
    updated_at_ms INTEGER NOT NULL DEFAULT 0
);
`

// DefaultSQLiteKey is the row used when no key is given.
const DefaultSQLiteKey = "default"

// SQLiteBlobStore keeps one state blob per key in a SQLite database, so
// several conversations can share one file.
type SQLiteBlobStore struct {
	mu     sync.Mutex
	dsn    string
	key    string
	db     *sql.DB
	closed bool
}

var _ BlobStore = (*SQLiteBlobStore)(nil)

func NewSQLiteBlobStore(dsn string, key string) (*SQLiteBlobStore, error) {
	if dsn == "" {
		return nil, errors.New("sqlite blob store: empty dsn")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		key = DefaultSQLiteKey
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "could not open sqlite database")
	}

	s := &SQLiteBlobStore{
		dsn: dsn,
		key: key,
		db:  db,
	}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteBlobStore) Key() string {
	return s.key
}

func (s *SQLiteBlobStore) Save(ctx context.Context, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureOpen(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO conversation_states (key, payload_json, updated_at_ms)
VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET payload_json = excluded.payload_json, updated_at_ms = excluded.updated_at_ms`,
		s.key,
		string(data),
		time.Now().UnixMilli(),
	)
	if err != nil {
		return errors.Wrapf(err, "could not save state %q", s.key)
	}
	return nil
}

func (s *SQLiteBlobStore) Load(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload_json FROM conversation_states WHERE key = ?`, s.key).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "could not load state %q", s.key)
	}
	return []byte(payload), nil
}

// Keys lists the stored conversation keys in alphabetical order.
func (s *SQLiteBlobStore) Keys(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM conversation_states ORDER BY key ASC`)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var ret []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		ret = append(ret, k)
	}
	return ret, rows.Err()
}

func (s *SQLiteBlobStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLiteBlobStore) migrate() error {
	if s.db == nil {
		return errors.New("sqlite blob store: db is nil")
	}
	if _, err := s.db.Exec(sqliteBlobSchemaV1); err != nil {
		return errors.Wrap(err, "could not create sqlite schema")
	}
	return nil
}

func (s *SQLiteBlobStore) ensureOpen() error {
	if s.closed {
		return errors.New("sqlite blob store closed")
	}
	if s.db == nil {
		return errors.New("sqlite blob store db is nil")
	}
	return nil
}

func SQLiteDSNForFile(path string) (string, error) {
	if path == "" {
		return "", errors.New("sqlite blob store: empty path")
	}
	return fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", path), nil
}
