package versioning

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const sqliteBlobSchema = `
CREATE TABLE IF NOT EXISTS blobs (
	hash TEXT PRIMARY KEY,
	size INTEGER NOT NULL,
	content BLOB NOT NULL,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// SQLiteBlobStore keeps blobs in a single SQLite table keyed by hex hash.
type SQLiteBlobStore struct {
	db   *sql.DB
	path string
}

func NewSQLiteBlobStore(path string) (*SQLiteBlobStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps ":memory:" databases coherent and avoids
	// SQLITE_BUSY between writers.
	db.SetMaxOpenConns(1)

	if path != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to enable WAL: %w", err)
		}
	}

	if _, err := db.Exec(sqliteBlobSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteBlobStore{db: db, path: path}, nil
}

func (s *SQLiteBlobStore) Get(ctx context.Context, hash ContentHash) ([]byte, error) {
	var content []byte
	err := s.db.QueryRowContext(ctx, `SELECT content FROM blobs WHERE hash = ?`, hash.String()).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBlobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read blob %s: %w", hash.Short(), err)
	}
	if content == nil {
		content = []byte{}
	}
	if ComputeContentHash(content) != hash {
		return nil, fmt.Errorf("%w: %s", ErrBlobCorrupt, hash.Short())
	}
	return content, nil
}

func (s *SQLiteBlobStore) Put(ctx context.Context, content []byte) (ContentHash, error) {
	hash := ComputeContentHash(content)
	if content == nil {
		content = []byte{}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO blobs (hash, size, content) VALUES (?, ?, ?)`,
		hash.String(), len(content), content)
	if err != nil {
		return ContentHash{}, fmt.Errorf("write blob %s: %w", hash.Short(), err)
	}
	return hash, nil
}

func (s *SQLiteBlobStore) Has(ctx context.Context, hash ContentHash) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM blobs WHERE hash = ?`, hash.String()).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *SQLiteBlobStore) Delete(ctx context.Context, hash ContentHash) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM blobs WHERE hash = ?`, hash.String())
	if err != nil {
		return fmt.Errorf("delete blob %s: %w", hash.Short(), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrBlobNotFound
	}
	return nil
}

func (s *SQLiteBlobStore) Stats(ctx context.Context) (BlobStats, error) {
	var stats BlobStats
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*), COALESCE(SUM(size), 0) FROM blobs`).Scan(&stats.Count, &stats.Bytes)
	if err != nil {
		return BlobStats{}, err
	}
	return stats, nil
}

func (s *SQLiteBlobStore) Path() string {
	return s.path
}

func (s *SQLiteBlobStore) Close() error {
	return s.db.Close()
}
