package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"imagemanager/logging"
	"imagemanager/types"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

// DatabaseFileName is the sqlite file created inside the cache directory
const DatabaseFileName = "hashes.db"

// CacheStats summarizes the entries held by a cache store
type CacheStats struct {
	Location string
	Total    int64
	ByTag    map[string]int64
}

// DatabasePath returns the sqlite file used for a cache directory
func DatabasePath(dir string) string {
	return filepath.Join(dir, DatabaseFileName)
}

func dataSourceName(dir string) string {
	return fmt.Sprintf("file:%s?_busy_timeout=10000&_journal_mode=WAL&_synchronous=NORMAL", DatabasePath(dir))
}

// InitDatabase creates the cache directory if needed and migrates the schema
func InitDatabase(dir string) (*sql.DB, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create cache directory %s", dir)
	}

	db, err := sql.Open("sqlite3", dataSourceName(dir))
	if err != nil {
		return nil, errors.Wrapf(err, "open cache database in %s", dir)
	}
	if err := RunMigrate(db); err != nil {
		db.Close()
		return nil, err
	}

	logging.DebugLog("Cache database ready at %s", DatabasePath(dir))
	return db, nil
}

// OpenDatabase opens a handle on an already initialized cache directory
func OpenDatabase(dir string) (*sql.DB, error) {
	if _, err := os.Stat(DatabasePath(dir)); err != nil {
		return nil, errors.Wrapf(err, "cache database missing in %s", dir)
	}

	db, err := sql.Open("sqlite3", dataSourceName(dir))
	if err != nil {
		return nil, errors.Wrapf(err, "open cache database in %s", dir)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "ping cache database in %s", dir)
	}
	return db, nil
}

// SQLiteStore is a hash cache backed by a sqlite file
type SQLiteStore struct {
	dir string
	db  *sql.DB
}

// OpenSQLiteStore opens a store handle on an initialized cache directory
func OpenSQLiteStore(dir string) (*SQLiteStore, error) {
	db, err := OpenDatabase(dir)
	if err != nil {
		return nil, err
	}
	return &SQLiteStore{dir: dir, db: db}, nil
}

// Get looks up a cached hash value
func (s *SQLiteStore) Get(ctx context.Context, key types.HashKey) (types.HashValue, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM hashes WHERE algorithm = ? AND params = ? AND path = ? AND digest = ?",
		key.Algorithm, key.Params, string(key.Image), string(key.Digest),
	).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrapf(err, "lookup %s", key.Image)
	}
	return types.HashValue(value), true, nil
}

// PutIfAbsent stores value unless the key already holds one, and returns the
// value that ends up stored
func (s *SQLiteStore) PutIfAbsent(ctx context.Context, key types.HashKey, value types.HashValue, tag string) (types.HashValue, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO hashes (algorithm, params, path, digest, value, tag, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		key.Algorithm, key.Params, string(key.Image), string(key.Digest),
		string(value), tag, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return "", errors.Wrapf(err, "store hash for %s", key.Image)
	}

	stored, ok, err := s.Get(ctx, key)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", errors.Errorf("hash for %s vanished after insert", key.Image)
	}
	return stored, nil
}

// Stats counts entries per tag
func (s *SQLiteStore) Stats(ctx context.Context) (*CacheStats, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT tag, COUNT(*) FROM hashes GROUP BY tag ORDER BY tag")
	if err != nil {
		return nil, errors.Wrap(err, "failed to count cache entries")
	}
	defer rows.Close()

	stats := &CacheStats{Location: DatabasePath(s.dir), ByTag: map[string]int64{}}
	for rows.Next() {
		var tag string
		var count int64
		if err := rows.Scan(&tag, &count); err != nil {
			return nil, errors.Wrap(err, "failed to read cache stats")
		}
		stats.ByTag[tag] = count
		stats.Total += count
	}
	return stats, errors.Wrap(rows.Err(), "failed to read cache stats")
}

// EvictTag deletes every entry stored under tag and returns how many were removed
func (s *SQLiteStore) EvictTag(ctx context.Context, tag string) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM hashes WHERE tag = ?", tag)
	if err != nil {
		return 0, errors.Wrapf(err, "evict tag %s", tag)
	}
	return res.RowsAffected()
}

// Close releases the handle
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
