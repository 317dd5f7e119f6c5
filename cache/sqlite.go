package cache

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/glebarez/go-sqlite"
)

// SQLiteCache stores entries in a SQLite database file.
type SQLiteCache struct {
	db         *sql.DB
	writeMutex *sync.Mutex
}

// NewSQLiteCache creates a new cache with the given filename as the db.
// If file name is empty, a new in-memory db is opened.
func NewSQLiteCache(filename string) (SQLiteCache, error) {
	if filename == "" {
		filename = "file::memory:?cache=shared"
	}
	db, err := sql.Open("sqlite", filename)
	if err != nil {
		return SQLiteCache{}, fmt.Errorf("Could not open cache db %s: %w", filename, err)
	}
	for _, stmt := range []string{
		`CREATE TABLE IF NOT EXISTS cache (
			key TEXT PRIMARY KEY,
			expires INTEGER,
			bytes BLOB
		)`,
		"CREATE INDEX IF NOT EXISTS expires_idx ON cache (expires)",
		"PRAGMA journal_mode=WAL",
	} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return SQLiteCache{}, fmt.Errorf("Could not initialize cache db %s: %w", filename, err)
		}
	}
	return SQLiteCache{
		db:         db,
		writeMutex: &sync.Mutex{},
	}, nil
}

// keys are compared with the default BINARY collation, so a prefix is a
// half-open range
func prefixRange(prefix string) (string, string, bool) {
	end := prefixEnd([]byte(prefix))
	return prefix, string(end), end != nil
}

func (s SQLiteCache) All(prefix string) ([]CacheEntry, error) {
	entries := make([]CacheEntry, 0)
	start, end, bounded := prefixRange(prefix)
	var rows *sql.Rows
	var err error
	if bounded {
		rows, err = s.db.Query("SELECT key, expires, bytes FROM cache WHERE key >= ? AND key < ?", start, end)
	} else {
		rows, err = s.db.Query("SELECT key, expires, bytes FROM cache WHERE key >= ?", start)
	}
	if err != nil {
		return entries, err
	}
	defer rows.Close()
	for rows.Next() {
		var entry CacheEntry
		var exp int64
		if err := rows.Scan(&entry.Key, &exp, &entry.Bytes); err != nil {
			return entries, err
		}
		entry.Expires = fromUnix(exp)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (s SQLiteCache) Get(key string) (CacheEntry, bool, error) {
	entry := CacheEntry{Key: key}
	var exp int64
	err := s.db.QueryRow("SELECT expires, bytes FROM cache WHERE key = ?", key).Scan(&exp, &entry.Bytes)
	if err == sql.ErrNoRows {
		return CacheEntry{}, false, nil
	}
	if err != nil {
		return CacheEntry{}, false, err
	}
	entry.Expires = fromUnix(exp)
	return entry, true, nil
}

func (s SQLiteCache) Put(entry CacheEntry) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	_, err := s.db.Exec("INSERT OR REPLACE INTO cache (key, expires, bytes) VALUES (?, ?, ?)",
		entry.Key, toUnix(entry.Expires), entry.Bytes)
	return err
}

func (s SQLiteCache) Purge(key string) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	_, err := s.db.Exec("DELETE FROM cache WHERE key = ?", key)
	return err
}

func (s SQLiteCache) PurgePrefix(prefix string) (int, error) {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	start, end, bounded := prefixRange(prefix)
	var result sql.Result
	var err error
	if bounded {
		result, err = s.db.Exec("DELETE FROM cache WHERE key >= ? AND key < ?", start, end)
	} else {
		result, err = s.db.Exec("DELETE FROM cache WHERE key >= ?", start)
	}
	if err != nil {
		return 0, err
	}
	n, err := result.RowsAffected()
	return int(n), err
}

func (s SQLiteCache) PurgeExpired(now time.Time) (int, error) {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	result, err := s.db.Exec("DELETE FROM cache WHERE expires > 0 AND expires < ?", now.Unix())
	if err != nil {
		return 0, err
	}
	n, err := result.RowsAffected()
	return int(n), err
}

func (s SQLiteCache) Close() error {
	return s.db.Close()
}

func toUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func fromUnix(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0)
}
