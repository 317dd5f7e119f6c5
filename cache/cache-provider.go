// Package cache contains the storage backends for the shared fragment cache.
package cache

import "time"

// CacheProvider is an interface for a cache provider.
// It stores and retrieves []byte values, which represent HTTP responses.
// It also keeps track of expiration times of cache entries.
// Keys share a prefix per request URI, so that all stored variants of one
// resource can be listed and invalidated together.
//
// Implementations must be thread-safe!
type CacheProvider interface {
	// All returns all cache entries that have the specific key prefix.
	All(prefix string) ([]CacheEntry, error)
	// Get returns the cache entry for the given key, if it exists.
	Get(key string) (CacheEntry, bool, error)
	// Put stores the entry, replacing any entry with the same key.
	Put(entry CacheEntry) error
	// Purge removes the cache entry for the given key.
	Purge(key string) error
	// PurgePrefix removes all entries with the given key prefix and returns
	// the number of removed entries.
	PurgePrefix(prefix string) (int, error)
	// PurgeExpired removes entries that expired before the given time.
	// Entries with a zero expiry are kept.
	PurgeExpired(now time.Time) (int, error)
	// Close releases the storage.
	Close() error
}

type CacheEntry struct {
	Key string
	// Expires is the time after which the entry is of no use, not the end
	// of its freshness.
	Expires time.Time
	Bytes   []byte
}

func (e CacheEntry) expired(now time.Time) bool {
	return !e.Expires.IsZero() && e.Expires.Before(now)
}

// prefixEnd returns the smallest key greater than every key with the given
// prefix, or nil if there is none.
func prefixEnd(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
