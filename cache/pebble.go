package cache

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/cockroachdb/pebble"
)

// PebbleCache stores entries in a Pebble key-value store. Each value is the
// expiry as unix seconds (8 bytes, big endian) followed by the entry bytes.
type PebbleCache struct {
	db *pebble.DB
}

func NewPebbleCache(path string) (*PebbleCache, error) {
	if err := os.MkdirAll(path, 0700); err != nil {
		return nil, fmt.Errorf("Could not create cache dir %s: %w", path, err)
	}
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("Could not open cache db %s: %w", path, err)
	}
	return &PebbleCache{db: db}, nil
}

func encodeValue(entry CacheEntry) []byte {
	value := make([]byte, 8+len(entry.Bytes))
	binary.BigEndian.PutUint64(value, uint64(toUnix(entry.Expires)))
	copy(value[8:], entry.Bytes)
	return value
}

func decodeValue(key string, value []byte) (CacheEntry, error) {
	if len(value) < 8 {
		return CacheEntry{}, fmt.Errorf("Malformed cache entry %s", key)
	}
	return CacheEntry{
		Key:     key,
		Expires: fromUnix(int64(binary.BigEndian.Uint64(value[:8]))),
		Bytes:   append([]byte(nil), value[8:]...),
	}, nil
}

func (p *PebbleCache) iter(prefix string) (*pebble.Iterator, error) {
	opts := &pebble.IterOptions{LowerBound: []byte(prefix)}
	if end := prefixEnd([]byte(prefix)); end != nil {
		opts.UpperBound = end
	}
	return p.db.NewIter(opts)
}

func (p *PebbleCache) All(prefix string) ([]CacheEntry, error) {
	entries := make([]CacheEntry, 0)
	iter, err := p.iter(prefix)
	if err != nil {
		return entries, err
	}
	defer iter.Close()
	for iter.First(); iter.Valid(); iter.Next() {
		entry, err := decodeValue(string(iter.Key()), iter.Value())
		if err != nil {
			return entries, err
		}
		entries = append(entries, entry)
	}
	return entries, iter.Error()
}

func (p *PebbleCache) Get(key string) (CacheEntry, bool, error) {
	value, closer, err := p.db.Get([]byte(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return CacheEntry{}, false, nil
	}
	if err != nil {
		return CacheEntry{}, false, err
	}
	defer closer.Close()
	entry, err := decodeValue(key, value)
	if err != nil {
		return CacheEntry{}, false, err
	}
	return entry, true, nil
}

func (p *PebbleCache) Put(entry CacheEntry) error {
	return p.db.Set([]byte(entry.Key), encodeValue(entry), pebble.Sync)
}

func (p *PebbleCache) Purge(key string) error {
	return p.db.Delete([]byte(key), pebble.Sync)
}

func (p *PebbleCache) PurgePrefix(prefix string) (int, error) {
	return p.purge(prefix, func([]byte) bool { return true })
}

func (p *PebbleCache) PurgeExpired(now time.Time) (int, error) {
	return p.purge("", func(value []byte) bool {
		if len(value) < 8 {
			return true
		}
		exp := int64(binary.BigEndian.Uint64(value[:8]))
		return exp > 0 && exp < now.Unix()
	})
}

func (p *PebbleCache) purge(prefix string, match func(value []byte) bool) (int, error) {
	iter, err := p.iter(prefix)
	if err != nil {
		return 0, err
	}
	batch := p.db.NewBatch()
	defer batch.Close()
	n := 0
	for iter.First(); iter.Valid(); iter.Next() {
		if match(iter.Value()) {
			if err := batch.Delete(append([]byte(nil), iter.Key()...), nil); err != nil {
				iter.Close()
				return 0, err
			}
			n++
		}
	}
	if err := iter.Close(); err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}
	return n, batch.Commit(pebble.Sync)
}

func (p *PebbleCache) Close() error {
	return p.db.Close()
}
