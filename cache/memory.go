package cache

import (
	"sort"
	"sync"
	"time"
)

// MemCache keeps entries in process memory. Keys are kept sorted so prefix
// scans cover a key range, like the on-disk providers.
type MemCache struct {
	store *memStore
}

type memStore struct {
	mu      sync.RWMutex
	entries map[string]CacheEntry
	keys    []string
}

func NewMemCache() MemCache {
	return MemCache{store: &memStore{entries: make(map[string]CacheEntry)}}
}

// span returns the index range of the keys starting with prefix.
func (s *memStore) span(prefix string) (int, int) {
	from := sort.SearchStrings(s.keys, prefix)
	end := prefixEnd([]byte(prefix))
	if end == nil {
		return from, len(s.keys)
	}
	return from, sort.SearchStrings(s.keys, string(end))
}

func (s *memStore) remove(keys []string) {
	for _, key := range keys {
		delete(s.entries, key)
		i := sort.SearchStrings(s.keys, key)
		if i < len(s.keys) && s.keys[i] == key {
			s.keys = append(s.keys[:i], s.keys[i+1:]...)
		}
	}
}

func (m MemCache) All(prefix string) ([]CacheEntry, error) {
	m.store.mu.RLock()
	defer m.store.mu.RUnlock()
	from, to := m.store.span(prefix)
	entries := make([]CacheEntry, 0, to-from)
	for _, key := range m.store.keys[from:to] {
		entries = append(entries, m.store.entries[key])
	}
	return entries, nil
}

func (m MemCache) Get(key string) (CacheEntry, bool, error) {
	m.store.mu.RLock()
	defer m.store.mu.RUnlock()
	entry, ok := m.store.entries[key]
	return entry, ok, nil
}

func (m MemCache) Put(entry CacheEntry) error {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	entry.Bytes = append([]byte(nil), entry.Bytes...)
	if _, ok := m.store.entries[entry.Key]; !ok {
		i := sort.SearchStrings(m.store.keys, entry.Key)
		m.store.keys = append(m.store.keys, "")
		copy(m.store.keys[i+1:], m.store.keys[i:])
		m.store.keys[i] = entry.Key
	}
	m.store.entries[entry.Key] = entry
	return nil
}

func (m MemCache) Purge(key string) error {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	m.store.remove([]string{key})
	return nil
}

func (m MemCache) PurgePrefix(prefix string) (int, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	from, to := m.store.span(prefix)
	for _, key := range m.store.keys[from:to] {
		delete(m.store.entries, key)
	}
	m.store.keys = append(m.store.keys[:from], m.store.keys[to:]...)
	return to - from, nil
}

func (m MemCache) PurgeExpired(now time.Time) (int, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	var expired []string
	for _, key := range m.store.keys {
		if m.store.entries[key].expired(now) {
			expired = append(expired, key)
		}
	}
	m.store.remove(expired)
	return len(expired), nil
}

func (m MemCache) Close() error {
	return nil
}
