package dht

import (
	"bytes"
	"encoding/gob"
	"sync"
	"time"
)

// StoredValue wraps a stored blob with the bookkeeping spec.md §3 requires:
// a wall-clock version for last-writer-wins resolution, an optional
// absolute expiration, and provenance (whether this node holds the value
// as a replica or as the original writer).
type StoredValue struct {
	Data          []byte
	Version       uint64 // unix seconds at write time
	LastNode      string // address that most recently wrote this value
	IsReplica     bool
	Expiration    *uint64 // absolute unix seconds; nil means no expiry
	OriginalNodes []string
}

// IsValid reports whether the value has not expired as of now.
func (sv StoredValue) IsValid(now uint64) bool {
	return sv.Expiration == nil || *sv.Expiration > now
}

// NewStoredValue builds a StoredValue, mirroring the Rust original's
// create_stored_value: a TTL of 0 means no expiration.
func NewStoredValue(data []byte, addr string, isReplica bool, ttl time.Duration) StoredValue {
	sv := StoredValue{
		Data:      data,
		Version:   uint64(time.Now().Unix()),
		LastNode:  addr,
		IsReplica: isReplica,
	}
	if !isReplica {
		sv.OriginalNodes = []string{addr}
	}
	if ttl > 0 {
		exp := uint64(time.Now().Add(ttl).Unix())
		sv.Expiration = &exp
	}
	return sv
}

// serializeValue and deserializeValue are the Storage-level analogue of
// the wire codec in rpc.go: gob round-trips StoredValue exactly, which is
// all spec.md's storage round-trip law requires.
func serializeValue(sv StoredValue) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(sv); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func deserializeValue(data []byte) (StoredValue, error) {
	var sv StoredValue
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&sv); err != nil {
		return StoredValue{}, err
	}
	return sv, nil
}

// entry is what Storage actually keeps: the raw serialized bytes (what
// spec.md's Storage.get returns) plus a cached version/expiration used
// only for eviction bookkeeping, so Put/eviction don't need to
// deserialize every neighboring entry on every write.
type entry struct {
	raw        []byte
	version    uint64
	expiration *uint64
}

// Storage is the node's in-memory keyed blob store. A single RWMutex
// guards the whole map: readers run concurrently with each other, and a
// writer excludes all readers and writers regardless of key.
type Storage struct {
	mu         sync.RWMutex
	entries    map[string]entry
	maxEntries int
}

// NewStorage creates an empty store bounded to maxEntries keys.
func NewStorage(maxEntries int) *Storage {
	return &Storage{entries: make(map[string]entry), maxEntries: maxEntries}
}

// Put inserts or replaces the serialized value at key. When the store is
// at capacity and key is new, Put evicts the first expired entry it finds,
// falling back to the entry with the oldest Version. It fails with
// ErrStorageFull only when there is no entry to evict, which happens only
// when maxEntries is less than 1.
func (s *Storage) Put(key string, sv StoredValue) error {
	raw, err := serializeValue(sv)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[key]; !exists && len(s.entries) >= s.maxEntries {
		if !s.evictLocked() {
			return ErrStorageFull
		}
	}

	s.entries[key] = entry{raw: raw, version: sv.Version, expiration: sv.Expiration}
	return nil
}

// evictLocked removes one entry to make room, preferring an expired entry
// and falling back to the oldest by version. Caller must hold s.mu.
func (s *Storage) evictLocked() bool {
	now := uint64(time.Now().Unix())

	for k, e := range s.entries {
		if e.expiration != nil && *e.expiration <= now {
			delete(s.entries, k)
			return true
		}
	}

	var oldestKey string
	var oldestVersion uint64
	found := false
	for k, e := range s.entries {
		if !found || e.version < oldestVersion {
			oldestKey, oldestVersion, found = k, e.version, true
		}
	}
	if found {
		delete(s.entries, oldestKey)
		return true
	}
	return false
}

// Get returns the raw serialized value for key, lazily removing it first
// if it has expired.
func (s *Storage) Get(key string) ([]byte, bool) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}

	now := uint64(time.Now().Unix())
	if e.expiration != nil && *e.expiration <= now {
		s.Remove(key)
		return nil, false
	}
	return e.raw, true
}

// Remove deletes key unconditionally.
func (s *Storage) Remove(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

// Len returns the current number of stored keys, including any not yet
// lazily swept past expiration.
func (s *Storage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Keys returns a snapshot of every key currently stored, used by the
// maintenance scheduler's replication refresh.
func (s *Storage) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.entries))
	for k := range s.entries {
		out = append(out, k)
	}
	return out
}

// RemoveExpired deletes every entry whose expiration has passed as of now,
// returning the count removed.
func (s *Storage) RemoveExpired() int {
	now := uint64(time.Now().Unix())

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for k, e := range s.entries {
		if e.expiration != nil && *e.expiration <= now {
			delete(s.entries, k)
			removed++
		}
	}
	return removed
}
