package store

import (
	"strconv"
	"sync"

	kverrors "github.com/alxayo/go-kv/internal/errors"
	"github.com/alxayo/go-kv/internal/waitqueue"
)

// Store is the process-wide keyspace. A single mutex guards both the
// keyspace map and the embedded wait-queue notifications so that a list
// push and the wake-up of a blocked BLPOP waiter are atomic with respect
// to each other — see the package doc in types.go.
type Store struct {
	mu   sync.Mutex
	data map[string]*entry
	wq   *waitqueue.Registry
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		data: make(map[string]*entry),
		wq:   waitqueue.NewRegistry(),
	}
}

// lookupLocked returns the live (non-expired) entry at key, lazily
// deleting it first if its TTL has passed. Callers must hold s.mu.
func (s *Store) lookupLocked(key string) (*entry, bool) {
	e, ok := s.data[key]
	if !ok {
		return nil, false
	}
	if e.expired(nowMs()) {
		delete(s.data, key)
		return nil, false
	}
	return e, true
}

// getOrCreateLocked returns the entry at key, creating one of the given
// kind if absent. It does not type-check an existing entry; callers
// compare e.kind themselves so they can return a typed error.
func (s *Store) getOrCreateLocked(key string, kind Kind) *entry {
	e, ok := s.lookupLocked(key)
	if ok {
		return e
	}
	e = newEntryOfKind(kind)
	s.data[key] = e
	return e
}

func newEntryOfKind(kind Kind) *entry {
	e := &entry{kind: kind}
	switch kind {
	case KindList:
		e.list = nil
	case KindStream:
		e.strm = &Stream{}
	case KindSortedSet:
		e.zset = newSortedSet()
	case KindHash:
		e.hash = make(map[string][]byte)
	}
	return e
}

// Get returns the string value at key, if any and if it is a string.
func (s *Store) Get(key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.lookupLocked(key)
	if !ok {
		return nil, false, nil
	}
	if e.kind != KindString {
		return nil, false, kverrors.NewTypeError()
	}
	return e.str, true, nil
}

// Set stores value as a string at key, optionally with a TTL in
// milliseconds from now (ttlMs <= 0 means no expiry), overwriting
// whatever was there regardless of its prior kind.
func (s *Store) Set(key string, value []byte, ttlMs int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := &entry{kind: KindString, str: append([]byte(nil), value...)}
	if ttlMs > 0 {
		e.hasTTL = true
		e.expireAtMs = nowMs() + ttlMs
	}
	s.data[key] = e
}

// Incr parses the string at key as a base-10 int64 (absent = 0),
// increments it, and writes the result back as a string, leaving any
// existing TTL on the key untouched (matching INCR's Redis semantics,
// unlike Set which always resets or clears the TTL). Holding s.mu across
// the whole read-modify-write also closes the race two concurrent INCRs
// would otherwise have over separate Get/Set calls.
func (s *Store) Incr(key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.lookupLocked(key)
	if ok && e.kind != KindString {
		return 0, kverrors.NewTypeError()
	}
	var n int64
	if ok {
		parsed, err := strconv.ParseInt(string(e.str), 10, 64)
		if err != nil {
			return 0, kverrors.NewNumericError()
		}
		n = parsed
	}
	n++
	str := []byte(strconv.FormatInt(n, 10))
	if ok {
		e.str = str
	} else {
		s.data[key] = &entry{kind: KindString, str: str}
	}
	return n, nil
}

// Del removes key regardless of kind, returning whether it existed.
func (s *Store) Del(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.lookupLocked(key)
	delete(s.data, key)
	return ok
}

// Exists reports whether key is present and unexpired.
func (s *Store) Exists(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.lookupLocked(key)
	return ok
}

// Type returns the Kind stored at key, or false if key is absent.
func (s *Store) Type(key string) (Kind, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.lookupLocked(key)
	if !ok {
		return 0, false
	}
	return e.kind, true
}

// Keys returns every live (unexpired) key currently in the store. Expired
// keys encountered during the scan are lazily evicted.
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := nowMs()
	out := make([]string, 0, len(s.data))
	for k, e := range s.data {
		if e.expired(now) {
			delete(s.data, k)
			continue
		}
		out = append(out, k)
	}
	return out
}

// Expire sets a TTL of ttlMs milliseconds from now on an existing key,
// returning whether the key existed.
func (s *Store) Expire(key string, ttlMs int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.lookupLocked(key)
	if !ok {
		return false
	}
	e.hasTTL = true
	e.expireAtMs = nowMs() + ttlMs
	return true
}

// ZAdd adds member with score to the sorted set at key, creating it if
// absent, returning whether member was newly inserted.
func (s *Store) ZAdd(key, member string, score float64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.getOrCreateLocked(key, KindSortedSet)
	if e.kind != KindSortedSet {
		return false, kverrors.NewTypeError()
	}
	return e.zset.add(member, score), nil
}

// Loader is implemented by snapshot sources consumed at startup to
// populate an empty Store before the server starts accepting writes.
type Loader interface {
	Load() (map[string][]byte, error)
}

// LoadSnapshot populates the store's string keyspace from l, intended for
// use once at startup before the accept loop begins (no locking
// contention is expected, but the same mutex is still taken for safety).
func (s *Store) LoadSnapshot(l Loader) error {
	data, err := l.Load()
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range data {
		s.data[k] = &entry{kind: KindString, str: v}
	}
	return nil
}
