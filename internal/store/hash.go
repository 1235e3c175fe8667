package store

import kverrors "github.com/alxayo/go-kv/internal/errors"

// HSet sets field to value within the hash at key, creating the hash if
// absent. It returns the number of fields newly created (0 or 1, since
// only single-field HSET is specified).
func (s *Store) HSet(key, field string, value []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.getOrCreateLocked(key, KindHash)
	if e.kind != KindHash {
		return 0, kverrors.NewTypeError()
	}
	_, existed := e.hash[field]
	e.hash[field] = append([]byte(nil), value...)
	if existed {
		return 0, nil
	}
	return 1, nil
}

// HGet returns the value stored at field within the hash at key.
func (s *Store) HGet(key, field string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.lookupLocked(key)
	if !ok {
		return nil, false, nil
	}
	if e.kind != KindHash {
		return nil, false, kverrors.NewTypeError()
	}
	v, ok := e.hash[field]
	return v, ok, nil
}

// HDel removes field from the hash at key, returning whether it existed.
func (s *Store) HDel(key, field string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.lookupLocked(key)
	if !ok {
		return false, nil
	}
	if e.kind != KindHash {
		return false, kverrors.NewTypeError()
	}
	_, existed := e.hash[field]
	delete(e.hash, field)
	return existed, nil
}

// HGetAll returns every field/value pair in the hash at key. The returned
// slice alternates field, value, field, value... matching the wire
// encoding HGETALL's reply uses.
func (s *Store) HGetAll(key string) ([][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.lookupLocked(key)
	if !ok {
		return nil, nil
	}
	if e.kind != KindHash {
		return nil, kverrors.NewTypeError()
	}
	out := make([][]byte, 0, len(e.hash)*2)
	for field, value := range e.hash {
		out = append(out, []byte(field), value)
	}
	return out, nil
}
