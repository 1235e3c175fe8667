package store

import (
	"context"
	"time"

	kverrors "github.com/alxayo/go-kv/internal/errors"
)

// listWaitKey namespaces list blocking keys within the shared wait-queue
// registry so future blocking-op families (blocking XREAD) can coexist
// without key collisions.
func listWaitKey(key string) string { return "list:" + key }

// LPush prepends values to the list at key, creating it if absent, then
// wakes up to len(values) blocked BLPOP waiters, returning the list's
// length after the push.
func (s *Store) LPush(key string, values ...[]byte) (int, error) {
	return s.pushLocked(key, true, values)
}

// RPush appends values to the list at key, creating it if absent, then
// wakes up to len(values) blocked BLPOP waiters, returning the list's
// length after the push.
func (s *Store) RPush(key string, values ...[]byte) (int, error) {
	return s.pushLocked(key, false, values)
}

func (s *Store) pushLocked(key string, left bool, values [][]byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.getOrCreateLocked(key, KindList)
	if e.kind != KindList {
		return 0, kverrors.NewTypeError()
	}
	for _, v := range values {
		cp := append([]byte(nil), v...)
		if left {
			e.list = append([][]byte{cp}, e.list...)
		} else {
			e.list = append(e.list, cp)
		}
	}

	// Capture the push-time length before Notify: a woken waiter's
	// callback may pop the element right back out, and the reply to this
	// push must still report how long the list grew to (spec.md §8
	// scenario 4 pins RPUSH's reply as :1 even though BLPOP pops it
	// straight back off).
	n := len(e.list)

	// Wake blocked waiters while still holding s.mu: each woken waiter's
	// callback pops the head element it is entitled to, so a concurrent
	// non-blocking LPOP issued right after this unlocks can never steal
	// an element a blocked waiter already claimed.
	s.wq.Notify(listWaitKey(key), len(values), func() any {
		if len(e.list) == 0 {
			return nil
		}
		v := e.list[0]
		e.list = e.list[1:]
		return v
	})

	return n, nil
}

// LPop removes and returns the head element of the list at key, if any.
func (s *Store) LPop(key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.lookupLocked(key)
	if !ok {
		return nil, false, nil
	}
	if e.kind != KindList {
		return nil, false, kverrors.NewTypeError()
	}
	if len(e.list) == 0 {
		return nil, false, nil
	}
	v := e.list[0]
	e.list = e.list[1:]
	return v, true, nil
}

// GetList returns a copy of the full list at key.
func (s *Store) GetList(key string) ([][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.lookupLocked(key)
	if !ok {
		return nil, nil
	}
	if e.kind != KindList {
		return nil, kverrors.NewTypeError()
	}
	out := make([][]byte, len(e.list))
	copy(out, e.list)
	return out, nil
}

// GetListRange returns the [start, stop] inclusive slice of the list at
// key, supporting negative indices counted from the list's end (spec.md
// §4.4's LRANGE contract). Out-of-range bounds clamp rather than error.
func (s *Store) GetListRange(key string, start, stop int) ([][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.lookupLocked(key)
	if !ok {
		return nil, nil
	}
	if e.kind != KindList {
		return nil, kverrors.NewTypeError()
	}
	n := len(e.list)
	start = normalizeIndex(start, n)
	stop = normalizeIndex(stop, n)
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop || n == 0 {
		return nil, nil
	}
	out := make([][]byte, stop-start+1)
	copy(out, e.list[start:stop+1])
	return out, nil
}

func normalizeIndex(i, n int) int {
	if i < 0 {
		i += n
	}
	return i
}

// BLPop blocks until the list at key has an element to pop, the timeout
// elapses, or ctx is cancelled. A zero timeout blocks indefinitely. It
// first attempts a non-blocking pop so a caller never parks on a key that
// already has data waiting.
func (s *Store) BLPop(ctx context.Context, key string, timeout time.Duration) ([]byte, bool, error) {
	if v, ok, err := s.LPop(key); err != nil {
		return nil, false, err
	} else if ok {
		return v, true, nil
	}

	v, ok := s.wq.Join(ctx, listWaitKey(key), timeout)
	if !ok || v == nil {
		return nil, false, nil
	}
	return v.([]byte), true, nil
}
