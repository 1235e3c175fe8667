package store

import (
	"context"
	"time"

	kverrors "github.com/alxayo/go-kv/internal/errors"
)

func streamWaitKey(key string) string { return "stream:" + key }

// XAdd resolves idSpec against the stream at key (creating it if absent),
// appends the entry, and wakes up to one blocked XREAD waiter on key.
func (s *Store) XAdd(key, idSpec string, fields []Field, tsMs int64) (StreamID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.getOrCreateLocked(key, KindStream)
	if e.kind != KindStream {
		return StreamID{}, kverrors.NewTypeError()
	}
	id, err := e.strm.Append(idSpec, fields, tsMs, nowMs)
	if err != nil {
		return StreamID{}, err
	}
	s.wq.Notify(streamWaitKey(key), 1, func() any {
		return e.strm.After(StreamID{})
	})
	return id, nil
}

// XRange returns the inclusive [start, end] entries of the stream at key.
func (s *Store) XRange(key string, start, end StreamID) ([]StreamEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.lookupLocked(key)
	if !ok {
		return nil, nil
	}
	if e.kind != KindStream {
		return nil, kverrors.NewTypeError()
	}
	return e.strm.Range(start, end), nil
}

// XReadAfter returns the entries of the stream at key strictly newer than
// after, without blocking.
func (s *Store) XReadAfter(key string, after StreamID) ([]StreamEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.lookupLocked(key)
	if !ok {
		return nil, nil
	}
	if e.kind != KindStream {
		return nil, kverrors.NewTypeError()
	}
	return e.strm.After(after), nil
}

// XReadBlock blocks until the stream at key has an entry newer than after,
// the timeout elapses (0 = forever, subject to ctx), or ctx is cancelled.
// It checks for already-available entries first so a caller never parks
// on a key that already satisfies the read.
func (s *Store) XReadBlock(ctx context.Context, key string, after StreamID, timeout time.Duration) ([]StreamEntry, error) {
	if entries, err := s.XReadAfter(key, after); err != nil {
		return nil, err
	} else if len(entries) > 0 {
		return entries, nil
	}

	v, ok := s.wq.Join(ctx, streamWaitKey(key), timeout)
	if !ok || v == nil {
		return nil, nil
	}
	all := v.([]StreamEntry)
	var out []StreamEntry
	for _, e := range all {
		if e.ID.Compare(after) > 0 {
			out = append(out, e)
		}
	}
	return out, nil
}
