package store

import (
	"context"
	"testing"
	"time"
)

func TestXAddAndXRange(t *testing.T) {
	s := New()
	id1, err := s.XAdd("s", "1-1", []Field{{Name: "f", Value: []byte("v1")}}, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	id2, err := s.XAdd("s", "2-1", []Field{{Name: "f", Value: []byte("v2")}}, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	entries, err := s.XRange("s", id1, id2)
	if err != nil || len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d err=%v", len(entries), err)
	}
}

func TestXReadAfterNonBlocking(t *testing.T) {
	s := New()
	s.XAdd("s", "1-1", nil, 0)
	s.XAdd("s", "2-1", nil, 0)
	entries, err := s.XReadAfter("s", StreamID{Ms: 1, Seq: 1})
	if err != nil || len(entries) != 1 || entries[0].ID.Ms != 2 {
		t.Fatalf("unexpected entries: %+v err=%v", entries, err)
	}
}

func TestXReadBlockWakesOnXAdd(t *testing.T) {
	s := New()
	resultCh := make(chan []StreamEntry, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		entries, err := s.XReadBlock(ctx, "s", StreamID{}, 0)
		if err != nil {
			t.Errorf("unexpected error: %v", err)
			return
		}
		resultCh <- entries
	}()

	time.Sleep(10 * time.Millisecond)
	if _, err := s.XAdd("s", "5-0", []Field{{Name: "f", Value: []byte("v")}}, 0); err != nil {
		t.Fatalf("unexpected XAdd error: %v", err)
	}

	select {
	case entries := <-resultCh:
		if len(entries) != 1 || entries[0].ID.Ms != 5 {
			t.Fatalf("unexpected wake result: %+v", entries)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for XReadBlock to wake")
	}
}

func TestXReadBlockTimesOut(t *testing.T) {
	s := New()
	entries, err := s.XReadBlock(context.Background(), "empty", StreamID{}, 10*time.Millisecond)
	if err != nil || entries != nil {
		t.Fatalf("expected timeout with nil entries, got %v err=%v", entries, err)
	}
}
