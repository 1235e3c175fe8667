package store

import "testing"

func TestLPushOrdersMostRecentFirst(t *testing.T) {
	s := New()
	s.LPush("l", []byte("a"))
	s.LPush("l", []byte("b"))
	got, err := s.GetList("l")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"b", "a"}
	if len(got) != len(want) {
		t.Fatalf("expected %d elements, got %d", len(want), len(got))
	}
	for i, w := range want {
		if string(got[i]) != w {
			t.Fatalf("index %d: expected %q, got %q", i, w, got[i])
		}
	}
}

func TestRPushAppendsInOrder(t *testing.T) {
	s := New()
	s.RPush("l", []byte("a"), []byte("b"), []byte("c"))
	got, _ := s.GetList("l")
	for i, w := range []string{"a", "b", "c"} {
		if string(got[i]) != w {
			t.Fatalf("index %d: expected %q, got %q", i, w, got[i])
		}
	}
}

func TestLPopEmptiesInFIFOOrder(t *testing.T) {
	s := New()
	s.RPush("l", []byte("a"), []byte("b"))
	v, ok, err := s.LPop("l")
	if err != nil || !ok || string(v) != "a" {
		t.Fatalf("unexpected first pop: v=%q ok=%v err=%v", v, ok, err)
	}
	v, ok, err = s.LPop("l")
	if err != nil || !ok || string(v) != "b" {
		t.Fatalf("unexpected second pop: v=%q ok=%v err=%v", v, ok, err)
	}
	_, ok, err = s.LPop("l")
	if err != nil || ok {
		t.Fatalf("expected list to be empty, got ok=%v err=%v", ok, err)
	}
}

func TestGetListRangeNegativeIndices(t *testing.T) {
	s := New()
	s.RPush("l", []byte("a"), []byte("b"), []byte("c"), []byte("d"))
	got, err := s.GetListRange("l", -2, -1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || string(got[0]) != "c" || string(got[1]) != "d" {
		t.Fatalf("expected [c d], got %v", got)
	}
}

func TestGetListRangeClampsOutOfBounds(t *testing.T) {
	s := New()
	s.RPush("l", []byte("a"), []byte("b"))
	got, err := s.GetListRange("l", 0, 100)
	if err != nil || len(got) != 2 {
		t.Fatalf("expected clamped full range, got %v err=%v", got, err)
	}
}

func TestGetListRangeEmptyWhenStartAfterStop(t *testing.T) {
	s := New()
	s.RPush("l", []byte("a"))
	got, err := s.GetListRange("l", 5, 10)
	if err != nil || got != nil {
		t.Fatalf("expected nil range, got %v err=%v", got, err)
	}
}
