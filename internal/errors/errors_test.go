package errors

import (
	"context"
	stdErrors "errors"
	"fmt"
	"testing"
	"time"
)

// fakeTimeoutErr simulates a net.Error with Timeout semantics.
type fakeTimeoutErr struct{}

func (fakeTimeoutErr) Error() string { return "fake timeout" }
func (fakeTimeoutErr) Timeout() bool { return true }

func TestIsWireErrorClassification(t *testing.T) {
	if !IsWireError(&CommandArityError{Command: "SET"}) {
		t.Fatalf("expected CommandArityError classified as wire error")
	}
	if !IsWireError(NewInvalidArgument("set.parse", stdErrors.New("bad PX"))) {
		t.Fatalf("expected InvalidArgument classified as wire error")
	}
	if !IsWireError(&TypeError{}) {
		t.Fatalf("expected TypeError classified as wire error")
	}
	if !IsWireError(ErrStreamIDTooSmall) {
		t.Fatalf("expected StreamIDError classified as wire error")
	}
	if !IsWireError(&NumericError{}) {
		t.Fatalf("expected NumericError classified as wire error")
	}
	if !IsWireError(NewStateError("EXEC without MULTI")) {
		t.Fatalf("expected StateError classified as wire error")
	}

	if IsWireError(NewParseError("decode.bulk", nil)) {
		t.Fatalf("ParseError must NOT be a wire error (connection closes instead)")
	}
	if IsWireError(NewReplicationError("fanout.write", nil)) {
		t.Fatalf("ReplicationError must NOT be a wire error (logged, not replied)")
	}
}

func TestUnwrapChains(t *testing.T) {
	base := stdErrors.New("io EOF")
	l1 := fmt.Errorf("read: %w", base)
	l2 := NewInvalidArgument("set.parse", l1)
	if !stdErrors.Is(l2, base) {
		t.Fatalf("errors.Is should reach base cause")
	}
	var ia *InvalidArgument
	if !stdErrors.As(l2, &ia) {
		t.Fatalf("expected errors.As to *InvalidArgument")
	}
	if ia.Op != "set.parse" {
		t.Fatalf("unexpected op: %s", ia.Op)
	}
}

func TestIsTimeout(t *testing.T) {
	root := fakeTimeoutErr{}
	to := NewTimeoutError("replica.handshake.read", 5*time.Second, root)
	if !IsTimeout(to) {
		t.Fatalf("expected TimeoutError recognized")
	}
	if IsWireError(to) {
		t.Fatalf("timeout should not be classified as a client-facing wire error")
	}
	if !IsTimeout(context.DeadlineExceeded) {
		t.Fatalf("expected context deadline recognized")
	}
	var ne error = root
	if !IsTimeout(ne) {
		t.Fatalf("expected net-like timeout recognized")
	}
}

func TestNilSafety(t *testing.T) {
	if IsWireError(nil) {
		t.Fatalf("nil should not be a wire error")
	}
	if IsTimeout(nil) {
		t.Fatalf("nil should not be timeout")
	}
}

func TestErrorStrings(t *testing.T) {
	cases := []error{
		NewParseError("decode.bulk", nil),
		&CommandArityError{Command: "GET"},
		NewInvalidArgument("set.px", nil),
		&TypeError{},
		ErrStreamIDZero,
		&NumericError{},
		NewStateError("DISCARD without MULTI"),
		NewTimeoutError("blpop.join", 100*time.Millisecond, nil),
		NewReplicationError("handshake.ping", nil),
	}
	for _, err := range cases {
		if err.Error() == "" {
			t.Fatalf("empty error string for %T", err)
		}
	}
}

func TestNegativePredicates(t *testing.T) {
	if IsWireError(stdErrors.New("plain")) {
		t.Fatalf("plain error shouldn't be a wire error")
	}
	if IsTimeout(stdErrors.New("plain")) {
		t.Fatalf("plain error shouldn't be timeout")
	}
}
