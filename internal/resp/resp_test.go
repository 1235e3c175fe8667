package resp

import (
	"bytes"
	"reflect"
	"testing"
)

func roundTrip(t *testing.T, v Value) Value {
	t.Helper()
	encoded := Encode(v)
	got, err := Decode(encoded)
	if err != nil {
		t.Fatalf("decode(encode(v)) error: %v", err)
	}
	return got
}

func TestRoundTripSimpleString(t *testing.T) {
	v := SimpleStringValue("PONG")
	got := roundTrip(t, v)
	if !reflect.DeepEqual(v, got) {
		t.Fatalf("round trip mismatch: want %+v got %+v", v, got)
	}
}

func TestRoundTripError(t *testing.T) {
	v := ErrorValue("unknown command 'FOO'")
	got := roundTrip(t, v)
	if got.Type != Error || got.Str != v.Str {
		t.Fatalf("round trip mismatch: want %+v got %+v", v, got)
	}
}

func TestRoundTripInteger(t *testing.T) {
	v := IntValue(-42)
	got := roundTrip(t, v)
	if got.Int != v.Int {
		t.Fatalf("round trip mismatch: want %d got %d", v.Int, got.Int)
	}
}

func TestRoundTripBulkAndNull(t *testing.T) {
	v := BulkValue([]byte("bar"))
	got := roundTrip(t, v)
	if !bytes.Equal(got.Bulk, v.Bulk) || got.IsNull {
		t.Fatalf("round trip mismatch: want %+v got %+v", v, got)
	}

	null := NullBulk()
	gotNull := roundTrip(t, null)
	if !gotNull.IsNull {
		t.Fatalf("expected null bulk to round trip as null")
	}
}

func TestRoundTripArray(t *testing.T) {
	v := BulkStringsFromText("SET", "foo", "bar")
	got := roundTrip(t, v)
	if got.Type != Array || len(got.Array) != 3 {
		t.Fatalf("unexpected array round trip: %+v", got)
	}
	argv, ok := got.AsArgv()
	if !ok || string(argv[0]) != "SET" || string(argv[1]) != "foo" || string(argv[2]) != "bar" {
		t.Fatalf("unexpected argv: %+v", argv)
	}
}

func TestScenarioPing(t *testing.T) {
	frames, err := DecodeCommands([]byte("*1\r\n$4\r\nPING\r\n"))
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if len(frames) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(frames))
	}
	if frames[0].Len != len("*1\r\n$4\r\nPING\r\n") {
		t.Fatalf("expected byte length %d, got %d", len("*1\r\n$4\r\nPING\r\n"), frames[0].Len)
	}
	argv, ok := frames[0].Value.AsArgv()
	if !ok || string(argv[0]) != "PING" {
		t.Fatalf("unexpected decoded argv: %+v", argv)
	}
	encodedReply := Encode(SimpleStringValue("PONG"))
	if string(encodedReply) != "+PONG\r\n" {
		t.Fatalf("unexpected PONG encoding: %q", encodedReply)
	}
}

// TestScenarioReplicaOffset pins test scenario 6 from the spec: a 31-byte
// SET command frame, followed by a GETACK frame, must leave the replica's
// reported offset at exactly 31 (counting only the frames applied before
// the GETACK itself).
func TestScenarioReplicaOffset(t *testing.T) {
	setFrame := []byte("*3\r\n$3\r\nSET\r\n$3\r\nfoo\r\n$3\r\nbar\r\n")
	if len(setFrame) != 31 {
		t.Fatalf("fixture drifted: expected 31 bytes, got %d", len(setFrame))
	}
	getackFrame := []byte("*3\r\n$8\r\nREPLCONF\r\n$6\r\nGETACK\r\n$1\r\n*\r\n")

	frames, err := DecodeCommands(append(append([]byte{}, setFrame...), getackFrame...))
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(frames))
	}
	if frames[0].Len != 31 {
		t.Fatalf("expected SET frame length 31, got %d", frames[0].Len)
	}

	var offset int64
	offset += int64(frames[0].Len) // advance after applying SET, before counting GETACK
	if offset != 31 {
		t.Fatalf("expected reported offset 31, got %d", offset)
	}
}

// TestSnapshotFramingNoTrailingCRLF pins the open question from spec.md
// §9: a non-UTF-8 bulk payload decodes without consuming a trailing CRLF,
// and re-encodes the same way.
func TestSnapshotFramingNoTrailingCRLF(t *testing.T) {
	payload := []byte{0x52, 0x45, 0x44, 0x49, 0x53, 0x30, 0x30, 0x31, 0x31, 0xFF, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}
	wire := Encode(RawBulkValue(payload))
	if bytes.HasSuffix(wire, []byte("\r\n")) && bytes.Contains(wire, []byte{0xFF}) {
		// The header ends in \r\n but the payload itself must be the final
		// bytes of the frame: confirm no extra CRLF was appended after it.
		if !bytes.Equal(wire[len(wire)-len(payload):], payload) {
			t.Fatalf("expected raw bulk payload as the final bytes with no trailing CRLF")
		}
	}

	r := NewReader(bytes.NewReader(wire))
	v, err := r.ReadValue()
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if !v.Raw {
		t.Fatalf("expected decoded value to be flagged Raw (non-UTF-8 snapshot)")
	}
	if !bytes.Equal(v.Bulk, payload) {
		t.Fatalf("payload mismatch: want %x got %x", payload, v.Bulk)
	}
	if r.BytesRead() != int64(len(wire)) {
		t.Fatalf("expected reader to consume exactly %d bytes, consumed %d", len(wire), r.BytesRead())
	}
}

func TestDecodeMap(t *testing.T) {
	v := MapValue([]string{"role", "master_replid"}, []Value{SimpleStringValue("master"), SimpleStringValue("abc123")})
	encoded := Encode(v)
	r := NewReader(bytes.NewReader(encoded))
	got, err := r.ReadValue()
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if got.Type != Map || len(got.MapKeys) != 2 {
		t.Fatalf("unexpected map decode: %+v", got)
	}
	if got.MapKeys[0] != "role" || got.MapVals[0].Str != "master" {
		t.Fatalf("unexpected map contents: %+v", got)
	}
}
