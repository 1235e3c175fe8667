package resp

import (
	"bytes"
	"fmt"
	"io"
	"strconv"

	"github.com/alxayo/go-kv/internal/bufpool"
	kverrors "github.com/alxayo/go-kv/internal/errors"
)

// EncodeTo writes v's wire encoding to w. Arrays and Maps recurse; a
// raw-flagged BulkString omits the trailing CRLF so the receiver consumes
// exactly len(payload) bytes, per the snapshot-transfer special case.
func EncodeTo(w io.Writer, v Value) error {
	switch v.Type {
	case SimpleString:
		_, err := fmt.Fprintf(w, "+%s\r\n", v.Str)
		return wrapEncodeErr("simple_string", err)
	case Error:
		_, err := fmt.Fprintf(w, "-ERR %s\r\n", v.Str)
		return wrapEncodeErr("error", err)
	case Integer:
		_, err := fmt.Fprintf(w, ":%d\r\n", v.Int)
		return wrapEncodeErr("integer", err)
	case Double:
		_, err := fmt.Fprintf(w, ",%s\r\n", strconv.FormatFloat(v.Float, 'g', -1, 64))
		return wrapEncodeErr("double", err)
	case BulkString:
		return encodeBulk(w, v)
	case Array:
		if _, err := fmt.Fprintf(w, "*%d\r\n", len(v.Array)); err != nil {
			return wrapEncodeErr("array.header", err)
		}
		for _, e := range v.Array {
			if err := EncodeTo(w, e); err != nil {
				return err
			}
		}
		return nil
	case Map:
		if len(v.MapKeys) != len(v.MapVals) {
			return wrapEncodeErr("map", fmt.Errorf("key/value length mismatch: %d keys, %d values", len(v.MapKeys), len(v.MapVals)))
		}
		if _, err := fmt.Fprintf(w, "%%%d\r\n", len(v.MapKeys)); err != nil {
			return wrapEncodeErr("map.header", err)
		}
		for i, k := range v.MapKeys {
			if err := EncodeTo(w, SimpleStringValue(k)); err != nil {
				return err
			}
			if err := EncodeTo(w, v.MapVals[i]); err != nil {
				return err
			}
		}
		return nil
	default:
		return wrapEncodeErr("unknown_type", fmt.Errorf("unsupported resp type %q", v.Type))
	}
}

func encodeBulk(w io.Writer, v Value) error {
	if v.IsNull {
		_, err := io.WriteString(w, "$-1\r\n")
		return wrapEncodeErr("bulk.null", err)
	}
	if _, err := fmt.Fprintf(w, "$%d\r\n", len(v.Bulk)); err != nil {
		return wrapEncodeErr("bulk.header", err)
	}
	if _, err := w.Write(v.Bulk); err != nil {
		return wrapEncodeErr("bulk.payload", err)
	}
	if v.Raw {
		return nil
	}
	_, err := io.WriteString(w, "\r\n")
	return wrapEncodeErr("bulk.trailer", err)
}

func wrapEncodeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return kverrors.NewParseError("encode."+op, err)
}

// Encode returns v's wire encoding as a standalone byte slice. Prefer
// EncodeTo for hot paths (it writes directly to a pooled buffer or a
// connection's bufio.Writer without an intermediate allocation).
func Encode(v Value) []byte {
	var buf bytes.Buffer
	// EncodeTo never fails against a bytes.Buffer.
	_ = EncodeTo(&buf, v)
	return buf.Bytes()
}

// EncodeAll concatenates the wire encoding of each value, used to batch a
// command's zero-or-more response frames into a single contiguous write.
func EncodeAll(w io.Writer, vs ...Value) error {
	for _, v := range vs {
		if err := EncodeTo(w, v); err != nil {
			return err
		}
	}
	return nil
}

// EncodedLen returns the byte length of v's wire encoding without
// handing the caller an allocation to keep: replication's offset
// bookkeeping (spec.md §3's "replication_offset... by the byte length
// of each applied command frame") only ever needs the count, so the
// scratch buffer used to produce it comes from bufpool and goes right
// back.
func EncodedLen(v Value) int {
	scratch := bufpool.Get(256)
	defer bufpool.Put(scratch)
	buf := bytes.NewBuffer(scratch[:0])
	// EncodeTo never fails against a bytes.Buffer.
	_ = EncodeTo(buf, v)
	return buf.Len()
}
