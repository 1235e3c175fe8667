package resp

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"unicode/utf8"

	kverrors "github.com/alxayo/go-kv/internal/errors"
)

// Reader decodes a stream of RESP frames from an io.Reader, one top-level
// Value per ReadValue call. It tracks cumulative bytes consumed so callers
// (the session read loop, the replica offset tracker) can compute the
// byte_length delta decode_commands describes without re-encoding the
// frame. Not safe for concurrent use; one read-loop goroutine per
// connection is the expected usage, mirroring chunk.Reader.
type Reader struct {
	br    *bufio.Reader
	count int64
}

// NewReader wraps r for streaming RESP decode.
func NewReader(r io.Reader) *Reader {
	return &Reader{br: bufio.NewReaderSize(r, 4096)}
}

// BytesRead returns the total number of bytes consumed so far.
func (r *Reader) BytesRead() int64 { return r.count }

func (r *Reader) readByte() (byte, error) {
	b, err := r.br.ReadByte()
	if err != nil {
		return 0, err
	}
	r.count++
	return b, nil
}

// readLine reads up to and including the terminating CRLF, returning the
// line content with the CRLF stripped.
func (r *Reader) readLine() ([]byte, error) {
	line, err := r.br.ReadBytes('\n')
	if err != nil {
		return nil, err
	}
	r.count += int64(len(line))
	line = trimCRLF(line)
	return line, nil
}

func trimCRLF(b []byte) []byte {
	n := len(b)
	if n > 0 && b[n-1] == '\n' {
		n--
	}
	if n > 0 && b[n-1] == '\r' {
		n--
	}
	return b[:n]
}

func (r *Reader) readN(n int) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r.br, buf); err != nil {
		return nil, err
	}
	r.count += int64(n)
	return buf, nil
}

// ReadValue decodes exactly one top-level frame, recursing into nested
// Array/Map elements as needed.
func (r *Reader) ReadValue() (Value, error) {
	tag, err := r.readByte()
	if err != nil {
		return Value{}, err
	}
	switch Type(tag) {
	case SimpleString:
		line, err := r.readLine()
		if err != nil {
			return Value{}, kverrors.NewParseError("decode.simple_string", err)
		}
		return SimpleStringValue(string(line)), nil
	case Error:
		line, err := r.readLine()
		if err != nil {
			return Value{}, kverrors.NewParseError("decode.error", err)
		}
		return ErrorValue(stripErrPrefix(string(line))), nil
	case Integer:
		line, err := r.readLine()
		if err != nil {
			return Value{}, kverrors.NewParseError("decode.integer", err)
		}
		n, err := strconv.ParseInt(string(line), 10, 64)
		if err != nil {
			return Value{}, kverrors.NewParseError("decode.integer", err)
		}
		return IntValue(n), nil
	case Double:
		line, err := r.readLine()
		if err != nil {
			return Value{}, kverrors.NewParseError("decode.double", err)
		}
		f, err := strconv.ParseFloat(string(line), 64)
		if err != nil {
			return Value{}, kverrors.NewParseError("decode.double", err)
		}
		return DoubleValue(f), nil
	case BulkString:
		return r.readBulk()
	case Array:
		return r.readArray()
	case Map:
		return r.readMap()
	default:
		return Value{}, kverrors.NewParseError("decode.tag", fmt.Errorf("unknown tag byte %q", tag))
	}
}

func stripErrPrefix(s string) string {
	const prefix = "ERR "
	if len(s) >= len(prefix) && s[:len(prefix)] == prefix {
		return s[len(prefix):]
	}
	return s
}

// readBulk implements the one asymmetric decode rule in the protocol: a
// payload that fails UTF-8 validation is treated as an embedded snapshot
// blob. Snapshot blobs are written without a trailing CRLF, so the reader
// must not attempt to consume one — doing so would desynchronize the
// stream by two bytes. This is deliberately retained bit-for-bit per the
// pinned open question on snapshot framing.
func (r *Reader) readBulk() (Value, error) {
	line, err := r.readLine()
	if err != nil {
		return Value{}, kverrors.NewParseError("decode.bulk.length", err)
	}
	length, err := strconv.Atoi(string(line))
	if err != nil {
		return Value{}, kverrors.NewParseError("decode.bulk.length", err)
	}
	if length < 0 {
		return NullBulk(), nil
	}
	content, err := r.readN(length)
	if err != nil {
		return Value{}, kverrors.NewParseError("decode.bulk.payload", err)
	}
	if utf8.Valid(content) {
		if _, err := r.readN(2); err != nil { // consume trailing CRLF
			return Value{}, kverrors.NewParseError("decode.bulk.trailer", err)
		}
		return BulkValue(content), nil
	}
	return RawBulkValue(content), nil
}

func (r *Reader) readArray() (Value, error) {
	line, err := r.readLine()
	if err != nil {
		return Value{}, kverrors.NewParseError("decode.array.length", err)
	}
	n, err := strconv.Atoi(string(line))
	if err != nil {
		return Value{}, kverrors.NewParseError("decode.array.length", err)
	}
	if n < 0 {
		n = 0
	}
	elems := make([]Value, n)
	for i := 0; i < n; i++ {
		v, err := r.ReadValue()
		if err != nil {
			return Value{}, err
		}
		elems[i] = v
	}
	return ArrayValue(elems...), nil
}

func (r *Reader) readMap() (Value, error) {
	line, err := r.readLine()
	if err != nil {
		return Value{}, kverrors.NewParseError("decode.map.length", err)
	}
	n, err := strconv.Atoi(string(line))
	if err != nil {
		return Value{}, kverrors.NewParseError("decode.map.length", err)
	}
	if n < 0 {
		n = 0
	}
	keys := make([]string, n)
	vals := make([]Value, n)
	for i := 0; i < n; i++ {
		k, err := r.ReadValue()
		if err != nil {
			return Value{}, err
		}
		if k.Type != SimpleString {
			return Value{}, kverrors.NewParseError("decode.map.key", fmt.Errorf("map key must be a simple string, got %q", k.Type))
		}
		v, err := r.ReadValue()
		if err != nil {
			return Value{}, err
		}
		keys[i] = k.Str
		vals[i] = v
	}
	return MapValue(keys, vals), nil
}
