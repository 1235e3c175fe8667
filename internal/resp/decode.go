package resp

import "bytes"

// Frame pairs a decoded top-level Value with the number of bytes it
// consumed from the input, the byte_length decode_commands is specified
// to return — used by the replica to advance its replication offset.
type Frame struct {
	Value Value
	Len   int
}

// DecodeCommands splits a concatenated batch of frames into individual
// Frames, each carrying the exact byte length it consumed. This is the
// pure, buffer-oriented counterpart to Reader.ReadValue, used directly by
// codec round-trip tests and anywhere a whole already-received buffer
// (rather than a live connection) needs splitting.
func DecodeCommands(data []byte) ([]Frame, error) {
	r := NewReader(bytes.NewReader(data))
	var frames []Frame
	var consumed int64
	for consumed < int64(len(data)) {
		v, err := r.ReadValue()
		if err != nil {
			return nil, err
		}
		n := r.BytesRead()
		frames = append(frames, Frame{Value: v, Len: int(n - consumed)})
		consumed = n
	}
	return frames, nil
}

// Decode parses data and returns a single scalar Value if data contains
// exactly one top-level frame, or an Array of all top-level frames
// otherwise.
func Decode(data []byte) (Value, error) {
	frames, err := DecodeCommands(data)
	if err != nil {
		return Value{}, err
	}
	if len(frames) == 1 {
		return frames[0].Value, nil
	}
	vs := make([]Value, len(frames))
	for i, f := range frames {
		vs[i] = f.Value
	}
	return ArrayValue(vs...), nil
}
