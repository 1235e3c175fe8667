package store

import (
	"fmt"
	"strconv"
	"strings"

	kverrors "github.com/alxayo/go-kv/internal/errors"
)

// StreamID is the (ms, seq) pair spec.md §3 describes, ordered first by
// ms then by seq.
type StreamID struct {
	Ms  int64
	Seq int64
}

func (id StreamID) String() string {
	return fmt.Sprintf("%d-%d", id.Ms, id.Seq)
}

// Compare returns -1, 0, or 1 as id is less than, equal to, or greater
// than other.
func (id StreamID) Compare(other StreamID) int {
	switch {
	case id.Ms < other.Ms:
		return -1
	case id.Ms > other.Ms:
		return 1
	case id.Seq < other.Seq:
		return -1
	case id.Seq > other.Seq:
		return 1
	default:
		return 0
	}
}

var zeroID = StreamID{}

// ParseStreamID parses a fully explicit "<ms>-<seq>" id. It does not
// handle "*" or "<ms>-*" resolution forms; callers needing id resolution
// against a stream's current last id should use Stream.ResolveID.
func ParseStreamID(s string) (StreamID, error) {
	parts := strings.SplitN(s, "-", 2)
	ms, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return StreamID{}, kverrors.NewInvalidArgument("stream_id.ms", err)
	}
	if len(parts) == 1 {
		return StreamID{Ms: ms}, nil
	}
	seq, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return StreamID{}, kverrors.NewInvalidArgument("stream_id.seq", err)
	}
	return StreamID{Ms: ms, Seq: seq}, nil
}

// Field is an ordered field/value pair within a stream entry.
type Field struct {
	Name  string
	Value []byte
}

// StreamEntry is one appended record.
type StreamEntry struct {
	ID     StreamID
	Fields []Field
	TsMs   int64 // wall-clock at insert
}

// Stream is an append-only, strictly-monotonic-id ordered log.
type Stream struct {
	Entries []StreamEntry
	Last    StreamID
}

// ResolveID implements spec.md §3's id resolution rules:
//   - "*"        -> (now_ms, 0)
//   - "<ms>-*"   -> seq = last.seq+1 if last.ms==ms else 0, except ms==0
//                   with no prior entries resolves to seq=1 (avoids 0-0).
//   - "<ms>-<seq>" explicit, used verbatim.
func (s *Stream) ResolveID(spec string, nowFn func() int64) (StreamID, error) {
	if spec == "*" {
		return StreamID{Ms: nowFn(), Seq: 0}, nil
	}
	if strings.HasSuffix(spec, "-*") {
		msPart := strings.TrimSuffix(spec, "-*")
		ms, err := strconv.ParseInt(msPart, 10, 64)
		if err != nil {
			return StreamID{}, kverrors.NewInvalidArgument("xadd.id", err)
		}
		var seq int64
		if len(s.Entries) > 0 && s.Last.Ms == ms {
			seq = s.Last.Seq + 1
		} else if ms == 0 {
			seq = 1
		}
		return StreamID{Ms: ms, Seq: seq}, nil
	}
	return ParseStreamID(spec)
}

// Append resolves and validates id, then appends the entry. It enforces
// strict monotonicity and forbids 0-0, with the exact error messages
// spec.md §4.2 requires.
func (s *Stream) Append(idSpec string, fields []Field, tsMs int64, nowFn func() int64) (StreamID, error) {
	id, err := s.ResolveID(idSpec, nowFn)
	if err != nil {
		return StreamID{}, err
	}
	if id.Compare(zeroID) == 0 {
		return StreamID{}, kverrors.ErrStreamIDZero
	}
	if len(s.Entries) > 0 && id.Compare(s.Last) <= 0 {
		return StreamID{}, kverrors.ErrStreamIDTooSmall
	}
	s.Entries = append(s.Entries, StreamEntry{ID: id, Fields: fields, TsMs: tsMs})
	s.Last = id
	return id, nil
}

// Range returns entries with id in [start, end] inclusive, per spec.md
// §4.4's XRANGE contract ("-" -> 0-0, "+" -> max, handled by the caller
// resolving those sentinels before calling Range).
func (s *Stream) Range(start, end StreamID) []StreamEntry {
	var out []StreamEntry
	for _, e := range s.Entries {
		if e.ID.Compare(start) >= 0 && e.ID.Compare(end) <= 0 {
			out = append(out, e)
		}
	}
	return out
}

// After returns entries with id strictly greater than after, the shape
// XREAD needs for both its non-blocking and blocking forms.
func (s *Stream) After(after StreamID) []StreamEntry {
	var out []StreamEntry
	for _, e := range s.Entries {
		if e.ID.Compare(after) > 0 {
			out = append(out, e)
		}
	}
	return out
}

// MaxStreamID is the sentinel "+" resolves to in XRANGE.
var MaxStreamID = StreamID{Ms: 1<<63 - 1, Seq: 1<<63 - 1}
