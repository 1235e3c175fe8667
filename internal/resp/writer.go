package resp

import (
	"bufio"
	"io"
)

// Writer batches a command's zero-or-more response frames and flushes them
// with a single underlying Write call, satisfying the "single contiguous
// write per command" ordering guarantee.
type Writer struct {
	bw *bufio.Writer
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{bw: bufio.NewWriterSize(w, 4096)}
}

// WriteValues encodes each value in order, then flushes once.
func (w *Writer) WriteValues(vs ...Value) error {
	for _, v := range vs {
		if err := EncodeTo(w.bw, v); err != nil {
			return err
		}
	}
	return w.bw.Flush()
}
