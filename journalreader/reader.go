// Package journalreader turns a byte stream (a migration socket, a file,
// an in-memory buffer) into a sequence of entries and, above that, a
// sequence of transactions assembled from the COMMAND / MULTI_COMMAND /
// EXEC opcode pattern.
package journalreader

import (
	"io"

	"github.com/rohan-flutterint/dragonfly/entry"
	"github.com/rohan-flutterint/dragonfly/execctx"
)

// Reader decodes framed entries one at a time from an underlying byte
// source.
type Reader struct {
	src io.Reader
}

// New wraps src for entry-at-a-time decoding.
func New(src io.Reader) *Reader {
	return &Reader{src: src}
}

// ReadEntry reads the next framed entry. On failure it reports the error
// to ctx (first-write-wins) and returns it; callers should treat any
// error, including entry.ErrShortRead, as the end of this stream.
func (r *Reader) ReadEntry(ctx *execctx.Context) (entry.Entry, error) {
	e, err := entry.ReadFrame(r.src)
	if err != nil {
		if ctx != nil {
			ctx.ReportError(err)
		}
		return entry.Entry{}, err
	}
	return e, nil
}
