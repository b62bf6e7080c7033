// Package stream implements the advance-only, bounds-checked byte windows that the DDML codec reads from and
// writes to. An OStream/IStream never lets a caller see more of the underlying buffer than the bytes just advanced
// past, mirroring the trinary slice abstraction the wire codec was originally built on.
package stream

import "errors"

// ErrShortBuffer is returned by TryAdvance when fewer than the requested number of bytes remain.
var ErrShortBuffer = errors.New("stream: short buffer")

// OStream is an advance-only output window. A successful TryAdvance returns a slice the caller must fill before
// calling TryAdvance again; implementations are free to invalidate previously returned slices at that point.
type OStream interface {
	// TryAdvance returns the next n bytes of the output buffer, or ErrShortBuffer if fewer than n remain.
	TryAdvance(n int) ([]byte, error)

	// Commit is a flush hint. It is idempotent and never fails.
	Commit()
}

// IStream is the read-side counterpart of OStream.
type IStream interface {
	// TryAdvance returns the next n bytes of the input buffer, or ErrShortBuffer if fewer than n remain.
	TryAdvance(n int) ([]byte, error)

	// Commit is a flush hint. It is idempotent and never fails.
	Commit()
}

// SliceWriter is an OStream backed by a fixed, pre-sized byte slice. Callers typically size buf with a sizeContext
// pass before wrapping into it.
type SliceWriter struct {
	buf []byte
	pos int
}

// NewSliceWriter returns an OStream that writes into buf, starting at offset 0.
func NewSliceWriter(buf []byte) *SliceWriter {
	return &SliceWriter{buf: buf}
}

// TryAdvance implements OStream.
func (w *SliceWriter) TryAdvance(n int) ([]byte, error) {
	if len(w.buf)-w.pos < n {
		return nil, ErrShortBuffer
	}
	s := w.buf[w.pos : w.pos+n : w.pos+n]
	w.pos += n
	return s, nil
}

// Commit implements OStream.
func (w *SliceWriter) Commit() {}

// Written returns the number of bytes advanced past so far.
func (w *SliceWriter) Written() int { return w.pos }

// SliceReader is an IStream backed by a byte slice.
type SliceReader struct {
	buf []byte
	pos int
}

// NewSliceReader returns an IStream that reads from buf, starting at offset 0.
func NewSliceReader(buf []byte) *SliceReader {
	return &SliceReader{buf: buf}
}

// TryAdvance implements IStream.
func (r *SliceReader) TryAdvance(n int) ([]byte, error) {
	if len(r.buf)-r.pos < n {
		return nil, ErrShortBuffer
	}
	s := r.buf[r.pos : r.pos+n : r.pos+n]
	r.pos += n
	return s, nil
}

// Commit implements IStream.
func (r *SliceReader) Commit() {}

// Read returns the number of bytes advanced past so far.
func (r *SliceReader) Read() int { return r.pos }

// Remaining returns the number of unread bytes left in the stream.
func (r *SliceReader) Remaining() int { return len(r.buf) - r.pos }

// NoOStream is a zero-sized OStream whose TryAdvance always fails. It exists only as a type witness for
// size-computation contexts that need to satisfy an OStream-shaped API without ever touching real storage.
type NoOStream struct{}

// TryAdvance always fails.
func (NoOStream) TryAdvance(int) ([]byte, error) { return nil, ErrShortBuffer }

// Commit does nothing.
func (NoOStream) Commit() {}

// NoIStream is the read-side counterpart of NoOStream.
type NoIStream struct{}

// TryAdvance always fails.
func (NoIStream) TryAdvance(int) ([]byte, error) { return nil, ErrShortBuffer }

// Commit does nothing.
func (NoIStream) Commit() {}
