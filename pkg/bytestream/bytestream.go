// Package bytestream implements a bounded, in-order byte FIFO shared by a
// single writer and a single reader, with close/error signalling.
//
// The original CS144 design exposes the Reader and Writer capabilities by
// downcasting a single ByteStream object to different base classes that
// happen to share memory layout. Go has no such trick, and the spec's own
// redesign notes call for replacing it: ByteStream here is the sole owner
// of the buffer and exposes two typed capability views, Reader and Writer,
// each a thin wrapper holding a pointer back to the shared state.
package bytestream

// ByteStream is a bounded FIFO of bytes. Use Reader() and Writer() to get
// the capability views used to drain and fill it.
type ByteStream struct {
	capacity uint64

	chunks   [][]byte
	headOff  int // bytes already consumed from chunks[0]
	buffered uint64

	pushed uint64
	popped uint64

	closed bool
	erred  bool
}

// New creates a ByteStream with the given capacity in bytes.
func New(capacity uint64) *ByteStream {
	return &ByteStream{capacity: capacity}
}

// Reader is the read-only capability view of a ByteStream.
type Reader struct{ s *ByteStream }

// Writer is the write-only capability view of a ByteStream.
type Writer struct{ s *ByteStream }

// Reader returns the read capability for this stream.
func (s *ByteStream) Reader() Reader { return Reader{s} }

// Writer returns the write capability for this stream.
func (s *ByteStream) Writer() Writer { return Writer{s} }

// SetError marks the stream as having suffered a protocol error. The flag
// is sticky and orthogonal to Close/finished state.
func (s *ByteStream) SetError() { s.erred = true }

// HasError reports whether SetError was ever called.
func (s *ByteStream) HasError() bool { return s.erred }

// SetError marks the underlying stream erred, via the writer capability.
func (w Writer) SetError() { w.s.erred = true }

// HasError reports the underlying stream's sticky error flag, via the
// writer capability.
func (w Writer) HasError() bool { return w.s.erred }

// SetError marks the underlying stream erred, via the reader capability.
func (r Reader) SetError() { r.s.erred = true }

// HasError reports the underlying stream's sticky error flag, via the
// reader capability.
func (r Reader) HasError() bool { return r.s.erred }

// Push appends up to len(data) bytes, silently dropping anything beyond
// the stream's available capacity. A no-op once closed.
func (w Writer) Push(data []byte) {
	s := w.s
	if s.closed || len(data) == 0 {
		return
	}
	avail := w.AvailableCapacity()
	if avail == 0 {
		return
	}
	n := uint64(len(data))
	if n > avail {
		n = avail
	}
	chunk := make([]byte, n)
	copy(chunk, data[:n])
	s.chunks = append(s.chunks, chunk)
	s.pushed += n
	s.buffered += n
}

// Close marks the writer done; idempotent.
func (w Writer) Close() { w.s.closed = true }

// IsClosed reports whether Close has been called.
func (w Writer) IsClosed() bool { return w.s.closed }

// AvailableCapacity is how many more bytes Push will currently accept.
func (w Writer) AvailableCapacity() uint64 { return w.s.capacity - w.s.buffered }

// BytesPushed is the cumulative count of bytes ever accepted by Push.
func (w Writer) BytesPushed() uint64 { return w.s.pushed }

// IsFinished reports whether the writer is closed and every pushed byte
// has been popped.
func (r Reader) IsFinished() bool { return r.s.closed && r.s.buffered == 0 }

// BytesBuffered is how many bytes are currently queued for the reader.
func (r Reader) BytesBuffered() uint64 { return r.s.buffered }

// BytesPopped is the cumulative count of bytes ever removed by Pop.
func (r Reader) BytesPopped() uint64 { return r.s.popped }

// Peek returns a view of some prefix of the buffered bytes. It is empty
// if and only if BytesBuffered is zero; it may return less than the full
// buffered amount, since storage may be split across multiple chunks.
func (r Reader) Peek() []byte {
	if r.s.buffered == 0 {
		return nil
	}
	return r.s.chunks[0][r.s.headOff:]
}

// Pop discards the first n bytes from the buffer. n must not exceed
// BytesBuffered.
func (r Reader) Pop(n uint64) {
	s := r.s
	s.popped += n
	s.buffered -= n
	for n > 0 {
		remaining := uint64(len(s.chunks[0])) - uint64(s.headOff)
		if n < remaining {
			s.headOff += int(n)
			return
		}
		s.chunks = s.chunks[1:]
		s.headOff = 0
		n -= remaining
	}
}

// Read drains up to n bytes (or everything buffered, if less) in order,
// the loop-peek-then-pop helper the original ships as a free function.
func Read(r Reader, n uint64) []byte {
	out := make([]byte, 0, n)
	for r.BytesBuffered() > 0 && uint64(len(out)) < n {
		view := r.Peek()
		want := n - uint64(len(out))
		if uint64(len(view)) > want {
			view = view[:want]
		}
		out = append(out, view...)
		r.Pop(uint64(len(view)))
	}
	return out
}
