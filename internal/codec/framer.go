package codec

import "bytes"

// MaxFrameSize bounds the bytes a Framer keeps while waiting for a
// terminator.
const MaxFrameSize = 10 * 1024 * 1024

// Framer reassembles frames from a byte stream. Bytes after the last
// terminator of a chunk are kept and prefixed to the next chunk.
//
// A Framer is not safe for concurrent use.
type Framer struct {
	buf      []byte
	max      int
	dropping bool
}

// NewFramer returns a Framer that discards any pending frame growing past
// limit bytes. A limit of zero or less selects MaxFrameSize.
func NewFramer(limit int) *Framer {
	if limit <= 0 {
		limit = MaxFrameSize
	}
	return &Framer{max: limit}
}

// Feed consumes chunk and returns every frame it completed, without the
// terminator. overflow is set when a frame exceeded the size limit; the
// rest of that frame, up to its terminator, is discarded.
func (f *Framer) Feed(chunk []byte) (frames [][]byte, overflow bool) {
	if f.dropping {
		i := bytes.Index(chunk, terminator)
		if i < 0 {
			return nil, false
		}
		f.dropping = false
		chunk = chunk[i+len(terminator):]
	}

	// only the new bytes can hold a terminator not seen before
	scan := len(f.buf) - len(terminator) + 1
	if scan < 0 {
		scan = 0
	}
	f.buf = append(f.buf, chunk...)

	consumed := 0
	for {
		i := bytes.Index(f.buf[scan:], terminator)
		if i < 0 {
			break
		}
		end := scan + i
		frame := make([]byte, end-consumed)
		copy(frame, f.buf[consumed:end])
		frames = append(frames, frame)
		consumed = end + len(terminator)
		scan = consumed
	}
	if consumed > 0 {
		n := copy(f.buf, f.buf[consumed:])
		f.buf = f.buf[:n]
	}

	switch {
	case len(f.buf) > f.max:
		f.buf = nil
		f.dropping = true
		overflow = true
	case len(f.buf) == 0:
		f.buf = nil
	}
	return frames, overflow
}

// Buffered returns the number of bytes waiting for a terminator.
func (f *Framer) Buffered() int {
	return len(f.buf)
}

// Reset discards any partial frame.
func (f *Framer) Reset() {
	f.buf = nil
	f.dropping = false
}
