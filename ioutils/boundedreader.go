package ioutils

import (
	"errors"
	"io"
)

// ErrBoundedReaderShort is returned by BoundedReader.Close when the caller
// did not drain the declared length before closing.
var ErrBoundedReaderShort = errors.New("ioutils: bounded reader closed before fully drained")

type boundedReader struct {
	r         io.Reader
	remaining int64
}

// NewBoundedReader wraps r so that at most n bytes can ever be read from
// it, returning io.EOF once exhausted regardless of how much data r still
// holds. It is used for proxied stream-mode deliveries where the caller
// must read exactly the frame's declared length directly off the
// connection before the next frame can be decoded.
func NewBoundedReader(r io.Reader, n int64) io.ReadCloser {
	return &boundedReader{r: r, remaining: n}
}

func (b *boundedReader) Read(p []byte) (int, error) {
	if b.remaining <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > b.remaining {
		p = p[:b.remaining]
	}
	n, err := b.r.Read(p)
	b.remaining -= int64(n)
	return n, err
}

// Close reports whether the reader was fully drained; it never closes the
// underlying stream, which outlives any one frame.
func (b *boundedReader) Close() error {
	if b.remaining > 0 {
		return ErrBoundedReaderShort
	}
	return nil
}

// Remaining returns how many bytes are left to read.
func (b *boundedReader) Remaining() int64 {
	return b.remaining
}
