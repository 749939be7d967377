package kfmt

import "io"

// ringBufferSize is the capacity of the buffer that captures Printf output
// before an output sink is attached. It holds a full 80x25 text screen and
// must be a power of 2.
const ringBufferSize = 2048

// ringBuffer keeps the most recent ringBufferSize bytes written to it. Once
// full, each new byte evicts the oldest one.
type ringBuffer struct {
	buf   [ringBufferSize]byte
	start int
	count int
}

// Write implements io.Writer. It never fails.
func (rb *ringBuffer) Write(p []byte) (int, error) {
	for _, b := range p {
		rb.buf[(rb.start+rb.count)&(ringBufferSize-1)] = b
		if rb.count == ringBufferSize {
			rb.start = (rb.start + 1) & (ringBufferSize - 1)
			continue
		}
		rb.count++
	}

	return len(p), nil
}

// Read implements io.Reader, consuming buffered bytes oldest first.
func (rb *ringBuffer) Read(p []byte) (int, error) {
	if rb.count == 0 {
		return 0, io.EOF
	}

	n := rb.count
	if tail := ringBufferSize - rb.start; n > tail {
		n = tail
	}
	if n > len(p) {
		n = len(p)
	}

	copy(p, rb.buf[rb.start:rb.start+n])
	rb.start = (rb.start + n) & (ringBufferSize - 1)
	rb.count -= n
	return n, nil
}

// WriteTo implements io.WriterTo so the buffer can be drained into a sink
// without an intermediate copy buffer.
func (rb *ringBuffer) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for rb.count != 0 {
		n := rb.count
		if tail := ringBufferSize - rb.start; n > tail {
			n = tail
		}

		written, err := w.Write(rb.buf[rb.start : rb.start+n])
		total += int64(written)
		rb.start = (rb.start + written) & (ringBufferSize - 1)
		rb.count -= written
		if err != nil {
			return total, err
		}
		if written == 0 {
			return total, io.ErrShortWrite
		}
	}

	return total, nil
}
