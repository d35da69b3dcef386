package task

import (
	"bytes"
	"sync"
)

// outputBuffer is a bounded, goroutine-safe capture of a task's combined
// stdout and stderr. When the limit is exceeded the oldest bytes are dropped,
// up to the next line boundary so the buffer never starts mid-line.
type outputBuffer struct {
	mu      sync.Mutex
	data    []byte
	max     int
	written int64
}

func newOutputBuffer(maxBytes int) *outputBuffer {
	return &outputBuffer{
		data: make([]byte, 0, min(maxBytes, 4096)),
		max:  maxBytes,
	}
}

// Write implements io.Writer.
func (b *outputBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.data = append(b.data, p...)
	b.written += int64(len(p))
	if len(b.data) > b.max {
		cut := len(b.data) - b.max
		if b.data[cut-1] != '\n' {
			if i := bytes.IndexByte(b.data[cut:], '\n'); i >= 0 && cut+i+1 < len(b.data) {
				cut += i + 1
			}
		}
		b.data = append(b.data[:0:0], b.data[cut:]...)
	}
	return len(p), nil
}

func (b *outputBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.data)
}

// Dropped reports how many bytes have been discarded to respect the limit.
func (b *outputBuffer) Dropped() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.written - int64(len(b.data))
}
