package capture

import (
	"sync"

	"github.com/smallnest/ringbuffer"
)

// stderrTailSize keeps the last few lines of ffmpeg diagnostics
const stderrTailSize = 4096

// tailWriter keeps the most recent bytes written to it, dropping the oldest.
type tailWriter struct {
	mu  sync.Mutex
	buf *ringbuffer.RingBuffer
}

func newTailWriter(size int) *tailWriter {
	return &tailWriter{buf: ringbuffer.New(size)}
}

func (w *tailWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	n := len(p)
	if n > w.buf.Capacity() {
		p = p[n-w.buf.Capacity():]
	}
	if free := w.buf.Free(); free < len(p) {
		discard := make([]byte, len(p)-free)
		if _, err := w.buf.Read(discard); err != nil {
			return 0, err
		}
	}
	if _, err := w.buf.Write(p); err != nil {
		return 0, err
	}
	return n, nil
}

// String drains the buffered tail.
func (w *tailWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.buf.Length() == 0 {
		return ""
	}
	out := make([]byte, w.buf.Length())
	n, _ := w.buf.Read(out)
	return string(out[:n])
}
