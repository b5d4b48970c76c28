package command

import (
	"bytes"
	"log/slog"
	"sync"
)

// lineWriter calls emit once per complete line written to it.
type lineWriter struct {
	mu      sync.Mutex
	emit    func(string)
	partial []byte
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	data := append(w.partial, p...)
	for {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			break
		}
		w.emit(string(bytes.TrimRight(data[:i], "\r")))
		data = data[i+1:]
	}
	w.partial = append(w.partial[:0:0], data...)
	return len(p), nil
}

// Flush emits an unterminated last line.
func (w *lineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.partial) > 0 {
		w.emit(string(w.partial))
		w.partial = nil
	}
}

// tailBuffer keeps the last n complete lines written to it.
type tailBuffer struct {
	lineWriter
	n     int
	lines []string
}

func newTailBuffer(n int) *tailBuffer {
	t := &tailBuffer{n: n}
	t.emit = t.push
	return t
}

func (t *tailBuffer) push(line string) {
	if t.n <= 0 {
		return
	}
	t.lines = append(t.lines, line)
	if len(t.lines) > t.n {
		t.lines = t.lines[len(t.lines)-t.n:]
	}
}

// Lines returns the retained lines, flushing any unterminated last line.
func (t *tailBuffer) Lines() []string {
	t.Flush()
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.lines...)
}

// newEchoWriter logs every line of one output stream at Info as it arrives.
func newEchoWriter(logger *slog.Logger, stream string) *lineWriter {
	return &lineWriter{emit: func(line string) {
		logger.Info(line, slog.String("stream", stream))
	}}
}
