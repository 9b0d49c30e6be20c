package supervisor

import (
	"bytes"
	"io"
	"sync"
	"time"
)

// maxLineBytes caps a buffered partial line; longer lines are split.
const maxLineBytes = 64 * 1024

// lineWriter turns a byte stream into Line values. It is used as
// exec.Cmd.Stdout/Stderr so the copying goroutine belongs to os/exec and
// is bounded by Cmd.WaitDelay.
type lineWriter struct {
	mu      sync.Mutex
	process string
	stream  Stream
	sink    LineSink
	buf     []byte
}

func newLineWriter(process string, stream Stream, sink LineSink) *lineWriter {
	return &lineWriter{process: process, stream: stream, sink: sink}
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		w.emit(w.buf[:i])
		w.buf = w.buf[i+1:]
	}
	for len(w.buf) >= maxLineBytes {
		w.emit(w.buf[:maxLineBytes])
		w.buf = w.buf[maxLineBytes:]
	}
	// Keep the backing array from growing without bound.
	if len(w.buf) == 0 {
		w.buf = nil
	}
	return len(p), nil
}

// Flush emits a trailing line without newline.
func (w *lineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.buf) > 0 {
		w.emit(w.buf)
		w.buf = nil
	}
}

func (w *lineWriter) emit(b []byte) {
	if w.sink == nil {
		return
	}
	b = bytes.TrimSuffix(b, []byte("\r"))
	w.sink(Line{
		Process: w.process,
		Stream:  w.stream,
		Text:    string(b),
		Time:    time.Now(),
	})
}

// OutputWriter splits whatever is written to it into lines for a sink.
type OutputWriter interface {
	io.Writer
	// Flush emits a pending partial line.
	Flush()
}

// NewOutputWriter returns a writer delivering lines of process output to
// sink. It is how one-shot commands share the line handling of supervised
// children.
func NewOutputWriter(process string, stream Stream, sink LineSink) OutputWriter {
	return newLineWriter(process, stream, sink)
}
