package logger

import (
	"bufio"
	"errors"
	"io"
	"sync"
)

var errWriterClosed = errors.New("logger: writer closed")

// lineOp is either a rendered line or a flush barrier.
type lineOp struct {
	line []byte
	ack  chan error
}

// lineWriter moves rendered lines to the sinks on a single goroutine.
// Lines are buffered and flushed whenever the queue runs empty.
type lineWriter struct {
	ops  chan lineOp
	done chan struct{}
	out  *bufio.Writer

	sendMu sync.RWMutex
	closed bool

	errMu sync.Mutex
	err   error
}

func newLineWriter(writers []io.Writer, bufSize int) *lineWriter {
	if bufSize <= 0 {
		bufSize = 64 * 1024
	}
	sinks := make([]io.Writer, 0, len(writers))
	for _, w := range writers {
		if w != nil {
			sinks = append(sinks, w)
		}
	}
	w := &lineWriter{
		ops:  make(chan lineOp, 256),
		done: make(chan struct{}),
		out:  bufio.NewWriterSize(io.MultiWriter(sinks...), bufSize),
	}
	go w.run()
	return w
}

func (w *lineWriter) run() {
	defer close(w.done)
	for op := range w.ops {
		if op.ack != nil {
			op.ack <- w.out.Flush()
			continue
		}
		if _, err := w.out.Write(op.line); err != nil {
			w.fail(err)
			continue
		}
		if len(w.ops) == 0 {
			w.fail(w.out.Flush())
		}
	}
	w.fail(w.out.Flush())
}

// Write queues a copy of p, blocking while the queue is full.
func (w *lineWriter) Write(p []byte) error {
	if err := w.Err(); err != nil {
		return err
	}
	if len(p) == 0 {
		return nil
	}
	line := append([]byte(nil), p...)
	w.sendMu.RLock()
	defer w.sendMu.RUnlock()
	if w.closed {
		return errWriterClosed
	}
	w.ops <- lineOp{line: line}
	return nil
}

// Flush returns once every line queued before the call reached the sinks.
func (w *lineWriter) Flush() error {
	ack := make(chan error, 1)
	w.sendMu.RLock()
	if w.closed {
		w.sendMu.RUnlock()
		return w.Err()
	}
	w.ops <- lineOp{ack: ack}
	w.sendMu.RUnlock()
	if err := <-ack; err != nil {
		return err
	}
	return w.Err()
}

// Close drains the queue and reports the first write error.
func (w *lineWriter) Close() error {
	w.sendMu.Lock()
	if !w.closed {
		w.closed = true
		close(w.ops)
	}
	w.sendMu.Unlock()
	<-w.done
	return w.Err()
}

// Err returns the first error a sink reported.
func (w *lineWriter) Err() error {
	w.errMu.Lock()
	defer w.errMu.Unlock()
	return w.err
}

func (w *lineWriter) fail(err error) {
	if err == nil {
		return
	}
	w.errMu.Lock()
	if w.err == nil {
		w.err = err
	}
	w.errMu.Unlock()
}
