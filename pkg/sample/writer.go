package sample

import (
	"fmt"
	"io"
)

// IOError wraps a failed write, seek, flush or sync on the output stream.
// Once one has occurred the stream is no longer a valid PCM body.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// Writer encodes quantized samples onto a stream in time order.
type Writer struct {
	w       io.Writer
	f       Format
	scratch [4]byte
	n       int64
}

// NewWriter returns a Writer encoding samples of format f onto w.
func NewWriter(w io.Writer, f Format) *Writer {
	return &Writer{w: w, f: f}
}

// Write appends one sample. A short or failed write is returned as *IOError.
func (sw *Writer) Write(s int32) error {
	buf := sw.scratch[:sw.f.Width()]
	sw.f.Put(buf, s)
	n, err := sw.w.Write(buf)
	sw.n += int64(n)
	if err != nil {
		return &IOError{Op: "write sample", Err: err}
	}
	if n != len(buf) {
		return &IOError{Op: "write sample", Err: io.ErrShortWrite}
	}
	return nil
}

// Written reports the number of bytes written so far.
func (sw *Writer) Written() int64 {
	return sw.n
}
