// Package asyncio defines poll-based byte stream contracts for asyncrt,
// along with futures that drive them: Read, ReadFull, ReadAll, Write,
// WriteAll, Copy, Flush and Shutdown.
//
// Readers report end of stream with io.EOF, in the manner of io.Reader. A
// Reader or Writer must not block: when no progress is possible it
// arranges for the Context's waker to be woken and returns Pending.
package asyncio

import (
	"errors"
	"io"

	"github.com/joeycumines/go-asyncrt"
)

// Reader is the asynchronous counterpart of io.Reader.
type Reader interface {
	// PollRead reads up to len(p) bytes into p. A ready result with n > 0
	// may carry an error, as with io.Reader.
	PollRead(cx *asyncrt.Context, p []byte) asyncrt.Poll[asyncrt.Result[int]]
}

// Writer is the asynchronous counterpart of io.Writer, plus flush and
// shutdown of the write side.
type Writer interface {
	PollWrite(cx *asyncrt.Context, p []byte) asyncrt.Poll[asyncrt.Result[int]]
	PollFlush(cx *asyncrt.Context) asyncrt.Poll[error]
	// PollShutdown flushes and then closes the write side. Peers observe
	// io.EOF.
	PollShutdown(cx *asyncrt.Context) asyncrt.Poll[error]
}

// ReadWriter groups Reader and Writer.
type ReadWriter interface {
	Reader
	Writer
}

// copyBufferSize is the buffer Copy allocates.
const copyBufferSize = 32 * 1024

// Read reads once from r into p.
func Read(r Reader, p []byte) asyncrt.Future[asyncrt.Result[int]] {
	return asyncrt.FutureFunc[asyncrt.Result[int]](func(cx *asyncrt.Context) asyncrt.Poll[asyncrt.Result[int]] {
		return r.PollRead(cx, p)
	})
}

// ReadFull reads exactly len(p) bytes into p, with the semantics of
// io.ReadFull: io.EOF if nothing was read, io.ErrUnexpectedEOF if the
// stream ended part way.
func ReadFull(r Reader, p []byte) asyncrt.Future[asyncrt.Result[int]] {
	return &readFull{r: r, p: p}
}

type readFull struct {
	r Reader
	p []byte
	n int
}

func (f *readFull) Poll(cx *asyncrt.Context) asyncrt.Poll[asyncrt.Result[int]] {
	for f.n < len(f.p) {
		res, ok := f.r.PollRead(cx, f.p[f.n:]).Value()
		if !ok {
			return asyncrt.Pending[asyncrt.Result[int]]()
		}
		f.n += res.Value
		if res.Err == nil {
			continue
		}
		err := res.Err
		switch {
		case f.n == len(f.p):
			err = nil
		case errors.Is(err, io.EOF) && f.n > 0:
			err = io.ErrUnexpectedEOF
		}
		return asyncrt.Ready(asyncrt.Result[int]{Value: f.n, Err: err})
	}
	return asyncrt.Ready(asyncrt.Ok(f.n))
}

// ReadAll reads from r until io.EOF, which is not reported as an error.
func ReadAll(r Reader) asyncrt.Future[asyncrt.Result[[]byte]] {
	return &readAll{r: r, buf: make([]byte, 0, 512)}
}

type readAll struct {
	r   Reader
	buf []byte
}

func (f *readAll) Poll(cx *asyncrt.Context) asyncrt.Poll[asyncrt.Result[[]byte]] {
	for {
		if len(f.buf) == cap(f.buf) {
			f.buf = append(f.buf, 0)[:len(f.buf)]
		}
		res, ok := f.r.PollRead(cx, f.buf[len(f.buf):cap(f.buf)]).Value()
		if !ok {
			return asyncrt.Pending[asyncrt.Result[[]byte]]()
		}
		f.buf = f.buf[:len(f.buf)+res.Value]
		if res.Err != nil {
			err := res.Err
			if errors.Is(err, io.EOF) {
				err = nil
			}
			return asyncrt.Ready(asyncrt.Result[[]byte]{Value: f.buf, Err: err})
		}
	}
}

// Write writes once from p to w, returning the count accepted.
func Write(w Writer, p []byte) asyncrt.Future[asyncrt.Result[int]] {
	return asyncrt.FutureFunc[asyncrt.Result[int]](func(cx *asyncrt.Context) asyncrt.Poll[asyncrt.Result[int]] {
		return w.PollWrite(cx, p)
	})
}

// WriteAll writes all of p. A write accepting nothing fails with
// io.ErrShortWrite.
func WriteAll(w Writer, p []byte) asyncrt.Future[asyncrt.Result[int]] {
	return &writeAll{w: w, p: p}
}

type writeAll struct {
	w Writer
	p []byte
	n int
}

func (f *writeAll) Poll(cx *asyncrt.Context) asyncrt.Poll[asyncrt.Result[int]] {
	for f.n < len(f.p) {
		res, ok := f.w.PollWrite(cx, f.p[f.n:]).Value()
		if !ok {
			return asyncrt.Pending[asyncrt.Result[int]]()
		}
		f.n += res.Value
		if res.Err == nil && res.Value == 0 {
			res.Err = io.ErrShortWrite
		}
		if res.Err != nil {
			return asyncrt.Ready(asyncrt.Result[int]{Value: f.n, Err: res.Err})
		}
	}
	return asyncrt.Ready(asyncrt.Ok(f.n))
}

// Flush flushes w.
func Flush(w Writer) asyncrt.Future[error] {
	return asyncrt.FutureFunc[error](w.PollFlush)
}

// Shutdown shuts down the write side of w.
func Shutdown(w Writer) asyncrt.Future[error] {
	return asyncrt.FutureFunc[error](w.PollShutdown)
}

// Copy copies from src to dst until io.EOF, then flushes dst. It returns
// the number of bytes copied.
func Copy(dst Writer, src Reader) asyncrt.Future[asyncrt.Result[int64]] {
	return &copyFuture{dst: dst, src: src}
}

type copyFuture struct {
	dst        Writer
	src        Reader
	buf        []byte
	start, end int
	written    int64
	eof        bool
	// readErr is reported once the bytes read alongside it are written
	readErr error
}

func (f *copyFuture) Poll(cx *asyncrt.Context) asyncrt.Poll[asyncrt.Result[int64]] {
	if f.buf == nil {
		f.buf = make([]byte, copyBufferSize)
	}
	for {
		if f.start < f.end {
			res, ok := f.dst.PollWrite(cx, f.buf[f.start:f.end]).Value()
			if !ok {
				return asyncrt.Pending[asyncrt.Result[int64]]()
			}
			if res.Err == nil && res.Value == 0 {
				res.Err = io.ErrShortWrite
			}
			f.start += res.Value
			f.written += int64(res.Value)
			if res.Err != nil {
				return asyncrt.Ready(asyncrt.Result[int64]{Value: f.written, Err: res.Err})
			}
			continue
		}
		if f.readErr != nil {
			return asyncrt.Ready(asyncrt.Result[int64]{Value: f.written, Err: f.readErr})
		}
		if f.eof {
			err, ok := f.dst.PollFlush(cx).Value()
			if !ok {
				return asyncrt.Pending[asyncrt.Result[int64]]()
			}
			return asyncrt.Ready(asyncrt.Result[int64]{Value: f.written, Err: err})
		}
		res, ok := f.src.PollRead(cx, f.buf).Value()
		if !ok {
			return asyncrt.Pending[asyncrt.Result[int64]]()
		}
		f.start, f.end = 0, res.Value
		switch {
		case errors.Is(res.Err, io.EOF):
			f.eof = true
		case res.Err != nil:
			f.readErr = res.Err
		}
	}
}
