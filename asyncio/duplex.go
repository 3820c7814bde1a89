package asyncio

import (
	"bytes"
	"io"
	"sync"

	"github.com/joeycumines/go-asyncrt"
)

// Duplex returns a connected pair of in-memory streams. Bytes written to
// one are read from the other. Each direction buffers at most maxBuf bytes;
// a writer finding the buffer full waits for the reader.
func Duplex(maxBuf int) (*DuplexStream, *DuplexStream) {
	if maxBuf < 1 {
		panic("asyncio: duplex buffer must be positive")
	}
	ab, ba := &pipe{max: maxBuf}, &pipe{max: maxBuf}
	return &DuplexStream{read: ba, write: ab}, &DuplexStream{read: ab, write: ba}
}

// DuplexStream is one end of a Duplex pair. It implements ReadWriter.
type DuplexStream struct {
	read  *pipe
	write *pipe
}

// pipe is one direction of a duplex pair.
type pipe struct {
	mu  sync.Mutex
	buf bytes.Buffer
	max int

	readWaker  asyncrt.Waker
	writeWaker asyncrt.Waker

	// eof is set when the writer shuts down; readers see io.EOF once buf
	// is drained.
	eof bool

	// broken is set when the reader goes away.
	broken bool
}

// PollRead implements Reader.
func (s *DuplexStream) PollRead(cx *asyncrt.Context, p []byte) asyncrt.Poll[asyncrt.Result[int]] {
	pp := s.read
	pp.mu.Lock()
	switch {
	case len(p) == 0:
		pp.mu.Unlock()
		return asyncrt.Ready(asyncrt.Ok(0))
	case pp.buf.Len() > 0:
		n, _ := pp.buf.Read(p)
		w := pp.writeWaker
		pp.writeWaker = asyncrt.Waker{}
		pp.mu.Unlock()
		w.Wake()
		return asyncrt.Ready(asyncrt.Ok(n))
	case pp.eof:
		pp.mu.Unlock()
		return asyncrt.Ready(asyncrt.Err[int](io.EOF))
	case pp.broken:
		pp.mu.Unlock()
		return asyncrt.Ready(asyncrt.Err[int](io.ErrClosedPipe))
	}
	if w := cx.Waker(); !pp.readWaker.WillWake(w) {
		pp.readWaker = w
	}
	pp.mu.Unlock()
	return asyncrt.Pending[asyncrt.Result[int]]()
}

// PollWrite implements Writer. Writing after either side has closed fails
// with io.ErrClosedPipe.
func (s *DuplexStream) PollWrite(cx *asyncrt.Context, p []byte) asyncrt.Poll[asyncrt.Result[int]] {
	pp := s.write
	pp.mu.Lock()
	if pp.eof || pp.broken {
		pp.mu.Unlock()
		return asyncrt.Ready(asyncrt.Err[int](io.ErrClosedPipe))
	}
	if len(p) == 0 {
		pp.mu.Unlock()
		return asyncrt.Ready(asyncrt.Ok(0))
	}
	avail := pp.max - pp.buf.Len()
	if avail == 0 {
		if w := cx.Waker(); !pp.writeWaker.WillWake(w) {
			pp.writeWaker = w
		}
		pp.mu.Unlock()
		return asyncrt.Pending[asyncrt.Result[int]]()
	}
	n := min(len(p), avail)
	pp.buf.Write(p[:n])
	w := pp.readWaker
	pp.readWaker = asyncrt.Waker{}
	pp.mu.Unlock()
	w.Wake()
	return asyncrt.Ready(asyncrt.Ok(n))
}

// PollFlush implements Writer; writes are never buffered on the writer's
// side.
func (s *DuplexStream) PollFlush(*asyncrt.Context) asyncrt.Poll[error] {
	return asyncrt.Ready[error](nil)
}

// PollShutdown implements Writer. The peer reads the remaining bytes and
// then io.EOF.
func (s *DuplexStream) PollShutdown(*asyncrt.Context) asyncrt.Poll[error] {
	s.write.close(func(pp *pipe) { pp.eof = true })
	return asyncrt.Ready[error](nil)
}

// Close shuts down writing and stops reading. Pending peer writes fail with
// io.ErrClosedPipe.
func (s *DuplexStream) Close() error {
	s.write.close(func(pp *pipe) { pp.eof = true })
	s.read.close(func(pp *pipe) {
		pp.broken = true
		pp.buf.Reset()
	})
	return nil
}

func (pp *pipe) close(fn func(*pipe)) {
	pp.mu.Lock()
	fn(pp)
	rw, ww := pp.readWaker, pp.writeWaker
	pp.readWaker, pp.writeWaker = asyncrt.Waker{}, asyncrt.Waker{}
	pp.mu.Unlock()
	rw.Wake()
	ww.Wake()
}
