package netio

import (
	"net"

	"github.com/joeycumines/go-asyncrt"
)

// TCPListener accepts TCP connections.
type TCPListener struct {
	rt *asyncrt.Runtime
	s  *socket
}

// ListenTCP binds and listens on addr, such as "127.0.0.1:0".
func ListenTCP(rt *asyncrt.Runtime, addr string) (*TCPListener, error) {
	ep, err := resolveTCP(addr)
	if err != nil {
		return nil, err
	}
	fd, err := sysSocket(ep, sockStream)
	if err != nil {
		return nil, err
	}
	for _, step := range []func() error{
		func() error { return sysReuseAddr(fd) },
		func() error { return sysBind(fd, ep) },
		func() error { return sysListen(fd) },
	} {
		if err := step(); err != nil {
			_ = sysClose(fd)
			return nil, err
		}
	}
	s, err := newSocket(rt, fd)
	if err != nil {
		return nil, err
	}
	return &TCPListener{rt: rt, s: s}, nil
}

// PollAccept accepts a connection once one is pending.
func (l *TCPListener) PollAccept(cx *asyncrt.Context) asyncrt.Poll[asyncrt.Result[*TCPStream]] {
	var (
		nfd  int
		peer endpoint
	)
	res, ok := l.s.pollIO(cx, asyncrt.InterestRead, func() (int, error) {
		var err error
		nfd, peer, err = sysAccept(l.s.fd)
		return 0, err
	}).Value()
	if !ok {
		return asyncrt.Pending[asyncrt.Result[*TCPStream]]()
	}
	if res.Err != nil {
		return asyncrt.Ready(asyncrt.Err[*TCPStream](res.Err))
	}
	s, err := newSocket(l.rt, nfd)
	if err != nil {
		return asyncrt.Ready(asyncrt.Err[*TCPStream](err))
	}
	return asyncrt.Ready(asyncrt.Ok(&TCPStream{s: s, peer: peer}))
}

// Accept returns a future resolving to the next connection.
func (l *TCPListener) Accept() asyncrt.Future[asyncrt.Result[*TCPStream]] {
	return pollFuture(l.PollAccept)
}

// LocalAddr returns the bound address.
func (l *TCPListener) LocalAddr() (*net.TCPAddr, error) {
	ep, err := l.s.localAddr()
	if err != nil {
		return nil, err
	}
	return ep.tcp(), nil
}

// Close stops listening. A pending Accept fails with ErrSocketClosed.
func (l *TCPListener) Close() error { return l.s.close() }

// TCPStream is a connected TCP socket. It implements asyncio.ReadWriter.
//
// One reader and one writer may use a stream concurrently.
type TCPStream struct {
	s    *socket
	peer endpoint
}

// ConnectTCP connects to addr. The connect is started on first poll and
// completes once the socket becomes writable; its outcome is read from
// SO_ERROR. Dropping the future before it resolves closes the socket.
func ConnectTCP(rt *asyncrt.Runtime, addr string) asyncrt.Future[asyncrt.Result[*TCPStream]] {
	return &connectFuture{rt: rt, addr: addr}
}

type connectFuture struct {
	rt     *asyncrt.Runtime
	addr   string
	stream *TCPStream
	done   bool
}

func (f *connectFuture) Poll(cx *asyncrt.Context) asyncrt.Poll[asyncrt.Result[*TCPStream]] {
	if f.stream == nil {
		stream, inProgress, err := f.start()
		if err != nil {
			f.done = true
			return asyncrt.Ready(asyncrt.Err[*TCPStream](err))
		}
		f.stream = stream
		if !inProgress {
			f.done = true
			return asyncrt.Ready(asyncrt.Ok(stream))
		}
	}
	r, ok := f.stream.s.reg.PollWriteReady(cx).Value()
	if !ok {
		return asyncrt.Pending[asyncrt.Result[*TCPStream]]()
	}
	f.done = true
	err := r.Err
	if err == nil {
		err = sysSocketError(f.stream.s.fd)
	}
	if err != nil {
		_ = f.stream.Close()
		return asyncrt.Ready(asyncrt.Err[*TCPStream](err))
	}
	return asyncrt.Ready(asyncrt.Ok(f.stream))
}

func (f *connectFuture) start() (*TCPStream, bool, error) {
	ep, err := resolveTCP(f.addr)
	if err != nil {
		return nil, false, err
	}
	fd, err := sysSocket(ep, sockStream)
	if err != nil {
		return nil, false, err
	}
	s, err := newSocket(f.rt, fd)
	if err != nil {
		return nil, false, err
	}
	stream := &TCPStream{s: s, peer: ep}
	inProgress, err := sysConnect(fd, ep)
	if err != nil {
		_ = stream.Close()
		return nil, false, err
	}
	return stream, inProgress, nil
}

// Drop closes a connection that was never handed out.
func (f *connectFuture) Drop() {
	if f.stream != nil && !f.done {
		_ = f.stream.Close()
		f.stream = nil
	}
}

// PollRead implements asyncio.Reader.
func (c *TCPStream) PollRead(cx *asyncrt.Context, p []byte) asyncrt.Poll[asyncrt.Result[int]] {
	return c.s.pollRead(cx, p)
}

// PollWrite implements asyncio.Writer.
func (c *TCPStream) PollWrite(cx *asyncrt.Context, p []byte) asyncrt.Poll[asyncrt.Result[int]] {
	return c.s.pollWrite(cx, p)
}

// PollFlush implements asyncio.Writer. Writes go straight to the kernel,
// so there is nothing to flush.
func (c *TCPStream) PollFlush(*asyncrt.Context) asyncrt.Poll[error] {
	if c.s.isClosed() {
		return asyncrt.Ready[error](ErrSocketClosed)
	}
	return asyncrt.Ready[error](nil)
}

// PollShutdown implements asyncio.Writer by shutting down the write half.
func (c *TCPStream) PollShutdown(*asyncrt.Context) asyncrt.Poll[error] {
	return asyncrt.Ready(c.CloseWrite())
}

// Read returns a future reading once into p.
func (c *TCPStream) Read(p []byte) asyncrt.Future[asyncrt.Result[int]] {
	return pollFuture(func(cx *asyncrt.Context) asyncrt.Poll[asyncrt.Result[int]] { return c.PollRead(cx, p) })
}

// Write returns a future writing once from p.
func (c *TCPStream) Write(p []byte) asyncrt.Future[asyncrt.Result[int]] {
	return pollFuture(func(cx *asyncrt.Context) asyncrt.Poll[asyncrt.Result[int]] { return c.PollWrite(cx, p) })
}

// CloseWrite shuts down the sending side; the peer reads io.EOF.
func (c *TCPStream) CloseWrite() error {
	if c.s.isClosed() {
		return ErrSocketClosed
	}
	return sysShutdownWrite(c.s.fd)
}

// SetNoDelay controls Nagle's algorithm.
func (c *TCPStream) SetNoDelay(on bool) error {
	if c.s.isClosed() {
		return ErrSocketClosed
	}
	return sysSetNoDelay(c.s.fd, on)
}

// LocalAddr returns the local address.
func (c *TCPStream) LocalAddr() (*net.TCPAddr, error) {
	ep, err := c.s.localAddr()
	if err != nil {
		return nil, err
	}
	return ep.tcp(), nil
}

// RemoteAddr returns the peer address.
func (c *TCPStream) RemoteAddr() (*net.TCPAddr, error) {
	if c.peer.ip != nil {
		return c.peer.tcp(), nil
	}
	ep, err := c.s.peerAddr()
	if err != nil {
		return nil, err
	}
	return ep.tcp(), nil
}

// Close closes the connection.
func (c *TCPStream) Close() error { return c.s.close() }
