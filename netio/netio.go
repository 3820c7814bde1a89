// Package netio provides TCP and UDP sockets driven by an asyncrt
// runtime's reactor.
//
// Sockets are non-blocking descriptors registered with the runtime they
// were created on. Every operation comes in two forms: a Poll method for
// use inside hand-written futures, and a method returning a Future. Stream
// types implement asyncio.Reader and asyncio.Writer.
//
// Addresses are resolved with the net package; host names are looked up
// synchronously, so callers on a worker should pass literal addresses.
//
// Linux and Darwin are supported. Elsewhere every constructor fails with
// ErrUnsupported.
package netio

import (
	"errors"
	"io"
	"net"
	"sync"

	"github.com/joeycumines/go-asyncrt"
)

var (
	// ErrUnsupported is returned on platforms without a readiness reactor.
	ErrUnsupported = errors.New("netio: sockets unsupported on this platform")
	// ErrSocketClosed is returned by operations on a closed socket.
	ErrSocketClosed = errors.New("netio: use of closed socket")
)

// endpoint is an IP socket address independent of the syscall package.
type endpoint struct {
	ip   net.IP
	port int
	zone string
}

func (ep endpoint) tcp() *net.TCPAddr { return &net.TCPAddr{IP: ep.ip, Port: ep.port, Zone: ep.zone} }

func (ep endpoint) udp() *net.UDPAddr { return &net.UDPAddr{IP: ep.ip, Port: ep.port, Zone: ep.zone} }

func resolveTCP(addr string) (endpoint, error) {
	a, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return endpoint{}, err
	}
	return endpoint{ip: a.IP, port: a.Port, zone: a.Zone}, nil
}

func resolveUDP(addr string) (endpoint, error) {
	a, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return endpoint{}, err
	}
	return endpointOfUDP(a), nil
}

func endpointOfUDP(a *net.UDPAddr) endpoint {
	return endpoint{ip: a.IP, port: a.Port, zone: a.Zone}
}

// socket is a registered descriptor. close is idempotent and waits for no
// in-flight operation; callers must not race Close with I/O on itself.
type socket struct {
	fd  int
	reg *asyncrt.Registration

	mu     sync.Mutex
	closed bool
}

// newSocket registers fd with rt, closing fd on failure.
func newSocket(rt *asyncrt.Runtime, fd int) (*socket, error) {
	reg, err := rt.Register(fd, asyncrt.InterestRead|asyncrt.InterestWrite)
	if err != nil {
		_ = sysClose(fd)
		return nil, err
	}
	return &socket{fd: fd, reg: reg}, nil
}

func (s *socket) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *socket) close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	err := s.reg.Close()
	if err2 := sysClose(s.fd); err == nil {
		err = err2
	}
	return err
}

// pollIO runs fn when the socket is ready for interest.
func (s *socket) pollIO(cx *asyncrt.Context, interest asyncrt.Interest, fn func() (int, error)) asyncrt.Poll[asyncrt.Result[int]] {
	if s.isClosed() {
		return asyncrt.Ready(asyncrt.Err[int](ErrSocketClosed))
	}
	p := s.reg.TryIO(cx, interest, fn)
	if r, ok := p.Value(); ok && errors.Is(r.Err, asyncrt.ErrRegistrationClosed) {
		return asyncrt.Ready(asyncrt.Result[int]{Value: r.Value, Err: ErrSocketClosed})
	}
	return p
}

// pollRead reads into p, mapping an orderly shutdown by the peer to io.EOF.
func (s *socket) pollRead(cx *asyncrt.Context, p []byte) asyncrt.Poll[asyncrt.Result[int]] {
	if len(p) == 0 {
		return asyncrt.Ready(asyncrt.Ok(0))
	}
	res, ok := s.pollIO(cx, asyncrt.InterestRead, func() (int, error) { return sysRead(s.fd, p) }).Value()
	if !ok {
		return asyncrt.Pending[asyncrt.Result[int]]()
	}
	if res.Err == nil && res.Value == 0 {
		res.Err = io.EOF
	}
	return asyncrt.Ready(res)
}

func (s *socket) pollWrite(cx *asyncrt.Context, p []byte) asyncrt.Poll[asyncrt.Result[int]] {
	if len(p) == 0 {
		return asyncrt.Ready(asyncrt.Ok(0))
	}
	return s.pollIO(cx, asyncrt.InterestWrite, func() (int, error) { return sysWrite(s.fd, p) })
}

func (s *socket) localAddr() (endpoint, error) {
	if s.isClosed() {
		return endpoint{}, ErrSocketClosed
	}
	return sysSockname(s.fd)
}

func (s *socket) peerAddr() (endpoint, error) {
	if s.isClosed() {
		return endpoint{}, ErrSocketClosed
	}
	return sysPeername(s.fd)
}

// pollFuture adapts a poll method taking a buffer to a Future.
func pollFuture[T any](fn func(cx *asyncrt.Context) asyncrt.Poll[asyncrt.Result[T]]) asyncrt.Future[asyncrt.Result[T]] {
	return asyncrt.FutureFunc[asyncrt.Result[T]](fn)
}
