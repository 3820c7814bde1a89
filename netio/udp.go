package netio

import (
	"net"

	"github.com/joeycumines/go-asyncrt"
)

// Datagram is the outcome of RecvFrom.
type Datagram struct {
	N    int
	Addr *net.UDPAddr
}

// UDPSocket is an unconnected UDP socket.
type UDPSocket struct {
	s *socket
}

// BindUDP opens a UDP socket bound to addr, such as "127.0.0.1:0".
func BindUDP(rt *asyncrt.Runtime, addr string) (*UDPSocket, error) {
	ep, err := resolveUDP(addr)
	if err != nil {
		return nil, err
	}
	fd, err := sysSocket(ep, sockDgram)
	if err != nil {
		return nil, err
	}
	if err := sysBind(fd, ep); err != nil {
		_ = sysClose(fd)
		return nil, err
	}
	s, err := newSocket(rt, fd)
	if err != nil {
		return nil, err
	}
	return &UDPSocket{s: s}, nil
}

// PollSendTo sends p to addr as one datagram.
func (u *UDPSocket) PollSendTo(cx *asyncrt.Context, p []byte, addr *net.UDPAddr) asyncrt.Poll[asyncrt.Result[int]] {
	ep := endpointOfUDP(addr)
	return u.s.pollIO(cx, asyncrt.InterestWrite, func() (int, error) { return sysSendTo(u.s.fd, p, ep) })
}

// SendTo returns a future sending p to addr.
func (u *UDPSocket) SendTo(p []byte, addr *net.UDPAddr) asyncrt.Future[asyncrt.Result[int]] {
	return pollFuture(func(cx *asyncrt.Context) asyncrt.Poll[asyncrt.Result[int]] { return u.PollSendTo(cx, p, addr) })
}

// PollRecvFrom receives one datagram into p. Bytes beyond len(p) are
// discarded.
func (u *UDPSocket) PollRecvFrom(cx *asyncrt.Context, p []byte) asyncrt.Poll[asyncrt.Result[Datagram]] {
	var from endpoint
	res, ok := u.s.pollIO(cx, asyncrt.InterestRead, func() (int, error) {
		var (
			n   int
			err error
		)
		n, from, err = sysRecvFrom(u.s.fd, p)
		return n, err
	}).Value()
	if !ok {
		return asyncrt.Pending[asyncrt.Result[Datagram]]()
	}
	if res.Err != nil {
		return asyncrt.Ready(asyncrt.Err[Datagram](res.Err))
	}
	return asyncrt.Ready(asyncrt.Ok(Datagram{N: res.Value, Addr: from.udp()}))
}

// RecvFrom returns a future receiving one datagram into p.
func (u *UDPSocket) RecvFrom(p []byte) asyncrt.Future[asyncrt.Result[Datagram]] {
	return pollFuture(func(cx *asyncrt.Context) asyncrt.Poll[asyncrt.Result[Datagram]] { return u.PollRecvFrom(cx, p) })
}

// Connect fixes the socket's peer, returning a ConnectedUDPSocket that
// takes over the descriptor. u must not be used afterwards.
func (u *UDPSocket) Connect(addr string) (*ConnectedUDPSocket, error) {
	ep, err := resolveUDP(addr)
	if err != nil {
		return nil, err
	}
	if u.s.isClosed() {
		return nil, ErrSocketClosed
	}
	// a connect on a datagram socket completes immediately
	if _, err := sysConnect(u.s.fd, ep); err != nil {
		return nil, err
	}
	return &ConnectedUDPSocket{s: u.s, peer: ep}, nil
}

// SetBroadcast controls SO_BROADCAST.
func (u *UDPSocket) SetBroadcast(on bool) error { return setBroadcast(u.s, on) }

// Broadcast reports SO_BROADCAST.
func (u *UDPSocket) Broadcast() (bool, error) { return broadcast(u.s) }

// LocalAddr returns the bound address.
func (u *UDPSocket) LocalAddr() (*net.UDPAddr, error) { return localUDP(u.s) }

// Close closes the socket.
func (u *UDPSocket) Close() error { return u.s.close() }

// ConnectedUDPSocket is a UDP socket with a fixed peer. Datagrams from
// other addresses are filtered by the kernel.
type ConnectedUDPSocket struct {
	s    *socket
	peer endpoint
}

// PollSend sends p to the peer.
func (u *ConnectedUDPSocket) PollSend(cx *asyncrt.Context, p []byte) asyncrt.Poll[asyncrt.Result[int]] {
	return u.s.pollIO(cx, asyncrt.InterestWrite, func() (int, error) { return sysWrite(u.s.fd, p) })
}

// Send returns a future sending p to the peer.
func (u *ConnectedUDPSocket) Send(p []byte) asyncrt.Future[asyncrt.Result[int]] {
	return pollFuture(func(cx *asyncrt.Context) asyncrt.Poll[asyncrt.Result[int]] { return u.PollSend(cx, p) })
}

// PollRecv receives one datagram from the peer into p. An empty datagram
// yields zero bytes, not io.EOF.
func (u *ConnectedUDPSocket) PollRecv(cx *asyncrt.Context, p []byte) asyncrt.Poll[asyncrt.Result[int]] {
	return u.s.pollIO(cx, asyncrt.InterestRead, func() (int, error) { return sysRead(u.s.fd, p) })
}

// Recv returns a future receiving one datagram into p.
func (u *ConnectedUDPSocket) Recv(p []byte) asyncrt.Future[asyncrt.Result[int]] {
	return pollFuture(func(cx *asyncrt.Context) asyncrt.Poll[asyncrt.Result[int]] { return u.PollRecv(cx, p) })
}

// SetBroadcast controls SO_BROADCAST.
func (u *ConnectedUDPSocket) SetBroadcast(on bool) error { return setBroadcast(u.s, on) }

// Broadcast reports SO_BROADCAST.
func (u *ConnectedUDPSocket) Broadcast() (bool, error) { return broadcast(u.s) }

// LocalAddr returns the bound address.
func (u *ConnectedUDPSocket) LocalAddr() (*net.UDPAddr, error) { return localUDP(u.s) }

// RemoteAddr returns the peer address.
func (u *ConnectedUDPSocket) RemoteAddr() *net.UDPAddr { return u.peer.udp() }

// Close closes the socket.
func (u *ConnectedUDPSocket) Close() error { return u.s.close() }

func setBroadcast(s *socket, on bool) error {
	if s.isClosed() {
		return ErrSocketClosed
	}
	return sysSetBroadcast(s.fd, on)
}

func broadcast(s *socket) (bool, error) {
	if s.isClosed() {
		return false, ErrSocketClosed
	}
	return sysBroadcast(s.fd)
}

func localUDP(s *socket) (*net.UDPAddr, error) {
	ep, err := s.localAddr()
	if err != nil {
		return nil, err
	}
	return ep.udp(), nil
}
