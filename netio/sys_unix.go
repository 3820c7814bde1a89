//go:build linux || darwin

package netio

import (
	"errors"
	"net"
	"os"

	"golang.org/x/sys/unix"
)

// Supported reports whether sockets are available on this platform.
const Supported = true

const (
	sockStream    = unix.SOCK_STREAM
	sockDgram     = unix.SOCK_DGRAM
	listenBacklog = 1024
)

func sockaddr(ep endpoint) unix.Sockaddr {
	if ip4 := ep.ip.To4(); ip4 != nil || ep.ip == nil {
		sa := &unix.SockaddrInet4{Port: ep.port}
		copy(sa.Addr[:], ip4)
		return sa
	}
	sa := &unix.SockaddrInet6{Port: ep.port}
	copy(sa.Addr[:], ep.ip.To16())
	if ep.zone != "" {
		if ifi, err := net.InterfaceByName(ep.zone); err == nil {
			sa.ZoneId = uint32(ifi.Index)
		}
	}
	return sa
}

func endpointOf(sa unix.Sockaddr) endpoint {
	switch sa := sa.(type) {
	case *unix.SockaddrInet4:
		return endpoint{ip: net.IP(append([]byte(nil), sa.Addr[:]...)).To16(), port: sa.Port}
	case *unix.SockaddrInet6:
		ep := endpoint{ip: net.IP(append([]byte(nil), sa.Addr[:]...)), port: sa.Port}
		if sa.ZoneId != 0 {
			if ifi, err := net.InterfaceByIndex(int(sa.ZoneId)); err == nil {
				ep.zone = ifi.Name
			}
		}
		return ep
	default:
		return endpoint{}
	}
}

func family(ep endpoint) int {
	if ep.ip == nil || ep.ip.To4() != nil {
		return unix.AF_INET
	}
	return unix.AF_INET6
}

// sysSocket returns a non-blocking, close-on-exec socket.
func sysSocket(ep endpoint, typ int) (int, error) {
	fd, err := unix.Socket(family(ep), typ, 0)
	if err != nil {
		return -1, os.NewSyscallError("socket", err)
	}
	unix.CloseOnExec(fd)
	if err := unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return -1, os.NewSyscallError("setnonblock", err)
	}
	return fd, nil
}

func sysBind(fd int, ep endpoint) error {
	return os.NewSyscallError("bind", unix.Bind(fd, sockaddr(ep)))
}

func sysReuseAddr(fd int) error {
	return os.NewSyscallError("setsockopt", unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1))
}

func sysListen(fd int) error {
	return os.NewSyscallError("listen", unix.Listen(fd, listenBacklog))
}

func sysAccept(fd int) (int, endpoint, error) {
	for {
		nfd, sa, err := unix.Accept(fd)
		switch {
		case errors.Is(err, unix.EINTR), errors.Is(err, unix.ECONNABORTED):
			continue
		case err != nil:
			return -1, endpoint{}, wrapWouldBlock("accept", err)
		}
		unix.CloseOnExec(nfd)
		if err := unix.SetNonblock(nfd, true); err != nil {
			_ = unix.Close(nfd)
			return -1, endpoint{}, os.NewSyscallError("setnonblock", err)
		}
		return nfd, endpointOf(sa), nil
	}
}

// sysConnect starts a connect, reporting inProgress when completion must be
// awaited with write readiness.
func sysConnect(fd int, ep endpoint) (inProgress bool, err error) {
	for {
		err := unix.Connect(fd, sockaddr(ep))
		switch {
		case err == nil:
			return false, nil
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.EINPROGRESS), errors.Is(err, unix.EALREADY):
			return true, nil
		default:
			return false, os.NewSyscallError("connect", err)
		}
	}
}

// sysSocketError returns the pending error reported through SO_ERROR.
func sysSocketError(fd int) error {
	v, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return os.NewSyscallError("getsockopt", err)
	}
	if v != 0 {
		return os.NewSyscallError("connect", unix.Errno(v))
	}
	return nil
}

func sysRead(fd int, p []byte) (int, error) {
	for {
		n, err := unix.Read(fd, p)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return 0, wrapWouldBlock("read", err)
		}
		return n, nil
	}
}

func sysWrite(fd int, p []byte) (int, error) {
	for {
		n, err := unix.Write(fd, p)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return 0, wrapWouldBlock("write", err)
		}
		return n, nil
	}
}

func sysRecvFrom(fd int, p []byte) (int, endpoint, error) {
	for {
		n, sa, err := unix.Recvfrom(fd, p, 0)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return 0, endpoint{}, wrapWouldBlock("recvfrom", err)
		}
		return n, endpointOf(sa), nil
	}
}

func sysSendTo(fd int, p []byte, ep endpoint) (int, error) {
	for {
		err := unix.Sendto(fd, p, 0, sockaddr(ep))
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return 0, wrapWouldBlock("sendto", err)
		}
		return len(p), nil
	}
}

func sysShutdownWrite(fd int) error {
	return os.NewSyscallError("shutdown", unix.Shutdown(fd, unix.SHUT_WR))
}

func sysSetNoDelay(fd int, on bool) error {
	return os.NewSyscallError("setsockopt", unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, boolInt(on)))
}

func sysSetBroadcast(fd int, on bool) error {
	return os.NewSyscallError("setsockopt", unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_BROADCAST, boolInt(on)))
}

func sysBroadcast(fd int) (bool, error) {
	v, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_BROADCAST)
	if err != nil {
		return false, os.NewSyscallError("getsockopt", err)
	}
	return v != 0, nil
}

func sysSockname(fd int) (endpoint, error) {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return endpoint{}, os.NewSyscallError("getsockname", err)
	}
	return endpointOf(sa), nil
}

func sysPeername(fd int) (endpoint, error) {
	sa, err := unix.Getpeername(fd)
	if err != nil {
		return endpoint{}, os.NewSyscallError("getpeername", err)
	}
	return endpointOf(sa), nil
}

func sysClose(fd int) error {
	return os.NewSyscallError("close", unix.Close(fd))
}

// wrapWouldBlock keeps EAGAIN bare, so the reactor recognises it, and
// wraps every other error with the failing call.
func wrapWouldBlock(call string, err error) error {
	if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
		return err
	}
	return os.NewSyscallError(call, err)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
