//go:build !linux && !darwin

package netio

// Supported reports whether sockets are available on this platform.
const Supported = false

const (
	sockStream = 1
	sockDgram  = 2
)

func sysSocket(endpoint, int) (int, error) { return -1, ErrUnsupported }
func sysBind(int, endpoint) error { return ErrUnsupported }
func sysReuseAddr(int) error { return ErrUnsupported }
func sysListen(int) error { return ErrUnsupported }
func sysAccept(int) (int, endpoint, error) { return -1, endpoint{}, ErrUnsupported }
func sysConnect(int, endpoint) (bool, error) { return false, ErrUnsupported }
func sysSocketError(int) error { return ErrUnsupported }
func sysRead(int, []byte) (int, error) { return 0, ErrUnsupported }
func sysWrite(int, []byte) (int, error) { return 0, ErrUnsupported }
func sysRecvFrom(int, []byte) (int, endpoint, error) { return 0, endpoint{}, ErrUnsupported }
func sysSendTo(int, []byte, endpoint) (int, error) { return 0, ErrUnsupported }
func sysShutdownWrite(int) error { return ErrUnsupported }
func sysSetNoDelay(int, bool) error { return ErrUnsupported }
func sysSetBroadcast(int, bool) error { return ErrUnsupported }
func sysBroadcast(int) (bool, error) { return false, ErrUnsupported }
func sysSockname(int) (endpoint, error) { return endpoint{}, ErrUnsupported }
func sysPeername(int) (endpoint, error) { return endpoint{}, ErrUnsupported }
func sysClose(int) error { return ErrUnsupported }
