//go:build linux || darwin

package asyncrt

import (
	"errors"

	"golang.org/x/sys/unix"
)

func isWouldBlock(err error) bool {
	return err != nil && (errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK))
}
