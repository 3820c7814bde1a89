//go:build !linux && !darwin

package asyncrt

// isWouldBlock is always false: descriptor registration is unsupported on
// this platform.
func isWouldBlock(error) bool { return false }
