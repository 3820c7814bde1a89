//go:build !linux

package fsio

import "os"

func syncData(f *os.File) error { return f.Sync() }
