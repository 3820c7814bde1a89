// Package fsio performs filesystem operations on an asyncrt runtime's
// blocking pool, exposing them as futures.
//
// Futures from this package spawn their blocking job on the runtime of the
// task that first polls them, and fail with ErrNoRuntime when polled
// outside one. Dropping a future before its job starts cancels the job; a
// job already running completes regardless.
package fsio

import (
	"io/fs"
	"os"

	"github.com/joeycumines/go-asyncrt"
)

// ReadFile reads the named file in full.
func ReadFile(name string) asyncrt.Future[asyncrt.Result[[]byte]] {
	return spawnBlocking(func() ([]byte, error) { return os.ReadFile(name) })
}

// WriteFile writes data to the named file, creating it with perm if
// needed and truncating it otherwise.
func WriteFile(name string, data []byte, perm fs.FileMode) asyncrt.Future[error] {
	return errFuture(func() error { return os.WriteFile(name, data, perm) })
}

// ReadDir reads the named directory, sorted by filename.
func ReadDir(name string) asyncrt.Future[asyncrt.Result[[]fs.DirEntry]] {
	return spawnBlocking(func() ([]fs.DirEntry, error) { return os.ReadDir(name) })
}

// Stat returns information about the named file, following links.
func Stat(name string) asyncrt.Future[asyncrt.Result[fs.FileInfo]] {
	return spawnBlocking(func() (fs.FileInfo, error) { return os.Stat(name) })
}

// CreateDir creates a single directory.
func CreateDir(name string, perm fs.FileMode) asyncrt.Future[error] {
	return errFuture(func() error { return os.Mkdir(name, perm) })
}

// CreateDirAll creates a directory and any missing parents.
func CreateDirAll(name string, perm fs.FileMode) asyncrt.Future[error] {
	return errFuture(func() error { return os.MkdirAll(name, perm) })
}

// Remove removes a file or empty directory.
func Remove(name string) asyncrt.Future[error] {
	return errFuture(func() error { return os.Remove(name) })
}

// RemoveAll removes name and anything it contains.
func RemoveAll(name string) asyncrt.Future[error] {
	return errFuture(func() error { return os.RemoveAll(name) })
}

// Rename moves oldpath to newpath, replacing newpath if it is a file.
func Rename(oldpath, newpath string) asyncrt.Future[error] {
	return errFuture(func() error { return os.Rename(oldpath, newpath) })
}
