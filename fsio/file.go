package fsio

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"sync"

	"github.com/joeycumines/go-asyncrt"
)

const (
	// minRead is the smallest blocking read; the surplus is kept for later
	// reads.
	minRead = 8 * 1024
	// maxBuf caps the bytes moved by one blocking read or write.
	maxBuf = 2 * 1024 * 1024
)

// ErrFileClosed is returned by operations on a closed File.
var ErrFileClosed = errors.New("fsio: file already closed")

type opKind uint8

const (
	opNone opKind = iota
	opRead
	opWrite
	opSeek
)

// opOutcome is what a blocking file operation hands back.
type opOutcome struct {
	buf []byte
	pos int64
}

// File is an open file whose I/O runs on the blocking pool. It implements
// asyncio.Reader and asyncio.Writer.
//
// At most one blocking operation is in flight per file. Writes are
// buffered: PollWrite returns as soon as the bytes are copied, and a failed
// write surfaces on the next operation or on PollFlush. Reads may fetch ahead,
// and PollSeek accounts for bytes fetched but not yet consumed.
type File struct {
	mu sync.Mutex
	f  *os.File

	op   *asyncrt.JoinHandle[opOutcome]
	kind opKind

	// rbuf holds bytes read ahead but not yet returned.
	rbuf   []byte
	closed bool
}

func newFile(f *os.File) *File {
	return &File{f: f}
}

// FromOS wraps an *os.File, which the File then owns.
func FromOS(f *os.File) *File { return newFile(f) }

// Name returns the name the file was opened with.
func (f *File) Name() string { return f.f.Name() }

// spawn starts op on cx's runtime. The caller holds mu.
func (f *File) spawn(cx *asyncrt.Context, kind opKind, fn func() (opOutcome, error)) error {
	rt := cx.Runtime()
	if rt == nil {
		return ErrNoRuntime
	}
	h, err := asyncrt.SpawnBlocking(rt, fn)
	if err != nil {
		return err
	}
	f.op, f.kind = h, kind
	return nil
}

// pollIdle waits for the in-flight operation, if any. The caller holds mu.
func (f *File) pollIdle(cx *asyncrt.Context) asyncrt.Poll[error] {
	if f.op == nil {
		return asyncrt.Ready[error](nil)
	}
	r, ok := f.op.Poll(cx).Value()
	if !ok {
		return asyncrt.Pending[error]()
	}
	if f.kind == opRead {
		f.rbuf = r.Value.buf
	}
	f.op, f.kind = nil, opNone
	return asyncrt.Ready(r.Err)
}

// PollRead implements asyncio.Reader.
func (f *File) PollRead(cx *asyncrt.Context, p []byte) asyncrt.Poll[asyncrt.Result[int]] {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return asyncrt.Ready(asyncrt.Err[int](ErrFileClosed))
	}
	for {
		if len(f.rbuf) > 0 && f.op == nil {
			n := copy(p, f.rbuf)
			f.rbuf = f.rbuf[n:]
			return asyncrt.Ready(asyncrt.Ok(n))
		}
		if f.op != nil {
			kind := f.kind
			err, ok := f.pollIdle(cx).Value()
			if !ok {
				return asyncrt.Pending[asyncrt.Result[int]]()
			}
			if kind == opRead {
				if len(f.rbuf) > 0 {
					continue
				}
				if err == nil {
					err = io.EOF
				}
				return asyncrt.Ready(asyncrt.Err[int](err))
			}
			if err != nil {
				return asyncrt.Ready(asyncrt.Err[int](err))
			}
			continue
		}
		if len(p) == 0 {
			return asyncrt.Ready(asyncrt.Ok(0))
		}
		buf := make([]byte, min(max(len(p), minRead), maxBuf))
		file := f.f
		if err := f.spawn(cx, opRead, func() (opOutcome, error) {
			n, err := file.Read(buf)
			if errors.Is(err, io.EOF) {
				err = nil
			}
			return opOutcome{buf: buf[:n]}, err
		}); err != nil {
			return asyncrt.Ready(asyncrt.Err[int](err))
		}
	}
}

// PollWrite implements asyncio.Writer.
func (f *File) PollWrite(cx *asyncrt.Context, p []byte) asyncrt.Poll[asyncrt.Result[int]] {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return asyncrt.Ready(asyncrt.Err[int](ErrFileClosed))
	}
	err, ok := f.pollIdle(cx).Value()
	if !ok {
		return asyncrt.Pending[asyncrt.Result[int]]()
	}
	if err != nil {
		return asyncrt.Ready(asyncrt.Err[int](err))
	}
	if len(p) == 0 {
		return asyncrt.Ready(asyncrt.Ok(0))
	}
	// unread read-ahead moves the kernel offset past the logical one
	seekBack := int64(len(f.rbuf))
	f.rbuf = nil
	buf := append([]byte(nil), p[:min(len(p), maxBuf)]...)
	file := f.f
	if err := f.spawn(cx, opWrite, func() (opOutcome, error) {
		if seekBack != 0 {
			if _, err := file.Seek(-seekBack, io.SeekCurrent); err != nil {
				return opOutcome{}, err
			}
		}
		_, err := file.Write(buf)
		return opOutcome{}, err
	}); err != nil {
		return asyncrt.Ready(asyncrt.Err[int](err))
	}
	return asyncrt.Ready(asyncrt.Ok(len(buf)))
}

// PollFlush implements asyncio.Writer by waiting for the buffered write.
func (f *File) PollFlush(cx *asyncrt.Context) asyncrt.Poll[error] {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return asyncrt.Ready[error](ErrFileClosed)
	}
	return f.pollIdle(cx)
}

// PollShutdown implements asyncio.Writer. It is PollFlush; the file stays
// open.
func (f *File) PollShutdown(cx *asyncrt.Context) asyncrt.Poll[error] {
	return f.PollFlush(cx)
}

// PollSeek moves the offset as os.File.Seek does, once the in-flight
// operation completes.
func (f *File) PollSeek(cx *asyncrt.Context, offset int64, whence int) asyncrt.Poll[asyncrt.Result[int64]] {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return asyncrt.Ready(asyncrt.Err[int64](ErrFileClosed))
	}
	for {
		if f.op != nil && f.kind == opSeek {
			r, ok := f.op.Poll(cx).Value()
			if !ok {
				return asyncrt.Pending[asyncrt.Result[int64]]()
			}
			f.op, f.kind = nil, opNone
			return asyncrt.Ready(asyncrt.Result[int64]{Value: r.Value.pos, Err: r.Err})
		}
		err, ok := f.pollIdle(cx).Value()
		if !ok {
			return asyncrt.Pending[asyncrt.Result[int64]]()
		}
		if err != nil {
			return asyncrt.Ready(asyncrt.Err[int64](err))
		}
		if whence == io.SeekCurrent {
			offset -= int64(len(f.rbuf))
		}
		f.rbuf = nil
		file := f.f
		if err := f.spawn(cx, opSeek, func() (opOutcome, error) {
			pos, err := file.Seek(offset, whence)
			return opOutcome{pos: pos}, err
		}); err != nil {
			return asyncrt.Ready(asyncrt.Err[int64](err))
		}
	}
}

// SeekTo returns a future moving the offset.
func (f *File) SeekTo(offset int64, whence int) asyncrt.Future[asyncrt.Result[int64]] {
	return asyncrt.FutureFunc[asyncrt.Result[int64]](func(cx *asyncrt.Context) asyncrt.Poll[asyncrt.Result[int64]] {
		return f.PollSeek(cx, offset, whence)
	})
}

// withIdle runs fn on the blocking pool after the in-flight operation.
func (f *File) withIdle(fn func(*os.File) error) asyncrt.Future[error] {
	var job asyncrt.Future[error]
	return asyncrt.FutureFunc[error](func(cx *asyncrt.Context) asyncrt.Poll[error] {
		if job == nil {
			f.mu.Lock()
			if f.closed {
				f.mu.Unlock()
				return asyncrt.Ready[error](ErrFileClosed)
			}
			err, ok := f.pollIdle(cx).Value()
			file := f.f
			f.mu.Unlock()
			if !ok {
				return asyncrt.Pending[error]()
			}
			if err != nil {
				return asyncrt.Ready(err)
			}
			job = errFuture(func() error { return fn(file) })
		}
		return job.Poll(cx)
	})
}

// SyncAll flushes buffered writes and commits file data and metadata to
// storage.
func (f *File) SyncAll() asyncrt.Future[error] {
	return f.withIdle((*os.File).Sync)
}

// SyncData is SyncAll without forcing a metadata update, where the
// platform supports the distinction.
func (f *File) SyncData() asyncrt.Future[error] {
	return f.withIdle(syncData)
}

// SetLen truncates or extends the file to size.
func (f *File) SetLen(size int64) asyncrt.Future[error] {
	return f.withIdle(func(file *os.File) error { return file.Truncate(size) })
}

// SetPermissions changes the file mode.
func (f *File) SetPermissions(perm fs.FileMode) asyncrt.Future[error] {
	return f.withIdle(func(file *os.File) error { return file.Chmod(perm) })
}

// Metadata returns the file's information after pending writes land.
func (f *File) Metadata() asyncrt.Future[asyncrt.Result[fs.FileInfo]] {
	var info fs.FileInfo
	return asyncrt.Map(f.withIdle(func(file *os.File) (err error) {
		info, err = file.Stat()
		return err
	}), func(err error) asyncrt.Result[fs.FileInfo] {
		return asyncrt.Result[fs.FileInfo]{Value: info, Err: err}
	})
}

// Close flushes buffered writes and closes the file. Closing twice fails
// with ErrFileClosed.
func (f *File) Close() asyncrt.Future[error] {
	return asyncrt.Then(f.withIdle(func(*os.File) error { return nil }), func(flushErr error) asyncrt.Future[error] {
		f.mu.Lock()
		if f.closed {
			f.mu.Unlock()
			return asyncrt.ReadyFuture[error](ErrFileClosed)
		}
		f.closed = true
		file := f.f
		f.mu.Unlock()
		return errFuture(func() error {
			return errors.Join(flushErr, file.Close())
		})
	})
}
