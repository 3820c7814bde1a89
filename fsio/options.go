package fsio

import (
	"errors"
	"io/fs"
	"os"

	"github.com/joeycumines/go-asyncrt"
)

// ErrInvalidOptions is returned by OpenOptions.Open for flag combinations
// that cannot be honoured, such as Truncate without Write.
var ErrInvalidOptions = errors.New("fsio: invalid open options")

// OpenOptions configures how a file is opened, in the manner of
// os.OpenFile. The zero value opens nothing; set at least one of Read,
// Write or Append.
//
//	f := fsio.NewOpenOptions().Write(true).Create(true).Truncate(true).Open(name)
type OpenOptions struct {
	read      bool
	write     bool
	append    bool
	truncate  bool
	create    bool
	createNew bool
	mode      fs.FileMode
}

// NewOpenOptions returns options with every flag cleared and mode 0666.
func NewOpenOptions() *OpenOptions {
	return &OpenOptions{mode: 0o666}
}

// Read sets read access.
func (o *OpenOptions) Read(v bool) *OpenOptions {
	o.read = v
	return o
}

// Write sets write access.
func (o *OpenOptions) Write(v bool) *OpenOptions {
	o.write = v
	return o
}

// Append sets append mode, which implies write access.
func (o *OpenOptions) Append(v bool) *OpenOptions {
	o.append = v
	return o
}

// Truncate truncates an existing file to zero length. It requires Write.
func (o *OpenOptions) Truncate(v bool) *OpenOptions {
	o.truncate = v
	return o
}

// Create creates the file if it does not exist.
func (o *OpenOptions) Create(v bool) *OpenOptions {
	o.create = v
	return o
}

// CreateNew creates the file, failing if it exists. Create and Truncate are
// ignored when it is set.
func (o *OpenOptions) CreateNew(v bool) *OpenOptions {
	o.createNew = v
	return o
}

// Mode sets the permissions for a newly created file, before umask.
func (o *OpenOptions) Mode(perm fs.FileMode) *OpenOptions {
	o.mode = perm
	return o
}

func (o *OpenOptions) flags() (int, error) {
	var flag int
	switch {
	case o.read && (o.write || o.append):
		flag = os.O_RDWR
	case o.read:
		flag = os.O_RDONLY
	case o.write || o.append:
		flag = os.O_WRONLY
	default:
		return 0, ErrInvalidOptions
	}
	if o.append {
		flag |= os.O_APPEND
	}
	writable := o.write || o.append
	switch {
	case o.createNew:
		if !writable {
			return 0, ErrInvalidOptions
		}
		return flag | os.O_CREATE | os.O_EXCL, nil
	case o.create && !writable:
		return 0, ErrInvalidOptions
	case o.create:
		flag |= os.O_CREATE
	}
	if o.truncate {
		if !o.write || o.append {
			return 0, ErrInvalidOptions
		}
		flag |= os.O_TRUNC
	}
	return flag, nil
}

// Open opens name on the blocking pool.
func (o *OpenOptions) Open(name string) asyncrt.Future[asyncrt.Result[*File]] {
	flag, err := o.flags()
	if err != nil {
		return asyncrt.ReadyFuture(asyncrt.Err[*File](&fs.PathError{Op: "open", Path: name, Err: err}))
	}
	mode := o.mode
	return spawnBlocking(func() (*File, error) {
		f, err := os.OpenFile(name, flag, mode)
		if err != nil {
			return nil, err
		}
		return newFile(f), nil
	})
}

// Open opens name for reading.
func Open(name string) asyncrt.Future[asyncrt.Result[*File]] {
	return NewOpenOptions().Read(true).Open(name)
}

// Create creates or truncates name for writing.
func Create(name string) asyncrt.Future[asyncrt.Result[*File]] {
	return NewOpenOptions().Write(true).Create(true).Truncate(true).Open(name)
}
