package fsio_test

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/joeycumines/go-asyncrt"
	"github.com/joeycumines/go-asyncrt/asyncio"
	"github.com/joeycumines/go-asyncrt/fsio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRuntime(t *testing.T) *asyncrt.Runtime {
	t.Helper()
	rt, err := asyncrt.NewMultiThread(asyncrt.WithWorkerThreads(2))
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		assert.NoError(t, rt.Shutdown(ctx))
	})
	return rt
}

// run drives f to completion, failing the test on a runtime error.
func run[T any](t *testing.T, rt *asyncrt.Runtime, f asyncrt.Future[T]) T {
	t.Helper()
	v, err := asyncrt.BlockOn(rt, f)
	require.NoError(t, err)
	return v
}

func open(t *testing.T, rt *asyncrt.Runtime, o *fsio.OpenOptions, name string) *fsio.File {
	t.Helper()
	r := run(t, rt, o.Open(name))
	require.NoError(t, r.Err)
	t.Cleanup(func() { _ = run(t, rt, r.Value.Close()) })
	return r.Value
}

func TestWriteFileReadFile(t *testing.T) {
	rt := newRuntime(t)
	name := filepath.Join(t.TempDir(), "a.txt")
	require.NoError(t, run(t, rt, fsio.WriteFile(name, []byte("contents"), 0o644)))

	r := run(t, rt, fsio.ReadFile(name))
	require.NoError(t, r.Err)
	assert.Equal(t, "contents", string(r.Value))

	info := run(t, rt, fsio.Stat(name))
	require.NoError(t, info.Err)
	assert.Equal(t, int64(8), info.Value.Size())

	r = run(t, rt, fsio.ReadFile(filepath.Join(t.TempDir(), "missing")))
	assert.ErrorIs(t, r.Err, os.ErrNotExist)
}

func TestFile_WriteThenRead(t *testing.T) {
	rt := newRuntime(t)
	name := filepath.Join(t.TempDir(), "data")
	payload := bytes.Repeat([]byte("0123456789"), 100000)

	w := open(t, rt, fsio.NewOpenOptions().Write(true).Create(true).Truncate(true), name)
	n := run(t, rt, asyncio.WriteAll(w, payload))
	require.NoError(t, n.Err)
	assert.Equal(t, len(payload), n.Value)
	require.NoError(t, run(t, rt, asyncio.Flush(w)))

	f, err := os.ReadFile(name)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(payload, f))

	rd := open(t, rt, fsio.NewOpenOptions().Read(true), name)
	got := run(t, rt, asyncio.ReadAll(rd))
	require.NoError(t, got.Err)
	assert.True(t, bytes.Equal(payload, got.Value))
}

func TestFile_SeekAccountsForReadAhead(t *testing.T) {
	rt := newRuntime(t)
	name := filepath.Join(t.TempDir(), "seek")
	require.NoError(t, os.WriteFile(name, []byte("abcdefghij"), 0o644))

	f := open(t, rt, fsio.NewOpenOptions().Read(true).Write(true), name)
	buf := make([]byte, 3)
	// the first poll reads ahead; ReadFull consumes only 3 of the 10 bytes
	r := run(t, rt, asyncio.ReadFull(f, buf))
	require.NoError(t, r.Err)
	assert.Equal(t, "abc", string(buf))

	pos := run(t, rt, f.SeekTo(0, io.SeekCurrent))
	require.NoError(t, pos.Err)
	assert.Equal(t, int64(3), pos.Value)

	pos = run(t, rt, f.SeekTo(-2, io.SeekEnd))
	require.NoError(t, pos.Err)
	assert.Equal(t, int64(8), pos.Value)
	r = run(t, rt, asyncio.ReadFull(f, buf[:2]))
	require.NoError(t, r.Err)
	assert.Equal(t, "ij", string(buf[:2]))

	rr := run(t, rt, asyncio.Read(f, buf))
	assert.ErrorIs(t, rr.Err, io.EOF)
}

func TestFile_WriteAfterReadAhead(t *testing.T) {
	rt := newRuntime(t)
	name := filepath.Join(t.TempDir(), "overwrite")
	require.NoError(t, os.WriteFile(name, []byte("abcdefghij"), 0o644))

	f := open(t, rt, fsio.NewOpenOptions().Read(true).Write(true), name)
	buf := make([]byte, 2)
	r := run(t, rt, asyncio.ReadFull(f, buf))
	require.NoError(t, r.Err)
	n := run(t, rt, asyncio.WriteAll(f, []byte("XY")))
	require.NoError(t, n.Err)
	require.NoError(t, run(t, rt, f.SyncAll()))

	b, err := os.ReadFile(name)
	require.NoError(t, err)
	assert.Equal(t, "abXYefghij", string(b))
}

func TestFile_MetadataSetLen(t *testing.T) {
	rt := newRuntime(t)
	name := filepath.Join(t.TempDir(), "len")
	f := open(t, rt, fsio.NewOpenOptions().Write(true).CreateNew(true).Mode(0o600), name)

	n := run(t, rt, asyncio.Write(f, []byte("hello world")))
	require.NoError(t, n.Err)
	// metadata waits for the buffered write
	info := run(t, rt, f.Metadata())
	require.NoError(t, info.Err)
	assert.Equal(t, int64(11), info.Value.Size())
	assert.Equal(t, os.FileMode(0o600), info.Value.Mode().Perm()&0o600)

	require.NoError(t, run(t, rt, f.SetLen(5)))
	require.NoError(t, run(t, rt, f.SyncData()))
	info = run(t, rt, f.Metadata())
	require.NoError(t, info.Err)
	assert.Equal(t, int64(5), info.Value.Size())

	require.NoError(t, run(t, rt, f.SetPermissions(0o644)))
	st, err := os.Stat(name)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), st.Mode().Perm())
}

func TestFile_Close(t *testing.T) {
	rt := newRuntime(t)
	name := filepath.Join(t.TempDir(), "closed")
	r := run(t, rt, fsio.Create(name))
	require.NoError(t, r.Err)
	f := r.Value
	n := run(t, rt, asyncio.Write(f, []byte("pending")))
	require.NoError(t, n.Err)

	require.NoError(t, run(t, rt, f.Close()))
	assert.ErrorIs(t, run(t, rt, f.Close()), fsio.ErrFileClosed)
	w := run(t, rt, asyncio.Write(f, []byte("x")))
	assert.ErrorIs(t, w.Err, fsio.ErrFileClosed)

	b, err := os.ReadFile(name)
	require.NoError(t, err)
	assert.Equal(t, "pending", string(b))
}

func TestOpenOptions_Invalid(t *testing.T) {
	rt := newRuntime(t)
	name := filepath.Join(t.TempDir(), "x")
	for _, tc := range []struct {
		name string
		opts *fsio.OpenOptions
	}{
		{"no access", fsio.NewOpenOptions()},
		{"create read-only", fsio.NewOpenOptions().Read(true).Create(true)},
		{"create-new read-only", fsio.NewOpenOptions().Read(true).CreateNew(true)},
		{"truncate read-only", fsio.NewOpenOptions().Read(true).Truncate(true)},
		{"truncate append", fsio.NewOpenOptions().Append(true).Truncate(true)},
	} {
		t.Run(tc.name, func(t *testing.T) {
			r := run(t, rt, tc.opts.Open(name))
			assert.ErrorIs(t, r.Err, fsio.ErrInvalidOptions)
			var pe *os.PathError
			require.ErrorAs(t, r.Err, &pe)
			assert.Equal(t, name, pe.Path)
		})
	}
	_, err := os.Stat(name)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestOpenOptions_CreateNewExisting(t *testing.T) {
	rt := newRuntime(t)
	name := filepath.Join(t.TempDir(), "exists")
	require.NoError(t, os.WriteFile(name, nil, 0o644))
	r := run(t, rt, fsio.NewOpenOptions().Write(true).CreateNew(true).Open(name))
	assert.ErrorIs(t, r.Err, os.ErrExist)
}

func TestOpenOptions_Append(t *testing.T) {
	rt := newRuntime(t)
	name := filepath.Join(t.TempDir(), "log")
	require.NoError(t, os.WriteFile(name, []byte("one\n"), 0o644))
	f := open(t, rt, fsio.NewOpenOptions().Append(true), name)
	n := run(t, rt, asyncio.WriteAll(f, []byte("two\n")))
	require.NoError(t, n.Err)
	require.NoError(t, run(t, rt, asyncio.Flush(f)))
	b, err := os.ReadFile(name)
	require.NoError(t, err)
	assert.Equal(t, "one\ntwo\n", string(b))
}

func TestDirectories(t *testing.T) {
	rt := newRuntime(t)
	root := t.TempDir()
	deep := filepath.Join(root, "a", "b", "c")
	require.NoError(t, run(t, rt, fsio.CreateDirAll(deep, 0o755)))
	require.NoError(t, run(t, rt, fsio.CreateDir(filepath.Join(root, "d"), 0o755)))
	assert.ErrorIs(t, run(t, rt, fsio.CreateDir(filepath.Join(root, "d"), 0o755)), os.ErrExist)

	require.NoError(t, run(t, rt, fsio.WriteFile(filepath.Join(deep, "f"), []byte("x"), 0o644)))
	require.NoError(t, run(t, rt, fsio.Rename(filepath.Join(deep, "f"), filepath.Join(root, "d", "g"))))

	entries := run(t, rt, fsio.ReadDir(root))
	require.NoError(t, entries.Err)
	var names []string
	for _, e := range entries.Value {
		names = append(names, e.Name())
	}
	assert.Equal(t, []string{"a", "d"}, names)

	assert.Error(t, run(t, rt, fsio.Remove(filepath.Join(root, "a"))))
	require.NoError(t, run(t, rt, fsio.RemoveAll(filepath.Join(root, "a"))))
	require.NoError(t, run(t, rt, fsio.Remove(filepath.Join(root, "d", "g"))))
	_, err := os.Stat(filepath.Join(root, "a"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestNoRuntime(t *testing.T) {
	cx := asyncrt.ContextFromWaker(asyncrt.NoopWaker())
	r, ok := fsio.ReadFile("whatever").Poll(cx).Value()
	require.True(t, ok)
	assert.ErrorIs(t, r.Err, fsio.ErrNoRuntime)
}
