// Package fsutil provides filesystem abstractions for testability.
package fsutil

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// File is the subset of *os.File the output slots rely on: in-place
// overwrite through seek, write and truncate.
type File interface {
	io.Writer
	io.Seeker
	io.Closer
	Truncate(size int64) error
	Sync() error
	Stat() (fs.FileInfo, error)
}

// FileSystem abstracts filesystem operations for testability.
// Use OSFileSystem for production; MemoryFileSystem for testing.
type FileSystem interface {
	// OpenFile opens the named file with the given os.O_* flags.
	OpenFile(name string, flag int, perm os.FileMode) (File, error)

	// ReadFile reads the named file and returns its contents.
	ReadFile(name string) ([]byte, error)

	// MkdirAll creates a directory and all necessary parents.
	MkdirAll(path string, perm os.FileMode) error
}

// OSFileSystem implements FileSystem using the os package.
type OSFileSystem struct{}

// OpenFile opens the named file.
func (OSFileSystem) OpenFile(name string, flag int, perm os.FileMode) (File, error) {
	f, err := os.OpenFile(name, flag, perm)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// ReadFile reads the named file.
func (OSFileSystem) ReadFile(name string) ([]byte, error) {
	return os.ReadFile(name)
}

// MkdirAll creates a directory path.
func (OSFileSystem) MkdirAll(path string, perm os.FileMode) error {
	return os.MkdirAll(path, perm)
}

// MemoryFileSystem provides an in-memory filesystem for testing.
// Write faults can be injected per file with FailWrites.
type MemoryFileSystem struct {
	mu       sync.RWMutex
	files    map[string]*memFile
	dirs     map[string]bool
	failures map[string]error
	openErr  error
}

type memFile struct {
	data []byte
	mode os.FileMode
}

// NewMemoryFileSystem creates a new in-memory filesystem.
func NewMemoryFileSystem() *MemoryFileSystem {
	return &MemoryFileSystem{
		files:    make(map[string]*memFile),
		dirs:     make(map[string]bool),
		failures: make(map[string]error),
	}
}

// FailWrites makes every subsequent Write to name return err. A nil err
// clears the fault.
func (m *MemoryFileSystem) FailWrites(name string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	name = filepath.Clean(name)
	if err == nil {
		delete(m.failures, name)
		return
	}
	m.failures[name] = err
}

// FailOpens makes every subsequent OpenFile return err.
func (m *MemoryFileSystem) FailOpens(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openErr = err
}

// OpenFile opens or creates a file according to flag.
func (m *MemoryFileSystem) OpenFile(name string, flag int, perm os.FileMode) (File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	name = filepath.Clean(name)
	if m.openErr != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: m.openErr}
	}

	f, ok := m.files[name]
	switch {
	case ok && flag&os.O_CREATE != 0 && flag&os.O_EXCL != 0:
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrExist}
	case !ok && flag&os.O_CREATE == 0:
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	case !ok:
		if dir := filepath.Dir(name); dir != "." && dir != "/" && !m.dirs[dir] {
			return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
		}
		f = &memFile{data: []byte{}, mode: perm}
		m.files[name] = f
	}
	if flag&os.O_TRUNC != 0 {
		f.data = f.data[:0]
	}

	return &memHandle{fs: m, name: name, file: f, appendMode: flag&os.O_APPEND != 0}, nil
}

// WriteFile writes data to a file, creating it if necessary.
func (m *MemoryFileSystem) WriteFile(name string, data []byte, perm os.FileMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	name = filepath.Clean(name)
	dataCopy := make([]byte, len(data))
	copy(dataCopy, data)
	m.files[name] = &memFile{data: dataCopy, mode: perm}

	return nil
}

// ReadFile reads a file's contents.
func (m *MemoryFileSystem) ReadFile(name string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	name = filepath.Clean(name)
	f, ok := m.files[name]
	if !ok {
		return nil, &fs.PathError{Op: "read", Path: name, Err: fs.ErrNotExist}
	}

	result := make([]byte, len(f.data))
	copy(result, f.data)
	return result, nil
}

// MkdirAll creates directories.
func (m *MemoryFileSystem) MkdirAll(path string, perm os.FileMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	path = filepath.Clean(path)
	m.dirs[path] = true

	for p := filepath.Dir(path); p != "." && p != "/" && p != path; p = filepath.Dir(p) {
		m.dirs[p] = true
	}

	return nil
}

var errClosed = errors.New("file already closed")

// memHandle is an open read/write handle on a memFile.
type memHandle struct {
	fs         *MemoryFileSystem
	name       string
	file       *memFile
	offset     int64
	appendMode bool
	closed     bool
}

func (h *memHandle) Write(p []byte) (int, error) {
	h.fs.mu.Lock()
	defer h.fs.mu.Unlock()

	if h.closed {
		return 0, &fs.PathError{Op: "write", Path: h.name, Err: errClosed}
	}
	if err := h.fs.failures[h.name]; err != nil {
		return 0, &fs.PathError{Op: "write", Path: h.name, Err: err}
	}
	if h.appendMode {
		h.offset = int64(len(h.file.data))
	}

	end := h.offset + int64(len(p))
	if end > int64(len(h.file.data)) {
		grown := make([]byte, end)
		copy(grown, h.file.data)
		h.file.data = grown
	}
	copy(h.file.data[h.offset:end], p)
	h.offset = end
	return len(p), nil
}

func (h *memHandle) Seek(offset int64, whence int) (int64, error) {
	h.fs.mu.Lock()
	defer h.fs.mu.Unlock()

	var base int64
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		base = h.offset
	case io.SeekEnd:
		base = int64(len(h.file.data))
	default:
		return 0, &fs.PathError{Op: "seek", Path: h.name, Err: fs.ErrInvalid}
	}
	if base+offset < 0 {
		return 0, &fs.PathError{Op: "seek", Path: h.name, Err: fs.ErrInvalid}
	}
	h.offset = base + offset
	return h.offset, nil
}

func (h *memHandle) Truncate(size int64) error {
	h.fs.mu.Lock()
	defer h.fs.mu.Unlock()

	if size < 0 {
		return &fs.PathError{Op: "truncate", Path: h.name, Err: fs.ErrInvalid}
	}
	if size <= int64(len(h.file.data)) {
		h.file.data = h.file.data[:size]
		return nil
	}
	grown := make([]byte, size)
	copy(grown, h.file.data)
	h.file.data = grown
	return nil
}

func (h *memHandle) Sync() error { return nil }

func (h *memHandle) Close() error {
	h.fs.mu.Lock()
	defer h.fs.mu.Unlock()
	if h.closed {
		return &fs.PathError{Op: "close", Path: h.name, Err: errClosed}
	}
	h.closed = true
	return nil
}

func (h *memHandle) Stat() (fs.FileInfo, error) {
	h.fs.mu.RLock()
	defer h.fs.mu.RUnlock()
	return &memFileInfo{name: filepath.Base(h.name), size: int64(len(h.file.data)), mode: h.file.mode}, nil
}

// memFileInfo implements fs.FileInfo.
type memFileInfo struct {
	name string
	size int64
	mode os.FileMode
}

func (i *memFileInfo) Name() string       { return i.name }
func (i *memFileInfo) Size() int64        { return i.size }
func (i *memFileInfo) Mode() os.FileMode  { return i.mode }
func (i *memFileInfo) ModTime() time.Time { return time.Time{} }
func (i *memFileInfo) IsDir() bool        { return false }
func (i *memFileInfo) Sys() any           { return nil }
