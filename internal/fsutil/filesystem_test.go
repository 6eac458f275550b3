package fsutil

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
)

var (
	_ FileSystem = OSFileSystem{}
	_ FileSystem = (*MemoryFileSystem)(nil)
)

func TestOSFileSystem_ReadMissing(t *testing.T) {
	osfs := OSFileSystem{}

	if _, err := osfs.ReadFile("filesystem.go"); err != nil {
		t.Errorf("expected filesystem.go to be readable: %v", err)
	}
	if _, err := osfs.ReadFile("nonexistent_file_xyz.go"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected ErrNotExist, got %v", err)
	}
	if _, err := osfs.OpenFile("nonexistent_file_xyz.go", os.O_RDWR, 0644); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected ErrNotExist without O_CREATE, got %v", err)
	}
}

func TestOSFileSystem_OverwriteInPlace(t *testing.T) {
	osfs := OSFileSystem{}
	dir := t.TempDir()
	name := filepath.Join(dir, "nested", "slot")

	if err := osfs.MkdirAll(filepath.Dir(name), 0755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}

	f, err := osfs.OpenFile(name, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		t.Fatalf("OpenFile failed: %v", err)
	}
	defer f.Close()

	if _, err := f.Write([]byte("long content\n")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		t.Fatalf("Seek failed: %v", err)
	}
	if _, err := f.Write([]byte("x\n")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := f.Truncate(2); err != nil {
		t.Fatalf("Truncate failed: %v", err)
	}
	if err := f.Sync(); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	data, err := osfs.ReadFile(name)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != "x\n" {
		t.Errorf("expected %q, got %q", "x\n", data)
	}

	info, err := f.Stat()
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Size() != 2 {
		t.Errorf("expected size 2, got %d", info.Size())
	}
}

func TestMemoryFileSystem_WriteAndRead(t *testing.T) {
	mfs := NewMemoryFileSystem()

	testData := []byte("hello, world")
	if err := mfs.WriteFile("/test.txt", testData, 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	data, err := mfs.ReadFile("/test.txt")
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}

	if string(data) != string(testData) {
		t.Errorf("expected %q, got %q", testData, data)
	}
}

func TestMemoryFileSystem_OpenFileFlags(t *testing.T) {
	mfs := NewMemoryFileSystem()

	if _, err := mfs.OpenFile("/missing", os.O_RDWR, 0644); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected ErrNotExist without O_CREATE, got %v", err)
	}

	if _, err := mfs.OpenFile("/nodir/file", os.O_RDWR|os.O_CREATE, 0644); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected ErrNotExist for missing parent dir, got %v", err)
	}

	f, err := mfs.OpenFile("/created", os.O_RDWR|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		t.Fatalf("OpenFile failed: %v", err)
	}
	f.Close()

	if _, err := mfs.OpenFile("/created", os.O_RDWR|os.O_CREATE|os.O_EXCL, 0644); !errors.Is(err, fs.ErrExist) {
		t.Errorf("expected ErrExist with O_EXCL, got %v", err)
	}
}

func TestMemoryFileSystem_SeekWriteTruncate(t *testing.T) {
	mfs := NewMemoryFileSystem()
	if err := mfs.MkdirAll("/out", 0755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}

	f, err := mfs.OpenFile("/out/slot", os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		t.Fatalf("OpenFile failed: %v", err)
	}
	defer f.Close()

	if _, err := f.Write([]byte("   100000\n")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		t.Fatalf("Seek failed: %v", err)
	}
	if _, err := f.Write([]byte("7\n")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	data, _ := mfs.ReadFile("/out/slot")
	if string(data) != "7\n 100000\n" {
		t.Errorf("expected overwrite without truncate, got %q", data)
	}

	if err := f.Truncate(2); err != nil {
		t.Fatalf("Truncate failed: %v", err)
	}
	data, _ = mfs.ReadFile("/out/slot")
	if string(data) != "7\n" {
		t.Errorf("expected truncated content, got %q", data)
	}

	info, err := f.Stat()
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Size() != 2 || info.Name() != "slot" {
		t.Errorf("unexpected stat %s/%d", info.Name(), info.Size())
	}
}

func TestMemoryFileSystem_FailWrites(t *testing.T) {
	mfs := NewMemoryFileSystem()
	mfs.MkdirAll("/out", 0755)

	f, err := mfs.OpenFile("/out/slot", os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		t.Fatalf("OpenFile failed: %v", err)
	}

	diskFull := errors.New("no space left on device")
	mfs.FailWrites("/out/slot", diskFull)
	if _, err := f.Write([]byte("1\n")); !errors.Is(err, diskFull) {
		t.Errorf("expected injected error, got %v", err)
	}

	mfs.FailWrites("/out/slot", nil)
	if _, err := f.Write([]byte("1\n")); err != nil {
		t.Errorf("expected write to succeed after clearing fault, got %v", err)
	}

	if err := f.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := f.Write([]byte("1\n")); err == nil {
		t.Error("expected error writing to closed file")
	}
}

func TestMemoryFileSystem_FailOpens(t *testing.T) {
	mfs := NewMemoryFileSystem()
	denied := errors.New("permission denied")
	mfs.FailOpens(denied)

	if _, err := mfs.OpenFile("/x", os.O_RDWR|os.O_CREATE, 0644); !errors.Is(err, denied) {
		t.Errorf("expected injected open error, got %v", err)
	}
}

func TestMemoryFileSystem_MkdirAllCreatesParents(t *testing.T) {
	mfs := NewMemoryFileSystem()

	if err := mfs.MkdirAll("/a/b/c", 0755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	for _, dir := range []string{"/a", "/a/b", "/a/b/c"} {
		f, err := mfs.OpenFile(dir+"/slot", os.O_RDWR|os.O_CREATE, 0644)
		if err != nil {
			t.Errorf("expected %s to accept new files: %v", dir, err)
			continue
		}
		f.Close()
	}

	if _, err := mfs.OpenFile("/a/missing/slot", os.O_RDWR|os.O_CREATE, 0644); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected ErrNotExist under missing dir, got %v", err)
	}
	if _, err := mfs.ReadFile("/a/missing"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected ErrNotExist for missing file, got %v", err)
	}
}
