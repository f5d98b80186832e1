// Package vfile is the narrow filesystem collaborator that mmap-backed
// pages use: length, read-at, write-at, duplicate, and close, all
// serialized behind a single global lock.
package vfile

import (
	"os"
	"sync"
)

// filesysLock is the single coarse lock guarding every File operation.
// It is intentionally package-level rather than per-file: one lock for
// the whole filesystem module, not one per open file.
var filesysLock sync.Mutex

// File is a per-page-owned handle to a backing file. Every VM page that
// references a File acquired it via Duplicate and is responsible for
// calling Close exactly once, at destroy time.
type File struct {
	f    *os.File
	path string
}

// Open acquires filesysLock and opens path for reading and writing.
func Open(path string) (*File, error) {
	filesysLock.Lock()
	defer filesysLock.Unlock()
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	return &File{f: f, path: path}, nil
}

// Length returns the file's current size (file_length).
func (vf *File) Length() (int64, error) {
	filesysLock.Lock()
	defer filesysLock.Unlock()
	fi, err := vf.f.Stat()
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

// ReadAt reads len(buf) bytes starting at off (file_read_at). It
// returns the number of bytes actually read, which may be less than
// len(buf) on a short read.
func (vf *File) ReadAt(buf []byte, off int64) (int, error) {
	filesysLock.Lock()
	defer filesysLock.Unlock()
	n, err := vf.f.ReadAt(buf, off)
	if err != nil && n > 0 {
		// a short read is not itself fatal to file_read_at; the
		// caller (the file-backed page engine) decides whether it
		// constitutes a real I/O error.
		return n, nil
	}
	return n, err
}

// WriteAt writes buf at offset off (file_write_at).
func (vf *File) WriteAt(buf []byte, off int64) (int, error) {
	filesysLock.Lock()
	defer filesysLock.Unlock()
	return vf.f.WriteAt(buf, off)
}

// Duplicate acquires filesys_lock and returns a new File referencing
// the same path: a reopen, not an alias, giving the caller (a VM page)
// its own, independently closeable handle.
func (vf *File) Duplicate() (*File, error) {
	filesysLock.Lock()
	defer filesysLock.Unlock()
	f, err := os.OpenFile(vf.path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	return &File{f: f, path: vf.path}, nil
}

// Close releases this handle (file_close). It must be called exactly
// once per File, at page-destroy time; munmap reaches it only through
// page destroy, after write-back.
func (vf *File) Close() error {
	filesysLock.Lock()
	defer filesysLock.Unlock()
	return vf.f.Close()
}
