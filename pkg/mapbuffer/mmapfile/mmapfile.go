// Package mmapfile opens a buffer file as a memory map so a mapbuffer
// Reader can serve lookups directly from the page cache without a syscall
// per read.
package mmapfile

import (
	"golang.org/x/exp/mmap"
)

// File wraps golang.org/x/exp/mmap.ReaderAt, giving it the Size accessor
// mapbuffer.OpenAt needs alongside io.ReaderAt.
type File struct {
	r *mmap.ReaderAt
}

// Open memory-maps the file at path read-only.
func Open(path string) (*File, error) {
	r, err := mmap.Open(path)
	if err != nil {
		return nil, err
	}
	return &File{r: r}, nil
}

// ReadAt satisfies io.ReaderAt by reading directly from the mapped pages.
func (f *File) ReadAt(p []byte, off int64) (int, error) {
	return f.r.ReadAt(p, off)
}

// Size returns the length of the mapped file in bytes.
func (f *File) Size() int64 {
	return int64(f.r.Len())
}

// Close unmaps the file.
func (f *File) Close() error {
	return f.r.Close()
}
