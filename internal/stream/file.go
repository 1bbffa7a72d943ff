package stream

import (
	"io"
	"os"

	"github.com/forensiccore/diskvault/internal/coreerr"
)

// FileStream is a Stream backed directly by an *os.File, with no window
// applied. It is the base stream Raw vaults (and every other vault's
// underlying backing file) read from before any windowing is layered on.
type FileStream struct {
	f      *os.File
	length uint64
}

// NewFile wraps f as a Stream. The file's current size is captured once;
// callers must not mutate the file out from under a live FileStream
// (matching the mmap view's "immutable for the handle's lifetime"
// precondition).
func NewFile(f *os.File) (*FileStream, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, coreerr.IOf(err, "stat backing file")
	}
	return &FileStream{f: f, length: uint64(info.Size())}, nil
}

func (fs *FileStream) Read(p []byte) (int, error) {
	n, err := fs.f.Read(p)
	if err == io.EOF && n > 0 {
		return n, nil
	}
	return n, err
}

func (fs *FileStream) Seek(offset int64, whence int) (int64, error) {
	pos, err := fs.f.Seek(offset, whence)
	if err != nil {
		return 0, coreerr.InvalidFormatf("seek: %v", err)
	}
	if pos < 0 || uint64(pos) > fs.length {
		return 0, coreerr.InvalidFormatf("seek outside stream bounds: %d", pos)
	}
	return pos, nil
}

func (fs *FileStream) Length() uint64 {
	return fs.length
}

// Close releases the backing file.
func (fs *FileStream) Close() error {
	return fs.f.Close()
}
