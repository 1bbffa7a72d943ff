package stream

import (
	"io"
	"os"

	"github.com/forensiccore/diskvault/internal/coreerr"
	"github.com/forensiccore/diskvault/internal/security"
)

// Mmap is a Stream backed by a read-only memory map. Admission policy: the
// file must be a regular file (not a device, pipe, or socket) and its size
// must be <= MaxMmapSize. The mapping is created once and released on
// Close. It is assumed immutable for the lifetime of the handle;
// concurrent mutators are out of contract.
type Mmap struct {
	data     []byte
	position int64
}

// NewMmap admits f into a memory-mapped view. It returns Unsupported if
// the platform or file type disqualifies it or the mapping fails, and
// LimitExceeded if the file is larger than MaxMmapSize. Open falls back
// to NewFile (buffered reads) on any error.
func NewMmap(f *os.File) (*Mmap, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, coreerr.IOf(err, "stat backing file")
	}
	if !info.Mode().IsRegular() {
		return nil, coreerr.Unsupportedf("mmap requires a regular file")
	}
	size := info.Size()
	if size < 0 || uint64(size) > security.MaxMmapSize {
		return nil, coreerr.LimitExceededf("mmap size %d exceeds MaxMmapSize %d", size, security.MaxMmapSize)
	}
	if size == 0 {
		return &Mmap{data: nil}, nil
	}
	data, err := mmapFile(f, int(size))
	if err != nil {
		return nil, coreerr.Unsupportedf("mmap: %v", err)
	}
	return &Mmap{data: data}, nil
}

func (m *Mmap) Read(p []byte) (int, error) {
	if m.position >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[m.position:])
	m.position += int64(n)
	return n, nil
}

// Seek fails for targets outside [0, Length()], as Windowed does.
func (m *Mmap) Seek(offset int64, whence int) (int64, error) {
	var newPos int64
	switch whence {
	case io.SeekStart:
		newPos = offset
	case io.SeekCurrent:
		newPos = m.position + offset
	case io.SeekEnd:
		newPos = int64(len(m.data)) + offset
	default:
		return 0, coreerr.InvalidFormatf("invalid seek whence %d", whence)
	}
	if newPos < 0 || newPos > int64(len(m.data)) {
		return 0, coreerr.InvalidFormatf("seek outside stream bounds: %d (length %d)", newPos, len(m.data))
	}
	m.position = newPos
	return newPos, nil
}

func (m *Mmap) Length() uint64 {
	return uint64(len(m.data))
}

// Close unmaps the backing memory.
func (m *Mmap) Close() error {
	if m.data == nil {
		return nil
	}
	return munmapFile(m.data)
}

// Open returns the best available Stream for f: a memory-mapped view when
// useMmap is requested and the file is admissible, otherwise a buffered
// FileStream. This realizes §4.1's "on platforms without safe mapping,
// fall back to buffered file reads with equivalent contract."
func Open(f *os.File, useMmap bool) (Stream, io.Closer, error) {
	if useMmap {
		if m, err := NewMmap(f); err == nil {
			return m, m, nil
		}
	}
	fs, err := NewFile(f)
	if err != nil {
		return nil, nil, err
	}
	return fs, fs, nil
}
