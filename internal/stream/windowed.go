package stream

import (
	"io"

	"github.com/forensiccore/diskvault/internal/coreerr"
	"github.com/forensiccore/diskvault/internal/security"
)

// Windowed is a Stream constructed from an inner Stream plus (start,
// length). All offsets translate through start; seeks outside [0, length]
// fail, matching the source's PartialPipeline.
type Windowed struct {
	inner    Stream
	start    uint64
	length   uint64
	position uint64
}

// NewWindow constructs a Windowed stream, checking start+length against
// inner.Length() with checked arithmetic before accepting the window.
func NewWindow(inner Stream, start, length uint64) (*Windowed, error) {
	end, err := security.CheckedAddU64(start, length)
	if err != nil {
		return nil, err
	}
	if end > inner.Length() {
		return nil, coreerr.InvalidFormatf("window exceeds inner stream: start=%d length=%d inner_length=%d", start, length, inner.Length())
	}
	if _, err := inner.Seek(int64(start), io.SeekStart); err != nil {
		return nil, err
	}
	return &Windowed{inner: inner, start: start, length: length}, nil
}

func (w *Windowed) Read(p []byte) (int, error) {
	remaining := w.length - w.position
	if remaining == 0 {
		return 0, io.EOF
	}
	if uint64(len(p)) > remaining {
		p = p[:remaining]
	}
	if _, err := w.inner.Seek(int64(w.start+w.position), io.SeekStart); err != nil {
		return 0, err
	}
	n, err := w.inner.Read(p)
	w.position += uint64(n)
	return n, err
}

func (w *Windowed) Seek(offset int64, whence int) (int64, error) {
	var newPos int64
	switch whence {
	case io.SeekStart:
		newPos = offset
	case io.SeekCurrent:
		newPos = int64(w.position) + offset
	case io.SeekEnd:
		newPos = int64(w.length) + offset
	default:
		return 0, coreerr.InvalidFormatf("invalid seek whence %d", whence)
	}
	if newPos < 0 || uint64(newPos) > w.length {
		return 0, coreerr.InvalidFormatf("seek outside window bounds: %d (length %d)", newPos, w.length)
	}
	w.position = uint64(newPos)
	return newPos, nil
}

func (w *Windowed) Length() uint64 {
	return w.length
}

// Start returns the absolute offset into the inner stream this window begins at.
func (w *Windowed) Start() uint64 {
	return w.start
}
