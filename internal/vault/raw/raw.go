// Package raw implements the fallback Vault: the file's own bytes are the
// logical stream, verbatim.
package raw

import (
	"os"

	"github.com/forensiccore/diskvault/internal/stream"
)

// Vault exposes a raw disk image file directly as its logical stream.
type Vault struct {
	f       *os.File
	closer  interface{ Close() error }
	backing stream.Stream
}

// Open opens path as a Raw vault.
func Open(path string, useMmap bool) (*Vault, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	s, closer, err := stream.Open(f, useMmap)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &Vault{f: f, closer: closer, backing: s}, nil
}

func (v *Vault) Identify() string { return "Raw" }

func (v *Vault) Length() uint64 { return v.backing.Length() }

func (v *Vault) Stream() (stream.Stream, error) {
	return &viewStream{backing: v.backing}, nil
}

func (v *Vault) Close() error {
	if v.closer != nil {
		_ = v.closer.Close()
	}
	return v.f.Close()
}

// viewStream gives each Stream() caller an independent read position over
// the same backing bytes, since stream.Stream implementations are
// stateful w.r.t. position.
type viewStream struct {
	backing stream.Stream
	pos     int64
}

func (v *viewStream) Read(p []byte) (int, error) {
	if _, err := v.backing.Seek(v.pos, 0); err != nil {
		return 0, err
	}
	n, err := v.backing.Read(p)
	v.pos += int64(n)
	return n, err
}

func (v *viewStream) Seek(offset int64, whence int) (int64, error) {
	if whence == 1 { // io.SeekCurrent: resolve against this view's own position
		offset += v.pos
		whence = 0
	}
	pos, err := v.backing.Seek(offset, whence)
	if err != nil {
		return 0, err
	}
	v.pos = pos
	return pos, nil
}

func (v *viewStream) Length() uint64 { return v.backing.Length() }
