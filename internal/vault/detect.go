package vault

import (
	"os"

	"github.com/forensiccore/diskvault/internal/coreerr"
	"github.com/forensiccore/diskvault/internal/stream"
	"github.com/forensiccore/diskvault/internal/vault/aff4"
	"github.com/forensiccore/diskvault/internal/vault/e01"
	"github.com/forensiccore/diskvault/internal/vault/raw"
	"github.com/forensiccore/diskvault/internal/vault/vhd"
)

const vhdFooterSize = 512

func init() {
	// Wire vhd's differencing-disk parent resolution back through the
	// full factory, so a parent locator naming an E01 or AFF4 image (or
	// another VHD) opens correctly instead of being forced through vhd.Open.
	vhd.OpenNested = func(path string, cfg vhd.Config) (interface {
		Stream() (stream.Stream, error)
		Length() uint64
		Close() error
	}, error) {
		if info, err := os.Stat(path); err == nil && info.Size() >= vhdFooterSize && hasVHDFooter(path, info.Size()) {
			// Preserve depth and ParentDirs across the recursive chain;
			// only a VHD parent needs them, so this is the one case
			// that bypasses the top-level Open and calls vhd.Open directly.
			return vhd.Open(path, cfg)
		}
		return Open(path, Config{UseMmap: cfg.UseMmap})
	}
}

// Open detects path's container format and opens it as a Vault, probing
// in the normative order: VHD footer, then E01/EWF signature, then AFF4
// ZIP+Turtle, falling back to Raw.
func Open(path string, cfg Config) (Vault, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, coreerr.IOf(err, "vault: opening %q", path)
	}

	info, statErr := f.Stat()
	f.Close()
	if statErr != nil {
		return nil, coreerr.IOf(statErr, "vault: stat %q", path)
	}

	if info.Size() >= vhdFooterSize && hasVHDFooter(path, info.Size()) {
		v, err := vhd.Open(path, vhd.Config{UseMmap: cfg.UseMmap})
		if err == nil {
			return v, nil
		}
	}

	if info.Size() >= 8 && hasE01Signature(path) {
		v, err := e01.Open(path)
		if err == nil {
			return v, nil
		}
	}

	if aff4.IsAFF4Container(path) {
		v, err := aff4.Open(path)
		if err == nil {
			return v, nil
		}
	}

	return raw.Open(path, cfg.UseMmap)
}

func hasVHDFooter(path string, size int64) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	buf := make([]byte, 8)
	if _, err := f.ReadAt(buf, size-vhdFooterSize); err != nil {
		return false
	}
	return string(buf) == "conectix"
}

func hasE01Signature(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	buf := make([]byte, 8)
	if _, err := f.ReadAt(buf, 0); err != nil {
		return false
	}
	evf := [8]byte{0x45, 0x56, 0x46, 0x09, 0x0D, 0x0A, 0xFF, 0x00}
	ewf := [8]byte{0x45, 0x56, 0x46, 0x09, 0x0D, 0x0A, 0x00, 0x00}
	var got [8]byte
	copy(got[:], buf)
	return got == evf || got == ewf
}
