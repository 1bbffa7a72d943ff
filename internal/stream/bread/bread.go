// Package bread provides endian-aware byte-slice readers used by every
// on-disk structure decoder in the stack. All readers take a slice and an
// offset and return an error on short input rather than panicking.
package bread

import "github.com/forensiccore/diskvault/internal/coreerr"

func need(b []byte, off, n int) error {
	if off < 0 || off+n > len(b) {
		return coreerr.Truncatedf("need %d bytes at offset %d, have %d", n, off, len(b))
	}
	return nil
}

// LE16 reads a little-endian uint16 at off.
func LE16(b []byte, off int) (uint16, error) {
	if err := need(b, off, 2); err != nil {
		return 0, err
	}
	return uint16(b[off]) | uint16(b[off+1])<<8, nil
}

// LE32 reads a little-endian uint32 at off.
func LE32(b []byte, off int) (uint32, error) {
	if err := need(b, off, 4); err != nil {
		return 0, err
	}
	return uint32(b[off]) | uint32(b[off+1])<<8 | uint32(b[off+2])<<16 | uint32(b[off+3])<<24, nil
}

// LE64 reads a little-endian uint64 at off.
func LE64(b []byte, off int) (uint64, error) {
	if err := need(b, off, 8); err != nil {
		return 0, err
	}
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[off+i]) << (8 * i)
	}
	return v, nil
}

// BE16 reads a big-endian uint16 at off.
func BE16(b []byte, off int) (uint16, error) {
	if err := need(b, off, 2); err != nil {
		return 0, err
	}
	return uint16(b[off])<<8 | uint16(b[off+1]), nil
}

// BE32 reads a big-endian uint32 at off.
func BE32(b []byte, off int) (uint32, error) {
	if err := need(b, off, 4); err != nil {
		return 0, err
	}
	return uint32(b[off])<<24 | uint32(b[off+1])<<16 | uint32(b[off+2])<<8 | uint32(b[off+3]), nil
}

// BE64 reads a big-endian uint64 at off.
func BE64(b []byte, off int) (uint64, error) {
	if err := need(b, off, 8); err != nil {
		return 0, err
	}
	var v uint64
	for i := 0; i < 8; i++ {
		v = v<<8 | uint64(b[off+i])
	}
	return v, nil
}

// BothEndian32 reads a 32-bit value stored twice, LE then BE (the
// ISO-9660 "both-endian" convention), verifying the two halves agree.
// It returns an error if they disagree rather than silently preferring
// one half.
func BothEndian32(b []byte, off int) (uint32, error) {
	if err := need(b, off, 8); err != nil {
		return 0, err
	}
	le, err := LE32(b, off)
	if err != nil {
		return 0, err
	}
	be, err := BE32(b, off+4)
	if err != nil {
		return 0, err
	}
	if le != be {
		return 0, coreerr.InvalidFormatf("both-endian mismatch: le=%d be=%d", le, be)
	}
	return le, nil
}

// BothEndian16 is the 16-bit analogue of BothEndian32.
func BothEndian16(b []byte, off int) (uint16, error) {
	if err := need(b, off, 4); err != nil {
		return 0, err
	}
	le, err := LE16(b, off)
	if err != nil {
		return 0, err
	}
	be, err := BE16(b, off+2)
	if err != nil {
		return 0, err
	}
	if le != be {
		return 0, coreerr.InvalidFormatf("both-endian mismatch: le=%d be=%d", le, be)
	}
	return le, nil
}
