package vhd

import (
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildFixedVHD constructs a minimal Fixed-disk VHD: the payload bytes
// followed by a 512-byte big-endian footer whose checksum is the
// one's-complement sum of the footer with the checksum field zeroed.
func buildFixedVHD(t *testing.T, payload []byte) []byte {
	footer := make([]byte, footerSize)
	copy(footer[0:8], "conectix")
	binary.BigEndian.PutUint32(footer[8:12], 0x00000002)           // features: reserved bit
	binary.BigEndian.PutUint32(footer[12:16], 0x00010000)          // file format version 1.0
	binary.BigEndian.PutUint64(footer[16:24], 0xFFFFFFFFFFFFFFFF)  // no dynamic header for a Fixed disk
	binary.BigEndian.PutUint64(footer[40:48], uint64(len(payload))) // original size
	binary.BigEndian.PutUint64(footer[48:56], uint64(len(payload))) // current size
	binary.BigEndian.PutUint32(footer[60:64], uint32(DiskTypeFixed))

	checksum := onesComplementChecksum(footer)
	binary.BigEndian.PutUint32(footer[64:68], checksum)

	img := make([]byte, 0, len(payload)+footerSize)
	img = append(img, payload...)
	img = append(img, footer...)
	return img
}

func TestOpen_FixedDisk(t *testing.T) {
	payload := make([]byte, 2048)
	for i := range payload {
		payload[i] = byte(i)
	}
	img := buildFixedVHD(t, payload)

	path := filepath.Join(t.TempDir(), "fixed.vhd")
	require.NoError(t, os.WriteFile(path, img, 0o644))

	v, err := Open(path, Config{})
	require.NoError(t, err)
	defer v.Close()

	assert.Equal(t, "VHD Fixed", v.Identify())
	assert.Equal(t, uint64(len(payload)), v.Length())

	s, err := v.Stream()
	require.NoError(t, err)
	data, err := io.ReadAll(s)
	require.NoError(t, err)
	assert.Equal(t, payload, data)
}

func TestParseFooter_RejectsBadChecksum(t *testing.T) {
	img := buildFixedVHD(t, make([]byte, 512))
	img[len(img)-1] ^= 0xFF // corrupt a footer byte after checksum was computed

	_, err := ParseFooter(img[len(img)-footerSize:])
	assert.Error(t, err)
}
