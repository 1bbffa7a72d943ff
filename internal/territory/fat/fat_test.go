package fat

import (
	"bytes"
	"testing"

	"github.com/forensiccore/diskvault/internal/coreerr"
	"github.com/forensiccore/diskvault/internal/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStream struct {
	*bytes.Reader
}

func (m *memStream) Length() uint64 { return uint64(m.Size()) }

func newMemStream(b []byte) stream.Stream {
	return &memStream{bytes.NewReader(b)}
}

func putLE16(b []byte, off int, v uint16) {
	b[off] = byte(v)
	b[off+1] = byte(v >> 8)
}

func putLE32(b []byte, off int, v uint32) {
	b[off] = byte(v)
	b[off+1] = byte(v >> 8)
	b[off+2] = byte(v >> 16)
	b[off+3] = byte(v >> 24)
}

// buildTestVolume constructs a minimal single-cluster FAT12 volume: one
// reserved sector (BPB), a one-sector FAT with cluster 2 marked
// end-of-chain, a one-sector root directory holding a HELLO.TXT short
// entry, and a single 512-byte data cluster holding the file's bytes.
func buildTestVolume(t *testing.T) []byte {
	const (
		bytesPerSector  = 512
		reservedSectors = 1
		numFATs         = 1
		rootEntries     = 16
		totalSectors    = 40
		sectorsPerFAT   = 1
	)

	img := make([]byte, 2048)

	putLE16(img, 11, bytesPerSector)
	img[13] = 1 // sectors per cluster
	putLE16(img, 14, reservedSectors)
	img[16] = numFATs
	putLE16(img, 17, rootEntries)
	putLE16(img, 19, totalSectors)
	putLE16(img, 22, sectorsPerFAT)

	fatOffset := reservedSectors * bytesPerSector // 512
	img[fatOffset+3] = 0xFF
	img[fatOffset+4] = 0x0F // cluster 2 -> 0xFFF (end of chain)

	rootOffset := fatOffset + numFATs*sectorsPerFAT*bytesPerSector // 1024
	copy(img[rootOffset:rootOffset+8], "HELLO   ")
	copy(img[rootOffset+8:rootOffset+11], "TXT")
	img[rootOffset+11] = AttrArchive
	putLE16(img, rootOffset+26, 2) // first cluster low = 2
	putLE32(img, rootOffset+28, 5) // file size

	dataOffset := rootOffset + 512 // one root-dir sector
	copy(img[dataOffset:], "hello")

	return img
}

func TestParseAndRoot(t *testing.T) {
	img := buildTestVolume(t)
	terr, err := Parse(newMemStream(img))
	require.NoError(t, err)
	assert.Equal(t, "FAT12", terr.Identify())

	root, err := terr.Root()
	require.NoError(t, err)
	entries, err := root.List()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "HELLO.TXT", entries[0].Name)
	assert.False(t, entries[0].IsDir)
	assert.Equal(t, uint64(5), entries[0].Size)
}

func TestExtractFile(t *testing.T) {
	img := buildTestVolume(t)
	terr, err := Parse(newMemStream(img))
	require.NoError(t, err)

	data, err := terr.Extract("HELLO.TXT")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestNavigateNotFound(t *testing.T) {
	img := buildTestVolume(t)
	terr, err := Parse(newMemStream(img))
	require.NoError(t, err)

	_, err = terr.Navigate("missing")
	assert.Error(t, err)
}

// buildLoopingChainVolume is buildTestVolume with HELLO.TXT's FAT chain
// replaced by a two-cluster loop (2 -> 3 -> 2) instead of an
// end-of-chain marker.
func buildLoopingChainVolume(t *testing.T) []byte {
	img := buildTestVolume(t)

	const (
		bytesPerSector  = 512
		reservedSectors = 1
	)
	fatOffset := reservedSectors * bytesPerSector

	img[fatOffset+3] = 0x03
	img[fatOffset+4] = 0x20
	img[fatOffset+5] = 0x00

	return img
}

func TestExtractFile_CircularChainFails(t *testing.T) {
	img := buildLoopingChainVolume(t)
	terr, err := Parse(newMemStream(img))
	require.NoError(t, err)

	_, err = terr.Extract("HELLO.TXT")
	require.Error(t, err)
	assert.True(t, coreerr.Of(err, coreerr.InvalidFormat))
}
