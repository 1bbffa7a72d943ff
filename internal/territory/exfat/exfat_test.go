package exfat

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

func putLE32(b []byte, off int, v uint32) {
	b[off] = byte(v)
	b[off+1] = byte(v >> 8)
	b[off+2] = byte(v >> 16)
	b[off+3] = byte(v >> 24)
}

func putLE64(b []byte, off int, v uint64) {
	for i := 0; i < 8; i++ {
		b[off+i] = byte(v >> (8 * i))
	}
}

func putLE16(b []byte, off int, v uint16) {
	b[off] = byte(v)
	b[off+1] = byte(v >> 8)
}

// buildTestVolume constructs a minimal two-cluster exFAT volume: one
// root-directory cluster holding a HELLO.TXT file-entry set, and a
// second, contiguous data cluster holding the file's bytes.
func buildTestVolume(t *testing.T) []byte {
	const (
		bytesPerSector  = 512
		bytesPerCluster = 512
		fatOffsetSector = 1
		heapOffsetSect  = 4
		rootDirCluster  = 2
		dataCluster     = 3
	)

	img := make([]byte, heapOffsetSect*bytesPerSector+2*bytesPerCluster)

	copy(img[3:11], fsNameSignature)
	putLE64(img, 64, 0)                    // partition offset
	putLE64(img, 72, 100)                  // volume length (sectors)
	putLE32(img, 80, fatOffsetSector)      // fat offset
	putLE32(img, 84, 1)                    // fat length
	putLE32(img, 88, heapOffsetSect)       // cluster heap offset
	putLE32(img, 92, 10)                   // cluster count
	putLE32(img, 96, rootDirCluster)       // root dir cluster
	putLE32(img, 100, 0)                   // volume serial
	putLE16(img, 104, 0x0100)              // fs revision
	putLE16(img, 106, 0)                   // volume flags
	img[108] = 9                           // bytes-per-sector shift (512)
	img[109] = 0                           // sectors-per-cluster shift (1)
	img[110] = 1                           // number of FATs
	img[111] = 0x80
	img[510] = 0x55
	img[511] = 0xAA

	fatBase := fatOffsetSector * bytesPerSector
	putLE32(img, fatBase+int(rootDirCluster)*4, 0xFFFFFFFF) // root dir: single cluster, end of chain

	dirBase := heapOffsetSect*bytesPerSector + (rootDirCluster-2)*bytesPerCluster
	name := "HELLO.TXT"

	// Primary file entry.
	img[dirBase+0] = 0x85
	img[dirBase+1] = 2 // secondary count: stream extension + 1 name entry
	putLE16(img, dirBase+4, 0x20) // ARCHIVE

	// Stream extension entry.
	se := dirBase + 32
	img[se+0] = 0xC0
	img[se+1] = 0x03 // allocation possible + no-FAT-chain (contiguous)
	img[se+3] = byte(len(name))
	putLE32(img, se+20, dataCluster)
	putLE64(img, se+24, uint64(len("hello")))

	// File name entry.
	fn := dirBase + 64
	img[fn+0] = 0xC1
	for i, r := range name {
		putLE16(img, fn+2+i*2, uint16(r))
	}

	dataBase := heapOffsetSect*bytesPerSector + (dataCluster-2)*bytesPerCluster
	copy(img[dataBase:], "hello")

	require.LessOrEqual(t, dirBase+96, len(img))
	return img
}

func TestParseAndRoot(t *testing.T) {
	img := buildTestVolume(t)
	terr, err := Parse(newMemStream(img))
	require.NoError(t, err)
	assert.Equal(t, "exFAT", terr.Identify())

	root, err := terr.Root()
	require.NoError(t, err)
	entries, err := root.List()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "HELLO.TXT", entries[0].Name)
	assert.False(t, entries[0].IsDir)
	assert.Equal(t, uint64(5), entries[0].Size)
}

func TestExtractContiguousFile(t *testing.T) {
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

// buildLoopingChainVolume is buildTestVolume with HELLO.TXT's stream
// extension marked non-contiguous (forcing a FAT chain walk) and the
// data cluster's FAT entry pointing back at itself instead of
// end-of-chain.
func buildLoopingChainVolume(t *testing.T) []byte {
	img := buildTestVolume(t)

	const (
		bytesPerSector  = 512
		bytesPerCluster = 512
		fatOffsetSector = 1
		heapOffsetSect  = 4
		rootDirCluster  = 2
		dataCluster     = 3
	)

	dirBase := heapOffsetSect*bytesPerSector + (rootDirCluster-2)*bytesPerCluster
	se := dirBase + 32
	img[se+1] = 0x01                       // allocation possible, no-fat-chain bit cleared
	putLE64(img, se+24, bytesPerCluster+8) // spans past the first cluster so the walk consults the FAT

	fatBase := fatOffsetSector * bytesPerSector
	putLE32(img, fatBase+dataCluster*4, dataCluster) // self-loop

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
