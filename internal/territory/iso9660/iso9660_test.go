package iso9660

import (
	"bytes"
	"testing"

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

func putBothEndian32(b []byte, off int, v uint32) {
	b[off] = byte(v)
	b[off+1] = byte(v >> 8)
	b[off+2] = byte(v >> 16)
	b[off+3] = byte(v >> 24)
	b[off+4] = byte(v >> 24)
	b[off+5] = byte(v >> 16)
	b[off+6] = byte(v >> 8)
	b[off+7] = byte(v)
}

func putBothEndian16(b []byte, off int, v uint16) {
	b[off] = byte(v)
	b[off+1] = byte(v >> 8)
	b[off+2] = byte(v >> 8)
	b[off+3] = byte(v)
}

// buildTestVolume constructs a minimal ISO-9660 image: a primary volume
// descriptor at sector 16 rooting a directory record at sector 18
// (holding one HELLO.TXT file record pointing at sector 19), and a
// set-terminator descriptor at sector 17.
func buildTestVolume(t *testing.T) []byte {
	const (
		sectorSize   = SectorSize
		pvdSector    = 16
		termSector   = 17
		rootSector   = 18
		fileSector   = 19
		totalSectors = 20
	)

	img := make([]byte, totalSectors*sectorSize)

	pvd := img[pvdSector*sectorSize : (pvdSector+1)*sectorSize]
	pvd[0] = DescPrimaryVolume
	copy(pvd[1:6], "CD001")
	copy(pvd[40:72], "TESTVOL")
	for i := 47; i < 72; i++ {
		pvd[i] = ' '
	}
	putBothEndian32(pvd, 80, totalSectors) // volume space size
	putBothEndian16(pvd, 128, sectorSize)  // logical block size

	// Root directory record at offset 156, length 34 (no name bytes beyond the single 0x00 identifier).
	root := pvd[156:190]
	root[0] = 34 // length
	putBothEndian32(root, 2, rootSector)
	putBothEndian32(root, 10, sectorSize) // data length: one sector
	root[25] = FlagDirectory
	root[32] = 1 // identifier length
	root[33] = 0x00

	term := img[termSector*sectorSize : (termSector+1)*sectorSize]
	term[0] = DescSetTerminator
	copy(term[1:6], "CD001")

	dir := img[rootSector*sectorSize : (rootSector+1)*sectorSize]
	name := "HELLO.TXT;1"
	recLen := 33 + len(name)
	if recLen%2 != 0 {
		recLen++
	}
	dir[0] = byte(recLen)
	putBothEndian32(dir, 2, fileSector)
	putBothEndian32(dir, 10, 5) // file size
	dir[25] = 0                 // not a directory
	dir[32] = byte(len(name))
	copy(dir[33:33+len(name)], name)

	data := img[fileSector*sectorSize : (fileSector+1)*sectorSize]
	copy(data, "hello")

	return img
}

func TestParseAndRoot(t *testing.T) {
	img := buildTestVolume(t)
	terr, err := Parse(newMemStream(img))
	require.NoError(t, err)
	assert.Equal(t, "ISO-9660", terr.Identify())

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
