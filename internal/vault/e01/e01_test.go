package e01

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

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

func putLE64(b []byte, off int, v uint64) {
	for i := 0; i < 8; i++ {
		b[off+i] = byte(v >> (8 * i))
	}
}

func putSectionType(b []byte, off int, name string) {
	copy(b[off:off+16], name)
}

// section appends a descriptor+payload pair to buf and returns buf.
func section(buf []byte, name string, payload []byte) []byte {
	start := len(buf)
	total := sectionDescriptorSize + len(payload)
	desc := make([]byte, sectionDescriptorSize)
	putSectionType(desc, 0, name)
	putLE64(desc, 24, uint64(total))
	buf = append(buf, desc...)
	buf = append(buf, payload...)
	// Patch NextOffset now that we know where the next section starts.
	putLE64(buf[start+16:], 0, uint64(start+total))
	return buf
}

func fileHeader() []byte {
	h := make([]byte, fileHeaderSize)
	copy(h[0:8], EVFSignature[:])
	putLE16(h, 11, 13) // FieldsStart: sections begin right after the header
	return h
}

func volumePayload(chunkCount, sectorsPerChunk, bytesPerSector uint32, sectorCount uint64) []byte {
	p := make([]byte, 94)
	p[0] = 1 // MediaFixed
	putLE32(p, 4, chunkCount)
	putLE32(p, 8, sectorsPerChunk)
	putLE32(p, 12, bytesPerSector)
	putLE64(p, 16, sectorCount)
	p[88] = 1
	return p
}

// chunkTableEntry packs one table entry: high bit set means "not
// compressed" (isCompressed := base&0x80000000 == 0), offset 0 (relative
// to the enclosing sectors section, rebased by the caller's
// post-processing pass).
func chunkTableEntry() []byte {
	e := make([]byte, 4)
	putLE32(e, 0, 0x80000000)
	return e
}

// buildSegment1 builds a .E01 carrying the volume section, one 512-byte
// uncompressed chunk of 'A', its chunk table, and a "next" terminal.
func buildSegment1(t *testing.T) []byte {
	buf := fileHeader()
	buf = section(buf, "volume", volumePayload(2, 1, 512, 2))
	buf = section(buf, "sectors", bytes.Repeat([]byte("A"), 512))
	buf = section(buf, "table", chunkTableEntry())
	buf = section(buf, "next", nil)
	return buf
}

// buildSegment2 builds a .E02 carrying the second 512-byte chunk of 'B'
// and a "done" terminal; no volume section, matching EWF convention.
func buildSegment2(t *testing.T) []byte {
	buf := fileHeader()
	buf = section(buf, "sectors", bytes.Repeat([]byte("B"), 512))
	buf = section(buf, "table", chunkTableEntry())
	buf = section(buf, "done", nil)
	return buf
}

func TestOpen_FollowsMultiSegmentChain(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "image.E01"), buildSegment1(t), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "image.E02"), buildSegment2(t), 0o644))

	v, err := Open(filepath.Join(dir, "image.E01"))
	require.NoError(t, err)
	defer v.Close()

	assert.Equal(t, "E01", v.Identify())
	assert.Equal(t, uint64(1024), v.Length())

	s, err := v.Stream()
	require.NoError(t, err)
	data, err := io.ReadAll(s)
	require.NoError(t, err)
	require.Len(t, data, 1024)
	assert.Equal(t, bytes.Repeat([]byte("A"), 512), data[:512])
	assert.Equal(t, bytes.Repeat([]byte("B"), 512), data[512:])
}

func TestOpen_SingleSegmentNoChain(t *testing.T) {
	dir := t.TempDir()
	buf := fileHeader()
	buf = section(buf, "volume", volumePayload(1, 1, 512, 1))
	buf = section(buf, "sectors", bytes.Repeat([]byte("Z"), 512))
	buf = section(buf, "table", chunkTableEntry())
	buf = section(buf, "done", nil)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "single.E01"), buf, 0o644))

	v, err := Open(filepath.Join(dir, "single.E01"))
	require.NoError(t, err)
	defer v.Close()

	assert.Equal(t, uint64(512), v.Length())
	_, ok := v.MD5Hex()
	assert.False(t, ok)
}

func TestNextSegmentPath(t *testing.T) {
	next, ok := nextSegmentPath("/tmp/image.E01", 1)
	require.True(t, ok)
	assert.Equal(t, "/tmp/image.E02", next)

	_, ok = nextSegmentPath("/tmp/image.raw", 1)
	assert.False(t, ok)
}
