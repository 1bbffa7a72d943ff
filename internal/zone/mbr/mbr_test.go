package mbr

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

func buildTestMBR() []byte {
	mbr := make([]byte, mbrSize)
	mbr[diskSignatureOffset] = 0x12
	mbr[diskSignatureOffset+1] = 0x34
	mbr[diskSignatureOffset+2] = 0x56
	mbr[diskSignatureOffset+3] = 0x78

	entry := partitionTableOffset
	mbr[entry+4] = byte(TypeFAT32LBA)
	// LBA start: 2048
	mbr[entry+8] = 0x00
	mbr[entry+9] = 0x08
	// LBA length: 2048
	mbr[entry+12] = 0x00
	mbr[entry+13] = 0x08

	mbr[bootSignatureOffset] = 0x55
	mbr[bootSignatureOffset+1] = 0xAA
	return mbr
}

func TestParseValidMBR(t *testing.T) {
	raw := buildTestMBR()
	table, err := Parse(newMemStream(raw), 512)
	require.NoError(t, err)

	assert.Equal(t, "MBR", table.Identify())
	assert.Equal(t, uint32(0x78563412), table.DiskSignature())
	require.Len(t, table.Zones(), 1)
	z := table.Zones()[0]
	assert.Equal(t, uint64(2048*512), z.Offset)
	assert.Equal(t, uint64(2048*512), z.Length)
	assert.Equal(t, "FAT32 (LBA)", z.ZoneType)
}

func TestParseInvalidBootSignature(t *testing.T) {
	raw := buildTestMBR()
	raw[bootSignatureOffset] = 0x00
	_, err := Parse(newMemStream(raw), 512)
	assert.Error(t, err)
}

func TestParseEmptyMBR(t *testing.T) {
	raw := make([]byte, mbrSize)
	raw[bootSignatureOffset] = 0x55
	raw[bootSignatureOffset+1] = 0xAA
	table, err := Parse(newMemStream(raw), 512)
	require.NoError(t, err)
	assert.Empty(t, table.Zones())
}

func TestProtectiveMBRDetection(t *testing.T) {
	raw := make([]byte, mbrSize)
	entry := partitionTableOffset
	raw[entry+4] = byte(TypeGPTProtective)
	raw[entry+8] = 0x01
	raw[entry+12] = 0xFF
	raw[entry+13] = 0xFF
	raw[entry+14] = 0xFF
	raw[entry+15] = 0xFF
	raw[bootSignatureOffset] = 0x55
	raw[bootSignatureOffset+1] = 0xAA

	table, err := Parse(newMemStream(raw), 512)
	require.NoError(t, err)
	assert.True(t, table.IsProtective())
}
