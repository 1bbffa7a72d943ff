package gpt

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
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

const sectorSize = 512

// buildTestGPT assembles a minimal disk image with a valid GPT header at
// LBA 1 and a partition-entry array at LBA 2 holding one Microsoft Basic
// Data entry, both CRC-stamped.
func buildTestGPT(corruptHeaderCRC bool) []byte {
	const numEntries = 128
	entrySize := 128
	entriesLBA := uint64(2)
	entriesBytes := make([]byte, numEntries*entrySize)

	copy(entriesBytes[0:16], TypeMicrosoftBasicData[:])
	binary.LittleEndian.PutUint64(entriesBytes[32:40], 2048) // first_lba
	binary.LittleEndian.PutUint64(entriesBytes[40:48], 4095) // last_lba
	entriesCRC := crc32.ChecksumIEEE(entriesBytes)

	header := make([]byte, sectorSize)
	copy(header[0:8], headerSignature)
	binary.LittleEndian.PutUint32(header[8:12], 0x00010000)
	binary.LittleEndian.PutUint32(header[12:16], 92)
	binary.LittleEndian.PutUint64(header[24:32], 1) // current_lba
	binary.LittleEndian.PutUint64(header[72:80], entriesLBA)
	binary.LittleEndian.PutUint32(header[80:84], uint32(numEntries))
	binary.LittleEndian.PutUint32(header[84:88], uint32(entrySize))
	binary.LittleEndian.PutUint32(header[88:92], entriesCRC)

	headerCRC := crc32.ChecksumIEEE(header[:92])
	if corruptHeaderCRC {
		headerCRC ^= 0xFFFFFFFF
	}
	binary.LittleEndian.PutUint32(header[16:20], headerCRC)

	disk := make([]byte, int(entriesLBA+uint64(len(entriesBytes))/sectorSize+64)*sectorSize)
	copy(disk[sectorSize:], header)
	copy(disk[entriesLBA*sectorSize:], entriesBytes)
	return disk
}

func TestParseValidGPT(t *testing.T) {
	disk := buildTestGPT(false)
	table, err := Parse(newMemStream(disk), sectorSize)
	require.NoError(t, err)
	assert.Equal(t, "GPT", table.Identify())
	require.Len(t, table.Zones(), 1)
	assert.Equal(t, uint64(2048*sectorSize), table.Zones()[0].Offset)
	assert.Equal(t, "Microsoft Basic Data", table.Zones()[0].ZoneType)
}

func TestParseCorruptHeaderCRC(t *testing.T) {
	disk := buildTestGPT(true)
	_, err := Parse(newMemStream(disk), sectorSize)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "gpt_header_crc32")
}

func TestDecodeNameTruncatesAtNul(t *testing.T) {
	raw := make([]byte, 72)
	copy(raw, []byte{'E', 0, 'F', 0, 'I', 0, 0, 0})
	name, err := DecodeName(raw)
	require.NoError(t, err)
	assert.Equal(t, "EFI", name)
}
