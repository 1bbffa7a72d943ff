// Package gpt decodes the GUID Partition Table: the primary header (with
// CRC32-validated integrity), the partition-entry array (CRC32-validated
// as a whole), and per-entry GUID typing and UTF-16LE name decoding.
package gpt

import (
	"hash/crc32"
	"io"

	"github.com/forensiccore/diskvault/internal/coreerr"
	"github.com/forensiccore/diskvault/internal/model"
	"github.com/forensiccore/diskvault/internal/security"
	"github.com/forensiccore/diskvault/internal/stream"
	"github.com/forensiccore/diskvault/internal/stream/bread"
	"golang.org/x/text/encoding/unicode"
)

const (
	headerSignature = "EFI PART"
	headerCRCOffset = 16
	entrySize       = 128
)

// Header is the decoded GPT primary header.
type Header struct {
	Revision              uint32
	HeaderSize            uint32
	HeaderCRC32           uint32
	CurrentLBA            uint64
	BackupLBA             uint64
	FirstUsableLBA        uint64
	LastUsableLBA         uint64
	DiskGUID              [16]byte
	PartitionEntriesLBA   uint64
	NumPartitionEntries   uint32
	PartitionEntrySize    uint32
	PartitionEntriesCRC32 uint32
}

// Table is a parsed GPT: the header plus its non-empty partition entries
// projected as Zones.
type Table struct {
	header Header
	zones  []model.Zone
}

// Parse reads the GPT header at LBA 1 of s and the partition-entry array
// it names, validating both CRC32s before returning any zones. A CRC
// mismatch fails with IntegrityFailure and no zones are returned,
// matching the "no partial results" failure semantics shared across the
// stack.
func Parse(s stream.Stream, sectorSize uint32) (*Table, error) {
	if _, err := s.Seek(int64(sectorSize), io.SeekStart); err != nil {
		return nil, err
	}
	headerBytes, err := stream.ReadAll(s, int(sectorSize))
	if err != nil {
		return nil, coreerr.Truncatedf("gpt: reading header sector: %v", err)
	}

	if len(headerBytes) < 8 || string(headerBytes[0:8]) != headerSignature {
		return nil, coreerr.InvalidFormatf("gpt: bad header signature")
	}

	hdr, err := decodeHeader(headerBytes)
	if err != nil {
		return nil, err
	}

	checkBuf := make([]byte, hdr.HeaderSize)
	copy(checkBuf, headerBytes[:hdr.HeaderSize])
	checkBuf[headerCRCOffset] = 0
	checkBuf[headerCRCOffset+1] = 0
	checkBuf[headerCRCOffset+2] = 0
	checkBuf[headerCRCOffset+3] = 0
	if crc32.ChecksumIEEE(checkBuf) != hdr.HeaderCRC32 {
		return nil, coreerr.IntegrityFailuref("gpt_header_crc32: mismatch")
	}

	entriesSize, err := security.CheckedMulU64(uint64(hdr.NumPartitionEntries), uint64(hdr.PartitionEntrySize))
	if err != nil {
		return nil, err
	}
	n, err := security.ValidateAllocation(entriesSize, security.MaxAllocation, "gpt partition entries array")
	if err != nil {
		return nil, err
	}

	entriesOffset, err := security.CheckedMulU64(hdr.PartitionEntriesLBA, uint64(sectorSize))
	if err != nil {
		return nil, err
	}
	if _, err := s.Seek(int64(entriesOffset), io.SeekStart); err != nil {
		return nil, err
	}
	entriesBytes, err := stream.ReadAll(s, n)
	if err != nil {
		return nil, coreerr.Truncatedf("gpt: reading partition entries: %v", err)
	}

	if crc32.ChecksumIEEE(entriesBytes) != hdr.PartitionEntriesCRC32 {
		return nil, coreerr.IntegrityFailuref("gpt_entry_array_crc32: mismatch")
	}

	var zones []model.Zone
	for i := 0; i < int(hdr.NumPartitionEntries); i++ {
		base := i * int(hdr.PartitionEntrySize)
		if base+entrySize > len(entriesBytes) {
			break
		}
		entry := entriesBytes[base : base+entrySize]

		var typeGUID TypeGUID
		copy(typeGUID[:], entry[0:16])
		if typeGUID == TypeUnused {
			continue
		}

		firstLBA, err := bread.LE64(entry, 32)
		if err != nil {
			return nil, err
		}
		lastLBA, err := bread.LE64(entry, 40)
		if err != nil {
			return nil, err
		}
		if lastLBA < firstLBA {
			return nil, coreerr.InvalidFormatf("gpt: entry %d has last_lba < first_lba", i)
		}

		offset, err := security.CheckedMulU64(firstLBA, uint64(sectorSize))
		if err != nil {
			return nil, err
		}
		sectorCount, err := security.CheckedAddU64(lastLBA-firstLBA, 1)
		if err != nil {
			return nil, err
		}
		length, err := security.CheckedMulU64(sectorCount, uint64(sectorSize))
		if err != nil {
			return nil, err
		}

		name, err := DecodeName(entry[56:128])
		if err != nil {
			name = ""
		}

		zones = append(zones, model.Zone{
			Index:         i,
			Offset:        offset,
			Length:        length,
			ZoneType:      typeGUID.Name(),
			TerritoryHint: typeGUID.TerritoryHint(),
			Name:          name,
		})
		if len(zones) > security.MaxPartitionCount {
			return nil, coreerr.LimitExceededf("gpt: partition count exceeds %d", security.MaxPartitionCount)
		}
	}

	return &Table{header: hdr, zones: zones}, nil
}

func decodeHeader(b []byte) (Header, error) {
	var h Header
	var err error
	if h.Revision, err = bread.LE32(b, 8); err != nil {
		return h, err
	}
	if h.HeaderSize, err = bread.LE32(b, 12); err != nil {
		return h, err
	}
	if h.HeaderCRC32, err = bread.LE32(b, 16); err != nil {
		return h, err
	}
	if h.CurrentLBA, err = bread.LE64(b, 24); err != nil {
		return h, err
	}
	if h.BackupLBA, err = bread.LE64(b, 32); err != nil {
		return h, err
	}
	if h.FirstUsableLBA, err = bread.LE64(b, 40); err != nil {
		return h, err
	}
	if h.LastUsableLBA, err = bread.LE64(b, 48); err != nil {
		return h, err
	}
	copy(h.DiskGUID[:], b[56:72])
	if h.PartitionEntriesLBA, err = bread.LE64(b, 72); err != nil {
		return h, err
	}
	if h.NumPartitionEntries, err = bread.LE32(b, 80); err != nil {
		return h, err
	}
	if h.PartitionEntrySize, err = bread.LE32(b, 84); err != nil {
		return h, err
	}
	if h.PartitionEntriesCRC32, err = bread.LE32(b, 88); err != nil {
		return h, err
	}
	if h.HeaderSize < 92 || int(h.HeaderSize) > len(b) {
		return h, coreerr.InvalidFormatf("gpt: implausible header size %d", h.HeaderSize)
	}
	return h, nil
}

// DecodeName decodes a GPT partition-entry name: 72 bytes of UTF-16LE,
// truncated at the first NUL code unit.
func DecodeName(raw []byte) (string, error) {
	end := len(raw)
	for i := 0; i+1 < len(raw); i += 2 {
		if raw[i] == 0 && raw[i+1] == 0 {
			end = i
			break
		}
	}
	decoder := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()
	out, err := decoder.Bytes(raw[:end])
	if err != nil {
		return "", coreerr.InvalidFormatf("gpt: partition name decode: %v", err)
	}
	return string(out), nil
}

func (t *Table) Identify() string { return "GPT" }

func (t *Table) Zones() []model.Zone { return t.zones }

// Header returns the parsed GPT header.
func (t *Table) Header() Header { return t.header }
