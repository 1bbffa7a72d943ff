// Package mbr decodes the Master Boot Record partition table: the boot
// signature, the four primary partition entries, and protective-MBR
// detection that gates the GPT parser.
package mbr

import (
	"io"

	"github.com/forensiccore/diskvault/internal/coreerr"
	"github.com/forensiccore/diskvault/internal/model"
	"github.com/forensiccore/diskvault/internal/security"
	"github.com/forensiccore/diskvault/internal/stream"
	"github.com/forensiccore/diskvault/internal/stream/bread"
)

const (
	mbrSize               = 512
	partitionTableOffset  = 0x1BE
	diskSignatureOffset   = 0x1B8
	bootSignatureOffset   = 0x1FE
	partitionEntrySize    = 16
	numPartitions         = 4
	bootSignature         = 0xAA55
)

// Table is a parsed MBR partition table.
type Table struct {
	zones          []model.Zone
	diskSignature  uint32
}

// Parse reads the 512-byte MBR from the start of s and decodes its four
// primary partition entries. sectorSize converts LBA fields (sector
// counts) to byte offsets.
func Parse(s stream.Stream, sectorSize uint32) (*Table, error) {
	if _, err := s.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	raw, err := stream.ReadAll(s, mbrSize)
	if err != nil {
		return nil, coreerr.Truncatedf("mbr: reading sector: %v", err)
	}

	sig, err := bread.LE16(raw, bootSignatureOffset)
	if err != nil {
		return nil, err
	}
	if sig != bootSignature {
		return nil, coreerr.InvalidFormatf("mbr: bad boot signature 0x%04X", sig)
	}
	diskSig, err := bread.LE32(raw, diskSignatureOffset)
	if err != nil {
		return nil, err
	}

	var zones []model.Zone
	for i := 0; i < numPartitions; i++ {
		off := partitionTableOffset + i*partitionEntrySize
		entry := raw[off : off+partitionEntrySize]

		typ := PartitionType(entry[4])
		lbaStart, err := bread.LE32(entry, 8)
		if err != nil {
			return nil, err
		}
		lbaLength, err := bread.LE32(entry, 12)
		if err != nil {
			return nil, err
		}
		if typ == TypeEmpty || lbaLength == 0 {
			continue
		}

		offset, err := security.CheckedMulU64(uint64(lbaStart), uint64(sectorSize))
		if err != nil {
			return nil, coreerr.InvalidFormatf("mbr: partition %d offset overflow: %v", i, err)
		}
		length, err := security.CheckedMulU64(uint64(lbaLength), uint64(sectorSize))
		if err != nil {
			return nil, coreerr.InvalidFormatf("mbr: partition %d length overflow: %v", i, err)
		}

		zones = append(zones, model.Zone{
			Index:         i,
			Offset:        offset,
			Length:        length,
			ZoneType:      typ.Name(),
			TerritoryHint: typ.TerritoryHint(),
		})
		if len(zones) > security.MaxPartitionCount {
			return nil, coreerr.LimitExceededf("mbr: partition count exceeds %d", security.MaxPartitionCount)
		}
	}

	return &Table{zones: zones, diskSignature: diskSig}, nil
}

func (t *Table) Identify() string { return "MBR" }

func (t *Table) Zones() []model.Zone { return t.zones }

// DiskSignature returns the 4-byte disk signature recorded at 0x1B8.
func (t *Table) DiskSignature() uint32 { return t.diskSignature }

// IsProtective reports whether this table holds exactly one entry and it
// is a GPT Protective (0xEE) entry — the signal that a GPT header should
// be consulted instead of this table's own entries. The entry's size is
// not compared with the disk length.
func (t *Table) IsProtective() bool {
	count := 0
	for _, z := range t.zones {
		if z.ZoneType == TypeGPTProtective.Name() {
			count++
		}
	}
	return count == 1 && len(t.zones) == 1
}
