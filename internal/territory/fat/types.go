// Package fat implements the Territory contract for FAT12/16/32
// filesystems: BIOS Parameter Block validation, cluster-chain traversal,
// and short/long directory entry decoding.
package fat

import (
	"github.com/forensiccore/diskvault/internal/coreerr"
	"github.com/forensiccore/diskvault/internal/security"
	"github.com/forensiccore/diskvault/internal/stream/bread"
)

// FatType identifies which of the three FAT variants a volume uses,
// determined from its data-cluster count rather than any on-disk tag.
type FatType int

const (
	FAT12 FatType = iota
	FAT16
	FAT32
)

func (t FatType) String() string {
	switch t {
	case FAT12:
		return "FAT12"
	case FAT16:
		return "FAT16"
	case FAT32:
		return "FAT32"
	default:
		return "unknown"
	}
}

// BiosParameterBlock is the subset of BPB fields (common plus the FAT32
// extension) needed to locate the FAT table, root directory, and data
// region.
type BiosParameterBlock struct {
	BytesPerSector   uint16
	SectorsPerCluster uint8
	ReservedSectors  uint16
	NumFATs          uint8
	RootEntries      uint16
	TotalSectors16   uint16
	SectorsPerFAT16  uint16
	TotalSectors32   uint32
	SectorsPerFAT32  uint32
	FAT32RootCluster uint32
	Type             FatType
}

// ParseBPB decodes and validates a 512-byte boot sector's BPB fields,
// classifying the volume as FAT12/16/32 by cluster count exactly as
// the FAT specification requires (there is no reliable on-disk tag).
func ParseBPB(sector []byte) (*BiosParameterBlock, error) {
	if len(sector) < 512 {
		return nil, coreerr.Truncatedf("fat: boot sector too short: %d bytes", len(sector))
	}

	bps, err := bread.LE16(sector, 11)
	if err != nil {
		return nil, err
	}
	spc := sector[13]
	reserved, err := bread.LE16(sector, 14)
	if err != nil {
		return nil, err
	}
	numFATs := sector[16]
	rootEntries, err := bread.LE16(sector, 17)
	if err != nil {
		return nil, err
	}
	totalSectors16, err := bread.LE16(sector, 19)
	if err != nil {
		return nil, err
	}
	sectorsPerFAT16, err := bread.LE16(sector, 22)
	if err != nil {
		return nil, err
	}
	totalSectors32, err := bread.LE32(sector, 32)
	if err != nil {
		return nil, err
	}

	if spc == 0 {
		return nil, coreerr.InvalidFormatf("fat: sectors_per_cluster is 0")
	}
	if bps == 0 {
		return nil, coreerr.InvalidFormatf("fat: bytes_per_sector is 0")
	}

	var sectorsPerFAT32 uint32
	var fat32RootCluster uint32
	sectorsPerFAT := uint32(sectorsPerFAT16)
	if sectorsPerFAT16 == 0 {
		sectorsPerFAT32, err = bread.LE32(sector, 36)
		if err != nil {
			return nil, err
		}
		sectorsPerFAT = sectorsPerFAT32
		fat32RootCluster, err = bread.LE32(sector, 44)
		if err != nil {
			return nil, err
		}
	}

	totalSectors := uint64(totalSectors16)
	if totalSectors == 0 {
		totalSectors = uint64(totalSectors32)
	}

	rootEntriesBytes, err := security.CheckedMulU64(uint64(rootEntries), 32)
	if err != nil {
		return nil, err
	}
	rootDirSectors := uint32((rootEntriesBytes + uint64(bps) - 1) / uint64(bps))

	fatSize, err := security.CheckedMulU64(uint64(numFATs), uint64(sectorsPerFAT))
	if err != nil {
		return nil, err
	}

	nonDataSectors, err := security.CheckedAddU64(uint64(reserved), fatSize)
	if err != nil {
		return nil, err
	}
	nonDataSectors, err = security.CheckedAddU64(nonDataSectors, uint64(rootDirSectors))
	if err != nil {
		return nil, err
	}

	dataSectors, err := security.CheckedSubU64(totalSectors, nonDataSectors)
	if err != nil {
		return nil, coreerr.InvalidFormatf("fat: data sectors underflow (total=%d non_data=%d)", totalSectors, nonDataSectors)
	}

	clusterCount := uint32(dataSectors) / uint32(spc)

	var fatType FatType
	switch {
	case clusterCount < 4085:
		fatType = FAT12
	case clusterCount < 65525:
		fatType = FAT16
	default:
		fatType = FAT32
	}

	return &BiosParameterBlock{
		BytesPerSector:    bps,
		SectorsPerCluster: spc,
		ReservedSectors:   reserved,
		NumFATs:           numFATs,
		RootEntries:       rootEntries,
		TotalSectors16:    totalSectors16,
		SectorsPerFAT16:   sectorsPerFAT16,
		TotalSectors32:    totalSectors32,
		SectorsPerFAT32:   sectorsPerFAT32,
		FAT32RootCluster:  fat32RootCluster,
		Type:              fatType,
	}, nil
}

func (b *BiosParameterBlock) TotalSectors() uint32 {
	if b.TotalSectors16 != 0 {
		return uint32(b.TotalSectors16)
	}
	return b.TotalSectors32
}

func (b *BiosParameterBlock) SectorsPerFAT() uint32 {
	if b.SectorsPerFAT16 != 0 {
		return uint32(b.SectorsPerFAT16)
	}
	return b.SectorsPerFAT32
}

// FATOffset returns the byte offset of the first FAT copy.
func (b *BiosParameterBlock) FATOffset() (uint64, error) {
	return security.CheckedMulU64(uint64(b.ReservedSectors), uint64(b.BytesPerSector))
}

// RootDirOffset returns the byte offset of the root directory region
// (meaningful for FAT12/16 only; FAT32's root lives in the data region).
func (b *BiosParameterBlock) RootDirOffset() (uint64, error) {
	fatSize, err := security.CheckedMulU64(uint64(b.SectorsPerFAT()), uint64(b.BytesPerSector))
	if err != nil {
		return 0, err
	}
	totalFATSize, err := security.CheckedMulU64(uint64(b.NumFATs), fatSize)
	if err != nil {
		return 0, err
	}
	fatOffset, err := b.FATOffset()
	if err != nil {
		return 0, err
	}
	return security.CheckedAddU64(fatOffset, totalFATSize)
}

// DataOffset returns the byte offset of the data region (cluster 2).
func (b *BiosParameterBlock) DataOffset() (uint64, error) {
	rootEntriesBytes, err := security.CheckedMulU64(uint64(b.RootEntries), 32)
	if err != nil {
		return 0, err
	}
	rootDirSectors := uint64((rootEntriesBytes + uint64(b.BytesPerSector) - 1) / uint64(b.BytesPerSector))
	rootDirSize, err := security.CheckedMulU64(rootDirSectors, uint64(b.BytesPerSector))
	if err != nil {
		return 0, err
	}
	rootOffset, err := b.RootDirOffset()
	if err != nil {
		return 0, err
	}
	return security.CheckedAddU64(rootOffset, rootDirSize)
}

// BytesPerCluster returns the allocation unit size in bytes.
func (b *BiosParameterBlock) BytesPerCluster() (uint64, error) {
	return security.CheckedMulU64(uint64(b.SectorsPerCluster), uint64(b.BytesPerSector))
}

const (
	AttrReadOnly  = 0x01
	AttrHidden    = 0x02
	AttrSystem    = 0x04
	AttrVolumeID  = 0x08
	AttrDirectory = 0x10
	AttrArchive   = 0x20
	AttrLongName  = 0x0F
)

const DirEntrySize = 32

// DirectoryEntry is a decoded short (8.3) directory entry, optionally
// carrying a reassembled long filename.
type DirectoryEntry struct {
	ShortName string
	LongName  string
	Attributes uint8
	CreateTime uint16
	CreateDate uint16
	AccessDate uint16
	ModifyTime uint16
	ModifyDate uint16
	FirstClusterHigh uint16
	FirstClusterLow  uint16
	FileSize uint32
}

// Name returns the long filename if one was assembled, else the short name.
func (e *DirectoryEntry) Name() string {
	if e.LongName != "" {
		return e.LongName
	}
	return e.ShortName
}

func (e *DirectoryEntry) IsDirectory() bool  { return e.Attributes&AttrDirectory != 0 }
func (e *DirectoryEntry) IsVolumeLabel() bool { return e.Attributes&AttrVolumeID != 0 }
func (e *DirectoryEntry) IsLongName() bool   { return e.Attributes == AttrLongName }

func (e *DirectoryEntry) FirstCluster() uint32 {
	return uint32(e.FirstClusterHigh)<<16 | uint32(e.FirstClusterLow)
}

// IsEndOfDirectory reports whether raw is the terminal (all-zero name byte) marker.
func IsEndOfDirectory(raw []byte) bool { return len(raw) > 0 && raw[0] == 0x00 }

// IsDeletedEntry reports whether raw carries the 0xE5 deleted marker.
func IsDeletedEntry(raw []byte) bool { return len(raw) > 0 && raw[0] == 0xE5 }

// IsLongNameEntry reports whether raw's attribute byte marks an LFN fragment.
func IsLongNameEntry(raw []byte) bool { return len(raw) > 11 && raw[11] == AttrLongName }

// ParseDirectoryEntry decodes one 32-byte short directory entry.
func ParseDirectoryEntry(raw []byte) (*DirectoryEntry, error) {
	if len(raw) < DirEntrySize {
		return nil, coreerr.Truncatedf("fat: directory entry too short: %d bytes", len(raw))
	}
	createTime, _ := bread.LE16(raw, 14)
	createDate, _ := bread.LE16(raw, 16)
	accessDate, _ := bread.LE16(raw, 18)
	firstClusterHigh, _ := bread.LE16(raw, 20)
	modifyTime, _ := bread.LE16(raw, 22)
	modifyDate, _ := bread.LE16(raw, 24)
	firstClusterLow, _ := bread.LE16(raw, 26)
	fileSize, _ := bread.LE32(raw, 28)

	return &DirectoryEntry{
		ShortName:        parseShortName(raw[0:11]),
		Attributes:       raw[11],
		CreateTime:       createTime,
		CreateDate:       createDate,
		AccessDate:       accessDate,
		FirstClusterHigh: firstClusterHigh,
		ModifyTime:       modifyTime,
		ModifyDate:       modifyDate,
		FirstClusterLow:  firstClusterLow,
		FileSize:         fileSize,
	}, nil
}

func parseShortName(raw []byte) string {
	name := trimTrailingSpaces(raw[0:8])
	ext := trimTrailingSpaces(raw[8:11])
	if ext == "" {
		return name
	}
	return name + "." + ext
}

func trimTrailingSpaces(raw []byte) string {
	end := len(raw)
	for end > 0 && raw[end-1] == ' ' {
		end--
	}
	return string(raw[:end])
}

// LFNFragment is one decoded long-filename directory-entry fragment,
// carrying its ordinal (bit 6 of the sequence number marks the fragment
// with the highest ordinal, which holds the end of the name and is stored
// first on disk).
type LFNFragment struct {
	Sequence uint8
	Chars    []uint16 // UTF-16 code units from name1/name2/name3, NUL/0xFFFF-terminated
}

const lfnLastEntryFlag = 0x40

// ParseLFNFragment decodes one 32-byte long-filename entry into its raw
// UTF-16 code units, without yet decoding surrogate pairs or trimming
// padding — that happens once fragments are reassembled in sequence order.
func ParseLFNFragment(raw []byte) (*LFNFragment, error) {
	if len(raw) < DirEntrySize {
		return nil, coreerr.Truncatedf("fat: lfn entry too short: %d bytes", len(raw))
	}
	var chars []uint16
	for _, off := range []int{1, 3, 5, 7, 9, 14, 16, 18, 20, 22, 24, 28, 30} {
		v, err := bread.LE16(raw, off)
		if err != nil {
			return nil, err
		}
		chars = append(chars, v)
	}
	return &LFNFragment{Sequence: raw[0], Chars: chars}, nil
}

// IsLast reports whether this fragment is the highest-ordinal one (the
// end of the name), which conventionally appears first on disk.
func (f *LFNFragment) IsLast() bool { return f.Sequence&lfnLastEntryFlag != 0 }

// Ordinal returns the 1-based fragment position within the name.
func (f *LFNFragment) Ordinal() uint8 { return f.Sequence &^ lfnLastEntryFlag }
