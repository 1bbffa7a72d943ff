package vhd

import (
	"encoding/binary"

	"github.com/forensiccore/diskvault/internal/coreerr"
)

// DiskType identifies which VHD data-layout pipeline applies.
type DiskType uint32

const (
	DiskTypeFixed        DiskType = 2
	DiskTypeDynamic      DiskType = 3
	DiskTypeDifferencing DiskType = 4
)

func (t DiskType) String() string {
	switch t {
	case DiskTypeFixed:
		return "VHD Fixed"
	case DiskTypeDynamic:
		return "VHD Dynamic"
	case DiskTypeDifferencing:
		return "VHD Differencing"
	default:
		return "VHD Unknown"
	}
}

const footerSize = 512

// Footer is the 512-byte VHD footer, big-endian on disk, mirrored at the
// start of the file for Fixed disks and always present at length-512.
type Footer struct {
	Cookie          [8]byte
	Features        uint32
	FileFormatVer   uint32
	DataOffset      uint64
	Timestamp       uint32
	CreatorApp      [4]byte
	CreatorVersion  uint32
	CreatorHostOS   uint32
	OriginalSize    uint64
	CurrentSize     uint64
	DiskGeometry    uint32
	DiskType        DiskType
	Checksum        uint32
	UniqueID        [16]byte
	SavedState      byte
}

// ParseFooter decodes a 512-byte footer and verifies its cookie and
// one's-complement checksum (computed with the checksum field zeroed).
func ParseFooter(raw []byte) (*Footer, error) {
	if len(raw) < footerSize {
		return nil, coreerr.Truncatedf("vhd footer: need %d bytes, have %d", footerSize, len(raw))
	}
	var f Footer
	copy(f.Cookie[:], raw[0:8])
	if string(f.Cookie[:]) != "conectix" {
		return nil, coreerr.InvalidFormatf("vhd footer: bad cookie %q", f.Cookie)
	}
	f.Features = binary.BigEndian.Uint32(raw[8:12])
	f.FileFormatVer = binary.BigEndian.Uint32(raw[12:16])
	f.DataOffset = binary.BigEndian.Uint64(raw[16:24])
	f.Timestamp = binary.BigEndian.Uint32(raw[24:28])
	copy(f.CreatorApp[:], raw[28:32])
	f.CreatorVersion = binary.BigEndian.Uint32(raw[32:36])
	f.CreatorHostOS = binary.BigEndian.Uint32(raw[36:40])
	f.OriginalSize = binary.BigEndian.Uint64(raw[40:48])
	f.CurrentSize = binary.BigEndian.Uint64(raw[48:56])
	f.DiskGeometry = binary.BigEndian.Uint32(raw[56:60])
	f.DiskType = DiskType(binary.BigEndian.Uint32(raw[60:64]))
	f.Checksum = binary.BigEndian.Uint32(raw[64:68])
	copy(f.UniqueID[:], raw[68:84])
	f.SavedState = raw[84]

	checked := make([]byte, footerSize)
	copy(checked, raw[:footerSize])
	checked[64], checked[65], checked[66], checked[67] = 0, 0, 0, 0
	if onesComplementChecksum(checked) != f.Checksum {
		return nil, coreerr.IntegrityFailuref("vhd footer checksum mismatch")
	}

	return &f, nil
}

func onesComplementChecksum(b []byte) uint32 {
	var sum uint32
	for _, c := range b {
		sum += uint32(c)
	}
	return ^sum
}

const dynamicHeaderSize = 1024

// DynamicHeader is the 1024-byte "cxsparse" header preceding the Block
// Allocation Table for Dynamic and Differencing disks.
type DynamicHeader struct {
	Cookie              [8]byte
	DataOffset          uint64
	TableOffset         uint64
	HeaderVersion       uint32
	MaxTableEntries     uint32
	BlockSize           uint32
	Checksum            uint32
	ParentUniqueID      [16]byte
	ParentTimestamp     uint32
	ParentUnicodeName   [512]byte
	ParentLocators      [8]ParentLocatorEntry
}

// ParentLocatorEntry names one candidate location for a differencing
// disk's parent.
type ParentLocatorEntry struct {
	PlatformCode        [4]byte
	PlatformDataSpace   uint32
	PlatformDataLength  uint32
	PlatformDataOffset  uint64
}

// IsValid reports whether the entry names a usable location.
func (p ParentLocatorEntry) IsValid() bool {
	return p.PlatformDataLength > 0 && string(p.PlatformCode[:]) != "\x00\x00\x00\x00"
}

// ParseDynamicHeader decodes a 1024-byte dynamic header and verifies its
// cookie and checksum.
func ParseDynamicHeader(raw []byte) (*DynamicHeader, error) {
	if len(raw) < dynamicHeaderSize {
		return nil, coreerr.Truncatedf("vhd dynamic header: need %d bytes, have %d", dynamicHeaderSize, len(raw))
	}
	var h DynamicHeader
	copy(h.Cookie[:], raw[0:8])
	if string(h.Cookie[:]) != "cxsparse" {
		return nil, coreerr.InvalidFormatf("vhd dynamic header: bad cookie %q", h.Cookie)
	}
	h.DataOffset = binary.BigEndian.Uint64(raw[8:16])
	h.TableOffset = binary.BigEndian.Uint64(raw[16:24])
	h.HeaderVersion = binary.BigEndian.Uint32(raw[24:28])
	h.MaxTableEntries = binary.BigEndian.Uint32(raw[28:32])
	h.BlockSize = binary.BigEndian.Uint32(raw[32:36])
	h.Checksum = binary.BigEndian.Uint32(raw[36:40])
	copy(h.ParentUniqueID[:], raw[40:56])
	h.ParentTimestamp = binary.BigEndian.Uint32(raw[56:60])
	copy(h.ParentUnicodeName[:], raw[64:576])

	for i := 0; i < 8; i++ {
		base := 576 + i*24
		var e ParentLocatorEntry
		copy(e.PlatformCode[:], raw[base:base+4])
		e.PlatformDataSpace = binary.BigEndian.Uint32(raw[base+4 : base+8])
		e.PlatformDataLength = binary.BigEndian.Uint32(raw[base+8 : base+12])
		e.PlatformDataOffset = binary.BigEndian.Uint64(raw[base+16 : base+24])
		h.ParentLocators[i] = e
	}

	checked := make([]byte, dynamicHeaderSize)
	copy(checked, raw[:dynamicHeaderSize])
	checked[36], checked[37], checked[38], checked[39] = 0, 0, 0, 0
	if onesComplementChecksum(checked) != h.Checksum {
		return nil, coreerr.IntegrityFailuref("vhd dynamic header checksum mismatch")
	}

	return &h, nil
}

// ParentName decodes the UTF-16BE parent unicode name, stopping at the
// first NUL code unit.
func (h *DynamicHeader) ParentName() string {
	var runes []rune
	for i := 0; i+1 < len(h.ParentUnicodeName); i += 2 {
		unit := uint16(h.ParentUnicodeName[i])<<8 | uint16(h.ParentUnicodeName[i+1])
		if unit == 0 {
			break
		}
		runes = append(runes, rune(unit))
	}
	return string(runes)
}
