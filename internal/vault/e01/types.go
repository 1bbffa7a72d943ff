// Package e01 implements the Vault contract for EnCase E01/EWF images:
// chained section descriptors walked in order, a chunk table built from
// table/table2 sections, and per-chunk zlib decompression.
package e01

import (
	"strings"

	"github.com/forensiccore/diskvault/internal/coreerr"
)

// EVFSignature is the modern EnCase EWF magic.
var EVFSignature = [8]byte{0x45, 0x56, 0x46, 0x09, 0x0D, 0x0A, 0xFF, 0x00}

// EWFSignature is the legacy EnCase 1-6 magic.
var EWFSignature = [8]byte{0x45, 0x56, 0x46, 0x09, 0x0D, 0x0A, 0x00, 0x00}

// SectionType identifies the payload of an E01SectionDescriptor.
type SectionType int

const (
	SectionUnknown SectionType = iota
	SectionHeader
	SectionVolume
	SectionDisk
	SectionSectors
	SectionTable
	SectionTable2
	SectionHash
	SectionDone
	SectionNext
	SectionData
)

// ParseSectionType maps a 16-byte NUL-padded ASCII field to a SectionType.
func ParseSectionType(raw [16]byte) SectionType {
	s := strings.TrimRight(string(raw[:]), "\x00")
	switch s {
	case "header", "header2":
		return SectionHeader
	case "volume":
		return SectionVolume
	case "disk":
		return SectionDisk
	case "sectors":
		return SectionSectors
	case "table":
		return SectionTable
	case "table2":
		return SectionTable2
	case "hash":
		return SectionHash
	case "done":
		return SectionDone
	case "next":
		return SectionNext
	case "data":
		return SectionData
	default:
		return SectionUnknown
	}
}

const fileHeaderSize = 13

// FileHeader is the 13-byte E01/EWF file header.
type FileHeader struct {
	Signature     [8]byte
	SegmentNumber uint16
	FieldsStart   uint16
}

// ParseFileHeader decodes the 13-byte file header.
func ParseFileHeader(data []byte) (*FileHeader, error) {
	if len(data) < fileHeaderSize {
		return nil, coreerr.Truncatedf("e01 file header too short")
	}
	var h FileHeader
	copy(h.Signature[:], data[0:8])
	if h.Signature != EVFSignature && h.Signature != EWFSignature {
		if string(h.Signature[0:3]) != "EVF" {
			return nil, coreerr.InvalidFormatf("e01: invalid signature")
		}
	}
	h.SegmentNumber = leU16(data[9:11])
	h.FieldsStart = leU16(data[11:13])
	return &h, nil
}

const sectionDescriptorSize = 76

// SectionDescriptor chains E01 sections together via NextOffset.
type SectionDescriptor struct {
	Type        SectionType
	NextOffset  uint64
	SectionSize uint64
}

// ParseSectionDescriptor decodes a 76-byte section descriptor.
func ParseSectionDescriptor(data []byte) (*SectionDescriptor, error) {
	if len(data) < sectionDescriptorSize {
		return nil, coreerr.Truncatedf("e01 section descriptor too short")
	}
	var typeBytes [16]byte
	copy(typeBytes[:], data[0:16])
	return &SectionDescriptor{
		Type:        ParseSectionType(typeBytes),
		NextOffset:  leU64(data[16:24]),
		SectionSize: leU64(data[24:32]),
	}, nil
}

// VolumeSection carries media geometry and the chunk compression method.
type VolumeSection struct {
	MediaType       byte
	ChunkCount      uint32
	SectorsPerChunk uint32
	BytesPerSector  uint32
	SectorCount     uint64
	Compression     byte
}

// ParseVolumeSection decodes the volume/disk section payload.
func ParseVolumeSection(data []byte) (*VolumeSection, error) {
	if len(data) < 94 {
		return nil, coreerr.Truncatedf("e01 volume section too short")
	}
	compression := byte(1)
	if len(data) > 88 {
		compression = data[88]
	}
	return &VolumeSection{
		MediaType:       data[0],
		ChunkCount:      leU32(data[4:8]),
		SectorsPerChunk: leU32(data[8:12]),
		BytesPerSector:  leU32(data[12:16]),
		SectorCount:     leU64(data[16:24]),
		Compression:     compression,
	}, nil
}

// MediaSize returns the total media size in bytes.
func (v *VolumeSection) MediaSize() uint64 {
	return v.SectorCount * uint64(v.BytesPerSector)
}

// ChunkSize returns the uncompressed chunk size in bytes.
func (v *VolumeSection) ChunkSize() uint32 {
	return v.SectorsPerChunk * v.BytesPerSector
}

// HashSection carries the acquisition-time MD5 hash of the media.
type HashSection struct {
	MD5 [16]byte
}

// ParseHashSection decodes a 20-byte hash section payload.
func ParseHashSection(data []byte) (*HashSection, error) {
	if len(data) < 20 {
		return nil, coreerr.Truncatedf("e01 hash section too short")
	}
	var h HashSection
	copy(h.MD5[:], data[0:16])
	return &h, nil
}

// MD5Hex renders the hash as a lowercase hex string.
func (h *HashSection) MD5Hex() string {
	const hex = "0123456789abcdef"
	out := make([]byte, 32)
	for i, b := range h.MD5 {
		out[i*2] = hex[b>>4]
		out[i*2+1] = hex[b&0xF]
	}
	return string(out)
}

// MediaType names the acquired media class.
type MediaType byte

const (
	MediaRemovable MediaType = 0x00
	MediaFixed     MediaType = 0x01
	MediaOptical   MediaType = 0x03
	MediaLogical   MediaType = 0x0e
)

func (m MediaType) String() string {
	switch m {
	case MediaRemovable:
		return "Removable"
	case MediaFixed:
		return "Fixed"
	case MediaOptical:
		return "Optical"
	case MediaLogical:
		return "Logical"
	default:
		return "Unknown"
	}
}

func leU16(b []byte) uint16 { return uint16(b[0]) | uint16(b[1])<<8 }
func leU32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
func leU64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v
}
