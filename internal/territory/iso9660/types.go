// Package iso9660 decodes ISO-9660 volumes: the volume-descriptor set
// starting at sector 16, the primary descriptor and its optional
// Joliet supplementary descriptor, and the variable-length directory
// records each of them roots.
package iso9660

import (
	"github.com/forensiccore/diskvault/internal/coreerr"
	"github.com/forensiccore/diskvault/internal/stream/bread"
)

const (
	// SectorSize is the fixed ISO-9660 logical sector size.
	SectorSize = 2048
	// VolumeDescriptorStart is the byte offset of the first volume descriptor.
	VolumeDescriptorStart = 16 * SectorSize
)

// Descriptor types, per ECMA-119 §8.
const (
	DescBootRecord              = 0
	DescPrimaryVolume           = 1
	DescSupplementaryVolume     = 2
	DescVolumePartition         = 3
	DescSetTerminator           = 255
)

// FileFlags bits in a DirectoryRecord's flags byte.
const (
	FlagHidden      = 0x01
	FlagDirectory   = 0x02
	FlagAssociated  = 0x04
	FlagRecord      = 0x08
	FlagProtection  = 0x10
	FlagNotFinal    = 0x80
)

// escapeSequencesJoliet identifies the three Joliet UCS-2 escape
// sequences (level 1-3) a supplementary descriptor's 32-byte escape
// field may carry.
var escapeSequencesJoliet = [][]byte{
	{0x25, 0x2F, 0x40}, // UCS-2 level 1
	{0x25, 0x2F, 0x43}, // UCS-2 level 2
	{0x25, 0x2F, 0x45}, // UCS-2 level 3
}

func isJolietEscape(esc []byte) bool {
	for _, seq := range escapeSequencesJoliet {
		if len(esc) >= len(seq) && string(esc[:len(seq)]) == string(seq) {
			return true
		}
	}
	return false
}

// VolumeDescriptor is the subset of a primary or supplementary volume
// descriptor this package needs: the root directory record, the
// volume label, and whether the descriptor uses Joliet UCS-2 names.
type VolumeDescriptor struct {
	Joliet         bool
	VolumeLabel    string
	LogicalBlockSize uint32
	VolumeSpaceSize  uint32
	RootRecord     DirectoryRecord
}

// ParseVolumeDescriptor decodes one 2048-byte primary or supplementary
// volume descriptor sector. Both layouts share field offsets; only the
// string-encoding of the label and directory-record names differ,
// governed by the Joliet escape-sequence check at offset 88.
func ParseVolumeDescriptor(sector []byte, descType byte) (*VolumeDescriptor, error) {
	if len(sector) < SectorSize {
		return nil, coreerr.Truncatedf("iso9660: volume descriptor sector too small")
	}
	if string(sector[1:6]) != "CD001" {
		return nil, coreerr.InvalidFormatf("iso9660: bad standard identifier %q", sector[1:6])
	}

	joliet := descType == DescSupplementaryVolume && isJolietEscape(sector[88:120])

	blockSize, err := bread.BothEndian16(sector, 128)
	if err != nil {
		return nil, err
	}
	spaceSize, err := bread.BothEndian32(sector, 80)
	if err != nil {
		return nil, err
	}

	root, _, err := ParseDirectoryRecord(sector[156:190])
	if err != nil {
		return nil, err
	}

	var label string
	if joliet {
		label = decodeUCS2BE(sector[40:72])
	} else {
		label = trimSpaces(string(sector[40:72]))
	}

	return &VolumeDescriptor{
		Joliet:           joliet,
		VolumeLabel:      label,
		LogicalBlockSize: uint32(blockSize),
		VolumeSpaceSize:  spaceSize,
		RootRecord:       *root,
	}, nil
}

func trimSpaces(s string) string {
	end := len(s)
	for end > 0 && s[end-1] == ' ' {
		end--
	}
	return s[:end]
}

func decodeUCS2BE(b []byte) string {
	n := len(b) / 2
	units := make([]uint16, 0, n)
	for i := 0; i < n; i++ {
		u := uint16(b[i*2])<<8 | uint16(b[i*2+1])
		units = append(units, u)
	}
	for len(units) > 0 && units[len(units)-1] == 0x0020 {
		units = units[:len(units)-1]
	}
	runes := make([]rune, 0, len(units))
	for i := 0; i < len(units); i++ {
		u := units[i]
		if u >= 0xD800 && u <= 0xDBFF && i+1 < len(units) {
			lo := units[i+1]
			if lo >= 0xDC00 && lo <= 0xDFFF {
				runes = append(runes, ((rune(u)-0xD800)<<10|(rune(lo)-0xDC00))+0x10000)
				i++
				continue
			}
		}
		runes = append(runes, rune(u))
	}
	return string(runes)
}

// DirectoryRecord is one parsed ISO-9660 directory record.
type DirectoryRecord struct {
	Length         uint8
	ExtentLocation uint32
	DataLength     uint32
	FileFlags      uint8
	Identifier     []byte
}

// IsDirectory reports whether the directory flag is set.
func (r *DirectoryRecord) IsDirectory() bool { return r.FileFlags&FlagDirectory != 0 }

// IsHidden reports whether the hidden flag is set.
func (r *DirectoryRecord) IsHidden() bool { return r.FileFlags&FlagHidden != 0 }

// Name decodes the record's identifier, handling the "." and ".."
// special one-byte identifiers (0x00, 0x01) and stripping a trailing
// ";N" version suffix. joliet selects UCS-2BE decoding of multi-byte
// identifiers over Latin-1/ASCII.
func (r *DirectoryRecord) Name(joliet bool) string {
	if len(r.Identifier) == 0 {
		return "."
	}
	if len(r.Identifier) == 1 {
		switch r.Identifier[0] {
		case 0x00:
			return "."
		case 0x01:
			return ".."
		}
	}

	var name string
	if joliet {
		name = decodeUCS2BE(r.Identifier)
	} else {
		name = string(r.Identifier)
	}
	for i := 0; i < len(name); i++ {
		if name[i] == ';' {
			return name[:i]
		}
	}
	return name
}

// ParseDirectoryRecord decodes one variable-length directory record
// from the start of b. It returns the record and the number of bytes
// it occupied (its on-disk length, which callers advance by).
func ParseDirectoryRecord(b []byte) (*DirectoryRecord, int, error) {
	if len(b) == 0 {
		return nil, 0, coreerr.Truncatedf("iso9660: empty directory record")
	}
	length := b[0]
	if length == 0 {
		return nil, 0, nil
	}
	if int(length) < 34 || int(length) > len(b) {
		return nil, 0, coreerr.InvalidFormatf("iso9660: implausible directory record length %d", length)
	}

	extent, err := bread.BothEndian32(b, 2)
	if err != nil {
		return nil, 0, err
	}
	dataLen, err := bread.BothEndian32(b, 10)
	if err != nil {
		return nil, 0, err
	}
	flags := b[25]
	idLen := int(b[32])
	idStart := 33
	idEnd := idStart + idLen
	if idEnd > int(length) {
		return nil, 0, coreerr.InvalidFormatf("iso9660: directory record identifier overruns record")
	}

	rec := &DirectoryRecord{
		Length:         length,
		ExtentLocation: extent,
		DataLength:     dataLen,
		FileFlags:      flags,
		Identifier:     append([]byte(nil), b[idStart:idEnd]...),
	}
	return rec, int(length), nil
}
