package mbr

// PartitionType is the one-byte MBR partition type code.
type PartitionType byte

const (
	TypeEmpty         PartitionType = 0x00
	TypeFAT12         PartitionType = 0x01
	TypeFAT16Small    PartitionType = 0x04
	TypeExtended      PartitionType = 0x05
	TypeFAT16         PartitionType = 0x06
	TypeNTFS          PartitionType = 0x07
	TypeFAT32CHS      PartitionType = 0x0B
	TypeFAT32LBA      PartitionType = 0x0C
	TypeFAT16LBA      PartitionType = 0x0E
	TypeExtendedLBA   PartitionType = 0x0F
	TypeLinuxSwap     PartitionType = 0x82
	TypeLinuxNative   PartitionType = 0x83
	TypeGPTProtective PartitionType = 0xEE
	TypeEFISystem     PartitionType = 0xEF
)

// Name renders the well-known type codes by name; unrecognized codes
// render as a hex tag.
func (t PartitionType) Name() string {
	switch t {
	case TypeEmpty:
		return "Empty"
	case TypeFAT12:
		return "FAT12"
	case TypeFAT16Small:
		return "FAT16 (<32MB)"
	case TypeExtended:
		return "Extended"
	case TypeFAT16:
		return "FAT16"
	case TypeNTFS:
		return "NTFS/exFAT"
	case TypeFAT32CHS:
		return "FAT32 (CHS)"
	case TypeFAT32LBA:
		return "FAT32 (LBA)"
	case TypeFAT16LBA:
		return "FAT16 (LBA)"
	case TypeExtendedLBA:
		return "Extended (LBA)"
	case TypeLinuxSwap:
		return "Linux swap"
	case TypeLinuxNative:
		return "Linux"
	case TypeGPTProtective:
		return "GPT Protective"
	case TypeEFISystem:
		return "EFI System"
	default:
		return "Unknown"
	}
}

// TerritoryHint maps a partition type code to the filesystem family it
// usually carries, or "" when the type gives no useful hint (extended
// partitions, swap, GPT protective).
func (t PartitionType) TerritoryHint() string {
	switch t {
	case TypeFAT12:
		return "FAT12"
	case TypeFAT16Small, TypeFAT16, TypeFAT16LBA:
		return "FAT16"
	case TypeFAT32CHS, TypeFAT32LBA:
		return "FAT32"
	case TypeNTFS:
		return "NTFS/exFAT"
	default:
		return ""
	}
}
