package gpt

import "github.com/google/uuid"

// TypeGUID is a well-known GPT partition type GUID, stored on-disk as 16
// raw bytes (mixed-endian per the GUID wire format).
type TypeGUID [16]byte

var (
	TypeUnused              = TypeGUID{}
	TypeEFISystem           = TypeGUID{0x28, 0x73, 0x2a, 0xc1, 0x1f, 0xf8, 0xd2, 0x11, 0xba, 0x4b, 0x00, 0xa0, 0xc9, 0x3e, 0xc9, 0x3b}
	TypeMicrosoftBasicData  = TypeGUID{0xa2, 0xa0, 0xd0, 0xeb, 0xe5, 0xb9, 0x33, 0x44, 0x87, 0xc0, 0x68, 0xb6, 0xb7, 0x26, 0x99, 0xc7}
	TypeLinuxFilesystem     = TypeGUID{0xaf, 0x3d, 0xc6, 0x0f, 0x83, 0x84, 0x72, 0x47, 0x8e, 0x79, 0x3d, 0x69, 0xd8, 0x47, 0x7d, 0xe4}
	TypeLinuxSwap           = TypeGUID{0x6d, 0xfd, 0x57, 0x06, 0xab, 0xa4, 0xc4, 0x43, 0x84, 0xe5, 0x09, 0x33, 0xc8, 0x4b, 0x4f, 0x4f}
)

// Name renders the well-known type GUIDs by name.
func (g TypeGUID) Name() string {
	switch g {
	case TypeUnused:
		return "Unused"
	case TypeEFISystem:
		return "EFI System"
	case TypeMicrosoftBasicData:
		return "Microsoft Basic Data"
	case TypeLinuxFilesystem:
		return "Linux filesystem"
	case TypeLinuxSwap:
		return "Linux swap"
	default:
		return "Unknown"
	}
}

// TerritoryHint maps a well-known type GUID to the filesystem family it
// usually carries.
func (g TypeGUID) TerritoryHint() string {
	switch g {
	case TypeEFISystem:
		return "FAT32"
	case TypeMicrosoftBasicData:
		return "FAT32/exFAT/NTFS"
	case TypeLinuxFilesystem:
		return "ext/Linux"
	default:
		return ""
	}
}

// UUID renders g as a standard textual UUID for display in reports.
func (g TypeGUID) UUID() uuid.UUID {
	// The first three GUID fields are stored little-endian on disk.
	u := uuid.UUID(g)
	u[0], u[1], u[2], u[3] = g[3], g[2], g[1], g[0]
	u[4], u[5] = g[5], g[4]
	u[6], u[7] = g[7], g[6]
	return u
}
