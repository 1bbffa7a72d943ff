// Package model holds the plain data types shared across tiers: directory
// entries and partition records.
package model

import "time"

// OccupantInfo describes a single file or directory record returned by a
// DirectoryCell listing.
type OccupantInfo struct {
	Name       string
	IsDir      bool
	Size       uint64
	Created    *time.Time
	Modified   *time.Time
	Accessed   *time.Time
	Attributes uint32
}

// Zone describes a partition: a bounded window over a Vault's logical
// stream. Invariants: Offset+Length <= container length; Length > 0;
// indices are dense per table.
type Zone struct {
	Index         int
	Offset        uint64
	Length        uint64
	ZoneType      string
	TerritoryHint string
	// Name is the partition label decoded from a GPT entry's UTF-16LE
	// name field, or "" for table types (MBR, Direct) that carry none.
	Name string
}
