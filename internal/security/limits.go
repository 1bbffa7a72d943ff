// Package security holds the hardening primitives every parser in the
// stack must use when deriving a size, offset, count, or length from
// untrusted on-disk bytes: checked arithmetic, allocation ceilings, and
// path canonicalization.
package security

import "github.com/forensiccore/diskvault/internal/coreerr"

// Universal limits (normative values, see spec.md §4.2). Implementations
// expose them as constants so callers can compare against them without
// reaching into a parser's internals.
const (
	// MaxSectorSize bounds any sector-size field read from on-disk metadata.
	MaxSectorSize = 4096
	// MaxAllocation bounds any single buffer derived from untrusted fields.
	MaxAllocation = 256 * 1024 * 1024
	// MaxFATTable bounds a FAT allocation table load.
	MaxFATTable = 100 * 1024 * 1024
	// MaxFileExtract bounds any single file extraction.
	MaxFileExtract = 1024 * 1024 * 1024
	// MaxClusterChain bounds the links traversed in a FAT/exFAT cluster chain.
	MaxClusterChain = 1_000_000
	// MaxPartitionCount bounds the partitions accepted from any single table.
	MaxPartitionCount = 256
	// MaxDirEntries bounds the entries returned from a single directory listing.
	MaxDirEntries = 10_000
	// MaxMmapSize bounds the files admitted to the memory-mapped stream view.
	MaxMmapSize = 16 * 1024 * 1024 * 1024
	// MaxParentChainDepth bounds VHD differencing parent-locator recursion.
	MaxParentChainDepth = 16
)

// SecurityLimits records a deployment's tightened values for the universal
// limits above. Zero fields mean "use the compiled-in constant"; a
// configured value above the constant is a load-time error — see
// ValidateLimits. The values are only validated: the parsers enforce the
// compiled-in constants.
type SecurityLimits struct {
	MaxSectorSize       uint64 `mapstructure:"max_sector_size" yaml:"max_sector_size"`
	MaxAllocation       uint64 `mapstructure:"max_allocation" yaml:"max_allocation"`
	MaxFATTable         uint64 `mapstructure:"max_fat_table" yaml:"max_fat_table"`
	MaxFileExtract      uint64 `mapstructure:"max_file_extract" yaml:"max_file_extract"`
	MaxClusterChain     uint64 `mapstructure:"max_cluster_chain" yaml:"max_cluster_chain"`
	MaxPartitionCount   uint64 `mapstructure:"max_partition_count" yaml:"max_partition_count"`
	MaxDirEntries       uint64 `mapstructure:"max_dir_entries" yaml:"max_dir_entries"`
	MaxMmapSize         uint64 `mapstructure:"max_mmap_size" yaml:"max_mmap_size"`
	MaxParentChainDepth uint64 `mapstructure:"max_parent_chain_depth" yaml:"max_parent_chain_depth"`
}

// DefaultLimits returns the compiled-in ceilings as a SecurityLimits,
// suitable as the unmodified default configuration.
func DefaultLimits() SecurityLimits {
	return SecurityLimits{
		MaxSectorSize:       MaxSectorSize,
		MaxAllocation:       MaxAllocation,
		MaxFATTable:         MaxFATTable,
		MaxFileExtract:      MaxFileExtract,
		MaxClusterChain:     MaxClusterChain,
		MaxPartitionCount:   MaxPartitionCount,
		MaxDirEntries:       MaxDirEntries,
		MaxMmapSize:         MaxMmapSize,
		MaxParentChainDepth: MaxParentChainDepth,
	}
}

// namedLimit pairs a configured value with the compiled-in ceiling it
// must not exceed, for use in ValidateLimits' uniform check loop.
type namedLimit struct {
	name       string
	configured uint64
	ceiling    uint64
}

// ValidateLimits checks that every non-zero field of l is at or below
// the corresponding compiled-in constant, returning InvalidFormat
// naming the first field that exceeds it. A zero field is treated as
// "inherit the constant" and always passes.
func ValidateLimits(l SecurityLimits) error {
	checks := []namedLimit{
		{"max_sector_size", l.MaxSectorSize, MaxSectorSize},
		{"max_allocation", l.MaxAllocation, MaxAllocation},
		{"max_fat_table", l.MaxFATTable, MaxFATTable},
		{"max_file_extract", l.MaxFileExtract, MaxFileExtract},
		{"max_cluster_chain", l.MaxClusterChain, MaxClusterChain},
		{"max_partition_count", l.MaxPartitionCount, MaxPartitionCount},
		{"max_dir_entries", l.MaxDirEntries, MaxDirEntries},
		{"max_mmap_size", l.MaxMmapSize, MaxMmapSize},
		{"max_parent_chain_depth", l.MaxParentChainDepth, MaxParentChainDepth},
	}
	for _, c := range checks {
		if c.configured != 0 && c.configured > c.ceiling {
			return coreerr.InvalidFormatf("security: configured %s=%d exceeds compiled-in ceiling %d", c.name, c.configured, c.ceiling)
		}
	}
	return nil
}
