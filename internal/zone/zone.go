// Package zone defines the partition-tier contract: decoding an MBR or GPT
// table (or falling back to a single Direct zone) into an ordered list of
// Zone records, each a bounded window over the Vault's logical stream.
package zone

import (
	"github.com/forensiccore/diskvault/internal/model"
	"github.com/forensiccore/diskvault/internal/stream"
)

// ZoneTable is the result of partition-table detection: an identification
// tag and the ordered list of Zone records it found.
type ZoneTable interface {
	// Identify returns a short tag, e.g. "MBR", "GPT", "Direct".
	Identify() string
	// Zones returns the ordered list of partitions found in the table.
	Zones() []model.Zone
}

// Window returns a bounded Stream over the Vault's logical bytes
// corresponding to z, re-derived from base (the Vault's own Stream) each
// call so independent DirectoryCell walkers never share a read position.
func Window(base stream.Stream, z model.Zone) (*stream.Windowed, error) {
	return stream.NewWindow(base, z.Offset, z.Length)
}
