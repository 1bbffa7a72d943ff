// Package territory defines the Territory contract (filesystem handle)
// and the format-detection factory that dispatches to the concrete FAT,
// exFAT, ISO-9660, and NTFS decoders.
//
// The leaf packages (fat, exfat, iso9660, ntfs) each expose a concrete
// Territory/DirectoryCell struct pair rather than implementing the
// interfaces below directly: DirectoryCell.Enter is self-referential
// (it returns a DirectoryCell), and a leaf package cannot import this
// package's interface to satisfy it without creating an import cycle
// (this package already imports every leaf package to dispatch
// Detect). The small adapter types below close that gap by delegating
// to the concrete leaf type.
package territory

import (
	"github.com/forensiccore/diskvault/internal/coreerr"
	"github.com/forensiccore/diskvault/internal/model"
	"github.com/forensiccore/diskvault/internal/stream"
	"github.com/forensiccore/diskvault/internal/territory/exfat"
	"github.com/forensiccore/diskvault/internal/territory/fat"
	"github.com/forensiccore/diskvault/internal/territory/iso9660"
	"github.com/forensiccore/diskvault/internal/territory/ntfs"
)

// Territory owns a parsed filesystem structure over a Zone's (or a
// Vault's) windowed stream and exposes its directory tree and file
// contents. One handle is safe for one goroutine at a time; callers
// needing concurrent access must supply their own synchronization.
type Territory interface {
	// Identify returns a short format tag, e.g. "FAT32", "exFAT", "ISO-9660", "NTFS".
	Identify() string
	// Label returns the volume label, or "" if the filesystem carries none.
	Label() (string, error)
	// TotalSize returns the filesystem's total addressed size in bytes.
	TotalSize() uint64
	// FreeSize returns the filesystem's free space in bytes, or 0 if not tracked.
	FreeSize() uint64
	// Root returns the root DirectoryCell.
	Root() (DirectoryCell, error)
	// Navigate resolves path (a "/"-or-"\"-separated component list) to a DirectoryCell.
	Navigate(path string) (DirectoryCell, error)
	// Extract reads a regular file's full contents by path, bounded by
	// security.MaxFileExtract.
	Extract(path string) ([]byte, error)
}

// DirectoryCell is one directory's listing and navigation surface.
type DirectoryCell interface {
	// Name returns this directory's own name ("/" for the root).
	Name() string
	// List returns every occupant of this directory.
	List() ([]model.OccupantInfo, error)
	// Enter resolves a child directory by name.
	Enter(name string) (DirectoryCell, error)
}

// Detect probes s for a recognized filesystem, in the normative order
// NTFS, exFAT, ISO-9660, FAT, returning Unsupported if none match.
func Detect(s stream.Stream) (Territory, error) {
	if t, err := ntfs.Parse(s); err == nil {
		return &ntfsTerritory{t}, nil
	}
	if t, err := exfat.Parse(s); err == nil {
		return &exfatTerritory{t}, nil
	}
	if t, err := iso9660.Parse(s); err == nil {
		return &iso9660Territory{t}, nil
	}
	if t, err := fat.Parse(s); err == nil {
		return &fatTerritory{t}, nil
	}
	return nil, coreerr.Unsupportedf("territory: no recognized filesystem")
}

// --- fat adapter ---

type fatTerritory struct{ t *fat.Territory }

func (a *fatTerritory) Identify() string       { return a.t.Identify() }
func (a *fatTerritory) Label() (string, error) { return a.t.Label() }
func (a *fatTerritory) TotalSize() uint64      { return a.t.TotalSize() }
func (a *fatTerritory) FreeSize() uint64       { return a.t.FreeSize() }

func (a *fatTerritory) Root() (DirectoryCell, error) {
	c, err := a.t.Root()
	if err != nil {
		return nil, err
	}
	return &fatDirectoryCell{c}, nil
}

func (a *fatTerritory) Navigate(path string) (DirectoryCell, error) {
	c, err := a.t.Navigate(path)
	if err != nil {
		return nil, err
	}
	return &fatDirectoryCell{c}, nil
}

func (a *fatTerritory) Extract(path string) ([]byte, error) { return a.t.Extract(path) }

type fatDirectoryCell struct{ c *fat.DirectoryCell }

func (a *fatDirectoryCell) Name() string                        { return a.c.Name() }
func (a *fatDirectoryCell) List() ([]model.OccupantInfo, error) { return a.c.List() }
func (a *fatDirectoryCell) Enter(name string) (DirectoryCell, error) {
	c, err := a.c.Enter(name)
	if err != nil {
		return nil, err
	}
	return &fatDirectoryCell{c}, nil
}

// --- exfat adapter ---

type exfatTerritory struct{ t *exfat.Territory }

func (a *exfatTerritory) Identify() string       { return a.t.Identify() }
func (a *exfatTerritory) Label() (string, error) { return a.t.Label() }
func (a *exfatTerritory) TotalSize() uint64      { return a.t.TotalSize() }
func (a *exfatTerritory) FreeSize() uint64       { return a.t.FreeSize() }

func (a *exfatTerritory) Root() (DirectoryCell, error) {
	c, err := a.t.Root()
	if err != nil {
		return nil, err
	}
	return &exfatDirectoryCell{c}, nil
}

func (a *exfatTerritory) Navigate(path string) (DirectoryCell, error) {
	c, err := a.t.Navigate(path)
	if err != nil {
		return nil, err
	}
	return &exfatDirectoryCell{c}, nil
}

func (a *exfatTerritory) Extract(path string) ([]byte, error) { return a.t.Extract(path) }

type exfatDirectoryCell struct{ c *exfat.DirectoryCell }

func (a *exfatDirectoryCell) Name() string                        { return a.c.Name() }
func (a *exfatDirectoryCell) List() ([]model.OccupantInfo, error) { return a.c.List() }
func (a *exfatDirectoryCell) Enter(name string) (DirectoryCell, error) {
	c, err := a.c.Enter(name)
	if err != nil {
		return nil, err
	}
	return &exfatDirectoryCell{c}, nil
}

// --- iso9660 adapter ---

type iso9660Territory struct{ t *iso9660.Territory }

func (a *iso9660Territory) Identify() string       { return a.t.Identify() }
func (a *iso9660Territory) Label() (string, error) { return a.t.Label() }
func (a *iso9660Territory) TotalSize() uint64      { return a.t.TotalSize() }
func (a *iso9660Territory) FreeSize() uint64       { return a.t.FreeSize() }

func (a *iso9660Territory) Root() (DirectoryCell, error) {
	c, err := a.t.Root()
	if err != nil {
		return nil, err
	}
	return &iso9660DirectoryCell{c}, nil
}

func (a *iso9660Territory) Navigate(path string) (DirectoryCell, error) {
	c, err := a.t.Navigate(path)
	if err != nil {
		return nil, err
	}
	return &iso9660DirectoryCell{c}, nil
}

func (a *iso9660Territory) Extract(path string) ([]byte, error) { return a.t.Extract(path) }

type iso9660DirectoryCell struct{ c *iso9660.DirectoryCell }

func (a *iso9660DirectoryCell) Name() string                        { return a.c.Name() }
func (a *iso9660DirectoryCell) List() ([]model.OccupantInfo, error) { return a.c.List() }
func (a *iso9660DirectoryCell) Enter(name string) (DirectoryCell, error) {
	c, err := a.c.Enter(name)
	if err != nil {
		return nil, err
	}
	return &iso9660DirectoryCell{c}, nil
}

// --- ntfs adapter ---

type ntfsTerritory struct{ t *ntfs.Territory }

func (a *ntfsTerritory) Identify() string       { return a.t.Identify() }
func (a *ntfsTerritory) Label() (string, error) { return a.t.Label() }
func (a *ntfsTerritory) TotalSize() uint64      { return a.t.TotalSize() }
func (a *ntfsTerritory) FreeSize() uint64       { return a.t.FreeSize() }

func (a *ntfsTerritory) Root() (DirectoryCell, error) {
	c, err := a.t.Root()
	if err != nil {
		return nil, err
	}
	return &ntfsDirectoryCell{c}, nil
}

func (a *ntfsTerritory) Navigate(path string) (DirectoryCell, error) {
	c, err := a.t.Navigate(path)
	if err != nil {
		return nil, err
	}
	return &ntfsDirectoryCell{c}, nil
}

func (a *ntfsTerritory) Extract(path string) ([]byte, error) { return a.t.Extract(path) }

type ntfsDirectoryCell struct{ c *ntfs.DirectoryCell }

func (a *ntfsDirectoryCell) Name() string                        { return a.c.Name() }
func (a *ntfsDirectoryCell) List() ([]model.OccupantInfo, error) { return a.c.List() }
func (a *ntfsDirectoryCell) Enter(name string) (DirectoryCell, error) {
	c, err := a.c.Enter(name)
	if err != nil {
		return nil, err
	}
	return &ntfsDirectoryCell{c}, nil
}
