package iso9660

import (
	"io"
	"strings"

	"github.com/forensiccore/diskvault/internal/coreerr"
	"github.com/forensiccore/diskvault/internal/model"
	"github.com/forensiccore/diskvault/internal/security"
	"github.com/forensiccore/diskvault/internal/stream"
)

// Territory is a Territory implementation over an ISO-9660 volume. It
// prefers a Joliet supplementary descriptor's root, when present, for
// Unicode-correct names, falling back to the primary descriptor's
// Latin-1 root otherwise — matching the "Joliet if available" rule
// CD-ROM readers of this era use.
type Territory struct {
	s       stream.Stream
	primary *VolumeDescriptor
	joliet  *VolumeDescriptor
}

// Parse walks the volume-descriptor set starting at sector 16 until
// the type-255 terminator, keeping the primary descriptor and, if
// present, a Joliet supplementary descriptor.
func Parse(s stream.Stream) (*Territory, error) {
	if _, err := s.Seek(VolumeDescriptorStart, io.SeekStart); err != nil {
		return nil, err
	}

	var primary, joliet *VolumeDescriptor
	for i := 0; i < security.MaxPartitionCount; i++ {
		sector, err := stream.ReadAll(s, SectorSize)
		if err != nil {
			return nil, coreerr.Truncatedf("iso9660: reading volume descriptor sector: %v", err)
		}
		if len(sector) < 6 || string(sector[1:6]) != "CD001" {
			return nil, coreerr.InvalidFormatf("iso9660: bad standard identifier")
		}

		descType := sector[0]
		switch descType {
		case DescSetTerminator:
			goto done
		case DescPrimaryVolume:
			vd, err := ParseVolumeDescriptor(sector, descType)
			if err != nil {
				return nil, err
			}
			primary = vd
		case DescSupplementaryVolume:
			vd, err := ParseVolumeDescriptor(sector, descType)
			if err != nil {
				return nil, err
			}
			if vd.Joliet {
				joliet = vd
			}
		}
	}
	return nil, coreerr.LimitExceededf("iso9660: volume descriptor set exceeds %d sectors without a terminator", security.MaxPartitionCount)

done:
	if primary == nil {
		return nil, coreerr.InvalidFormatf("iso9660: no primary volume descriptor")
	}
	return &Territory{s: s, primary: primary, joliet: joliet}, nil
}

func (t *Territory) active() (*VolumeDescriptor, bool) {
	if t.joliet != nil {
		return t.joliet, true
	}
	return t.primary, false
}

func (t *Territory) Identify() string { return "ISO-9660" }

func (t *Territory) Label() (string, error) {
	vd, _ := t.active()
	return vd.VolumeLabel, nil
}

func (t *Territory) TotalSize() uint64 {
	vd, _ := t.active()
	size, err := security.CheckedMulU64(uint64(vd.VolumeSpaceSize), uint64(vd.LogicalBlockSize))
	if err != nil {
		return 0
	}
	return size
}

func (t *Territory) FreeSize() uint64 { return 0 }

func (t *Territory) readDirectory(rec *DirectoryRecord) ([]DirectoryRecord, error) {
	if !rec.IsDirectory() {
		return nil, coreerr.InvalidFormatf("iso9660: not a directory")
	}

	offset, err := security.CheckedMulU64(uint64(rec.ExtentLocation), SectorSize)
	if err != nil {
		return nil, err
	}
	n, err := security.ValidateAllocation(uint64(rec.DataLength), security.MaxAllocation, "iso9660 directory extent")
	if err != nil {
		return nil, err
	}
	if _, err := t.s.Seek(int64(offset), io.SeekStart); err != nil {
		return nil, err
	}
	data, err := stream.ReadAll(t.s, n)
	if err != nil {
		return nil, coreerr.Truncatedf("iso9660: reading directory extent: %v", err)
	}

	var entries []DirectoryRecord
	pos := 0
	for pos < len(data) {
		if data[pos] == 0 {
			next := ((pos / SectorSize) + 1) * SectorSize
			if next >= len(data) {
				break
			}
			pos = next
			continue
		}

		record, n, err := ParseDirectoryRecord(data[pos:])
		if err != nil || n == 0 {
			break
		}
		if record != nil {
			_, joliet := t.active()
			name := record.Name(joliet)
			if name != "." && name != ".." {
				entries = append(entries, *record)
			}
		}
		pos += n
		if pos%2 != 0 {
			pos++
		}

		if len(entries) > security.MaxDirEntries {
			return nil, coreerr.LimitExceededf("iso9660: directory exceeds %d entries", security.MaxDirEntries)
		}
	}
	return entries, nil
}

func occupantInfo(rec *DirectoryRecord, joliet bool) model.OccupantInfo {
	return model.OccupantInfo{
		Name:       rec.Name(joliet),
		IsDir:      rec.IsDirectory(),
		Size:       uint64(rec.DataLength),
		Attributes: uint32(rec.FileFlags),
	}
}

func splitPath(path string) []string {
	var parts []string
	for _, p := range strings.FieldsFunc(path, func(r rune) bool { return r == '/' || r == '\\' }) {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

func findInDirectory(entries []DirectoryRecord, name string, joliet bool) (*DirectoryRecord, error) {
	for i := range entries {
		if strings.EqualFold(entries[i].Name(joliet), name) {
			return &entries[i], nil
		}
	}
	return nil, coreerr.NotFoundf("iso9660: path component not found: %s", name)
}

func (t *Territory) resolveDirectory(path string) ([]DirectoryRecord, error) {
	vd, joliet := t.active()
	parts := splitPath(path)
	entries, err := t.readDirectory(&vd.RootRecord)
	if err != nil {
		return nil, err
	}
	for _, part := range parts {
		entry, err := findInDirectory(entries, part, joliet)
		if err != nil {
			return nil, err
		}
		if !entry.IsDirectory() {
			return nil, coreerr.NotFoundf("iso9660: not a directory: %s", part)
		}
		entries, err = t.readDirectory(entry)
		if err != nil {
			return nil, err
		}
	}
	return entries, nil
}

func (t *Territory) resolveFile(path string) (*DirectoryRecord, error) {
	_, joliet := t.active()
	parts := splitPath(path)
	if len(parts) == 0 {
		return nil, coreerr.NotFoundf("iso9660: empty path")
	}
	dirParts, fileName := parts[:len(parts)-1], parts[len(parts)-1]
	entries, err := t.resolveDirectory(strings.Join(dirParts, "/"))
	if err != nil {
		return nil, err
	}
	return findInDirectory(entries, fileName, joliet)
}

func (t *Territory) readFileData(rec *DirectoryRecord) ([]byte, error) {
	if rec.DataLength == 0 {
		return nil, nil
	}
	offset, err := security.CheckedMulU64(uint64(rec.ExtentLocation), SectorSize)
	if err != nil {
		return nil, err
	}
	n, err := security.ValidateAllocation(uint64(rec.DataLength), security.MaxFileExtract, "iso9660 file extent")
	if err != nil {
		return nil, err
	}
	if _, err := t.s.Seek(int64(offset), io.SeekStart); err != nil {
		return nil, err
	}
	data, err := stream.ReadAll(t.s, n)
	if err != nil {
		return nil, coreerr.Truncatedf("iso9660: reading file extent: %v", err)
	}
	return data, nil
}

// DirectoryCell is a resolved directory's listing/navigation handle.
// Exported as a concrete type (rather than an interface) so the
// top-level territory package can wrap it without an import cycle.
type DirectoryCell struct {
	t    *Territory
	name string
	path string
}

func (c *DirectoryCell) Name() string { return c.name }

func (c *DirectoryCell) List() ([]model.OccupantInfo, error) {
	entries, err := c.t.resolveDirectory(c.path)
	if err != nil {
		return nil, err
	}
	_, joliet := c.t.active()
	out := make([]model.OccupantInfo, 0, len(entries))
	for i := range entries {
		out = append(out, occupantInfo(&entries[i], joliet))
	}
	return out, nil
}

func (c *DirectoryCell) Enter(name string) (*DirectoryCell, error) {
	entries, err := c.t.resolveDirectory(c.path)
	if err != nil {
		return nil, err
	}
	_, joliet := c.t.active()
	entry, err := findInDirectory(entries, name, joliet)
	if err != nil {
		return nil, err
	}
	if !entry.IsDirectory() {
		return nil, coreerr.NotFoundf("iso9660: not a directory: %s", name)
	}
	return &DirectoryCell{t: c.t, name: name, path: joinPath(c.path, name)}, nil
}

func joinPath(base, name string) string {
	if base == "" {
		return name
	}
	return base + "/" + name
}

// Root returns the volume's root directory cell.
func (t *Territory) Root() (*DirectoryCell, error) {
	return &DirectoryCell{t: t, name: "/", path: ""}, nil
}

// Navigate resolves path (relative to the root) to a DirectoryCell.
func (t *Territory) Navigate(path string) (*DirectoryCell, error) {
	if _, err := t.resolveDirectory(path); err != nil {
		return nil, err
	}
	name := "/"
	if parts := splitPath(path); len(parts) > 0 {
		name = parts[len(parts)-1]
	}
	return &DirectoryCell{t: t, name: name, path: path}, nil
}

// Extract reads a regular file's full contents by path.
func (t *Territory) Extract(path string) ([]byte, error) {
	entry, err := t.resolveFile(path)
	if err != nil {
		return nil, err
	}
	if entry.IsDirectory() {
		return nil, coreerr.NotFoundf("iso9660: path is a directory: %s", path)
	}
	return t.readFileData(entry)
}
