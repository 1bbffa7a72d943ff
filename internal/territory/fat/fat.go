package fat

import (
	"io"
	"strings"

	"github.com/forensiccore/diskvault/internal/coreerr"
	"github.com/forensiccore/diskvault/internal/model"
	"github.com/forensiccore/diskvault/internal/security"
	"github.com/forensiccore/diskvault/internal/stream"
	"golang.org/x/text/encoding/unicode"
)

// Territory is a Territory implementation over a FAT12/16/32 volume.
type Territory struct {
	s        stream.Stream
	bpb      *BiosParameterBlock
	fatTable []byte
}

// Parse parses s (positioned at the start of a FAT volume) as a FAT
// territory: reads the boot sector's BPB, validates it, and loads the
// first FAT copy into memory for chain traversal.
func Parse(s stream.Stream) (*Territory, error) {
	if _, err := s.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	bootSector, err := stream.ReadAll(s, 512)
	if err != nil {
		return nil, coreerr.Truncatedf("fat: reading boot sector: %v", err)
	}

	bpb, err := ParseBPB(bootSector)
	if err != nil {
		return nil, err
	}

	fatSize, err := security.CheckedMulU64(uint64(bpb.SectorsPerFAT()), uint64(bpb.BytesPerSector))
	if err != nil {
		return nil, err
	}
	n, err := security.ValidateAllocation(fatSize, security.MaxFATTable, "fat table")
	if err != nil {
		return nil, err
	}

	fatOffset, err := bpb.FATOffset()
	if err != nil {
		return nil, err
	}
	if _, err := s.Seek(int64(fatOffset), io.SeekStart); err != nil {
		return nil, err
	}
	fatTable, err := stream.ReadAll(s, n)
	if err != nil {
		return nil, coreerr.Truncatedf("fat: reading FAT table: %v", err)
	}

	return &Territory{s: s, bpb: bpb, fatTable: fatTable}, nil
}

func (t *Territory) Identify() string { return t.bpb.Type.String() }

func (t *Territory) Label() (string, error) {
	entries, err := t.readRootDirectory()
	if err != nil {
		return "", err
	}
	for _, e := range entries {
		if e.raw.IsVolumeLabel() {
			return e.raw.ShortName, nil
		}
	}
	return "", nil
}

func (t *Territory) TotalSize() uint64 {
	size, err := security.CheckedMulU64(uint64(t.bpb.TotalSectors()), uint64(t.bpb.BytesPerSector))
	if err != nil {
		return 0
	}
	return size
}

func (t *Territory) FreeSize() uint64 { return 0 }

// decodedEntry pairs a short entry with its reassembled long name, if any.
type decodedEntry struct {
	raw  *DirectoryEntry
	name string
}

func (d *decodedEntry) occupantInfo() model.OccupantInfo {
	name := d.name
	if name == "" {
		name = d.raw.ShortName
	}
	return model.OccupantInfo{
		Name:       name,
		IsDir:      d.raw.IsDirectory(),
		Size:       uint64(d.raw.FileSize),
		Attributes: uint32(d.raw.Attributes),
	}
}

func (t *Territory) readRootDirectory() ([]decodedEntry, error) {
	if t.bpb.Type == FAT32 {
		return t.readDirectoryAtCluster(t.bpb.FAT32RootCluster)
	}

	offset, err := t.bpb.RootDirOffset()
	if err != nil {
		return nil, err
	}
	if _, err := t.s.Seek(int64(offset), io.SeekStart); err != nil {
		return nil, err
	}
	return t.readEntriesFromStream(int(t.bpb.RootEntries))
}

func (t *Territory) readDirectoryAtCluster(startCluster uint32) ([]decodedEntry, error) {
	if startCluster < 2 {
		return nil, nil
	}
	chain, err := t.ClusterChain(startCluster)
	if err != nil {
		return nil, err
	}
	if len(chain) == 0 {
		return nil, nil
	}

	bytesPerCluster, err := t.bpb.BytesPerCluster()
	if err != nil {
		return nil, err
	}
	entriesPerCluster := int(bytesPerCluster) / DirEntrySize

	var all []decodedEntry
	for _, cluster := range chain {
		offset, err := t.clusterToOffset(cluster)
		if err != nil {
			return nil, err
		}
		if _, err := t.s.Seek(int64(offset), io.SeekStart); err != nil {
			return nil, err
		}
		entries, done, err := t.readEntriesFromStreamBounded(entriesPerCluster)
		if err != nil {
			return nil, err
		}
		all = append(all, entries...)
		if done {
			break
		}
	}
	return filterDotEntries(all), nil
}

func filterDotEntries(entries []decodedEntry) []decodedEntry {
	out := make([]decodedEntry, 0, len(entries))
	for _, e := range entries {
		if e.raw.ShortName == "." || e.raw.ShortName == ".." {
			continue
		}
		out = append(out, e)
	}
	return out
}

// readEntriesFromStream reads exactly max directory-entry slots (the
// root-directory-array case), stopping early at the end-of-directory marker.
func (t *Territory) readEntriesFromStream(max int) ([]decodedEntry, error) {
	entries, _, err := t.readEntriesFromStreamBounded(max)
	return entries, err
}

func (t *Territory) readEntriesFromStreamBounded(max int) (entries []decodedEntry, endOfDirectory bool, err error) {
	var pendingLFN []*LFNFragment

	for i := 0; i < max; i++ {
		raw, err := stream.ReadAll(t.s, DirEntrySize)
		if err != nil {
			return entries, true, coreerr.Truncatedf("fat: reading directory entry: %v", err)
		}

		if IsEndOfDirectory(raw) {
			return entries, true, nil
		}
		if IsDeletedEntry(raw) {
			pendingLFN = nil
			continue
		}
		if IsLongNameEntry(raw) {
			frag, err := ParseLFNFragment(raw)
			if err != nil {
				pendingLFN = nil
				continue
			}
			pendingLFN = append(pendingLFN, frag)
			continue
		}

		entry, err := ParseDirectoryEntry(raw)
		if err != nil {
			pendingLFN = nil
			continue
		}
		longName := reassembleLFN(pendingLFN)
		pendingLFN = nil

		if entry.IsVolumeLabel() {
			continue
		}
		entries = append(entries, decodedEntry{raw: entry, name: longName})

		if len(entries) > security.MaxDirEntries {
			return entries, false, coreerr.LimitExceededf("fat: directory exceeds %d entries", security.MaxDirEntries)
		}
	}
	return entries, false, nil
}

// reassembleLFN stitches fragments (collected in on-disk order, i.e.
// highest ordinal first) into a single UTF-16LE-decoded name.
func reassembleLFN(fragments []*LFNFragment) string {
	if len(fragments) == 0 {
		return ""
	}
	ordered := make([]*LFNFragment, len(fragments))
	for _, f := range fragments {
		ord := int(f.Ordinal())
		if ord < 1 || ord > len(fragments) {
			return ""
		}
		ordered[ord-1] = f
	}

	var units []uint16
	for _, f := range ordered {
		if f == nil {
			return ""
		}
		for _, c := range f.Chars {
			if c == 0x0000 || c == 0xFFFF {
				break
			}
			units = append(units, c)
		}
	}

	buf := make([]byte, 0, len(units)*2)
	for _, u := range units {
		buf = append(buf, byte(u), byte(u>>8))
	}
	decoder := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()
	out, err := decoder.Bytes(buf)
	if err != nil {
		return ""
	}
	return string(out)
}

func (t *Territory) clusterToOffset(cluster uint32) (uint64, error) {
	clusterOffset := uint64(0)
	if cluster > 2 {
		clusterOffset = uint64(cluster - 2)
	}
	dataOffset, err := t.bpb.DataOffset()
	if err != nil {
		return 0, err
	}
	bytesPerCluster, err := t.bpb.BytesPerCluster()
	if err != nil {
		return 0, err
	}
	clusterBytes, err := security.CheckedMulU64(clusterOffset, bytesPerCluster)
	if err != nil {
		return 0, err
	}
	return security.CheckedAddU64(dataOffset, clusterBytes)
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

func (t *Territory) findInDirectory(entries []decodedEntry, name string) (*decodedEntry, error) {
	for i := range entries {
		if strings.EqualFold(entries[i].occupantInfo().Name, name) {
			return &entries[i], nil
		}
	}
	return nil, coreerr.NotFoundf("fat: path component not found: %s", name)
}

func (t *Territory) resolveDirectory(path string) ([]decodedEntry, error) {
	parts := splitPath(path)
	entries, err := t.readRootDirectory()
	if err != nil {
		return nil, err
	}
	for _, part := range parts {
		entry, err := t.findInDirectory(entries, part)
		if err != nil {
			return nil, err
		}
		if !entry.raw.IsDirectory() {
			return nil, coreerr.NotFoundf("fat: not a directory: %s", part)
		}
		entries, err = t.readDirectoryAtCluster(entry.raw.FirstCluster())
		if err != nil {
			return nil, err
		}
	}
	return entries, nil
}

func (t *Territory) resolveFile(path string) (*decodedEntry, error) {
	parts := splitPath(path)
	if len(parts) == 0 {
		return nil, coreerr.NotFoundf("fat: empty path")
	}
	dirParts, fileName := parts[:len(parts)-1], parts[len(parts)-1]
	entries, err := t.resolveDirectory(strings.Join(dirParts, "/"))
	if err != nil {
		return nil, err
	}
	return t.findInDirectory(entries, fileName)
}

func (t *Territory) readFileData(entry *DirectoryEntry) ([]byte, error) {
	firstCluster := entry.FirstCluster()
	if firstCluster == 0 || entry.FileSize == 0 {
		return nil, nil
	}
	if uint64(entry.FileSize) > security.MaxFileExtract {
		return nil, coreerr.LimitExceededf("fat: file size %d exceeds extraction limit %d", entry.FileSize, security.MaxFileExtract)
	}

	chain, err := t.ClusterChain(firstCluster)
	if err != nil {
		return nil, err
	}
	if len(chain) == 0 {
		return nil, nil
	}

	bytesPerCluster, err := t.bpb.BytesPerCluster()
	if err != nil {
		return nil, err
	}
	clusterSize := int(bytesPerCluster)

	data := make([]byte, 0, entry.FileSize)
	remaining := int(entry.FileSize)
	for _, cluster := range chain {
		offset, err := t.clusterToOffset(cluster)
		if err != nil {
			return nil, err
		}
		if _, err := t.s.Seek(int64(offset), io.SeekStart); err != nil {
			return nil, err
		}
		toRead := remaining
		if toRead > clusterSize {
			toRead = clusterSize
		}
		chunk, err := stream.ReadAll(t.s, toRead)
		if err != nil {
			return nil, coreerr.Truncatedf("fat: reading cluster data: %v", err)
		}
		data = append(data, chunk...)
		remaining -= toRead
		if remaining <= 0 {
			break
		}
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
	out := make([]model.OccupantInfo, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.occupantInfo())
	}
	return out, nil
}

func (c *DirectoryCell) Enter(name string) (*DirectoryCell, error) {
	entries, err := c.t.resolveDirectory(c.path)
	if err != nil {
		return nil, err
	}
	entry, err := c.t.findInDirectory(entries, name)
	if err != nil {
		return nil, err
	}
	if !entry.raw.IsDirectory() {
		return nil, coreerr.NotFoundf("fat: not a directory: %s", name)
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
	if entry.raw.IsDirectory() {
		return nil, coreerr.NotFoundf("fat: path is a directory: %s", path)
	}
	return t.readFileData(entry.raw)
}
