package exfat

import (
	"io"
	"strings"

	"github.com/forensiccore/diskvault/internal/coreerr"
	"github.com/forensiccore/diskvault/internal/model"
	"github.com/forensiccore/diskvault/internal/security"
	"github.com/forensiccore/diskvault/internal/stream"
)

// Territory is a Territory implementation over an exFAT volume.
type Territory struct {
	s       stream.Stream
	boot    *BootSector
	fatBase uint64
}

// Parse parses s (positioned at the start of an exFAT volume) as an
// exFAT territory: reads and validates the boot sector.
func Parse(s stream.Stream) (*Territory, error) {
	if _, err := s.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	raw, err := stream.ReadAll(s, bootSectorSize)
	if err != nil {
		return nil, coreerr.Truncatedf("exfat: reading boot sector: %v", err)
	}

	boot, err := ParseBootSector(raw)
	if err != nil {
		return nil, err
	}

	fatBase, err := security.CheckedMulU64(uint64(boot.FATOffset), uint64(boot.BytesPerSector()))
	if err != nil {
		return nil, err
	}

	return &Territory{s: s, boot: boot, fatBase: fatBase}, nil
}

func (t *Territory) Identify() string { return "exFAT" }

func (t *Territory) Label() (string, error) {
	entries, err := t.readRootDirectory()
	if err != nil {
		return "", err
	}
	for _, e := range entries {
		if e.isVolumeLabel {
			return e.name, nil
		}
	}
	return "", nil
}

func (t *Territory) TotalSize() uint64 {
	size, err := security.CheckedMulU64(t.boot.VolumeLength, uint64(t.boot.BytesPerSector()))
	if err != nil {
		return 0
	}
	return size
}

func (t *Territory) FreeSize() uint64 { return 0 }

// decodedEntry is a fully reassembled exFAT directory entry: the file
// entry's attributes joined with the stream extension's allocation and
// the concatenated file-name-entry characters.
type decodedEntry struct {
	name          string
	attributes    FileAttributes
	size          uint64
	firstCluster  uint32
	contiguous    bool
	isVolumeLabel bool
}

func (d *decodedEntry) occupantInfo() model.OccupantInfo {
	return model.OccupantInfo{
		Name:       d.name,
		IsDir:      d.attributes.IsDirectory(),
		Size:       d.size,
		Attributes: uint32(d.attributes),
	}
}

func (t *Territory) cardinalOffset(cluster uint32) (uint64, error) {
	heapOffset, err := security.CheckedMulU64(uint64(t.boot.ClusterHeapOffset), uint64(t.boot.BytesPerSector()))
	if err != nil {
		return 0, err
	}
	if cluster < 2 {
		return heapOffset, nil
	}
	clusterIndex := uint64(cluster - 2)
	clusterBytes, err := security.CheckedMulU64(clusterIndex, uint64(t.boot.BytesPerCluster()))
	if err != nil {
		return 0, err
	}
	return security.CheckedAddU64(heapOffset, clusterBytes)
}

// readFATEntry reads the single 32-bit FAT's entry for cluster. exFAT
// uses one un-packed 32-bit table, unlike FAT12/16's bit-packed tables.
func (t *Territory) readFATEntry(cluster uint32) (uint32, bool) {
	entryOffset, err := security.CheckedAddU64(t.fatBase, uint64(cluster)*4)
	if err != nil {
		return 0, false
	}
	if _, err := t.s.Seek(int64(entryOffset), io.SeekStart); err != nil {
		return 0, false
	}
	raw, err := stream.ReadAll(t.s, 4)
	if err != nil {
		return 0, false
	}
	value := uint32(raw[0]) | uint32(raw[1])<<8 | uint32(raw[2])<<16 | uint32(raw[3])<<24
	if IsEndCluster(value) || value == ClusterFree || value == ClusterBad {
		return 0, false
	}
	return value, true
}

// readClusterChain reads data starting at startCluster, following the
// FAT chain (or, if contiguous is set, reading sequential clusters
// with no FAT lookups at all) until maxBytes have been read or the
// chain ends, capped at security.MaxClusterChain links. A cluster
// revisited before the chain ends means the chain loops on itself,
// which is corruption and is reported as InvalidFormat rather than
// silently truncated, mirroring the FAT territory's chain walk.
func (t *Territory) readClusterChain(startCluster uint32, contiguous bool, maxBytes uint64) ([]byte, error) {
	if contiguous {
		return t.readContiguousClusters(startCluster, maxBytes)
	}

	bytesPerCluster := uint64(t.boot.BytesPerCluster())
	var data []byte
	cluster := startCluster
	visited := make(map[uint32]struct{})

	for len(visited) < security.MaxClusterChain {
		if cluster < 2 || cluster >= t.boot.ClusterCount+2 {
			break
		}
		if _, seen := visited[cluster]; seen {
			return nil, coreerr.InvalidFormatf("exfat: circular cluster chain at cluster %d", cluster)
		}
		visited[cluster] = struct{}{}

		offset, err := t.cardinalOffset(cluster)
		if err != nil {
			return nil, err
		}
		if _, err := t.s.Seek(int64(offset), io.SeekStart); err != nil {
			return nil, err
		}
		toRead := bytesPerCluster
		if remaining := maxBytes - uint64(len(data)); remaining < toRead {
			toRead = remaining
		}
		chunk, err := stream.ReadAll(t.s, int(toRead))
		if err != nil {
			return nil, coreerr.Truncatedf("exfat: reading cluster data: %v", err)
		}
		data = append(data, chunk...)
		if uint64(len(data)) >= maxBytes {
			break
		}

		next, ok := t.readFATEntry(cluster)
		if !ok {
			break
		}
		cluster = next
	}

	return data, nil
}

func (t *Territory) readContiguousClusters(startCluster uint32, size uint64) ([]byte, error) {
	offset, err := t.cardinalOffset(startCluster)
	if err != nil {
		return nil, err
	}
	if _, err := t.s.Seek(int64(offset), io.SeekStart); err != nil {
		return nil, err
	}
	n, err := security.ValidateAllocation(size, security.MaxFileExtract, "exfat contiguous read")
	if err != nil {
		return nil, err
	}
	data, err := stream.ReadAll(t.s, n)
	if err != nil {
		return nil, coreerr.Truncatedf("exfat: reading contiguous clusters: %v", err)
	}
	return data, nil
}

func (t *Territory) readRootDirectory() ([]decodedEntry, error) {
	return t.readDirectoryAtCluster(t.boot.RootDirCluster)
}

// readDirectoryAtCluster reads and decodes the full directory-entry set
// (file + stream-extension + file-name secondaries) rooted at
// startCluster, matching the Rust original's linear scan over the
// cluster-chain bytes with a secondary_count-driven skip per record.
func (t *Territory) readDirectoryAtCluster(startCluster uint32) ([]decodedEntry, error) {
	dirBytes, err := t.readClusterChain(startCluster, false, security.MaxAllocation)
	if err != nil {
		return nil, err
	}

	var entries []decodedEntry
	i := 0
	for i+32 <= len(dirBytes) {
		switch ClassifyEntry(dirBytes[i]) {
		case EntryEndOfDirectory:
			return entries, nil

		case EntryVolumeLabel:
			count := int(dirBytes[i+1])
			if count > 11 {
				count = 11
			}
			var units []uint16
			for c := 0; c < count; c++ {
				units = append(units, leU16(dirBytes, i+2+c*2))
			}
			entries = append(entries, decodedEntry{name: decodeUTF16(units), isVolumeLabel: true})
			i += 32

		case EntryFile:
			fe, err := ParseFileEntry(dirBytes[i : i+32])
			if err != nil {
				i += 32
				continue
			}
			secondaryCount := int(fe.SecondaryCount)
			if secondaryCount < 2 || i+32*(secondaryCount+1) > len(dirBytes) {
				i += 32
				continue
			}

			streamOffset := i + 32
			if dirBytes[streamOffset] != byte(EntryStreamExtension) {
				i += 32
				continue
			}
			se, err := ParseStreamExtensionEntry(dirBytes[streamOffset : streamOffset+32])
			if err != nil {
				i += 32
				continue
			}

			var units []uint16
			nameLength := int(se.NameLength)
			for j := 2; j <= secondaryCount; j++ {
				nameOffset := i + 32*j
				if dirBytes[nameOffset] != byte(EntryFileName) {
					break
				}
				fne, err := ParseFileNameEntry(dirBytes[nameOffset : nameOffset+32])
				if err != nil {
					break
				}
				for _, c := range fne.Chars {
					if c == 0 || len(units) >= nameLength {
						break
					}
					units = append(units, c)
				}
			}

			entries = append(entries, decodedEntry{
				name:         decodeUTF16(units),
				attributes:   fe.Attributes,
				size:         se.DataLength,
				firstCluster: se.FirstCluster,
				contiguous:   se.NoFATChain(),
			})
			if len(entries) > security.MaxDirEntries {
				return nil, coreerr.LimitExceededf("exfat: directory exceeds %d entries", security.MaxDirEntries)
			}
			i += 32 * (secondaryCount + 1)

		default:
			i += 32
		}
	}

	return entries, nil
}

func decodeUTF16(units []uint16) string {
	if len(units) == 0 {
		return ""
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

func splitPath(path string) []string {
	var parts []string
	for _, p := range strings.FieldsFunc(path, func(r rune) bool { return r == '/' || r == '\\' }) {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

func findInDirectory(entries []decodedEntry, name string) (*decodedEntry, error) {
	for i := range entries {
		if !entries[i].isVolumeLabel && strings.EqualFold(entries[i].name, name) {
			return &entries[i], nil
		}
	}
	return nil, coreerr.NotFoundf("exfat: path component not found: %s", name)
}

func (t *Territory) resolveDirectory(path string) ([]decodedEntry, error) {
	parts := splitPath(path)
	entries, err := t.readRootDirectory()
	if err != nil {
		return nil, err
	}
	for _, part := range parts {
		entry, err := findInDirectory(entries, part)
		if err != nil {
			return nil, err
		}
		if !entry.attributes.IsDirectory() {
			return nil, coreerr.NotFoundf("exfat: not a directory: %s", part)
		}
		entries, err = t.readDirectoryAtCluster(entry.firstCluster)
		if err != nil {
			return nil, err
		}
	}
	return entries, nil
}

func (t *Territory) resolveFile(path string) (*decodedEntry, error) {
	parts := splitPath(path)
	if len(parts) == 0 {
		return nil, coreerr.NotFoundf("exfat: empty path")
	}
	dirParts, fileName := parts[:len(parts)-1], parts[len(parts)-1]
	entries, err := t.resolveDirectory(strings.Join(dirParts, "/"))
	if err != nil {
		return nil, err
	}
	return findInDirectory(entries, fileName)
}

func (t *Territory) readFileData(entry *decodedEntry) ([]byte, error) {
	if entry.firstCluster == 0 || entry.size == 0 {
		return nil, nil
	}
	if entry.size > security.MaxFileExtract {
		return nil, coreerr.LimitExceededf("exfat: file size %d exceeds extraction limit %d", entry.size, security.MaxFileExtract)
	}
	return t.readClusterChain(entry.firstCluster, entry.contiguous, entry.size)
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
		if e.isVolumeLabel {
			continue
		}
		out = append(out, e.occupantInfo())
	}
	return out, nil
}

func (c *DirectoryCell) Enter(name string) (*DirectoryCell, error) {
	entries, err := c.t.resolveDirectory(c.path)
	if err != nil {
		return nil, err
	}
	entry, err := findInDirectory(entries, name)
	if err != nil {
		return nil, err
	}
	if !entry.attributes.IsDirectory() {
		return nil, coreerr.NotFoundf("exfat: not a directory: %s", name)
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
	if entry.attributes.IsDirectory() {
		return nil, coreerr.NotFoundf("exfat: path is a directory: %s", path)
	}
	return t.readFileData(entry)
}
