// Package ntfs adapts github.com/Velocidex/go-ntfs's MFT parser to this
// stack's Territory/DirectoryCell contract: unset (zero) timestamps
// mapped to nil, and MAX_FILE_EXTRACT/MAX_DIR_ENTRIES enforcement at the
// wrapper boundary, since the underlying library imposes neither.
package ntfs

import (
	"io"
	"strings"
	"time"

	gontfs "github.com/Velocidex/go-ntfs/parser"

	"github.com/forensiccore/diskvault/internal/coreerr"
	"github.com/forensiccore/diskvault/internal/model"
	"github.com/forensiccore/diskvault/internal/security"
	"github.com/forensiccore/diskvault/internal/stream"
)

// rootMFTID is the well-known MFT record number of the volume's root
// directory, fixed by the NTFS on-disk format.
const rootMFTID = 5

// readerAt adapts a stream.Stream to io.ReaderAt, the interface
// go-ntfs's context reads through (it seeks freely across the MFT and
// data runs, so a plain io.Reader would not do).
type readerAt struct {
	s stream.Stream
}

func (r *readerAt) ReadAt(p []byte, off int64) (int, error) {
	if _, err := r.s.Seek(off, io.SeekStart); err != nil {
		return 0, err
	}
	return io.ReadFull(r.s, p)
}

// Territory is a Territory implementation over an NTFS volume,
// delegating MFT and attribute decoding to go-ntfs.
type Territory struct {
	ctx *gontfs.NTFSContext
}

// Parse opens s as an NTFS volume: validates the boot sector via
// go-ntfs's own context constructor, which itself checks the "NTFS "
// OEM signature before building cluster/MFT geometry.
func Parse(s stream.Stream) (*Territory, error) {
	ctx, err := gontfs.GetNTFSContext(&readerAt{s: s}, 0)
	if err != nil {
		return nil, coreerr.InvalidFormatf("ntfs: %v", err)
	}
	return &Territory{ctx: ctx}, nil
}

func (t *Territory) Identify() string { return "NTFS" }

func (t *Territory) Label() (string, error) {
	root, err := t.ctx.GetMFT(rootMFTID)
	if err != nil {
		return "", coreerr.InvalidFormatf("ntfs: reading root MFT entry: %v", err)
	}
	return root.VolumeName(t.ctx), nil
}

func (t *Territory) TotalSize() uint64 {
	return uint64(t.ctx.Boot.Sector_size()) * uint64(t.ctx.Boot.VolumeSize())
}

func (t *Territory) FreeSize() uint64 { return 0 }

// filetimeToTime returns nil for a zero (unset) timestamp and &ft
// otherwise; go-ntfs has already converted the on-disk FILETIME to ft.
func filetimeToTime(ft time.Time) *time.Time {
	if ft.IsZero() {
		return nil
	}
	return &ft
}

func occupantInfo(fi *gontfs.FileInfo) model.OccupantInfo {
	created := filetimeToTime(fi.Btime)
	modified := filetimeToTime(fi.Mtime)
	accessed := filetimeToTime(fi.Atime)
	return model.OccupantInfo{
		Name:     fi.Name,
		IsDir:    fi.IsDir,
		Size:     uint64(fi.Size),
		Created:  created,
		Modified: modified,
		Accessed: accessed,
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

func (t *Territory) listChildren(mftID int64) ([]*gontfs.FileInfo, error) {
	entry, err := t.ctx.GetMFT(mftID)
	if err != nil {
		return nil, coreerr.NotFoundf("ntfs: reading MFT entry %d: %v", mftID, err)
	}
	children := gontfs.ListDir(t.ctx, entry)
	if len(children) > security.MaxDirEntries {
		return children[:security.MaxDirEntries], coreerr.LimitExceededf("ntfs: directory exceeds %d entries", security.MaxDirEntries)
	}
	return children, nil
}

func findChild(children []*gontfs.FileInfo, name string) (*gontfs.FileInfo, error) {
	for _, c := range children {
		if strings.EqualFold(c.Name, name) {
			return c, nil
		}
	}
	return nil, coreerr.NotFoundf("ntfs: path component not found: %s", name)
}

func (t *Territory) resolveChildren(path string) ([]*gontfs.FileInfo, error) {
	mftID := int64(rootMFTID)
	children, err := t.listChildren(mftID)
	if err != nil {
		return nil, err
	}
	for _, part := range splitPath(path) {
		entry, err := findChild(children, part)
		if err != nil {
			return nil, err
		}
		if !entry.IsDir {
			return nil, coreerr.NotFoundf("ntfs: not a directory: %s", part)
		}
		id, _, _, _, err := gontfs.ParseMFTId(entry.MFTId)
		if err != nil {
			return nil, coreerr.InvalidFormatf("ntfs: parsing MFT reference %q: %v", entry.MFTId, err)
		}
		children, err = t.listChildren(id)
		if err != nil {
			return nil, err
		}
	}
	return children, nil
}

func (t *Territory) resolveFile(path string) (*gontfs.FileInfo, error) {
	parts := splitPath(path)
	if len(parts) == 0 {
		return nil, coreerr.NotFoundf("ntfs: empty path")
	}
	dirParts, fileName := parts[:len(parts)-1], parts[len(parts)-1]
	children, err := t.resolveChildren(strings.Join(dirParts, "/"))
	if err != nil {
		return nil, err
	}
	return findChild(children, fileName)
}

func (t *Territory) readFileData(fi *gontfs.FileInfo) ([]byte, error) {
	if fi.Size == 0 {
		return nil, nil
	}
	if uint64(fi.Size) > security.MaxFileExtract {
		return nil, coreerr.LimitExceededf("ntfs: file size %d exceeds extraction limit %d", fi.Size, security.MaxFileExtract)
	}
	id, _, _, _, err := gontfs.ParseMFTId(fi.MFTId)
	if err != nil {
		return nil, coreerr.InvalidFormatf("ntfs: parsing MFT reference %q: %v", fi.MFTId, err)
	}
	entry, err := t.ctx.GetMFT(id)
	if err != nil {
		return nil, coreerr.NotFoundf("ntfs: reading MFT entry %d: %v", id, err)
	}
	reader, err := gontfs.OpenStream(t.ctx, entry, gontfs.ATTR_TYPE_DATA, gontfs.WILDCARD_STREAM_ID, "")
	if err != nil {
		return nil, coreerr.IOf(err, "ntfs: opening $DATA stream for MFT entry %d", id)
	}
	data := make([]byte, fi.Size)
	if _, err := reader.ReadAt(data, 0); err != nil && err != io.EOF {
		return nil, coreerr.IOf(err, "ntfs: reading $DATA stream for MFT entry %d", id)
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
	children, err := c.t.resolveChildren(c.path)
	if err != nil {
		return nil, err
	}
	out := make([]model.OccupantInfo, 0, len(children))
	for _, fi := range children {
		out = append(out, occupantInfo(fi))
	}
	return out, nil
}

func (c *DirectoryCell) Enter(name string) (*DirectoryCell, error) {
	children, err := c.t.resolveChildren(c.path)
	if err != nil {
		return nil, err
	}
	entry, err := findChild(children, name)
	if err != nil {
		return nil, err
	}
	if !entry.IsDir {
		return nil, coreerr.NotFoundf("ntfs: not a directory: %s", name)
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
	if _, err := t.resolveChildren(path); err != nil {
		return nil, err
	}
	name := "/"
	if parts := splitPath(path); len(parts) > 0 {
		name = parts[len(parts)-1]
	}
	return &DirectoryCell{t: t, name: name, path: path}, nil
}

// Extract reads a regular file's full $DATA contents by path.
func (t *Territory) Extract(path string) ([]byte, error) {
	entry, err := t.resolveFile(path)
	if err != nil {
		return nil, err
	}
	if entry.IsDir {
		return nil, coreerr.NotFoundf("ntfs: path is a directory: %s", path)
	}
	return t.readFileData(entry)
}
