// Package vhd implements the Vault contract for Virtio/Connectix VHD
// images: Fixed (a plain windowed stream), Dynamic (block-indirect via a
// Block Allocation Table), and Differencing (Dynamic plus a recursively
// resolved parent chain).
package vhd

import (
	"io"
	"os"
	"path/filepath"

	"github.com/forensiccore/diskvault/internal/coreerr"
	"github.com/forensiccore/diskvault/internal/security"
	"github.com/forensiccore/diskvault/internal/stream"
)

// nestedVault is the minimal surface vhd needs from a parent (or any
// vault) it opens recursively, kept local to avoid an import cycle with
// the top-level vault package, which is the one that constructs vhd
// vaults in the first place.
type nestedVault = interface {
	Stream() (stream.Stream, error)
	Length() uint64
	Close() error
}

// OpenNested is set by the top-level vault package to the full
// format-detection factory, so a differencing VHD's parent can be any
// supported vault type, not just another VHD. It defaults to opening the
// parent as another VHD, which covers the common case and keeps this
// package usable standalone.
var OpenNested func(path string, cfg Config) (nestedVault, error)

func init() {
	OpenNested = openStandalone
}

// Config controls how a VHD vault is opened.
type Config struct {
	UseMmap    bool
	ParentDirs []string // search paths for differencing-disk parent locators
	depth      int
}

// Vault is a Vault implementation over a VHD image.
type Vault struct {
	f       *os.File
	closer  io.Closer
	footer  *Footer
	dynamic *DynamicHeader
	bat     []uint32
	backing stream.Stream
	parent  nestedVault
	fixed   *stream.Windowed
}

func readAt(f *os.File, off int64, n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := f.ReadAt(buf, off); err != nil {
		return nil, coreerr.IOf(err, "vhd: read at %d", off)
	}
	return buf, nil
}

// Open opens path as a VHD vault, dispatching on the footer's disk_type.
func Open(path string, cfg Config) (*Vault, error) {
	if cfg.depth > security.MaxParentChainDepth {
		return nil, coreerr.LimitExceededf("vhd differencing parent chain exceeds depth %d", security.MaxParentChainDepth)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, coreerr.IOf(err, "stat vhd file")
	}
	if info.Size() < footerSize {
		f.Close()
		return nil, coreerr.Truncatedf("vhd file smaller than footer")
	}

	footerBytes, err := readAt(f, info.Size()-footerSize, footerSize)
	if err != nil {
		f.Close()
		return nil, err
	}
	footer, err := ParseFooter(footerBytes)
	if err != nil {
		f.Close()
		return nil, err
	}

	backing, closer, err := stream.Open(f, cfg.UseMmap)
	if err != nil {
		f.Close()
		return nil, err
	}

	v := &Vault{f: f, closer: closer, footer: footer, backing: backing}

	switch footer.DiskType {
	case DiskTypeFixed:
		w, err := stream.NewWindow(backing, 0, uint64(info.Size())-footerSize)
		if err != nil {
			f.Close()
			return nil, err
		}
		v.fixed = w
		return v, nil

	case DiskTypeDynamic, DiskTypeDifferencing:
		dynBytes, err := readAt(f, int64(footer.DataOffset), dynamicHeaderSize)
		if err != nil {
			f.Close()
			return nil, err
		}
		dyn, err := ParseDynamicHeader(dynBytes)
		if err != nil {
			f.Close()
			return nil, err
		}
		v.dynamic = dyn

		batSize, err := security.ValidateAllocation(uint64(dyn.MaxTableEntries)*4, security.MaxAllocation, "vhd BAT")
		if err != nil {
			f.Close()
			return nil, err
		}
		batBytes, err := readAt(f, int64(dyn.TableOffset), batSize)
		if err != nil {
			f.Close()
			return nil, err
		}
		bat := make([]uint32, dyn.MaxTableEntries)
		for i := range bat {
			bat[i] = beUint32(batBytes[i*4 : i*4+4])
		}
		v.bat = bat

		if footer.DiskType == DiskTypeDifferencing {
			parent, err := resolveParent(dyn, path, cfg)
			if err != nil {
				f.Close()
				return nil, err
			}
			v.parent = parent
		}
		return v, nil

	default:
		f.Close()
		return nil, coreerr.InvalidFormatf("vhd: unsupported disk type %d", footer.DiskType)
	}
}

// openStandalone is the default OpenNested implementation: treat the
// parent as another VHD file.
func openStandalone(path string, cfg Config) (nestedVault, error) {
	return Open(path, cfg)
}

func resolveParent(dyn *DynamicHeader, childPath string, cfg Config) (nestedVault, error) {
	dirs := append([]string{filepath.Dir(childPath)}, cfg.ParentDirs...)
	for _, loc := range dyn.ParentLocators {
		if !loc.IsValid() {
			continue
		}
		name := parentLocatorFilename(loc, dyn)
		if name == "" {
			continue
		}
		for _, dir := range dirs {
			candidate := filepath.Join(dir, filepath.Base(name))
			if _, err := os.Stat(candidate); err != nil {
				continue
			}
			childCfg := cfg
			childCfg.depth = cfg.depth + 1
			return OpenNested(candidate, childCfg)
		}
	}
	return nil, coreerr.Unsupportedf("vhd differencing: no resolvable parent locator")
}

// parentLocatorFilename returns the filename to search cfg.ParentDirs for
// while resolving loc: the dynamic header's parent unicode name. The
// locator entry's own platform data (the UTF-16LE path that "W2ku"/"W2ru"
// locators store) is not decoded.
func parentLocatorFilename(loc ParentLocatorEntry, dyn *DynamicHeader) string {
	name := dyn.ParentName()
	if name != "" {
		return name
	}
	return ""
}

func beUint32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

func (v *Vault) Identify() string {
	return v.footer.DiskType.String()
}

func (v *Vault) Length() uint64 {
	return v.footer.CurrentSize
}

func (v *Vault) Stream() (stream.Stream, error) {
	if v.fixed != nil {
		return stream.NewWindow(v.backing, 0, v.Length())
	}
	return &blockPipeline{v: v}, nil
}

func (v *Vault) Close() error {
	if v.closer != nil {
		_ = v.closer.Close()
	}
	if v.parent != nil {
		_ = v.parent.Close()
	}
	return v.f.Close()
}

// bitmapSectors returns the number of 512-byte sectors occupied by the
// per-block allocation bitmap that precedes block data.
func (v *Vault) bitmapSectors() uint64 {
	sectorsPerBlock := uint64(v.dynamic.BlockSize) / 512
	bitmapBytes := (sectorsPerBlock + 7) / 8
	return (bitmapBytes + 511) / 512
}

// blockPipeline implements stream.Stream over a Dynamic or Differencing
// VHD, translating virtual offsets through the Block Allocation Table.
type blockPipeline struct {
	v   *Vault
	pos uint64
}

func (b *blockPipeline) Length() uint64 { return b.v.Length() }

func (b *blockPipeline) Seek(offset int64, whence int) (int64, error) {
	var newPos int64
	switch whence {
	case io.SeekStart:
		newPos = offset
	case io.SeekCurrent:
		newPos = int64(b.pos) + offset
	case io.SeekEnd:
		newPos = int64(b.v.Length()) + offset
	default:
		return 0, coreerr.InvalidFormatf("invalid seek whence %d", whence)
	}
	if newPos < 0 || uint64(newPos) > b.v.Length() {
		return 0, coreerr.InvalidFormatf("seek outside vhd bounds: %d", newPos)
	}
	b.pos = uint64(newPos)
	return newPos, nil
}

func (b *blockPipeline) Read(p []byte) (int, error) {
	if b.pos >= b.v.Length() {
		return 0, io.EOF
	}
	remaining := b.v.Length() - b.pos
	if uint64(len(p)) > remaining {
		p = p[:remaining]
	}
	total := 0
	for len(p) > 0 {
		blockSize := uint64(b.v.dynamic.BlockSize)
		blockIndex := b.pos / blockSize
		blockOffset := b.pos % blockSize
		if int(blockIndex) >= len(b.v.bat) {
			return total, coreerr.InvalidFormatf("vhd: block index %d out of range", blockIndex)
		}
		n := blockSize - blockOffset
		if uint64(len(p)) < n {
			n = uint64(len(p))
		}

		entry := b.v.bat[blockIndex]
		chunk := p[:n]
		if entry == 0xFFFFFFFF {
			if b.v.parent != nil {
				pr, err := b.v.parent.Stream()
				if err != nil {
					return total, err
				}
				if _, err := pr.Seek(int64(b.pos), io.SeekStart); err != nil {
					return total, err
				}
				if _, err := io.ReadFull(pr, chunk); err != nil {
					return total, coreerr.IOf(err, "vhd: reading unallocated block from parent")
				}
			} else {
				for i := range chunk {
					chunk[i] = 0
				}
			}
		} else {
			physOffset := uint64(entry)*512 + b.v.bitmapSectors()*512 + blockOffset
			data, err := readAt(b.v.f, int64(physOffset), int(n))
			if err != nil {
				return total, err
			}
			copy(chunk, data)
		}

		p = p[n:]
		b.pos += n
		total += int(n)
	}
	return total, nil
}
