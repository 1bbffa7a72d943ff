package e01

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/forensiccore/diskvault/internal/coreerr"
	"github.com/forensiccore/diskvault/internal/security"
	"github.com/forensiccore/diskvault/internal/stream"
)

type chunkInfo struct {
	segment        int
	offset         uint64
	compressedSize uint32
	isCompressed   bool
}

// Vault is a Vault implementation over a chain of E01/EWF segment files
// (.E01, .E02, ...): a SectionNext terminal in one segment's section
// chain resumes parsing at the next segment's own section chain, per
// the EWF multi-segment format. The volume (media geometry) and hash
// sections are only expected in the first segment; chunk tables
// accumulate across every segment in chain order.
type Vault struct {
	segments   []*os.File
	header     *FileHeader
	volume     *VolumeSection
	chunks     []chunkInfo
	hash       *HashSection
	identifier string

	lastChunkIndex int
	lastChunkData  []byte
}

// segmentSuffixPattern matches a two-digit EWF segment extension
// (.E01-.E99 and the .S/.L variants); the two-letter continuation
// extensions (.EAA onward) do not match it.
var segmentSuffixPattern = regexp.MustCompile(`^\.[EeSsLl]\d\d$`)

// nextSegmentPath computes the sibling segment path following EWF's
// naming convention, given the current 1-based segment number and its
// actual path.
func nextSegmentPath(path string, segmentNum int) (string, bool) {
	if len(path) < 4 {
		return "", false
	}
	suffix := path[len(path)-4:]
	if !segmentSuffixPattern.MatchString(suffix) {
		return "", false
	}
	base := path[:len(path)-4]
	letter := suffix[1:2]
	next := segmentNum + 1
	if next <= 99 {
		return fmt.Sprintf("%s.%s%02d", base, letter, next), true
	}
	// Two-letter continuation: E100 -> .EAA, E101 -> .EAB, ...
	idx := next - 100
	if idx >= 26*26 {
		return "", false
	}
	letters := fmt.Sprintf("%c%c", 'A'+idx/26, 'A'+idx%26)
	if letter == strings.ToLower(letter) {
		letters = strings.ToLower(letters)
	}
	return fmt.Sprintf("%s.%s%s", base, letter, letters), true
}

// Open opens path and every sibling segment it chains to (.E02, .E03,
// ...) as a single E01 vault.
func Open(path string) (*Vault, error) {
	v := &Vault{lastChunkIndex: -1}

	segmentNum := 1
	nextPath := path
	for {
		f, err := os.Open(nextPath)
		if err != nil {
			if segmentNum == 1 {
				v.Close()
				return nil, err
			}
			break
		}
		v.segments = append(v.segments, f)

		done, err := v.parseSegment(f, len(v.segments)-1, segmentNum == 1)
		if err != nil {
			v.Close()
			return nil, err
		}
		if done {
			break
		}

		next, ok := nextSegmentPath(path, segmentNum)
		if !ok {
			break
		}
		nextPath = next
		segmentNum++
	}

	if v.volume == nil {
		v.Close()
		return nil, coreerr.InvalidFormatf("e01: missing volume section")
	}
	return v, nil
}

// parseSegment walks f's section chain, accumulating chunks tagged with
// segmentIndex. It returns done=true once a SectionDone terminal is
// reached (end of the whole image); SectionNext means this segment is
// exhausted but the image continues in the next file.
func (v *Vault) parseSegment(f *os.File, segmentIndex int, expectVolume bool) (done bool, err error) {
	headerBytes := make([]byte, fileHeaderSize)
	if _, err := io.ReadFull(f, headerBytes); err != nil {
		return false, coreerr.Truncatedf("e01: reading file header: %v", err)
	}
	header, err := ParseFileHeader(headerBytes)
	if err != nil {
		return false, err
	}
	if v.header == nil {
		v.header = header
	}

	var sectorsDataOffset, sectorsDataSize uint64
	haveSectors := false
	segmentChunksStart := len(v.chunks)

	sectionOffset := uint64(header.FieldsStart)
	for {
		if _, err := f.Seek(int64(sectionOffset), io.SeekStart); err != nil {
			break
		}
		descBytes := make([]byte, sectionDescriptorSize)
		if _, err := io.ReadFull(f, descBytes); err != nil {
			break
		}
		desc, err := ParseSectionDescriptor(descBytes)
		if err != nil {
			return false, err
		}

		dataOffset := sectionOffset + sectionDescriptorSize
		var dataSize uint64
		if desc.SectionSize > sectionDescriptorSize {
			dataSize = desc.SectionSize - sectionDescriptorSize
		}

		switch desc.Type {
		case SectionVolume, SectionDisk:
			if !expectVolume {
				break
			}
			n, err := security.ValidateAllocation(minU64(dataSize, 1024), security.MaxAllocation, "e01 volume section")
			if err != nil {
				return false, err
			}
			if _, err := f.Seek(int64(dataOffset), io.SeekStart); err != nil {
				return false, coreerr.IOf(err, "e01: seeking to volume section")
			}
			buf := make([]byte, n)
			if _, err := io.ReadFull(f, buf); err != nil {
				return false, coreerr.Truncatedf("e01: reading volume section: %v", err)
			}
			v.volume, err = ParseVolumeSection(buf)
			if err != nil {
				return false, err
			}

		case SectionSectors, SectionData:
			if !haveSectors {
				sectorsDataOffset, sectorsDataSize = dataOffset, dataSize
				haveSectors = true
			}

		case SectionTable, SectionTable2:
			n, err := security.ValidateAllocation(dataSize, security.MaxAllocation, "e01 table section")
			if err != nil {
				return false, err
			}
			if _, err := f.Seek(int64(dataOffset), io.SeekStart); err != nil {
				return false, coreerr.IOf(err, "e01: seeking to table section")
			}
			buf := make([]byte, n)
			if _, err := io.ReadFull(f, buf); err != nil {
				return false, coreerr.Truncatedf("e01: reading table section: %v", err)
			}
			entryCount := n / 4
			if len(v.chunks) == segmentChunksStart {
				for i := 0; i < entryCount; i++ {
					base := leU32(buf[i*4 : i*4+4])
					isCompressed := base&0x80000000 == 0
					offset := uint64(base & 0x7FFFFFFF)
					v.chunks = append(v.chunks, chunkInfo{segment: segmentIndex, offset: offset, isCompressed: isCompressed})
				}
			}

		case SectionHash:
			if v.hash == nil {
				buf := make([]byte, 20)
				if _, err := f.Seek(int64(dataOffset), io.SeekStart); err != nil {
					return false, coreerr.IOf(err, "e01: seeking to hash section")
				}
				if _, err := io.ReadFull(f, buf); err == nil {
					v.hash, _ = ParseHashSection(buf)
				}
			}

		case SectionDone:
			sectionOffset = 0
			done = true

		case SectionNext:
			sectionOffset = 0
		}

		if sectionOffset == 0 || desc.NextOffset == 0 || desc.NextOffset <= sectionOffset {
			break
		}
		sectionOffset = desc.NextOffset
	}

	if haveSectors {
		for i := segmentChunksStart; i < len(v.chunks); i++ {
			v.chunks[i].offset += sectorsDataOffset
		}
		for i := segmentChunksStart; i < len(v.chunks); i++ {
			var next uint64
			if i+1 < len(v.chunks) && v.chunks[i+1].segment == segmentIndex {
				next = v.chunks[i+1].offset
			} else {
				next = sectorsDataOffset + sectorsDataSize
			}
			size := next - v.chunks[i].offset
			if size > uint64(^uint32(0)) {
				size = uint64(^uint32(0))
			}
			v.chunks[i].compressedSize = uint32(size)
		}
	}

	return done, nil
}

func minU64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}

func (v *Vault) Identify() string { return "E01" }

func (v *Vault) Length() uint64 { return v.volume.MediaSize() }

// MD5Hex returns the acquisition-time MD5 hash, if the segment carried a
// hash section.
func (v *Vault) MD5Hex() (string, bool) {
	if v.hash == nil {
		return "", false
	}
	return v.hash.MD5Hex(), true
}

func (v *Vault) Stream() (stream.Stream, error) {
	return &e01Stream{v: v}, nil
}

func (v *Vault) Close() error {
	var firstErr error
	for _, f := range v.segments {
		if f == nil {
			continue
		}
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (v *Vault) decompressChunk(index int) ([]byte, error) {
	if index == v.lastChunkIndex {
		return v.lastChunkData, nil
	}
	if index < 0 || index >= len(v.chunks) {
		return nil, coreerr.InvalidFormatf("e01: chunk index %d out of range", index)
	}
	chunk := v.chunks[index]
	if chunk.segment < 0 || chunk.segment >= len(v.segments) {
		return nil, coreerr.InvalidFormatf("e01: chunk %d references unknown segment %d", index, chunk.segment)
	}
	f := v.segments[chunk.segment]

	compSize, err := security.ValidateAllocation(uint64(chunk.compressedSize), security.MaxAllocation, "e01 chunk")
	if err != nil {
		return nil, err
	}
	if _, err := f.Seek(int64(chunk.offset), io.SeekStart); err != nil {
		return nil, coreerr.IOf(err, "e01: seeking to chunk %d", index)
	}
	compressed := make([]byte, compSize)
	if _, err := io.ReadFull(f, compressed); err != nil {
		return nil, coreerr.Truncatedf("e01: reading chunk %d: %v", index, err)
	}

	var data []byte
	if chunk.isCompressed && len(compressed) > 0 {
		r, err := zlib.NewReader(bytes.NewReader(compressed))
		if err != nil {
			return nil, coreerr.InvalidFormatf("e01: chunk %d decompression: %v", index, err)
		}
		defer r.Close()
		data, err = io.ReadAll(r)
		if err != nil {
			return nil, coreerr.InvalidFormatf("e01: chunk %d decompression: %v", index, err)
		}
	} else {
		data = compressed
	}

	v.lastChunkIndex = index
	v.lastChunkData = data
	return data, nil
}

func (v *Vault) readAt(offset uint64, buf []byte) (int, error) {
	if offset >= v.Length() {
		return 0, io.EOF
	}
	chunkSize := uint64(v.volume.ChunkSize())
	if chunkSize == 0 {
		return 0, coreerr.InvalidFormatf("e01: zero chunk size")
	}
	total := 0
	for len(buf) > 0 && offset < v.Length() {
		chunkIndex := int(offset / chunkSize)
		chunkOffset := offset % chunkSize
		data, err := v.decompressChunk(chunkIndex)
		if err != nil {
			return total, err
		}
		if chunkOffset >= uint64(len(data)) {
			break
		}
		n := copy(buf, data[chunkOffset:])
		buf = buf[n:]
		offset += uint64(n)
		total += n
	}
	return total, nil
}

// e01Stream implements stream.Stream over a Vault, giving each caller of
// Stream() its own read position.
type e01Stream struct {
	v   *Vault
	pos uint64
}

func (s *e01Stream) Length() uint64 { return s.v.Length() }

func (s *e01Stream) Read(p []byte) (int, error) {
	n, err := s.v.readAt(s.pos, p)
	s.pos += uint64(n)
	return n, err
}

func (s *e01Stream) Seek(offset int64, whence int) (int64, error) {
	var newPos int64
	switch whence {
	case io.SeekStart:
		newPos = offset
	case io.SeekCurrent:
		newPos = int64(s.pos) + offset
	case io.SeekEnd:
		newPos = int64(s.v.Length()) + offset
	default:
		return 0, coreerr.InvalidFormatf("invalid seek whence %d", whence)
	}
	if newPos < 0 || uint64(newPos) > s.v.Length() {
		return 0, coreerr.InvalidFormatf("seek outside e01 bounds: %d", newPos)
	}
	s.pos = uint64(newPos)
	return newPos, nil
}
