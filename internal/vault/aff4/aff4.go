package aff4

import (
	"archive/zip"
	"bytes"
	"compress/zlib"
	"fmt"
	"io"
	"strings"

	"github.com/forensiccore/diskvault/internal/coreerr"
	"github.com/forensiccore/diskvault/internal/security"
	"github.com/forensiccore/diskvault/internal/stream"
	"github.com/golang/snappy"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/klauspost/compress/flate"
	"github.com/pierrec/lz4/v4"
)

const chunkCacheSize = 100

// TurtleMember is the well-known metadata member name every AFF4
// container carries, per spec.md §4.3/§6.2.
const TurtleMember = "information.turtle"

// Vault is a Vault implementation over an AFF4 ZIP container.
type Vault struct {
	archive    *zip.ReadCloser
	stream     ImageStream
	zipPrefix  string
	bevyIndex  map[int][]BevyIndexEntry
	chunkCache *lru.Cache[int, []byte]
}

// Open opens path as an AFF4 vault: parses information.turtle to locate
// the primary aff4:ImageStream entity and its size/chunking/compression
// attributes.
func Open(path string) (*Vault, error) {
	archive, err := zip.OpenReader(path)
	if err != nil {
		return nil, coreerr.InvalidFormatf("aff4: opening zip container: %v", err)
	}

	img, err := parseImageStream(archive)
	if err != nil {
		archive.Close()
		return nil, err
	}

	cache, err := lru.New[int, []byte](chunkCacheSize)
	if err != nil {
		archive.Close()
		return nil, coreerr.IOf(err, "aff4: constructing chunk cache")
	}

	return &Vault{
		archive:    archive,
		stream:     img,
		zipPrefix:  streamZipPrefix(img.URN),
		bevyIndex:  make(map[int][]BevyIndexEntry),
		chunkCache: cache,
	}, nil
}

// streamZipPrefix converts an AFF4 URN to the ZIP member path prefix
// producers use for its bevy segments: "aff4://" becomes "aff4%3A//" and
// any remaining ":" becomes "%3A", per the AFF4 ZIP-packaging convention.
func streamZipPrefix(urn string) string {
	p := strings.Replace(urn, "aff4://", "aff4%3A//", 1)
	return strings.ReplaceAll(p, ":", "%3A")
}

func parseImageStream(archive *zip.ReadCloser) (ImageStream, error) {
	f, err := archive.Open(TurtleMember)
	if err != nil {
		return ImageStream{}, coreerr.InvalidFormatf("aff4: missing %s member", TurtleMember)
	}
	defer f.Close()

	content, err := io.ReadAll(io.LimitReader(f, security.MaxAllocation))
	if err != nil {
		return ImageStream{}, coreerr.Truncatedf("aff4: reading %s: %v", TurtleMember, err)
	}
	statements := ParseTurtle(string(content))

	streams := map[string]*ImageStream{}
	for _, s := range statements {
		switch {
		case strings.Contains(s.Predicate, "type") && strings.Contains(s.Object, "ImageStream"):
			ensureStream(streams, s.Subject)
		case strings.Contains(s.Predicate, "size"):
			ensureStream(streams, s.Subject).Size = ParseUintObject(s.Object)
		case strings.Contains(s.Predicate, "chunkSize"):
			ensureStream(streams, s.Subject).ChunkSize = ParseUint32Object(s.Object, 32768)
		case strings.Contains(s.Predicate, "chunksInSegment"):
			ensureStream(streams, s.Subject).ChunksInSegment = ParseUint32Object(s.Object, 2048)
		case strings.Contains(s.Predicate, "compressionMethod"):
			ensureStream(streams, s.Subject).Compression = ParseCompressionURI(s.Object)
		}
	}

	for _, img := range streams {
		if img.URN != "" {
			if img.ChunkSize == 0 {
				img.ChunkSize = 32768
			}
			if img.ChunksInSegment == 0 {
				img.ChunksInSegment = 2048
			}
			return *img, nil
		}
	}
	return ImageStream{}, coreerr.InvalidFormatf("aff4: no aff4:ImageStream entity found in metadata")
}

func ensureStream(streams map[string]*ImageStream, subject string) *ImageStream {
	s, ok := streams[subject]
	if !ok {
		s = &ImageStream{URN: subject, Compression: CompressionDeflate}
		streams[subject] = s
	}
	return s
}

func (v *Vault) Identify() string { return "AFF4" }

func (v *Vault) Length() uint64 { return v.stream.Size }

func (v *Vault) Stream() (stream.Stream, error) {
	return &aff4Stream{v: v}, nil
}

func (v *Vault) Close() error {
	return v.archive.Close()
}

func (v *Vault) bevyIndexFor(bevy int) ([]BevyIndexEntry, error) {
	if idx, ok := v.bevyIndex[bevy]; ok {
		return idx, nil
	}
	name := fmt.Sprintf("%s/bevy_%08d.index", v.zipPrefix, bevy)
	f, err := v.archive.Open(name)
	if err != nil {
		return nil, coreerr.InvalidFormatf("aff4: missing bevy index %q: %v", name, err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, security.MaxAllocation))
	if err != nil {
		return nil, coreerr.Truncatedf("aff4: reading bevy index %q: %v", name, err)
	}
	entries, err := ParseBevyIndex(data)
	if err != nil {
		return nil, err
	}
	v.bevyIndex[bevy] = entries
	return entries, nil
}

// chunkKey packs (bevy, chunk-in-bevy) into the LRU cache's key space.
// chunksInSegment is bounded well under 2^32 by any real AFF4 producer,
// so this never collides across bevies.
func chunkKey(bevy, chunkInBevy int, chunksPerBevy uint32) int {
	return bevy*int(chunksPerBevy) + chunkInBevy
}

func (v *Vault) readChunk(globalChunkIndex int) ([]byte, error) {
	chunksPerBevy := int(v.stream.ChunksInSegment)
	bevy := globalChunkIndex / chunksPerBevy
	chunkInBevy := globalChunkIndex % chunksPerBevy

	key := chunkKey(bevy, chunkInBevy, v.stream.ChunksInSegment)
	if cached, ok := v.chunkCache.Get(key); ok {
		return cached, nil
	}

	idx, err := v.bevyIndexFor(bevy)
	if err != nil {
		return nil, err
	}
	if chunkInBevy < 0 || chunkInBevy >= len(idx) {
		return nil, coreerr.InvalidFormatf("aff4: chunk %d out of range for bevy %d (%d entries)", globalChunkIndex, bevy, len(idx))
	}
	entry := idx[chunkInBevy]

	segName := fmt.Sprintf("%s/bevy_%08d", v.zipPrefix, bevy)
	segFile, err := v.archive.Open(segName)
	if err != nil {
		return nil, coreerr.InvalidFormatf("aff4: missing bevy segment %q: %v", segName, err)
	}
	defer segFile.Close()

	segEnd, err := security.CheckedAddU64(entry.Offset, uint64(entry.Length))
	if err != nil {
		return nil, err
	}
	segLen, err := security.ValidateAllocation(segEnd, security.MaxAllocation, "aff4 bevy segment read")
	if err != nil {
		return nil, err
	}
	segBuf := make([]byte, segLen)
	if _, err := io.ReadFull(segFile, segBuf); err != nil {
		return nil, coreerr.Truncatedf("aff4: reading bevy segment %q: %v", segName, err)
	}

	compressed := segBuf[entry.Offset : entry.Offset+uint64(entry.Length)]
	decompressed, err := decompress(v.stream.Compression, compressed, int(v.stream.ChunkSize))
	if err != nil {
		return nil, err
	}

	v.chunkCache.Add(key, decompressed)
	return decompressed, nil
}

// decompress dispatches on method, failing fatally (never zero-filling)
// when a recognized codec's decompression fails, and returning
// Unsupported for a codec this vault does not implement.
func decompress(method Compression, compressed []byte, chunkSize int) ([]byte, error) {
	switch method {
	case CompressionNone:
		return compressed, nil
	case CompressionDeflate:
		r := flate.NewReader(bytes.NewReader(compressed))
		defer r.Close()
		data, err := io.ReadAll(r)
		if err != nil {
			if zr, zerr := zlib.NewReader(bytes.NewReader(compressed)); zerr == nil {
				defer zr.Close()
				if data2, err2 := io.ReadAll(zr); err2 == nil {
					return data2, nil
				}
			}
			return nil, coreerr.InvalidFormatf("aff4: deflate decompression: %v", err)
		}
		return data, nil
	case CompressionSnappy:
		data, err := snappy.Decode(nil, compressed)
		if err != nil {
			return nil, coreerr.InvalidFormatf("aff4: snappy decompression: %v", err)
		}
		return data, nil
	case CompressionLZ4:
		out := make([]byte, 0, chunkSize)
		buf := make([]byte, chunkSize)
		n, err := lz4.UncompressBlock(compressed, buf)
		if err != nil {
			return nil, coreerr.InvalidFormatf("aff4: lz4 decompression: %v", err)
		}
		out = append(out, buf[:n]...)
		return out, nil
	default:
		return nil, coreerr.Unsupportedf("aff4: compression method %v", method)
	}
}

// aff4Stream implements stream.Stream over a Vault, giving each caller of
// Stream() its own read position, matching e01's per-caller view.
type aff4Stream struct {
	v   *Vault
	pos uint64
}

func (s *aff4Stream) Length() uint64 { return s.v.Length() }

func (s *aff4Stream) Read(p []byte) (int, error) {
	if s.pos >= s.v.Length() {
		return 0, io.EOF
	}
	remaining := s.v.Length() - s.pos
	if uint64(len(p)) > remaining {
		p = p[:remaining]
	}
	chunkSize := uint64(s.v.stream.ChunkSize)
	if chunkSize == 0 {
		return 0, coreerr.InvalidFormatf("aff4: zero chunk size")
	}

	total := 0
	for len(p) > 0 {
		chunkIndex := int(s.pos / chunkSize)
		chunkOffset := s.pos % chunkSize
		data, err := s.v.readChunk(chunkIndex)
		if err != nil {
			return total, err
		}
		if chunkOffset >= uint64(len(data)) {
			break
		}
		n := copy(p, data[chunkOffset:])
		p = p[n:]
		s.pos += uint64(n)
		total += n
	}
	return total, nil
}

func (s *aff4Stream) Seek(offset int64, whence int) (int64, error) {
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
		return 0, coreerr.InvalidFormatf("seek outside aff4 bounds: %d", newPos)
	}
	s.pos = uint64(newPos)
	return newPos, nil
}

// IsAFF4Container reports whether path names a valid ZIP archive
// containing an information.turtle member, the AFF4 detection probe.
func IsAFF4Container(path string) bool {
	r, err := zip.OpenReader(path)
	if err != nil {
		return false
	}
	defer r.Close()
	for _, f := range r.File {
		if f.Name == TurtleMember {
			return true
		}
	}
	return false
}
