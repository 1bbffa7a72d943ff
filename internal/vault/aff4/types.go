// Package aff4 implements the Vault contract for AFF4 (Advanced Forensic
// Format 4) images: a ZIP container carrying an RDF/Turtle metadata
// member plus one or more bevy-segmented, optionally compressed image
// streams.
package aff4

import (
	"strconv"
	"strings"

	"github.com/forensiccore/diskvault/internal/coreerr"
)

// Compression identifies the codec a stream's chunks were compressed
// with, per its aff4:compressionMethod statement.
type Compression int

const (
	CompressionNone Compression = iota
	CompressionDeflate
	CompressionSnappy
	CompressionLZ4
	CompressionUnsupported
)

// ParseCompressionURI maps an aff4:compressionMethod object (a URI naming
// a compressor class) to a Compression value.
func ParseCompressionURI(uri string) Compression {
	switch {
	case strings.Contains(uri, "NullCompressor") || strings.Contains(uri, "stored"):
		return CompressionNone
	case strings.Contains(uri, "DeflateCompressor") || strings.Contains(uri, "deflate"):
		return CompressionDeflate
	case strings.Contains(uri, "SnappyCompressor") || strings.Contains(uri, "snappy"):
		return CompressionSnappy
	case strings.Contains(uri, "Lz4Compressor") || strings.Contains(uri, "lz4"):
		return CompressionLZ4
	default:
		return CompressionUnsupported
	}
}

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "stored"
	case CompressionDeflate:
		return "deflate"
	case CompressionSnappy:
		return "snappy"
	case CompressionLZ4:
		return "lz4"
	default:
		return "unsupported"
	}
}

// ImageStream is the subset of aff4:ImageStream metadata the vault needs
// to translate virtual offsets into bevy/chunk coordinates.
type ImageStream struct {
	URN             string
	Size            uint64
	ChunkSize       uint32
	ChunksInSegment uint32
	Compression     Compression
}

// Statement is one parsed RDF triple from information.turtle.
type Statement struct {
	Subject   string
	Predicate string
	Object    string
}

// ParseTurtle parses a small, line-oriented subset of Turtle syntax
// sufficient for AFF4 metadata: @prefix declarations, <...>/"..."/
// prefix:local terms, and one triple per line terminated by ".". Subjects
// may be omitted and carry over from the previous line's subject, the
// common AFF4-producer convention of grouping a subject's statements.
func ParseTurtle(content string) []Statement {
	var statements []Statement
	var prefixes [][2]string
	currentSubject := ""

	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "@prefix") {
			if prefix, uri, ok := parsePrefix(line); ok {
				prefixes = append(prefixes, [2]string{prefix, uri})
			}
			continue
		}

		line = strings.TrimSuffix(strings.TrimSpace(line), ".")
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}

		var subject string
		predIdx := 0
		if strings.HasPrefix(parts[0], "<") || strings.Contains(parts[0], ":") {
			subject = expandTerm(parts[0], prefixes)
			predIdx = 1
		} else {
			subject = currentSubject
		}
		if len(parts) <= predIdx+1 {
			continue
		}

		predicate := expandTerm(parts[predIdx], prefixes)
		object := expandTerm(strings.Join(parts[predIdx+1:], " "), prefixes)

		if subject != "" {
			currentSubject = subject
		}
		statements = append(statements, Statement{Subject: subject, Predicate: predicate, Object: object})
	}

	return statements
}

func parsePrefix(line string) (prefix, uri string, ok bool) {
	parts := strings.Fields(line)
	if len(parts) < 3 {
		return "", "", false
	}
	prefix = strings.TrimSuffix(parts[1], ":")
	uri = strings.TrimSuffix(strings.TrimPrefix(parts[2], "<"), ">")
	return prefix, uri, true
}

func expandTerm(term string, prefixes [][2]string) string {
	if strings.HasPrefix(term, "<") && strings.HasSuffix(term, ">") {
		return term[1 : len(term)-1]
	}
	if strings.HasPrefix(term, `"`) {
		rest := term[1:]
		if end := strings.Index(rest, `"`); end >= 0 {
			return rest[:end]
		}
		return rest
	}
	if idx := strings.Index(term, ":"); idx >= 0 {
		prefix, local := term[:idx], term[idx+1:]
		for _, p := range prefixes {
			if p[0] == prefix {
				return p[1] + local
			}
		}
	}
	return term
}

// ParseUintObject parses a Turtle literal object (e.g. `"1024"` or a bare
// number) as a uint64, defaulting to 0 on failure rather than erroring —
// metadata that fails to parse as a number is metadata AFF4 producers
// sometimes omit, not a fatal format error.
func ParseUintObject(object string) uint64 {
	v, err := strconv.ParseUint(strings.TrimSpace(object), 10, 64)
	if err != nil {
		return 0
	}
	return v
}

// ParseUint32Object is the uint32 analogue of ParseUintObject.
func ParseUint32Object(object string, fallback uint32) uint32 {
	v, err := strconv.ParseUint(strings.TrimSpace(object), 10, 32)
	if err != nil {
		return fallback
	}
	return uint32(v)
}

const bevyIndexEntrySize = 12

// BevyIndexEntry locates one chunk's compressed bytes within its bevy
// segment.
type BevyIndexEntry struct {
	Offset uint64
	Length uint32
}

// ParseBevyIndex decodes a {stream}/bevy_NNNNNNNN.index member: a flat
// array of 12-byte (offset uint64 LE, length uint32 LE) records.
func ParseBevyIndex(data []byte) ([]BevyIndexEntry, error) {
	if len(data)%bevyIndexEntrySize != 0 {
		return nil, coreerr.Truncatedf("aff4: bevy index length %d not a multiple of %d", len(data), bevyIndexEntrySize)
	}
	count := len(data) / bevyIndexEntrySize
	entries := make([]BevyIndexEntry, count)
	for i := 0; i < count; i++ {
		base := i * bevyIndexEntrySize
		entries[i] = BevyIndexEntry{
			Offset: leU64(data[base : base+8]),
			Length: leU32(data[base+8 : base+12]),
		}
	}
	return entries, nil
}

func leU32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func leU64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v
}
