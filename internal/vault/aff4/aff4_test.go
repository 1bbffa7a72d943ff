package aff4

import (
	"archive/zip"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const testTurtle = `@prefix aff4: <http://aff4.org/Schema#> .
<aff4://test-stream> aff4:type aff4:ImageStream .
<aff4://test-stream> aff4:size "20" .
<aff4://test-stream> aff4:chunkSize "10" .
<aff4://test-stream> aff4:chunksInSegment "2" .
<aff4://test-stream> aff4:compressionMethod <http://aff4.org/Schema#NullCompressor> .
`

// buildTestAFF4 writes a minimal two-chunk, uncompressed AFF4 container to
// a temp file and returns its path.
func buildTestAFF4(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "image.aff4")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)

	turtle, err := zw.Create(TurtleMember)
	require.NoError(t, err)
	_, err = io.WriteString(turtle, testTurtle)
	require.NoError(t, err)

	prefix := streamZipPrefix("aff4://test-stream")

	index, err := zw.Create(prefix + "/bevy_00000000.index")
	require.NoError(t, err)
	indexBuf := make([]byte, 2*bevyIndexEntrySize)
	binary.LittleEndian.PutUint64(indexBuf[0:8], 0)
	binary.LittleEndian.PutUint32(indexBuf[8:12], 10)
	binary.LittleEndian.PutUint64(indexBuf[12:20], 10)
	binary.LittleEndian.PutUint32(indexBuf[20:24], 10)
	_, err = index.Write(indexBuf)
	require.NoError(t, err)

	bevy, err := zw.Create(prefix + "/bevy_00000000")
	require.NoError(t, err)
	_, err = bevy.Write([]byte("AAAAAAAAAABBBBBBBBBB"))
	require.NoError(t, err)

	require.NoError(t, zw.Close())
	return path
}

func TestOpenAndReadFull(t *testing.T) {
	path := buildTestAFF4(t)

	v, err := Open(path)
	require.NoError(t, err)
	defer v.Close()

	require.Equal(t, "AFF4", v.Identify())
	require.Equal(t, uint64(20), v.Length())

	s, err := v.Stream()
	require.NoError(t, err)

	data, err := io.ReadAll(s)
	require.NoError(t, err)
	require.Equal(t, "AAAAAAAAAABBBBBBBBBB", string(data))
}

func TestStreamSeekAndPartialRead(t *testing.T) {
	path := buildTestAFF4(t)
	v, err := Open(path)
	require.NoError(t, err)
	defer v.Close()

	s, err := v.Stream()
	require.NoError(t, err)

	pos, err := s.Seek(10, io.SeekStart)
	require.NoError(t, err)
	require.Equal(t, int64(10), pos)

	buf := make([]byte, 5)
	n, err := s.Read(buf)
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.Equal(t, "BBBBB", string(buf))
}

func TestIsAFF4Container(t *testing.T) {
	path := buildTestAFF4(t)
	require.True(t, IsAFF4Container(path))

	notAFF4 := filepath.Join(t.TempDir(), "plain.zip")
	f, err := os.Create(notAFF4)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	w, err := zw.Create("hello.txt")
	require.NoError(t, err)
	_, _ = w.Write([]byte("hi"))
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	require.False(t, IsAFF4Container(notAFF4))
}
