package orchestration

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forensiccore/diskvault/internal/vault"
)

func putLE16(b []byte, off int, v uint16) {
	b[off] = byte(v)
	b[off+1] = byte(v >> 8)
}

func putLE32(b []byte, off int, v uint32) {
	b[off] = byte(v)
	b[off+1] = byte(v >> 8)
	b[off+2] = byte(v >> 16)
	b[off+3] = byte(v >> 24)
}

// buildFAT12Image constructs the same minimal single-cluster FAT12
// volume the fat package's own fixture builds, with no partition table,
// so zone.Parse falls back to a single Direct zone spanning the file.
func buildFAT12Image(t *testing.T) string {
	img := make([]byte, 2048)

	putLE16(img, 11, 512) // bytes per sector
	img[13] = 1           // sectors per cluster
	putLE16(img, 14, 1)   // reserved sectors
	img[16] = 1           // number of FATs
	putLE16(img, 17, 16)  // root entries
	putLE16(img, 19, 40)  // total sectors
	putLE16(img, 22, 1)   // sectors per FAT

	fatOffset := 512
	img[fatOffset+3] = 0xFF
	img[fatOffset+4] = 0x0F // cluster 2 -> end of chain

	rootOffset := 1024
	copy(img[rootOffset:rootOffset+8], "HELLO   ")
	copy(img[rootOffset+8:rootOffset+11], "TXT")
	img[rootOffset+11] = 0x20 // archive attribute
	putLE16(img, rootOffset+26, 2)
	putLE32(img, rootOffset+28, 5)

	dataOffset := rootOffset + 512
	copy(img[dataOffset:], "hello")

	path := filepath.Join(t.TempDir(), "image.raw")
	require.NoError(t, os.WriteFile(path, img, 0o644))
	return path
}

func TestValidateIntegrity_HealthyDirectZone(t *testing.T) {
	path := buildFAT12Image(t)
	v, err := OpenVault(path, vault.Config{})
	require.NoError(t, err)
	defer v.Close()

	report, err := ValidateIntegrity(v)
	require.NoError(t, err)
	assert.Equal(t, "Raw", report.VaultType)
	assert.Equal(t, "Direct", report.ZoneTable)
	assert.Equal(t, 1, report.ZoneCount)
	assert.True(t, report.Healthy())
}

func TestAnalyze_DetectsFAT12InDirectZone(t *testing.T) {
	path := buildFAT12Image(t)

	report, err := Analyze(context.Background(), path, vault.Config{})
	require.NoError(t, err)
	assert.Equal(t, "Raw", report.VaultType)
	require.Len(t, report.Zones, 1)
	assert.Equal(t, "FAT12", report.Zones[0].TerritoryType)
	assert.NoError(t, report.Zones[0].Err)
}
