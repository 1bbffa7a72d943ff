package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forensiccore/diskvault/internal/security"
)

func TestDefault_Validates(t *testing.T) {
	cfg := Default()
	assert.NoError(t, cfg.Validate())
}

func TestValidate_RejectsLooseningLimits(t *testing.T) {
	cfg := Default()
	cfg.Limits.MaxFileExtract = security.MaxFileExtract + 1
	assert.Error(t, cfg.Validate())
}

func TestValidate_AcceptsTighterLimits(t *testing.T) {
	cfg := Default()
	cfg.Limits.MaxFileExtract = security.MaxFileExtract / 2
	assert.NoError(t, cfg.Validate())
}

func TestValidate_RejectsUnknownLogLevel(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "verbose"
	assert.Error(t, cfg.Validate())
}

func TestLoad_NoFile_ReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.False(t, cfg.DefaultUseMmap)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestTemplate_RoundTripsThroughLoad(t *testing.T) {
	out, err := Template()
	require.NoError(t, err)
	assert.Contains(t, string(out), "log_level")

	dir := t.TempDir()
	path := dir + "/config.yaml"
	require.NoError(t, os.WriteFile(path, out, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_FromYAML(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/config.yaml"
	require.NoError(t, os.WriteFile(path, []byte("default_use_mmap: true\nlog_level: debug\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.DefaultUseMmap)
	assert.Equal(t, "debug", cfg.LogLevel)
}
