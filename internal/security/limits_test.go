package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultLimits_Validates(t *testing.T) {
	assert.NoError(t, ValidateLimits(DefaultLimits()))
}

func TestValidateLimits_ZeroFieldsInheritConstants(t *testing.T) {
	assert.NoError(t, ValidateLimits(SecurityLimits{}))
}

func TestValidateLimits_RejectsAboveCeiling(t *testing.T) {
	err := ValidateLimits(SecurityLimits{MaxFileExtract: MaxFileExtract + 1})
	assert.Error(t, err)
}

func TestValidateLimits_AcceptsBelowCeiling(t *testing.T) {
	err := ValidateLimits(SecurityLimits{MaxFileExtract: MaxFileExtract / 2, MaxDirEntries: 100})
	assert.NoError(t, err)
}
