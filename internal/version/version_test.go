package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonical(t *testing.T) {
	assert.Equal(t, "v1.2.0", Canonical("1.2.0"))
	assert.Equal(t, "v1.2.0", Canonical("v1.2"))
	assert.Equal(t, "", Canonical("not-a-version"))
}

func TestIsVersionGreaterOrEqualThan(t *testing.T) {
	assert.True(t, IsVersionGreaterOrEqualThan("1.2.0", "1.2.0"))
	assert.True(t, IsVersionGreaterOrEqualThan("1.10.0", "1.9.3"))
	assert.False(t, IsVersionGreaterOrEqualThan("0.9.0", "1.0.0"))
}

func TestString(t *testing.T) {
	oldVersion, oldCommit := Version, GitCommit
	t.Cleanup(func() { Version, GitCommit = oldVersion, oldCommit })

	Version = "1.0.0"
	GitCommit = "unknown"
	assert.Equal(t, "1.0.0", String())

	GitCommit = "0123456789abcdef"
	assert.Equal(t, "1.0.0-01234567", String())
	assert.Equal(t, "1.0.0-dev", GetCurrentVersion("dev"))
	assert.Equal(t, "1.0.0", GetCurrentVersion("prod"))
}
