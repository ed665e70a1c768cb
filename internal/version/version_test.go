package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withBuildInfo(t *testing.T, version, commit, date string) {
	origVersion, origCommit, origDate := Version, GitCommit, BuildDate
	t.Cleanup(func() { SetBuildInfo(origVersion, origCommit, origDate) })
	SetBuildInfo(version, commit, date)
}

func TestGetInfo(t *testing.T) {
	withBuildInfo(t, "1.2.3-rc.1+42", "abcdef0123456", "2026-01-02")

	info, err := GetInfo()
	require.NoError(t, err)
	assert.Equal(t, "1.2.3-rc.1+42", info.Version)
	assert.Equal(t, uint64(1), info.SemVer.Major())
	assert.NotEmpty(t, info.GoVersion)
	assert.Contains(t, info.Platform, "/")

	withBuildInfo(t, "not-a-version", "unknown", "unknown")
	_, err = GetInfo()
	assert.Error(t, err)
}

func TestGetFormattedVersion(t *testing.T) {
	tests := []struct {
		name     string
		version  string
		commit   string
		date     string
		expected string
	}{
		{
			name:     "development build",
			version:  "0.1.0",
			commit:   "unknown",
			date:     "unknown",
			expected: "mediachat v0.1.0",
		},
		{
			name:     "release build",
			version:  "0.3.1",
			commit:   "abcdef0123456",
			date:     "2026-01-02",
			expected: "mediachat v0.3.1, commit abcdef0, built 2026-01-02",
		},
		{
			name:     "invalid version",
			version:  "x.y",
			commit:   "unknown",
			date:     "unknown",
			expected: "mediachat vx.y (invalid version)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withBuildInfo(t, tt.version, tt.commit, tt.date)
			assert.Equal(t, tt.expected, GetFormattedVersion())
		})
	}
}

func TestGetDetailedVersion(t *testing.T) {
	withBuildInfo(t, "0.2.0+17.abc1234", "abc1234", "2026-01-02")

	detailed := GetDetailedVersion()
	assert.Contains(t, detailed, "mediachat v0.2.0+17.abc1234")
	assert.Contains(t, detailed, "Build Metadata: 17.abc1234")
	assert.Contains(t, detailed, "Go Version:")
}

func TestVersionPredicates(t *testing.T) {
	withBuildInfo(t, "0.2.0-beta.1", "unknown", "2026-01-02")
	assert.True(t, IsPrerelease())
	assert.True(t, IsDevelopment())
	assert.Equal(t, "0.2.0", GetBaseVersion())

	withBuildInfo(t, "0.2.0", "abc", "2026-01-02")
	assert.False(t, IsPrerelease())
	assert.False(t, IsDevelopment())
}
