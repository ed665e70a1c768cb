// Package version reports mediachat build information.
// Values are injected at build time via -ldflags.
package version

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Build information set with -ldflags "-X mediachat/internal/version.Version=..."
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

const productName = "mediachat"

// Info describes the running binary.
type Info struct {
	Version   string          `json:"version"`
	GitCommit string          `json:"gitCommit"`
	BuildDate string          `json:"buildDate"`
	GoVersion string          `json:"goVersion"`
	Platform  string          `json:"platform"`
	SemVer    *semver.Version `json:"-"`
}

// GetInfo returns build information, failing when Version is not valid semver.
func GetInfo() (*Info, error) {
	sv, err := semver.NewVersion(Version)
	if err != nil {
		return nil, fmt.Errorf("invalid semantic version '%s': %w", Version, err)
	}

	return &Info{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
		SemVer:    sv,
	}, nil
}

// GetBaseVersion returns major.minor.patch without prerelease or metadata.
func GetBaseVersion() string {
	sv, err := semver.NewVersion(Version)
	if err != nil {
		return Version
	}
	return fmt.Sprintf("%d.%d.%d", sv.Major(), sv.Minor(), sv.Patch())
}

// GetFormattedVersion returns a one-line version string.
func GetFormattedVersion() string {
	info, err := GetInfo()
	if err != nil {
		return fmt.Sprintf("%s v%s (invalid version)", productName, Version)
	}

	parts := []string{fmt.Sprintf("%s v%s", productName, info.Version)}

	if info.GitCommit != "unknown" && info.GitCommit != "" {
		shortCommit := info.GitCommit
		if len(shortCommit) > 7 {
			shortCommit = shortCommit[:7]
		}
		parts = append(parts, fmt.Sprintf("commit %s", shortCommit))
	}

	if info.BuildDate != "unknown" && info.BuildDate != "" {
		parts = append(parts, fmt.Sprintf("built %s", info.BuildDate))
	}

	return strings.Join(parts, ", ")
}

// GetDetailedVersion returns multi-line build information.
func GetDetailedVersion() string {
	info, err := GetInfo()
	if err != nil {
		return fmt.Sprintf("%s v%s (error: %v)", productName, Version, err)
	}

	lines := []string{
		fmt.Sprintf("%s v%s", productName, info.Version),
		fmt.Sprintf("Git Commit: %s", info.GitCommit),
		fmt.Sprintf("Build Date: %s", info.BuildDate),
	}
	if meta := info.SemVer.Metadata(); meta != "" {
		lines = append(lines, fmt.Sprintf("Build Metadata: %s", meta))
	}
	lines = append(lines,
		fmt.Sprintf("Go Version: %s", info.GoVersion),
		fmt.Sprintf("Platform: %s", info.Platform),
	)

	return strings.Join(lines, "\n")
}

// IsPrerelease reports whether Version carries a prerelease tag.
func IsPrerelease() bool {
	sv, err := semver.NewVersion(Version)
	if err != nil {
		return false
	}
	return sv.Prerelease() != ""
}

// IsDevelopment reports whether build metadata was not injected.
func IsDevelopment() bool {
	return GitCommit == "unknown" || BuildDate == "unknown"
}

// SetBuildInfo overrides build information. Used by tests.
func SetBuildInfo(version, gitCommit, buildDate string) {
	Version = version
	GitCommit = gitCommit
	BuildDate = buildDate
}
