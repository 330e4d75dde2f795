// Package version carries the build stamp shared by the browser and the stub.
// Variables are injected at build time via ldflags.
package version

import (
	"fmt"
	"runtime"
)

// Build-time variables injected via ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Build describes the running binary. The stub reports it from its health
// endpoint.
type Build struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// Current returns the build stamp of this binary.
func Current() Build {
	return Build{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// String formats b for -version output.
func (b Build) String() string {
	return fmt.Sprintf("omicsview %s (commit: %s, built: %s, go: %s)", b.Version, b.GitCommit, b.BuildDate, b.GoVersion)
}

// UserAgent is the value sent with every API request and push dial.
func (b Build) UserAgent() string {
	return fmt.Sprintf("omicsview/%s (%s/%s)", b.Version, b.OS, b.Arch)
}

// Info returns Current().String().
func Info() string { return Current().String() }

// Short returns just the version, e.g. "0.1.0" or "dev".
func Short() string { return Version }

// UserAgent returns Current().UserAgent().
func UserAgent() string { return Current().UserAgent() }
