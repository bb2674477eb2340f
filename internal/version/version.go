// Package version reports build information for explorer binaries.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
)

const (
	unknown      = "unknown"
	shortCommit  = 7
	arrowModule  = "github.com/apache/arrow-go/v18"
	modulePrefix = "github.com/vishal-h/explorer"
)

// Set with -ldflags "-X github.com/vishal-h/explorer/internal/version.Version=...".
var (
	Version   = "dev"
	BuildDate = unknown
	GitCommit = unknown
)

// BuildInfo describes the running binary.
type BuildInfo struct {
	Version   string `json:"version"`
	BuildDate string `json:"build_date"`
	GitCommit string `json:"git_commit"`
	GoVersion string `json:"go_version"`
	Module    string `json:"module"`
	Arrow     string `json:"arrow"`
	Dirty     bool   `json:"dirty"`
}

// Info collects the ldflags variables and the module versions recorded by
// the Go toolchain.
func Info() BuildInfo {
	info := BuildInfo{
		Version:   Version,
		BuildDate: BuildDate,
		GitCommit: GitCommit,
		GoVersion: runtime.Version(),
		Module:    modulePrefix,
		Arrow:     unknown,
		Dirty:     strings.HasSuffix(GitCommit, "-dirty"),
	}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	if bi.Main.Path != "" {
		info.Module = bi.Main.Path
	}
	for _, dep := range bi.Deps {
		if dep.Path == arrowModule {
			info.Arrow = dep.Version
		}
	}
	for _, s := range bi.Settings {
		if s.Key == "vcs.modified" && s.Value == "true" {
			info.Dirty = true
		}
	}
	return info
}

func (b BuildInfo) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "explorer %s", b.Version)
	if b.Dirty {
		sb.WriteString(" (dirty)")
	}
	sb.WriteString("\n")
	if b.GitCommit != unknown {
		commit := b.GitCommit
		if len(commit) > shortCommit {
			commit = commit[:shortCommit]
		}
		fmt.Fprintf(&sb, "commit:  %s\n", commit)
	}
	if b.BuildDate != unknown {
		fmt.Fprintf(&sb, "built:   %s\n", b.BuildDate)
	}
	fmt.Fprintf(&sb, "go:      %s\n", b.GoVersion)
	fmt.Fprintf(&sb, "arrow:   %s\n", b.Arrow)
	return sb.String()
}
