// Package version reports how the forumsearch binary was built.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Injected with -ldflags, for example
//
//	-X github.com/xHumanityRO/forumsearch/pkg/version.Version=v1.4.0
//
// Commit and Date fall back to the vcs stamps embedded by the go toolchain.
var (
	Version = "dev"
	Commit  = ""
	Date    = ""
)

const unknown = "unknown"

// readBuildInfo is swapped in tests.
var readBuildInfo = debug.ReadBuildInfo

// Info describes the running binary.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	Modified  bool   `json:"modified,omitempty"`
	GoVersion string `json:"go_version"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// Get resolves the build metadata.
func Get() Info {
	info := Info{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: runtime.Version(),
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}

	if bi, ok := readBuildInfo(); ok {
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if info.Commit == "" {
					info.Commit = s.Value
				}
			case "vcs.time":
				if info.Date == "" {
					info.Date = s.Value
				}
			case "vcs.modified":
				info.Modified = s.Value == "true"
			}
		}
	}

	if len(info.Commit) > 12 {
		info.Commit = info.Commit[:12]
	}
	if info.Commit == "" {
		info.Commit = unknown
	}
	if info.Date == "" {
		info.Date = unknown
	}
	return info
}

// String renders the one-line banner printed by "forumsearch version".
func (i Info) String() string {
	commit := i.Commit
	if i.Modified {
		commit += "-dirty"
	}
	return fmt.Sprintf("forumsearch %s (commit: %s, built: %s, %s %s/%s)",
		i.Version, commit, i.Date, i.GoVersion, i.OS, i.Arch)
}
