package version

import (
	"fmt"
	"runtime/debug"
)

// Set with -ldflags "-X github.com/opentdf/drmpolicy/internal/version.Version=..."
var (
	Version     = "dev"
	VersionLong = ""
	BuildTime   = ""
)

type VersionStat struct {
	Version     string `json:"version" yaml:"version"`
	VersionLong string `json:"versionLong" yaml:"versionLong"`
	BuildTime   string `json:"buildTime" yaml:"buildTime"`
	GoVersion   string `json:"goVersion" yaml:"goVersion"`
}

func GetVersion() VersionStat {
	v := VersionStat{
		Version:     Version,
		VersionLong: VersionLong,
		BuildTime:   BuildTime,
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		v.GoVersion = info.GoVersion
		if v.VersionLong == "" {
			for _, s := range info.Settings {
				if s.Key == "vcs.revision" {
					v.VersionLong = s.Value
				}
			}
		}
	}
	return v
}

// UserAgent is sent by the store client.
func UserAgent() string {
	return fmt.Sprintf("drmpolicy/%s", Version)
}
