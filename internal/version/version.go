// Package version reports what build of the swing server is running.
// Release builds stamp the variables with -ldflags "-X"; other builds fall
// back to the VCS data the Go toolchain embeds.
package version

import (
	"fmt"
	"runtime/debug"
)

var (
	Version   = "dev"
	GitSHA    = ""
	BuildTime = ""
)

// String formats the build metadata for logs and -version.
func String() string {
	sha, built := GitSHA, BuildTime
	if sha == "" || built == "" {
		vcsSHA, vcsTime := vcsInfo()
		if sha == "" {
			sha = vcsSHA
		}
		if built == "" {
			built = vcsTime
		}
	}
	return fmt.Sprintf("%s (%s, built %s)", Version, orUnknown(sha), orUnknown(built))
}

func vcsInfo() (sha, built string) {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "", ""
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			sha = s.Value
			if len(sha) > 12 {
				sha = sha[:12]
			}
		case "vcs.time":
			built = s.Value
		}
	}
	return sha, built
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
