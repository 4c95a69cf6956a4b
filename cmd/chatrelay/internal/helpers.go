package internal

import (
	"fmt"
	"runtime"
)

var (
	version   = "dev"
	gitCommit string
	buildTime string
)

// FormatVersion returns the version with the commit when it was stamped at build time.
func FormatVersion() string {
	v := version
	if gitCommit != "" {
		v += " (" + gitCommit + ")"
	}
	return v
}

func FormatBuildInfo() string {
	built := buildTime
	if built == "" {
		built = "unknown"
	}
	return fmt.Sprintf("built %s with %s %s/%s", built, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
