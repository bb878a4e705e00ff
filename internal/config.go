package internal

import (
	"runtime"
	"strings"
)

// Name of the binary, used as the log prefix and the XDG directory name.
const Name = "tomcatconf"

// Build metadata, stamped by the release pipeline with
//
//	go build -ldflags "-X github.com/hardyoyo/pad-dspace-infra/internal.version=1.4.0 \
//	    -X github.com/hardyoyo/pad-dspace-infra/internal.stage=main \
//	    -X github.com/hardyoyo/pad-dspace-infra/internal.gitCommit=$(git rev-parse --short HEAD)"
//
// A plain "go build" in a DSpace checkout leaves them empty.
var (
	version   = ""
	stage     = "" // Branch the binary was cut from.
	gitCommit = ""

	rawQuiet   = "false"
	rawDebug   = "false"
	rawVerbose = "false"
)

const (
	undefined  = "(undefined)"
	localBuild = "(local)"
	mainStage  = "main"
)

// Returns value trimmed, or "(undefined)" when it is blank.
func stamped(value string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return undefined
}

// Returns the release version without a "v" prefix, e.g. "1.4.0".
func Version() string {
	v := stamped(version)
	if v == undefined {
		return v
	}
	return strings.TrimPrefix(strings.ToLower(v), "v")
}

// Returns the lower-cased branch the release was cut from.
func Stage() string {
	s := stamped(stage)
	if s == undefined {
		return s
	}
	return strings.ToLower(s)
}

// Returns the commit the binary was built from.
func GitCommit() string {
	return stamped(gitCommit)
}

// Returns the architecture the binary was compiled for.
func Arch() string {
	return runtime.GOARCH
}

// Reports whether the binary was built outside the release pipeline, which
// stamps version, stage and commit together.
func IsLocal() bool {
	for _, v := range []string{version, stage, gitCommit} {
		if strings.TrimSpace(v) == "" {
			return true
		}
	}
	return false
}

// Returns the line printed by "tomcatconf version".
//
// Releases from main print "1.4.0 a1b2c3d [amd64]"; other branches add the
// branch as build metadata, "1.4.0+staging a1b2c3d [amd64]". Local builds
// print "(local)".
func VersionString() string {
	if IsLocal() {
		return localBuild
	}

	var b strings.Builder
	b.WriteString(Version())
	if s := Stage(); s != mainStage {
		b.WriteString("+" + s)
	}
	b.WriteString(" " + GitCommit() + " [" + Arch() + "]")
	return b.String()
}
