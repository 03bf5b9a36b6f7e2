package app

import (
	"fmt"
	"runtime"
)

// Name of the daemon as it shows up in logs.
const Name = "fleetwatch-core"

type versionInfo struct {
	Major int
	Minor int
	Patch int
}

func (v versionInfo) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Version of the daemon.
var Version = versionInfo{
	Major: 1,
	Minor: 0,
	Patch: 0,
}

// Commit and Branch identify the git state the binary was built from, Build
// is the timestamp of the build. All three are meant to be filled in via
// ldflags.
var Commit = ""
var Branch = ""
var Build = ""

// Arch is the OS and CPU architecture the binary is built for.
var Arch = runtime.GOOS + "/" + runtime.GOARCH

// Compiler is the Go version the binary is built with.
var Compiler = runtime.Version()
