// r64u - file transfer and remote control for Ultimate 64 and Ultimate-II+
// cartridges over the local network.
package main

import (
	"github.com/svetzal/r64u-sub000/internal/cli"
	"github.com/svetzal/r64u-sub000/internal/version"
)

// Version information, overridden by ldflags in release builds.
var (
	Version   = "v0.3.0-dev"
	BuildTime = "unknown"
)

func main() {
	version.Version = Version
	version.BuildTime = BuildTime
	cli.Execute()
}
