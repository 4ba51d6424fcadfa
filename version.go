package main

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Version is stamped by release builds:
//
//	go build -ldflags "-X main.Version=$(git describe --tags)" -o nikola
//
// Development builds leave it empty and fall back to what the Go
// toolchain recorded about the module and its checkout.
var Version = ""

func versionLine() string {
	v := Version
	rev := ""
	if info, ok := debug.ReadBuildInfo(); ok {
		if v == "" && info.Main.Version != "" && info.Main.Version != "(devel)" {
			v = info.Main.Version
		}
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" && len(s.Value) >= 8 {
				rev = s.Value[:8]
			}
		}
	}
	if v == "" {
		v = "dev"
	}
	if rev == "" {
		return fmt.Sprintf("nikola %s (%s/%s)", v, runtime.GOOS, runtime.GOARCH)
	}
	return fmt.Sprintf("nikola %s %s (%s/%s)", v, rev, runtime.GOOS, runtime.GOARCH)
}

// printVersion prints the version line to stdout.
func printVersion() {
	fmt.Println(versionLine())
}
