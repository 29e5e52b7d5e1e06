// Copyright 2026 The Apronwatch Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"fmt"
	"io"
	"runtime"
)

// Set via -ldflags at build time.
var (
	GitCommit = "unknown"
	GitDirty  = "false"
	BuildTime = "unknown"
	Version   = "0.1.0-dev"
)

// Info returns "version (commit[-dirty], build time)".
func Info() string {
	dirty := ""
	if GitDirty == "true" {
		dirty = "-dirty"
	}
	return fmt.Sprintf("%s (%s%s, %s)", Version, GitCommit, dirty, BuildTime)
}

// Print writes the binary name, Info, and the Go toolchain/platform.
func Print(w io.Writer, binary string) {
	fmt.Fprintf(w, "%s %s\n  Go: %s\n  Platform: %s/%s\n",
		binary, Info(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
