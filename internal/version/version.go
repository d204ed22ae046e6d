// Copyright 2025 The Procmine Authors
// SPDX-License-Identifier: Apache-2.0

// Package version exposes build-time version information.
package version

import "runtime"

// Populated at build time via -ldflags.
var (
	name        = "procmine-api"
	version     = "dev"
	gitRevision = "unknown"
	buildTime   = "unknown"
)

// Info describes the running binary.
type Info struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	GitRevision string `json:"git_revision"`
	BuildTime   string `json:"build_time"`
	GoOS        string `json:"go_os"`
	GoArch      string `json:"go_arch"`
	GoVersion   string `json:"go_version"`
}

// Get returns the version information for this build.
func Get() Info {
	return Info{
		Name:        name,
		Version:     version,
		GitRevision: gitRevision,
		BuildTime:   buildTime,
		GoOS:        runtime.GOOS,
		GoArch:      runtime.GOARCH,
		GoVersion:   runtime.Version(),
	}
}
