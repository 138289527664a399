// SPDX-License-Identifier: MIT
//
// Package build provides the build metadata embedded into the tuner binary
// at compile time using linker flags, for example:
//
//	go build -ldflags "-X tuner/pkg/build.buildName=tuner -X tuner/pkg/build.buildVersion=0.1.0 ..."
//
// Development builds run without the flags; Initialize reports what is
// missing and the defaults of "unknown" remain in place.
package build

import (
	"errors"
	"fmt"
)

type ldFlags struct {
	Name        string
	Description string
	Time        string
	Commit      string
	Version     string
}

// Package-level variables for build information. These are populated by -ldflags
// during compilation. Default values of "unknown" are used during development.
var (
	buildName    string
	buildTime    string
	buildCommit  string
	buildVersion string
	buildFlags   = &ldFlags{
		Name:        "tuner",
		Description: "Real-time note detection and tuning for monophonic instruments",
		Time:        "unknown",
		Commit:      "unknown",
		Version:     "unknown",
	}
)

// Initialize copies build information from the ldflags variables into the
// build flags. Every provided value is applied, and an error joining all of
// the missing flags is returned so that callers can warn about a
// development build without refusing to start.
func Initialize() error {
	var errs []error
	if buildName == "" {
		errs = append(errs, fmt.Errorf("BuildName is required"))
	} else {
		buildFlags.Name = buildName
	}
	if buildTime == "" {
		errs = append(errs, fmt.Errorf("BuildTime is required"))
	} else {
		buildFlags.Time = buildTime
	}
	if buildCommit == "" {
		errs = append(errs, fmt.Errorf("BuildCommit is required"))
	} else {
		buildFlags.Commit = buildCommit
	}
	if buildVersion == "" {
		errs = append(errs, fmt.Errorf("BuildVersion is required"))
	} else {
		buildFlags.Version = buildVersion
	}

	return errors.Join(errs...)
}

// GetBuildFlags returns the current build information.
func GetBuildFlags() *ldFlags {
	return buildFlags
}

// VersionString formats the build information for `--version` output.
func VersionString() string {
	return fmt.Sprintf("%s (commit %s, built %s)", buildFlags.Version, buildFlags.Commit, buildFlags.Time)
}
