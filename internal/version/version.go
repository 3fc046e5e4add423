// SPDX-License-Identifier: MIT

// Package version carries the build identity stamped into records and the
// CLI banner.
package version

var (
	// Version is populated by the build system via ldflags.
	Version = "dev"

	// Commit is the git short hash of the build.
	Commit = "unknown"

	// Date is the build timestamp.
	Date = "unknown"
)
