//-------------------------------------------------------------------------
//
// HotDog 2030 Warehouse Sync
//
// Copyright (c) 2026, HotDog 2030 contributors
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package version provides build and version information for hotdog-etl.
package version

import (
	"fmt"
	"runtime"
)

// Build information set at compile time via ldflags.
var (
	Version   = "0.9.0"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// SchemaVersion is bumped whenever the warehouse DDL changes shape.
const SchemaVersion = "3"

// Info returns formatted version information.
func Info() string {
	return fmt.Sprintf(
		"hotdog-etl %s (schema: %s, commit: %s, built: %s, go: %s)",
		Version, SchemaVersion, Commit, BuildDate, runtime.Version(),
	)
}

// Short returns just the version string.
func Short() string {
	return Version
}
