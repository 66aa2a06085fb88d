// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version carries build information for the interterm
// binaries. [GitCommit], [GitDirty], [BuildTime] and [Version] are set
// with -ldflags -X at build time and default to development values.
//
// The companion reports [Info] in its diagnostics response, and both
// binaries print it for --version.
package version
