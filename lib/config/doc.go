// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the YAML configuration shared by the interterm
// binaries.
//
// The file is named by a --config flag or the INTERTERM_CONFIG
// environment variable. Without either, [Default] applies; there is no
// directory search. Environment-specific sections (development,
// production) override base values when [Config].Environment matches.
//
// After loading, path fields expand ${HOME}, ${XDG_RUNTIME_DIR} and
// ${VAR:-default} patterns.
package config
