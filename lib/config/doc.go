// Copyright 2026 The Apronwatch Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for the Apronwatch
// binaries.
//
// Configuration comes from a single file named by the --config flag or
// the APRONWATCH_CONFIG environment variable (via [Load]), or from an
// explicit path (via [LoadFile]). There is no file discovery. When
// neither names a file, [Default] applies unchanged.
//
// Variable expansion is performed on path fields after loading:
// ${HOME}, ${APRONWATCH_DATA}, and ${VAR:-default} patterns are
// expanded. No environment variable overrides a config value directly.
//
// [Config.Validate] reports every problem at once, wrapped in
// [ErrInvalid], so a binary can refuse to start with one message.
package config
