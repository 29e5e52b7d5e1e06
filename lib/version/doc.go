// Copyright 2026 The Apronwatch Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports build information for --version output.
// Values are injected with -ldflags:
//
//	go build -ldflags "-X github.com/apronwatch/apronwatch/lib/version.GitCommit=$(git rev-parse --short HEAD)"
package version
