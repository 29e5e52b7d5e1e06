// Copyright 2026 The Apronwatch Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli holds the flag handling and startup shared by the
// apronwatch binaries: --config, --log-level, --log-format, and
// --version, followed by configuration loading and validation.
//
//	flagSet := pflag.NewFlagSet("apronwatch-tail", pflag.ContinueOnError)
//	var common cli.Common
//	common.AddFlags(flagSet)
//	... binary-specific flags ...
//	env, err := common.Start("apronwatch-tail", flagSet, os.Args[1:])
//	if err != nil || env == nil {
//	    return err // nil env: --version or --help was handled
//	}
package cli
