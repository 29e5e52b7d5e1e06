// Copyright 2026 The Apronwatch Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil holds the timeout safety valves used by concurrent
// tests. [RequireReceive] and [RequireClosed] wrap the select-with-
// deadline pattern so a wedged capture task or writer loop fails the
// test instead of hanging it. These are the only helpers that read
// the real clock.
package testutil
