// Copyright 2026 The Apronwatch Authors
// SPDX-License-Identifier: Apache-2.0

// apronwatch-telemetry runs the external detector and tracker
// (telemetry.detector.command) and appends one row per detected object
// to the telemetry store, stamped with the local capture time and the
// current weather snapshot. Rows become visible to readers one frame
// at a time.
//
// Only one writer may hold a store. A second instance exits with an
// error rather than interleaving rows. On SIGINT or SIGTERM the
// detector is interrupted, so it can release its device memory, and
// the store is closed; rows already flushed are untouched.
package main
