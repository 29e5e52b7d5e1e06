// Copyright 2026 The Apronwatch Authors
// SPDX-License-Identifier: Apache-2.0

// apronwatch-tail follows the telemetry store while a writer is
// appending to it. Every poll interval it re-reads the store length and
// prints the rows added since the last poll, optionally restricted to
// some object classes or track ids. It never observes a partially
// written frame.
//
// On a terminal the rows are drawn as a table; otherwise they are
// written as tab-separated values with a header line, suitable for
// piping into a plotting tool. --once prints the current contents and
// exits.
package main
