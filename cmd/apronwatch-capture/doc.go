// Copyright 2026 The Apronwatch Authors
// SPDX-License-Identifier: Apache-2.0

// apronwatch-capture records one capture run from every configured
// camera source. Each source gets a continuous video take and a series
// of still frames sampled every --frame-interval seconds for
// --record-duration seconds, written into today's session directory
// under the data root. Frame numbering continues from what is already
// on disk.
//
// After all sources have finished, each source's frame timestamp
// ledger (frame_infos.csv) is extended with one row per frame the run
// produced. A run interrupted before that point leaves a journal file
// in its source directory; the next invocation writes the missing
// ledger rows before starting a new capture.
//
// The process exits 1 when any source failed. Failures of one source
// never stop the others.
package main
