// Copyright 2026 The Apronwatch Authors
// SPDX-License-Identifier: Apache-2.0

// Package capture records live camera streams with ffmpeg.
//
// For each source a capture run launches two independent children: a
// recorder that copies the stream into a new video take without
// re-encoding, and a sampler that writes one still frame every
// interval, numbered from the source's next free frame index. The two
// share nothing once launched. All sources run concurrently and
// [Capturer.Capture] returns only after every child of every source
// has exited, so the caller can write ledgers without competing with
// capture for disk bandwidth.
//
// A failing source never affects another. Its [Result] carries a
// [SourceError] with the last lines ffmpeg wrote to stderr. Every child
// is bounded by the record duration plus a grace period, so an
// unreachable stream cannot hang the run.
//
// Child processes are started through a [Runner]. [ExecRunner] runs
// them for real; tests substitute a fake that writes artifacts
// directly.
package capture
