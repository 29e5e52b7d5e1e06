// Copyright 2026 The Apronwatch Authors
// SPDX-License-Identifier: Apache-2.0

// Package process holds the entrypoint helpers shared by Apronwatch
// binaries and the exit-status plumbing for the child processes they
// supervise (ffmpeg, the external detector).
//
// [Fatal] is the one place a binary writes raw text to stderr: it is
// used from main() when run() fails, possibly before a structured
// logger exists. [ExitCode] extracts a child's exit status from the
// error returned by exec.Cmd.Wait so diagnostics can name it.
package process
