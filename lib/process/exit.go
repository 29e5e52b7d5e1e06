// Copyright 2026 The Apronwatch Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
)

// Fatal writes "error: err" to stderr and exits. If err carries an
// ExitCode method its value is used as the exit status, otherwise 1.
func Fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	var coder interface{ ExitCode() int }
	if errors.As(err, &coder) && coder.ExitCode() > 0 {
		os.Exit(coder.ExitCode())
	}
	os.Exit(1)
}

// ExitCode reports the exit status of a child process from the error
// returned by Run or Wait. It returns 0 for a nil error and -1 when the
// error did not come from a process exit (start failure, killed by a
// signal, context cancellation before start).
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitError *exec.ExitError
	if errors.As(err, &exitError) {
		return exitError.ExitCode()
	}
	return -1
}
