// Copyright 2026 The Apronwatch Authors
// SPDX-License-Identifier: Apache-2.0

package capture

import (
	"context"
	"io"
	"os/exec"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// Runner runs an external command to completion, copying its stderr to
// stderr. Run must return once ctx is done, after the child has been
// told to stop.
type Runner interface {
	Run(ctx context.Context, name string, args []string, stderr io.Writer) error
}

// ExecRunner runs commands as child processes.
//
// On cancellation the child's process group receives SIGINT, which
// ffmpeg handles by finishing the current output: the moov atom of an
// mp4 take is written, so a stopped recording is still playable. If
// the group has not exited after StopGrace it is killed.
type ExecRunner struct {
	// StopGrace bounds the wait between SIGINT and SIGKILL. Zero means
	// five seconds.
	StopGrace time.Duration
}

// Run implements Runner.
func (r ExecRunner) Run(ctx context.Context, name string, args []string, stderr io.Writer) error {
	stopGrace := r.StopGrace
	if stopGrace <= 0 {
		stopGrace = 5 * time.Second
	}

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = stderr

	// Own process group, so the signal also reaches anything the
	// command spawns.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		processGroupID := -cmd.Process.Pid
		if err := unix.Kill(processGroupID, unix.SIGINT); err != nil {
			return unix.Kill(processGroupID, unix.SIGKILL)
		}
		time.AfterFunc(stopGrace, func() {
			// ESRCH from an exited group is harmless.
			_ = unix.Kill(processGroupID, unix.SIGKILL)
		})
		return nil
	}
	// Stops Wait from blocking on a stderr pipe held open by an
	// orphaned grandchild.
	cmd.WaitDelay = 2 * stopGrace

	return cmd.Run()
}
