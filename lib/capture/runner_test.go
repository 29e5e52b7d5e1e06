// Copyright 2026 The Apronwatch Authors
// SPDX-License-Identifier: Apache-2.0

package capture

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/apronwatch/apronwatch/lib/process"
	"github.com/apronwatch/apronwatch/lib/testutil"
)

func TestExecRunnerReportsExitStatusAndStderr(t *testing.T) {
	tail := newTailBuffer(5)
	err := ExecRunner{}.Run(context.Background(), "sh", []string{"-c", "echo 'rtsp://x: Connection refused' >&2; exit 3"}, tail)
	if err == nil {
		t.Fatal("Run returned nil for failing command")
	}
	if code := process.ExitCode(err); code != 3 {
		t.Errorf("ExitCode = %d, want 3", code)
	}
	if !strings.Contains(tail.String(), "Connection refused") {
		t.Errorf("stderr tail = %q", tail.String())
	}
}

func TestExecRunnerInterruptsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- ExecRunner{StopGrace: time.Second}.Run(ctx, "sleep", []string{"30"}, newTailBuffer(1))
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	if err := testutil.RequireReceive(t, done, 10*time.Second, "Run did not return after cancel"); err == nil {
		t.Error("Run returned nil for interrupted command")
	}
}
