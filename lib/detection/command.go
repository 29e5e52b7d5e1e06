// Copyright 2026 The Apronwatch Authors
// SPDX-License-Identifier: Apache-2.0

package detection

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// CommandConfig describes the detector process.
type CommandConfig struct {
	// Command is the detector argv. Required.
	Command []string

	// Format is the encoding of the detector's stdout.
	Format Format

	// Stderr receives the detector's stderr. Nil means os.Stderr.
	Stderr io.Writer

	// StopGrace bounds the wait between SIGINT and SIGKILL on Close.
	// Zero means ten seconds; model servers release device memory on
	// interrupt and may take a moment.
	StopGrace time.Duration

	// Logger receives start and stop messages. Nil discards.
	Logger *slog.Logger
}

// CommandSource runs the detector as a child process and decodes its
// stdout.
type CommandSource struct {
	stream    *StreamSource
	cmd       *exec.Cmd
	stopGrace time.Duration
	logger    *slog.Logger

	stopping  atomic.Bool
	waitOnce  sync.Once
	waitErr   error
	closeOnce sync.Once
	closeErr  error
}

// StartCommand starts the detector.
func StartCommand(cfg CommandConfig) (*CommandSource, error) {
	if len(cfg.Command) == 0 {
		return nil, fmt.Errorf("detection: detector command is required")
	}
	if _, err := ParseFormat(string(cfg.Format)); err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	stopGrace := cfg.StopGrace
	if stopGrace <= 0 {
		stopGrace = 10 * time.Second
	}

	cmd := exec.Command(cfg.Command[0], cfg.Command[1:]...)
	cmd.Stderr = cfg.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("detection: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("detection: starting %s: %w", cfg.Command[0], err)
	}
	logger.Info("detector started", "command", cfg.Command[0], "pid", cmd.Process.Pid, "format", cfg.Format)

	return &CommandSource{
		stream:    NewStreamSource(stdout, cfg.Format),
		cmd:       cmd,
		stopGrace: stopGrace,
		logger:    logger,
	}, nil
}

// Next implements Source. When the detector's output ends, Next reports
// a non-zero exit of the detector as an error instead of io.EOF.
func (c *CommandSource) Next(ctx context.Context) (Frame, error) {
	frame, err := c.stream.Next(ctx)
	if errors.Is(err, io.EOF) {
		if waitErr := c.wait(); waitErr != nil && !c.stopping.Load() {
			return Frame{}, fmt.Errorf("detection: detector exited: %w", waitErr)
		}
	}
	return frame, err
}

// Close interrupts the detector, waits for it to exit, and reaps it.
// The detector's exit status after the interrupt is not an error. Close
// is idempotent.
func (c *CommandSource) Close() error {
	c.closeOnce.Do(func() {
		c.stopping.Store(true)
		processGroupID := -c.cmd.Process.Pid

		if err := unix.Kill(processGroupID, unix.SIGINT); err != nil && !errors.Is(err, unix.ESRCH) {
			c.logger.Warn("interrupting detector failed", "error", err)
		}
		timer := time.AfterFunc(c.stopGrace, func() {
			c.logger.Warn("detector ignored interrupt, killing", "grace", c.stopGrace)
			_ = unix.Kill(processGroupID, unix.SIGKILL)
		})
		defer timer.Stop()

		c.stream.Close()
		err := c.wait()

		var exitErr *exec.ExitError
		if err != nil && !errors.As(err, &exitErr) {
			c.closeErr = fmt.Errorf("detection: waiting for detector: %w", err)
			return
		}
		c.logger.Info("detector stopped", "pid", c.cmd.Process.Pid)
	})
	return c.closeErr
}

// wait reaps the child once its stdout is no longer being read.
func (c *CommandSource) wait() error {
	c.waitOnce.Do(func() {
		<-c.stream.finished
		c.waitErr = c.cmd.Wait()
	})
	return c.waitErr
}

var _ Source = (*CommandSource)(nil)
var _ Source = (*StreamSource)(nil)
