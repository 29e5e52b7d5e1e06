// Copyright 2026 The Apronwatch Authors
// SPDX-License-Identifier: Apache-2.0

package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/apronwatch/apronwatch/lib/clock"
	"github.com/apronwatch/apronwatch/lib/frameindex"
	"github.com/apronwatch/apronwatch/lib/session"
)

// Artifact names the kind of output a capture task produces.
type Artifact string

const (
	// ArtifactVideo is the stream-copied video take.
	ArtifactVideo Artifact = "video"

	// ArtifactFrames is the sequence of sampled still frames.
	ArtifactFrames Artifact = "frames"
)

// DefaultGrace is how long past the record duration a task may run
// before it is stopped, covering stream connection and muxer
// finalization.
const DefaultGrace = 30 * time.Second

// Plan holds the per-run capture tunables.
type Plan struct {
	// Interval is the still frame sampling period.
	Interval time.Duration

	// Duration is how long each task records.
	Duration time.Duration
}

// Validate rejects non-positive tunables.
func (p Plan) Validate() error {
	if p.Interval <= 0 {
		return fmt.Errorf("capture: frame interval must be positive, got %s", p.Interval)
	}
	if p.Duration <= 0 {
		return fmt.Errorf("capture: record duration must be positive, got %s", p.Duration)
	}
	return nil
}

// Target is one source to capture.
type Target struct {
	Label   string
	URL     string
	Enabled bool

	// Dir is the source directory receiving the artifacts.
	Dir string
}

// Launch describes a target's run after allocation and before its
// tasks start.
type Launch struct {
	Label      string
	Dir        string
	Take       int
	StartIndex int
	VideoPath  string

	// Started is the local capture time the run begins at.
	Started time.Time
}

// Result reports the outcome of one target.
type Result struct {
	Label string
	Dir   string

	// Take and StartIndex are the indices allocated to the run. They
	// are meaningful whenever Skipped is false and allocation
	// succeeded, even if a task failed.
	Take       int
	StartIndex int
	VideoPath  string

	// Started is the local capture time the tasks were launched at,
	// the base for ledger timestamps.
	Started time.Time

	// Launched reports whether the tasks were started. It is false
	// for skipped targets and for allocation failures.
	Launched bool

	// Skipped is set for disabled targets and targets without a URL.
	Skipped bool

	// Err joins allocation errors and one SourceError per failed task.
	Err error
}

// SourceError reports a capture task that exited unsuccessfully.
type SourceError struct {
	Label    string
	Artifact Artifact

	// Tail holds the last lines ffmpeg wrote to stderr.
	Tail []string

	Err error
}

func (e *SourceError) Error() string {
	message := fmt.Sprintf("source %s: %s task failed: %v", e.Label, e.Artifact, e.Err)
	if len(e.Tail) > 0 {
		message += ": " + e.Tail[len(e.Tail)-1]
	}
	return message
}

func (e *SourceError) Unwrap() error { return e.Err }

// RecorderArgs returns the ffmpeg arguments that stream-copy url into
// videoPath for duration.
func RecorderArgs(extraInputArgs []string, url string, duration time.Duration, videoPath string) []string {
	args := baseArgs(extraInputArgs, url)
	return append(args,
		"-t", seconds(duration),
		"-c:v", "copy",
		videoPath,
	)
}

// SamplerArgs returns the ffmpeg arguments that write one frame from url
// every interval for duration, numbered from startIndex into the
// image2 pattern.
func SamplerArgs(extraInputArgs []string, url string, duration, interval time.Duration, startIndex int, pattern string) []string {
	args := baseArgs(extraInputArgs, url)
	return append(args,
		"-t", seconds(duration),
		"-vf", "fps=1/"+seconds(interval),
		"-start_number", strconv.Itoa(startIndex),
		pattern,
	)
}

func baseArgs(extraInputArgs []string, url string) []string {
	args := []string{"-hide_banner", "-nostdin", "-n"}
	args = append(args, extraInputArgs...)
	return append(args, "-i", url)
}

func seconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}

// Capturer runs capture sessions.
type Capturer struct {
	// Runner starts the ffmpeg children. Nil means ExecRunner{}.
	Runner Runner

	// Binary is the ffmpeg executable. Empty means "ffmpeg".
	Binary string

	// ExtraInputArgs are passed before -i to both tasks.
	ExtraInputArgs []string

	// Grace is added to the record duration to bound each task.
	// Zero means DefaultGrace.
	Grace time.Duration

	// TailLines is how many stderr lines a SourceError keeps. Zero
	// means 20.
	TailLines int

	// Clock and UTCOffset produce the run start time. Nil Clock means
	// clock.Real().
	Clock     clock.Clock
	UTCOffset time.Duration

	// OnLaunch, if set, is called for each target after its indices
	// are allocated and before its tasks start. An error fails the
	// target without launching anything.
	OnLaunch func(Launch) error

	// Logger receives per-target progress. Nil discards.
	Logger *slog.Logger
}

// Capture runs every target concurrently and returns one Result per
// target, in target order, after every task has exited. Cancelling ctx
// stops all running tasks; the results still describe what was
// allocated so ledgers can be written for frames that reached disk.
func (c *Capturer) Capture(ctx context.Context, targets []Target, plan Plan) []Result {
	results := make([]Result, len(targets))
	if err := plan.Validate(); err != nil {
		for i, target := range targets {
			results[i] = Result{Label: target.Label, Dir: target.Dir, Err: err}
		}
		return results
	}

	var waitGroup sync.WaitGroup
	for i, target := range targets {
		waitGroup.Add(1)
		go func() {
			defer waitGroup.Done()
			results[i] = c.captureTarget(ctx, target, plan)
		}()
	}
	waitGroup.Wait()
	return results
}

func (c *Capturer) captureTarget(ctx context.Context, target Target, plan Plan) Result {
	logger := c.logger().With("source", target.Label)
	result := Result{Label: target.Label, Dir: target.Dir}

	if !target.Enabled || target.URL == "" {
		logger.Info("source skipped", "enabled", target.Enabled, "has_url", target.URL != "")
		result.Skipped = true
		return result
	}

	if err := os.MkdirAll(target.Dir, 0o755); err != nil {
		result.Err = fmt.Errorf("capture: creating %s: %w", target.Dir, err)
		return result
	}
	startIndex, err := frameindex.Next(target.Dir)
	if err != nil {
		result.Err = err
		return result
	}
	take, err := frameindex.NextTake(target.Dir, target.Label)
	if err != nil {
		result.Err = err
		return result
	}
	result.StartIndex = startIndex
	result.Take = take
	result.VideoPath = frameindex.VideoPath(target.Dir, target.Label, take)
	result.Started = session.Localize(c.clock().Now(), c.UTCOffset)

	if c.OnLaunch != nil {
		launch := Launch{
			Label:      target.Label,
			Dir:        target.Dir,
			Take:       take,
			StartIndex: startIndex,
			VideoPath:  result.VideoPath,
			Started:    result.Started,
		}
		if err := c.OnLaunch(launch); err != nil {
			result.Err = fmt.Errorf("capture: preparing %s: %w", target.Label, err)
			return result
		}
	}

	logger.Info("capture started",
		"take", take,
		"start_index", startIndex,
		"duration", plan.Duration,
		"interval", plan.Interval,
	)
	result.Launched = true

	taskCtx, cancel := context.WithTimeout(ctx, plan.Duration+c.grace())
	defer cancel()

	tasks := []struct {
		artifact Artifact
		args     []string
	}{
		{ArtifactVideo, RecorderArgs(c.ExtraInputArgs, target.URL, plan.Duration, result.VideoPath)},
		{ArtifactFrames, SamplerArgs(c.ExtraInputArgs, target.URL, plan.Duration, plan.Interval, startIndex, frameindex.FramePattern(target.Dir))},
	}

	errs := make([]error, len(tasks))
	var waitGroup sync.WaitGroup
	for i, task := range tasks {
		waitGroup.Add(1)
		go func() {
			defer waitGroup.Done()
			tail := newTailBuffer(c.tailLines())
			if err := c.runner().Run(taskCtx, c.binary(), task.args, tail); err != nil {
				errs[i] = &SourceError{
					Label:    target.Label,
					Artifact: task.artifact,
					Tail:     tail.Lines(),
					Err:      err,
				}
			}
		}()
	}
	waitGroup.Wait()

	result.Err = errors.Join(errs...)
	if result.Err != nil {
		logger.Warn("capture failed", "take", take, "error", result.Err)
	} else {
		logger.Info("capture finished", "take", take)
	}
	return result
}

func (c *Capturer) runner() Runner {
	if c.Runner == nil {
		return ExecRunner{}
	}
	return c.Runner
}

func (c *Capturer) binary() string {
	if strings.TrimSpace(c.Binary) == "" {
		return "ffmpeg"
	}
	return c.Binary
}

func (c *Capturer) grace() time.Duration {
	if c.Grace <= 0 {
		return DefaultGrace
	}
	return c.Grace
}

func (c *Capturer) tailLines() int {
	if c.TailLines <= 0 {
		return 20
	}
	return c.TailLines
}

func (c *Capturer) clock() clock.Clock {
	if c.Clock == nil {
		return clock.Real()
	}
	return c.Clock
}

func (c *Capturer) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return c.Logger
}
