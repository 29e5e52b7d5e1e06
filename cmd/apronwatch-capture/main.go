// Copyright 2026 The Apronwatch Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/apronwatch/apronwatch/lib/capture"
	"github.com/apronwatch/apronwatch/lib/cli"
	"github.com/apronwatch/apronwatch/lib/journal"
	"github.com/apronwatch/apronwatch/lib/ledger"
	"github.com/apronwatch/apronwatch/lib/process"
	"github.com/apronwatch/apronwatch/lib/session"
)

const binaryName = "apronwatch-capture"

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var common cli.Common
	var frameInterval, recordDuration int

	flagSet := pflag.NewFlagSet(binaryName, pflag.ContinueOnError)
	common.AddFlags(flagSet)
	flagSet.IntVar(&frameInterval, "frame-interval", 0, "seconds between sampled frames (overrides frame_interval)")
	flagSet.IntVar(&recordDuration, "record-duration", 0, "seconds to record (overrides record_duration)")

	env, err := common.Start(binaryName, flagSet, os.Args[1:])
	if err != nil || env == nil {
		return err
	}
	cfg, logger := env.Config, env.Logger

	if flagSet.Changed("frame-interval") {
		cfg.FrameInterval = frameInterval
	}
	if flagSet.Changed("record-duration") {
		cfg.RecordDuration = recordDuration
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := recoverPending(cfg.DataRoot, logger); err != nil {
		return err
	}

	var labels []string
	for _, source := range cfg.Sources {
		labels = append(labels, source.Label)
	}
	manager := &session.Manager{Root: cfg.DataRoot, UTCOffset: cfg.UTCOffset}
	current, err := manager.Resolve(labels)
	if err != nil {
		return err
	}
	logger.Info("session resolved", "session", current.Root, "sources", len(labels))

	targets := make([]capture.Target, 0, len(cfg.Sources))
	for _, source := range cfg.Sources {
		targets = append(targets, capture.Target{
			Label:   source.Label,
			URL:     source.URL,
			Enabled: source.IsEnabled(),
			Dir:     current.SourceDir(source.Label),
		})
	}

	plan := capture.Plan{
		Interval: cfg.FrameIntervalDuration(),
		Duration: cfg.RecordDurationDuration(),
	}
	nominal := ledger.NominalCount(plan.Duration, plan.Interval)

	capturer := &capture.Capturer{
		Binary:         cfg.FFmpeg.Binary,
		ExtraInputArgs: cfg.FFmpeg.ExtraInputArgs,
		Grace:          cfg.FFmpeg.Grace,
		UTCOffset:      cfg.UTCOffset,
		Logger:         logger,
		OnLaunch: func(launch capture.Launch) error {
			return journal.Write(journal.Path(launch.Dir), journal.Entry{
				Label:      launch.Label,
				Take:       launch.Take,
				StartIndex: launch.StartIndex,
				Start:      launch.Started,
				Interval:   plan.Interval,
				Nominal:    nominal,
			})
		},
	}

	results := capturer.Capture(ctx, targets, plan)
	if ctx.Err() != nil {
		logger.Warn("capture interrupted, writing ledgers for frames on disk")
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Label < results[j].Label })

	var failed []string
	for _, result := range results {
		if result.Skipped {
			continue
		}
		if result.Launched {
			entry := journal.Entry{
				Label:      result.Label,
				Take:       result.Take,
				StartIndex: result.StartIndex,
				Start:      result.Started,
				Interval:   plan.Interval,
				Nominal:    nominal,
			}
			if err := finishRun(result.Dir, entry, logger); err != nil {
				result.Err = errors.Join(result.Err, err)
			}
		}
		if result.Err != nil {
			failed = append(failed, result.Label)
			reportFailure(logger, result)
		}
	}

	if len(failed) > 0 {
		return fmt.Errorf("%d of %d sources failed: %v", len(failed), len(results), failed)
	}
	return nil
}
