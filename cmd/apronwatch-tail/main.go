// Copyright 2026 The Apronwatch Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/apronwatch/apronwatch/lib/cli"
	"github.com/apronwatch/apronwatch/lib/clock"
	"github.com/apronwatch/apronwatch/lib/process"
	"github.com/apronwatch/apronwatch/lib/telemetry"
)

const binaryName = "apronwatch-tail"

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var common cli.Common
	var (
		storePath string
		classes   []int
		tracks    []int
		last      int64
		once      bool
		tsv       bool
	)

	flagSet := pflag.NewFlagSet(binaryName, pflag.ContinueOnError)
	common.AddFlags(flagSet)
	flagSet.StringVar(&storePath, "store", "", "telemetry store path (overrides telemetry.store)")
	flagSet.IntSliceVar(&classes, "class", nil, "only show these object classes")
	flagSet.IntSliceVar(&tracks, "track", nil, "only show these track ids")
	flagSet.Int64Var(&last, "last", 0, "start with the last N rows instead of the whole store")
	flagSet.BoolVar(&once, "once", false, "print the current rows and exit")
	flagSet.BoolVar(&tsv, "tsv", false, "write tab-separated values even on a terminal")

	env, err := common.Start(binaryName, flagSet, os.Args[1:])
	if err != nil || env == nil {
		return err
	}
	cfg, logger := env.Config, env.Logger

	if storePath != "" {
		cfg.Telemetry.Store = storePath
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	reader, err := telemetry.OpenReader(telemetry.ReaderConfig{Path: cfg.Telemetry.Store, Logger: logger})
	if err != nil {
		return err
	}
	defer reader.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var out printer = &tsvPrinter{w: os.Stdout}
	if !tsv && term.IsTerminal(int(os.Stdout.Fd())) {
		out = &tablePrinter{w: os.Stdout}
	}

	tailer := &follower{
		reader: reader,
		filter: newFilter(classes, tracks),
	}
	if err := tailer.skipToLast(ctx, last); err != nil {
		return err
	}

	if once {
		return tailer.once(ctx, out)
	}
	return tailer.follow(ctx, clock.Real(), cfg.Telemetry.PollInterval, out)
}
