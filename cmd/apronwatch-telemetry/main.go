// Copyright 2026 The Apronwatch Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/apronwatch/apronwatch/lib/cli"
	"github.com/apronwatch/apronwatch/lib/config"
	"github.com/apronwatch/apronwatch/lib/detection"
	"github.com/apronwatch/apronwatch/lib/process"
	"github.com/apronwatch/apronwatch/lib/telemetry"
	"github.com/apronwatch/apronwatch/lib/weather"
)

const binaryName = "apronwatch-telemetry"

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() (err error) {
	var common cli.Common
	var storePath string

	flagSet := pflag.NewFlagSet(binaryName, pflag.ContinueOnError)
	common.AddFlags(flagSet)
	flagSet.StringVar(&storePath, "store", "", "telemetry store path (overrides telemetry.store)")

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
	if len(cfg.Telemetry.Detector.Command) == 0 {
		return fmt.Errorf("%w: telemetry.detector.command is required", config.ErrInvalid)
	}
	policy, err := telemetry.ParsePolicy(cfg.Telemetry.MissingEnrichment)
	if err != nil {
		return err
	}
	format, err := detection.ParseFormat(cfg.Telemetry.Detector.Format)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := telemetry.OpenWriter(telemetry.WriterConfig{
		Path:   cfg.Telemetry.Store,
		Logger: logger,
	})
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			err = errors.Join(err, closeErr)
		}
	}()
	logger.Info("telemetry store opened", "path", cfg.Telemetry.Store, "rows", store.Len())

	source, err := detection.StartCommand(detection.CommandConfig{
		Command: cfg.Telemetry.Detector.Command,
		Format:  format,
		Logger:  logger,
	})
	if err != nil {
		return err
	}
	// Release the detector before the store so its device memory is
	// freed even if closing the store blocks.
	defer func() {
		if closeErr := source.Close(); closeErr != nil {
			logger.Error("releasing detector", "error", closeErr)
			err = errors.Join(err, closeErr)
		}
	}()

	pipeline := &telemetry.Pipeline{
		Source:            source,
		Enrichment:        newEnrichment(cfg, logger),
		Store:             store,
		UTCOffset:         cfg.UTCOffset,
		MissingEnrichment: policy,
		Logger:            logger,
	}
	return pipeline.Run(ctx)
}

// newEnrichment returns the weather source, or nil when no snapshot
// file is configured, in which case every cycle follows the
// missing-enrichment policy.
func newEnrichment(cfg *config.Config, logger *slog.Logger) weather.Source {
	if cfg.Weather.SnapshotFile == "" {
		logger.Warn("no weather snapshot file configured", "policy", cfg.Telemetry.MissingEnrichment)
		return nil
	}
	return &weather.Cached{
		Source: &weather.FileSource{Path: cfg.Weather.SnapshotFile, MaxAge: cfg.Weather.MaxAge},
		TTL:    cfg.Weather.CacheTTL,
	}
}
