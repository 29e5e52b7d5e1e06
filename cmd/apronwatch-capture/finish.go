// Copyright 2026 The Apronwatch Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/apronwatch/apronwatch/lib/capture"
	"github.com/apronwatch/apronwatch/lib/frameindex"
	"github.com/apronwatch/apronwatch/lib/journal"
	"github.com/apronwatch/apronwatch/lib/ledger"
	"github.com/apronwatch/apronwatch/lib/process"
)

// finishRun writes the ledger rows for the frames a run left in dir and
// clears the run's journal. The journal stays in place when the ledger
// could not be written, so the next invocation retries.
func finishRun(dir string, entry journal.Entry, logger *slog.Logger) error {
	onDisk, err := frameindex.Scan(dir)
	if err != nil {
		return err
	}
	reconciled := ledger.Reconcile(entry.StartIndex, entry.Nominal, onDisk)
	written, err := ledger.Append(filepath.Join(dir, ledger.FileName), ledger.Rows(reconciled, entry.Start, entry.Interval))
	if err != nil {
		return err
	}

	attrs := []any{
		"source", entry.Label,
		"take", entry.Take,
		"first_index", reconciled.Start,
		"end_index", reconciled.End,
		"frames", reconciled.Len(),
		"ledger_rows", written,
	}
	if reconciled.Mismatch() {
		logger.Warn("frame count differs from nominal", append(attrs, "nominal", reconciled.Nominal)...)
	} else {
		logger.Info("ledger updated", attrs...)
	}

	return journal.Clear(journal.Path(dir))
}

// recoverPending finishes every run under root whose journal is still
// present because the process that launched it was killed before
// writing its ledger.
func recoverPending(root string, logger *slog.Logger) error {
	paths, err := journal.Find(root)
	if err != nil {
		return err
	}
	var errs []error
	for _, path := range paths {
		entry, pending, err := journal.Check(path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !pending {
			continue
		}
		logger.Warn("recovering interrupted capture run", "journal", path, "source", entry.Label, "take", entry.Take)
		if err := finishRun(filepath.Dir(path), entry, logger); err != nil {
			errs = append(errs, fmt.Errorf("recovering %s: %w", path, err))
		}
	}
	return errors.Join(errs...)
}

func reportFailure(logger *slog.Logger, result capture.Result) {
	var sourceError *capture.SourceError
	if errors.As(result.Err, &sourceError) && len(sourceError.Tail) > 0 {
		logger.Error("source failed",
			"source", result.Label,
			"artifact", sourceError.Artifact,
			"exit_code", process.ExitCode(sourceError.Err),
			"error", result.Err,
			"ffmpeg_stderr", sourceError.Tail,
		)
		return
	}
	logger.Error("source failed", "source", result.Label, "error", result.Err)
}
