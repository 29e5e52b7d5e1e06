// Copyright 2026 The Apronwatch Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/apronwatch/apronwatch/lib/clock"
	"github.com/apronwatch/apronwatch/lib/detection"
	"github.com/apronwatch/apronwatch/lib/session"
	"github.com/apronwatch/apronwatch/lib/weather"
)

// Appender is the write side of the store used by Pipeline. *Writer
// implements it.
type Appender interface {
	Extend(ctx context.Context, rows []Row) error
	Flush() error
	Rollback() error
}

// Policy decides what a cycle does when the weather lookup fails.
type Policy int

const (
	// PolicyNaN writes the cycle with NaN weather fields.
	PolicyNaN Policy = iota

	// PolicySkipCycle drops the cycle's rows.
	PolicySkipCycle
)

// ParsePolicy maps the configuration names "nan" and "skip".
func ParsePolicy(name string) (Policy, error) {
	switch name {
	case "nan", "":
		return PolicyNaN, nil
	case "skip":
		return PolicySkipCycle, nil
	}
	return 0, fmt.Errorf("telemetry: unknown missing-enrichment policy %q", name)
}

func (p Policy) String() string {
	if p == PolicySkipCycle {
		return "skip"
	}
	return "nan"
}

// Stats counts pipeline activity.
type Stats struct {
	Cycles             int64
	Rows               int64
	EmptyFrames        int64
	SkippedCycles      int64
	EnrichmentFailures int64
}

// CycleResult reports one cycle.
type CycleResult struct {
	// Rows is the number of rows made visible by the cycle.
	Rows int

	// Skipped is set when PolicySkipCycle dropped the cycle.
	Skipped bool

	// EnrichmentErr is the weather error, if any. It does not fail
	// the cycle.
	EnrichmentErr error
}

// Pipeline turns detector frames into telemetry rows.
type Pipeline struct {
	Source     detection.Source
	Enrichment weather.Source
	Store      Appender

	// Clock and UTCOffset produce the local capture time. Nil Clock
	// means clock.Real().
	Clock     clock.Clock
	UTCOffset time.Duration

	MissingEnrichment Policy

	// Logger receives cycle failures and a summary on exit. Nil
	// discards.
	Logger *slog.Logger

	statsMutex sync.Mutex
	stats      Stats
}

// Stats returns a snapshot of the counters.
func (p *Pipeline) Stats() Stats {
	p.statsMutex.Lock()
	defer p.statsMutex.Unlock()
	return p.stats
}

func (p *Pipeline) count(update func(*Stats)) {
	p.statsMutex.Lock()
	update(&p.stats)
	p.statsMutex.Unlock()
}

// Cycle processes one received frame: it stamps the time, fetches the
// weather, assembles one row per object, then extends and flushes the
// store. A frame without objects appends nothing. If the extend or
// flush fails the pending rows are rolled back and the error returned.
func (p *Pipeline) Cycle(ctx context.Context, frame detection.Frame) (CycleResult, error) {
	fields := NewTimeFields(session.Localize(p.clock().Now(), p.UTCOffset))

	if len(frame.Objects) == 0 {
		p.count(func(s *Stats) { s.Cycles++; s.EmptyFrames++ })
		return CycleResult{}, nil
	}

	var result CycleResult
	snapshot, err := p.currentWeather(ctx)
	if err != nil {
		result.EnrichmentErr = err
		p.count(func(s *Stats) { s.EnrichmentFailures++ })
		if p.MissingEnrichment == PolicySkipCycle {
			p.count(func(s *Stats) { s.Cycles++; s.SkippedCycles++ })
			result.Skipped = true
			return result, nil
		}
		snapshot = MissingWeather()
	}

	rows := Assemble(fields, frame, snapshot)
	if err := p.Store.Extend(ctx, rows); err != nil {
		return result, p.rollback(fmt.Errorf("telemetry: extending store: %w", err))
	}
	if err := p.Store.Flush(); err != nil {
		return result, p.rollback(fmt.Errorf("telemetry: flushing store: %w", err))
	}

	result.Rows = len(rows)
	p.count(func(s *Stats) { s.Cycles++; s.Rows += int64(len(rows)) })
	return result, nil
}

func (p *Pipeline) currentWeather(ctx context.Context) (weather.Snapshot, error) {
	if p.Enrichment == nil {
		return weather.Snapshot{}, weather.ErrUnavailable
	}
	return p.Enrichment.Current(ctx)
}

func (p *Pipeline) rollback(cause error) error {
	if err := p.Store.Rollback(); err != nil {
		return errors.Join(cause, fmt.Errorf("telemetry: rollback: %w", err))
	}
	return cause
}

// Run processes frames until the source ends or ctx is done. Waiting for
// the next frame is the only point where cancellation is observed: a
// frame already received is written completely. Run returns nil on
// cancellation and at the end of the detector stream, and an error when
// the detector or the store fails. Rows flushed before an error stay in
// the store.
func (p *Pipeline) Run(ctx context.Context) error {
	logger := p.logger()
	defer func() {
		stats := p.Stats()
		logger.Info("telemetry pipeline stopped",
			"cycles", stats.Cycles,
			"rows", stats.Rows,
			"empty_frames", stats.EmptyFrames,
			"skipped_cycles", stats.SkippedCycles,
			"enrichment_failures", stats.EnrichmentFailures,
		)
	}()

	weatherDown := false
	for {
		frame, err := p.Source.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, io.EOF) {
				logger.Info("detector stream ended")
				return nil
			}
			return fmt.Errorf("telemetry: detector: %w", err)
		}

		result, err := p.Cycle(context.WithoutCancel(ctx), frame)
		if err != nil {
			return err
		}
		// Log transitions only; the detector runs at frame rate.
		switch {
		case result.EnrichmentErr != nil && !weatherDown:
			weatherDown = true
			logger.Warn("weather unavailable",
				"policy", p.MissingEnrichment.String(),
				"error", result.EnrichmentErr,
			)
		case result.EnrichmentErr == nil && weatherDown && result.Rows > 0:
			weatherDown = false
			logger.Info("weather available again")
		}
	}
}

func (p *Pipeline) clock() clock.Clock {
	if p.Clock == nil {
		return clock.Real()
	}
	return p.Clock
}

func (p *Pipeline) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return p.Logger
}
