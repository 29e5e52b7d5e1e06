// Copyright 2026 The Apronwatch Authors
// SPDX-License-Identifier: Apache-2.0

// Package weather supplies the current weather used to enrich telemetry
// rows.
//
// Apronwatch does not talk to a weather service itself. An external
// fetcher keeps a JSON snapshot file current (the Open-Meteo "current"
// response, as saved by a cron job, is accepted as is) and
// [FileSource] reads it. [Cached] bounds how often the file is read.
package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"sync"
	"time"

	"github.com/apronwatch/apronwatch/lib/clock"
)

// ErrUnavailable reports that no usable snapshot could be obtained.
var ErrUnavailable = errors.New("weather unavailable")

// Snapshot is one weather observation. A value the fetcher did not
// report is NaN.
type Snapshot struct {
	Temperature float64 // °C at 2 m
	Humidity    float64 // relative humidity at 2 m, %
	Rain        float64 // mm
	Showers     float64 // mm
	Snowfall    float64 // cm
	CloudCover  float64 // %

	ObservedAt time.Time
}

// Source returns the current weather.
type Source interface {
	Current(ctx context.Context) (Snapshot, error)
}

// FileSource reads a snapshot file on every call.
type FileSource struct {
	Path string

	// MaxAge rejects snapshots observed longer ago than this. Zero
	// disables the check.
	MaxAge time.Duration

	// Clock is used for the age check. Nil means clock.Real().
	Clock clock.Clock
}

type currentBlock struct {
	Time        string   `json:"time"`
	Temperature *float64 `json:"temperature_2m"`
	Humidity    *float64 `json:"relative_humidity_2m"`
	Rain        *float64 `json:"rain"`
	Showers     *float64 `json:"showers"`
	Snowfall    *float64 `json:"snowfall"`
	CloudCover  *float64 `json:"cloud_cover"`
}

// snapshotFile accepts both a full Open-Meteo response, with the values
// under "current", and a flat object carrying the same keys.
type snapshotFile struct {
	UTCOffsetSeconds int           `json:"utc_offset_seconds"`
	Current          *currentBlock `json:"current"`
	currentBlock
}

// Current implements Source.
func (f *FileSource) Current(ctx context.Context) (Snapshot, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("weather: %w: %v", ErrUnavailable, err)
	}

	var file snapshotFile
	if err := json.Unmarshal(data, &file); err != nil {
		return Snapshot{}, fmt.Errorf("weather: %w: parsing %s: %v", ErrUnavailable, f.Path, err)
	}
	block := file.currentBlock
	if file.Current != nil {
		block = *file.Current
	}

	observedAt, err := parseTime(block.Time, file.UTCOffsetSeconds)
	if err != nil {
		return Snapshot{}, fmt.Errorf("weather: %w: %s: %v", ErrUnavailable, f.Path, err)
	}

	if f.MaxAge > 0 {
		now := f.clock().Now()
		if age := now.Sub(observedAt); age > f.MaxAge {
			return Snapshot{}, fmt.Errorf("weather: %w: snapshot observed %s ago, limit %s",
				ErrUnavailable, age.Round(time.Second), f.MaxAge)
		}
	}

	return Snapshot{
		Temperature: valueOrNaN(block.Temperature),
		Humidity:    valueOrNaN(block.Humidity),
		Rain:        valueOrNaN(block.Rain),
		Showers:     valueOrNaN(block.Showers),
		Snowfall:    valueOrNaN(block.Snowfall),
		CloudCover:  valueOrNaN(block.CloudCover),
		ObservedAt:  observedAt,
	}, nil
}

func (f *FileSource) clock() clock.Clock {
	if f.Clock == nil {
		return clock.Real()
	}
	return f.Clock
}

// parseTime accepts RFC 3339 or Open-Meteo's minute-resolution local
// time, which is interpreted at offsetSeconds from UTC.
func parseTime(value string, offsetSeconds int) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("snapshot has no time")
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}
	t, err := time.ParseInLocation("2006-01-02T15:04", value, time.FixedZone("", offsetSeconds))
	if err != nil {
		return time.Time{}, fmt.Errorf("snapshot time %q: %w", value, err)
	}
	return t.UTC(), nil
}

func valueOrNaN(value *float64) float64 {
	if value == nil {
		return math.NaN()
	}
	return *value
}

// Cached serves the last good snapshot from Source until it is TTL
// old. A failed refresh is returned as is; an expired snapshot is never
// served.
type Cached struct {
	Source Source
	TTL    time.Duration

	// Clock is used for expiry. Nil means clock.Real().
	Clock clock.Clock

	mutex     sync.Mutex
	snapshot  Snapshot
	fetchedAt time.Time
	valid     bool
}

// Current implements Source.
func (c *Cached) Current(ctx context.Context) (Snapshot, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	now := c.clock().Now()
	if c.valid && now.Sub(c.fetchedAt) < c.TTL {
		return c.snapshot, nil
	}

	snapshot, err := c.Source.Current(ctx)
	if err != nil {
		c.valid = false
		return Snapshot{}, err
	}
	c.snapshot = snapshot
	c.fetchedAt = now
	c.valid = true
	return snapshot, nil
}

func (c *Cached) clock() clock.Clock {
	if c.Clock == nil {
		return clock.Real()
	}
	return c.Clock
}
