// Copyright 2026 The Apronwatch Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/apronwatch/apronwatch/lib/clock"
	"github.com/apronwatch/apronwatch/lib/telemetry"
)

// rowSource is the read side of the store. *telemetry.Reader
// implements it.
type rowSource interface {
	Len(ctx context.Context) (int64, error)
	Read(ctx context.Context, from, to int64) ([]telemetry.Row, error)
}

// filter keeps rows whose class and track id are in the configured
// sets. An empty set matches everything.
type filter struct {
	classes map[float64]bool
	tracks  map[float64]bool
}

func newFilter(classes, tracks []int) filter {
	f := filter{}
	if len(classes) > 0 {
		f.classes = make(map[float64]bool, len(classes))
		for _, class := range classes {
			f.classes[float64(class)] = true
		}
	}
	if len(tracks) > 0 {
		f.tracks = make(map[float64]bool, len(tracks))
		for _, track := range tracks {
			f.tracks[float64(track)] = true
		}
	}
	return f
}

func (f filter) match(row telemetry.Row) bool {
	if f.classes != nil && !f.classes[row[telemetry.ColClass]] {
		return false
	}
	// NaN track ids never match a track filter.
	if f.tracks != nil && !f.tracks[row[telemetry.ColTrackID]] {
		return false
	}
	return true
}

// follower tracks how far into the store it has read.
type follower struct {
	reader rowSource
	filter filter
	next   int64
}

// skipToLast positions the follower so the first poll returns at most
// the last n rows. n <= 0 keeps the whole store.
func (f *follower) skipToLast(ctx context.Context, n int64) error {
	if n <= 0 {
		return nil
	}
	length, err := f.reader.Len(ctx)
	if err != nil {
		return err
	}
	f.next = max(0, length-n)
	return nil
}

// poll returns the matching rows appended since the previous poll.
func (f *follower) poll(ctx context.Context) ([]telemetry.Row, error) {
	length, err := f.reader.Len(ctx)
	if err != nil {
		return nil, err
	}
	if length < f.next {
		return nil, fmt.Errorf("telemetry store shrank from %d to %d rows", f.next, length)
	}
	if length == f.next {
		return nil, nil
	}

	rows, err := f.reader.Read(ctx, f.next, length)
	if err != nil {
		return nil, err
	}
	f.next += int64(len(rows))

	matched := rows[:0]
	for _, row := range rows {
		if f.filter.match(row) {
			matched = append(matched, row)
		}
	}
	return matched, nil
}

// once prints the matching rows currently in the store. The printer is
// called even when nothing matches so TSV output always has a header.
func (f *follower) once(ctx context.Context, out printer) error {
	rows, err := f.poll(ctx)
	if err != nil {
		return err
	}
	return out.print(rows)
}

// follow polls every interval and prints new rows until ctx is done.
// The first poll is printed even when empty.
func (f *follower) follow(ctx context.Context, clk clock.Clock, interval time.Duration, out printer) error {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := clk.NewTicker(interval)
	defer ticker.Stop()

	for first := true; ; first = false {
		rows, err := f.poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if first || len(rows) > 0 {
			if err := out.print(rows); err != nil {
				return err
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

type printer interface {
	print(rows []telemetry.Row) error
}

func formatValue(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}

func formatRow(row telemetry.Row) []string {
	fields := make([]string, len(row))
	for i, value := range row {
		fields[i] = formatValue(value)
	}
	return fields
}

// tsvPrinter writes a header line on its first call, with or without
// rows.
type tsvPrinter struct {
	w             io.Writer
	headerWritten bool
}

func (p *tsvPrinter) print(rows []telemetry.Row) error {
	var builder strings.Builder
	if !p.headerWritten {
		builder.WriteString(strings.Join(telemetry.Columns[:], "\t"))
		builder.WriteByte('\n')
	}
	for _, row := range rows {
		builder.WriteString(strings.Join(formatRow(row), "\t"))
		builder.WriteByte('\n')
	}
	if _, err := io.WriteString(p.w, builder.String()); err != nil {
		return err
	}
	p.headerWritten = true
	return nil
}

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6")).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
	missingStyle = cellStyle.Foreground(lipgloss.Color("8"))
)

// tablePrinter draws each batch of new rows as a bordered table. An
// empty batch draws nothing.
type tablePrinter struct {
	w io.Writer
}

func (p *tablePrinter) print(rows []telemetry.Row) error {
	if len(rows) == 0 {
		return nil
	}
	cells := make([][]string, len(rows))
	for i, row := range rows {
		cells[i] = formatRow(row)
	}

	rendered := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("8"))).
		Headers(telemetry.Columns[:]...).
		Rows(cells...).
		StyleFunc(func(row, column int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if row < len(cells) && column < len(cells[row]) && cells[row][column] == "NaN" {
				return missingStyle
			}
			return cellStyle
		}).
		String()

	_, err := fmt.Fprintln(p.w, rendered)
	return err
}
