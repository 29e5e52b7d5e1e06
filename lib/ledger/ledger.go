// Copyright 2026 The Apronwatch Authors
// SPDX-License-Identifier: Apache-2.0

// Package ledger writes the per-source frame timestamp ledger.
//
// The ledger is a CSV file (frame_infos.csv) in each source directory
// with one row per frame artifact: capture date, hour, minute, second,
// and frame file name. Timestamps are not observed; they are derived
// from the run's start time and the sampling interval, so a ledger can
// be rebuilt for any run whose start index and start time are known.
//
// Rows are written only after a capture run has been joined. The range
// of frames a run produced is taken from disk, not from
// duration/interval: ffmpeg decides how many frames it emits, and the
// ledger must agree with the frames that actually exist.
package ledger

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	"github.com/apronwatch/apronwatch/lib/frameindex"
)

// FileName is the ledger file name inside a source directory.
const FileName = "frame_infos.csv"

// Header is the first record of every ledger file.
var Header = []string{"Date", "HH", "MM", "SS", "FrameID"}

const dateLayout = "02-01-06"

// Range is the set of frames one capture run produced.
type Range struct {
	// Start is the first index allocated to the run.
	Start int

	// End is one past the highest index found on disk, or Start when
	// the run produced nothing.
	End int

	// Nominal is duration/interval, the count the run was expected to
	// produce. Informational only.
	Nominal int

	// Indices are the on-disk frame indices in [Start, End), ascending.
	Indices []int
}

// Len returns the number of frames the run produced.
func (r Range) Len() int { return len(r.Indices) }

// Mismatch reports whether the run produced a different number of
// frames than nominal.
func (r Range) Mismatch() bool { return len(r.Indices) != r.Nominal }

// NominalCount returns how many frames a run of duration at interval
// is expected to produce.
func NominalCount(duration, interval time.Duration) int {
	if interval <= 0 {
		return 0
	}
	return int(duration / interval)
}

// Reconcile determines the frames produced by a run that started at
// startIndex, given every frame index currently on disk (ascending, as
// returned by frameindex.Scan). Indices below startIndex belong to
// earlier runs and are ignored.
func Reconcile(startIndex, nominal int, onDisk []int) Range {
	r := Range{Start: startIndex, End: startIndex, Nominal: nominal}
	for _, index := range onDisk {
		if index < startIndex {
			continue
		}
		r.Indices = append(r.Indices, index)
		r.End = index + 1
	}
	return r
}

// Row is one ledger record.
type Row struct {
	// Time is the local capture time of the frame.
	Time time.Time

	// Index is the frame index.
	Index int
}

// FrameID returns the frame file name recorded in the row.
func (r Row) FrameID() string { return frameindex.FrameName(r.Index) }

// Record returns the CSV fields of the row.
func (r Row) Record() []string {
	return []string{
		r.Time.Format(dateLayout),
		r.Time.Format("15"),
		r.Time.Format("04"),
		r.Time.Format("05"),
		r.FrameID(),
	}
}

// Rows derives one row per frame in r. Frame i was sampled at
// start + (i-r.Start)*interval.
func Rows(r Range, start time.Time, interval time.Duration) []Row {
	rows := make([]Row, 0, len(r.Indices))
	for _, index := range r.Indices {
		rows = append(rows, Row{
			Time:  start.Add(time.Duration(index-r.Start) * interval),
			Index: index,
		})
	}
	return rows
}

// Append adds rows to the ledger at path, creating it with Header when
// absent. Rows whose frame is already recorded are skipped, so a
// recovered run can be appended again without duplicates. Rows are
// written in increasing index order and synced to disk before Append
// returns. It returns the number of rows written.
func Append(path string, rows []Row) (int, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return 0, fmt.Errorf("ledger: opening %s: %w", path, err)
	}
	defer file.Close()

	size, err := truncatePartial(file)
	if err != nil {
		return 0, fmt.Errorf("ledger: repairing %s: %w", path, err)
	}
	existing, err := readIDs(io.NewSectionReader(file, 0, size))
	if err != nil {
		return 0, fmt.Errorf("ledger: parsing %s: %w", path, err)
	}
	recorded := make(map[string]bool, len(existing))
	for _, id := range existing {
		recorded[id] = true
	}

	pending := make([]Row, 0, len(rows))
	for _, row := range rows {
		id := row.FrameID()
		if recorded[id] {
			continue
		}
		recorded[id] = true
		pending = append(pending, row)
	}
	slices.SortFunc(pending, func(a, b Row) int { return a.Index - b.Index })

	if size > 0 && len(pending) == 0 {
		return 0, nil
	}
	if _, err := file.Seek(size, io.SeekStart); err != nil {
		return 0, fmt.Errorf("ledger: seeking %s: %w", path, err)
	}

	buffered := bufio.NewWriter(file)
	writer := csv.NewWriter(buffered)
	if size == 0 {
		writer.Write(Header)
	}
	for _, row := range pending {
		writer.Write(row.Record())
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return 0, fmt.Errorf("ledger: writing %s: %w", path, err)
	}
	if err := buffered.Flush(); err != nil {
		return 0, fmt.Errorf("ledger: writing %s: %w", path, err)
	}
	if err := file.Sync(); err != nil {
		return 0, fmt.Errorf("ledger: syncing %s: %w", path, err)
	}
	return len(pending), nil
}

// truncatePartial drops an unterminated last line left by a run killed
// mid-write and returns the resulting file size. A torn line can still
// hold five fields (a frame name cut to "Frame_1" from "Frame_12.jpg"),
// so it is discarded rather than terminated. A file with no complete
// line is emptied and gets a fresh header.
func truncatePartial(file *os.File) (int64, error) {
	info, err := file.Stat()
	if err != nil {
		return 0, err
	}
	size := info.Size()
	if size == 0 {
		return 0, nil
	}

	const chunk = 4096
	buf := make([]byte, chunk)
	end := size
	for end > 0 {
		start := max(end-chunk, 0)
		n, err := file.ReadAt(buf[:end-start], start)
		if err != nil && !errors.Is(err, io.EOF) {
			return 0, err
		}
		if end == size && buf[n-1] == '\n' {
			return size, nil
		}
		if i := bytes.LastIndexByte(buf[:n], '\n'); i >= 0 {
			keep := start + int64(i) + 1
			return keep, file.Truncate(keep)
		}
		end = start
	}
	return 0, file.Truncate(0)
}

// FrameIDs returns the frame IDs recorded in the ledger at path, in file
// order. A missing ledger has none.
func FrameIDs(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("ledger: opening %s: %w", path, err)
	}
	defer file.Close()

	ids, err := readIDs(file)
	if err != nil {
		return nil, fmt.Errorf("ledger: parsing %s: %w", path, err)
	}
	return ids, nil
}

// readIDs collects the frame IDs of complete records. Records with the
// wrong field count or a name that is not a frame file name are
// skipped.
func readIDs(r io.Reader) ([]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = true

	var ids []string
	for line := 0; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return ids, nil
		}
		if err != nil {
			return nil, err
		}
		if line == 0 && record[0] == Header[0] {
			continue
		}
		if len(record) != len(Header) {
			continue
		}
		id := record[len(record)-1]
		if _, ok := frameindex.ParseFrameName(id); !ok {
			continue
		}
		ids = append(ids, id)
	}
}
