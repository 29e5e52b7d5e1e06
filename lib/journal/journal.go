// Copyright 2026 The Apronwatch Authors
// SPDX-License-Identifier: Apache-2.0

// Package journal records capture runs that have launched but whose
// ledger rows have not been written yet.
//
// The capture binary writes an [Entry] into a source directory before
// starting that source's ffmpeg children, and clears it once the
// ledger rows for the run are appended. If the process is killed in
// between, the entry survives, and the next invocation finds it with
// [Find], reconciles the frames that reached disk, and appends their
// rows before starting a new run. Frame numbering never depends on the
// journal: allocation always scans the directory.
//
// The entry file is written atomically (write to temporary file,
// fsync, rename, fsync parent) so a reader never sees a partial entry.
package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// FileName is the journal file name inside a source directory.
const FileName = ".capture-pending.json"

// Entry describes one launched capture run.
type Entry struct {
	// Label is the source label.
	Label string `json:"label"`

	// Take is the video take index of the run.
	Take int `json:"take"`

	// StartIndex is the first frame index allocated to the run.
	StartIndex int `json:"start_index"`

	// Start is the local capture time the run was launched at, the
	// base for ledger timestamps.
	Start time.Time `json:"start"`

	// Interval is the frame sampling period.
	Interval time.Duration `json:"interval_ns"`

	// Nominal is the number of frames the run was expected to produce.
	Nominal int `json:"nominal"`
}

// Path returns the journal path for a source directory.
func Path(dir string) string {
	return filepath.Join(dir, FileName)
}

// Write atomically writes entry to path. The parent directory must
// already exist.
func Write(path string, entry Entry) error {
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("journal: marshaling entry: %w", err)
	}
	data = append(data, '\n')

	temporaryPath := path + ".tmp"

	file, err := os.OpenFile(temporaryPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("journal: creating temporary file: %w", err)
	}

	// Write, sync, close. On failure remove the temporary file and
	// report the first error.
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("journal: writing temporary file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("journal: syncing temporary file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("journal: closing temporary file: %w", err)
	}

	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("journal: renaming into place: %w", err)
	}

	parentDirectory, err := os.Open(filepath.Dir(path))
	if err == nil {
		parentDirectory.Sync()
		parentDirectory.Close()
	}
	return nil
}

// Read reads and parses the entry at path. When the file does not
// exist, the returned error wraps os.ErrNotExist.
func Read(path string) (Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Entry{}, err
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return Entry{}, fmt.Errorf("journal: parsing %s: %w", path, err)
	}
	return entry, nil
}

// Check reports whether a pending entry exists at path. A missing file
// is (Entry{}, false, nil); an unreadable or corrupt one is an error so
// callers can tell "nothing pending" from "pending but unusable".
func Check(path string) (Entry, bool, error) {
	entry, err := Read(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Entry{}, false, nil
		}
		return Entry{}, false, err
	}
	return entry, true, nil
}

// Clear removes the entry at path. Returns nil when it does not exist.
func Clear(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("journal: removing %s: %w", path, err)
	}
	return nil
}

// Find returns the paths of every pending entry in the source
// directories of every session under root, sorted. Runs killed on an
// earlier day are found as well as today's.
func Find(root string) ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(root, "*", "*", FileName))
	if err != nil {
		return nil, fmt.Errorf("journal: scanning %s: %w", root, err)
	}
	return paths, nil
}
