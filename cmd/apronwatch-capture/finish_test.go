// Copyright 2026 The Apronwatch Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/apronwatch/apronwatch/lib/capture"
	"github.com/apronwatch/apronwatch/lib/frameindex"
	"github.com/apronwatch/apronwatch/lib/journal"
	"github.com/apronwatch/apronwatch/lib/ledger"
	"github.com/apronwatch/apronwatch/lib/logging"
)

var runStart = time.Date(2026, 5, 2, 23, 59, 50, 0, time.UTC)

func writeFrames(t *testing.T, dir string, indices ...int) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, index := range indices {
		if err := os.WriteFile(filepath.Join(dir, frameindex.FrameName(index)), []byte("jpeg"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func pendingEntry(startIndex int) journal.Entry {
	return journal.Entry{
		Label:      "apron",
		Take:       2,
		StartIndex: startIndex,
		Start:      runStart,
		Interval:   10 * time.Second,
		Nominal:    6,
	}
}

func TestFinishRunWritesLedgerAndClearsJournal(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "02_05_2026", "apron")
	writeFrames(t, dir, 0, 1, 2, 3, 4, 5, 6, 7)
	entry := pendingEntry(6)
	if err := journal.Write(journal.Path(dir), entry); err != nil {
		t.Fatal(err)
	}

	if err := finishRun(dir, entry, logging.Discard()); err != nil {
		t.Fatalf("finishRun: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, ledger.FileName))
	if err != nil {
		t.Fatal(err)
	}
	want := "Date,HH,MM,SS,FrameID\n" +
		"02-05-26,23,59,50,Frame_6.jpg\n" +
		"03-05-26,00,00,00,Frame_7.jpg\n"
	if string(data) != want {
		t.Errorf("ledger =\n%s\nwant\n%s", data, want)
	}
	if _, pending, _ := journal.Check(journal.Path(dir)); pending {
		t.Error("journal still pending after finishRun")
	}
}

func TestRecoverPendingFindsEarlierSessions(t *testing.T) {
	root := t.TempDir()
	yesterday := filepath.Join(root, "02_05_2026", "apron")
	today := filepath.Join(root, "03_05_2026", "taxiway")
	writeFrames(t, yesterday, 0, 1, 2)
	writeFrames(t, today, 0, 1)

	if err := journal.Write(journal.Path(yesterday), pendingEntry(0)); err != nil {
		t.Fatal(err)
	}
	other := pendingEntry(1)
	other.Label = "taxiway"
	if err := journal.Write(journal.Path(today), other); err != nil {
		t.Fatal(err)
	}

	if err := recoverPending(root, logging.Discard()); err != nil {
		t.Fatalf("recoverPending: %v", err)
	}

	for dir, rows := range map[string]int{yesterday: 3, today: 1} {
		ids, err := ledger.FrameIDs(filepath.Join(dir, ledger.FileName))
		if err != nil {
			t.Fatalf("FrameIDs(%s): %v", dir, err)
		}
		if len(ids) != rows {
			t.Errorf("%s ledger has %d rows, want %d", dir, len(ids), rows)
		}
	}
	if paths, _ := journal.Find(root); len(paths) != 0 {
		t.Errorf("journals left after recovery: %v", paths)
	}

	// Running recovery again finds nothing and changes nothing.
	if err := recoverPending(root, logging.Discard()); err != nil {
		t.Fatalf("second recoverPending: %v", err)
	}
}

func TestRecoverPendingKeepsCorruptJournal(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "02_05_2026", "apron")
	writeFrames(t, dir, 0)
	if err := os.WriteFile(journal.Path(dir), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	err := recoverPending(root, logging.Discard())
	if err == nil || !strings.Contains(err.Error(), "journal") {
		t.Fatalf("recoverPending = %v, want journal parse error", err)
	}
	if _, statErr := os.Stat(journal.Path(dir)); statErr != nil {
		t.Errorf("corrupt journal removed: %v", statErr)
	}
}

func TestRecoverPendingEmptyRoot(t *testing.T) {
	if err := recoverPending(filepath.Join(t.TempDir(), "absent"), logging.Discard()); err != nil {
		t.Errorf("recoverPending on missing root = %v", err)
	}
}

func TestReportFailureIncludesStderrTail(t *testing.T) {
	var buffer bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buffer, nil))
	reportFailure(logger, capture.Result{
		Label: "apron",
		Err: errors.Join(&capture.SourceError{
			Label:    "apron",
			Artifact: capture.ArtifactFrames,
			Tail:     []string{"rtsp://10.0.0.9/stream: Connection refused"},
			Err:      errors.New("exit status 1"),
		}),
	})

	output := buffer.String()
	for _, want := range []string{`"source":"apron"`, `"artifact":"frames"`, "Connection refused"} {
		if !strings.Contains(output, want) {
			t.Errorf("log output missing %s:\n%s", want, output)
		}
	}
}
