// Copyright 2026 The Apronwatch Authors
// SPDX-License-Identifier: Apache-2.0

package ledger

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"
)

var start = time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)

func TestReconcileUsesFramesOnDisk(t *testing.T) {
	tests := []struct {
		name         string
		startIndex   int
		nominal      int
		onDisk       []int
		wantIndices  []int
		wantEnd      int
		wantMismatch bool
	}{
		{"exact", 0, 6, []int{0, 1, 2, 3, 4, 5}, []int{0, 1, 2, 3, 4, 5}, 6, false},
		{"resumed run ignores earlier frames", 6, 6, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}, []int{6, 7, 8, 9, 10, 11}, 12, false},
		{"sampler produced an extra frame", 0, 6, []int{0, 1, 2, 3, 4, 5, 6}, []int{0, 1, 2, 3, 4, 5, 6}, 7, true},
		{"sampler produced fewer frames", 3, 6, []int{0, 1, 2, 3, 4}, []int{3, 4}, 5, true},
		{"unreachable source", 4, 6, []int{0, 1, 2, 3}, nil, 4, true},
		{"gap inside the run", 0, 4, []int{0, 1, 3}, []int{0, 1, 3}, 4, true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			r := Reconcile(test.startIndex, test.nominal, test.onDisk)
			if !slices.Equal(r.Indices, test.wantIndices) {
				t.Errorf("Indices = %v, want %v", r.Indices, test.wantIndices)
			}
			if r.End != test.wantEnd {
				t.Errorf("End = %d, want %d", r.End, test.wantEnd)
			}
			if r.Mismatch() != test.wantMismatch {
				t.Errorf("Mismatch = %v, want %v", r.Mismatch(), test.wantMismatch)
			}
		})
	}
}

func TestNominalCount(t *testing.T) {
	if got := NominalCount(60*time.Second, 10*time.Second); got != 6 {
		t.Errorf("NominalCount(60s, 10s) = %d, want 6", got)
	}
	if got := NominalCount(65*time.Second, 10*time.Second); got != 6 {
		t.Errorf("NominalCount(65s, 10s) = %d, want 6", got)
	}
	if got := NominalCount(time.Minute, 0); got != 0 {
		t.Errorf("NominalCount with zero interval = %d, want 0", got)
	}
}

func TestRowsDeriveTimestampsFromStart(t *testing.T) {
	r := Range{Start: 6, End: 9, Nominal: 3, Indices: []int{6, 7, 8}}
	rows := Rows(r, start, 10*time.Second)

	want := [][]string{
		{"14-03-26", "10", "30", "00", "Frame_6.jpg"},
		{"14-03-26", "10", "30", "10", "Frame_7.jpg"},
		{"14-03-26", "10", "30", "20", "Frame_8.jpg"},
	}
	if len(rows) != len(want) {
		t.Fatalf("Rows returned %d rows, want %d", len(rows), len(want))
	}
	for i, row := range rows {
		if got := row.Record(); !slices.Equal(got, want[i]) {
			t.Errorf("row %d = %v, want %v", i, got, want[i])
		}
	}
}

func TestAppendCreatesFileWithHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	rows := Rows(Range{Start: 0, End: 2, Indices: []int{0, 1}}, start, 10*time.Second)

	written, err := Append(path, rows)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if written != 2 {
		t.Errorf("Append wrote %d rows, want 2", written)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want := "Date,HH,MM,SS,FrameID\n" +
		"14-03-26,10,30,00,Frame_0.jpg\n" +
		"14-03-26,10,30,10,Frame_1.jpg\n"
	if string(data) != want {
		t.Errorf("ledger contents:\n%s\nwant:\n%s", data, want)
	}
}

func TestAppendIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	rows := Rows(Range{Start: 0, End: 3, Indices: []int{0, 1, 2}}, start, 10*time.Second)

	if _, err := Append(path, rows[:2]); err != nil {
		t.Fatalf("first Append: %v", err)
	}
	written, err := Append(path, rows)
	if err != nil {
		t.Fatalf("second Append: %v", err)
	}
	if written != 1 {
		t.Errorf("second Append wrote %d rows, want 1", written)
	}

	ids, err := FrameIDs(path)
	if err != nil {
		t.Fatalf("FrameIDs: %v", err)
	}
	if want := []string{"Frame_0.jpg", "Frame_1.jpg", "Frame_2.jpg"}; !slices.Equal(ids, want) {
		t.Errorf("FrameIDs = %v, want %v", ids, want)
	}
}

func TestAppendWritesInIndexOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	rows := []Row{
		{Time: start.Add(20 * time.Second), Index: 2},
		{Time: start, Index: 0},
		{Time: start.Add(10 * time.Second), Index: 1},
	}
	if _, err := Append(path, rows); err != nil {
		t.Fatalf("Append: %v", err)
	}

	ids, err := FrameIDs(path)
	if err != nil {
		t.Fatalf("FrameIDs: %v", err)
	}
	if want := []string{"Frame_0.jpg", "Frame_1.jpg", "Frame_2.jpg"}; !slices.Equal(ids, want) {
		t.Errorf("FrameIDs = %v, want %v", ids, want)
	}
}

func TestAppendDropsPartialLine(t *testing.T) {
	tests := []struct {
		name    string
		partial string
		want    string
	}{
		{
			name:    "short record",
			partial: "Date,HH,MM,SS,FrameID\n14-03-26,10,30,00,Frame_0.jpg\n14-03-26,10,3",
			want:    "Date,HH,MM,SS,FrameID\n14-03-26,10,30,00,Frame_0.jpg\n14-03-26,10,30,10,Frame_1.jpg\n",
		},
		{
			// Cut inside "Frame_1.jpg": five fields, so only the missing
			// terminator marks it as torn.
			name:    "five fields",
			partial: "Date,HH,MM,SS,FrameID\n14-03-26,10,30,00,Frame_0.jpg\n14-03-26,10,30,10,Frame_1",
			want:    "Date,HH,MM,SS,FrameID\n14-03-26,10,30,00,Frame_0.jpg\n14-03-26,10,30,10,Frame_1.jpg\n",
		},
		{
			name:    "torn header",
			partial: "Date,HH,M",
			want:    "Date,HH,MM,SS,FrameID\n14-03-26,10,30,10,Frame_1.jpg\n",
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), FileName)
			if err := os.WriteFile(path, []byte(test.partial), 0o644); err != nil {
				t.Fatal(err)
			}

			rows := []Row{{Time: start.Add(10 * time.Second), Index: 1}}
			written, err := Append(path, rows)
			if err != nil {
				t.Fatalf("Append: %v", err)
			}
			if written != 1 {
				t.Errorf("Append wrote %d rows, want 1", written)
			}
			data, err := os.ReadFile(path)
			if err != nil {
				t.Fatal(err)
			}
			if string(data) != test.want {
				t.Errorf("ledger =\n%s\nwant\n%s", data, test.want)
			}
		})
	}
}

func TestAppendAfterTornLineMatchesArtifacts(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	partial := "Date,HH,MM,SS,FrameID\n14-03-26,10,30,00,Frame_0.jpg\n14-03-26,10,30,10,Frame_1"
	if err := os.WriteFile(path, []byte(partial), 0o644); err != nil {
		t.Fatal(err)
	}

	// Recovery appends the whole run again.
	r := Reconcile(0, 3, []int{0, 1, 2})
	if _, err := Append(path, Rows(r, start, 10*time.Second)); err != nil {
		t.Fatalf("Append: %v", err)
	}

	ids, err := FrameIDs(path)
	if err != nil {
		t.Fatalf("FrameIDs: %v", err)
	}
	if want := []string{"Frame_0.jpg", "Frame_1.jpg", "Frame_2.jpg"}; !slices.Equal(ids, want) {
		t.Errorf("FrameIDs = %v, want %v", ids, want)
	}
	if len(ids) != r.Len() {
		t.Errorf("ledger has %d rows, run produced %d frames", len(ids), r.Len())
	}
}

func TestFrameIDsSkipsInvalidNames(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	content := "Date,HH,MM,SS,FrameID\n" +
		"14-03-26,10,30,00,Frame_0.jpg\n" +
		"14-03-26,10,30,10,Frame_1\n" +
		"14-03-26,10,30,20,Frame_02.jpg\n" +
		"14-03-26,10,30,30,notes.txt\n" +
		"14-03-26,10,30,40,Frame_4.jpg\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	ids, err := FrameIDs(path)
	if err != nil {
		t.Fatalf("FrameIDs: %v", err)
	}
	if want := []string{"Frame_0.jpg", "Frame_4.jpg"}; !slices.Equal(ids, want) {
		t.Errorf("FrameIDs = %v, want %v", ids, want)
	}
}

func TestAppendNoRowsCreatesHeaderOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	written, err := Append(path, nil)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if written != 0 {
		t.Errorf("Append wrote %d rows, want 0", written)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "Date,HH,MM,SS,FrameID\n" {
		t.Errorf("ledger = %q, want header only", data)
	}
}

func TestFrameIDsMissingFile(t *testing.T) {
	ids, err := FrameIDs(filepath.Join(t.TempDir(), FileName))
	if err != nil || ids != nil {
		t.Errorf("FrameIDs on missing file = %v, %v; want nil, nil", ids, err)
	}
}
