// Copyright 2026 The Apronwatch Authors
// SPDX-License-Identifier: Apache-2.0

package frameindex

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
)

func touch(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestNextEmptyDirectory(t *testing.T) {
	next, err := Next(t.TempDir())
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if next != 0 {
		t.Errorf("Next = %d, want 0", next)
	}
}

func TestNextMissingDirectory(t *testing.T) {
	next, err := Next(filepath.Join(t.TempDir(), "absent"))
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if next != 0 {
		t.Errorf("Next = %d, want 0", next)
	}
}

func TestNextResumesAboveMaximumAcrossGaps(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, FrameName(0), FrameName(1), FrameName(7), "frame_infos.csv", "Gdansk_Live_stream_0.mp4")

	next, err := Next(dir)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if next != 8 {
		t.Errorf("Next = %d, want 8", next)
	}
}

func TestScanSortsNumerically(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, FrameName(10), FrameName(2), FrameName(1))

	indices, err := Scan(dir)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if want := []int{1, 2, 10}; !slices.Equal(indices, want) {
		t.Errorf("Scan = %v, want %v", indices, want)
	}
}

func TestMalformedFrameNameIsFatal(t *testing.T) {
	for _, name := range []string{"Frame_x.jpg", "Frame_.jpg", "Frame_-3.jpg", "Frame_007.jpg"} {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			touch(t, dir, FrameName(0), name)

			_, err := Next(dir)
			if !errors.Is(err, ErrMalformedArtifact) {
				t.Fatalf("Next error = %v, want ErrMalformedArtifact", err)
			}
		})
	}
}

func TestNextTakeIsPerLabel(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "Gdansk_Live_stream_0.mp4", "Gdansk_Live_stream_1.mp4", "Apron_Live_stream_4.mp4")

	take, err := NextTake(dir, "Gdansk")
	if err != nil {
		t.Fatalf("NextTake: %v", err)
	}
	if take != 2 {
		t.Errorf("NextTake(Gdansk) = %d, want 2", take)
	}

	take, err = NextTake(dir, "Tower")
	if err != nil {
		t.Fatalf("NextTake: %v", err)
	}
	if take != 0 {
		t.Errorf("NextTake(Tower) = %d, want 0", take)
	}
}

func TestArtifactPaths(t *testing.T) {
	if got, want := FramePattern("/data/a"), "/data/a/Frame_%d.jpg"; got != want {
		t.Errorf("FramePattern = %q, want %q", got, want)
	}
	if got, want := VideoPath("/data/a", "Gdansk", 3), "/data/a/Gdansk_Live_stream_3.mp4"; got != want {
		t.Errorf("VideoPath = %q, want %q", got, want)
	}
}

func TestParseFrameName(t *testing.T) {
	tests := []struct {
		name  string
		index int
		ok    bool
	}{
		{"Frame_0.jpg", 0, true},
		{"Frame_12.jpg", 12, true},
		{FrameName(4096), 4096, true},
		{"Frame_1", 0, false},
		{"Frame_1.jp", 0, false},
		{"Frame_007.jpg", 0, false},
		{"Frame_-3.jpg", 0, false},
		{"Frame_.jpg", 0, false},
		{"Gdansk_Live_stream_1.mp4", 0, false},
	}
	for _, test := range tests {
		index, ok := ParseFrameName(test.name)
		if index != test.index || ok != test.ok {
			t.Errorf("ParseFrameName(%q) = %d, %v, want %d, %v", test.name, index, ok, test.index, test.ok)
		}
	}
}
