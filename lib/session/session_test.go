// Copyright 2026 The Apronwatch Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/apronwatch/apronwatch/lib/clock"
)

func TestResolveCreatesDatedDirectories(t *testing.T) {
	root := t.TempDir()
	fake := clock.Fake(time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC))
	manager := &Manager{Root: root, UTCOffset: time.Hour, Clock: fake}

	session, err := manager.Resolve([]string{"Gdansk", "Tower"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if session.Date != "14_03_2026" {
		t.Errorf("Date = %q, want 14_03_2026", session.Date)
	}
	if want := time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC); !session.Start.Equal(want) {
		t.Errorf("Start = %v, want %v", session.Start, want)
	}
	for _, label := range []string{"Gdansk", "Tower"} {
		dir := session.SourceDir(label)
		if want := filepath.Join(root, "14_03_2026", label); dir != want {
			t.Errorf("SourceDir(%s) = %q, want %q", label, dir, want)
		}
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Errorf("source directory %s not created: %v", dir, err)
		}
	}
	if session.SourceDir("Unknown") != "" {
		t.Error("SourceDir for unresolved label should be empty")
	}
}

func TestResolveOffsetCrossesMidnight(t *testing.T) {
	fake := clock.Fake(time.Date(2026, 12, 31, 23, 15, 0, 0, time.UTC))
	manager := &Manager{Root: t.TempDir(), UTCOffset: time.Hour, Clock: fake}

	session, err := manager.Resolve(nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if session.Date != "01_01_2027" {
		t.Errorf("Date = %q, want 01_01_2027", session.Date)
	}
}

func TestResolveIsIdempotentWithinDay(t *testing.T) {
	root := t.TempDir()
	fake := clock.Fake(time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC))
	manager := &Manager{Root: root, UTCOffset: time.Hour, Clock: fake}

	first, err := manager.Resolve([]string{"Gdansk"})
	if err != nil {
		t.Fatalf("first Resolve: %v", err)
	}
	marker := filepath.Join(first.SourceDir("Gdansk"), "Frame_0.jpg")
	if err := os.WriteFile(marker, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	fake.Advance(3 * time.Hour)
	second, err := manager.Resolve([]string{"Gdansk"})
	if err != nil {
		t.Fatalf("second Resolve: %v", err)
	}
	if second.Root != first.Root {
		t.Errorf("Root changed within a day: %q then %q", first.Root, second.Root)
	}
	if _, err := os.Stat(marker); err != nil {
		t.Errorf("existing artifact lost: %v", err)
	}
}

func TestResolveRejectsPathLabels(t *testing.T) {
	manager := &Manager{Root: t.TempDir(), Clock: clock.Fake(time.Now())}
	for _, label := range []string{"", "..", "a/b"} {
		if _, err := manager.Resolve([]string{label}); err == nil {
			t.Errorf("Resolve(%q) succeeded", label)
		}
	}
}

func TestLocalize(t *testing.T) {
	in := time.Date(2026, 3, 14, 9, 30, 0, 0, time.FixedZone("X", 5*3600))
	got := Localize(in, 2*time.Hour)
	if want := time.Date(2026, 3, 14, 6, 30, 0, 0, time.UTC); !got.Equal(want) || got.Hour() != 6 {
		t.Errorf("Localize = %v, want %v", got, want)
	}
}
