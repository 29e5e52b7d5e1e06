// Copyright 2026 The Apronwatch Authors
// SPDX-License-Identifier: Apache-2.0

// Package session resolves the dated capture directory for a run.
//
// A session directory is <root>/<DD_MM_YYYY>, dated in the configured
// fixed offset from UTC, with one subdirectory per source label. Every
// capture run on the same calendar day resolves to the same directories,
// which is what lets frame numbering continue across runs.
package session

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/apronwatch/apronwatch/lib/clock"
)

// DateLayout formats the session directory name (DD_MM_YYYY).
const DateLayout = "02_01_2006"

// Manager creates session directories.
type Manager struct {
	// Root is the parent of all session directories.
	Root string

	// UTCOffset is added to UTC to obtain local capture time.
	UTCOffset time.Duration

	// Clock supplies the current time. Nil means clock.Real().
	Clock clock.Clock
}

// Session is a resolved capture session.
type Session struct {
	// Date is the directory name, DD_MM_YYYY.
	Date string

	// Start is the local capture time the session was resolved at.
	// Its location is UTC with the offset already applied, matching
	// the wall-clock fields written to the ledger.
	Start time.Time

	// Root is <Manager.Root>/<Date>.
	Root string

	// Sources maps each label to its directory.
	Sources map[string]string
}

// SourceDir returns the directory for label, or "" if label was not
// part of the resolution.
func (s *Session) SourceDir(label string) string {
	return s.Sources[label]
}

// Localize converts t to local capture time for offset.
func Localize(t time.Time, offset time.Duration) time.Time {
	return t.UTC().Add(offset)
}

// Now returns the current local capture time.
func (m *Manager) Now() time.Time {
	return Localize(m.clock().Now(), m.UTCOffset)
}

// Resolve dates the session from the current time and creates the
// session directory and one directory per label. Existing directories
// are reused.
func (m *Manager) Resolve(labels []string) (*Session, error) {
	start := m.Now()
	date := start.Format(DateLayout)
	root := filepath.Join(m.Root, date)

	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("session: creating %s: %w", root, err)
	}

	sources := make(map[string]string, len(labels))
	for _, label := range labels {
		if label == "" || label == "." || label == ".." || filepath.Base(label) != label {
			return nil, fmt.Errorf("session: invalid source label %q", label)
		}
		dir := filepath.Join(root, label)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("session: creating %s: %w", dir, err)
		}
		sources[label] = dir
	}

	return &Session{
		Date:    date,
		Start:   start,
		Root:    root,
		Sources: sources,
	}, nil
}

func (m *Manager) clock() clock.Clock {
	if m.Clock == nil {
		return clock.Real()
	}
	return m.Clock
}
