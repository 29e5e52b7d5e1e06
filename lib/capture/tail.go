// Copyright 2026 The Apronwatch Authors
// SPDX-License-Identifier: Apache-2.0

package capture

import (
	"bytes"
	"strings"
	"sync"
)

// tailBuffer is an io.Writer that keeps the last max complete lines
// written to it, plus any unterminated final line.
type tailBuffer struct {
	mutex   sync.Mutex
	lines   []string
	max     int
	next    int
	full    bool
	partial []byte
}

func newTailBuffer(max int) *tailBuffer {
	if max <= 0 {
		max = 1
	}
	return &tailBuffer{lines: make([]string, max), max: max}
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	data := p
	for {
		newline := bytes.IndexByte(data, '\n')
		if newline < 0 {
			b.partial = append(b.partial, data...)
			return len(p), nil
		}
		b.partial = append(b.partial, data[:newline]...)
		b.add(string(b.partial))
		b.partial = b.partial[:0]
		data = data[newline+1:]
	}
}

func (b *tailBuffer) add(line string) {
	line = cleanLine(line)
	if line == "" {
		return
	}
	b.lines[b.next] = line
	b.next = (b.next + 1) % b.max
	if b.next == 0 {
		b.full = true
	}
}

// Lines returns the retained lines, oldest first.
func (b *tailBuffer) Lines() []string {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	var result []string
	if b.full {
		result = append(result, b.lines[b.next:]...)
	}
	result = append(result, b.lines[:b.next]...)
	if partial := cleanLine(string(b.partial)); partial != "" {
		result = append(result, partial)
	}
	return result
}

// String returns the retained lines joined with newlines.
func (b *tailBuffer) String() string {
	return strings.Join(b.Lines(), "\n")
}

// cleanLine keeps the text after the last carriage return; ffmpeg
// progress output separates updates with them.
func cleanLine(line string) string {
	if index := strings.LastIndexByte(strings.TrimRight(line, "\r"), '\r'); index >= 0 {
		line = line[index+1:]
	}
	return strings.TrimSpace(line)
}
