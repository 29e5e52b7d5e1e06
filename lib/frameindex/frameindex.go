// Copyright 2026 The Apronwatch Authors
// SPDX-License-Identifier: Apache-2.0

// Package frameindex allocates artifact sequence numbers for a source
// directory by scanning what is already on disk.
//
// Frame artifacts are named Frame_<n>.jpg and video artifacts
// <label>_Live_stream_<k>.mp4. Numbering is global across capture runs
// for a source: each run resumes at max(existing)+1, so repeated
// invocations on the same day append instead of overwriting. Gaps are
// tolerated; allocation always lands above the current maximum.
//
// A file that carries the artifact prefix and suffix but no valid
// non-negative index is [ErrMalformedArtifact]. Allocation refuses to
// guess in that case because a wrong guess would overwrite frames.
package frameindex

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

const (
	framePrefix = "Frame_"
	frameSuffix = ".jpg"

	videoInfix  = "_Live_stream_"
	videoSuffix = ".mp4"
)

// ErrMalformedArtifact reports an artifact whose embedded index cannot
// be parsed. It is a configuration error for that directory.
var ErrMalformedArtifact = errors.New("malformed artifact name")

// FrameName returns the file name of frame index i.
func FrameName(i int) string {
	return framePrefix + strconv.Itoa(i) + frameSuffix
}

// ParseFrameName returns the index of a frame file name produced by
// FrameName. Any other name reports false.
func ParseFrameName(name string) (int, bool) {
	if !strings.HasPrefix(name, framePrefix) || !strings.HasSuffix(name, frameSuffix) {
		return 0, false
	}
	return parseIndex(name, framePrefix, frameSuffix)
}

// FramePattern returns the ffmpeg image2 output pattern for dir.
func FramePattern(dir string) string {
	return filepath.Join(dir, framePrefix+"%d"+frameSuffix)
}

// VideoPath returns the path of take k for label in dir.
func VideoPath(dir, label string, take int) string {
	return filepath.Join(dir, label+videoInfix+strconv.Itoa(take)+videoSuffix)
}

// Scan returns the indices of every frame artifact in dir, ascending.
// A missing directory has no frames.
func Scan(dir string) ([]int, error) {
	return scan(dir, framePrefix, frameSuffix)
}

// Next returns the first frame index a new capture run in dir may use.
func Next(dir string) (int, error) {
	indices, err := Scan(dir)
	if err != nil {
		return 0, err
	}
	return nextAfter(indices), nil
}

// ScanTakes returns the take indices of every video artifact for label.
func ScanTakes(dir, label string) ([]int, error) {
	return scan(dir, label+videoInfix, videoSuffix)
}

// NextTake returns the take index for the next video artifact.
func NextTake(dir, label string) (int, error) {
	takes, err := ScanTakes(dir, label)
	if err != nil {
		return 0, err
	}
	return nextAfter(takes), nil
}

func nextAfter(sorted []int) int {
	if len(sorted) == 0 {
		return 0
	}
	return sorted[len(sorted)-1] + 1
}

func scan(dir, prefix, suffix string) ([]int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("frameindex: reading %s: %w", dir, err)
	}

	var indices []int
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, suffix) {
			continue
		}
		index, ok := parseIndex(name, prefix, suffix)
		if !ok {
			return nil, fmt.Errorf("frameindex: %s: %w", filepath.Join(dir, name), ErrMalformedArtifact)
		}
		indices = append(indices, index)
	}
	sort.Ints(indices)
	return indices, nil
}

// parseIndex accepts only the canonical decimal form, so Frame_01.jpg
// and Frame_-1.jpg are rejected.
func parseIndex(name, prefix, suffix string) (int, bool) {
	digits := strings.TrimSuffix(strings.TrimPrefix(name, prefix), suffix)
	index, err := strconv.Atoi(digits)
	if err != nil || index < 0 || digits != strconv.Itoa(index) {
		return 0, false
	}
	return index, true
}
