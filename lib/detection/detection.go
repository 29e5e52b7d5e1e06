// Copyright 2026 The Apronwatch Authors
// SPDX-License-Identifier: Apache-2.0

// Package detection adapts an external object detector and tracker.
//
// Detection and tracking themselves run in a separate process (a GPU
// model server, typically). That process writes one record per
// processed frame to stdout, either as JSON Lines or as a CBOR
// sequence:
//
//	{"objects": [{"track_id": 4, "class": 2, "box": [x1, y1, x2, y2]}, ...]}
//
// A null or absent track_id marks an object the tracker has not
// assigned an identity to yet. An empty objects list is a frame with
// no detections. [StreamSource] decodes such a stream from any reader;
// [CommandSource] also owns the process producing it.
package detection

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// Object is one detected object in a frame.
type Object struct {
	// TrackID is the tracker identity. Meaningful only when Tracked.
	TrackID int
	Tracked bool

	// Class is the detector's class index.
	Class int

	// Box is the axis-aligned bounding box (x1, y1, x2, y2) in pixels.
	Box [4]float64
}

// Centroid returns the midpoint of the bounding box.
func (o Object) Centroid() (x, y float64) {
	return (o.Box[0] + o.Box[2]) / 2, (o.Box[1] + o.Box[3]) / 2
}

// Frame is the detector output for one processed frame.
type Frame struct {
	Objects []Object
}

// Source yields detector frames in order.
type Source interface {
	// Next blocks until the next frame is available. It returns
	// io.EOF after the last frame and ctx.Err() if ctx is done first.
	Next(ctx context.Context) (Frame, error)

	// Close releases the source.
	Close() error
}

// Format selects the wire encoding of a detector stream.
type Format string

const (
	FormatJSONL Format = "jsonl"
	FormatCBOR  Format = "cbor"
)

// ParseFormat validates a format name.
func ParseFormat(name string) (Format, error) {
	switch Format(name) {
	case FormatJSONL, FormatCBOR:
		return Format(name), nil
	}
	return "", fmt.Errorf("detection: unknown stream format %q", name)
}

// ErrMalformed reports a record that could not be decoded.
var ErrMalformed = errors.New("malformed detection record")

// ErrClosed is returned by Next after Close.
var ErrClosed = errors.New("detection source closed")

// Trackers commonly emit ids and classes straight from float tensors
// ("track_id": 4.0), so both decode as float64 and must be whole.
type wireObject struct {
	TrackID *float64   `json:"track_id"`
	Class   float64    `json:"class"`
	Box     [4]float64 `json:"box"`
}

type wireFrame struct {
	Objects []wireObject `json:"objects"`
}

func (w wireFrame) frame() (Frame, error) {
	frame := Frame{Objects: make([]Object, 0, len(w.Objects))}
	for i, object := range w.Objects {
		class, ok := wholeNumber(object.Class)
		if !ok {
			return Frame{}, fmt.Errorf("object %d: class %v: %w", i, object.Class, ErrMalformed)
		}
		converted := Object{Class: class, Box: object.Box}
		if object.TrackID != nil {
			trackID, ok := wholeNumber(*object.TrackID)
			if !ok {
				return Frame{}, fmt.Errorf("object %d: track_id %v: %w", i, *object.TrackID, ErrMalformed)
			}
			converted.TrackID = trackID
			converted.Tracked = true
		}
		frame.Objects = append(frame.Objects, converted)
	}
	return frame, nil
}

func wholeNumber(value float64) (int, bool) {
	if math.IsNaN(value) || math.IsInf(value, 0) || value != math.Trunc(value) ||
		value < math.MinInt32 || value > math.MaxInt32 {
		return 0, false
	}
	return int(value), true
}
