// Copyright 2026 The Apronwatch Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

type sampleObject struct {
	TrackID *int       `json:"track_id"`
	Class   int        `json:"class"`
	Box     [4]float64 `json:"box"`
}

type sampleFrame struct {
	Objects []sampleObject `json:"objects"`
}

func intPointer(v int) *int { return &v }

func TestMarshalDeterministic(t *testing.T) {
	frame := sampleFrame{Objects: []sampleObject{
		{TrackID: intPointer(4), Class: 2, Box: [4]float64{10, 20, 30, 40}},
	}}

	first, err := Marshal(frame)
	if err != nil {
		t.Fatalf("first Marshal: %v", err)
	}
	second, err := Marshal(frame)
	if err != nil {
		t.Fatalf("second Marshal: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Errorf("deterministic encoding violated: %x != %x", first, second)
	}
}

func TestJSONTagFallback(t *testing.T) {
	data, err := Marshal(sampleObject{Class: 7})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var generic map[string]any
	if err := Unmarshal(data, &generic); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	for _, key := range []string{"track_id", "class", "box"} {
		if _, ok := generic[key]; !ok {
			t.Errorf("encoded map missing key %q: %v", key, generic)
		}
	}
	if generic["track_id"] != nil {
		t.Errorf("nil track_id encoded as %v, want null", generic["track_id"])
	}
}

func TestSequenceStream(t *testing.T) {
	frames := []sampleFrame{
		{Objects: []sampleObject{{TrackID: intPointer(1), Class: 0, Box: [4]float64{0, 0, 2, 2}}}},
		{},
		{Objects: []sampleObject{{Class: 3, Box: [4]float64{1.5, 2.5, 3.5, 4.5}}}},
	}

	var buffer bytes.Buffer
	encoder := NewEncoder(&buffer)
	for _, frame := range frames {
		if err := encoder.Encode(frame); err != nil {
			t.Fatalf("Encode: %v", err)
		}
	}

	decoder := NewDecoder(&buffer)
	for i, want := range frames {
		var got sampleFrame
		if err := decoder.Decode(&got); err != nil {
			t.Fatalf("Decode frame %d: %v", i, err)
		}
		if len(got.Objects) != len(want.Objects) {
			t.Fatalf("frame %d: %d objects, want %d", i, len(got.Objects), len(want.Objects))
		}
		for j := range want.Objects {
			if got.Objects[j].Box != want.Objects[j].Box || got.Objects[j].Class != want.Objects[j].Class {
				t.Errorf("frame %d object %d = %+v, want %+v", i, j, got.Objects[j], want.Objects[j])
			}
			if (got.Objects[j].TrackID == nil) != (want.Objects[j].TrackID == nil) {
				t.Errorf("frame %d object %d track id presence mismatch", i, j)
			}
		}
	}

	var extra sampleFrame
	if err := decoder.Decode(&extra); !errors.Is(err, io.EOF) {
		t.Errorf("Decode past end = %v, want io.EOF", err)
	}
}
