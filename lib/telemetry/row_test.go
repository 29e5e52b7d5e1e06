// Copyright 2026 The Apronwatch Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"math"
	"testing"
	"time"

	"github.com/apronwatch/apronwatch/lib/detection"
	"github.com/apronwatch/apronwatch/lib/weather"
)

func TestNewTimeFields(t *testing.T) {
	fields := NewTimeFields(time.Date(2026, 3, 14, 18, 45, 30, 250_000_000, time.UTC))

	if fields.Date != 20260314 {
		t.Errorf("Date = %v, want 20260314", fields.Date)
	}
	if fields.Hour != 18 || fields.Minute != 45 || fields.Second != 30 || fields.Microsecond != 250000 {
		t.Errorf("fields = %+v", fields)
	}
	want := (18 + 45.0/60 + 30.0/3600 + 250000/3.6e9) / 24
	if math.Abs(fields.TimeNormalized-want) > 1e-12 {
		t.Errorf("TimeNormalized = %v, want %v", fields.TimeNormalized, want)
	}
}

func TestTimeNormalizedRange(t *testing.T) {
	start := NewTimeFields(time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC))
	end := NewTimeFields(time.Date(2026, 3, 14, 23, 59, 59, 999_999_000, time.UTC))
	if start.TimeNormalized != 0 {
		t.Errorf("midnight = %v, want 0", start.TimeNormalized)
	}
	if end.TimeNormalized >= 1 || end.TimeNormalized < 0.9999 {
		t.Errorf("end of day = %v, want just below 1", end.TimeNormalized)
	}
}

func TestAssemble(t *testing.T) {
	fields := NewTimeFields(time.Date(2026, 3, 14, 10, 30, 5, 0, time.UTC))
	frame := detection.Frame{Objects: []detection.Object{
		{TrackID: 7, Tracked: true, Class: 2, Box: [4]float64{0, 10, 20, 30}},
		{Class: 5, Box: [4]float64{100, 100, 110, 120}},
	}}
	snapshot := weather.Snapshot{Temperature: 3.5, Humidity: 80, Rain: 0.2, Showers: 0, Snowfall: 0, CloudCover: 90}

	rows := Assemble(fields, frame, snapshot)
	if len(rows) != 2 {
		t.Fatalf("Assemble returned %d rows, want 2", len(rows))
	}

	first := rows[0]
	if first[ColTrackID] != 7 || first[ColClass] != 2 || first[ColCentroidX] != 10 || first[ColCentroidY] != 20 {
		t.Errorf("first row object fields = %v", first[ColTrackID:ColTemperature])
	}
	if !math.IsNaN(rows[1][ColTrackID]) {
		t.Errorf("untracked object track id = %v, want NaN", rows[1][ColTrackID])
	}
	if rows[1][ColCentroidX] != 105 || rows[1][ColCentroidY] != 110 {
		t.Errorf("second centroid = (%v, %v)", rows[1][ColCentroidX], rows[1][ColCentroidY])
	}
	for i, row := range rows {
		if row[ColTemperature] != 3.5 || row[ColHumidity] != 80 || row[ColCloudCover] != 90 {
			t.Errorf("row %d weather = %v", i, row[ColTemperature:])
		}
		if row[ColDate] != 20260314 || row[ColSecond] != 5 {
			t.Errorf("row %d time = %v", i, row[:ColTrackID])
		}
	}
}

func TestMissingWeatherIsNaN(t *testing.T) {
	rows := Assemble(NewTimeFields(time.Now()), detection.Frame{Objects: []detection.Object{{}}}, MissingWeather())
	for column := ColTemperature; column <= ColCloudCover; column++ {
		if !math.IsNaN(rows[0][column]) {
			t.Errorf("column %s = %v, want NaN", Columns[column], rows[0][column])
		}
	}
}
