// Copyright 2026 The Apronwatch Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"math"
	"time"

	"github.com/apronwatch/apronwatch/lib/detection"
	"github.com/apronwatch/apronwatch/lib/weather"
)

// Width is the number of columns in a Row.
const Width = 16

// Column indices of a Row.
const (
	ColDate           = iota // YYYYMMDD
	ColHour                  // 0-23
	ColMinute                // 0-59
	ColSecond                // 0-59
	ColMicrosecond           // 0-999999
	ColTimeNormalized        // fraction of the day, [0, 1)
	ColTrackID               // NaN when the tracker has not assigned one
	ColClass
	ColCentroidX
	ColCentroidY
	ColTemperature // °C at 2 m
	ColHumidity    // % at 2 m
	ColRain        // mm
	ColShowers     // mm
	ColSnowfall    // cm
	ColCloudCover  // %
)

// Columns names each column, in order. They are also the store's
// column names.
var Columns = [Width]string{
	"date",
	"hour",
	"minute",
	"second",
	"microsecond",
	"time_normalized",
	"track_id",
	"class",
	"centroid_x",
	"centroid_y",
	"temperature_2m",
	"relative_humidity_2m",
	"rain",
	"showers",
	"snowfall",
	"cloud_cover",
}

// Row is one telemetry record.
type Row [Width]float64

// TimeFields holds the time columns shared by every row of a cycle.
type TimeFields struct {
	Date           float64
	Hour           float64
	Minute         float64
	Second         float64
	Microsecond    float64
	TimeNormalized float64
}

// NewTimeFields splits t, already in local capture time, into the time
// columns. TimeNormalized is the elapsed fraction of the day.
func NewTimeFields(t time.Time) TimeFields {
	hour := float64(t.Hour())
	minute := float64(t.Minute())
	second := float64(t.Second())
	microsecond := float64(t.Nanosecond() / 1000)

	return TimeFields{
		Date:           float64(t.Year()*10000 + int(t.Month())*100 + t.Day()),
		Hour:           hour,
		Minute:         minute,
		Second:         second,
		Microsecond:    microsecond,
		TimeNormalized: (hour + minute/60 + second/3600 + microsecond/3.6e9) / 24,
	}
}

// MissingWeather is the enrichment written when the weather source
// fails under PolicyNaN.
func MissingWeather() weather.Snapshot {
	nan := math.NaN()
	return weather.Snapshot{
		Temperature: nan,
		Humidity:    nan,
		Rain:        nan,
		Showers:     nan,
		Snowfall:    nan,
		CloudCover:  nan,
	}
}

// Assemble builds one row per object in frame. Time and weather fields
// are replicated across all rows.
func Assemble(fields TimeFields, frame detection.Frame, snapshot weather.Snapshot) []Row {
	rows := make([]Row, 0, len(frame.Objects))
	for _, object := range frame.Objects {
		var row Row
		row[ColDate] = fields.Date
		row[ColHour] = fields.Hour
		row[ColMinute] = fields.Minute
		row[ColSecond] = fields.Second
		row[ColMicrosecond] = fields.Microsecond
		row[ColTimeNormalized] = fields.TimeNormalized

		row[ColTrackID] = math.NaN()
		if object.Tracked {
			row[ColTrackID] = float64(object.TrackID)
		}
		row[ColClass] = float64(object.Class)
		row[ColCentroidX], row[ColCentroidY] = object.Centroid()

		row[ColTemperature] = snapshot.Temperature
		row[ColHumidity] = snapshot.Humidity
		row[ColRain] = snapshot.Rain
		row[ColShowers] = snapshot.Showers
		row[ColSnowfall] = snapshot.Snowfall
		row[ColCloudCover] = snapshot.CloudCover
		rows = append(rows, row)
	}
	return rows
}
