// Copyright 2026 The Apronwatch Authors
// SPDX-License-Identifier: Apache-2.0

// Package telemetry persists per-object tracking telemetry into an
// append-only store that live readers can tail.
//
// # Rows
//
// Every detected object in every processed frame becomes one [Row] of
// [Width] float64 columns: the capture time broken into fields, the
// track identity and class, the bounding-box centroid, and six weather
// fields. All objects of one frame share identical time and weather
// fields. The column order is fixed; see [Columns].
//
// # Store
//
// The store is a SQLite database in WAL mode holding one table whose
// rowid (seq) is the row's position. Exactly one [Writer] may have the
// store open, enforced with an advisory lock on a sibling ".lock" file;
// any number of [Reader]s may read concurrently, from any process.
//
// A Writer groups rows into a transaction: [Writer.Extend] adds rows
// that no reader can see yet, and [Writer.Flush] commits them. Readers
// therefore observe either none or all of the rows of a flush, and a
// process that dies between Extend and Flush leaves the store exactly
// as it was at the previous Flush. NaN values are stored as NULL.
//
// # Pipeline
//
// [Pipeline] drives the writer from a detection source: for each
// detector frame it stamps the time once, fetches the weather once,
// assembles one row per object, and extends and flushes the store.
package telemetry
