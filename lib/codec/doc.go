// Copyright 2026 The Apronwatch Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the shared CBOR encoding configuration.
//
// Detector processes may emit their per-frame results either as JSON
// Lines or as a CBOR sequence (RFC 8742): concatenated CBOR items with
// no framing. CBOR avoids float formatting on the hot path of a GPU
// tracker that emits tens of frames per second. This package holds the
// one encoder and decoder configuration so producers, the detection
// adapter, and tests agree byte for byte.
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2): sorted
// map keys, smallest integer encoding, no indefinite-length items.
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
//	encoder := codec.NewEncoder(stdout)
//	decoder := codec.NewDecoder(stdout)
//
// Types that appear in both wire formats carry only `json` tags;
// fxamacker/cbor v2 falls back to them when `cbor` tags are absent.
package codec
