// Copyright 2026 The Apronwatch Authors
// SPDX-License-Identifier: Apache-2.0

package detection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/apronwatch/apronwatch/lib/codec"
)

type decodeResult struct {
	frame Frame
	err   error
}

// StreamSource decodes detector records from a reader. Decoding runs on
// its own goroutine so Next can return when its context is done even
// while a read is blocked.
type StreamSource struct {
	records  chan decodeResult
	done     chan struct{}
	finished chan struct{}

	closeOnce sync.Once

	// err is the terminal error, sticky once seen.
	err error
}

// NewStreamSource starts decoding r in format. The caller keeps
// ownership of r.
func NewStreamSource(r io.Reader, format Format) *StreamSource {
	s := &StreamSource{
		records:  make(chan decodeResult),
		done:     make(chan struct{}),
		finished: make(chan struct{}),
	}
	go s.decode(r, format)
	return s
}

type decoder interface {
	Decode(v any) error
}

func (s *StreamSource) decode(r io.Reader, format Format) {
	defer close(s.finished)

	var dec decoder
	switch format {
	case FormatCBOR:
		dec = codec.NewDecoder(r)
	default:
		dec = json.NewDecoder(r)
	}

	for record := 0; ; record++ {
		var wire wireFrame
		result := decodeResult{}
		if err := dec.Decode(&wire); err != nil {
			if errors.Is(err, io.EOF) {
				result.err = io.EOF
			} else if errors.Is(err, io.ErrUnexpectedEOF) {
				result.err = fmt.Errorf("detection: record %d truncated: %w", record, ErrMalformed)
			} else {
				result.err = fmt.Errorf("detection: record %d: %w: %v", record, ErrMalformed, err)
			}
		} else if frame, err := wire.frame(); err != nil {
			result.err = fmt.Errorf("detection: record %d: %w", record, err)
		} else {
			result.frame = frame
		}

		select {
		case s.records <- result:
		case <-s.done:
			return
		}
		if result.err != nil {
			return
		}
	}
}

// Next implements Source.
func (s *StreamSource) Next(ctx context.Context) (Frame, error) {
	if s.err != nil {
		return Frame{}, s.err
	}
	select {
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	case <-s.done:
		s.err = ErrClosed
		return Frame{}, s.err
	case result := <-s.records:
		if result.err != nil {
			s.err = result.err
			return Frame{}, s.err
		}
		return result.frame, nil
	}
}

// Close stops decoding. A decode blocked in a read finishes when the
// reader returns.
func (s *StreamSource) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	return nil
}
