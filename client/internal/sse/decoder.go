// Copyright 2025 The Taskwire Authors
// SPDX-License-Identifier: Apache-2.0

// Package sse decodes Server-Sent Events streams.
package sse

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Frame is one decoded SSE frame: the event name and the raw data payload.
// Comment lines never produce a frame.
type Frame struct {
	Event string
	Data  string
}

// Decoder reads frames from an SSE stream.
type Decoder struct {
	scanner *bufio.Scanner
}

// maxLineSize bounds a single SSE line; data payloads are JSON-encoded task
// events and stay well under this.
const maxLineSize = 1 << 20

// NewDecoder creates a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), maxLineSize)
	return &Decoder{scanner: scanner}
}

// Next returns the next frame. It skips comment lines (used as keep-alives)
// and returns io.EOF when the stream ends cleanly.
func (d *Decoder) Next() (*Frame, error) {
	frame := &Frame{}

	for d.scanner.Scan() {
		line := d.scanner.Text()

		// Empty line terminates a frame.
		if line == "" {
			if frame.Event != "" || frame.Data != "" {
				return frame, nil
			}
			continue
		}

		// Comment lines carry no event.
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		value = strings.TrimPrefix(value, " ")

		switch field {
		case "event":
			frame.Event = value
		case "data":
			if frame.Data != "" {
				frame.Data += "\n"
			}
			frame.Data += value
		}
	}

	if err := d.scanner.Err(); err != nil {
		return nil, fmt.Errorf("read stream: %w", err)
	}

	// A final frame may end at EOF without a trailing blank line.
	if frame.Event != "" || frame.Data != "" {
		return frame, nil
	}
	return nil, io.EOF
}
