// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package gatepro

import "strings"

// Frame is one complete received line in escaped form, including the
// trailing delimiter.
type Frame string

// Payload returns the frame text without the trailing delimiter.
func (f Frame) Payload() string {
	return strings.TrimSuffix(string(f), Delimiter)
}

// Reader cuts escaped frames out of the received byte stream.
//
// Bytes are escaped on arrival, appended to an internal buffer and split on
// the escaped delimiter. Complete frames are queued in arrival order; an
// incomplete tail stays buffered until more bytes arrive.
type Reader struct {
	buf       string
	frames    []Frame
	overflows int
}

// NewReader creates an empty frame reader.
func NewReader() *Reader {
	return &Reader{}
}

// Feed escapes data, appends it to the buffer and queues every complete
// frame. It returns the number of frames queued by this call.
func (r *Reader) Feed(data []byte) int {
	if len(data) == 0 {
		return 0
	}
	r.buf += Escape(data)

	count := 0
	for {
		pos := strings.Index(r.buf, Delimiter)
		if pos < 0 {
			break
		}
		end := pos + len(Delimiter)
		r.frames = append(r.frames, Frame(r.buf[:end]))
		r.buf = r.buf[end:]
		count++
	}

	if len(r.buf) > MaxBuffered {
		// Keep the tail in case it holds the first half of a delimiter
		keep := len(Delimiter) - 1
		r.buf = r.buf[len(r.buf)-keep:]
		r.overflows++
	}

	return count
}

// Next pops the oldest queued frame.
func (r *Reader) Next() (Frame, bool) {
	if len(r.frames) == 0 {
		return "", false
	}
	f := r.frames[0]
	r.frames[0] = ""
	r.frames = r.frames[1:]
	return f, true
}

// Pending returns the number of queued frames.
func (r *Reader) Pending() int {
	return len(r.frames)
}

// Buffered returns the incomplete escaped fragment not yet forming a frame.
func (r *Reader) Buffered() string {
	return r.buf
}

// Overflows returns how many times an unterminated fragment was discarded.
func (r *Reader) Overflows() int {
	return r.overflows
}

// Reset drops the buffered fragment and all queued frames.
func (r *Reader) Reset() {
	r.buf = ""
	r.frames = nil
}
