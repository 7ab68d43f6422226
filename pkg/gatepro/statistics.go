// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package gatepro

import (
	"errors"
	"fmt"
	"time"
)

// Statistics tracks frame statistics and error rates
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Receive counters
	TotalFrames   uint64
	StatusAcks    uint64
	ParamsAcks    uint64
	WriteAcks     uint64
	Events        uint64
	UnknownFrames uint64
	DecodeErrors  uint64
	Overflows     uint64

	// Transmit counters
	Commands    uint64
	WriteErrors uint64

	// Rates (calculated)
	FrameRate float64 // frames/sec
	ErrorRate float64 // errors/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// Update records one received frame and the result of parsing it
func (s *Statistics) Update(msg Message, parseErr error) {
	s.TotalFrames++
	s.LastUpdateTime = time.Now()

	if parseErr != nil {
		if errors.Is(parseErr, ErrUnknownFrame) {
			s.UnknownFrames++
		} else {
			s.DecodeErrors++
		}
		return
	}

	switch msg.Kind() {
	case KindStatusAck:
		s.StatusAcks++
	case KindParamsAck:
		s.ParamsAcks++
	case KindWriteAck:
		s.WriteAcks++
	case KindEvent:
		s.Events++
	}
}

// RecordCommand records one transmitted command
func (s *Statistics) RecordCommand(writeErr error) {
	s.Commands++
	if writeErr != nil {
		s.WriteErrors++
	}
}

// RecordOverflows sets the framer overflow counter
func (s *Statistics) RecordOverflows(n int) {
	s.Overflows = uint64(n)
}

// Errors returns the total error count
func (s *Statistics) Errors() uint64 {
	return s.DecodeErrors + s.Overflows + s.WriteErrors
}

// CalculateRates calculates frame and error rates
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.FrameRate = float64(s.TotalFrames) / elapsed
		s.ErrorRate = float64(s.Errors()) / elapsed
	}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()

	var knownPercent, unknownPercent, decodePercent float64
	if s.TotalFrames > 0 {
		known := s.StatusAcks + s.ParamsAcks + s.WriteAcks + s.Events
		knownPercent = float64(known) * 100.0 / float64(s.TotalFrames)
		unknownPercent = float64(s.UnknownFrames) * 100.0 / float64(s.TotalFrames)
		decodePercent = float64(s.DecodeErrors) * 100.0 / float64(s.TotalFrames)
	}

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Total Frames:    %8d\n", s.TotalFrames)
	result += fmt.Sprintf("Known Frames:    %8d (%.1f%%)\n", s.TotalFrames-s.UnknownFrames-s.DecodeErrors, knownPercent)
	result += fmt.Sprintf("  Status ACKs:      %5d\n", s.StatusAcks)
	result += fmt.Sprintf("  Params ACKs:      %5d\n", s.ParamsAcks)
	result += fmt.Sprintf("  Write ACKs:       %5d\n", s.WriteAcks)
	result += fmt.Sprintf("  Events:           %5d\n", s.Events)

	if s.UnknownFrames > 0 {
		result += fmt.Sprintf("Unknown Frames:  %8d (%.1f%%)\n", s.UnknownFrames, unknownPercent)
	}
	if s.DecodeErrors > 0 {
		result += fmt.Sprintf("Decode Errors:   %8d (%.1f%%)\n", s.DecodeErrors, decodePercent)
	}
	if s.Overflows > 0 {
		result += fmt.Sprintf("Buffer Overflows:%8d\n", s.Overflows)
	}
	if s.Commands > 0 {
		result += fmt.Sprintf("Commands Sent:   %8d\n", s.Commands)
	}
	if s.WriteErrors > 0 {
		result += fmt.Sprintf("Write Errors:    %8d\n", s.WriteErrors)
	}

	result += fmt.Sprintf("Frame Rate:      %8.1f frames/sec\n", s.FrameRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	*s = *NewStatistics()
}
