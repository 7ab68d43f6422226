// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package gatepro

import (
	"errors"
	"fmt"
	"time"
)

// FormatFrame formats a received frame into a human-readable string
func FormatFrame(f Frame, at time.Time) string {
	timestamp := at.Format("15:04:05.000")
	kind := Classify(f)

	result := fmt.Sprintf("[%s] RX %s %s\n", timestamp, kind, f.Payload())

	msg, err := ParseFrame(f)
	if err != nil {
		var decodeErr *DecodeError
		if errors.As(err, &decodeErr) {
			result += fmt.Sprintf("  Decode error: %v\n", decodeErr.Err)
		}
		return result
	}

	return result + FormatMessage(msg)
}

// FormatMessage formats the decoded content of a message
func FormatMessage(msg Message) string {
	switch m := msg.(type) {
	case StatusAck:
		corrected := CorrectPercentage(m.Percentage, DefaultPercentageOffset)
		if corrected != m.Percentage {
			return fmt.Sprintf("  Percentage: %d (raw 0x%02X, offset corrected)\n", corrected, m.Percentage)
		}
		return fmt.Sprintf("  Percentage: %d (raw 0x%02X)\n", corrected, m.Percentage)

	case ParamsAck:
		return fmt.Sprintf("  Params (%d): %s\n", len(m.Values), JoinParams(m.Values))

	case WriteAck:
		return "  (write acknowledged)\n"

	case EventMsg:
		return fmt.Sprintf("  Event: %s\n", m.Event)
	}

	return ""
}

// FormatCommand formats a transmitted command
func FormatCommand(o Outbound, at time.Time) string {
	timestamp := at.Format("15:04:05.000")
	return fmt.Sprintf("[%s] TX %s %s\n", timestamp, o, Escape(o.Encode()))
}

// CorrectPercentage removes the board's percentage offset from values above
// 100. Values up to 100 are returned unchanged.
func CorrectPercentage(raw, offset int) int {
	if raw > 100 {
		return raw - offset
	}
	return raw
}
