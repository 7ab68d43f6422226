// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package gatepro

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Kind classifies a received frame.
type Kind uint8

// Frame kinds
const (
	KindUnknown Kind = iota
	KindStatusAck
	KindParamsAck
	KindWriteAck
	KindEvent
)

func (k Kind) String() string {
	switch k {
	case KindStatusAck:
		return "STATUS_ACK"
	case KindParamsAck:
		return "PARAMS_ACK"
	case KindWriteAck:
		return "WRITE_ACK"
	case KindEvent:
		return "EVENT"
	default:
		return "UNKNOWN"
	}
}

// Event is a motor notification carried by a $V1PKF0 frame.
type Event uint8

// Motor events
const (
	EventOpening Event = iota + 1
	EventOpened
	EventClosing
	EventClosed
	EventStopped
)

// eventTokens maps wire tokens to events
var eventTokens = []struct {
	token string
	event Event
}{
	{tokenOpening, EventOpening},
	{tokenOpened, EventOpened},
	{tokenClosing, EventClosing},
	{tokenClosed, EventClosed},
	{tokenStopped, EventStopped},
}

func (e Event) String() string {
	for _, t := range eventTokens {
		if t.event == e {
			return t.token
		}
	}
	return "Unknown"
}

// Message is the typed content of a received frame.
type Message interface {
	Kind() Kind
}

// StatusAck answers READ_STATUS. Percentage is the raw decoded hex value,
// before any offset correction.
type StatusAck struct {
	Percentage int
}

// Kind implements Message
func (StatusAck) Kind() Kind { return KindStatusAck }

// ParamsAck answers READ_PARAMS with the full parameter vector.
type ParamsAck struct {
	Values []int
}

// Kind implements Message
func (ParamsAck) Kind() Kind { return KindParamsAck }

// WriteAck answers WRITE_PARAMS.
type WriteAck struct{}

// Kind implements Message
func (WriteAck) Kind() Kind { return KindWriteAck }

// EventMsg is an unsolicited motor event. It may be caused by a remote
// control rather than by a command from this side.
type EventMsg struct {
	Event Event
}

// Kind implements Message
func (EventMsg) Kind() Kind { return KindEvent }

// ErrUnknownFrame is returned for frames that match no known prefix. The
// board interleaves chatter we do not model, so callers drop these.
var ErrUnknownFrame = errors.New("unknown frame")

// DecodeError reports a frame with a known prefix whose payload could not be
// decoded.
type DecodeError struct {
	Frame Frame
	Kind  Kind
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s %q: %v", e.Kind, e.Frame.Payload(), e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Classify returns the frame kind based on its prefix only.
func Classify(f Frame) Kind {
	s := string(f)
	switch {
	case strings.HasPrefix(s, PrefixStatusAck):
		return KindStatusAck
	case strings.HasPrefix(s, PrefixParamsAck):
		return KindParamsAck
	case strings.HasPrefix(s, PrefixWriteAck):
		return KindWriteAck
	case strings.HasPrefix(s, PrefixEvent):
		return KindEvent
	default:
		return KindUnknown
	}
}

// ParseFrame decodes a frame into its typed message.
// Returns ErrUnknownFrame for unrecognized frames and *DecodeError for
// recognized frames with a malformed payload.
func ParseFrame(f Frame) (Message, error) {
	kind := Classify(f)
	switch kind {
	case KindStatusAck:
		return parseStatusAck(f)
	case KindParamsAck:
		return parseParamsAck(f)
	case KindWriteAck:
		return WriteAck{}, nil
	case KindEvent:
		return parseEvent(f)
	default:
		return nil, ErrUnknownFrame
	}
}

func parseStatusAck(f Frame) (Message, error) {
	s := f.Payload()
	end := StatusPercentOffset + StatusPercentLength
	if len(s) < end {
		return nil, &DecodeError{Frame: f, Kind: KindStatusAck, Err: fmt.Errorf("frame too short (%d chars, need %d)", len(s), end)}
	}

	value, err := strconv.ParseUint(s[StatusPercentOffset:end], 16, 8)
	if err != nil {
		return nil, &DecodeError{Frame: f, Kind: KindStatusAck, Err: err}
	}

	return StatusAck{Percentage: int(value)}, nil
}

func parseParamsAck(f Frame) (Message, error) {
	s := f.Payload()
	if len(s) <= ParamsOffset {
		return nil, &DecodeError{Frame: f, Kind: KindParamsAck, Err: fmt.Errorf("frame too short (%d chars)", len(s))}
	}

	field := s[ParamsOffset:]
	if len(field) > ParamsLength {
		field = field[:ParamsLength]
	}

	parts := strings.Split(field, ",")
	values := make([]int, 0, len(parts))
	for i, part := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, &DecodeError{Frame: f, Kind: KindParamsAck, Err: fmt.Errorf("param %d: %w", i, err)}
		}
		values = append(values, v)
	}

	return ParamsAck{Values: values}, nil
}

func parseEvent(f Frame) (Message, error) {
	s := f.Payload()
	if len(s) <= EventOffset {
		return nil, ErrUnknownFrame
	}

	rest := s[EventOffset:]
	for _, t := range eventTokens {
		if strings.HasPrefix(rest, t.token) {
			return EventMsg{Event: t.event}, nil
		}
	}

	return nil, ErrUnknownFrame
}
