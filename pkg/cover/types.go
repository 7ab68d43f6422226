// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package cover drives a GatePro gate board as a generic cover: position in
// [0, 1] where 0 is closed and 1 is open, with open, close, stop and
// set-position requests.
//
// Controller owns all device state and serializes access to it. Runner
// schedules the controller against a transport: a fast loop parses received
// frames one at a time and a slower tick publishes state, applies corrective
// actions and transmits at most one queued command.
package cover

import (
	"fmt"
	"time"

	"github.com/markv9401/gatepro/pkg/gatepro"
)

// Operation is the current motor activity.
type Operation uint8

// Operations
const (
	OperationIdle Operation = iota
	OperationOpening
	OperationClosing
)

func (o Operation) String() string {
	switch o {
	case OperationIdle:
		return "IDLE"
	case OperationOpening:
		return "OPENING"
	case OperationClosing:
		return "CLOSING"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", o)
	}
}

// Positions of the two travel extremes
const (
	PositionClosed = 0.0
	PositionOpen   = 1.0
)

// CallKind selects the request carried by a Call.
type CallKind uint8

// Call kinds
const (
	CallStop CallKind = iota
	CallPosition
	CallToggle
	CallOpen
	CallClose
)

func (k CallKind) String() string {
	switch k {
	case CallStop:
		return "stop"
	case CallPosition:
		return "position"
	case CallToggle:
		return "toggle"
	case CallOpen:
		return "open"
	case CallClose:
		return "close"
	default:
		return fmt.Sprintf("unknown(%d)", k)
	}
}

// Call is a control request from the cover host.
type Call struct {
	Kind     CallKind
	Position float64 // only for CallPosition
}

// StopCall requests the gate to stop.
func StopCall() Call { return Call{Kind: CallStop} }

// PositionCall requests travel to position p.
func PositionCall(p float64) Call { return Call{Kind: CallPosition, Position: p} }

// ToggleCall stops a moving gate or starts it in the opposite direction.
func ToggleCall() Call { return Call{Kind: CallToggle} }

// OpenCall requests full open.
func OpenCall() Call { return Call{Kind: CallOpen} }

// CloseCall requests full close.
func CloseCall() Call { return Call{Kind: CallClose} }

// Validate rejects a position outside [0, 1], NaN included.
func (c Call) Validate() error {
	if c.Kind == CallPosition && !(c.Position >= PositionClosed && c.Position <= PositionOpen) {
		return fmt.Errorf("%w: %v", ErrInvalidPosition, c.Position)
	}
	return nil
}

func (c Call) String() string {
	if c.Kind == CallPosition {
		return fmt.Sprintf("position(%.2f)", c.Position)
	}
	return c.Kind.String()
}

// Traits describes the capabilities exposed to the cover host.
type Traits struct {
	SupportsPosition bool
	SupportsStop     bool
	SupportsTilt     bool
	SupportsToggle   bool
	AssumedState     bool
}

// State is a snapshot of everything the controller publishes.
type State struct {
	Operation   Operation
	Last        Operation
	Position    float64
	Target      float64
	HasTarget   bool
	Finished    bool
	Params      []int
	ParamsKnown bool
	QueuedTx    int
}

// Equal reports whether two snapshots carry the same values.
func (s State) Equal(o State) bool {
	if s.Operation != o.Operation || s.Last != o.Last || s.Position != o.Position ||
		s.Target != o.Target || s.HasTarget != o.HasTarget || s.Finished != o.Finished ||
		s.ParamsKnown != o.ParamsKnown || s.QueuedTx != o.QueuedTx || len(s.Params) != len(o.Params) {
		return false
	}
	for i := range s.Params {
		if s.Params[i] != o.Params[i] {
			return false
		}
	}
	return true
}

// FrameEvent reports one processed inbound frame.
type FrameEvent struct {
	Time    time.Time
	Frame   gatepro.Frame
	Message gatepro.Message // nil when Err is set
	Err     error
}

// TransmitEvent reports one command written to the transport.
type TransmitEvent struct {
	Time    time.Time
	Command gatepro.Outbound
	Err     error
}
