// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package hostlink exposes a gate controller to remote hosts over a
// websocket. Messages are CBOR arrays [msg_type, {key: value}] sent as
// binary websocket frames.
package hostlink

import (
	"errors"
	"fmt"

	"github.com/markv9401/gatepro/pkg/cover"
	"github.com/markv9401/gatepro/pkg/gatepro"
)

// Message types
const (
	// Host -> driver
	MsgControl       = 0x20
	MsgParamSet      = 0x21
	MsgParamRead     = 0x22
	MsgDeviceCommand = 0x23

	// Driver -> host
	MsgState = 0x30
	MsgError = 0xE0
)

// MsgState payload keys
const (
	keyStateOperation = iota
	keyStateLast
	keyStatePosition
	keyStateTarget
	keyStateHasTarget
	keyStateFinished
	keyStateParams
)

// MsgControl payload keys
const (
	keyControlKind = iota
	keyControlPosition
)

// MsgParamSet payload keys
const (
	keyParamIndex = iota
	keyParamValue
)

// MsgDeviceCommand and MsgError payload key
const (
	keyCommand = 0
	keyMessage = 0
)

// ErrMissingField is returned when a required payload key is absent.
var ErrMissingField = errors.New("missing payload field")

// RemoteError is an error reported by the driver through MsgError.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return "remote: " + e.Message
}

// MessageTypeName returns the name of a message type
func MessageTypeName(msgType uint8) string {
	switch msgType {
	case MsgControl:
		return "CONTROL"
	case MsgParamSet:
		return "PARAM_SET"
	case MsgParamRead:
		return "PARAM_READ"
	case MsgDeviceCommand:
		return "DEVICE_COMMAND"
	case MsgState:
		return "STATE"
	case MsgError:
		return "ERROR"
	default:
		return fmt.Sprintf("UNKNOWN(0x%02X)", msgType)
	}
}

// EncodeState builds a MsgState message.
func EncodeState(s cover.State) ([]byte, error) {
	payload := map[int]interface{}{
		keyStateOperation: uint64(s.Operation),
		keyStateLast:      uint64(s.Last),
		keyStatePosition:  s.Position,
		keyStateHasTarget: s.HasTarget,
		keyStateFinished:  s.Finished,
	}
	if s.HasTarget {
		payload[keyStateTarget] = s.Target
	}
	if s.ParamsKnown {
		params := make([]int64, len(s.Params))
		for i, v := range s.Params {
			params[i] = int64(v)
		}
		payload[keyStateParams] = params
	}
	return EncodeMessage(MsgState, payload)
}

// DecodeState reads a MsgState payload.
func DecodeState(payload map[int]interface{}) (cover.State, error) {
	var s cover.State

	op, ok := GetMapUint(payload, keyStateOperation)
	if !ok {
		return s, fmt.Errorf("%w: operation", ErrMissingField)
	}
	pos, ok := GetMapFloat(payload, keyStatePosition)
	if !ok {
		return s, fmt.Errorf("%w: position", ErrMissingField)
	}
	s.Operation = cover.Operation(op)
	s.Position = pos

	if last, ok := GetMapUint(payload, keyStateLast); ok {
		s.Last = cover.Operation(last)
	}
	s.HasTarget, _ = GetMapBool(payload, keyStateHasTarget)
	s.Finished, _ = GetMapBool(payload, keyStateFinished)
	if s.HasTarget {
		s.Target, _ = GetMapFloat(payload, keyStateTarget)
	}
	if params, ok := GetMapInts(payload, keyStateParams); ok {
		s.Params = params
		s.ParamsKnown = true
	}
	return s, nil
}

// EncodeControl builds a MsgControl message.
func EncodeControl(call cover.Call) ([]byte, error) {
	payload := map[int]interface{}{
		keyControlKind: uint64(call.Kind),
	}
	if call.Kind == cover.CallPosition {
		payload[keyControlPosition] = call.Position
	}
	return EncodeMessage(MsgControl, payload)
}

// DecodeControl reads a MsgControl payload.
func DecodeControl(payload map[int]interface{}) (cover.Call, error) {
	kind, ok := GetMapUint(payload, keyControlKind)
	if !ok {
		return cover.Call{}, fmt.Errorf("%w: kind", ErrMissingField)
	}
	call := cover.Call{Kind: cover.CallKind(kind)}
	if call.Kind == cover.CallPosition {
		pos, ok := GetMapFloat(payload, keyControlPosition)
		if !ok {
			return cover.Call{}, fmt.Errorf("%w: position", ErrMissingField)
		}
		call.Position = pos
	}
	return call, nil
}

// EncodeParamSet builds a MsgParamSet message.
func EncodeParamSet(index, value int) ([]byte, error) {
	return EncodeMessage(MsgParamSet, map[int]interface{}{
		keyParamIndex: int64(index),
		keyParamValue: int64(value),
	})
}

// DecodeParamSet reads a MsgParamSet payload.
func DecodeParamSet(payload map[int]interface{}) (index, value int, err error) {
	i, ok := GetMapInt(payload, keyParamIndex)
	if !ok {
		return 0, 0, fmt.Errorf("%w: index", ErrMissingField)
	}
	v, ok := GetMapInt(payload, keyParamValue)
	if !ok {
		return 0, 0, fmt.Errorf("%w: value", ErrMissingField)
	}
	return int(i), int(v), nil
}

// EncodeParamRead builds a MsgParamRead message.
func EncodeParamRead() ([]byte, error) {
	return EncodeMessage(MsgParamRead, nil)
}

// EncodeDeviceCommand builds a MsgDeviceCommand message.
func EncodeDeviceCommand(cmd gatepro.Command) ([]byte, error) {
	return EncodeMessage(MsgDeviceCommand, map[int]interface{}{
		keyCommand: uint64(cmd),
	})
}

// DecodeDeviceCommand reads a MsgDeviceCommand payload.
func DecodeDeviceCommand(payload map[int]interface{}) (gatepro.Command, error) {
	v, ok := GetMapUint(payload, keyCommand)
	if !ok {
		return 0, fmt.Errorf("%w: command", ErrMissingField)
	}
	cmd := gatepro.Command(v)
	if v > 255 || !cmd.Valid() {
		return 0, fmt.Errorf("unknown command %d", v)
	}
	return cmd, nil
}

// EncodeError builds a MsgError message.
func EncodeError(err error) ([]byte, error) {
	return EncodeMessage(MsgError, map[int]interface{}{
		keyMessage: err.Error(),
	})
}

// DecodeError reads a MsgError payload.
func DecodeError(payload map[int]interface{}) error {
	msg, _ := GetMapString(payload, keyMessage)
	return &RemoteError{Message: msg}
}
