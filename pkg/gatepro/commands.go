// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package gatepro

import (
	"strconv"
	"strings"
)

// Command is one of the fixed requests understood by the gate board.
type Command uint8

// Commands
const (
	CmdOpen Command = iota
	CmdClose
	CmdStop
	CmdReadStatus
	CmdReadParams
	CmdWriteParams
	CmdLearn
	CmdDevInfo
	CmdReadLearnStatus
)

// writeParamsPrefix precedes the comma-joined parameter vector of a write.
const writeParamsPrefix = "WP,1:"

// commandWire maps each command to its wire string (without line ending).
// CmdWriteParams carries a payload and only has its prefix here.
var commandWire = [...]string{
	CmdOpen:            "FULL OPEN;src=" + SourceID,
	CmdClose:           "FULL CLOSE;src=" + SourceID,
	CmdStop:            "STOP;src=" + SourceID,
	CmdReadStatus:      "RS;src=" + SourceID,
	CmdReadParams:      "RP,1:;src=" + SourceID,
	CmdWriteParams:     writeParamsPrefix,
	CmdLearn:           "AUTO LEARN;src=" + SourceID,
	CmdDevInfo:         "READ DEVINFO;src=" + SourceID,
	CmdReadLearnStatus: "READ LEARN STATUS;src=" + SourceID,
}

var commandNames = [...]string{
	CmdOpen:            "OPEN",
	CmdClose:           "CLOSE",
	CmdStop:            "STOP",
	CmdReadStatus:      "READ_STATUS",
	CmdReadParams:      "READ_PARAMS",
	CmdWriteParams:     "WRITE_PARAMS",
	CmdLearn:           "LEARN",
	CmdDevInfo:         "DEVINFO",
	CmdReadLearnStatus: "READ_LEARN_STATUS",
}

// Valid reports whether c is a known command.
func (c Command) Valid() bool {
	return int(c) < len(commandWire)
}

// String returns the symbolic command name.
func (c Command) String() string {
	if !c.Valid() {
		return "UNKNOWN"
	}
	return commandNames[c]
}

// Wire returns the fixed wire string for the command, without line ending.
func (c Command) Wire() string {
	if !c.Valid() {
		return ""
	}
	return commandWire[c]
}

// Outbound is a command queued for transmission.
type Outbound struct {
	Command Command
	Params  []int // only for CmdWriteParams
}

// NewOutbound creates an outbound command without payload.
func NewOutbound(cmd Command) Outbound {
	return Outbound{Command: cmd}
}

// NewWriteParams creates a WRITE_PARAMS command carrying a copy of values.
func NewWriteParams(values []int) Outbound {
	params := make([]int, len(values))
	copy(params, values)
	return Outbound{Command: CmdWriteParams, Params: params}
}

// Wire returns the complete wire string, without line ending.
func (o Outbound) Wire() string {
	if o.Command != CmdWriteParams {
		return o.Command.Wire()
	}
	return writeParamsPrefix + JoinParams(o.Params)
}

// Encode returns the bytes written to the transport, line ending included.
func (o Outbound) Encode() []byte {
	return []byte(o.Wire() + LineEnding)
}

// String returns the command name, with the payload for parameter writes.
func (o Outbound) String() string {
	if o.Command == CmdWriteParams {
		return o.Command.String() + "[" + JoinParams(o.Params) + "]"
	}
	return o.Command.String()
}

// JoinParams renders a parameter vector as comma-separated decimals.
func JoinParams(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}

// ParseCommand resolves a symbolic command name (case-insensitive).
func ParseCommand(name string) (Command, bool) {
	name = strings.ToUpper(strings.TrimSpace(name))
	for i, n := range commandNames {
		if n == name {
			return Command(i), true
		}
	}
	return 0, false
}
