// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package gatepro implements the GatePro gate controller UART protocol.
//
// The controller speaks a line-oriented ASCII protocol: commands are sent as
// text terminated by CRLF, acknowledgments and motor events come back the same
// way. Received bytes are escaped into a printable form before framing, so the
// frame delimiter is the four visible characters `\r\n`.
//
// This package provides the byte escaper, the frame reader, the command table
// and transmit queue, the typed frame parser, and formatting helpers.
package gatepro

// SourceID identifies this controller to the gate board. It is part of every
// fixed command string.
const SourceID = "P00287D7"

// Line delimiters
const (
	// Delimiter terminates a received frame in escaped form.
	Delimiter = `\r\n`
	// LineEnding terminates every transmitted command.
	LineEnding = "\r\n"
)

// Reader limits
const (
	// MaxBuffered bounds the escaped fragment retained while waiting for a delimiter.
	MaxBuffered = 4096
)

// Inbound frame prefixes
const (
	PrefixStatusAck = "ACK RS"
	PrefixParamsAck = "ACK RP"
	PrefixWriteAck  = "ACK WP"
	PrefixEvent     = "$V1PKF0"
)

// Fixed offsets into inbound frames. These are vendor protocol quirks observed
// on the wire, e.g.
//
//	ACK RS:00,80,C4,C6,3E,16,FF,FF,FF\r\n   percentage "C6" at 16
//	ACK RP,1:2,0,1,1,4,0,0,1,0,0,1,0,0,0,0,0,0\r\n   params from 9
//	$V1PKF0,17,Closed;src=0001\r\n   event token at 11
const (
	StatusPercentOffset = 16
	StatusPercentLength = 2

	ParamsOffset = 9
	ParamsLength = 33

	EventOffset = 11
)

// DefaultPercentageOffset is subtracted from status percentages above 100.
// The board reports some percentages with this offset added (seen while
// opening); whether it is a flag bit or something else is unknown.
const DefaultPercentageOffset = 128

// Event tokens carried by $V1PKF0 frames
const (
	tokenOpening = "Opening"
	tokenOpened  = "Opened"
	tokenClosing = "Closing"
	tokenClosed  = "Closed"
	tokenStopped = "Stopped"
)
