// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package gatepro

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"
)

// ============================================================
// Escaper Tests
// ============================================================

func TestEscape_RoundTripAllBytes(t *testing.T) {
	all := make([]byte, 256)
	for i := range all {
		all[i] = byte(i)
	}

	escaped := Escape(all)
	decoded, err := Unescape(escaped)
	if err != nil {
		t.Fatalf("Unescape failed: %v", err)
	}
	if !bytes.Equal(decoded, all) {
		t.Errorf("round trip mismatch:\n got %v\nwant %v", decoded, all)
	}
}

func TestEscape_SingleBytes(t *testing.T) {
	tests := []struct {
		name string
		in   byte
		want string
	}{
		{"bell", 0x07, `\a`},
		{"backspace", 0x08, `\b`},
		{"tab", 0x09, `\t`},
		{"newline", 0x0A, `\n`},
		{"vertical tab", 0x0B, `\v`},
		{"form feed", 0x0C, `\f`},
		{"carriage return", 0x0D, `\r`},
		{"escape", 0x1B, `\e`},
		{"double quote", '"', `\"`},
		{"single quote", '\'', `\'`},
		{"backslash", '\\', `\\`},
		{"nul", 0x00, `\x00`},
		{"unit separator", 0x1F, `\x1F`},
		{"high byte", 0xC8, `\xC8`},
		{"max byte", 0xFF, `\xFF`},
		{"space", ' ', " "},
		{"letter", 'A', "A"},
		{"del passes through", 0x7F, "\x7f"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Escape([]byte{tt.in}); got != tt.want {
				t.Errorf("Escape(0x%02X) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestEscape_CRLFBecomesDelimiter(t *testing.T) {
	if got := Escape([]byte("\r\n")); got != Delimiter {
		t.Errorf("Escape(CRLF) = %q, want %q", got, Delimiter)
	}
}

func TestUnescape_Errors(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"trailing backslash", `abc\`},
		{"short hex", `\x4`},
		{"invalid hex", `\xZZ`},
		{"unknown escape", `\q`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Unescape(tt.in); err == nil {
				t.Errorf("Unescape(%q) should fail", tt.in)
			}
		})
	}
}

// ============================================================
// Frame Reader Tests
// ============================================================

func TestReader_SplitMidDelimiter(t *testing.T) {
	r := NewReader()

	stream := "ACK RS:00,80,C4,C6,3E,16,FF,FF,FF\r\nACK RS:00,80,C4,C8,3E,16,FF,FF,FF\r\n"
	// Split between \r and \n of the first terminator
	split := strings.Index(stream, "\n")

	n1 := r.Feed([]byte(stream[:split]))
	n2 := r.Feed([]byte(stream[split:]))
	if n1+n2 != 2 {
		t.Fatalf("expected 2 frames total, got %d + %d", n1, n2)
	}

	want := []Frame{
		Frame(`ACK RS:00,80,C4,C6,3E,16,FF,FF,FF\r\n`),
		Frame(`ACK RS:00,80,C4,C8,3E,16,FF,FF,FF\r\n`),
	}
	for i, w := range want {
		f, ok := r.Next()
		if !ok {
			t.Fatalf("frame %d missing", i)
		}
		if f != w {
			t.Errorf("frame %d = %q, want %q", i, f, w)
		}
	}

	if _, ok := r.Next(); ok {
		t.Error("unexpected extra frame")
	}
	if r.Buffered() != "" {
		t.Errorf("buffer should be empty, got %q", r.Buffered())
	}
}

func TestReader_MultipleFramesOneRead(t *testing.T) {
	r := NewReader()
	n := r.Feed([]byte("ACK WP\r\n$V1PKF0,17,Closed;src=0001\r\nACK RS:00"))
	if n != 2 {
		t.Fatalf("expected 2 frames, got %d", n)
	}
	if r.Pending() != 2 {
		t.Errorf("Pending() = %d, want 2", r.Pending())
	}
	if r.Buffered() != "ACK RS:00" {
		t.Errorf("Buffered() = %q, want trailing fragment", r.Buffered())
	}
}

func TestReader_ByteAtATime(t *testing.T) {
	r := NewReader()
	stream := []byte("ACK WP\r\nACK WP\r\nACK WP\r\n")
	total := 0
	for _, b := range stream {
		total += r.Feed([]byte{b})
	}
	if total != 3 {
		t.Errorf("expected 3 frames, got %d", total)
	}
}

func TestReader_EmptyFeed(t *testing.T) {
	r := NewReader()
	if n := r.Feed(nil); n != 0 {
		t.Errorf("Feed(nil) = %d, want 0", n)
	}
	if _, ok := r.Next(); ok {
		t.Error("Next() on empty reader should report false")
	}
}

func TestReader_Overflow(t *testing.T) {
	r := NewReader()
	r.Feed(bytes.Repeat([]byte("A"), MaxBuffered+10))
	if r.Overflows() != 1 {
		t.Errorf("Overflows() = %d, want 1", r.Overflows())
	}
	if len(r.Buffered()) >= len(Delimiter) {
		t.Errorf("buffer should be trimmed, got %d chars", len(r.Buffered()))
	}

	// Reader must still frame normally afterwards
	if n := r.Feed([]byte("ACK WP\r\n")); n != 1 {
		t.Errorf("expected 1 frame after overflow, got %d", n)
	}
}

func TestReader_Reset(t *testing.T) {
	r := NewReader()
	r.Feed([]byte("ACK WP\r\nACK"))
	r.Reset()
	if r.Pending() != 0 || r.Buffered() != "" {
		t.Error("Reset should clear frames and buffer")
	}
}

// ============================================================
// Command Tests
// ============================================================

func TestCommand_Wire(t *testing.T) {
	tests := []struct {
		cmd  Command
		name string
		wire string
	}{
		{CmdOpen, "OPEN", "FULL OPEN;src=P00287D7"},
		{CmdClose, "CLOSE", "FULL CLOSE;src=P00287D7"},
		{CmdStop, "STOP", "STOP;src=P00287D7"},
		{CmdReadStatus, "READ_STATUS", "RS;src=P00287D7"},
		{CmdReadParams, "READ_PARAMS", "RP,1:;src=P00287D7"},
		{CmdLearn, "LEARN", "AUTO LEARN;src=P00287D7"},
		{CmdDevInfo, "DEVINFO", "READ DEVINFO;src=P00287D7"},
		{CmdReadLearnStatus, "READ_LEARN_STATUS", "READ LEARN STATUS;src=P00287D7"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cmd.String(); got != tt.name {
				t.Errorf("String() = %q, want %q", got, tt.name)
			}
			if got := tt.cmd.Wire(); got != tt.wire {
				t.Errorf("Wire() = %q, want %q", got, tt.wire)
			}
			if got := string(NewOutbound(tt.cmd).Encode()); got != tt.wire+"\r\n" {
				t.Errorf("Encode() = %q, want CRLF-terminated wire string", got)
			}

			parsed, ok := ParseCommand(strings.ToLower(tt.name))
			if !ok || parsed != tt.cmd {
				t.Errorf("ParseCommand(%q) = %v, %v", tt.name, parsed, ok)
			}
		})
	}
}

func TestCommand_Invalid(t *testing.T) {
	c := Command(200)
	if c.Valid() {
		t.Error("Command(200) should be invalid")
	}
	if c.String() != "UNKNOWN" || c.Wire() != "" {
		t.Errorf("invalid command rendered as %q / %q", c.String(), c.Wire())
	}
	if _, ok := ParseCommand("FLY"); ok {
		t.Error("ParseCommand should reject unknown names")
	}
}

func TestNewWriteParams(t *testing.T) {
	values := []int{2, 0, 1, 1, 4}
	o := NewWriteParams(values)
	values[0] = 99

	if got := o.Wire(); got != "WP,1:2,0,1,1,4" {
		t.Errorf("Wire() = %q", got)
	}
	if got := o.String(); got != "WRITE_PARAMS[2,0,1,1,4]" {
		t.Errorf("String() = %q", got)
	}
}

// ============================================================
// Transmit Queue Tests
// ============================================================

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("port closed")
}

func TestTxQueue_DrainOneAtATime(t *testing.T) {
	q := NewTxQueue()
	q.Enqueue(NewOutbound(CmdClose))
	q.Enqueue(NewOutbound(CmdReadStatus))

	var buf bytes.Buffer
	o, ok, err := q.DrainOne(&buf)
	if !ok || err != nil {
		t.Fatalf("DrainOne() = %v, %v", ok, err)
	}
	if o.Command != CmdClose {
		t.Errorf("drained %s, want CLOSE", o)
	}
	if buf.String() != "FULL CLOSE;src=P00287D7\r\n" {
		t.Errorf("wrote %q", buf.String())
	}
	if q.Len() != 1 {
		t.Errorf("Len() = %d, want 1", q.Len())
	}

	buf.Reset()
	q.DrainOne(&buf)
	if buf.String() != "RS;src=P00287D7\r\n" {
		t.Errorf("second write %q", buf.String())
	}

	buf.Reset()
	if _, ok, _ := q.DrainOne(&buf); ok {
		t.Error("DrainOne on empty queue should report false")
	}
	if buf.Len() != 0 {
		t.Error("empty drain must not write")
	}
}

// Known gap: a failed write still consumes the command. There is no retry.
func TestTxQueue_WriteFailureNotRetried(t *testing.T) {
	q := NewTxQueue()
	q.Enqueue(NewOutbound(CmdStop))

	o, ok, err := q.DrainOne(failingWriter{})
	if !ok || err == nil {
		t.Fatalf("expected write error, got ok=%v err=%v", ok, err)
	}
	if o.Command != CmdStop {
		t.Errorf("drained %s, want STOP", o)
	}
	if q.Len() != 0 {
		t.Errorf("failed command should not be requeued, Len() = %d", q.Len())
	}
}

func TestTxQueue_PeekItemsClear(t *testing.T) {
	q := NewTxQueue()
	if _, ok := q.Peek(); ok {
		t.Error("Peek on empty queue should report false")
	}
	q.Enqueue(NewOutbound(CmdOpen))
	q.Enqueue(NewOutbound(CmdStop))

	head, _ := q.Peek()
	if head.Command != CmdOpen {
		t.Errorf("Peek() = %s", head)
	}
	items := q.Items()
	items[0] = NewOutbound(CmdLearn)
	if head, _ := q.Peek(); head.Command != CmdOpen {
		t.Error("Items() must return a copy")
	}
	if !q.Contains(CmdStop) || q.Contains(CmdReadParams) {
		t.Error("Contains reports the wrong commands")
	}

	q.Clear()
	if q.Len() != 0 {
		t.Error("Clear should empty the queue")
	}
}

// ============================================================
// Frame Parser Tests
// ============================================================

func TestParseFrame_Status(t *testing.T) {
	tests := []struct {
		name  string
		frame Frame
		want  int
	}{
		{"plain", Frame(`ACK RS:00,80,C4,32,3E,16,FF,FF,FF\r\n`), 0x32},
		{"offset encoded", Frame(`ACK RS:00,80,C4,C8,3E,16,FF,FF,FF\r\n`), 0xC8},
		{"zero", Frame(`ACK RS:00,80,C4,00,3E,16,FF,FF,FF\r\n`), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := ParseFrame(tt.frame)
			if err != nil {
				t.Fatalf("ParseFrame: %v", err)
			}
			status, ok := msg.(StatusAck)
			if !ok {
				t.Fatalf("got %T, want StatusAck", msg)
			}
			if status.Percentage != tt.want {
				t.Errorf("Percentage = %d, want %d", status.Percentage, tt.want)
			}
		})
	}
}

func TestCorrectPercentage(t *testing.T) {
	tests := []struct {
		raw, want int
	}{
		{0, 0},
		{50, 50},
		{100, 100},
		{0xC8, 72},
		{0xE4, 100},
	}
	for _, tt := range tests {
		if got := CorrectPercentage(tt.raw, DefaultPercentageOffset); got != tt.want {
			t.Errorf("CorrectPercentage(%d) = %d, want %d", tt.raw, got, tt.want)
		}
	}
}

func TestParseFrame_Params(t *testing.T) {
	msg, err := ParseFrame(Frame(`ACK RP,1:2,0,1,1,4,0,0,1,0,0,1,0,0,0,0,0,0\r\n`))
	if err != nil {
		t.Fatalf("ParseFrame: %v", err)
	}
	params, ok := msg.(ParamsAck)
	if !ok {
		t.Fatalf("got %T, want ParamsAck", msg)
	}
	want := []int{2, 0, 1, 1, 4, 0, 0, 1, 0, 0, 1, 0, 0, 0, 0, 0, 0}
	if len(params.Values) != len(want) {
		t.Fatalf("got %d values, want %d", len(params.Values), len(want))
	}
	for i := range want {
		if params.Values[i] != want[i] {
			t.Errorf("value[%d] = %d, want %d", i, params.Values[i], want[i])
		}
	}
}

func TestParseFrame_Events(t *testing.T) {
	tests := []struct {
		frame Frame
		want  Event
	}{
		{Frame(`$V1PKF0,17,Opening;src=0001\r\n`), EventOpening},
		{Frame(`$V1PKF0,17,Opened;src=0001\r\n`), EventOpened},
		{Frame(`$V1PKF0,17,Closing;src=0001\r\n`), EventClosing},
		{Frame(`$V1PKF0,17,Closed;src=0001\r\n`), EventClosed},
		{Frame(`$V1PKF0,17,Stopped;src=0001\r\n`), EventStopped},
	}

	for _, tt := range tests {
		t.Run(tt.want.String(), func(t *testing.T) {
			msg, err := ParseFrame(tt.frame)
			if err != nil {
				t.Fatalf("ParseFrame: %v", err)
			}
			ev, ok := msg.(EventMsg)
			if !ok || ev.Event != tt.want {
				t.Errorf("got %#v, want %s", msg, tt.want)
			}
		})
	}
}

func TestParseFrame_WriteAck(t *testing.T) {
	msg, err := ParseFrame(Frame(`ACK WP,1\r\n`))
	if err != nil {
		t.Fatalf("ParseFrame: %v", err)
	}
	if msg.Kind() != KindWriteAck {
		t.Errorf("Kind() = %s", msg.Kind())
	}
}

func TestParseFrame_Dropped(t *testing.T) {
	tests := []struct {
		name      string
		frame     Frame
		wantKind  Kind
		wantCause error
	}{
		{"unknown prefix", Frame(`ACK DEVINFO:xyz\r\n`), KindUnknown, ErrUnknownFrame},
		{"unknown event token", Frame(`$V1PKF0,17,Learning;src=0001\r\n`), KindEvent, ErrUnknownFrame},
		{"short event", Frame(`$V1PKF0,1\r\n`), KindEvent, ErrUnknownFrame},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if k := Classify(tt.frame); k != tt.wantKind {
				t.Errorf("Classify() = %s, want %s", k, tt.wantKind)
			}
			_, err := ParseFrame(tt.frame)
			if !errors.Is(err, tt.wantCause) {
				t.Errorf("err = %v, want %v", err, tt.wantCause)
			}
		})
	}
}

func TestParseFrame_DecodeErrors(t *testing.T) {
	tests := []struct {
		name  string
		frame Frame
		kind  Kind
	}{
		{"status too short", Frame(`ACK RS:00\r\n`), KindStatusAck},
		{"status not hex", Frame(`ACK RS:00,80,C4,ZZ,3E\r\n`), KindStatusAck},
		{"params not decimal", Frame(`ACK RP,1:2,0,x,1\r\n`), KindParamsAck},
		{"params empty", Frame(`ACK RP,1:\r\n`), KindParamsAck},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseFrame(tt.frame)
			var decodeErr *DecodeError
			if !errors.As(err, &decodeErr) {
				t.Fatalf("err = %v, want *DecodeError", err)
			}
			if decodeErr.Kind != tt.kind {
				t.Errorf("Kind = %s, want %s", decodeErr.Kind, tt.kind)
			}
		})
	}
}

// ============================================================
// Formatter and Statistics Tests
// ============================================================

func TestFormatFrame(t *testing.T) {
	at := time.Date(2025, 1, 1, 12, 30, 45, 123000000, time.UTC)
	out := FormatFrame(Frame(`ACK RS:00,80,C4,C8,3E,16,FF,FF,FF\r\n`), at)

	for _, want := range []string{"[12:30:45.123]", "STATUS_ACK", "Percentage: 72", "0xC8"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	out = FormatFrame(Frame(`ACK RS:00,80,C4,ZZ,3E\r\n`), at)
	if !strings.Contains(out, "Decode error") {
		t.Errorf("decode failure not reported:\n%s", out)
	}
}

func TestFormatCommand(t *testing.T) {
	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	out := FormatCommand(NewOutbound(CmdStop), at)
	if !strings.Contains(out, `TX STOP STOP;src=P00287D7\r\n`) {
		t.Errorf("unexpected output %q", out)
	}
}

func TestStatistics(t *testing.T) {
	s := NewStatistics()

	frames := []Frame{
		`ACK RS:00,80,C4,32,3E,16,FF,FF,FF\r\n`,
		`ACK RP,1:2,0,1\r\n`,
		`ACK WP\r\n`,
		`$V1PKF0,17,Closed;src=0001\r\n`,
		`ACK DEVINFO\r\n`,
		`ACK RS:00\r\n`,
	}
	for _, f := range frames {
		s.Update(ParseFrame(f))
	}
	s.RecordCommand(nil)
	s.RecordCommand(errors.New("boom"))
	s.RecordOverflows(2)

	if s.TotalFrames != 6 || s.StatusAcks != 1 || s.ParamsAcks != 1 || s.WriteAcks != 1 || s.Events != 1 {
		t.Errorf("unexpected counters: %+v", s)
	}
	if s.UnknownFrames != 1 || s.DecodeErrors != 1 {
		t.Errorf("unknown=%d decode=%d, want 1 and 1", s.UnknownFrames, s.DecodeErrors)
	}
	if s.Errors() != 1+2+1 {
		t.Errorf("Errors() = %d, want 4", s.Errors())
	}
	if !strings.Contains(s.String(), "Total Frames:") {
		t.Error("String() missing summary")
	}

	s.Reset()
	if s.TotalFrames != 0 || s.Commands != 0 {
		t.Error("Reset should clear counters")
	}
}
