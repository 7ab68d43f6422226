// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package gatepro

import (
	"fmt"
	"io"
)

// TxQueue holds outbound commands in FIFO order. The board needs spacing
// between commands, so callers drain one entry per scheduling tick.
type TxQueue struct {
	items []Outbound
}

// NewTxQueue creates an empty transmit queue.
func NewTxQueue() *TxQueue {
	return &TxQueue{}
}

// Enqueue appends a command.
func (q *TxQueue) Enqueue(o Outbound) {
	q.items = append(q.items, o)
}

// Len returns the number of queued commands.
func (q *TxQueue) Len() int {
	return len(q.items)
}

// Peek returns the head without removing it.
func (q *TxQueue) Peek() (Outbound, bool) {
	if len(q.items) == 0 {
		return Outbound{}, false
	}
	return q.items[0], true
}

// Contains reports whether cmd is waiting in the queue.
func (q *TxQueue) Contains(cmd Command) bool {
	for _, o := range q.items {
		if o.Command == cmd {
			return true
		}
	}
	return false
}

// Items returns a copy of the queued commands, head first.
func (q *TxQueue) Items() []Outbound {
	out := make([]Outbound, len(q.items))
	copy(out, q.items)
	return out
}

// DrainOne pops the head and writes it to w. It reports false when the queue
// was empty. The command is consumed even if the write fails; there is no
// retry.
func (q *TxQueue) DrainOne(w io.Writer) (Outbound, bool, error) {
	if len(q.items) == 0 {
		return Outbound{}, false, nil
	}
	o := q.items[0]
	q.items[0] = Outbound{}
	q.items = q.items[1:]

	if _, err := w.Write(o.Encode()); err != nil {
		return o, true, fmt.Errorf("write %s: %w", o, err)
	}
	return o, true, nil
}

// Clear drops every queued command.
func (q *TxQueue) Clear() {
	q.items = nil
}
