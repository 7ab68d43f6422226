// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cover

import (
	"errors"
	"fmt"

	"github.com/markv9401/gatepro/pkg/gatepro"
)

// ErrParamIndex is returned for a parameter index outside the vector.
var ErrParamIndex = errors.New("parameter index out of range")

// ParamTask is a parameter write deferred until the vector is known.
type ParamTask struct {
	Index int
	Value int
}

// ParamStore holds the board's parameter vector. Writes always send the
// whole vector, so a write is only built from a vector read from the board.
type ParamStore struct {
	values  []int
	known   bool
	pending []ParamTask
}

// Read returns the command that requests the vector.
func (s *ParamStore) Read() gatepro.Outbound {
	return gatepro.NewOutbound(gatepro.CmdReadParams)
}

// Write returns a WRITE_PARAMS command carrying the current vector.
func (s *ParamStore) Write() gatepro.Outbound {
	return gatepro.NewWriteParams(s.values)
}

// Set changes one parameter. With a known vector the write is returned at
// once; otherwise the change is deferred and a read is returned. The read is
// repeated on every deferred Set.
func (s *ParamStore) Set(index, value int) ([]gatepro.Outbound, error) {
	if index < 0 {
		return nil, fmt.Errorf("%w: %d", ErrParamIndex, index)
	}

	if s.known {
		if index >= len(s.values) {
			return nil, fmt.Errorf("%w: %d (have %d)", ErrParamIndex, index, len(s.values))
		}
		s.values[index] = value
		return []gatepro.Outbound{s.Write()}, nil
	}

	s.pending = append(s.pending, ParamTask{Index: index, Value: value})
	return []gatepro.Outbound{s.Read()}, nil
}

// Apply replaces the vector with a fresh read and runs every deferred task,
// each producing one write. Tasks with an index outside the new vector are
// dropped and reported in the returned error.
func (s *ParamStore) Apply(values []int) ([]gatepro.Outbound, error) {
	s.values = make([]int, len(values))
	copy(s.values, values)
	s.known = true

	tasks := s.pending
	s.pending = nil

	var out []gatepro.Outbound
	var errs []error
	for _, task := range tasks {
		if task.Index >= len(s.values) {
			errs = append(errs, fmt.Errorf("%w: %d (have %d)", ErrParamIndex, task.Index, len(s.values)))
			continue
		}
		s.values[task.Index] = task.Value
		out = append(out, s.Write())
	}

	return out, errors.Join(errs...)
}

// Snapshot returns a copy of the vector.
func (s *ParamStore) Snapshot() []int {
	if s.values == nil {
		return nil
	}
	out := make([]int, len(s.values))
	copy(out, s.values)
	return out
}

// Known reports whether a vector has been read.
func (s *ParamStore) Known() bool {
	return s.known
}

// Pending returns the deferred tasks.
func (s *ParamStore) Pending() []ParamTask {
	out := make([]ParamTask, len(s.pending))
	copy(out, s.pending)
	return out
}
