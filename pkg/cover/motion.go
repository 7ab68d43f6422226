// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cover

import (
	"math"

	"github.com/markv9401/gatepro/pkg/gatepro"
)

// Motion tracks what the gate is doing and where it is.
//
// Position is written in three places only: status updates while an
// operation is running, the snap on a completion event, and the
// post-operation correction. Methods return the commands that must be
// queued; Motion never touches the transport.
type Motion struct {
	Current   Operation
	Last      Operation // OperationOpening or OperationClosing
	Position  float64
	Target    float64
	HasTarget bool
	Finished  bool
}

// NewMotion returns the power-on state: idle, assumed closed.
func NewMotion() Motion {
	return Motion{
		Current:  OperationIdle,
		Last:     OperationClosing,
		Position: PositionClosed,
		Finished: true,
	}
}

// ApplyStatus sets the position from a corrected status percentage. Status
// is ignored once the operation has finished. Reports whether the position
// was updated.
func (m *Motion) ApplyStatus(percent int) bool {
	if m.Finished {
		return false
	}
	m.Position = clamp(float64(percent) / 100)
	return true
}

// ApplyEvent applies a motor event. reissue re-sends the matching command
// when the board starts a motion this side did not ask for.
func (m *Motion) ApplyEvent(ev gatepro.Event, reissue bool) []gatepro.Command {
	switch ev {
	case gatepro.EventOpening:
		return m.startedMoving(OperationOpening, gatepro.CmdOpen, reissue)
	case gatepro.EventClosing:
		return m.startedMoving(OperationClosing, gatepro.CmdClose, reissue)
	case gatepro.EventOpened:
		m.completed(OperationOpening, PositionOpen)
		return []gatepro.Command{gatepro.CmdStop}
	case gatepro.EventClosed:
		m.completed(OperationClosing, PositionClosed)
		return []gatepro.Command{gatepro.CmdStop}
	case gatepro.EventStopped:
		m.Current = OperationIdle
		m.HasTarget = false
		return []gatepro.Command{gatepro.CmdStop}
	}
	return nil
}

func (m *Motion) startedMoving(dir Operation, cmd gatepro.Command, reissue bool) []gatepro.Command {
	if m.Current == dir {
		return nil
	}
	m.Current = dir
	m.Last = dir
	m.Finished = false
	if reissue {
		return []gatepro.Command{cmd}
	}
	return nil
}

// completed also sets Last, which Correct snaps towards.
func (m *Motion) completed(dir Operation, position float64) {
	m.Finished = true
	m.Last = dir
	m.Position = position
	m.Current = OperationIdle
	m.HasTarget = false
}

// RequestStop stops a moving gate. Nothing happens when already idle.
func (m *Motion) RequestStop() []gatepro.Command {
	if m.Current == OperationIdle {
		return nil
	}
	m.Current = OperationIdle
	m.HasTarget = false
	return []gatepro.Command{gatepro.CmdStop}
}

// RequestPosition starts travel towards p. Requests within minDiff of the
// current position are dropped.
func (m *Motion) RequestPosition(p, minDiff float64) []gatepro.Command {
	if p == m.Position || math.Abs(p-m.Position) < minDiff {
		return nil
	}
	dir := OperationOpening
	if p < m.Position {
		dir = OperationClosing
	}
	return m.travel(p, dir)
}

// RequestFull starts full travel to PositionOpen or PositionClosed. Unlike
// RequestPosition it is only dropped when the gate already rests there.
func (m *Motion) RequestFull(open bool) []gatepro.Command {
	p, dir := PositionClosed, OperationClosing
	if open {
		p, dir = PositionOpen, OperationOpening
	}
	if m.Current == OperationIdle && m.Position == p {
		return nil
	}
	return m.travel(p, dir)
}

// RequestToggle stops a moving gate. An idle gate opens if it is closed or
// was last closing, and closes otherwise.
func (m *Motion) RequestToggle() []gatepro.Command {
	if m.Current != OperationIdle {
		return m.RequestStop()
	}
	open := m.Position <= PositionClosed || m.Last == OperationClosing
	return m.RequestFull(open)
}

func (m *Motion) travel(p float64, dir Operation) []gatepro.Command {
	m.Target = p
	m.HasTarget = true

	if dir == m.Current {
		return nil
	}
	m.Current = dir
	m.Last = dir
	m.Finished = false
	if dir == OperationClosing {
		return []gatepro.Command{gatepro.CmdClose}
	}
	return []gatepro.Command{gatepro.CmdOpen}
}

// StopAtTarget stops the gate when it is within acceptableDiff of an
// intermediate target. Full travel targets are left to the board's limit
// switches.
func (m *Motion) StopAtTarget(acceptableDiff float64) []gatepro.Command {
	if !m.HasTarget || m.Target == PositionOpen || m.Target == PositionClosed {
		return nil
	}
	if math.Abs(m.Position-m.Target) >= acceptableDiff {
		return nil
	}
	m.Current = OperationIdle
	m.HasTarget = false
	return []gatepro.Command{gatepro.CmdStop}
}

// NeedsPolling reports whether status should be requested this tick.
func (m Motion) NeedsPolling() bool {
	return m.Current != OperationIdle
}

// Correct snaps the position to the extreme of the last operation once it
// has finished. Reports whether the position changed.
func (m *Motion) Correct() bool {
	if !m.Finished || m.Current != OperationIdle {
		return false
	}
	extreme := PositionClosed
	if m.Last == OperationOpening {
		extreme = PositionOpen
	}
	if m.Position == extreme {
		return false
	}
	m.Position = extreme
	return true
}

func clamp(v float64) float64 {
	return math.Max(PositionClosed, math.Min(PositionOpen, v))
}
