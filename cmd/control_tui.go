// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/markv9401/gatepro/pkg/cover"
	"github.com/markv9401/gatepro/pkg/gatepro"
)

//////////////////////////////////////////////////////////////
// Constants
//////////////////////////////////////////////////////////////

const (
	positionBarWidth = 30
	actionListWidth  = 30
	eventLogHeight   = 8
)

// Focus states
const (
	focusActionList = iota
	focusPositionInput
	focusParamIndexInput
	focusParamValueInput
	focusCount
)

//////////////////////////////////////////////////////////////
// Types
//////////////////////////////////////////////////////////////

// action is an entry of the action list
type action struct {
	title string
	desc  string
	run   func(*cover.Controller) error
}

// Implement list.Item interface
func (a action) Title() string       { return a.title }
func (a action) Description() string { return a.desc }
func (a action) FilterValue() string { return a.title }

var controlActions = []action{
	{"Open", "Fully open the gate", func(c *cover.Controller) error { return c.Control(cover.OpenCall()) }},
	{"Close", "Fully close the gate", func(c *cover.Controller) error { return c.Control(cover.CloseCall()) }},
	{"Stop", "Stop any motion", func(c *cover.Controller) error { return c.Control(cover.StopCall()) }},
	{"Toggle", "Reverse or resume motion", func(c *cover.Controller) error { return c.Control(cover.ToggleCall()) }},
	{"Read Status", "Request the current position", func(c *cover.Controller) error { return c.Send(gatepro.CmdReadStatus) }},
	{"Read Params", "Read the parameter vector", func(c *cover.Controller) error { return c.Send(gatepro.CmdReadParams) }},
	{"Device Info", "Request device information", func(c *cover.Controller) error { return c.Send(gatepro.CmdDevInfo) }},
	{"Learn Status", "Request the learn status", func(c *cover.Controller) error { return c.Send(gatepro.CmdReadLearnStatus) }},
	{"Auto Learn", "Start the travel learning run", func(c *cover.Controller) error { return c.Send(gatepro.CmdLearn) }},
}

// errorLogEntry is a line of the event log
type errorLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool // true for errors, false for info
}

// controlModel is the Bubble Tea model for the control TUI
type controlModel struct {
	ctrl     *cover.Controller
	connInfo string

	// Controls
	actionList      list.Model
	positionInput   textinput.Model
	paramIndexInput textinput.Model
	paramValueInput textinput.Model
	focusedField    int

	// Monitoring
	state         cover.State
	hasState      bool
	stats         gatepro.Statistics
	errorLog      []errorLogEntry
	maxLogEntries int
	showStatus    bool // log status replies and polls too

	// UI state
	width          int
	height         int
	quitting       bool
	connectionLost bool
}

//////////////////////////////////////////////////////////////
// Messages
//////////////////////////////////////////////////////////////

type controlTickMsg time.Time

type stateMsg cover.State

type frameMsg cover.FrameEvent

type transmitMsg cover.TransmitEvent

type logEntryMsg errorLogEntry

type connectionLostMsg struct {
	err error
}

type reconnectedMsg struct {
	connInfo string
}

//////////////////////////////////////////////////////////////
// Model Initialization
//////////////////////////////////////////////////////////////

func newNumberInput(placeholder string, limit int) textinput.Model {
	ti := textinput.New()
	ti.Placeholder = placeholder
	ti.CharLimit = limit
	ti.Width = 8
	return ti
}

func initialControlModel(ctrl *cover.Controller, connInfo string) controlModel {
	items := make([]list.Item, len(controlActions))
	for i, a := range controlActions {
		items[i] = a
	}

	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = true
	delegate.SetHeight(2)
	actionList := list.New(items, delegate, actionListWidth-2, 10)
	actionList.Title = "Actions"
	actionList.SetShowStatusBar(false)
	actionList.SetShowHelp(false)
	actionList.SetFilteringEnabled(false)

	return controlModel{
		ctrl:            ctrl,
		connInfo:        connInfo,
		actionList:      actionList,
		positionInput:   newNumberInput("50", 3),
		paramIndexInput: newNumberInput("4", 3),
		paramValueInput: newNumberInput("0", 5),
		focusedField:    focusActionList,
		stats:           *gatepro.NewStatistics(),
		errorLog:        make([]errorLogEntry, 0),
		maxLogEntries:   100,
		width:           80,
		height:          24,
	}
}

//////////////////////////////////////////////////////////////
// Bubble Tea Interface
//////////////////////////////////////////////////////////////

func (m controlModel) Init() tea.Cmd {
	return controlTickCmd()
}

func controlTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return controlTickMsg(t)
	})
}

func (m controlModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.MouseMsg:
		if m.focusedField == focusActionList {
			m.actionList, _ = m.actionList.Update(msg)
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateListSize()

	case controlTickMsg:
		m.stats = m.ctrl.Stats()
		m.stats.CalculateRates()
		return m, controlTickCmd()

	case stateMsg:
		m.state = cover.State(msg)
		m.hasState = true

	case frameMsg:
		m.processFrame(cover.FrameEvent(msg))

	case transmitMsg:
		m.processTransmit(cover.TransmitEvent(msg))

	case logEntryMsg:
		m.appendLog(errorLogEntry(msg))

	case connectionLostMsg:
		m.connectionLost = true
		m.addLogEntry(fmt.Sprintf("Connection lost (%v) - reconnecting...", msg.err), true)

	case reconnectedMsg:
		m.connectionLost = false
		m.connInfo = msg.connInfo
		m.hasState = false
		m.addLogEntry("Reconnected", false)
	}

	return m, nil
}

func (m controlModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "q":
		if m.focusedField == focusActionList {
			m.quitting = true
			return m, tea.Quit
		}

	case "v":
		if m.focusedField == focusActionList {
			m.showStatus = !m.showStatus
			return m, nil
		}

	case "tab":
		return m.cycleFocus(1), nil

	case "shift+tab":
		return m.cycleFocus(-1), nil

	case "esc":
		return m.setFocus(focusActionList), nil

	case "enter":
		return m.handleEnter()
	}

	var cmd tea.Cmd
	switch m.focusedField {
	case focusActionList:
		m.actionList, cmd = m.actionList.Update(msg)
	case focusPositionInput:
		m.positionInput, cmd = m.positionInput.Update(msg)
	case focusParamIndexInput:
		m.paramIndexInput, cmd = m.paramIndexInput.Update(msg)
	case focusParamValueInput:
		m.paramValueInput, cmd = m.paramValueInput.Update(msg)
	}
	return m, cmd
}

func (m controlModel) cycleFocus(delta int) controlModel {
	return m.setFocus((m.focusedField + delta + focusCount) % focusCount)
}

func (m controlModel) setFocus(field int) controlModel {
	m.focusedField = field
	m.positionInput.Blur()
	m.paramIndexInput.Blur()
	m.paramValueInput.Blur()

	switch field {
	case focusPositionInput:
		m.positionInput.Focus()
	case focusParamIndexInput:
		m.paramIndexInput.Focus()
	case focusParamValueInput:
		m.paramValueInput.Focus()
	}
	return m
}

func (m controlModel) handleEnter() (tea.Model, tea.Cmd) {
	if m.connectionLost {
		m.addLogEntry("Cannot send command: connection lost", true)
		return m, nil
	}

	switch m.focusedField {
	case focusActionList:
		a, ok := m.actionList.SelectedItem().(action)
		if !ok {
			return m, nil
		}
		if err := a.run(m.ctrl); err != nil {
			m.addLogEntry(fmt.Sprintf("%s failed: %v", a.title, err), true)
		}

	case focusPositionInput:
		return m.sendPosition()

	case focusParamIndexInput, focusParamValueInput:
		return m.sendParam()
	}

	return m, nil
}

func (m controlModel) sendPosition() (tea.Model, tea.Cmd) {
	val := m.positionInput.Value()
	if val == "" {
		val = m.positionInput.Placeholder
	}

	percent, err := strconv.Atoi(val)
	if err != nil || percent < 0 || percent > 100 {
		m.addLogEntry(fmt.Sprintf("Invalid position: %s (must be 0-100)", val), true)
		return m, nil
	}

	if err := m.ctrl.Control(cover.PositionCall(float64(percent) / 100)); err != nil {
		m.addLogEntry(fmt.Sprintf("Position failed: %v", err), true)
	}
	return m, nil
}

func (m controlModel) sendParam() (tea.Model, tea.Cmd) {
	index, err := strconv.Atoi(m.paramIndexInput.Value())
	if err != nil {
		m.addLogEntry(fmt.Sprintf("Invalid parameter index: %q", m.paramIndexInput.Value()), true)
		return m, nil
	}
	value, err := strconv.Atoi(m.paramValueInput.Value())
	if err != nil {
		m.addLogEntry(fmt.Sprintf("Invalid parameter value: %q", m.paramValueInput.Value()), true)
		return m, nil
	}

	if err := m.ctrl.SetParam(index, value); err != nil {
		m.addLogEntry(fmt.Sprintf("Set parameter failed: %v", err), true)
	}
	return m, nil
}

func (m controlModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var s strings.Builder

	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	labelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	valueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	focusedBoxStyle := boxStyle.
		BorderForeground(lipgloss.Color("12"))

	// Header
	s.WriteString(titleStyle.Render("GATEPRO CONTROL"))
	s.WriteString(" ")
	connStatus := m.connInfo
	if m.connectionLost {
		connStatus = warningStyle.Render("RECONNECTING...")
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("| %s | q=quit Tab=switch Esc=actions v=verbose", connStatus)))
	s.WriteString("\n\n")

	// Layout: left panel (actions) | right panel (gate)
	rightWidth := m.width - actionListWidth - 6

	listStyle := boxStyle.Width(actionListWidth)
	if m.focusedField == focusActionList {
		listStyle = focusedBoxStyle.Width(actionListWidth)
	}
	actionPanel := listStyle.Render(m.actionList.View())

	gatePanel := boxStyle.Width(rightWidth).Render(m.renderGatePanel(labelStyle, valueStyle, headerStyle, warningStyle))

	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, actionPanel, " ", gatePanel))
	s.WriteString("\n\n")

	s.WriteString(m.renderStatisticsBar(labelStyle, valueStyle, errorStyle, boxStyle))
	s.WriteString("\n\n")

	s.WriteString(m.renderEventLog(labelStyle, warningStyle, errorStyle, headerStyle, boxStyle))

	return s.String()
}

//////////////////////////////////////////////////////////////
// View Helpers
//////////////////////////////////////////////////////////////

func (m controlModel) renderGatePanel(labelStyle, valueStyle, headerStyle, warningStyle lipgloss.Style) string {
	var s strings.Builder

	s.WriteString(labelStyle.Render("GATE"))
	s.WriteString("\n")
	if !m.hasState {
		s.WriteString(warningStyle.Render("Waiting for driver..."))
		s.WriteString("\n\n")
	} else {
		st := m.state
		s.WriteString(fmt.Sprintf("%s %s  %s %s\n",
			labelStyle.Render("State:"), valueStyle.Render(st.Operation.String()),
			labelStyle.Render("Last:"), headerStyle.Render(st.Last.String())))
		s.WriteString(fmt.Sprintf("%s %s %s\n",
			labelStyle.Render("Position:"),
			renderPositionBar(st.Position),
			valueStyle.Render(fmt.Sprintf("%3.0f%%", st.Position*100))))

		target := headerStyle.Render("none")
		if st.HasTarget {
			target = valueStyle.Render(fmt.Sprintf("%.0f%%", st.Target*100))
		}
		finished := headerStyle.Render("no")
		if st.Finished {
			finished = valueStyle.Render("yes")
		}
		s.WriteString(fmt.Sprintf("%s %s  %s %s  %s %s\n\n",
			labelStyle.Render("Target:"), target,
			labelStyle.Render("Settled:"), finished,
			labelStyle.Render("TX queue:"), valueStyle.Render(strconv.Itoa(st.QueuedTx))))

		s.WriteString(labelStyle.Render("Params: "))
		if st.ParamsKnown {
			s.WriteString(valueStyle.Render(gatepro.JoinParams(st.Params)))
		} else {
			s.WriteString(headerStyle.Render("not read"))
		}
		s.WriteString("\n\n")
	}

	s.WriteString(labelStyle.Render("Move to %: "))
	s.WriteString(m.renderInput(m.positionInput, focusPositionInput))
	s.WriteString("\n")

	s.WriteString(labelStyle.Render("Param index: "))
	s.WriteString(m.renderInput(m.paramIndexInput, focusParamIndexInput))
	s.WriteString(labelStyle.Render("  value: "))
	s.WriteString(m.renderInput(m.paramValueInput, focusParamValueInput))

	return s.String()
}

func (m controlModel) renderInput(ti textinput.Model, field int) string {
	if m.focusedField == field {
		return ti.View()
	}
	// Show as plain text when not focused
	val := ti.Value()
	if val == "" {
		val = ti.Placeholder
	}
	return fmt.Sprintf("[%s]", val)
}

// renderPositionBar draws the position as a bar, closed on the left
func renderPositionBar(position float64) string {
	filled := int(position*positionBarWidth + 0.5)
	if filled < 0 {
		filled = 0
	}
	if filled > positionBarWidth {
		filled = positionBarWidth
	}
	return "[" + strings.Repeat("#", filled) + strings.Repeat(".", positionBarWidth-filled) + "]"
}

func (m controlModel) renderStatisticsBar(labelStyle, valueStyle, errorStyle, boxStyle lipgloss.Style) string {
	errCount := m.stats.Errors()
	errorText := valueStyle.Render("0")
	if errCount > 0 {
		errorText = errorStyle.Render(strconv.FormatUint(errCount, 10))
	}

	content := fmt.Sprintf("%s %s  %s %s  %s %s  %s %s  %s %s",
		labelStyle.Render("Frames:"), valueStyle.Render(strconv.FormatUint(m.stats.TotalFrames, 10)),
		labelStyle.Render("Unknown:"), valueStyle.Render(strconv.FormatUint(m.stats.UnknownFrames, 10)),
		labelStyle.Render("Sent:"), valueStyle.Render(strconv.FormatUint(m.stats.Commands, 10)),
		labelStyle.Render("Errors:"), errorText,
		labelStyle.Render("Rate:"), valueStyle.Render(fmt.Sprintf("%.1f frm/s", m.stats.FrameRate)),
	)

	return boxStyle.Width(m.width - 4).Render(content)
}

func (m controlModel) renderEventLog(labelStyle, warningStyle, errorStyle, headerStyle, boxStyle lipgloss.Style) string {
	var s strings.Builder
	s.WriteString(labelStyle.Render("EVENTS"))
	s.WriteString("\n")

	if len(m.errorLog) == 0 {
		s.WriteString(headerStyle.Render("  (no events yet)"))
		return boxStyle.Width(m.width - 4).Render(s.String())
	}

	startIdx := len(m.errorLog) - eventLogHeight
	if startIdx < 0 {
		startIdx = 0
	}

	for i := startIdx; i < len(m.errorLog); i++ {
		entry := m.errorLog[i]
		icon := "i"
		style := warningStyle
		if entry.isError {
			icon = "x"
			style = errorStyle
		}
		s.WriteString(fmt.Sprintf("%s %s %s\n",
			headerStyle.Render(entry.timestamp.Format("15:04:05.000")),
			style.Render(icon),
			entry.message))
	}

	return boxStyle.Width(m.width - 4).Render(s.String())
}

//////////////////////////////////////////////////////////////
// Data Processing
//////////////////////////////////////////////////////////////

func (m *controlModel) processFrame(ev cover.FrameEvent) {
	if errors.Is(ev.Err, gatepro.ErrUnknownFrame) {
		m.appendLog(errorLogEntry{
			timestamp: ev.Time,
			message:   fmt.Sprintf("RX %s", ev.Frame.Payload()),
		})
		return
	}
	if ev.Err != nil {
		m.appendLog(errorLogEntry{
			timestamp: ev.Time,
			message:   fmt.Sprintf("RX %s: %v", ev.Frame.Payload(), ev.Err),
			isError:   true,
		})
		return
	}

	if _, ok := ev.Message.(gatepro.StatusAck); ok && !m.showStatus {
		return
	}

	m.appendLog(errorLogEntry{
		timestamp: ev.Time,
		message:   fmt.Sprintf("RX %s: %s", ev.Message.Kind(), strings.TrimSpace(gatepro.FormatMessage(ev.Message))),
	})
}

func (m *controlModel) processTransmit(ev cover.TransmitEvent) {
	if ev.Err != nil {
		m.appendLog(errorLogEntry{
			timestamp: ev.Time,
			message:   fmt.Sprintf("TX %s failed: %v", ev.Command, ev.Err),
			isError:   true,
		})
		return
	}

	if ev.Command.Command == gatepro.CmdReadStatus && !m.showStatus {
		return
	}

	m.appendLog(errorLogEntry{
		timestamp: ev.Time,
		message:   fmt.Sprintf("TX %s", ev.Command),
	})
}

func (m *controlModel) addLogEntry(message string, isError bool) {
	m.appendLog(errorLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	})
}

func (m *controlModel) appendLog(entry errorLogEntry) {
	m.errorLog = append(m.errorLog, entry)

	if len(m.errorLog) > m.maxLogEntries {
		m.errorLog = m.errorLog[len(m.errorLog)-m.maxLogEntries:]
	}
}

func (m *controlModel) updateListSize() {
	// Adjust list size based on terminal size
	listHeight := m.height / 2
	if listHeight < 6 {
		listHeight = 6
	}
	m.actionList.SetSize(actionListWidth-2, listHeight)
}
