// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/markv9401/gatepro/pkg/cover"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var controlCmd = &cobra.Command{
	Use:   "control",
	Short: "Interactive TUI for controlling a GatePro gate",
	Long: `Control a GatePro gate board via an interactive terminal UI.

The console runs the full driver: the board is polled while the gate moves,
intermediate targets are stopped at and the position is tracked from status
replies and events.

Features:
  - Open, close, stop and toggle
  - Move to a position (0-100 %)
  - Parameter read and read-modify-write
  - Device info, learn status and auto learn
  - Statistics tracking and event logging
  - Automatic reconnection on connection loss

Tab cycles between the action list and the input fields. Enter runs the
selected action or submits the focused field.

Supports both serial and WebSocket connections.`,
	RunE: runControl,
}

func init() {
	rootCmd.AddCommand(controlCmd)
	addDriverFlags(controlCmd)
}

// connectionManager drives the controller and reconnects on connection loss
type connectionManager struct {
	ctrl     *cover.Controller
	conn     Connection
	connInfo string
	mu       sync.RWMutex
	p        *tea.Program
	ctx      context.Context
}

func (cm *connectionManager) getConn() Connection {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.conn
}

func (cm *connectionManager) setConn(conn Connection, connInfo string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.conn = conn
	cm.connInfo = connInfo
}

func runControl(cmd *cobra.Command, args []string) error {
	cfg, err := driverConfig()
	if err != nil {
		return err
	}

	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ctrl := cover.NewController(cfg)
	cm := &connectionManager{
		ctrl:     ctrl,
		conn:     conn,
		connInfo: connInfo,
		ctx:      ctx,
	}

	m := initialControlModel(ctrl, connInfo)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())
	cm.p = p

	// Log output would corrupt the alt screen, so entries go to the event log
	hook := newLogHook(128)
	log.SetOutput(io.Discard)
	log.AddHook(hook)
	defer func() {
		log.StandardLogger().ReplaceHooks(make(log.LevelHooks))
		log.SetOutput(os.Stderr)
	}()
	go hook.forward(ctx, p)

	ctrl.OnPublish(func(s cover.State) { p.Send(stateMsg(s)) })
	ctrl.OnFrame(func(ev cover.FrameEvent) { p.Send(frameMsg(ev)) })
	ctrl.OnTransmit(func(ev cover.TransmitEvent) { p.Send(transmitMsg(ev)) })

	go cm.driveLoop()

	_, runErr := p.Run()
	cancel()
	if c := cm.getConn(); c != nil {
		c.Close()
	}
	if runErr != nil {
		return fmt.Errorf("TUI error: %v", runErr)
	}
	return nil
}

// driveLoop runs the controller over the current connection until shutdown
func (cm *connectionManager) driveLoop() {
	for {
		runner := cover.NewRunner(cm.ctrl, cm.getConn())
		runner.IsClosed = isConnectionClosed

		err := runner.Run(cm.ctx)
		if cm.ctx.Err() != nil {
			return
		}

		cm.p.Send(connectionLostMsg{err: err})
		if !cm.reconnect() {
			return
		}
	}
}

// reconnect attempts to reconnect with exponential backoff
// Returns false if shutdown was requested during reconnection
func (cm *connectionManager) reconnect() bool {
	if conn := cm.getConn(); conn != nil {
		conn.Close()
	}

	backoff := 1 * time.Second
	maxBackoff := 30 * time.Second

	for {
		select {
		case <-cm.ctx.Done():
			return false
		case <-time.After(backoff):
		}

		conn, connInfo, err := OpenConnection()
		if err == nil {
			cm.setConn(conn, connInfo)
			cm.p.Send(reconnectedMsg{connInfo: connInfo})
			return true
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

//////////////////////////////////////////////////////////////
// Log Hook
//////////////////////////////////////////////////////////////

// logHook forwards log entries to the TUI event log. Fire may run under
// the controller lock, so it never blocks on the program.
type logHook struct {
	entries chan logEntryMsg
}

func newLogHook(size int) *logHook {
	return &logHook{entries: make(chan logEntryMsg, size)}
}

func (h *logHook) Levels() []log.Level {
	return log.AllLevels
}

func (h *logHook) Fire(e *log.Entry) error {
	entry := logEntryMsg{
		timestamp: e.Time,
		message:   formatLogEntry(e),
		isError:   e.Level <= log.WarnLevel,
	}
	select {
	case h.entries <- entry:
	default:
	}
	return nil
}

func (h *logHook) forward(ctx context.Context, p *tea.Program) {
	for {
		select {
		case <-ctx.Done():
			return
		case entry := <-h.entries:
			p.Send(entry)
		}
	}
}

// formatLogEntry renders the message followed by its fields in key order
func formatLogEntry(e *log.Entry) string {
	var s strings.Builder
	s.WriteString(e.Message)
	keys := make([]string, 0, len(e.Data))
	for k := range e.Data {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		if k == "component" {
			continue
		}
		fmt.Fprintf(&s, " %s=%v", k, e.Data[k])
	}
	return s.String()
}
