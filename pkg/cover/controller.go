// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cover

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/markv9401/gatepro/pkg/gatepro"
	log "github.com/sirupsen/logrus"
)

// ErrInvalidPosition is returned for a position request outside [0, 1].
var ErrInvalidPosition = errors.New("position outside [0, 1]")

// ErrUnsupportedCommand is returned by Send for commands that only the
// motion state machine may issue.
var ErrUnsupportedCommand = errors.New("command not accepted for direct dispatch")

// Controller owns the gate state: frame reader, transmit queue, motion
// state, parameter vector and statistics. Every method is safe for
// concurrent use; listeners are called without the lock held.
type Controller struct {
	mu     sync.Mutex
	cfg    Config
	log    log.FieldLogger
	reader *gatepro.Reader
	tx     *gatepro.TxQueue
	motion Motion
	params ParamStore
	stats  *gatepro.Statistics
	ready  bool

	onPublish  []func(State)
	onFrame    []func(FrameEvent)
	onTransmit []func(TransmitEvent)
}

// NewController creates a controller. Call Setup before driving it.
func NewController(cfg Config) *Controller {
	cfg = cfg.withDefaults()
	return &Controller{
		cfg:    cfg,
		log:    cfg.Logger,
		reader: gatepro.NewReader(),
		tx:     gatepro.NewTxQueue(),
		motion: NewMotion(),
		stats:  gatepro.NewStatistics(),
	}
}

// Config returns the effective configuration.
func (c *Controller) Config() Config {
	return c.cfg
}

// OnPublish registers a listener called with the state on every tick.
func (c *Controller) OnPublish(fn func(State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onPublish = append(c.onPublish, fn)
}

// OnFrame registers a listener called for every processed frame.
func (c *Controller) OnFrame(fn func(FrameEvent)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onFrame = append(c.onFrame, fn)
}

// OnTransmit registers a listener called for every transmitted command.
func (c *Controller) OnTransmit(fn func(TransmitEvent)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onTransmit = append(c.onTransmit, fn)
}

// Setup resets the motion state to power-on defaults and queues a status
// request.
func (c *Controller) Setup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.motion = NewMotion()
	c.ready = true
	c.enqueue(gatepro.NewOutbound(gatepro.CmdReadStatus))
	c.log.WithField("state", c.motion.Current).Info("gate controller ready")
}

// Resume prepares the controller for a new transport. The first call runs
// Setup; later calls keep the tracked state and only queue a status request.
func (c *Controller) Resume() {
	c.mu.Lock()
	if !c.ready {
		c.mu.Unlock()
		c.Setup()
		return
	}
	defer c.mu.Unlock()

	c.enqueue(gatepro.NewOutbound(gatepro.CmdReadStatus))
	c.log.WithField("position", c.motion.Position).Info("gate controller resumed")
}

// Traits returns the capabilities exposed to the cover host.
func (c *Controller) Traits() Traits {
	return Traits{
		SupportsPosition: true,
		SupportsStop:     true,
		SupportsTilt:     false,
		SupportsToggle:   true,
		AssumedState:     false,
	}
}

// Feed passes bytes read from the transport to the frame reader.
// It returns the number of complete frames cut.
func (c *Controller) Feed(data []byte) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	before := c.reader.Overflows()
	n := c.reader.Feed(data)
	if after := c.reader.Overflows(); after != before {
		c.log.WithField("overflows", after).Warn("rx buffer overflow, fragment discarded")
		c.stats.RecordOverflows(after)
	}
	return n
}

// Loop processes at most one received frame. It reports whether a frame
// was processed.
func (c *Controller) Loop() bool {
	c.mu.Lock()
	f, ok := c.reader.Next()
	if !ok {
		c.mu.Unlock()
		return false
	}

	msg, err := gatepro.ParseFrame(f)
	c.stats.Update(msg, err)
	c.interpret(f, msg, err)
	listeners := c.onFrame
	c.mu.Unlock()

	ev := FrameEvent{Time: time.Now(), Frame: f, Message: msg, Err: err}
	for _, fn := range listeners {
		fn(ev)
	}
	return true
}

func (c *Controller) interpret(f gatepro.Frame, msg gatepro.Message, err error) {
	entry := c.log.WithField("frame", f.Payload())

	if err != nil {
		if errors.Is(err, gatepro.ErrUnknownFrame) {
			entry.Debug("ignoring unknown frame")
		} else {
			entry.WithError(err).Warn("dropping malformed frame")
		}
		return
	}
	entry.WithField("kind", msg.Kind()).Debug("rx")

	switch m := msg.(type) {
	case gatepro.StatusAck:
		percent := gatepro.CorrectPercentage(m.Percentage, c.cfg.PercentageOffset)
		if c.motion.ApplyStatus(percent) {
			entry.WithField("position", c.motion.Position).Debug("position updated")
		}

	case gatepro.ParamsAck:
		out, err := c.params.Apply(m.Values)
		for _, o := range out {
			c.enqueue(o)
		}
		if err != nil {
			entry.WithError(err).Warn("deferred parameter write dropped")
		}

	case gatepro.WriteAck:
		entry.Debug("parameter write acknowledged")

	case gatepro.EventMsg:
		prior := c.motion.Current
		c.enqueueCommands(c.motion.ApplyEvent(m.Event, c.cfg.ReissueOnRemote))
		if c.motion.Current != prior {
			c.log.WithFields(log.Fields{
				"event": m.Event,
				"from":  prior,
				"to":    c.motion.Current,
			}).Info("gate state changed")
		}
	}
}

// Tick publishes the state, stops at an intermediate target, transmits at
// most one queued command, keeps status polling alive while moving and
// applies the post-operation correction. It returns the transport error of
// the transmitted command; the command is not retried.
func (c *Controller) Tick(w io.Writer) error {
	c.mu.Lock()
	state := c.snapshot()
	publish := c.onPublish

	if cmds := c.motion.StopAtTarget(c.cfg.AcceptableDiff); len(cmds) > 0 {
		c.log.WithField("position", c.motion.Position).Info("target reached, stopping")
		c.enqueueCommands(cmds)
	}

	var sent *TransmitEvent
	o, ok, err := c.tx.DrainOne(w)
	if ok {
		c.stats.RecordCommand(err)
		c.log.WithField("command", o.String()).Debug("tx")
		sent = &TransmitEvent{Time: time.Now(), Command: o, Err: err}
	}

	if c.motion.NeedsPolling() {
		c.enqueue(gatepro.NewOutbound(gatepro.CmdReadStatus))
	}

	if c.motion.Correct() {
		c.log.WithField("position", c.motion.Position).Info("position settled")
	}
	transmit := c.onTransmit
	c.mu.Unlock()

	for _, fn := range publish {
		fn(state)
	}
	if sent != nil {
		for _, fn := range transmit {
			fn(*sent)
		}
	}
	return err
}

// Control applies a request from the cover host.
func (c *Controller) Control(call Call) error {
	if err := call.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var cmds []gatepro.Command
	switch call.Kind {
	case CallStop:
		cmds = c.motion.RequestStop()
	case CallPosition:
		cmds = c.motion.RequestPosition(call.Position, c.cfg.MinPositionDiff)
	case CallToggle:
		cmds = c.motion.RequestToggle()
	case CallOpen:
		cmds = c.motion.RequestFull(true)
	case CallClose:
		cmds = c.motion.RequestFull(false)
	default:
		return fmt.Errorf("unknown call kind %d", call.Kind)
	}

	c.log.WithFields(log.Fields{
		"call":     call,
		"commands": len(cmds),
	}).Info("control request")
	c.enqueueCommands(cmds)
	return nil
}

// ReadParams queues a parameter read.
func (c *Controller) ReadParams() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enqueue(c.params.Read())
}

// SetParam changes one parameter, reading the vector first if needed.
func (c *Controller) SetParam(index, value int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	out, err := c.params.Set(index, value)
	if err != nil {
		return err
	}
	for _, o := range out {
		if o.Command == gatepro.CmdReadParams && c.tx.Contains(gatepro.CmdReadParams) {
			continue
		}
		c.enqueue(o)
	}
	c.log.WithFields(log.Fields{"index": index, "value": value}).Info("parameter set")
	return nil
}

// Send queues one of the commands the host may issue directly: status and
// parameter reads, auto learn, device info and learn status.
func (c *Controller) Send(cmd gatepro.Command) error {
	switch cmd {
	case gatepro.CmdReadStatus, gatepro.CmdReadParams, gatepro.CmdLearn,
		gatepro.CmdDevInfo, gatepro.CmdReadLearnStatus:
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedCommand, cmd)
	}

	c.queueCommand(cmd)
	return nil
}

// Learn starts the board's auto learn run.
func (c *Controller) Learn() {
	c.queueCommand(gatepro.CmdLearn)
}

// DevInfo requests device information.
func (c *Controller) DevInfo() {
	c.queueCommand(gatepro.CmdDevInfo)
}

// ReadLearnStatus requests the auto learn status.
func (c *Controller) ReadLearnStatus() {
	c.queueCommand(gatepro.CmdReadLearnStatus)
}

func (c *Controller) queueCommand(cmd gatepro.Command) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enqueue(gatepro.NewOutbound(cmd))
}

// State returns the current snapshot.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot()
}

// Motion returns a copy of the motion state.
func (c *Controller) Motion() Motion {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.motion
}

// Queued returns the commands waiting for transmission, head first.
func (c *Controller) Queued() []gatepro.Outbound {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tx.Items()
}

// Stats returns a copy of the frame statistics.
func (c *Controller) Stats() gatepro.Statistics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return *c.stats
}

func (c *Controller) snapshot() State {
	return State{
		Operation:   c.motion.Current,
		Last:        c.motion.Last,
		Position:    c.motion.Position,
		Target:      c.motion.Target,
		HasTarget:   c.motion.HasTarget,
		Finished:    c.motion.Finished,
		Params:      c.params.Snapshot(),
		ParamsKnown: c.params.Known(),
		QueuedTx:    c.tx.Len(),
	}
}

func (c *Controller) enqueue(o gatepro.Outbound) {
	c.tx.Enqueue(o)
}

func (c *Controller) enqueueCommands(cmds []gatepro.Command) {
	for _, cmd := range cmds {
		c.enqueue(gatepro.NewOutbound(cmd))
	}
}
