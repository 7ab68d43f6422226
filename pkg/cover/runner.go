// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cover

import (
	"context"
	"errors"
	"io"
	"net"
	"time"
)

// readBufferSize is the chunk size of a single transport read
const readBufferSize = 128

// readRetryDelay is the pause after a transient read error
const readRetryDelay = 10 * time.Millisecond

// Runner schedules a Controller against a transport.
type Runner struct {
	ctrl *Controller
	conn io.ReadWriter

	// IsClosed reports read errors after which the transport is gone for
	// good. io.EOF and net.ErrClosed are always treated as closed.
	IsClosed func(error) bool
}

// NewRunner creates a runner for ctrl over conn.
func NewRunner(ctrl *Controller, conn io.ReadWriter) *Runner {
	return &Runner{ctrl: ctrl, conn: conn}
}

// Run resumes the controller and drives it until ctx is cancelled or the
// transport closes. The controller is set up on its first run only. It returns nil on cancellation and the read error when
// the transport closed.
func (r *Runner) Run(ctx context.Context) error {
	cfg := r.ctrl.Config()
	logger := r.ctrl.log

	r.ctrl.Resume()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	readErr := make(chan error, 1)
	go r.readLoop(ctx, readErr)

	loop := time.NewTicker(cfg.LoopInterval)
	defer loop.Stop()
	tick := time.NewTicker(cfg.TickInterval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			logger.WithError(err).Warn("transport closed")
			return err
		case <-loop.C:
			r.ctrl.Loop()
		case <-tick.C:
			if err := r.ctrl.Tick(r.conn); err != nil {
				logger.WithError(err).Warn("transmit failed")
			}
		}
	}
}

func (r *Runner) readLoop(ctx context.Context, readErr chan<- error) {
	buf := make([]byte, readBufferSize)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, err := r.conn.Read(buf)
		if n > 0 {
			r.ctrl.Feed(buf[:n])
		}
		if err == nil {
			continue
		}

		if r.closed(err) {
			select {
			case readErr <- err:
			default:
			}
			return
		}

		r.ctrl.log.WithError(err).Debug("read failed, retrying")
		select {
		case <-ctx.Done():
			return
		case <-time.After(readRetryDelay):
		}
	}
}

func (r *Runner) closed(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	return r.IsClosed != nil && r.IsClosed(err)
}
