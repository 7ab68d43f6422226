// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cover

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/markv9401/gatepro/pkg/gatepro"
	log "github.com/sirupsen/logrus"
)

// Config tunes the controller and its scheduler.
type Config struct {
	// AcceptableDiff is the distance to an intermediate target at which the
	// gate is stopped. Position feedback lags the real stop point.
	AcceptableDiff float64

	// MinPositionDiff suppresses position requests this close to the
	// current position.
	MinPositionDiff float64

	// PercentageOffset is subtracted from status percentages above 100.
	PercentageOffset int

	// ReissueOnRemote re-sends OPEN/CLOSE when the board reports a motion
	// that this side did not start.
	ReissueOnRemote bool

	TickInterval time.Duration
	LoopInterval time.Duration

	Logger log.FieldLogger
}

// DefaultConfig returns the settings used by the gate firmware.
func DefaultConfig() Config {
	return Config{
		AcceptableDiff:   0.05,
		MinPositionDiff:  0.02,
		PercentageOffset: gatepro.DefaultPercentageOffset,
		ReissueOnRemote:  false,
		TickInterval:     500 * time.Millisecond,
		LoopInterval:     10 * time.Millisecond,
	}
}

// Validate checks the tuning values.
func (c Config) Validate() error {
	var errs []error
	if c.AcceptableDiff < 0 || c.AcceptableDiff > 1 {
		errs = append(errs, fmt.Errorf("acceptable diff %v outside [0, 1]", c.AcceptableDiff))
	}
	if c.MinPositionDiff < 0 || c.MinPositionDiff > 1 {
		errs = append(errs, fmt.Errorf("min position diff %v outside [0, 1]", c.MinPositionDiff))
	}
	if c.PercentageOffset < 0 {
		errs = append(errs, fmt.Errorf("percentage offset %d is negative", c.PercentageOffset))
	}
	if c.TickInterval < 0 || c.LoopInterval < 0 {
		errs = append(errs, errors.New("intervals must not be negative"))
	}
	return errors.Join(errs...)
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.TickInterval == 0 {
		c.TickInterval = def.TickInterval
	}
	if c.LoopInterval == 0 {
		c.LoopInterval = def.LoopInterval
	}
	if c.Logger == nil {
		l := log.New()
		l.SetOutput(io.Discard)
		c.Logger = l
	}
	return c
}
