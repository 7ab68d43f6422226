// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/markv9401/gatepro/pkg/cover"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// Driver tuning flags shared by run and control
var (
	tickInterval     time.Duration
	loopInterval     time.Duration
	acceptableDiff   float64
	minPositionDiff  float64
	percentageOffset int
	reissueOnRemote  bool
)

func addDriverFlags(cmd *cobra.Command) {
	defaults := cover.DefaultConfig()
	cmd.Flags().DurationVar(&tickInterval, "tick", defaults.TickInterval, "Scheduled update interval")
	cmd.Flags().DurationVar(&loopInterval, "loop", defaults.LoopInterval, "Frame processing interval")
	cmd.Flags().Float64Var(&acceptableDiff, "acceptable-diff", defaults.AcceptableDiff, "Stop when this close to the target position")
	cmd.Flags().Float64Var(&minPositionDiff, "min-position-diff", defaults.MinPositionDiff, "Ignore position requests closer than this to the current position")
	cmd.Flags().IntVar(&percentageOffset, "percentage-offset", defaults.PercentageOffset, "Offset subtracted from status percentages above 100")
	cmd.Flags().BoolVar(&reissueOnRemote, "reissue-remote", defaults.ReissueOnRemote, "Re-send OPEN/CLOSE when a remote starts motion")
}

// driverConfig builds a validated controller config from the driver flags
func driverConfig() (cover.Config, error) {
	cfg := cover.Config{
		AcceptableDiff:   acceptableDiff,
		MinPositionDiff:  minPositionDiff,
		PercentageOffset: percentageOffset,
		ReissueOnRemote:  reissueOnRemote,
		TickInterval:     tickInterval,
		LoopInterval:     loopInterval,
		Logger:           log.StandardLogger().WithField("component", "cover"),
	}
	if err := cfg.Validate(); err != nil {
		return cover.Config{}, fmt.Errorf("invalid driver settings: %w", err)
	}
	return cfg, nil
}

// newDriver creates a controller and a runner over conn
func newDriver(conn Connection) (*cover.Controller, *cover.Runner, error) {
	cfg, err := driverConfig()
	if err != nil {
		return nil, nil, err
	}

	ctrl := cover.NewController(cfg)
	runner := cover.NewRunner(ctrl, conn)
	runner.IsClosed = isConnectionClosed
	return ctrl, runner, nil
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
