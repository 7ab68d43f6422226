// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/markv9401/gatepro/pkg/cover"
	"github.com/markv9401/gatepro/pkg/hostlink"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	listenAddr string

	// One-shot actions issued once the driver is up
	runPosition float64
	runOpen     bool
	runClose    bool
	runStop     bool
	runToggle   bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the gate driver headless",
	Long: `Drive the gate board until interrupted.

The driver polls the board while the gate moves, stops it at intermediate
target positions and logs every state change. With --listen, the state is
streamed to websocket hosts which may send control requests, parameter
changes and device commands.

A single action can be issued at startup with --position, --open, --close,
--stop or --toggle.

Examples:
  gatectl run -p /dev/ttyUSB0 --listen :8080
  gatectl run -p /dev/ttyUSB0 --position 0.5`,
	RunE: runDriver,
}

func init() {
	rootCmd.AddCommand(runCmd)
	addDriverFlags(runCmd)
	runCmd.Flags().StringVar(&listenAddr, "listen", "", "Serve the host API on this address (e.g. :8080)")
	runCmd.Flags().Float64Var(&runPosition, "position", -1, "Move to this position (0.0 closed, 1.0 open) at startup")
	runCmd.Flags().BoolVar(&runOpen, "open", false, "Fully open at startup")
	runCmd.Flags().BoolVar(&runClose, "close", false, "Fully close at startup")
	runCmd.Flags().BoolVar(&runStop, "stop", false, "Stop at startup")
	runCmd.Flags().BoolVar(&runToggle, "toggle", false, "Toggle at startup")
	runCmd.MarkFlagsMutuallyExclusive("position", "open", "close", "stop", "toggle")
}

// startupCall returns the one-shot action requested on the command line
func startupCall(cmd *cobra.Command) (cover.Call, bool) {
	switch {
	case cmd.Flags().Changed("position"):
		return cover.PositionCall(runPosition), true
	case runOpen:
		return cover.OpenCall(), true
	case runClose:
		return cover.CloseCall(), true
	case runStop:
		return cover.StopCall(), true
	case runToggle:
		return cover.ToggleCall(), true
	}
	return cover.Call{}, false
}

func runDriver(cmd *cobra.Command, args []string) error {
	call, hasCall := startupCall(cmd)
	if hasCall {
		if err := call.Validate(); err != nil {
			return err
		}
	}

	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	ctrl, runner, err := newDriver(conn)
	if err != nil {
		return err
	}
	log.WithField("connection", connInfo).Info("connected")

	hub := hostlink.NewHub()
	defer hub.Close()

	// The first publish happens after Setup, so startup actions are not
	// wiped by the power-on reset
	var startup sync.Once
	var last cover.State
	ctrl.OnPublish(func(s cover.State) {
		if hasCall {
			startup.Do(func() {
				if err := ctrl.Control(call); err != nil {
					log.WithError(err).Error("startup action failed")
				}
			})
		}

		if s.Equal(last) {
			return
		}
		last = s
		log.WithFields(log.Fields{
			"state":    s.Operation,
			"position": fmt.Sprintf("%.2f", s.Position),
			"finished": s.Finished,
		}).Info("state changed")
		hub.Broadcast(s)
	})

	ctx, stop := signalContext()
	defer stop()

	var srv *http.Server
	serveErr := make(chan error, 1)
	if listenAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/", hostlink.NewServer(ctrl, hub, log.StandardLogger().WithField("component", "hostlink")))
		srv = &http.Server{
			Addr:              listenAddr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			log.WithField("addr", listenAddr).Info("host API listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErr <- err
			}
		}()
	}

	runErr := make(chan error, 1)
	go func() {
		runErr <- runner.Run(ctx)
	}()

	select {
	case err = <-runErr:
	case err = <-serveErr:
		err = fmt.Errorf("host API failed: %w", err)
		stop()
		<-runErr
	}

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}

	stats := ctrl.Stats()
	fmt.Fprint(cmd.ErrOrStderr(), stats.String())
	if err != nil {
		return fmt.Errorf("driver stopped: %w", err)
	}
	return nil
}
