// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"time"

	"github.com/markv9401/gatepro/pkg/gatepro"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	rawStatsInterval time.Duration
	rawProbe         time.Duration
)

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display raw frame log in human-readable format",
	Long: `Continuously cut and decode GatePro frames as they arrive.

Each frame is shown with a timestamp, its kind and the decoded payload.
Frames the driver does not recognize are shown as UNKNOWN. Nothing is sent
to the board unless --probe is set, in which case a status request is
transmitted at the given interval.

Supports both serial and WebSocket connections.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
	rawLogCmd.Flags().DurationVar(&rawStatsInterval, "stats-interval", 0, "Print statistics at this interval (0 disables)")
	rawLogCmd.Flags().DurationVar(&rawProbe, "probe", 0, "Send a status request at this interval (0 disables)")
}

func runRawLog(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	fmt.Printf("gatectl - Raw Frame Log\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	ctx, stop := signalContext()
	defer stop()

	reader := gatepro.NewReader()
	stats := gatepro.NewStatistics()

	chunks := make(chan []byte, 16)
	readErr := make(chan error, 1)
	go func() {
		buf := make([]byte, 128)
		for {
			n, err := conn.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				chunks <- chunk
			}
			if err == nil {
				continue
			}
			if isConnectionClosed(err) {
				readErr <- err
				return
			}
			log.WithError(err).Debug("read error")
			time.Sleep(10 * time.Millisecond)
		}
	}()

	var statsC, probeC <-chan time.Time
	if rawStatsInterval > 0 {
		t := time.NewTicker(rawStatsInterval)
		defer t.Stop()
		statsC = t.C
	}
	if rawProbe > 0 {
		t := time.NewTicker(rawProbe)
		defer t.Stop()
		probeC = t.C
	}

	probe := gatepro.NewOutbound(gatepro.CmdReadStatus)
	for {
		select {
		case <-ctx.Done():
			fmt.Print(stats.String())
			return nil

		case err := <-readErr:
			log.WithError(err).Info("connection closed")
			fmt.Print(stats.String())
			return nil

		case chunk := <-chunks:
			before := reader.Overflows()
			reader.Feed(chunk)
			if after := reader.Overflows(); after != before {
				fmt.Printf("[ERROR] rx buffer overflow, fragment discarded\n")
				stats.RecordOverflows(after)
			}
			for {
				f, ok := reader.Next()
				if !ok {
					break
				}
				msg, err := gatepro.ParseFrame(f)
				stats.Update(msg, err)
				fmt.Print(gatepro.FormatFrame(f, time.Now()))
			}

		case <-probeC:
			_, err := conn.Write(probe.Encode())
			stats.RecordCommand(err)
			if err != nil {
				fmt.Printf("[ERROR] probe failed: %v\n", err)
				continue
			}
			fmt.Print(gatepro.FormatCommand(probe, time.Now()))

		case <-statsC:
			fmt.Print(stats.String())
		}
	}
}
