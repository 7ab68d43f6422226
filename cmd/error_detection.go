// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/markv9401/gatepro/pkg/gatepro"
	"github.com/spf13/cobra"
)

var (
	showAll       bool
	statsInterval int
)

var errorDetectionCmd = &cobra.Command{
	Use:   "error_detection",
	Short: "Detect and analyze malformed frames and errors",
	Long: `Track frame errors, unrecognized frames and receive buffer overflows
with statistics.

This command checks each frame and reports:
  - Frames of a known kind whose payload fails to decode
  - Frames the driver does not recognize
  - Receive buffer overflows (a fragment without delimiter grew too long)
  - Statistics and trends (frame rate, error rate)

By default, only problems are displayed. Use --show-all to display valid
frames too.

Statistics summaries are printed at a configurable interval.`,
	RunE: runErrorDetection,
}

func init() {
	rootCmd.AddCommand(errorDetectionCmd)
	errorDetectionCmd.Flags().BoolVar(&showAll, "show-all", false, "Show all frames (not just errors)")
	errorDetectionCmd.Flags().IntVar(&statsInterval, "stats-interval", 10, "Statistics update interval (seconds)")
}

func runErrorDetection(cmd *cobra.Command, args []string) error {
	if statsInterval <= 0 {
		return fmt.Errorf("--stats-interval must be positive")
	}

	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	fmt.Printf("gatectl - Error Detection\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	ctx, stop := signalContext()
	defer stop()

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
			if err != nil && isConnectionClosed(err) {
				readErr <- err
				return
			}
		}
	}()

	reader := gatepro.NewReader()
	stats := gatepro.NewStatistics()
	ticker := time.NewTicker(time.Duration(statsInterval) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			fmt.Print(stats.String())
			return nil

		case err := <-readErr:
			fmt.Printf("Connection closed: %v\n", err)
			fmt.Print(stats.String())
			return nil

		case <-ticker.C:
			fmt.Print(stats.String())

		case chunk := <-chunks:
			before := reader.Overflows()
			reader.Feed(chunk)
			if after := reader.Overflows(); after != before {
				stats.RecordOverflows(after)
				printOverflow(reader.Buffered())
			}

			for {
				f, ok := reader.Next()
				if !ok {
					break
				}
				msg, err := gatepro.ParseFrame(f)
				stats.Update(msg, err)

				switch {
				case errors.Is(err, gatepro.ErrUnknownFrame):
					printUnknownFrame(f)
				case err != nil:
					printDecodeError(f, err)
				case showAll:
					fmt.Print(gatepro.FormatFrame(f, time.Now()))
				}
			}
		}
	}
}

// printDecodeError prints a decode error in highlighted format
func printDecodeError(f gatepro.Frame, err error) {
	timestamp := time.Now().Format("15:04:05.000")
	fmt.Printf("[%s] \033[1;31mDECODE ERROR:\033[0m %s\n", timestamp, f.Payload())
	fmt.Printf("  %v\n", err)
	fmt.Printf("  >>> FRAME REJECTED <<<\n\n")
}

// printUnknownFrame prints a frame no parser claims
func printUnknownFrame(f gatepro.Frame) {
	timestamp := time.Now().Format("15:04:05.000")
	fmt.Printf("[%s] \033[1;33mUNKNOWN FRAME:\033[0m %s\n", timestamp, f.Payload())
	fmt.Printf("  Escaped: %s\n\n", gatepro.Escape([]byte(f)))
}

// printOverflow prints a receive buffer overflow
func printOverflow(remaining string) {
	timestamp := time.Now().Format("15:04:05.000")
	fmt.Printf("[%s] \033[1;31mBUFFER OVERFLOW:\033[0m fragment discarded\n", timestamp)
	if remaining != "" {
		fmt.Printf("  Buffered after overflow: %d bytes\n", len(remaining))
	}
	fmt.Println()
}
