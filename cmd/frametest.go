// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/markv9401/gatepro/pkg/gatepro"
	"github.com/spf13/cobra"
)

var (
	frameTestTimeout int
	frameTestProbe   bool
)

var frameTestCmd = &cobra.Command{
	Use:   "frame_test",
	Short: "Test connection by waiting for a recognized GatePro frame",
	Long: `Wait for a recognized GatePro frame on the connection until timeout.

This command connects to a serial port or WebSocket and waits for a complete
frame the driver understands. Unknown frames and frames that fail to decode
are counted and skipped.

With --probe, a status request is sent once per second so an idle board
answers.

Exit codes:
  0 - Frame received before timeout
  1 - Timeout reached without receiving a recognized frame
  2 - Connection error`,
	RunE: runFrameTest,
}

func init() {
	rootCmd.AddCommand(frameTestCmd)
	frameTestCmd.Flags().IntVar(&frameTestTimeout, "timeout", 10, "Timeout in seconds to wait for a frame")
	frameTestCmd.Flags().BoolVar(&frameTestProbe, "probe", false, "Send status requests while waiting")
}

func runFrameTest(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("gatectl - Frame Test\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds\n", frameTestTimeout)
	fmt.Printf("Waiting for a recognized frame...\n\n")

	frameChan := make(chan gatepro.Frame, 1)
	errChan := make(chan error, 1)

	go func() {
		reader := gatepro.NewReader()
		buf := make([]byte, 128)
		skipped := 0
		for {
			n, err := conn.Read(buf)
			if err != nil {
				if isConnectionClosed(err) {
					errChan <- err
					return
				}
				continue
			}

			reader.Feed(buf[:n])
			for {
				f, ok := reader.Next()
				if !ok {
					break
				}
				if _, err := gatepro.ParseFrame(f); err != nil {
					skipped++
					continue
				}
				if skipped > 0 {
					fmt.Printf("(skipped %d unrecognized frames)\n", skipped)
				}
				frameChan <- f
				return
			}
		}
	}()

	var probeC <-chan time.Time
	if frameTestProbe {
		t := time.NewTicker(time.Second)
		defer t.Stop()
		probeC = t.C
		conn.Write(gatepro.NewOutbound(gatepro.CmdReadStatus).Encode())
	}
	timeout := time.After(time.Duration(frameTestTimeout) * time.Second)

	for {
		select {
		case f := <-frameChan:
			msg, _ := gatepro.ParseFrame(f)
			fmt.Printf("SUCCESS: Received valid frame\n")
			fmt.Printf("  Kind: %s\n", msg.Kind())
			fmt.Printf("  Payload: %s\n", f.Payload())
			fmt.Print(gatepro.FormatMessage(msg))
			os.Exit(0)

		case err := <-errChan:
			fmt.Fprintf(os.Stderr, "Read error: %v\n", err)
			os.Exit(2)

		case <-probeC:
			if _, err := conn.Write(gatepro.NewOutbound(gatepro.CmdReadStatus).Encode()); err != nil {
				fmt.Fprintf(os.Stderr, "Write error: %v\n", err)
				os.Exit(2)
			}

		case <-timeout:
			fmt.Fprintf(os.Stderr, "TIMEOUT: No recognized frame received within %d seconds\n", frameTestTimeout)
			os.Exit(1)
		}
	}
}
