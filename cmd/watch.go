// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/markv9401/gatepro/pkg/cover"
	"github.com/markv9401/gatepro/pkg/gatepro"
	"github.com/markv9401/gatepro/pkg/hostlink"
	"github.com/spf13/cobra"
)

var (
	watchAPI      string
	watchDuration int
	watchCount    int
	watchPosition float64
	watchStop     bool
	watchToggle   bool
	watchParams   bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch and control a running driver over its host API",
	Long: `Connect to the host API of a running driver (gatectl run --listen) and
print each state update.

An action can be sent after connecting with --position, --stop or --toggle.
--params asks the driver to read the parameter vector.

Examples:
  gatectl watch --api ws://gate.local:8080/
  gatectl watch --api ws://gate.local:8080/ --position 0.3 --count 20

Exit codes:
  0 - Watch completed normally
  1 - The driver reported an error or the connection dropped
  2 - Connection error`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().StringVar(&watchAPI, "api", "", "Host API URL (ws:// or wss://)")
	watchCmd.Flags().IntVar(&watchDuration, "duration", 0, "Stop after this many seconds (0 runs until interrupted)")
	watchCmd.Flags().IntVar(&watchCount, "count", 0, "Stop after this many state updates (0 is unlimited)")
	watchCmd.Flags().Float64Var(&watchPosition, "position", -1, "Move to this position (0.0 closed, 1.0 open)")
	watchCmd.Flags().BoolVar(&watchStop, "stop", false, "Stop the gate")
	watchCmd.Flags().BoolVar(&watchToggle, "toggle", false, "Toggle the gate")
	watchCmd.Flags().BoolVar(&watchParams, "params", false, "Read the parameter vector")
	watchCmd.MarkFlagRequired("api")
	watchCmd.MarkFlagsMutuallyExclusive("position", "stop", "toggle")
}

func formatState(s cover.State) string {
	result := fmt.Sprintf("[%s] %-7s position=%3.0f%%", time.Now().Format("15:04:05.000"), s.Operation, s.Position*100)
	if s.HasTarget {
		result += fmt.Sprintf(" target=%3.0f%%", s.Target*100)
	}
	if s.Finished {
		result += " settled"
	}
	if s.ParamsKnown {
		result += " params=" + gatepro.JoinParams(s.Params)
	}
	return result + "\n"
}

func runWatch(cmd *cobra.Command, args []string) error {
	password, err := webSocketPassword()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	client, err := hostlink.Dial(ctx, watchAPI, hostlink.DialOptions{
		Header:        basicAuthHeader(wsUsername, password),
		SkipSSLVerify: wsNoSSLVerify,
	})
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer client.Close()

	fmt.Printf("gatectl - Watch\n")
	fmt.Printf("Host API: %s\n\n", watchAPI)

	var call *cover.Call
	switch {
	case cmd.Flags().Changed("position"):
		c := cover.PositionCall(watchPosition)
		call = &c
	case watchStop:
		c := cover.StopCall()
		call = &c
	case watchToggle:
		c := cover.ToggleCall()
		call = &c
	}
	if call != nil {
		if err := client.Control(*call); err != nil {
			fmt.Fprintf(os.Stderr, "Send error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Sent %s\n", call)
	}
	if watchParams {
		if err := client.ReadParams(); err != nil {
			fmt.Fprintf(os.Stderr, "Send error: %v\n", err)
			os.Exit(1)
		}
	}

	var deadline time.Time
	if watchDuration > 0 {
		deadline = time.Now().Add(time.Duration(watchDuration) * time.Second)
		client.SetReadDeadline(deadline)
	}

	received := 0
	for watchCount == 0 || received < watchCount {
		s, err := client.ReadState()
		if err != nil {
			if !deadline.IsZero() && !time.Now().Before(deadline) {
				break
			}
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		received++
		fmt.Print(formatState(s))
	}

	fmt.Printf("\n--- Watch Results ---\n")
	fmt.Printf("State updates: %d\n", received)
	return nil
}
