// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// gatectl - GatePro gate controller driver
//
// Drives GatePro gate and barrier boards over their UART text protocol
// and exposes them to hosts as a position-capable cover.

package main

import (
	"os"

	"github.com/markv9401/gatepro/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
