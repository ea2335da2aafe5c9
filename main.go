// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Mirrorsupport - Mirror Support Control Core
//
// Drives the force actuators and hardpoints of a primary mirror support
// through the ILC FIFO bridge, and decodes and monitors its traffic.

package main

import (
	"os"

	"github.com/Thermoquad/mirrorsupport/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
