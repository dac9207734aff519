// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 OpenBench Labs
//
// powenetics - Powenetics v2 power measurement capture tool
//
// A CLI tool for capturing, decoding, and logging the 13-channel telemetry
// stream emitted by a Powenetics v2 power measurement device.

package main

import (
	"os"

	"github.com/openbenchlab/powenetics/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
