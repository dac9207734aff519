// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 OpenBench Labs

package cmd

import (
	"github.com/spf13/cobra"
)

var (
	// Serial connection flags
	portName string
	baudRate int

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool
)

var rootCmd = &cobra.Command{
	Use:   "powenetics",
	Short: "Powenetics v2 power measurement tool",
	Long: `powenetics - capture and decode the 13-channel telemetry stream of a
Powenetics v2 power measurement device.

The device pushes roughly 1000 frames per second over USB serial. This tool
recovers frame boundaries from the raw byte stream, validates each frame,
integrates per-channel energy, and delivers readings to CSV or CBOR logs or
a live monitor.

Connection modes:
  Serial:    --port /dev/ttyACM0 [--baud 921600]
  WebSocket: --url ws://host/path [--username user]

WebSocket mode reads the same byte stream from a remote serial bridge. For
authentication the password is read from the PMD_PASSWORD environment
variable, or prompted interactively if not set.

Run "powenetics list" to find a connected device.`,
	Version: "1.0.0",
}

func init() {
	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 921600, "Baud rate (serial only)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
