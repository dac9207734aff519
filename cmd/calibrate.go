// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 OpenBench Labs

package cmd

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/openbenchlab/powenetics/pkg/pmd"
)

var calibrateReset bool

var calibrateCmd = &cobra.Command{
	Use:   "calibrate <channel> <reference-mA>",
	Short: "Calibrate a channel against a known reference current",
	Long: `Calibrate one channel against a known load current.

Apply a known, steady load to the channel, then pass the channel index
(0-12, see "powenetics channels") and the reference current in milliamps.
Calibration must happen before measurement starts; once the stream is
running the device accepts no further commands.

With --reset, all stored calibration is cleared instead and no arguments
are expected.

Exit codes:
  0 - Calibration accepted
  1 - Device rejected calibration (e.g. no power on channel)
  2 - Connection error`,
	Args: func(cmd *cobra.Command, args []string) error {
		if calibrateReset {
			return cobra.NoArgs(cmd, args)
		}
		return cobra.ExactArgs(2)(cmd, args)
	},
	RunE: runCalibrate,
}

var channelsCmd = &cobra.Command{
	Use:   "channels",
	Short: "List the 13 channel indices and names",
	Run: func(cmd *cobra.Command, args []string) {
		for i, name := range pmd.ChannelNames {
			fmt.Printf("%2d  %s\n", i, name)
		}
	},
}

func init() {
	rootCmd.AddCommand(calibrateCmd)
	rootCmd.AddCommand(channelsCmd)
	calibrateCmd.Flags().BoolVar(&calibrateReset, "reset", false, "Clear all stored calibration")
}

func runCalibrate(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	if calibrateReset {
		if err := pmd.ResetCalibration(conn); err != nil {
			return err
		}
		fmt.Printf("Calibration cleared (%s)\n", connInfo)
		return nil
	}

	channel, err := strconv.Atoi(args[0])
	if err != nil || channel < 0 || channel >= pmd.NumChannels {
		return fmt.Errorf("invalid channel %q (expected 0-%d)", args[0], pmd.NumChannels-1)
	}
	referenceMA, err := strconv.ParseUint(args[1], 10, 32)
	if err != nil {
		return fmt.Errorf("invalid reference current %q (milliamps)", args[1])
	}

	err = pmd.Calibrate(conn, channel, uint32(referenceMA))
	switch {
	case err == nil:
		fmt.Printf("Calibrated channel %d (%s) against %d mA\n", channel, pmd.ChannelNames[channel], referenceMA)
		return nil
	case errors.Is(err, pmd.ErrNoPowerOnChannel):
		fmt.Fprintf(os.Stderr, "Channel %d (%s) carries no power; apply the reference load first.\n",
			channel, pmd.ChannelNames[channel])
		os.Exit(1)
		return nil
	default:
		return err
	}
}
