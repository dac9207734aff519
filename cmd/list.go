// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 OpenBench Labs

package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.bug.st/serial/enumerator"

	"github.com/openbenchlab/powenetics/pkg/pmd"
)

var listAll bool

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List serial ports and identify Powenetics devices",
	Long: `List available serial ports.

Ports whose USB vendor/product IDs match the Powenetics v2 device are marked.
Use --all to include ports that are definitely not a Powenetics device.

Exit codes:
  0 - At least one candidate port found
  1 - No candidate ports found`,
	RunE: runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().BoolVarP(&listAll, "all", "a", false, "List all serial ports")
}

// isPoweneticsPort matches the device's USB VID/PID. The enumerator reports
// IDs as hex strings.
func isPoweneticsPort(p *enumerator.PortDetails) bool {
	if !p.IsUSB {
		return false
	}
	vid, err := strconv.ParseUint(p.VID, 16, 16)
	if err != nil {
		return false
	}
	pid, err := strconv.ParseUint(p.PID, 16, 16)
	if err != nil {
		return false
	}
	return vid == pmd.USBVendorID && pid == pmd.USBProductID
}

func runList(cmd *cobra.Command, args []string) error {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return fmt.Errorf("failed to enumerate serial ports: %v", err)
	}

	fmt.Println("Available serial ports:")

	found := 0
	for _, port := range ports {
		switch {
		case isPoweneticsPort(port):
			fmt.Printf("  %s  Powenetics v2 (USB %s:%s)\n", port.Name, strings.ToUpper(port.VID), strings.ToUpper(port.PID))
			found++
		case port.IsUSB && listAll:
			fmt.Printf("  %s  USB %s:%s %s\n", port.Name, strings.ToUpper(port.VID), strings.ToUpper(port.PID), port.Product)
			found++
		case !port.IsUSB && listAll:
			// May or may not be a Powenetics device behind an adapter.
			fmt.Printf("  %s\n", port.Name)
			found++
		}
	}

	if found == 0 {
		fmt.Println("  none")
		fmt.Println("\nNo candidate ports. Make sure your Powenetics device is plugged in,")
		fmt.Println("or rerun with --all to list every serial port.")
		return fmt.Errorf("no candidate ports found")
	}

	return nil
}
