// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 OpenBench Labs

package pmd

import "github.com/sigurn/crc16"

// Frames carry a CRC-16/CCITT-FALSE over the sequence and payload bytes
// (everything between the marker and the checksum field).
var crcTable = crc16.MakeTable(crc16.CRC16_CCITT_FALSE)

// Checksum computes the frame checksum for the given data.
func Checksum(data []byte) uint16 {
	return crc16.Checksum(data, crcTable)
}
