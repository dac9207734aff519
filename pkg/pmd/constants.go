// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 OpenBench Labs

// Package pmd decodes the binary telemetry stream of a Powenetics v2 power
// measurement device.
//
// The device pushes one fixed-length frame per sample tick (~1 kHz) over a
// USB serial connection, covering 13 electrical channels. This package
// provides frame synchronization with byte-at-a-time recovery, channel
// decoding, per-channel energy integration, and a streaming session that
// delivers validated readings to consumers under an explicit back-pressure
// policy.
package pmd

import "time"

// Frame layout. The device documentation does not describe the wire format;
// these values come from protocol captures against real hardware and must be
// kept in sync with the firmware.
const (
	MarkerByte0 = 0xCA
	MarkerByte1 = 0xAC

	MarkerSize   = 2
	SequenceSize = 2
	ChannelSize  = 5 // u16 voltage (mV) + u24 current (mA), big-endian
	ChecksumSize = 2

	NumChannels = 13

	PayloadSize = NumChannels * ChannelSize
	FrameSize   = MarkerSize + SequenceSize + PayloadSize + ChecksumSize

	// Offsets within a frame
	sequenceOffset = MarkerSize
	payloadOffset  = MarkerSize + SequenceSize
	checksumOffset = payloadOffset + PayloadSize
)

// Serial parameters
const (
	BaudRate = 921600

	USBVendorID  = 0x04D8
	USBProductID = 0x000A
)

// ReadyMessage is sent by the device once calibration is finalized and it is
// willing to start streaming measurements.
const ReadyMessage = "PMD is ready!"

// Control command bytes (host -> device)
const (
	cmdCalibrate byte = 0xCA

	ctrlByte0 byte = 0xCA
	ctrlByte1 byte = 0xAC
	ctrlByte2 byte = 0xBD

	opResetCalibration    byte = 0x00
	opFinalizeCalibration byte = 0x01
	opStartMeasurement    byte = 0x90
)

// ChannelNames lists the 13 monitored rails in wire order. Channel identity
// is positional; the device never names channels in-band.
var ChannelNames = [NumChannels]string{
	"ATX 3.3V",
	"ATX 5V Standby",
	"ATX 12V",
	"ATX 5V",
	"EPS 12V #1",
	"ATX12VO 12V Standby",
	"EPS 12V #3",
	"EPS 12V #2",
	"PCIe 12V #3",
	"PCIe 12V #2",
	"PCIe Slot 3.3V",
	"PCIe Slot 12V",
	"PCIe 12V #1",
}

// channelNominalMV lists the nominal rail voltage per channel, used only for
// plausibility checks. Readings are never corrected.
var channelNominalMV = [NumChannels]uint32{
	3300,  // ATX 3.3V
	5000,  // ATX 5V Standby
	12000, // ATX 12V
	5000,  // ATX 5V
	12000, // EPS 12V #1
	12000, // ATX12VO 12V Standby
	12000, // EPS 12V #3
	12000, // EPS 12V #2
	12000, // PCIe 12V #3
	12000, // PCIe 12V #2
	3300,  // PCIe Slot 3.3V
	12000, // PCIe Slot 12V
	12000, // PCIe 12V #1
}

// Synchronizer states (internal)
const (
	stateSeeking = iota
	stateAccumulating
	stateFrameReady
	stateDesynchronized
)

// Synchronizer and session defaults
const (
	// DefaultResyncLimit bounds how many bytes may be discarded between two
	// accepted frames before the stream is declared unrecoverable. A single
	// corrupted frame costs at most two frame lengths of discarded bytes, so
	// the default leaves ample headroom.
	DefaultResyncLimit = 8 * FrameSize

	// DefaultQueueSize absorbs roughly a quarter second of readings at the
	// nominal 1 kHz rate while a sink stalls on a disk flush.
	DefaultQueueSize = 256

	// DefaultSendTimeout is how long delivery blocks on a full queue before
	// falling back to dropping the oldest unread reading.
	DefaultSendTimeout = 5 * time.Millisecond
)
