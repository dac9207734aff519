// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 OpenBench Labs

package pmd

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"
)

// Control protocol: the host configures the device with short command
// writes before asking it to start the 1 kHz measurement stream. Once
// measurement starts, the device only pushes frames; there is no further
// command surface.

var (
	// ErrNoPowerOnChannel is returned when calibration is requested on a
	// channel that carries no load.
	ErrNoPowerOnChannel = errors.New("no power on channel, cannot calibrate")

	// ErrInvalidChannel is returned for a channel index outside 0..12.
	ErrInvalidChannel = errors.New("invalid channel")
)

const maxCalibrationMA = 1<<24 - 1

// EncodeCalibration builds the calibration command for one channel against a
// known reference current in milliamps: command byte, channel id, u24
// big-endian reference.
func EncodeCalibration(channel int, referenceMA uint32) ([]byte, error) {
	if channel < 0 || channel >= NumChannels {
		return nil, fmt.Errorf("%w: %d", ErrInvalidChannel, channel)
	}
	if referenceMA > maxCalibrationMA {
		return nil, fmt.Errorf("reference current %d mA exceeds 24-bit range", referenceMA)
	}
	return []byte{
		cmdCalibrate,
		byte(channel),
		byte(referenceMA >> 16),
		byte(referenceMA >> 8),
		byte(referenceMA),
	}, nil
}

// EncodeResetCalibration builds the command clearing all stored calibration.
func EncodeResetCalibration() []byte {
	return []byte{ctrlByte0, ctrlByte1, ctrlByte2, opResetCalibration}
}

// EncodeFinalizeCalibration builds the command committing calibration; the
// device answers with its ready banner.
func EncodeFinalizeCalibration() []byte {
	return []byte{ctrlByte0, ctrlByte1, ctrlByte2, opFinalizeCalibration}
}

// EncodeStartMeasurement builds the command starting the measurement stream.
func EncodeStartMeasurement() []byte {
	return []byte{ctrlByte0, ctrlByte1, ctrlByte2, opStartMeasurement}
}

// Calibrate calibrates one channel against a known reference current. The
// device stays silent on success and answers 0xCA 0xAC when the channel
// carries no power. Must be called before StartMeasurement.
func Calibrate(conn io.ReadWriter, channel int, referenceMA uint32) error {
	cmd, err := EncodeCalibration(channel, referenceMA)
	if err != nil {
		return err
	}
	if _, err := conn.Write(cmd); err != nil {
		return fmt.Errorf("write calibration command: %w", err)
	}

	// Give the device a moment to object.
	time.Sleep(5 * time.Millisecond)

	reply := make([]byte, 8)
	n, err := conn.Read(reply)
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("read calibration reply: %w", err)
	}
	switch {
	case n == 0:
		return nil // silence means success
	case n == 2 && reply[0] == MarkerByte0 && reply[1] == MarkerByte1:
		return ErrNoPowerOnChannel
	default:
		return fmt.Errorf("protocol error: unexpected calibration reply % X", reply[:n])
	}
}

// ResetCalibration clears all stored channel calibration. Must be called
// before StartMeasurement.
func ResetCalibration(conn io.Writer) error {
	if _, err := conn.Write(EncodeResetCalibration()); err != nil {
		return fmt.Errorf("write calibration reset: %w", err)
	}
	return nil
}

// StartMeasurement finalizes calibration, waits for the device's ready
// banner, and starts the measurement stream. On return the transport
// carries nothing but measurement frames and should be handed to a Session.
func StartMeasurement(conn io.ReadWriter) error {
	if _, err := conn.Write(EncodeFinalizeCalibration()); err != nil {
		return fmt.Errorf("finalize calibration: %w", err)
	}

	time.Sleep(5 * time.Millisecond)

	// The banner is optional: a device that was already finalized starts
	// silently.
	banner := make([]byte, 64)
	n, err := conn.Read(banner)
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("read ready banner: %w", err)
	}
	if n > 0 && !bytes.HasPrefix(banner[:n], []byte(ReadyMessage)) {
		return fmt.Errorf("protocol error: expected %q, received % X", ReadyMessage, banner[:n])
	}

	if _, err := conn.Write(EncodeStartMeasurement()); err != nil {
		return fmt.Errorf("start measurement: %w", err)
	}
	return nil
}
