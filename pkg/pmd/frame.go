// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 OpenBench Labs

package pmd

import (
	"encoding/binary"
	"time"
)

// Frame is one validated fixed-length telemetry frame: the measurements of
// all 13 channels for a single sample tick. Frames are only produced by the
// Synchronizer after the checksum has been verified.
type Frame struct {
	Sequence  uint16            // free-running wire counter, wraps at 65535
	Payload   [PayloadSize]byte // 13 x (u16 voltage mV, u24 current mA), big-endian
	Checksum  uint16
	Timestamp time.Time // receipt time, captured on acceptance
}

// parseFrame interprets buf (exactly FrameSize bytes starting at the marker)
// as a frame without validating the checksum.
func parseFrame(buf []byte) *Frame {
	f := &Frame{
		Sequence: binary.BigEndian.Uint16(buf[sequenceOffset:]),
		Checksum: binary.BigEndian.Uint16(buf[checksumOffset:]),
	}
	copy(f.Payload[:], buf[payloadOffset:checksumOffset])
	return f
}

// valid reports whether buf (exactly FrameSize bytes starting at the marker)
// carries a correct checksum over its sequence and payload bytes.
func validFrame(buf []byte) bool {
	want := binary.BigEndian.Uint16(buf[checksumOffset:])
	return Checksum(buf[sequenceOffset:checksumOffset]) == want
}

// MarshalFrame encodes a frame into wire format, computing the checksum.
// It exists for the benefit of tests and replay tooling; the host never
// sends measurement frames to the device.
func MarshalFrame(sequence uint16, payload []byte) []byte {
	buf := make([]byte, FrameSize)
	buf[0] = MarkerByte0
	buf[1] = MarkerByte1
	binary.BigEndian.PutUint16(buf[sequenceOffset:], sequence)
	copy(buf[payloadOffset:checksumOffset], payload)
	binary.BigEndian.PutUint16(buf[checksumOffset:], Checksum(buf[sequenceOffset:checksumOffset]))
	return buf
}
