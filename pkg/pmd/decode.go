// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 OpenBench Labs

package pmd

import "fmt"

// ChannelSample is one raw measurement for a single channel. The channel it
// belongs to is implied by its position in the decoded slice.
type ChannelSample struct {
	VoltageMV uint16
	CurrentMA uint32
}

// PowerUW returns the instantaneous power in microwatts. Millivolts times
// milliamps is exactly microwatts, so the hot path needs no scaling division.
func (s ChannelSample) PowerUW() uint64 {
	return uint64(s.VoltageMV) * uint64(s.CurrentMA)
}

// DecodeChannels maps a validated frame payload to the 13 channel samples in
// wire order. Each channel occupies 5 bytes: a big-endian u16 voltage in
// millivolts followed by a big-endian u24 current in milliamps.
//
// The mapping is pure and performs no allocation. A length mismatch is an
// internal invariant violation (the Synchronizer only hands over full
// payloads), not a recoverable condition.
func DecodeChannels(payload []byte) ([NumChannels]ChannelSample, error) {
	var samples [NumChannels]ChannelSample
	if len(payload) != PayloadSize {
		return samples, fmt.Errorf("payload length %d, want %d", len(payload), PayloadSize)
	}
	for i := 0; i < NumChannels; i++ {
		off := i * ChannelSize
		samples[i] = ChannelSample{
			VoltageMV: uint16(payload[off])<<8 | uint16(payload[off+1]),
			CurrentMA: uint32(payload[off+2])<<16 | uint32(payload[off+3])<<8 | uint32(payload[off+4]),
		}
	}
	return samples, nil
}

// EncodeChannels is the inverse of DecodeChannels, used by tests and replay
// tooling to build frame payloads.
func EncodeChannels(samples [NumChannels]ChannelSample) []byte {
	payload := make([]byte, PayloadSize)
	for i, s := range samples {
		off := i * ChannelSize
		payload[off] = byte(s.VoltageMV >> 8)
		payload[off+1] = byte(s.VoltageMV)
		payload[off+2] = byte(s.CurrentMA >> 16)
		payload[off+3] = byte(s.CurrentMA >> 8)
		payload[off+4] = byte(s.CurrentMA)
	}
	return payload
}
