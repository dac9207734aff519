// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 OpenBench Labs

package pmd

import (
	"strconv"
	"time"
)

// TimeFormat is the timestamp layout used in record output.
const TimeFormat = "2006-01-02T15:04:05.000"

// ChannelReading is one channel's slice of a Reading: the raw sample plus
// the energy accumulated on that channel since the session started.
type ChannelReading struct {
	VoltageMV uint16 `cbor:"1,keyasint" json:"voltage_mv"`
	CurrentMA uint32 `cbor:"2,keyasint" json:"current_ma"`
	EnergyNJ  uint64 `cbor:"3,keyasint" json:"energy_nj"`
}

// Reading is one complete, immutable measurement: all 13 channels for a
// single sample tick. Readings are created by the assembler and never
// mutated afterwards; they may be handed to any number of consumers.
type Reading struct {
	// Sequence is assigned by the assembler, starts at 1, and never wraps.
	Sequence uint64 `cbor:"1,keyasint" json:"sequence"`

	// WireSequence is the device's free-running 16-bit frame counter, kept
	// for continuity diagnostics.
	WireSequence uint16 `cbor:"2,keyasint" json:"wire_sequence"`

	Timestamp time.Time                   `cbor:"3,keyasint" json:"timestamp"`
	Channels  [NumChannels]ChannelReading `cbor:"4,keyasint" json:"channels"`
}

// Record renders the reading as CSV fields: sequence and timestamp followed
// by (voltage_mV, current_mA, energy_nJ) triples in channel order. Units are
// raw wire units; no scaling happens at the output boundary.
func (r Reading) Record() []string {
	fields := make([]string, 0, 2+3*NumChannels)
	fields = append(fields,
		strconv.FormatUint(r.Sequence, 10),
		r.Timestamp.Format(TimeFormat),
	)
	for _, c := range r.Channels {
		fields = append(fields,
			strconv.FormatUint(uint64(c.VoltageMV), 10),
			strconv.FormatUint(uint64(c.CurrentMA), 10),
			strconv.FormatUint(c.EnergyNJ, 10),
		)
	}
	return fields
}

// RecordHeader returns the CSV header matching Record, naming each channel.
func RecordHeader() []string {
	fields := make([]string, 0, 2+3*NumChannels)
	fields = append(fields, "sequence", "timestamp")
	for _, name := range ChannelNames {
		fields = append(fields,
			name+" voltage_mV",
			name+" current_mA",
			name+" energy_nJ",
		)
	}
	return fields
}

// Assembler composes decoded samples and accumulated energies into Readings,
// assigning the monotonically increasing delivery sequence. Pure composition;
// it has no failure modes of its own.
type Assembler struct {
	sequence uint64
}

// Assemble builds the next Reading from one accepted frame's samples and the
// matching per-channel energy totals.
func (a *Assembler) Assemble(frame *Frame, samples [NumChannels]ChannelSample, energiesNJ [NumChannels]uint64) Reading {
	a.sequence++
	r := Reading{
		Sequence:     a.sequence,
		WireSequence: frame.Sequence,
		Timestamp:    frame.Timestamp,
	}
	for i := range r.Channels {
		r.Channels[i] = ChannelReading{
			VoltageMV: samples[i].VoltageMV,
			CurrentMA: samples[i].CurrentMA,
			EnergyNJ:  energiesNJ[i],
		}
	}
	return r
}
