// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 OpenBench Labs

package pmd

import (
	"math/bits"
	"time"
)

// femtojoulesPerNanojoule converts the integration unit (µW·ns = fJ) to the
// accumulator unit (nJ).
const femtojoulesPerNanojoule = 1_000_000

// maxIntegrationStep bounds a single integration interval. Keeping
// power(µW) × elapsed(ns) below 1e6 × 2^64 fJ is required for the exact
// 128-by-64-bit division in Update.
const maxIntegrationStep = time.Hour

// channelEnergy is the integration state for one channel.
type channelEnergy struct {
	totalNJ     uint64
	remainderFJ uint64 // carried sub-nanojoule residue, always < 1e6
	lastSample  time.Time
	primed      bool
}

// Accumulator maintains a running energy total per channel, updated once per
// accepted frame.
//
// Integration uses a rectangular rule: the newest sample's power is held
// constant over the interval since the previous tick. At the device's ~1 kHz
// near-constant sample rate this is as accurate as a trapezoidal rule would
// be, and it keeps the state at O(1) per channel regardless of session
// length.
//
// All arithmetic is integer. The per-tick product power(µW) × elapsed(ns) is
// in femtojoules; the whole nanojoules go into the total and the residue is
// carried to the next tick, so no rounding drift accumulates over a
// multi-hour session.
//
// An Accumulator is owned by a single goroutine and is not safe for
// concurrent use.
type Accumulator struct {
	channels       [NumChannels]channelEnergy
	clockAnomalies uint64
}

// NewAccumulator creates an Accumulator with all channels at zero energy.
func NewAccumulator() *Accumulator {
	return &Accumulator{}
}

// Update integrates one sample for the given channel and returns the new
// accumulated total in nanojoules.
//
// The first sample for a channel only primes the integration state and
// returns 0. A non-monotonic timestamp is treated as a zero-duration update
// and counted as a clock anomaly; the total never decreases.
func (a *Accumulator) Update(channel int, s ChannelSample, now time.Time) uint64 {
	c := &a.channels[channel]
	if !c.primed {
		c.primed = true
		c.lastSample = now
		return 0
	}

	elapsed := now.Sub(c.lastSample)
	if elapsed < 0 {
		elapsed = 0
		a.clockAnomalies++
	}
	// Cap the interval so power × elapsed stays within the 128/64 division
	// below. A gap this long means the stream was stalled, not measuring.
	if elapsed > maxIntegrationStep {
		elapsed = maxIntegrationStep
	}
	c.lastSample = now

	// power(µW) × elapsed(ns) can exceed 64 bits on a long stall at high
	// power, so do the multiply and divide in 128 bits.
	hi, lo := bits.Mul64(s.PowerUW(), uint64(elapsed))
	var carry uint64
	lo, carry = bits.Add64(lo, c.remainderFJ, 0)
	hi += carry

	incNJ, remFJ := bits.Div64(hi, lo, femtojoulesPerNanojoule)
	c.totalNJ += incNJ
	c.remainderFJ = remFJ
	return c.totalNJ
}

// Total returns the accumulated energy for the given channel in nanojoules.
func (a *Accumulator) Total(channel int) uint64 {
	return a.channels[channel].totalNJ
}

// ClockAnomalies returns how many updates were clamped to zero duration
// because time appeared to run backwards.
func (a *Accumulator) ClockAnomalies() uint64 {
	return a.clockAnomalies
}
