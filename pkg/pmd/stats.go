// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 OpenBench Labs

package pmd

import (
	"fmt"
	"time"
)

// Statistics tracks session counters and rates. All counters are cumulative
// for the session; transient conditions are absorbed here instead of being
// surfaced as errors. The Session owns the live instance and hands out
// copies via Session.Stats.
type Statistics struct {
	StartTime time.Time

	FramesAccepted    uint64
	ChecksumErrors    uint64
	BytesDiscarded    uint64
	ReadingsDelivered uint64
	ReadingsDropped   uint64
	ClockAnomalies    uint64
	SequenceGaps      uint64
	ImplausibleValues uint64

	// Rates (calculated by CalculateRates)
	FrameRate float64 // frames/sec
	DropRate  float64 // drops/sec
}

// NewStatistics creates a statistics tracker starting now.
func NewStatistics() *Statistics {
	return &Statistics{StartTime: time.Now()}
}

// CalculateRates fills in the per-second rates.
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.FrameRate = float64(s.FramesAccepted) / elapsed
		s.DropRate = float64(s.ReadingsDropped) / elapsed
	}
}

// String returns a formatted statistics summary.
func (s Statistics) String() string {
	s.CalculateRates()

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Frames Accepted:  %8d\n", s.FramesAccepted)
	result += fmt.Sprintf("Readings Sent:    %8d\n", s.ReadingsDelivered)

	if s.ChecksumErrors > 0 {
		result += fmt.Sprintf("Checksum Errors:  %8d\n", s.ChecksumErrors)
	}
	if s.BytesDiscarded > 0 {
		result += fmt.Sprintf("Bytes Discarded:  %8d\n", s.BytesDiscarded)
	}
	if s.ReadingsDropped > 0 {
		result += fmt.Sprintf("Readings Dropped: %8d\n", s.ReadingsDropped)
	}
	if s.ClockAnomalies > 0 {
		result += fmt.Sprintf("Clock Anomalies:  %8d\n", s.ClockAnomalies)
	}
	if s.SequenceGaps > 0 {
		result += fmt.Sprintf("Sequence Gaps:    %8d\n", s.SequenceGaps)
	}
	if s.ImplausibleValues > 0 {
		result += fmt.Sprintf("Implausible:      %8d\n", s.ImplausibleValues)
	}

	result += fmt.Sprintf("Frame Rate:       %8.1f frames/sec\n", s.FrameRate)
	result += "================================\n"

	return result
}
