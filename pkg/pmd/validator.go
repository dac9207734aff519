// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 OpenBench Labs

package pmd

import "fmt"

// AnomalyType classifies sample plausibility anomalies.
type AnomalyType int

const (
	AnomalyOverVoltage AnomalyType = iota
	AnomalyOverCurrent
)

// Plausibility bounds. Voltage is judged against the channel's nominal rail
// plus a 25% margin; current against the connector families' worst case.
const (
	voltageMarginPct = 25
	maxPlausibleMA   = 128_000
)

// ValidationError flags one implausible channel value. Implausible readings
// are counted, never corrected or suppressed.
type ValidationError struct {
	Type    AnomalyType
	Channel int
	Message string
	Details map[string]interface{}
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	return v.Message
}

// ValidateSamples checks each channel's sample against its plausibility
// bounds. Returns a slice of validation errors (empty if all values are
// plausible).
func ValidateSamples(samples [NumChannels]ChannelSample) []ValidationError {
	errors := []ValidationError{}

	for i, s := range samples {
		limitMV := channelNominalMV[i] + channelNominalMV[i]*voltageMarginPct/100
		if uint32(s.VoltageMV) > limitMV {
			errors = append(errors, ValidationError{
				Type:    AnomalyOverVoltage,
				Channel: i,
				Message: fmt.Sprintf("%s: voltage %d mV above plausible %d mV", ChannelNames[i], s.VoltageMV, limitMV),
				Details: map[string]interface{}{"voltage_mv": s.VoltageMV, "limit_mv": limitMV},
			})
		}
		if s.CurrentMA > maxPlausibleMA {
			errors = append(errors, ValidationError{
				Type:    AnomalyOverCurrent,
				Channel: i,
				Message: fmt.Sprintf("%s: current %d mA above plausible %d mA", ChannelNames[i], s.CurrentMA, uint32(maxPlausibleMA)),
				Details: map[string]interface{}{"current_ma": s.CurrentMA, "limit_ma": maxPlausibleMA},
			})
		}
	}

	return errors
}
