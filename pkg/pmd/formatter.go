// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 OpenBench Labs

package pmd

import (
	"fmt"
	"strings"
)

// FormatReading renders a reading in human-readable form, one line per
// channel with derived power and energy in display units.
func FormatReading(r Reading) string {
	var b strings.Builder

	fmt.Fprintf(&b, "[%s] reading #%d (wire seq %d)\n",
		r.Timestamp.Format(TimeFormat), r.Sequence, r.WireSequence)

	for i, c := range r.Channels {
		powerUW := uint64(c.VoltageMV) * uint64(c.CurrentMA)
		fmt.Fprintf(&b, "  %-20s %8.3f V %9.3f A %10.3f W %14.6f J\n",
			ChannelNames[i],
			float64(c.VoltageMV)/1000.0,
			float64(c.CurrentMA)/1000.0,
			float64(powerUW)/1e6,
			float64(c.EnergyNJ)/1e9,
		)
	}

	return b.String()
}

// FormatEvent renders a session event for log output.
func FormatEvent(e Event) string {
	switch {
	case e.Err != nil && e.Count > 0:
		return fmt.Sprintf("%s (count %d): %v", e.Kind, e.Count, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Count > 0:
		return fmt.Sprintf("%s (count %d)", e.Kind, e.Count)
	default:
		return e.Kind.String()
	}
}
