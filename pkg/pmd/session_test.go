// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 OpenBench Labs

package pmd

import (
	"bytes"
	"errors"
	"sync"
	"testing"
	"time"
)

// stepClock returns a deterministic clock advancing 1 ms per call.
func stepClock() func() time.Time {
	var mu sync.Mutex
	base := time.Unix(1000, 0)
	tick := 0
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		tick++
		return base.Add(time.Duration(tick) * time.Millisecond)
	}
}

// collectEvents drains the event channel in the background and returns a
// function that waits for the channel to close and yields everything seen.
func collectEvents(s *Session) func() []Event {
	var events []Event
	done := make(chan struct{})
	go func() {
		defer close(done)
		for e := range s.Events() {
			events = append(events, e)
		}
	}()
	return func() []Event {
		<-done
		return events
	}
}

func hasEvent(events []Event, kind EventKind) bool {
	for _, e := range events {
		if e.Kind == kind {
			return true
		}
	}
	return false
}

// ============================================================
// Pipeline
// ============================================================

func TestSession_DeliversOrderedReadings(t *testing.T) {
	const n = 50
	session := NewSession(bytes.NewReader(buildStream(100, n)), SessionOptions{Clock: stepClock()})
	events := collectEvents(session)
	session.Start()

	var readings []Reading
	for r := range session.Readings() {
		readings = append(readings, r)
	}
	session.Stop()

	if len(readings) != n {
		t.Fatalf("expected %d readings, got %d", n, len(readings))
	}
	for i, r := range readings {
		if r.Sequence != uint64(i+1) {
			t.Errorf("reading %d: expected sequence %d, got %d", i, i+1, r.Sequence)
		}
		if r.WireSequence != uint16(100+i) {
			t.Errorf("reading %d: expected wire sequence %d, got %d", i, 100+i, r.WireSequence)
		}
	}

	// First reading primes the accumulators: zero energy everywhere.
	for ch, c := range readings[0].Channels {
		if c.EnergyNJ != 0 {
			t.Errorf("channel %d: first reading should carry 0 nJ, got %d", ch, c.EnergyNJ)
		}
	}
	// Energy is non-decreasing per channel across the session.
	for ch := 0; ch < NumChannels; ch++ {
		var prev uint64
		for i, r := range readings {
			if r.Channels[ch].EnergyNJ < prev {
				t.Fatalf("channel %d: energy decreased at reading %d", ch, i)
			}
			prev = r.Channels[ch].EnergyNJ
		}
	}

	if err := session.Err(); err != nil {
		t.Errorf("clean EOF should not be an error, got %v", err)
	}
	if !hasEvent(events(), EventTransportClosed) {
		t.Error("expected a transport-closed event at end of stream")
	}
}

func TestSession_EnergyMatchesConstantLoad(t *testing.T) {
	// All channels at nominal voltage and 100 mA over 1000 ticks of 1 ms:
	// channel 0 (3300 mV x 100 mA = 330,000 uW) accumulates exactly
	// 330,000,000 nJ over the 1000 integration intervals.
	const n = 1001
	var stream []byte
	var samples [NumChannels]ChannelSample
	for ch := range samples {
		samples[ch] = ChannelSample{VoltageMV: uint16(channelNominalMV[ch]), CurrentMA: 100}
	}
	for i := 0; i < n; i++ {
		stream = append(stream, MarshalFrame(uint16(i), EncodeChannels(samples))...)
	}

	session := NewSession(bytes.NewReader(stream), SessionOptions{Clock: stepClock(), QueueSize: n})
	session.Start()

	var last Reading
	count := 0
	for r := range session.Readings() {
		last = r
		count++
	}
	session.Stop()

	if count != n {
		t.Fatalf("expected %d readings, got %d", n, count)
	}
	if got := last.Channels[0].EnergyNJ; got != 330_000_000 {
		t.Errorf("channel 0: expected 330,000,000 nJ, got %d", got)
	}
}

func TestSession_SequenceGapCounted(t *testing.T) {
	stream := buildStream(1, 3)
	stream = append(stream, buildStream(10, 2)...) // wire counter jumps 3 -> 10

	session := NewSession(bytes.NewReader(stream), SessionOptions{Clock: stepClock()})
	events := collectEvents(session)
	session.Start()

	count := 0
	for range session.Readings() {
		count++
	}
	session.Stop()

	if count != 5 {
		t.Fatalf("expected 5 readings, got %d", count)
	}
	if got := session.Stats().SequenceGaps; got != 1 {
		t.Errorf("expected 1 sequence gap, got %d", got)
	}
	if !hasEvent(events(), EventSequenceGap) {
		t.Error("expected a sequence-gap event")
	}
}

// ============================================================
// Terminal Classification
// ============================================================

func TestSession_FatalSyncLoss(t *testing.T) {
	const good = 20
	stream := buildStream(1, good)
	stream = append(stream, bytes.Repeat([]byte{0x00}, 200)...)

	session := NewSession(bytes.NewReader(stream), SessionOptions{
		Clock:       stepClock(),
		ResyncLimit: 64,
		QueueSize:   good,
	})
	events := collectEvents(session)
	session.Start()

	count := 0
	for range session.Readings() {
		count++
	}
	session.Stop()

	if count != good {
		t.Errorf("expected exactly %d readings before termination, got %d", good, count)
	}
	if !errors.Is(session.Err(), ErrSyncLost) {
		t.Errorf("expected ErrSyncLost, got %v", session.Err())
	}
	if !hasEvent(events(), EventSyncLost) {
		t.Error("expected a sync-lost event")
	}
	if hasEvent(events(), EventTransportClosed) {
		t.Error("sync loss must not be reported as transport closure")
	}
}

func TestSession_ClockAnomalyCounted(t *testing.T) {
	// A clock that steps backwards once mid-stream.
	var mu sync.Mutex
	base := time.Unix(1000, 0)
	tick := 0
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		tick++
		if tick == 10 {
			return base.Add(-time.Second)
		}
		return base.Add(time.Duration(tick) * time.Millisecond)
	}

	session := NewSession(bytes.NewReader(buildStream(1, 20)), SessionOptions{Clock: clock})
	events := collectEvents(session)
	session.Start()

	var readings []Reading
	for r := range session.Readings() {
		readings = append(readings, r)
	}
	session.Stop()

	if got := session.Stats().ClockAnomalies; got == 0 {
		t.Error("expected clock anomalies to be counted")
	}
	if !hasEvent(events(), EventClockAnomaly) {
		t.Error("expected a clock-anomaly event")
	}
	for ch := 0; ch < NumChannels; ch++ {
		var prev uint64
		for i, r := range readings {
			if r.Channels[ch].EnergyNJ < prev {
				t.Fatalf("channel %d: energy decreased at reading %d despite clock anomaly", ch, i)
			}
			prev = r.Channels[ch].EnergyNJ
		}
	}
}

// ============================================================
// Back-pressure
// ============================================================

func TestSession_DropOldestWhenSaturated(t *testing.T) {
	const n = 100
	const queue = 4

	session := NewSession(bytes.NewReader(buildStream(1, n)), SessionOptions{
		Clock:       stepClock(),
		QueueSize:   queue,
		SendTimeout: time.Millisecond,
	})
	events := collectEvents(session)
	session.Start()

	// Simulate a fully stalled sink: consume nothing until ingestion has
	// finished, then drain what survived.
	<-session.Done()

	var survivors []Reading
	for r := range session.Readings() {
		survivors = append(survivors, r)
	}
	session.Stop()

	if len(survivors) != queue {
		t.Fatalf("expected %d surviving readings, got %d", queue, len(survivors))
	}

	stats := session.Stats()
	if stats.ReadingsDropped != n-queue {
		t.Errorf("expected %d dropped readings, got %d", n-queue, stats.ReadingsDropped)
	}
	if !hasEvent(events(), EventReadingDropped) {
		t.Error("expected reading-dropped events")
	}

	// The oldest were dropped: survivors are the newest readings, still in
	// strictly increasing order with no duplicates.
	for i, r := range survivors {
		want := uint64(n - queue + i + 1)
		if r.Sequence != want {
			t.Errorf("survivor %d: expected sequence %d, got %d", i, want, r.Sequence)
		}
	}
}

func TestSession_SlowSinkKeepsOrdering(t *testing.T) {
	const n = 200
	session := NewSession(bytes.NewReader(buildStream(1, n)), SessionOptions{
		Clock:       stepClock(),
		QueueSize:   8,
		SendTimeout: time.Millisecond,
	})
	session.Start()

	var prev uint64
	received := 0
	for r := range session.Readings() {
		if r.Sequence <= prev {
			t.Fatalf("ordering violated: %d after %d", r.Sequence, prev)
		}
		prev = r.Sequence
		received++
		if received%5 == 0 {
			time.Sleep(2 * time.Millisecond) // intermittent stall
		}
	}
	session.Stop()

	stats := session.Stats()
	if received+int(stats.ReadingsDropped) != n {
		t.Errorf("received %d + dropped %d != %d produced", received, stats.ReadingsDropped, n)
	}
}

// ============================================================
// Lifecycle
// ============================================================

func TestSession_StopOnQuietTransport(t *testing.T) {
	session := NewSession(&quietReader{data: buildStream(1, 3)}, SessionOptions{Clock: stepClock()})
	session.Start()

	count := 0
	go func() {
		time.Sleep(50 * time.Millisecond)
		session.Stop()
	}()
	for range session.Readings() {
		count++
	}

	select {
	case <-session.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session did not terminate after Stop")
	}

	if count != 3 {
		t.Errorf("expected 3 readings before stop, got %d", count)
	}
	if err := session.Err(); err != nil {
		t.Errorf("requested stop should not be an error, got %v", err)
	}
}

func TestSession_StopIsIdempotent(t *testing.T) {
	session := NewSession(bytes.NewReader(buildStream(1, 2)), SessionOptions{Clock: stepClock()})
	session.Start()
	for range session.Readings() {
	}
	session.Stop()
	session.Stop()
}
