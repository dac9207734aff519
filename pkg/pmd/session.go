// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 OpenBench Labs

package pmd

import (
	"errors"
	"io"
	"sync"
	"time"
)

// EventKind classifies session events.
type EventKind int

const (
	// EventSyncLost is terminal: resynchronization failed beyond the bound.
	EventSyncLost EventKind = iota
	// EventTransportClosed is terminal: the byte source ended or failed.
	// Distinct from EventSyncLost so "device stopped talking" and "device
	// talks garbage" can be told apart.
	EventTransportClosed
	// EventReadingDropped: the hand-off queue was saturated and the oldest
	// unread reading was discarded.
	EventReadingDropped
	// EventClockAnomaly: a non-monotonic timestamp was clamped to a
	// zero-duration energy update.
	EventClockAnomaly
	// EventSequenceGap: the device's wire frame counter skipped.
	EventSequenceGap
	// EventImplausibleValue: a channel reported a value outside its
	// plausibility bounds. The reading is still delivered unchanged.
	EventImplausibleValue
)

// String returns a short name for the event kind.
func (k EventKind) String() string {
	switch k {
	case EventSyncLost:
		return "SYNC_LOST"
	case EventTransportClosed:
		return "TRANSPORT_CLOSED"
	case EventReadingDropped:
		return "READING_DROPPED"
	case EventClockAnomaly:
		return "CLOCK_ANOMALY"
	case EventSequenceGap:
		return "SEQUENCE_GAP"
	case EventImplausibleValue:
		return "IMPLAUSIBLE_VALUE"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether the event ends the session.
func (k EventKind) Terminal() bool {
	return k == EventSyncLost || k == EventTransportClosed
}

// Event is one classified session event. Non-fatal kinds carry the
// cumulative count for that kind; terminal kinds carry the underlying error.
type Event struct {
	Kind  EventKind
	Time  time.Time
	Err   error
	Count uint64
}

// SessionOptions configures a Session. The zero value selects defaults.
type SessionOptions struct {
	// QueueSize is the hand-off channel capacity. Zero selects
	// DefaultQueueSize.
	QueueSize int

	// SendTimeout bounds how long delivery blocks on a full queue before
	// dropping the oldest unread reading. Zero selects DefaultSendTimeout.
	SendTimeout time.Duration

	// ResyncLimit is passed to the Synchronizer. Zero selects
	// DefaultResyncLimit.
	ResyncLimit int

	// Clock supplies reading timestamps. Zero selects time.Now.
	Clock func() time.Time
}

// Session drives the decode pipeline: one ingestion goroutine owns the byte
// source and runs synchronization, channel decoding, energy integration, and
// reading assembly; completed readings are published on a bounded, ordered
// channel.
//
// Readings are delivered in strictly increasing sequence order. When the
// queue is full the ingestion goroutine blocks briefly, then drops the
// oldest unread reading and counts the loss; it never blocks indefinitely
// and never drops silently. The device pushes at a fixed rate with no flow
// control, so this is the one well-defined point where data may be lost.
type Session struct {
	src  io.Reader
	opts SessionOptions

	sync  *Synchronizer
	acc   *Accumulator
	asm   Assembler

	statsMu sync.Mutex
	stats   Statistics

	readings chan Reading
	events   chan Event
	cancel   chan struct{}
	done     chan struct{}

	startOnce sync.Once
	stopOnce  sync.Once

	mu  sync.Mutex
	err error // terminal classification, set before channels close
}

// NewSession creates a session reading from src. The byte source must be
// opened beforehand and is owned exclusively by the session until it
// terminates; the session never closes it.
func NewSession(src io.Reader, opts SessionOptions) *Session {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = DefaultSendTimeout
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	s := &Session{
		src:      src,
		opts:     opts,
		acc:      NewAccumulator(),
		stats:    Statistics{StartTime: opts.Clock()},
		readings: make(chan Reading, opts.QueueSize),
		events:   make(chan Event, 64),
		cancel:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	s.sync = NewSynchronizer(src, SyncOptions{
		ResyncLimit: opts.ResyncLimit,
		Clock:       opts.Clock,
		Cancel:      s.cancel,
	})
	return s
}

// Start launches the ingestion goroutine. It is safe to call once; further
// calls are no-ops.
func (s *Session) Start() {
	s.startOnce.Do(func() {
		go s.ingest()
	})
}

// Stop asks the ingestion goroutine to finish its current frame and
// terminate, then waits for it. Readings already queued remain readable
// until the readings channel is drained.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		close(s.cancel)
	})
	<-s.done
}

// Readings returns the ordered reading stream. The channel is closed when
// the session terminates; queued readings stay readable after close.
func (s *Session) Readings() <-chan Reading {
	return s.readings
}

// Events returns the classified event stream. Terminal events are reported
// exactly once, just before the channel closes.
func (s *Session) Events() <-chan Event {
	return s.events
}

// Stats returns a copy of the session counters, safe to read while the
// session is running.
func (s *Session) Stats() Statistics {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return s.stats
}

// statUpdate applies fn to the counters under the lock. The ingestion
// goroutine is the only caller.
func (s *Session) statUpdate(fn func(*Statistics)) {
	s.statsMu.Lock()
	fn(&s.stats)
	s.statsMu.Unlock()
}

// Err returns the terminal classification after the session has ended: nil
// for a requested stop, ErrSyncLost for fatal desynchronization, or the
// transport error otherwise.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Done is closed once the ingestion goroutine has terminated.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// ingest is the sole writer of synchronizer and accumulator state.
func (s *Session) ingest() {
	defer close(s.done)
	defer close(s.readings)
	defer close(s.events)

	var (
		lastWireSeq  uint16
		haveWireSeq  bool
		lastClockAno uint64
	)

	for {
		select {
		case <-s.cancel:
			return
		default:
		}

		frame, err := s.sync.Next()
		if err != nil {
			s.finish(err)
			return
		}

		samples, derr := DecodeChannels(frame.Payload[:])
		if derr != nil {
			// Unreachable given a validated frame; treat as corrupt
			// transport rather than guessing.
			s.finish(derr)
			return
		}

		s.statUpdate(func(st *Statistics) {
			st.FramesAccepted++
			st.ChecksumErrors = s.sync.ChecksumErrors()
			st.BytesDiscarded = s.sync.BytesDiscarded()
		})

		if haveWireSeq && frame.Sequence != lastWireSeq+1 {
			s.statUpdate(func(st *Statistics) { st.SequenceGaps++ })
			s.emit(Event{Kind: EventSequenceGap, Time: frame.Timestamp, Count: s.Stats().SequenceGaps})
		}
		lastWireSeq = frame.Sequence
		haveWireSeq = true

		if verrs := ValidateSamples(samples); len(verrs) > 0 {
			s.statUpdate(func(st *Statistics) { st.ImplausibleValues += uint64(len(verrs)) })
			s.emit(Event{Kind: EventImplausibleValue, Time: frame.Timestamp, Err: &verrs[0], Count: s.Stats().ImplausibleValues})
		}

		var energies [NumChannels]uint64
		for i := range samples {
			energies[i] = s.acc.Update(i, samples[i], frame.Timestamp)
		}
		if n := s.acc.ClockAnomalies(); n != lastClockAno {
			lastClockAno = n
			s.statUpdate(func(st *Statistics) { st.ClockAnomalies = n })
			s.emit(Event{Kind: EventClockAnomaly, Time: frame.Timestamp, Count: n})
		}

		s.deliver(s.asm.Assemble(frame, samples, energies))
	}
}

// deliver publishes a reading under the back-pressure policy: block up to
// SendTimeout, then drop the oldest unread reading to make room. A single
// producer keeps delivery ordered in all cases.
func (s *Session) deliver(r Reading) {
	select {
	case s.readings <- r:
		s.statUpdate(func(st *Statistics) { st.ReadingsDelivered++ })
		return
	default:
	}

	t := time.NewTimer(s.opts.SendTimeout)
	select {
	case s.readings <- r:
		t.Stop()
		s.statUpdate(func(st *Statistics) { st.ReadingsDelivered++ })
		return
	case <-t.C:
	}

	// Queue still full: drop the oldest so consumers fall behind by the
	// least possible amount. With a single producer the freed slot cannot
	// be refilled before the send below.
	dropped := false
	select {
	case <-s.readings:
		dropped = true
	default:
		// Consumer caught up during the timeout; the send cannot block.
	}
	s.readings <- r
	s.statUpdate(func(st *Statistics) { st.ReadingsDelivered++ })
	if dropped {
		s.statUpdate(func(st *Statistics) { st.ReadingsDropped++ })
		s.emit(Event{Kind: EventReadingDropped, Time: r.Timestamp, Count: s.Stats().ReadingsDropped})
	}
}

// finish classifies the terminal condition and reports it exactly once.
func (s *Session) finish(err error) {
	now := s.opts.Clock()
	switch {
	case errors.Is(err, ErrStopped):
		// Requested stop, nothing to report.
		s.setErr(nil)
	case errors.Is(err, ErrSyncLost):
		s.setErr(err)
		s.emit(Event{Kind: EventSyncLost, Time: now, Err: err})
	case errors.Is(err, io.EOF):
		s.setErr(nil)
		s.emit(Event{Kind: EventTransportClosed, Time: now})
	default:
		// Truncated tail, closed port, read failure: all transport-side.
		s.setErr(err)
		s.emit(Event{Kind: EventTransportClosed, Time: now, Err: err})
	}
}

func (s *Session) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// emit publishes an event without ever blocking ingestion. The statistics
// counters remain authoritative if the event queue overflows.
func (s *Session) emit(e Event) {
	select {
	case s.events <- e:
	default:
	}
}
