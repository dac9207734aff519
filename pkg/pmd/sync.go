// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 OpenBench Labs

package pmd

import (
	"errors"
	"fmt"
	"io"
	"time"
)

var (
	// ErrSyncLost is returned once the resynchronization budget is exhausted.
	// The condition is terminal for the session: the device has no in-band
	// reset, so the only remediation is a physical replug.
	ErrSyncLost = errors.New("frame synchronization lost, unplug and reconnect device")

	// ErrTruncatedFrame is returned when the stream ends in the middle of a
	// frame candidate. It is distinct from corruption.
	ErrTruncatedFrame = errors.New("stream ended mid-frame")

	// ErrStopped is returned when reading is abandoned because the session
	// was asked to stop.
	ErrStopped = errors.New("synchronizer stopped")
)

// SyncOptions configures a Synchronizer. The zero value selects defaults.
type SyncOptions struct {
	// ResyncLimit bounds the number of bytes discarded between two accepted
	// frames before the stream is declared unrecoverable. Zero selects
	// DefaultResyncLimit.
	ResyncLimit int

	// Clock supplies frame receipt timestamps. Zero selects time.Now.
	Clock func() time.Time

	// Cancel, when closed, aborts blocked reads at the next read timeout.
	Cancel <-chan struct{}
}

// Synchronizer recovers frame boundaries from an untrusted byte stream.
//
// It maintains a sliding window of at most a few frame lengths, scans for
// the frame marker, and validates each candidate's checksum. A failed
// candidate advances the scan position by a single byte rather than
// discarding the window, so one corrupted or inserted byte costs at most
// the surrounding frame. The marker value occurring inside payload bytes is
// expected; the checksum rejects such candidates.
//
// A Synchronizer is not safe for concurrent use.
type Synchronizer struct {
	r      io.Reader
	window []byte
	state  int
	clock  func() time.Time
	cancel <-chan struct{}
	limit  int

	sinceAccept int // bytes discarded since the last accepted frame

	frames         uint64
	checksumErrors uint64
	bytesDiscarded uint64
}

// NewSynchronizer creates a Synchronizer reading from r.
func NewSynchronizer(r io.Reader, opts SyncOptions) *Synchronizer {
	if opts.ResyncLimit <= 0 {
		opts.ResyncLimit = DefaultResyncLimit
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Synchronizer{
		r:      r,
		window: make([]byte, 0, 4*FrameSize),
		state:  stateSeeking,
		clock:  opts.Clock,
		cancel: opts.Cancel,
		limit:  opts.ResyncLimit,
	}
}

// Frames returns the number of accepted frames.
func (s *Synchronizer) Frames() uint64 { return s.frames }

// ChecksumErrors returns the number of rejected frame candidates.
func (s *Synchronizer) ChecksumErrors() uint64 { return s.checksumErrors }

// BytesDiscarded returns the total number of bytes skipped during
// resynchronization.
func (s *Synchronizer) BytesDiscarded() uint64 { return s.bytesDiscarded }

// Desynchronized reports whether the terminal desynchronized state has been
// reached.
func (s *Synchronizer) Desynchronized() bool { return s.state == stateDesynchronized }

// Next returns the next validated frame from the stream.
//
// It returns ErrSyncLost once resynchronization has failed beyond the
// configured bound (and on every call thereafter), ErrTruncatedFrame when
// the stream ends mid-frame, io.EOF on a clean end of stream, ErrStopped
// after cancellation, and the underlying read error on transport failure.
func (s *Synchronizer) Next() (*Frame, error) {
	if s.state == stateDesynchronized {
		return nil, ErrSyncLost
	}

	for {
		if len(s.window) < FrameSize {
			if err := s.fill(FrameSize); err != nil {
				if errors.Is(err, io.EOF) {
					return nil, s.finishEOF()
				}
				return nil, err
			}
		}

		i := indexMarker(s.window)
		if i < 0 {
			// No marker anywhere in the window. Keep a trailing first marker
			// byte, it may pair with the next read.
			keep := 0
			if n := len(s.window); n > 0 && s.window[n-1] == MarkerByte0 {
				keep = 1
			}
			if err := s.discard(len(s.window) - keep); err != nil {
				return nil, err
			}
			s.state = stateSeeking
			continue
		}
		if i > 0 {
			if err := s.discard(i); err != nil {
				return nil, err
			}
		}
		s.state = stateAccumulating

		if len(s.window) < FrameSize {
			continue
		}

		if !validFrame(s.window[:FrameSize]) {
			s.checksumErrors++
			// Byte-at-a-time resynchronization: the marker match may be
			// payload bytes, and discarding the window would lose the real
			// frame boundary hiding inside it.
			if err := s.discard(1); err != nil {
				return nil, err
			}
			continue
		}

		s.state = stateFrameReady
		frame := parseFrame(s.window[:FrameSize])
		frame.Timestamp = s.clock()
		s.window = s.window[:copy(s.window, s.window[FrameSize:])]
		s.sinceAccept = 0
		s.frames++
		s.state = stateSeeking
		return frame, nil
	}
}

// fill reads until the window holds at least min bytes.
func (s *Synchronizer) fill(min int) error {
	for len(s.window) < min {
		n, err := s.r.Read(s.window[len(s.window):cap(s.window)])
		if n > 0 {
			s.window = s.window[:len(s.window)+n]
		}
		if err != nil {
			return err
		}
		if n == 0 {
			// Read timeout on a quiet transport. Honor cancellation so a
			// stopped session does not spin here forever.
			select {
			case <-s.cancel:
				return ErrStopped
			default:
			}
		}
	}
	return nil
}

// discard drops n bytes from the front of the window, charging them against
// the resynchronization budget.
func (s *Synchronizer) discard(n int) error {
	if n <= 0 {
		return nil
	}
	s.window = s.window[:copy(s.window, s.window[n:])]
	s.bytesDiscarded += uint64(n)
	s.sinceAccept += n
	if s.sinceAccept > s.limit {
		s.state = stateDesynchronized
		return fmt.Errorf("%w: %d bytes discarded without a valid frame", ErrSyncLost, s.sinceAccept)
	}
	return nil
}

// finishEOF classifies end of stream: leftover bytes containing a marker are
// a truncated frame, anything else is discarded (still charged against the
// resynchronization budget) ahead of a clean EOF.
func (s *Synchronizer) finishEOF() error {
	if i := indexMarker(s.window); i >= 0 {
		n := len(s.window) - i
		s.window = s.window[:0]
		return fmt.Errorf("%w: %d of %d bytes buffered", ErrTruncatedFrame, n, FrameSize)
	}
	if err := s.discard(len(s.window)); err != nil {
		return err
	}
	return io.EOF
}

// indexMarker returns the offset of the first complete frame marker in buf,
// or -1 if none is present.
func indexMarker(buf []byte) int {
	for i := 0; i+1 < len(buf); i++ {
		if buf[i] == MarkerByte0 && buf[i+1] == MarkerByte1 {
			return i
		}
	}
	return -1
}
