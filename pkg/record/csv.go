// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 OpenBench Labs

// Package record provides reading sinks: CSV for spreadsheet-friendly output
// and CBOR for compact binary logs at the full 1 kHz sample rate.
package record

import (
	"encoding/csv"
	"io"
)

// Recorder produces the list of fields making up one CSV record.
type Recorder interface {
	Record() []string
}

// A CSVEncoder writes CSV records to an output stream.
type CSVEncoder struct {
	w *csv.Writer
}

// NewCSVEncoder returns a new encoder that writes to w.
func NewCSVEncoder(w io.Writer) *CSVEncoder {
	return &CSVEncoder{w: csv.NewWriter(w)}
}

// WriteHeader writes the header row.
func (enc *CSVEncoder) WriteHeader(fields []string) error {
	return enc.w.Write(fields)
}

// Encode writes one record to the stream. Records are buffered; call Flush
// to guarantee they reach the underlying writer.
func (enc *CSVEncoder) Encode(v Recorder) error {
	return enc.w.Write(v.Record())
}

// Flush writes buffered records to the underlying writer and reports any
// write error encountered.
func (enc *CSVEncoder) Flush() error {
	enc.w.Flush()
	return enc.w.Error()
}
