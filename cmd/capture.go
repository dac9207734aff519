// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 OpenBench Labs

package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/openbenchlab/powenetics/pkg/pmd"
	"github.com/openbenchlab/powenetics/pkg/record"
)

var (
	captureCSVPath   string
	captureCBORPath  string
	captureDuration  time.Duration
	captureQueueSize int
	capturePrint     bool
	captureNoStart   bool
)

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Capture the measurement stream to CSV and/or CBOR",
	Long: `Start the measurement stream and capture readings.

Each reading carries, per channel, the raw voltage (mV), current (mA), and
the energy accumulated since capture start (nJ). CSV output is one row per
reading with a header naming all 13 channels. CBOR output is a compact
binary sequence suited to multi-hour captures at the full sample rate.

The capture ends on Ctrl+C, after --duration, or when the session reports a
terminal condition (device unplugged, or unrecoverable loss of frame
synchronization, which requires a physical replug).

Examples:
  powenetics capture --port /dev/ttyACM0 --csv run.csv
  powenetics capture --port /dev/ttyACM0 --cbor run.cbor --duration 10m
  powenetics capture --url ws://bench.local/pmd --csv run.csv`,
	RunE: runCapture,
}

func init() {
	rootCmd.AddCommand(captureCmd)
	captureCmd.Flags().StringVar(&captureCSVPath, "csv", "", "Write readings to this CSV file")
	captureCmd.Flags().StringVar(&captureCBORPath, "cbor", "", "Write readings to this CBOR file")
	captureCmd.Flags().DurationVar(&captureDuration, "duration", 0, "Stop after this long (0 = until interrupted)")
	captureCmd.Flags().IntVar(&captureQueueSize, "queue", pmd.DefaultQueueSize, "Reading queue capacity")
	captureCmd.Flags().BoolVar(&capturePrint, "print", false, "Print every reading (very verbose at 1 kHz)")
	captureCmd.Flags().BoolVar(&captureNoStart, "no-start", false, "Skip the start-measurement handshake (stream already running)")
}

func runCapture(cmd *cobra.Command, args []string) error {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	var csvEnc *record.CSVEncoder
	if captureCSVPath != "" {
		f, err := os.Create(captureCSVPath)
		if err != nil {
			return fmt.Errorf("create CSV file: %v", err)
		}
		defer f.Close()
		csvEnc = record.NewCSVEncoder(f)
		if err := csvEnc.WriteHeader(pmd.RecordHeader()); err != nil {
			return fmt.Errorf("write CSV header: %v", err)
		}
	}

	var cborEnc *record.CBOREncoder
	if captureCBORPath != "" {
		f, err := os.Create(captureCBORPath)
		if err != nil {
			return fmt.Errorf("create CBOR file: %v", err)
		}
		defer f.Close()
		cborEnc, err = record.NewCBOREncoder(f)
		if err != nil {
			return fmt.Errorf("create CBOR encoder: %v", err)
		}
	}

	if !captureNoStart {
		if err := pmd.StartMeasurement(conn); err != nil {
			return err
		}
	}

	fmt.Printf("powenetics - Capture\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Press Ctrl+C to stop\n\n")

	session := pmd.NewSession(conn, pmd.SessionOptions{QueueSize: captureQueueSize})
	session.Start()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(interrupt)

	var deadline <-chan time.Time
	if captureDuration > 0 {
		deadline = time.After(captureDuration)
	}

	// Stop in the background so queued readings drain below even while the
	// ingestion goroutine winds down.
	go func() {
		select {
		case <-interrupt:
			log.Info("interrupted, stopping capture")
		case <-deadline:
			log.Info("capture duration reached, stopping")
		case <-session.Done():
		}
		session.Stop()
	}()

	// Session events carry classified anomalies; terminal ones also end the
	// readings stream.
	go func() {
		for e := range session.Events() {
			entry := log.WithField("event", e.Kind.String())
			switch {
			case e.Kind.Terminal():
				entry.Error(pmd.FormatEvent(e))
			default:
				entry.Warn(pmd.FormatEvent(e))
			}
		}
	}()

	progress := term.IsTerminal(int(os.Stdout.Fd())) && !capturePrint
	lastProgress := time.Now()

	var writeErr error
	for r := range session.Readings() {
		if csvEnc != nil {
			if err := csvEnc.Encode(r); err != nil {
				writeErr = fmt.Errorf("CSV write: %v", err)
				break
			}
		}
		if cborEnc != nil {
			if err := cborEnc.Encode(r); err != nil {
				writeErr = fmt.Errorf("CBOR write: %v", err)
				break
			}
		}
		if capturePrint {
			fmt.Print(pmd.FormatReading(r))
		} else if progress && time.Since(lastProgress) >= time.Second {
			lastProgress = time.Now()
			st := session.Stats()
			fmt.Printf("\r%d readings, %d dropped, %d checksum errors ",
				st.ReadingsDelivered, st.ReadingsDropped, st.ChecksumErrors)
		}
	}
	if progress {
		fmt.Println()
	}
	session.Stop()

	if csvEnc != nil {
		if err := csvEnc.Flush(); err != nil && writeErr == nil {
			writeErr = fmt.Errorf("CSV flush: %v", err)
		}
	}

	fmt.Print(session.Stats().String())

	if writeErr != nil {
		return writeErr
	}
	if err := session.Err(); err != nil {
		return err
	}
	return nil
}
