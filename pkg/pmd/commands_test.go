// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 OpenBench Labs

package pmd

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

// scriptConn records everything written and serves scripted replies, one
// per Read call.
type scriptConn struct {
	written bytes.Buffer
	replies [][]byte
}

func (c *scriptConn) Write(p []byte) (int, error) {
	return c.written.Write(p)
}

func (c *scriptConn) Read(p []byte) (int, error) {
	if len(c.replies) == 0 {
		return 0, io.EOF
	}
	reply := c.replies[0]
	c.replies = c.replies[1:]
	return copy(p, reply), nil
}

func TestEncodeCalibration(t *testing.T) {
	cmd, err := EncodeCalibration(3, 0x012345)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	want := []byte{0xCA, 0x03, 0x01, 0x23, 0x45}
	if !bytes.Equal(cmd, want) {
		t.Errorf("expected % X, got % X", want, cmd)
	}
}

func TestEncodeCalibration_Rejections(t *testing.T) {
	if _, err := EncodeCalibration(13, 100); !errors.Is(err, ErrInvalidChannel) {
		t.Errorf("channel 13: expected ErrInvalidChannel, got %v", err)
	}
	if _, err := EncodeCalibration(-1, 100); !errors.Is(err, ErrInvalidChannel) {
		t.Errorf("channel -1: expected ErrInvalidChannel, got %v", err)
	}
	if _, err := EncodeCalibration(0, 1<<24); err == nil {
		t.Error("expected an error for a reference current beyond 24 bits")
	}
}

func TestEncodeControlCommands(t *testing.T) {
	cases := []struct {
		name string
		got  []byte
		want []byte
	}{
		{"reset", EncodeResetCalibration(), []byte{0xCA, 0xAC, 0xBD, 0x00}},
		{"finalize", EncodeFinalizeCalibration(), []byte{0xCA, 0xAC, 0xBD, 0x01}},
		{"start", EncodeStartMeasurement(), []byte{0xCA, 0xAC, 0xBD, 0x90}},
	}
	for _, c := range cases {
		if !bytes.Equal(c.got, c.want) {
			t.Errorf("%s: expected % X, got % X", c.name, c.want, c.got)
		}
	}
}

func TestCalibrate_SilenceMeansSuccess(t *testing.T) {
	conn := &scriptConn{}
	if err := Calibrate(conn, 5, 1000); err != nil {
		t.Fatalf("calibrate: %v", err)
	}
	want := []byte{0xCA, 0x05, 0x00, 0x03, 0xE8}
	if !bytes.Equal(conn.written.Bytes(), want) {
		t.Errorf("expected % X on the wire, got % X", want, conn.written.Bytes())
	}
}

func TestCalibrate_NoPowerReply(t *testing.T) {
	conn := &scriptConn{replies: [][]byte{{0xCA, 0xAC}}}
	if err := Calibrate(conn, 0, 500); !errors.Is(err, ErrNoPowerOnChannel) {
		t.Errorf("expected ErrNoPowerOnChannel, got %v", err)
	}
}

func TestCalibrate_GarbageReply(t *testing.T) {
	conn := &scriptConn{replies: [][]byte{{0xDE, 0xAD, 0xBE, 0xEF}}}
	if err := Calibrate(conn, 0, 500); err == nil {
		t.Error("expected a protocol error for an unrecognized reply")
	}
}

func TestStartMeasurement(t *testing.T) {
	conn := &scriptConn{replies: [][]byte{[]byte(ReadyMessage)}}
	if err := StartMeasurement(conn); err != nil {
		t.Fatalf("start: %v", err)
	}
	want := append(EncodeFinalizeCalibration(), EncodeStartMeasurement()...)
	if !bytes.Equal(conn.written.Bytes(), want) {
		t.Errorf("expected % X on the wire, got % X", want, conn.written.Bytes())
	}
}

func TestStartMeasurement_SilentDevice(t *testing.T) {
	// A device finalized in a previous session starts without re-sending
	// its banner.
	conn := &scriptConn{}
	if err := StartMeasurement(conn); err != nil {
		t.Fatalf("start on silent device: %v", err)
	}
}

func TestStartMeasurement_WrongBanner(t *testing.T) {
	conn := &scriptConn{replies: [][]byte{[]byte("bootloader v2")}}
	if err := StartMeasurement(conn); err == nil {
		t.Error("expected a protocol error for an unexpected banner")
	}
}

func TestResetCalibration(t *testing.T) {
	conn := &scriptConn{}
	if err := ResetCalibration(conn); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if !bytes.Equal(conn.written.Bytes(), []byte{0xCA, 0xAC, 0xBD, 0x00}) {
		t.Errorf("unexpected bytes on the wire: % X", conn.written.Bytes())
	}
}
