// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/bytebridge/lib/testutil"
)

func openSerial(t *testing.T, device string, poll bool) *Serial {
	t.Helper()
	serial := &Serial{Device: device, Baud: 115200, Poll: poll}
	if err := serial.Open(context.Background()); err != nil {
		t.Fatalf("Open(%s): %v", device, err)
	}
	t.Cleanup(func() { serial.Close() })
	return serial
}

func TestSerial_ConfiguresLine(t *testing.T) {
	_, device := testutil.OpenPTY(t)
	serial := openSerial(t, device, true)

	raw, err := serial.file.SyscallConn()
	if err != nil {
		t.Fatalf("SyscallConn: %v", err)
	}
	var (
		termios *unix.Termios
		ioctl   error
	)
	raw.Control(func(fd uintptr) {
		termios, ioctl = unix.IoctlGetTermios(int(fd), unix.TCGETS)
	})
	if ioctl != nil {
		t.Fatalf("TCGETS: %v", ioctl)
	}

	if termios.Cflag&unix.CSIZE != unix.CS8 {
		t.Errorf("character size = %#x, want CS8", termios.Cflag&unix.CSIZE)
	}
	if termios.Cflag&unix.PARENB != 0 {
		t.Error("parity enabled, want none")
	}
	if termios.Cflag&unix.CSTOPB != 0 {
		t.Error("two stop bits, want one")
	}
	if termios.Cflag&unix.CRTSCTS != 0 {
		t.Error("hardware flow control enabled")
	}
	if termios.Lflag&unix.ICANON != 0 {
		t.Error("canonical mode still enabled, want raw")
	}
}

func TestSerial_PolledRead(t *testing.T) {
	master, device := testutil.OpenPTY(t)
	serial := openSerial(t, device, true)

	if serial.EventDriven() {
		t.Fatal("EventDriven() = true with Poll set")
	}
	if n, err := serial.Available(); err != nil || n != 0 {
		t.Fatalf("Available on idle line = %d, %v; want 0, nil", n, err)
	}

	// Raw mode on the slave makes every byte, including newline and
	// control characters, pass through untouched.
	payload := []byte{'$', 0x00, 0x03, '\n', 0xfe}
	if _, err := master.Write(payload); err != nil {
		t.Fatalf("master write: %v", err)
	}

	n := waitAvailable(t, serial, len(payload))
	buffer := make([]byte, n)
	if _, err := io.ReadFull(serial.Input(), buffer); err != nil {
		t.Fatalf("ReadFull: %v", err)
	}
	if string(buffer) != string(payload) {
		t.Errorf("read %v, want %v", buffer, payload)
	}
}

func TestSerial_Output(t *testing.T) {
	master, device := testutil.OpenPTY(t)
	serial := openSerial(t, device, true)

	if _, err := serial.Output().Write([]byte("PING")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	master.SetReadDeadline(time.Now().Add(5 * time.Second))
	buffer := make([]byte, 4)
	if _, err := io.ReadFull(master, buffer); err != nil {
		t.Fatalf("master read: %v", err)
	}
	if string(buffer) != "PING" {
		t.Errorf("master read %q, want PING", buffer)
	}
}

func TestSerial_EventDriven(t *testing.T) {
	master, device := testutil.OpenPTY(t)
	serial := openSerial(t, device, false)

	if !serial.EventDriven() {
		t.Fatal("EventDriven() = false by default")
	}

	received := make(chan []byte, 16)
	var calls atomic.Int32
	stop := serial.NotifyDataAvailable(func() {
		calls.Add(1)
		n, err := serial.Available()
		if err != nil || n == 0 {
			return
		}
		buffer := make([]byte, n)
		if _, err := io.ReadFull(serial.Input(), buffer); err == nil {
			received <- buffer
		}
	})

	if _, err := master.Write([]byte("event")); err != nil {
		t.Fatalf("master write: %v", err)
	}

	var got []byte
	for len(got) < 5 {
		got = append(got, testutil.RequireReceive(t, received, 5*time.Second, "waiting for notification")...)
	}
	if string(got) != "event" {
		t.Errorf("received %q, want event", got)
	}

	stop()
	before := calls.Load()
	master.Write([]byte("after stop"))
	time.Sleep(50 * time.Millisecond)
	if after := calls.Load(); after != before {
		t.Errorf("handler invoked %d times after stop", after-before)
	}
}

func TestSerial_Hangup(t *testing.T) {
	master, device := testutil.OpenPTY(t)
	serial := openSerial(t, device, true)

	master.Close()

	deadline := time.Now().Add(5 * time.Second)
	for {
		_, err := serial.Available()
		if errors.Is(err, ErrHangup) {
			if !errors.Is(err, io.EOF) {
				t.Error("ErrHangup does not match io.EOF")
			}
			return
		}
		if err != nil {
			t.Fatalf("Available = %v, want ErrHangup", err)
		}
		if time.Now().After(deadline) {
			t.Fatal("Available never reported the hang-up")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestSerial_OpenErrors(t *testing.T) {
	_, device := testutil.OpenPTY(t)

	regular := filepath.Join(t.TempDir(), "not-a-tty")
	if err := os.WriteFile(regular, nil, 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	tests := []struct {
		name   string
		serial *Serial
	}{
		{"unsupported baud", &Serial{Device: device, Baud: 12345}},
		{"missing device", &Serial{Device: filepath.Join(t.TempDir(), "ttyMissing"), Baud: 9600}},
		{"not a terminal", &Serial{Device: regular, Baud: 9600}},
		{"empty device", &Serial{Baud: 9600}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if err := test.serial.Open(context.Background()); err == nil {
				test.serial.Close()
				t.Fatal("expected Open to fail")
			}
		})
	}
}

func TestSerial_Busy(t *testing.T) {
	_, device := testutil.OpenPTY(t)
	openSerial(t, device, true)

	second := &Serial{Device: device, Baud: 115200}
	if err := second.Open(context.Background()); err == nil {
		second.Close()
		t.Fatal("expected Open to fail while the device is held")
	}
}

func TestSupportedBaudRates(t *testing.T) {
	rates := SupportedBaudRates()
	if len(rates) == 0 || rates[0] != 1200 || rates[len(rates)-1] != 921600 {
		t.Errorf("SupportedBaudRates() = %v", rates)
	}
	for i := 1; i < len(rates); i++ {
		if rates[i] <= rates[i-1] {
			t.Fatalf("SupportedBaudRates() not ascending: %v", rates)
		}
	}
}
