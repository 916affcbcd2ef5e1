// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"fmt"
	"os"
	"testing"

	"golang.org/x/sys/unix"
)

// OpenPTY allocates a pseudo-terminal pair using the Linux devpts
// interface and returns the master side plus the path of the slave
// device. The slave path stands in for a serial port: it is a real
// terminal that accepts termios configuration, and bytes written to
// the master appear as input on the slave.
//
// The master is opened non-blocking so read deadlines apply to it. It
// is closed when the test completes; tests that need to simulate a
// hang-up may close it earlier.
//
//	master, device := testutil.OpenPTY(t)
func OpenPTY(t *testing.T) (*os.File, string) {
	t.Helper()

	master, err := os.OpenFile("/dev/ptmx", os.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK, 0)
	if err != nil {
		t.Skipf("pseudo-terminals unavailable: open /dev/ptmx: %v", err)
	}
	t.Cleanup(func() { master.Close() })

	raw, err := master.SyscallConn()
	if err != nil {
		t.Fatalf("accessing PTY master: %v", err)
	}

	var (
		ptyNumber int
		ioctlErr  error
	)
	if err := raw.Control(func(fd uintptr) {
		ptyNumber, ioctlErr = unix.IoctlGetInt(int(fd), unix.TIOCGPTN)
		if ioctlErr != nil {
			ioctlErr = fmt.Errorf("get PTY number (TIOCGPTN): %w", ioctlErr)
			return
		}
		if err := unix.IoctlSetPointerInt(int(fd), unix.TIOCSPTLCK, 0); err != nil {
			ioctlErr = fmt.Errorf("unlock PTY slave (TIOCSPTLCK): %w", err)
		}
	}); err != nil {
		t.Fatalf("accessing PTY master: %v", err)
	}
	if ioctlErr != nil {
		t.Fatalf("%v", ioctlErr)
	}

	return master, fmt.Sprintf("/dev/pts/%d", ptyNumber)
}
