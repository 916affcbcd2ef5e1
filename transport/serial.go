// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// Compile-time interface check.
var _ EventDriven = (*Serial)(nil)

// ErrHangup is returned by Serial.Available once the line has hung up
// (carrier loss, USB unplug, or the far end of a pseudo-terminal
// closing) and no buffered input remains.
var ErrHangup = fmt.Errorf("transport: serial line hung up: %w", io.EOF)

// baudRates maps supported line speeds to their termios encoding.
var baudRates = map[int]uint32{
	1200:   unix.B1200,
	2400:   unix.B2400,
	4800:   unix.B4800,
	9600:   unix.B9600,
	19200:  unix.B19200,
	38400:  unix.B38400,
	57600:  unix.B57600,
	115200: unix.B115200,
	230400: unix.B230400,
	460800: unix.B460800,
	500000: unix.B500000,
	576000: unix.B576000,
	921600: unix.B921600,
}

// SupportedBaudRates returns the accepted Serial.Baud values in
// ascending order.
func SupportedBaudRates() []int {
	rates := make([]int, 0, len(baudRates))
	for rate := range baudRates {
		rates = append(rates, rate)
	}
	sort.Ints(rates)
	return rates
}

// Serial is a serial-port transport. Open configures the device for
// raw 8N1 at Baud with no flow control and takes an exclusive lock on
// it. Unless Poll is set, the transport is event-driven: a watcher
// goroutine invokes the registered handler whenever input is queued.
type Serial struct {
	// Device is the terminal device path (e.g. /dev/ttyUSB0).
	Device string

	// Baud is the line speed. It must be one of SupportedBaudRates.
	Baud int

	// Poll disables data-available notification; the bridge then polls
	// Available from its source loop.
	Poll bool

	// Logger receives lifecycle events. If nil, slog.Default() is used.
	Logger *slog.Logger

	mu      sync.Mutex
	file    *os.File
	raw     syscall.RawConn
	saved   *term.State
	closed  bool
	hungUp  bool
	watcher *serialWatcher
}

type serialWatcher struct {
	quit chan struct{}
	done chan struct{}
	once sync.Once
}

func (s *Serial) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// Open opens and configures the device. It fails if the baud rate is
// unsupported, the path is not a terminal, or another process holds
// the device.
func (s *Serial) Open(_ context.Context) error {
	speed, ok := baudRates[s.Baud]
	if !ok {
		return fmt.Errorf("transport: unsupported baud rate %d (supported: %v)", s.Baud, SupportedBaudRates())
	}
	if s.Device == "" {
		return fmt.Errorf("transport: serial device is required")
	}

	// O_NONBLOCK registers the descriptor with the runtime poller, so
	// reads park instead of holding a thread and Close interrupts them.
	file, err := os.OpenFile(s.Device, os.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK, 0)
	if err != nil {
		return fmt.Errorf("opening %s: %w", s.Device, err)
	}
	raw, err := file.SyscallConn()
	if err != nil {
		file.Close()
		return fmt.Errorf("accessing %s: %w", s.Device, err)
	}

	var (
		saved        *term.State
		configureErr error
	)
	controlErr := raw.Control(func(fd uintptr) {
		saved, configureErr = configureSerial(int(fd), speed)
	})
	if controlErr == nil {
		controlErr = configureErr
	}
	if controlErr != nil {
		file.Close()
		return fmt.Errorf("configuring %s: %w", s.Device, controlErr)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		file.Close()
		return ErrClosed
	}
	s.file = file
	s.raw = raw
	s.saved = saved

	s.logger().Info("serial transport opened",
		"device", s.Device,
		"baud", s.Baud,
		"event_driven", !s.Poll,
	)
	return nil
}

// configureSerial locks fd, switches it to raw mode, and sets 8N1 at
// speed without flow control. It returns the prior terminal state.
func configureSerial(fd int, speed uint32) (*term.State, error) {
	if !term.IsTerminal(fd) {
		return nil, fmt.Errorf("not a terminal")
	}
	if err := unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB); err != nil {
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("device busy: %w", err)
		}
		return nil, fmt.Errorf("locking: %w", err)
	}

	saved, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("entering raw mode: %w", err)
	}

	termios, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		term.Restore(fd, saved)
		return nil, fmt.Errorf("reading termios (TCGETS): %w", err)
	}
	termios.Cflag &^= unix.CBAUD | unix.CSIZE | unix.PARENB | unix.CSTOPB | unix.CRTSCTS
	termios.Cflag |= speed | unix.CS8 | unix.CLOCAL | unix.CREAD
	termios.Iflag &^= unix.IXON | unix.IXOFF | unix.IXANY
	termios.Ispeed = speed
	termios.Ospeed = speed
	termios.Cc[unix.VMIN] = 1
	termios.Cc[unix.VTIME] = 0
	if err := unix.IoctlSetTermios(fd, unix.TCSETS, termios); err != nil {
		term.Restore(fd, saved)
		return nil, fmt.Errorf("writing termios (TCSETS): %w", err)
	}
	return saved, nil
}

// Input returns the device for reading. It is nil before Open.
func (s *Serial) Input() io.Reader {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	return s.file
}

// Output returns the device for writing. It is nil before Open.
func (s *Serial) Output() io.Writer {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	return s.file
}

// Available returns the number of bytes in the driver's input queue
// (TIOCINQ). With an empty queue it checks for a hang-up and returns
// ErrHangup if the line is gone.
func (s *Serial) Available() (int, error) {
	s.mu.Lock()
	raw, closed, hungUp := s.raw, s.closed, s.hungUp
	s.mu.Unlock()
	if closed {
		return 0, ErrClosed
	}
	if raw == nil {
		return 0, ErrNotOpen
	}

	var (
		count    int
		queryErr error
		hangup   bool
	)
	controlErr := raw.Control(func(fd uintptr) {
		count, queryErr = unix.IoctlGetInt(int(fd), unix.TIOCINQ)
		if errors.Is(queryErr, unix.EIO) {
			// The line discipline is gone: the device hung up.
			count, queryErr, hangup = 0, nil, true
			return
		}
		if queryErr != nil || count > 0 || hungUp {
			return
		}
		hangup, queryErr = pollHangup(int(fd))
	})
	if controlErr != nil {
		return 0, controlErr
	}
	if queryErr != nil {
		return 0, fmt.Errorf("querying input queue: %w", queryErr)
	}
	if count > 0 {
		return count, nil
	}
	if hangup || hungUp {
		s.mu.Lock()
		s.hungUp = true
		s.mu.Unlock()
		return 0, ErrHangup
	}
	return 0, nil
}

// pollHangup reports whether fd has a pending hang-up or error
// condition, without waiting.
func pollHangup(fd int) (bool, error) {
	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
	for {
		_, err := unix.Poll(fds, 0)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return false, err
		}
		return fds[0].Revents&(unix.POLLHUP|unix.POLLERR|unix.POLLNVAL) != 0, nil
	}
}

// EventDriven reports whether notifications are enabled.
func (s *Serial) EventDriven() bool {
	return !s.Poll
}

// NotifyDataAvailable starts a watcher goroutine that waits on the
// runtime poller for input and calls handler each time some is queued.
// A hang-up also invokes handler once, so the hang-up surfaces through
// Available; the watcher then exits.
func (s *Serial) NotifyDataAvailable(handler func()) func() {
	s.mu.Lock()
	raw, file, previous := s.raw, s.file, s.watcher
	s.mu.Unlock()
	if previous != nil {
		s.stopWatcher(previous)
	}
	if raw == nil {
		return func() {}
	}

	watcher := &serialWatcher{
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
	s.mu.Lock()
	s.watcher = watcher
	s.mu.Unlock()

	go s.watch(raw, watcher, handler)

	return func() {
		s.stopWatcher(watcher)
		// Clear the deadline used to interrupt the watcher's wait.
		file.SetReadDeadline(time.Time{})
	}
}

func (s *Serial) watch(raw syscall.RawConn, watcher *serialWatcher, handler func()) {
	defer close(watcher.done)

	// Pick up input that arrived before registration.
	handler()

	for {
		select {
		case <-watcher.quit:
			return
		default:
		}

		var hangup bool
		err := raw.Read(func(fd uintptr) bool {
			count, err := unix.IoctlGetInt(int(fd), unix.TIOCINQ)
			if err != nil || count > 0 {
				return true
			}
			hangup, _ = pollHangup(int(fd))
			return hangup
		})

		select {
		case <-watcher.quit:
			return
		default:
		}
		if err != nil {
			if !errors.Is(err, os.ErrDeadlineExceeded) {
				s.logger().Debug("serial watcher stopped", "device", s.Device, "error", err)
				return
			}
			continue
		}

		handler()
		if hangup {
			return
		}
	}
}

func (s *Serial) stopWatcher(watcher *serialWatcher) {
	watcher.once.Do(func() {
		close(watcher.quit)
		s.mu.Lock()
		file := s.file
		if s.watcher == watcher {
			s.watcher = nil
		}
		s.mu.Unlock()
		if file != nil {
			file.SetReadDeadline(time.Now())
		}
	})
	<-watcher.done
}

// Close stops any watcher, restores the saved terminal state, and
// closes the device.
func (s *Serial) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	watcher := s.watcher
	s.mu.Unlock()

	if watcher != nil {
		s.stopWatcher(watcher)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.file == nil {
		return nil
	}

	var restoreErr error
	if s.saved != nil {
		controlErr := s.raw.Control(func(fd uintptr) {
			restoreErr = term.Restore(int(fd), s.saved)
		})
		if restoreErr == nil && controlErr != nil {
			restoreErr = controlErr
		}
		// A hung-up line rejects termios writes; that is not a failure.
		if errors.Is(restoreErr, unix.EIO) {
			restoreErr = nil
		}
	}
	closeErr := s.file.Close()
	if restoreErr != nil {
		restoreErr = fmt.Errorf("restoring terminal state: %w", restoreErr)
	}
	return errors.Join(restoreErr, closeErr)
}
