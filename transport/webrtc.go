// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
)

// Compile-time interface check.
var _ EventDriven = (*DataChannel)(nil)

// signalPollInterval is how often Open polls the Signaler for the
// peer's offer or answer.
const signalPollInterval = 100 * time.Millisecond

// iceGatherTimeout is the maximum time to wait for ICE candidate gathering
// to complete before publishing the SDP.
const iceGatherTimeout = 15 * time.Second

// defaultConnectTimeout bounds signaling plus data channel establishment
// when DataChannel.ConnectTimeout is zero.
const defaultConnectTimeout = 30 * time.Second

// maxDataChannelMessage is the largest chunk Output sends as a single
// SCTP message. Larger writes are split; the byte stream is unchanged.
const maxDataChannelMessage = 16 * 1024

// DefaultDataChannelLabel is the data channel label used when
// DataChannel.Label is empty.
const DefaultDataChannelLabel = "bytebridge"

// DataChannel is a transport over an ordered, reliable WebRTC data
// channel to one peer. Both peers construct a DataChannel naming each
// other; the one with the lexicographically smaller Localpart creates
// the offer, the other answers. Received messages are appended to an
// input buffer, so the transport presents a byte stream and is always
// event-driven.
type DataChannel struct {
	// Signaler exchanges the SDP offer and answer.
	Signaler Signaler

	// Localpart identifies this peer in signaling.
	Localpart string

	// Peer is the remote peer's localpart.
	Peer string

	// Label names the data channel. Empty means DefaultDataChannelLabel.
	Label string

	// ICE lists STUN/TURN servers. The zero value uses host candidates
	// only.
	ICE ICEConfig

	// ConnectTimeout bounds Open. Zero means 30 seconds.
	ConnectTimeout time.Duration

	// Logger receives lifecycle events. If nil, slog.Default() is used.
	Logger *slog.Logger

	mu         sync.Mutex
	connection *webrtc.PeerConnection
	channel    *webrtc.DataChannel
	input      bytes.Buffer
	remoteGone bool
	closed     bool

	opened     chan struct{}
	openedOnce sync.Once

	notifier notifier
}

func (d *DataChannel) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

func (d *DataChannel) label() string {
	if d.Label != "" {
		return d.Label
	}
	return DefaultDataChannelLabel
}

// Open signals the peer and waits until the data channel is open.
func (d *DataChannel) Open(ctx context.Context) error {
	if d.Signaler == nil {
		return fmt.Errorf("transport: data channel requires a signaler")
	}
	if d.Localpart == "" || d.Peer == "" {
		return fmt.Errorf("transport: data channel requires both localpart and peer")
	}
	if d.Localpart == d.Peer {
		return fmt.Errorf("transport: data channel peer %q is this machine", d.Peer)
	}

	timeout := d.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	connection, err := d.newPeerConnection()
	if err != nil {
		return fmt.Errorf("creating PeerConnection: %w", err)
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		connection.Close()
		return ErrClosed
	}
	d.connection = connection
	d.opened = make(chan struct{})
	d.mu.Unlock()

	connection.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		d.logger().Info("WebRTC connection state change",
			"peer", d.Peer,
			"state", state.String(),
		)
		if state == webrtc.PeerConnectionStateFailed || state == webrtc.PeerConnectionStateClosed {
			d.markRemoteGone()
		}
	})

	if d.Localpart < d.Peer {
		err = d.offer(ctx, connection)
	} else {
		err = d.answer(ctx, connection)
	}
	if err != nil {
		d.Close()
		return err
	}

	select {
	case <-d.opened:
	case <-ctx.Done():
		d.Close()
		return fmt.Errorf("waiting for data channel %q to open: %w", d.label(), ctx.Err())
	}

	d.logger().Info("WebRTC data channel open",
		"peer", d.Peer,
		"label", d.label(),
		"offerer", d.Localpart < d.Peer,
	)
	return nil
}

// offer creates the data channel, publishes the offer, and applies the
// peer's answer.
func (d *DataChannel) offer(ctx context.Context, connection *webrtc.PeerConnection) error {
	ordered := true
	channel, err := connection.CreateDataChannel(d.label(), &webrtc.DataChannelInit{
		Ordered: &ordered,
	})
	if err != nil {
		return fmt.Errorf("creating data channel %q: %w", d.label(), err)
	}
	d.attach(channel)

	offer, err := connection.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("creating SDP offer: %w", err)
	}
	completeSDP, err := d.gather(ctx, connection, offer)
	if err != nil {
		return err
	}
	if err := d.Signaler.PublishOffer(ctx, d.Localpart, d.Peer, completeSDP); err != nil {
		return fmt.Errorf("publishing SDP offer: %w", err)
	}
	d.logger().Info("WebRTC offer published", "peer", d.Peer)

	answerSDP, err := d.waitForSignal(ctx, d.Signaler.PollAnswers)
	if err != nil {
		return fmt.Errorf("waiting for SDP answer from %s: %w", d.Peer, err)
	}
	answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: answerSDP}
	if err := connection.SetRemoteDescription(answer); err != nil {
		return fmt.Errorf("setting remote description: %w", err)
	}
	return nil
}

// answer waits for the peer's offer, accepts the data channel it
// announces, and publishes the answer.
func (d *DataChannel) answer(ctx context.Context, connection *webrtc.PeerConnection) error {
	connection.OnDataChannel(func(channel *webrtc.DataChannel) {
		if channel.Label() != d.label() {
			d.logger().Warn("ignoring unexpected data channel",
				"peer", d.Peer,
				"label", channel.Label(),
			)
			channel.Close()
			return
		}
		d.attach(channel)
	})

	offerSDP, err := d.waitForSignal(ctx, d.Signaler.PollOffers)
	if err != nil {
		return fmt.Errorf("waiting for SDP offer from %s: %w", d.Peer, err)
	}
	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offerSDP}
	if err := connection.SetRemoteDescription(offer); err != nil {
		return fmt.Errorf("setting remote description: %w", err)
	}

	answer, err := connection.CreateAnswer(nil)
	if err != nil {
		return fmt.Errorf("creating SDP answer: %w", err)
	}
	completeSDP, err := d.gather(ctx, connection, answer)
	if err != nil {
		return err
	}
	if err := d.Signaler.PublishAnswer(ctx, d.Peer, d.Localpart, completeSDP); err != nil {
		return fmt.Errorf("publishing SDP answer: %w", err)
	}
	d.logger().Info("WebRTC answer published", "peer", d.Peer)
	return nil
}

// gather sets the local description and waits for ICE gathering to
// finish, returning the SDP with every candidate embedded.
func (d *DataChannel) gather(ctx context.Context, connection *webrtc.PeerConnection, description webrtc.SessionDescription) (string, error) {
	gatherComplete := webrtc.GatheringCompletePromise(connection)
	if err := connection.SetLocalDescription(description); err != nil {
		return "", fmt.Errorf("setting local description: %w", err)
	}

	timer := time.NewTimer(iceGatherTimeout)
	defer timer.Stop()
	select {
	case <-gatherComplete:
	case <-timer.C:
		return "", fmt.Errorf("ICE gathering timed out after %s", iceGatherTimeout)
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return connection.LocalDescription().SDP, nil
}

// waitForSignal polls until poll returns a signal from the peer.
func (d *DataChannel) waitForSignal(ctx context.Context, poll func(context.Context, string) ([]SignalMessage, error)) (string, error) {
	ticker := time.NewTicker(signalPollInterval)
	defer ticker.Stop()

	for {
		signals, err := poll(ctx, d.Localpart)
		if err != nil {
			d.logger().Warn("polling signaler failed", "peer", d.Peer, "error", err)
		}
		for _, signal := range signals {
			if signal.PeerLocalpart == d.Peer {
				return signal.SDP, nil
			}
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
	}
}

// attach wires channel's callbacks into the input buffer.
func (d *DataChannel) attach(channel *webrtc.DataChannel) {
	d.mu.Lock()
	d.channel = channel
	opened := d.opened
	d.mu.Unlock()

	channel.OnOpen(func() {
		d.openedOnce.Do(func() { close(opened) })
	})
	channel.OnMessage(func(message webrtc.DataChannelMessage) {
		d.mu.Lock()
		if !d.closed {
			d.input.Write(message.Data)
		}
		d.mu.Unlock()
		d.logger().Debug("data channel message received", "peer", d.Peer, "bytes", len(message.Data))
		d.notifier.notify()
	})
	channel.OnClose(func() {
		d.markRemoteGone()
	})
}

func (d *DataChannel) markRemoteGone() {
	d.mu.Lock()
	d.remoteGone = true
	d.mu.Unlock()
	d.notifier.notify()
}

// Input returns a reader over received bytes. Reads never block.
func (d *DataChannel) Input() io.Reader {
	return dataChannelReader{d}
}

// Output returns a writer that sends each write as one or more data
// channel messages.
func (d *DataChannel) Output() io.Writer {
	return dataChannelWriter{d}
}

// Available returns the number of received bytes not yet read. Once
// the remote side has gone and nothing remains buffered it returns
// io.EOF.
func (d *DataChannel) Available() (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0, ErrClosed
	}
	if d.channel == nil {
		return 0, ErrNotOpen
	}
	if d.input.Len() == 0 && d.remoteGone {
		return 0, io.EOF
	}
	return d.input.Len(), nil
}

// EventDriven always reports true: arrival is signaled by pion's
// OnMessage callback.
func (d *DataChannel) EventDriven() bool {
	return true
}

// NotifyDataAvailable registers handler for message arrival.
func (d *DataChannel) NotifyDataAvailable(handler func()) func() {
	return d.notifier.register(handler)
}

// Close closes the data channel and the PeerConnection.
func (d *DataChannel) Close() error {
	d.notifier.close()

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	channel, connection := d.channel, d.connection
	d.input.Reset()
	d.mu.Unlock()

	var channelErr, connectionErr error
	if channel != nil {
		channelErr = channel.Close()
	}
	if connection != nil {
		connectionErr = connection.Close()
	}
	return errors.Join(channelErr, connectionErr)
}

// newPeerConnection creates a pion PeerConnection with the configured
// ICE servers. Loopback candidates are included so peers on the same
// machine (and tests) can connect.
func (d *DataChannel) newPeerConnection() (*webrtc.PeerConnection, error) {
	settingEngine := webrtc.SettingEngine{}
	settingEngine.SetIncludeLoopbackCandidate(true)

	api := webrtc.NewAPI(webrtc.WithSettingEngine(settingEngine))
	return api.NewPeerConnection(webrtc.Configuration{
		ICEServers: d.ICE.Servers,
	})
}

type dataChannelReader struct{ d *DataChannel }

func (r dataChannelReader) Read(p []byte) (int, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	if r.d.closed {
		return 0, ErrClosed
	}
	if r.d.input.Len() == 0 {
		if r.d.remoteGone {
			return 0, io.EOF
		}
		return 0, nil
	}
	return r.d.input.Read(p)
}

type dataChannelWriter struct{ d *DataChannel }

func (w dataChannelWriter) Write(p []byte) (int, error) {
	w.d.mu.Lock()
	channel, closed := w.d.channel, w.d.closed
	w.d.mu.Unlock()
	if closed {
		return 0, ErrClosed
	}
	if channel == nil {
		return 0, ErrNotOpen
	}

	written := 0
	for written < len(p) {
		end := min(written+maxDataChannelMessage, len(p))
		if err := channel.Send(p[written:end]); err != nil {
			return written, fmt.Errorf("sending on data channel %q: %w", channel.Label(), err)
		}
		written = end
	}
	return written, nil
}
