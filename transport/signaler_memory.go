// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"sync"
	"time"
)

// Compile-time interface check.
var _ Signaler = (*MemorySignaler)(nil)

// MemorySignaler is an in-process Signaler. Two DataChannel transports
// in the same process that share a MemorySignaler can connect without
// any network signaling.
//
// Each offerer/target pair holds at most one offer and one answer; a
// republish replaces the previous signal and is delivered again.
type MemorySignaler struct {
	mu       sync.Mutex
	sequence uint64
	offers   map[string]storedSignal // key: "offerer|target"
	answers  map[string]storedSignal // key: "offerer|target"

	// delivered records the sequence each poller last received per key.
	delivered map[deliveryKey]uint64
}

type storedSignal struct {
	message  SignalMessage
	sequence uint64
}

type deliveryKey struct {
	answers bool
	poller  string
	key     string
}

// NewMemorySignaler creates a new in-process signaler.
func NewMemorySignaler() *MemorySignaler {
	return &MemorySignaler{
		offers:    make(map[string]storedSignal),
		answers:   make(map[string]storedSignal),
		delivered: make(map[deliveryKey]uint64),
	}
}

func (s *MemorySignaler) PublishOffer(_ context.Context, localpart, targetLocalpart, sdp string) error {
	s.store(s.offers, localpart+signalingSeparator+targetLocalpart, localpart, sdp)
	return nil
}

func (s *MemorySignaler) PublishAnswer(_ context.Context, offererLocalpart, localpart, sdp string) error {
	s.store(s.answers, offererLocalpart+signalingSeparator+localpart, localpart, sdp)
	return nil
}

func (s *MemorySignaler) store(signals map[string]storedSignal, key, from, sdp string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sequence++
	signals[key] = storedSignal{
		message: SignalMessage{
			PeerLocalpart: from,
			SDP:           sdp,
			Published:     time.Now().UTC(),
		},
		sequence: s.sequence,
	}
}

func (s *MemorySignaler) PollOffers(_ context.Context, localpart string) ([]SignalMessage, error) {
	return s.poll(localpart, false, matchOfferKey), nil
}

func (s *MemorySignaler) PollAnswers(_ context.Context, localpart string) ([]SignalMessage, error) {
	return s.poll(localpart, true, matchAnswerKey), nil
}

// poll returns the signals relevant to localpart that it has not yet
// received.
func (s *MemorySignaler) poll(localpart string, answers bool, match signalKeyMatcher) []SignalMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	signals := s.offers
	if answers {
		signals = s.answers
	}

	var messages []SignalMessage
	for key, signal := range signals {
		if _, ok := match(key, localpart); !ok {
			continue
		}
		cursor := deliveryKey{answers: answers, poller: localpart, key: key}
		if s.delivered[cursor] >= signal.sequence {
			continue
		}
		s.delivered[cursor] = signal.sequence
		messages = append(messages, signal.message)
	}
	return messages
}
