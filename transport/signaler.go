// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"strings"
	"time"
)

// Signaler abstracts the mechanism for exchanging WebRTC session
// descriptions between two bridge peers. Any store both peers can
// reach works: a shared database row, a pub/sub topic, or (in tests)
// process memory.
//
// The signaling model is vanilla ICE: all ICE candidates are gathered
// before the SDP is published, so connection establishment requires
// exactly one signaling round-trip (offer, then answer).
type Signaler interface {
	// PublishOffer publishes a complete SDP offer from localpart
	// directed at targetLocalpart.
	PublishOffer(ctx context.Context, localpart, targetLocalpart, sdp string) error

	// PublishAnswer publishes a complete SDP answer from localpart in
	// response to an offer from offererLocalpart.
	PublishAnswer(ctx context.Context, offererLocalpart, localpart, sdp string) error

	// PollOffers returns offers directed at localpart that have not
	// been returned by an earlier call.
	PollOffers(ctx context.Context, localpart string) ([]SignalMessage, error)

	// PollAnswers returns answers to offers originated by localpart
	// that have not been returned by an earlier call.
	PollAnswers(ctx context.Context, localpart string) ([]SignalMessage, error)
}

// SignalMessage represents a signaling message (offer or answer).
type SignalMessage struct {
	// PeerLocalpart is the other party: the offerer for a received
	// offer, the answerer for a received answer.
	PeerLocalpart string

	// SDP is the complete Session Description Protocol string with all
	// ICE candidates embedded.
	SDP string

	// Published is when the signal was published.
	Published time.Time
}

// signalingSeparator joins the offerer and target localparts in a
// signal key ("offerer|target").
const signalingSeparator = "|"

// signalKeyMatcher extracts the peer localpart from a signal key if the
// key is relevant to localpart.
type signalKeyMatcher func(key, localpart string) (peer string, ok bool)

// matchOfferKey accepts keys whose target is localpart and returns the
// offerer.
func matchOfferKey(key, localpart string) (string, bool) {
	offerer, target, found := strings.Cut(key, signalingSeparator)
	if !found || offerer == "" || target != localpart {
		return "", false
	}
	return offerer, true
}

// matchAnswerKey accepts keys whose offerer is localpart and returns
// the target that answered.
func matchAnswerKey(key, localpart string) (string, bool) {
	offerer, target, found := strings.Cut(key, signalingSeparator)
	if !found || target == "" || offerer != localpart {
		return "", false
	}
	return target, true
}
