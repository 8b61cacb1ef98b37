package realtime

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func offerBody() json.RawMessage {
	return json.RawMessage(`{"type":"offer","sdp":"v=0\r\no=- 0 0 IN IP4 127.0.0.1\r\n"}`)
}

func answerBody() json.RawMessage {
	return json.RawMessage(`{"type":"answer","sdp":"v=0\r\no=- 0 0 IN IP4 127.0.0.1\r\n"}`)
}

func iceBody() json.RawMessage {
	return json.RawMessage(`{"candidate":"candidate:1 1 UDP 2122252543 192.168.1.2 54321 typ host","sdpMid":"0"}`)
}

func TestRelay_OfferReachesTarget(t *testing.T) {
	registry := NewRegistry(testLogger())
	relay := NewRelay(registry, testLogger())

	from := uuid.New()
	to := uuid.New()
	target := newFakeSession(to)
	registry.Register(target)

	err := relay.Relay(SignalOffer, from, to, "alice", offerBody())
	require.NoError(t, err)

	events := target.received()
	require.Len(t, events, 1)
	assert.Equal(t, EventSignalOffer, events[0].Type)

	var payload SignalPayload
	require.NoError(t, json.Unmarshal(events[0].Payload, &payload))
	assert.Equal(t, from, payload.From)
	assert.Equal(t, "alice", payload.FromName)
	assert.JSONEq(t, string(offerBody()), string(payload.Body))
}

func TestRelay_AnswerAndICEEventTypes(t *testing.T) {
	registry := NewRegistry(testLogger())
	relay := NewRelay(registry, testLogger())

	to := uuid.New()
	target := newFakeSession(to)
	registry.Register(target)

	require.NoError(t, relay.Relay(SignalAnswer, uuid.New(), to, "bob", answerBody()))
	require.NoError(t, relay.Relay(SignalICECandidate, uuid.New(), to, "bob", iceBody()))

	events := target.received()
	require.Len(t, events, 2)
	assert.Equal(t, EventSignalAnswer, events[0].Type)
	assert.Equal(t, EventSignalICECandidate, events[1].Type)
}

func TestRelay_TargetOffline(t *testing.T) {
	registry := NewRegistry(testLogger())
	relay := NewRelay(registry, testLogger())

	err := relay.Relay(SignalOffer, uuid.New(), uuid.New(), "alice", offerBody())
	assert.ErrorIs(t, err, ErrTargetOffline)
}

func TestRelay_TargetsLatestSessionOnly(t *testing.T) {
	registry := NewRegistry(testLogger())
	relay := NewRelay(registry, testLogger())

	to := uuid.New()
	older := newFakeSession(to)
	newer := newFakeSession(to)
	registry.Register(older)
	registry.Register(newer)

	require.NoError(t, relay.Relay(SignalOffer, uuid.New(), to, "alice", offerBody()))

	// One deterministic endpoint: the most recent registration
	assert.Empty(t, older.received())
	assert.Len(t, newer.received(), 1)
}

func TestRelay_RejectsMismatchedSDPType(t *testing.T) {
	registry := NewRegistry(testLogger())
	relay := NewRelay(registry, testLogger())

	to := uuid.New()
	registry.Register(newFakeSession(to))

	// An answer body arriving as an offer signal is malformed
	err := relay.Relay(SignalOffer, uuid.New(), to, "alice", answerBody())
	assert.ErrorIs(t, err, ErrMalformedSignal)
}

func TestRelay_RejectsMalformedBodies(t *testing.T) {
	registry := NewRegistry(testLogger())
	relay := NewRelay(registry, testLogger())

	to := uuid.New()
	target := newFakeSession(to)
	registry.Register(target)

	cases := []struct {
		name    string
		sigType SignalType
		body    json.RawMessage
	}{
		{"empty offer", SignalOffer, json.RawMessage(`{}`)},
		{"not json", SignalAnswer, json.RawMessage(`not json`)},
		{"empty candidate", SignalICECandidate, json.RawMessage(`{"candidate":""}`)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := relay.Relay(tc.sigType, uuid.New(), to, "alice", tc.body)
			assert.ErrorIs(t, err, ErrMalformedSignal)
		})
	}

	// Validation failures never reach the target
	assert.Empty(t, target.received())
}

func TestRelay_RejectsUnknownSignalType(t *testing.T) {
	registry := NewRegistry(testLogger())
	relay := NewRelay(registry, testLogger())

	err := relay.Relay(SignalType("renegotiate"), uuid.New(), uuid.New(), "alice", offerBody())
	assert.ErrorIs(t, err, ErrInvalidSignalType)
}

func TestRelay_SendFailureSurfaces(t *testing.T) {
	registry := NewRegistry(testLogger())
	relay := NewRelay(registry, testLogger())

	to := uuid.New()
	target := newFakeSession(to)
	target.failWrites()
	registry.Register(target)

	err := relay.Relay(SignalOffer, uuid.New(), to, "alice", offerBody())
	assert.Error(t, err)
}
