package websocket

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/observer/huddle/internal/realtime"
)

func TestNewEvent_CreatesCorrectEnvelope(t *testing.T) {
	evt, err := realtime.NewEvent(EventTypeAuthSuccess, AuthSuccessPayload{
		UserID:   uuid.New(),
		Username: "frieren",
	})
	require.NoError(t, err)

	assert.Equal(t, EventTypeAuthSuccess, evt.Type)
	assert.NotEmpty(t, evt.Payload)
	assert.False(t, evt.Timestamp.IsZero())
}

func TestAuthPayload_RoundTrip(t *testing.T) {
	evt, err := realtime.NewEvent(EventTypeAuth, AuthPayload{Token: "header.body.sig"})
	require.NoError(t, err)

	data, err := json.Marshal(evt)
	require.NoError(t, err)

	var decoded realtime.Event
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, EventTypeAuth, decoded.Type)

	var payload AuthPayload
	require.NoError(t, json.Unmarshal(decoded.Payload, &payload))
	assert.Equal(t, "header.body.sig", payload.Token)
}

func TestMessageSendPayload_OmitsEmptyTarget(t *testing.T) {
	data, err := json.Marshal(MessageSendPayload{
		ChannelID: uuid.NewString(),
		Content:   "hello",
	})
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Contains(t, raw, "channel_id")
	assert.NotContains(t, raw, "recipient_id")
	assert.NotContains(t, raw, "temp_id")
}

func TestSignalSendPayload_PreservesRawBody(t *testing.T) {
	body := json.RawMessage(`{"type":"offer","sdp":"v=0..."}`)
	data, err := json.Marshal(SignalSendPayload{
		To:   uuid.NewString(),
		Body: body,
	})
	require.NoError(t, err)

	var decoded SignalSendPayload
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.JSONEq(t, string(body), string(decoded.Body))
}

func TestErrorPayload_RoundTrip(t *testing.T) {
	evt, err := realtime.NewEvent(EventTypeError, ErrorPayload{
		Code:    "unknown_recipient",
		Message: "recipient does not exist",
	})
	require.NoError(t, err)

	var payload ErrorPayload
	require.NoError(t, json.Unmarshal(evt.Payload, &payload))
	assert.Equal(t, "unknown_recipient", payload.Code)
	assert.Equal(t, "recipient does not exist", payload.Message)
}
