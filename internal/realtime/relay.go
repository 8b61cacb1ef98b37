package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"
)

// Signal event types, server -> client
const (
	EventSignalOffer        = "signal.offer"
	EventSignalAnswer       = "signal.answer"
	EventSignalICECandidate = "signal.ice_candidate"
)

// SignalType classifies a relayed negotiation payload
type SignalType string

const (
	SignalOffer        SignalType = "offer"
	SignalAnswer       SignalType = "answer"
	SignalICECandidate SignalType = "ice-candidate"
)

// Relay errors
var (
	ErrTargetOffline     = errors.New("signal target has no active session")
	ErrInvalidSignalType = errors.New("invalid signal type")
	ErrMalformedSignal   = errors.New("malformed signal payload")
)

// SignalPayload is the relayed envelope: who it is from and the opaque
// negotiation body. Never persisted; call lifecycle lives in the call store.
type SignalPayload struct {
	From     uuid.UUID       `json:"from"`
	FromName string          `json:"from_name,omitempty"`
	Body     json.RawMessage `json:"body"`
}

// Relay forwards call-negotiation payloads between two parties.
//
// Multi-device policy: unlike chat, a signal targets the recipient's
// most-recently-registered session only. Sending offer/answer/ICE to several
// devices of one user produces ambiguous call state, so one deterministic
// endpoint wins.
type Relay struct {
	registry *Registry
	logger   *slog.Logger
}

// NewRelay creates a signaling relay over the connection registry
func NewRelay(registry *Registry, logger *slog.Logger) *Relay {
	return &Relay{
		registry: registry,
		logger:   logger.With("component", "relay"),
	}
}

// Relay validates the payload and forwards it to the target's latest session.
// ErrTargetOffline is returned to the caller so the sender learns the call
// cannot proceed; nothing is buffered for offline targets.
func (r *Relay) Relay(sigType SignalType, fromID, to uuid.UUID, fromName string, body json.RawMessage) error {
	eventType, err := validateSignal(sigType, body)
	if err != nil {
		return err
	}

	target := r.registry.LatestSession(to)
	if target == nil {
		return fmt.Errorf("%w: %s", ErrTargetOffline, to)
	}

	event, err := NewEvent(eventType, SignalPayload{
		From:     fromID,
		FromName: fromName,
		Body:     body,
	})
	if err != nil {
		return err
	}

	if err := target.Send(event); err != nil {
		return fmt.Errorf("relay %s to %s: %w", sigType, to, err)
	}

	r.logger.Debug("signal relayed", "type", sigType, "from", fromID, "to", to, "session_id", target.ID())
	return nil
}

// validateSignal checks the body shape for the given signal type and returns
// the outbound event type. SDP descriptions must carry the matching SDP type;
// ICE candidates only need to be well-formed JSON.
func validateSignal(sigType SignalType, body json.RawMessage) (string, error) {
	switch sigType {
	case SignalOffer, SignalAnswer:
		var desc webrtc.SessionDescription
		if err := json.Unmarshal(body, &desc); err != nil || desc.SDP == "" {
			return "", fmt.Errorf("%w: %s", ErrMalformedSignal, sigType)
		}
		want := webrtc.SDPTypeOffer
		eventType := EventSignalOffer
		if sigType == SignalAnswer {
			want = webrtc.SDPTypeAnswer
			eventType = EventSignalAnswer
		}
		if desc.Type != want {
			return "", fmt.Errorf("%w: sdp type %q for %s", ErrMalformedSignal, desc.Type, sigType)
		}
		return eventType, nil

	case SignalICECandidate:
		var candidate webrtc.ICECandidateInit
		if err := json.Unmarshal(body, &candidate); err != nil || candidate.Candidate == "" {
			return "", fmt.Errorf("%w: ice candidate", ErrMalformedSignal)
		}
		return EventSignalICECandidate, nil

	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidSignalType, sigType)
	}
}
