package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Frame type discriminants, inbound (client → server).
const (
	TypeSubscribeLiveScores        = "subscribe_live_scores"
	TypeSubscribeMatch             = "subscribe_match"
	TypeUnsubscribeMatch           = "unsubscribe_match"
	TypeSubscribeUserNotifications = "subscribe_user_notifications"
	TypePing                       = "ping"
)

// Frame type discriminants, outbound (server → client).
const (
	TypeConnection            = "connection"
	TypeSubscriptionSuccess   = "subscription_success"
	TypeUnsubscriptionSuccess = "unsubscription_success"
	TypeError                 = "error"
	TypeLiveScore             = "live_score"
	TypeMatchEvent            = "match_event"
	TypeUserNotification      = "user_notification"
	TypePong                  = "pong"
)

// Envelope is the unit of both inbound control frames and outbound broadcast
// payloads: {type, data, timestamp}.
type Envelope struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewEnvelope builds an envelope with data marshalled into the Data field.
func NewEnvelope(frameType string, data any, ts time.Time) (Envelope, error) {
	env := Envelope{Type: frameType, Timestamp: ts}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return Envelope{}, fmt.Errorf("failed to marshal %s data: %w", frameType, err)
		}
		env.Data = raw
	}
	return env, nil
}

// Encode serializes the envelope for the wire.
func (e Envelope) Encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s envelope: %w", e.Type, err)
	}
	return data, nil
}

// ControlFrame is the closed set of inbound control frames. Adding a variant
// means adding a case to every switch over this union.
type ControlFrame interface{ isControlFrame() }

// SubscribeLiveScores joins the global live-scores channel.
type SubscribeLiveScores struct{}

// SubscribeMatch joins the per-match event channel.
type SubscribeMatch struct {
	MatchID int64
}

// UnsubscribeMatch leaves the per-match event channel.
type UnsubscribeMatch struct {
	MatchID int64
}

// SubscribeUserNotifications joins the personal notification channel.
// Requires an authenticated identity.
type SubscribeUserNotifications struct{}

// Ping is the application-level liveness probe; answered with a pong frame.
type Ping struct{}

func (SubscribeLiveScores) isControlFrame()        {}
func (SubscribeMatch) isControlFrame()             {}
func (UnsubscribeMatch) isControlFrame()           {}
func (SubscribeUserNotifications) isControlFrame() {}
func (Ping) isControlFrame()                       {}

// StateChanging reports whether the frame mutates subscription state and is
// therefore subject to rate limiting.
func StateChanging(f ControlFrame) bool {
	switch f.(type) {
	case SubscribeLiveScores, SubscribeMatch, UnsubscribeMatch, SubscribeUserNotifications:
		return true
	case Ping:
		return false
	default:
		return false
	}
}

type matchData struct {
	MatchID int64 `json:"matchId"`
}

// ParseControlFrame decodes a raw inbound message into its control-frame
// variant. A malformed envelope returns ErrMalformedFrame; a type outside the
// closed set returns ErrUnknownFrameType. Neither is grounds for disconnect.
func ParseControlFrame(raw []byte) (ControlFrame, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedFrame, err)
	}

	switch env.Type {
	case TypeSubscribeLiveScores:
		return SubscribeLiveScores{}, nil
	case TypeSubscribeMatch:
		var d matchData
		if err := json.Unmarshal(env.Data, &d); err != nil {
			return nil, fmt.Errorf("%w: subscribe_match data: %w", ErrMalformedFrame, err)
		}
		return SubscribeMatch{MatchID: d.MatchID}, nil
	case TypeUnsubscribeMatch:
		var d matchData
		if err := json.Unmarshal(env.Data, &d); err != nil {
			return nil, fmt.Errorf("%w: unsubscribe_match data: %w", ErrMalformedFrame, err)
		}
		return UnsubscribeMatch{MatchID: d.MatchID}, nil
	case TypeSubscribeUserNotifications:
		return SubscribeUserNotifications{}, nil
	case TypePing:
		return Ping{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFrameType, env.Type)
	}
}

// ConnectionStatus values carried by the connection frame sent after accept.
const (
	StatusConnected     = "connected"
	StatusAuthenticated = "authenticated"
)

// ConnectionData is the payload of the connection frame.
type ConnectionData struct {
	Status string `json:"status"`
}

// SubscriptionData is the payload of subscription_success and
// unsubscription_success frames.
type SubscriptionData struct {
	Subscription string `json:"subscription"`
}

// ErrorData is the payload of error frames. Remaining carries the quota hint
// on rate-limit rejections and is omitted otherwise.
type ErrorData struct {
	Error     string `json:"error"`
	Remaining *int   `json:"remaining,omitempty"`
}
