// Package ws defines the wire envelope exchanged between a client socket and
// the Session Fan-Out Layer.
package ws

import (
	"encoding/json"
	"time"
)

// FrameType names the logical kind of a Frame. Inbound frames carry a
// client-chosen action (e.g. "message.send"); outbound frames carry one of
// the standard server frame types below.
type FrameType string

const (
	FrameConnectionEstablished FrameType = "connection.established"
	FrameAccessVerified        FrameType = "access.verified"
	FrameDiscussionEvent       FrameType = "discussion.event"
	FramePing                  FrameType = "ping"
	FramePong                  FrameType = "pong"
	FrameError                 FrameType = "error"
)

// Frame is the base envelope for every message exchanged over a Discussion
// socket: `{ type, data?, messageId? }`.
type Frame struct {
	Type      FrameType       `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	MessageID string          `json:"messageId,omitempty"`
}

// NewFrame marshals payload into data and returns the resulting Frame.
func NewFrame(frameType FrameType, messageID string, payload interface{}) (*Frame, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Frame{Type: frameType, Data: data, MessageID: messageID}, nil
}

// Decode unmarshals the frame's data into v. A nil data field is a no-op.
func (f *Frame) Decode(v interface{}) error {
	if f.Data == nil {
		return nil
	}
	return json.Unmarshal(f.Data, v)
}

// RateLimits describes the policy sent to a client on connect.
type RateLimits struct {
	MessagesPerMinute     int `json:"messagesPerMinute"`
	MaxMessageSize        int `json:"maxMessageSize"`
	MaxConnectionsPerUser int `json:"maxConnectionsPerUser"`
}

// ConnectionEstablishedData is the payload of a connection.established frame.
type ConnectionEstablishedData struct {
	DiscussionID  string     `json:"discussionId"`
	ConnectionID  string     `json:"connectionId"`
	SecurityLevel string     `json:"securityLevel"`
	RateLimits    RateLimits `json:"rateLimits"`
	Timestamp     time.Time  `json:"timestamp"`
}

// AccessVerifiedData is the payload of an access.verified frame.
type AccessVerifiedData struct {
	DiscussionID  string `json:"discussionId"`
	ParticipantID string `json:"participantId"`
}

// PongData is the payload of a pong frame.
type PongData struct {
	Timestamp time.Time `json:"timestamp"`
}

// ErrorData is the payload of an error frame.
type ErrorData struct {
	Message string `json:"message"`
}

// SendMessageData is the payload a client sends with type "message.send".
type SendMessageData struct {
	Content     string `json:"content"`
	MessageType string `json:"messageType,omitempty"`
}

// ReactionData is the payload a client sends with type "reaction.add".
type ReactionData struct {
	MessageID string `json:"messageId"`
	Emoji     string `json:"emoji"`
}

// SelectSpeakerData is the payload a client sends with type "turn.select".
// Only meaningful when the sending socket's participant holds the Moderator
// role on the discussion.
type SelectSpeakerData struct {
	ParticipantID string `json:"participantId"`
}
