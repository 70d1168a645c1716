package protocol

import (
	"encoding/json"
	"fmt"
)

// Message is the envelope for every frame exchanged between a client and the
// relay, in both directions.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Event names. Inbound and outbound frames share the same name for a given
// exchange; failures always travel as EventFail.
const (
	EventLogin                   = "login"
	EventJoinRoom                = "joinRoom"
	EventEnterMessage            = "enterMessage"
	EventTypingMessage           = "typingMessage"
	EventDeleteMessage           = "deleteMessage"
	EventStartVideoChat          = "startVideoChat"
	EventStopVideoChat           = "stopVideoChat"
	EventRelayICECandidate       = "relayICECandidate"
	EventRelaySessionDescription = "relaySessionDescription"
	EventFail                    = "fail"
)

// NewMessage marshals payload into a Message of the given type.
func NewMessage(event string, payload any) (*Message, error) {
	if payload == nil {
		return &Message{Type: event}, nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", event, err)
	}
	return &Message{Type: event, Payload: b}, nil
}

// DecodePayload decodes the message payload into v. An absent payload decodes
// as an empty object.
func (m *Message) DecodePayload(v any) error {
	if len(m.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(m.Payload, v)
}
