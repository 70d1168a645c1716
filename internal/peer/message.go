package peer

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Frame types carried on the huddle data channel.
const (
	FrameHello = "hello"
	FrameText  = "text"
)

// Frame represents all data channel messages between peers.
type Frame struct {
	Type    string             `msgpack:"type"`
	Payload msgpack.RawMessage `msgpack:"payload"`
}

// HelloPayload is sent by both sides once the channel opens.
type HelloPayload struct {
	DeviceName string `msgpack:"deviceName"`
	Version    string `msgpack:"version"`
}

// TextPayload is a direct chat line that bypasses the relay.
type TextPayload struct {
	Body string `msgpack:"body"`
}

// DecodePayload decodes the frame payload into the provided struct.
func (f Frame) DecodePayload(v any) error {
	return msgpack.Unmarshal(f.Payload, v)
}

// NewFrame creates a new Frame with the given type and payload.
func NewFrame(t string, payload any) (Frame, error) {
	b, err := msgpack.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}

	return Frame{
		Type:    t,
		Payload: b,
	}, nil
}

// EncodeFrame is NewFrame followed by msgpack encoding of the whole frame.
func EncodeFrame(t string, payload any) ([]byte, error) {
	f, err := NewFrame(t, payload)
	if err != nil {
		return nil, err
	}
	return msgpack.Marshal(f)
}

// DecodeFrame parses one data channel message.
func DecodeFrame(data []byte) (Frame, error) {
	var f Frame
	if err := msgpack.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrInvalidFrame, err)
	}
	if f.Type == "" {
		return Frame{}, fmt.Errorf("%w: missing type", ErrInvalidFrame)
	}
	return f, nil
}
