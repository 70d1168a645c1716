package protocol

import "encoding/json"

// LoginRequest is sent by a client to bind an identity to its connection.
type LoginRequest struct {
	UserID     string `json:"userId"`
	LoginToken string `json:"loginToken,omitempty"`
}

// LoginResponse is returned to the sender only.
type LoginResponse struct {
	UserID string `json:"userId"`
}

// RoomRequest carries just a room id (joinRoom, startVideoChat, stopVideoChat).
type RoomRequest struct {
	RoomID string `json:"roomId"`
}

// JoinRoomEvent is broadcast to every member of the room, the joiner included.
type JoinRoomEvent struct {
	UserID string `json:"userId"`
	RoomID string `json:"roomId"`
}

type EnterMessageRequest struct {
	RoomID  string `json:"roomId"`
	Message string `json:"message"`
}

type EnterMessageEvent struct {
	MessageID string `json:"messageId"`
	UserID    string `json:"userId"`
	RoomID    string `json:"roomId"`
	Message   string `json:"message"`
}

type TypingMessageRequest struct {
	RoomID   string `json:"roomId"`
	IsTyping bool   `json:"isTyping"`
}

type TypingMessageEvent struct {
	UserID   string `json:"userId"`
	RoomID   string `json:"roomId"`
	IsTyping bool   `json:"isTyping"`
}

type DeleteMessageRequest struct {
	RoomID    string `json:"roomId"`
	MessageID string `json:"messageId"`
}

type DeleteMessageEvent struct {
	MessageID string `json:"messageId"`
}

// StartVideoChatEvent tells the receiver to negotiate with SocketID. Exactly
// one side of each pair receives CreateOffer=true.
type StartVideoChatEvent struct {
	SocketID    string `json:"socketId"`
	CreateOffer bool   `json:"createOffer"`
}

type StopVideoChatEvent struct {
	SocketID string `json:"socketId"`
	UserID   string `json:"userId"`
}

// ICECandidateRelay is used both ways: inbound SocketID names the target,
// outbound SocketID names the sender.
type ICECandidateRelay struct {
	SocketID     string          `json:"socketId"`
	ICECandidate json.RawMessage `json:"iceCandidate"`
}

// SessionDescriptionRelay follows the same addressing rule as ICECandidateRelay.
type SessionDescriptionRelay struct {
	SocketID           string          `json:"socketId"`
	SessionDescription json.RawMessage `json:"sessionDescription"`
}

// Failure is unicast to the sender of a rejected event.
type Failure struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
