package signaling

import (
	"context"
	"log/slog"
	"sync"

	"github.com/BioHazard786/huddle/internal/protocol"
)

// Handler routes incoming relay frames to typed channels.
type Handler struct {
	client *Client
	logger *slog.Logger

	LoggedIn           chan protocol.LoginResponse
	Joined             chan protocol.JoinRoomEvent
	Messages           chan protocol.EnterMessageEvent
	Typing             chan protocol.TypingMessageEvent
	Deleted            chan protocol.DeleteMessageEvent
	StartVideoChat     chan protocol.StartVideoChatEvent
	StopVideoChat      chan protocol.StopVideoChatEvent
	ICECandidate       chan protocol.ICECandidateRelay
	SessionDescription chan protocol.SessionDescriptionRelay
	Fail               chan *Error

	closeOnce sync.Once
}

// NewHandler creates a new message handler.
func NewHandler(client *Client) *Handler {
	return &Handler{
		client:             client,
		logger:             client.logger,
		LoggedIn:           make(chan protocol.LoginResponse, 1),
		Joined:             make(chan protocol.JoinRoomEvent, 8),
		Messages:           make(chan protocol.EnterMessageEvent, 32),
		Typing:             make(chan protocol.TypingMessageEvent, 8),
		Deleted:            make(chan protocol.DeleteMessageEvent, 8),
		StartVideoChat:     make(chan protocol.StartVideoChatEvent, 8),
		StopVideoChat:      make(chan protocol.StopVideoChatEvent, 8),
		ICECandidate:       make(chan protocol.ICECandidateRelay, 32),
		SessionDescription: make(chan protocol.SessionDescriptionRelay, 8),
		Fail:               make(chan *Error, 8),
	}
}

// Start routes frames until the client's incoming channel closes, then
// closes every handler channel.
func (h *Handler) Start() {
	defer h.shutdown()

	for msg := range h.client.Incoming() {
		switch msg.Type {
		case protocol.EventLogin:
			route(h, msg, h.LoggedIn)
		case protocol.EventJoinRoom:
			route(h, msg, h.Joined)
		case protocol.EventEnterMessage:
			route(h, msg, h.Messages)
		case protocol.EventTypingMessage:
			route(h, msg, h.Typing)
		case protocol.EventDeleteMessage:
			route(h, msg, h.Deleted)
		case protocol.EventStartVideoChat:
			route(h, msg, h.StartVideoChat)
		case protocol.EventStopVideoChat:
			route(h, msg, h.StopVideoChat)
		case protocol.EventRelayICECandidate:
			route(h, msg, h.ICECandidate)
		case protocol.EventRelaySessionDescription:
			route(h, msg, h.SessionDescription)
		case protocol.EventFail:
			var f protocol.Failure
			if err := msg.DecodePayload(&f); err != nil {
				f = protocol.Failure{Code: protocol.CodeInvalidPayload, Message: "Unknown error from relay"}
			}
			deliver(h, h.Fail, FromFailure("relay", f))
		default:
			h.logger.Debug("ignoring unknown event", "event", msg.Type)
		}
	}
}

// route decodes msg into T and forwards it. Undecodable frames are logged
// and dropped.
func route[T any](h *Handler, msg *protocol.Message, ch chan T) {
	var v T
	if err := msg.DecodePayload(&v); err != nil {
		h.logger.Warn("failed to parse relay payload", "event", msg.Type, "error", err)
		return
	}
	deliver(h, ch, v)
}

// deliver forwards v, giving up once the client is closed.
func deliver[T any](h *Handler, ch chan T, v T) {
	select {
	case ch <- v:
	case <-h.client.done:
	}
}

// Login sends a login and waits for the relay's answer.
func (h *Handler) Login(ctx context.Context, userID, token string) error {
	err := h.client.Send(protocol.EventLogin, protocol.LoginRequest{UserID: userID, LoginToken: token})
	if err != nil {
		return err
	}

	for {
		select {
		case resp, ok := <-h.LoggedIn:
			if !ok {
				return wrapError("login", ErrClosed, "")
			}
			if resp.UserID == userID {
				return nil
			}
		case fail, ok := <-h.Fail:
			if !ok {
				return wrapError("login", ErrClosed, "")
			}
			fail.Op = "login"
			return fail
		case <-ctx.Done():
			return wrapError("login", ctx.Err(), "")
		}
	}
}

// Join sends joinRoom and waits for the broadcast naming this user.
func (h *Handler) Join(ctx context.Context, userID, roomID string) error {
	if err := h.client.Send(protocol.EventJoinRoom, protocol.RoomRequest{RoomID: roomID}); err != nil {
		return err
	}

	for {
		select {
		case ev, ok := <-h.Joined:
			if !ok {
				return wrapError("join room", ErrClosed, "")
			}
			if ev.UserID == userID && ev.RoomID == roomID {
				return nil
			}
		case fail, ok := <-h.Fail:
			if !ok {
				return wrapError("join room", ErrClosed, "")
			}
			fail.Op = "join room"
			return fail
		case <-ctx.Done():
			return wrapError("join room", ctx.Err(), "")
		}
	}
}

// shutdown closes all handler channels.
func (h *Handler) shutdown() {
	h.closeOnce.Do(func() {
		close(h.LoggedIn)
		close(h.Joined)
		close(h.Messages)
		close(h.Typing)
		close(h.Deleted)
		close(h.StartVideoChat)
		close(h.StopVideoChat)
		close(h.ICECandidate)
		close(h.SessionDescription)
		close(h.Fail)
	})
}
