package relay

import (
	"errors"
	"time"

	"github.com/BioHazard786/huddle/internal/protocol"
)

// Outbound delivers frames to connections. Delivery is fire-and-forget:
// unknown or congested connections simply miss the frame.
type Outbound interface {
	Send(connID, event string, payload any)
}

// Router validates each inbound event against the registry, the room
// membership and the ledger, applies its state change and emits the results.
//
// Every handler checks all of its preconditions before touching state, so a
// rejected event leaves everything as it was. Router is not safe for
// concurrent use; the Hub calls it from a single goroutine.
type Router struct {
	registry *Registry
	members  *Membership
	ledger   *Ledger
	out      Outbound
	observer Observer
	now      func() time.Time
}

type RouterOption func(*Router)

// WithObserver replaces the default slog-backed observer.
func WithObserver(o Observer) RouterOption {
	return func(r *Router) { r.observer = o }
}

// WithClock sets the clock used to derive message ids.
func WithClock(now func() time.Time) RouterOption {
	return func(r *Router) { r.now = now }
}

func NewRouter(registry *Registry, members *Membership, ledger *Ledger, out Outbound, opts ...RouterOption) *Router {
	r := &Router{
		registry: registry,
		members:  members,
		ledger:   ledger,
		out:      out,
		observer: NewLogObserver(nil),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Handle processes one inbound frame from connID.
func (r *Router) Handle(connID string, msg *protocol.Message) {
	var err *Error
	switch msg.Type {
	case protocol.EventLogin:
		err = r.login(connID, msg)
	case protocol.EventJoinRoom:
		err = r.joinRoom(connID, msg)
	case protocol.EventEnterMessage:
		err = r.enterMessage(connID, msg)
	case protocol.EventTypingMessage:
		err = r.typingMessage(connID, msg)
	case protocol.EventDeleteMessage:
		err = r.deleteMessage(connID, msg)
	case protocol.EventStartVideoChat:
		err = r.startVideoChat(connID, msg)
	case protocol.EventStopVideoChat:
		err = r.stopVideoChat(connID, msg)
	case protocol.EventRelayICECandidate:
		err = r.relayICECandidate(connID, msg)
	case protocol.EventRelaySessionDescription:
		err = r.relaySessionDescription(connID, msg)
	default:
		err = wrapError(msg.Type, ErrUnknownEvent, msg.Type)
	}
	if err != nil {
		r.Reject(connID, err)
	}
}

// Reject reports err to the observer and, unless it is a silently dropped
// duplicate, sends the matching fail frame to connID alone.
func (r *Router) Reject(connID string, err *Error) {
	r.observer.Rejected(err, connID)
	if errors.Is(err, errDuplicateMessage) {
		return
	}
	r.out.Send(connID, protocol.EventFail, err.Failure())
}

// Disconnect purges connID from the registry and its room.
func (r *Router) Disconnect(connID string) {
	identity, _ := r.registry.Identity(connID)
	r.registry.Logout(connID)
	room, _ := r.members.Leave(connID)
	r.observer.Transition("disconnect", connID, "userId", identity, "roomId", room)
}

func (r *Router) login(connID string, msg *protocol.Message) *Error {
	var req protocol.LoginRequest
	if err := msg.DecodePayload(&req); err != nil {
		return wrapError(msg.Type, ErrInvalidPayload, err.Error())
	}
	if req.UserID == "" {
		return wrapError(msg.Type, ErrInvalidPayload, "missing userId")
	}
	if err := r.registry.Login(connID, req.UserID, req.LoginToken); err != nil {
		return wrapError(msg.Type, err, req.UserID)
	}

	r.observer.Transition(msg.Type, connID, "userId", req.UserID)
	r.out.Send(connID, protocol.EventLogin, protocol.LoginResponse{UserID: req.UserID})
	return nil
}

func (r *Router) joinRoom(connID string, msg *protocol.Message) *Error {
	var req protocol.RoomRequest
	if err := msg.DecodePayload(&req); err != nil {
		return wrapError(msg.Type, ErrInvalidPayload, err.Error())
	}
	identity, ok := r.authenticate(connID)
	if !ok {
		return newError(msg.Type, ErrNotLoggedIn)
	}
	if req.RoomID == "" {
		return wrapError(msg.Type, ErrInvalidPayload, "missing roomId")
	}
	if r.members.IsMember(connID, req.RoomID) {
		return wrapError(msg.Type, ErrAlreadyInRoom, req.RoomID)
	}
	if err := r.members.Join(connID, req.RoomID); err != nil {
		current, _ := r.members.Room(connID)
		return wrapError(msg.Type, err, current)
	}

	r.observer.Transition(msg.Type, connID, "userId", identity, "roomId", req.RoomID)
	r.broadcast(req.RoomID, protocol.EventJoinRoom, protocol.JoinRoomEvent{
		UserID: identity,
		RoomID: req.RoomID,
	})
	return nil
}

func (r *Router) enterMessage(connID string, msg *protocol.Message) *Error {
	var req protocol.EnterMessageRequest
	if err := msg.DecodePayload(&req); err != nil {
		return wrapError(msg.Type, ErrInvalidPayload, err.Error())
	}
	identity, ok := r.authenticate(connID)
	if !ok {
		return newError(msg.Type, ErrNotLoggedIn)
	}
	id := MessageID(r.now(), identity, req.RoomID)
	if r.ledger.Contains(id) {
		return wrapError(msg.Type, errDuplicateMessage, id)
	}
	if !r.members.IsMember(connID, req.RoomID) {
		return wrapError(msg.Type, ErrNotInRoom, req.RoomID)
	}
	r.ledger.Record(id)

	r.observer.Transition(msg.Type, connID, "userId", identity, "roomId", req.RoomID, "messageId", id)
	r.broadcast(req.RoomID, protocol.EventEnterMessage, protocol.EnterMessageEvent{
		MessageID: id,
		UserID:    identity,
		RoomID:    req.RoomID,
		Message:   req.Message,
	})
	return nil
}

func (r *Router) typingMessage(connID string, msg *protocol.Message) *Error {
	var req protocol.TypingMessageRequest
	if err := msg.DecodePayload(&req); err != nil {
		return wrapError(msg.Type, ErrInvalidPayload, err.Error())
	}
	identity, err := r.authorize(connID, msg.Type, req.RoomID)
	if err != nil {
		return err
	}

	r.observer.Transition(msg.Type, connID, "userId", identity, "roomId", req.RoomID, "isTyping", req.IsTyping)
	r.broadcast(req.RoomID, protocol.EventTypingMessage, protocol.TypingMessageEvent{
		UserID:   identity,
		RoomID:   req.RoomID,
		IsTyping: req.IsTyping,
	})
	return nil
}

func (r *Router) deleteMessage(connID string, msg *protocol.Message) *Error {
	var req protocol.DeleteMessageRequest
	if err := msg.DecodePayload(&req); err != nil {
		return wrapError(msg.Type, ErrInvalidPayload, err.Error())
	}
	identity, ok := r.authenticate(connID)
	if !ok {
		return newError(msg.Type, ErrNotLoggedIn)
	}
	if !r.ledger.Removable(req.MessageID, req.RoomID, identity) {
		return wrapError(msg.Type, ErrMessageNotFound, req.MessageID)
	}
	if !r.members.IsMember(connID, req.RoomID) {
		return wrapError(msg.Type, ErrNotInRoom, req.RoomID)
	}
	r.ledger.Remove(req.MessageID, req.RoomID, identity)

	r.observer.Transition(msg.Type, connID, "userId", identity, "roomId", req.RoomID, "messageId", req.MessageID)
	r.broadcast(req.RoomID, protocol.EventDeleteMessage, protocol.DeleteMessageEvent{
		MessageID: req.MessageID,
	})
	return nil
}

// startVideoChat pairs the sender with every other member of the room. The
// sender always makes the offer, so each pair has exactly one offerer.
func (r *Router) startVideoChat(connID string, msg *protocol.Message) *Error {
	var req protocol.RoomRequest
	if err := msg.DecodePayload(&req); err != nil {
		return wrapError(msg.Type, ErrInvalidPayload, err.Error())
	}
	identity, err := r.authorize(connID, msg.Type, req.RoomID)
	if err != nil {
		return err
	}

	peers := 0
	for _, peer := range r.members.Members(req.RoomID) {
		if peer == connID {
			continue
		}
		r.out.Send(connID, protocol.EventStartVideoChat, protocol.StartVideoChatEvent{
			SocketID:    peer,
			CreateOffer: true,
		})
		r.out.Send(peer, protocol.EventStartVideoChat, protocol.StartVideoChatEvent{
			SocketID:    connID,
			CreateOffer: false,
		})
		peers++
	}
	r.observer.Transition(msg.Type, connID, "userId", identity, "roomId", req.RoomID, "peers", peers)
	return nil
}

func (r *Router) stopVideoChat(connID string, msg *protocol.Message) *Error {
	var req protocol.RoomRequest
	if err := msg.DecodePayload(&req); err != nil {
		return wrapError(msg.Type, ErrInvalidPayload, err.Error())
	}
	identity, err := r.authorize(connID, msg.Type, req.RoomID)
	if err != nil {
		return err
	}

	r.observer.Transition(msg.Type, connID, "userId", identity, "roomId", req.RoomID)
	r.broadcast(req.RoomID, protocol.EventStopVideoChat, protocol.StopVideoChatEvent{
		SocketID: connID,
		UserID:   identity,
	})
	return nil
}

func (r *Router) relayICECandidate(connID string, msg *protocol.Message) *Error {
	var req protocol.ICECandidateRelay
	if err := msg.DecodePayload(&req); err != nil {
		return wrapError(msg.Type, ErrInvalidPayload, err.Error())
	}
	if req.SocketID == "" {
		return wrapError(msg.Type, ErrInvalidPayload, "missing socketId")
	}

	r.observer.Transition(msg.Type, connID, "target", req.SocketID)
	r.out.Send(req.SocketID, protocol.EventRelayICECandidate, protocol.ICECandidateRelay{
		SocketID:     connID,
		ICECandidate: req.ICECandidate,
	})
	return nil
}

func (r *Router) relaySessionDescription(connID string, msg *protocol.Message) *Error {
	var req protocol.SessionDescriptionRelay
	if err := msg.DecodePayload(&req); err != nil {
		return wrapError(msg.Type, ErrInvalidPayload, err.Error())
	}
	if req.SocketID == "" {
		return wrapError(msg.Type, ErrInvalidPayload, "missing socketId")
	}

	r.observer.Transition(msg.Type, connID, "target", req.SocketID)
	r.out.Send(req.SocketID, protocol.EventRelaySessionDescription, protocol.SessionDescriptionRelay{
		SocketID:           connID,
		SessionDescription: req.SessionDescription,
	})
	return nil
}

// authenticate returns the identity connID is logged in as, provided that
// login is still live on this very connection.
func (r *Router) authenticate(connID string) (string, bool) {
	identity, ok := r.registry.Identity(connID)
	if !ok || !r.registry.IsAuthenticated(identity, connID) {
		return "", false
	}
	return identity, true
}

// authorize is authenticate followed by a membership check on room.
func (r *Router) authorize(connID, event, room string) (string, *Error) {
	identity, ok := r.authenticate(connID)
	if !ok {
		return "", newError(event, ErrNotLoggedIn)
	}
	if !r.members.IsMember(connID, room) {
		return "", wrapError(event, ErrNotInRoom, room)
	}
	return identity, nil
}

func (r *Router) broadcast(room, event string, payload any) {
	for _, id := range r.members.Members(room) {
		r.out.Send(id, event, payload)
	}
}
