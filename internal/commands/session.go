package commands

import (
	"errors"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/BioHazard786/huddle/internal/peer"
	"github.com/BioHazard786/huddle/internal/protocol"
	"github.com/BioHazard786/huddle/internal/signaling"
	"github.com/BioHazard786/huddle/internal/ui"
)

// relaySender is the part of *signaling.Client a chat session writes to.
type relaySender interface {
	Send(event string, payload any) error
}

// messageSink receives updates for the chat screen. *tea.Program satisfies it.
type messageSink interface {
	Send(msg tea.Msg)
}

// ChatSession joins the relay, the peer manager and the chat screen.
type ChatSession struct {
	userID  string
	roomID  string
	relay   relaySender
	handler *signaling.Handler
	peers   *peer.Manager
}

func NewChatSession(userID, roomID string, relay relaySender, handler *signaling.Handler, peers *peer.Manager) *ChatSession {
	return &ChatSession{
		userID:  userID,
		roomID:  roomID,
		relay:   relay,
		handler: handler,
		peers:   peers,
	}
}

func (s *ChatSession) SendMessage(text string) error {
	return s.relay.Send(protocol.EventEnterMessage, protocol.EnterMessageRequest{RoomID: s.roomID, Message: text})
}

func (s *ChatSession) SetTyping(typing bool) error {
	return s.relay.Send(protocol.EventTypingMessage, protocol.TypingMessageRequest{RoomID: s.roomID, IsTyping: typing})
}

func (s *ChatSession) DeleteMessage(messageID string) error {
	return s.relay.Send(protocol.EventDeleteMessage, protocol.DeleteMessageRequest{RoomID: s.roomID, MessageID: messageID})
}

func (s *ChatSession) StartCall() error {
	return s.relay.Send(protocol.EventStartVideoChat, protocol.RoomRequest{RoomID: s.roomID})
}

// HangUp tells the room and closes every local peer connection.
func (s *ChatSession) HangUp() error {
	err := s.relay.Send(protocol.EventStopVideoChat, protocol.RoomRequest{RoomID: s.roomID})
	return errors.Join(err, s.peers.CloseAll(false))
}

func (s *ChatSession) SendDirect(text string) (int, error) {
	return s.peers.SendText(text)
}

// Pump forwards relay and peer activity to sink until the relay connection
// ends or done is closed. Signaling frames drive the peer manager directly.
func (s *ChatSession) Pump(sink messageSink, done <-chan struct{}) {
	h := s.handler
	for {
		select {
		case <-done:
			return

		case ev, ok := <-h.Messages:
			if !ok {
				sink.Send(ui.DisconnectedMsg{})
				return
			}
			sink.Send(ui.MessageMsg(ev))

		case ev, ok := <-h.Joined:
			if !ok {
				sink.Send(ui.DisconnectedMsg{})
				return
			}
			sink.Send(ui.JoinedMsg(ev))

		case ev, ok := <-h.Typing:
			if !ok {
				sink.Send(ui.DisconnectedMsg{})
				return
			}
			sink.Send(ui.TypingMsg(ev))

		case ev, ok := <-h.Deleted:
			if !ok {
				sink.Send(ui.DisconnectedMsg{})
				return
			}
			sink.Send(ui.DeletedMsg(ev))

		case _, ok := <-h.LoggedIn:
			if !ok {
				sink.Send(ui.DisconnectedMsg{})
				return
			}

		case ev, ok := <-h.StartVideoChat:
			if !ok {
				sink.Send(ui.DisconnectedMsg{})
				return
			}
			if err := s.peers.Start(ev.SocketID, ev.CreateOffer); err != nil {
				sink.Send(ui.ErrorMsg{Err: err})
			}

		case ev, ok := <-h.SessionDescription:
			if !ok {
				sink.Send(ui.DisconnectedMsg{})
				return
			}
			if err := s.peers.HandleSessionDescription(ev.SocketID, ev.SessionDescription); err != nil {
				sink.Send(ui.ErrorMsg{Err: err})
			}

		case ev, ok := <-h.ICECandidate:
			if !ok {
				sink.Send(ui.DisconnectedMsg{})
				return
			}
			if err := s.peers.HandleICECandidate(ev.SocketID, ev.ICECandidate); err != nil {
				sink.Send(ui.ErrorMsg{Err: err})
			}

		case ev, ok := <-h.StopVideoChat:
			if !ok {
				sink.Send(ui.DisconnectedMsg{})
				return
			}
			if ev.UserID == s.userID {
				continue
			}
			if err := s.peers.Stop(ev.SocketID); err != nil && !errors.Is(err, peer.ErrUnknownPeer) {
				sink.Send(ui.ErrorMsg{Err: err})
			}
			sink.Send(ui.StopVideoMsg(ev))

		case fail, ok := <-h.Fail:
			if !ok {
				sink.Send(ui.DisconnectedMsg{})
				return
			}
			sink.Send(ui.ErrorMsg{Err: fail})

		case ev := <-s.peers.Events():
			sink.Send(ui.PeerMsg(ev))
		}
	}
}
