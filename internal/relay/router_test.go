package relay

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BioHazard786/huddle/internal/protocol"
)

type frame struct {
	to      string
	event   string
	payload any
}

type recorder struct {
	frames []frame
}

func (r *recorder) Send(connID, event string, payload any) {
	r.frames = append(r.frames, frame{to: connID, event: event, payload: payload})
}

func (r *recorder) to(connID string) []frame {
	var out []frame
	for _, f := range r.frames {
		if f.to == connID {
			out = append(out, f)
		}
	}
	return out
}

func (r *recorder) reset() {
	r.frames = nil
}

type routerFixture struct {
	router   *Router
	out      *recorder
	registry *Registry
	members  *Membership
	ledger   *Ledger
	now      time.Time
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	f := &routerFixture{
		out:      &recorder{},
		registry: NewRegistry(),
		members:  NewMembership(),
		ledger:   NewLedger(0),
		now:      time.UnixMilli(1700000000000),
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.router = NewRouter(f.registry, f.members, f.ledger, f.out,
		WithObserver(NewLogObserver(logger)),
		WithClock(func() time.Time { return f.now }),
	)
	return f
}

func (f *routerFixture) handle(t *testing.T, connID, event string, payload any) {
	t.Helper()
	msg, err := protocol.NewMessage(event, payload)
	require.NoError(t, err)
	f.router.Handle(connID, msg)
}

// enter logs connID in as identity and joins room, then clears the recorder.
func (f *routerFixture) enter(t *testing.T, connID, identity, room string) {
	t.Helper()
	f.handle(t, connID, protocol.EventLogin, protocol.LoginRequest{UserID: identity, LoginToken: "t"})
	f.handle(t, connID, protocol.EventJoinRoom, protocol.RoomRequest{RoomID: room})
	f.out.reset()
}

func requireFailure(t *testing.T, frames []frame, code string) {
	t.Helper()
	require.Len(t, frames, 1)
	assert.Equal(t, protocol.EventFail, frames[0].event)
	failure, ok := frames[0].payload.(protocol.Failure)
	require.True(t, ok)
	assert.Equal(t, code, failure.Code)
}

func TestRouter_Login(t *testing.T) {
	f := newRouterFixture(t)

	f.handle(t, "A", protocol.EventLogin, protocol.LoginRequest{UserID: "alice"})
	require.Len(t, f.out.frames, 1)
	assert.Equal(t, frame{to: "A", event: protocol.EventLogin, payload: protocol.LoginResponse{UserID: "alice"}}, f.out.frames[0])
	assert.True(t, f.registry.IsAuthenticated("alice", "A"))

	f.out.reset()
	f.handle(t, "B", protocol.EventLogin, protocol.LoginRequest{UserID: "alice"})
	requireFailure(t, f.out.to("B"), protocol.CodeAlreadyLoggedIn)
	assert.Equal(t, protocol.Failure{Code: protocol.CodeAlreadyLoggedIn, Message: "User already login"}, f.out.frames[0].payload)
	assert.Empty(t, f.out.to("A"), "failures go to the sender only")

	f.router.Disconnect("A")
	f.out.reset()
	f.handle(t, "B", protocol.EventLogin, protocol.LoginRequest{UserID: "alice"})
	require.Len(t, f.out.to("B"), 1)
	assert.Equal(t, protocol.EventLogin, f.out.frames[0].event)
}

func TestRouter_LoginRequiresUserID(t *testing.T) {
	f := newRouterFixture(t)
	f.handle(t, "A", protocol.EventLogin, protocol.LoginRequest{})
	requireFailure(t, f.out.to("A"), protocol.CodeInvalidPayload)
	assert.Equal(t, 0, f.registry.Len())
}

func TestRouter_JoinRoomBroadcastsToMembers(t *testing.T) {
	f := newRouterFixture(t)
	f.enter(t, "A", "alice", "r1")

	f.handle(t, "B", protocol.EventLogin, protocol.LoginRequest{UserID: "bob"})
	f.out.reset()
	f.handle(t, "B", protocol.EventJoinRoom, protocol.RoomRequest{RoomID: "r1"})

	want := protocol.JoinRoomEvent{UserID: "bob", RoomID: "r1"}
	require.Len(t, f.out.frames, 2)
	for _, conn := range []string{"A", "B"} {
		got := f.out.to(conn)
		require.Len(t, got, 1, conn)
		assert.Equal(t, protocol.EventJoinRoom, got[0].event)
		assert.Equal(t, want, got[0].payload)
	}
}

func TestRouter_JoinRoomRejections(t *testing.T) {
	t.Run("not logged in", func(t *testing.T) {
		f := newRouterFixture(t)
		f.handle(t, "C", protocol.EventJoinRoom, protocol.RoomRequest{RoomID: "r1"})
		requireFailure(t, f.out.frames, protocol.CodeNotLoggedIn)
		assert.Empty(t, f.members.Members("r1"))
	})

	t.Run("already in room", func(t *testing.T) {
		f := newRouterFixture(t)
		f.enter(t, "A", "alice", "r1")
		f.handle(t, "A", protocol.EventJoinRoom, protocol.RoomRequest{RoomID: "r1"})
		requireFailure(t, f.out.frames, protocol.CodeAlreadyInRoom)
		assert.Equal(t, []string{"A"}, f.members.Members("r1"))
	})

	t.Run("second room", func(t *testing.T) {
		f := newRouterFixture(t)
		f.enter(t, "A", "alice", "r1")
		f.handle(t, "A", protocol.EventJoinRoom, protocol.RoomRequest{RoomID: "r2"})
		requireFailure(t, f.out.frames, protocol.CodeAlreadyInRoom)
		assert.Empty(t, f.members.Members("r2"))
	})
}

func TestRouter_EnterMessage(t *testing.T) {
	f := newRouterFixture(t)
	f.enter(t, "A", "alice", "r1")
	f.enter(t, "B", "bob", "r1")

	f.handle(t, "A", protocol.EventEnterMessage, protocol.EnterMessageRequest{RoomID: "r1", Message: "hi"})

	want := protocol.EnterMessageEvent{
		MessageID: MessageID(f.now, "alice", "r1"),
		UserID:    "alice",
		RoomID:    "r1",
		Message:   "hi",
	}
	for _, conn := range []string{"A", "B"} {
		got := f.out.to(conn)
		require.Len(t, got, 1, conn)
		assert.Equal(t, protocol.EventEnterMessage, got[0].event)
		assert.Equal(t, want, got[0].payload)
	}

	// Same user, room and millisecond: the retry is dropped silently.
	f.out.reset()
	f.handle(t, "A", protocol.EventEnterMessage, protocol.EnterMessageRequest{RoomID: "r1", Message: "hi"})
	assert.Empty(t, f.out.frames)
	assert.Equal(t, 1, f.ledger.Len())

	f.now = f.now.Add(time.Millisecond)
	f.handle(t, "A", protocol.EventEnterMessage, protocol.EnterMessageRequest{RoomID: "r1", Message: "hi"})
	assert.Len(t, f.out.frames, 2)
}

func TestRouter_EnterMessageRejections(t *testing.T) {
	t.Run("not logged in", func(t *testing.T) {
		f := newRouterFixture(t)
		f.handle(t, "C", protocol.EventEnterMessage, protocol.EnterMessageRequest{RoomID: "r1", Message: "hi"})

		require.Len(t, f.out.frames, 1)
		assert.Equal(t, frame{
			to:      "C",
			event:   protocol.EventFail,
			payload: protocol.Failure{Code: protocol.CodeNotLoggedIn, Message: "User not login"},
		}, f.out.frames[0])
		assert.Equal(t, 0, f.ledger.Len())
	})

	t.Run("not in room leaves ledger untouched", func(t *testing.T) {
		f := newRouterFixture(t)
		f.enter(t, "A", "alice", "r1")
		f.handle(t, "A", protocol.EventEnterMessage, protocol.EnterMessageRequest{RoomID: "r2", Message: "hi"})

		requireFailure(t, f.out.frames, protocol.CodeNotInRoom)
		assert.Equal(t, 0, f.ledger.Len())
	})

	t.Run("stale connection after disconnect", func(t *testing.T) {
		f := newRouterFixture(t)
		f.enter(t, "A", "alice", "r1")
		f.router.Disconnect("A")

		f.handle(t, "A", protocol.EventEnterMessage, protocol.EnterMessageRequest{RoomID: "r1", Message: "hi"})
		requireFailure(t, f.out.frames, protocol.CodeNotLoggedIn)
	})
}

func TestRouter_TypingMessage(t *testing.T) {
	f := newRouterFixture(t)
	f.enter(t, "A", "alice", "r1")
	f.enter(t, "B", "bob", "r1")

	f.handle(t, "B", protocol.EventTypingMessage, protocol.TypingMessageRequest{RoomID: "r1", IsTyping: true})
	require.Len(t, f.out.frames, 2)
	assert.Equal(t, protocol.TypingMessageEvent{UserID: "bob", RoomID: "r1", IsTyping: true}, f.out.to("A")[0].payload)

	f.out.reset()
	f.handle(t, "B", protocol.EventTypingMessage, protocol.TypingMessageRequest{RoomID: "r2", IsTyping: true})
	requireFailure(t, f.out.frames, protocol.CodeNotInRoom)
}

func TestRouter_DeleteMessage(t *testing.T) {
	f := newRouterFixture(t)
	f.enter(t, "A", "alice", "r1")
	f.enter(t, "B", "bob", "r1")
	f.handle(t, "A", protocol.EventEnterMessage, protocol.EnterMessageRequest{RoomID: "r1", Message: "hi"})
	id := MessageID(f.now, "alice", "r1")

	tests := []struct {
		name string
		conn string
		req  protocol.DeleteMessageRequest
	}{
		{name: "unknown id", conn: "A", req: protocol.DeleteMessageRequest{RoomID: "r1", MessageID: "nope"}},
		{name: "not the author", conn: "B", req: protocol.DeleteMessageRequest{RoomID: "r1", MessageID: id}},
		{name: "wrong room", conn: "A", req: protocol.DeleteMessageRequest{RoomID: "r2", MessageID: id}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f.out.reset()
			f.handle(t, tt.conn, protocol.EventDeleteMessage, tt.req)
			requireFailure(t, f.out.frames, protocol.CodeMessageNotFound)
			assert.True(t, f.ledger.Contains(id))
		})
	}

	f.out.reset()
	f.handle(t, "A", protocol.EventDeleteMessage, protocol.DeleteMessageRequest{RoomID: "r1", MessageID: id})
	require.Len(t, f.out.frames, 2)
	assert.Equal(t, protocol.DeleteMessageEvent{MessageID: id}, f.out.to("B")[0].payload)
	assert.False(t, f.ledger.Contains(id))

	f.out.reset()
	f.handle(t, "A", protocol.EventDeleteMessage, protocol.DeleteMessageRequest{RoomID: "r1", MessageID: id})
	requireFailure(t, f.out.frames, protocol.CodeMessageNotFound)
}

func TestRouter_StartVideoChat(t *testing.T) {
	f := newRouterFixture(t)
	f.enter(t, "B", "bob", "r1")
	f.enter(t, "A", "alice", "r1")

	f.handle(t, "A", protocol.EventStartVideoChat, protocol.RoomRequest{RoomID: "r1"})

	require.Len(t, f.out.frames, 2)
	assert.Equal(t, []frame{{
		to:      "A",
		event:   protocol.EventStartVideoChat,
		payload: protocol.StartVideoChatEvent{SocketID: "B", CreateOffer: true},
	}}, f.out.to("A"))
	assert.Equal(t, []frame{{
		to:      "B",
		event:   protocol.EventStartVideoChat,
		payload: protocol.StartVideoChatEvent{SocketID: "A", CreateOffer: false},
	}}, f.out.to("B"))
}

func TestRouter_StartVideoChatPairsWithEveryPeer(t *testing.T) {
	f := newRouterFixture(t)
	f.enter(t, "A", "alice", "r1")
	f.enter(t, "B", "bob", "r1")
	f.enter(t, "C", "carol", "r1")
	f.enter(t, "D", "dave", "r2")

	f.handle(t, "C", protocol.EventStartVideoChat, protocol.RoomRequest{RoomID: "r1"})

	offers := 0
	for _, fr := range f.out.to("C") {
		ev := fr.payload.(protocol.StartVideoChatEvent)
		assert.True(t, ev.CreateOffer)
		offers++
	}
	assert.Equal(t, 2, offers)
	for _, conn := range []string{"A", "B"} {
		got := f.out.to(conn)
		require.Len(t, got, 1)
		assert.Equal(t, protocol.StartVideoChatEvent{SocketID: "C", CreateOffer: false}, got[0].payload)
	}
	assert.Empty(t, f.out.to("D"))
}

func TestRouter_StopVideoChat(t *testing.T) {
	f := newRouterFixture(t)
	f.enter(t, "A", "alice", "r1")
	f.enter(t, "B", "bob", "r1")

	f.handle(t, "A", protocol.EventStopVideoChat, protocol.RoomRequest{RoomID: "r1"})
	require.Len(t, f.out.frames, 2)
	assert.Equal(t, protocol.StopVideoChatEvent{SocketID: "A", UserID: "alice"}, f.out.to("B")[0].payload)
}

func TestRouter_RelayToNamedPeer(t *testing.T) {
	f := newRouterFixture(t)
	candidate := json.RawMessage(`{"candidate":"candidate:1 1 udp 2122260223 10.0.0.1 5000 typ host","sdpMLineIndex":0}`)
	sdp := json.RawMessage(`{"type":"offer","sdp":"v=0"}`)

	f.handle(t, "A", protocol.EventRelayICECandidate, protocol.ICECandidateRelay{SocketID: "B", ICECandidate: candidate})
	f.handle(t, "A", protocol.EventRelaySessionDescription, protocol.SessionDescriptionRelay{SocketID: "B", SessionDescription: sdp})

	assert.Equal(t, []frame{
		{to: "B", event: protocol.EventRelayICECandidate, payload: protocol.ICECandidateRelay{SocketID: "A", ICECandidate: candidate}},
		{to: "B", event: protocol.EventRelaySessionDescription, payload: protocol.SessionDescriptionRelay{SocketID: "A", SessionDescription: sdp}},
	}, f.out.frames)

	f.out.reset()
	f.handle(t, "A", protocol.EventRelayICECandidate, protocol.ICECandidateRelay{ICECandidate: candidate})
	requireFailure(t, f.out.frames, protocol.CodeInvalidPayload)
}

func TestRouter_CountsEveryHandledEvent(t *testing.T) {
	counters := &Counters{}
	out := &recorder{}
	router := NewRouter(NewRegistry(), NewMembership(), NewLedger(0), out, WithObserver(counters))

	handle := func(connID, event string, payload any) {
		msg, err := protocol.NewMessage(event, payload)
		require.NoError(t, err)
		router.Handle(connID, msg)
	}

	candidate := json.RawMessage(`{"candidate":"candidate:1 1 udp 1 10.0.0.1 5000 typ host"}`)
	handle("A", protocol.EventLogin, protocol.LoginRequest{UserID: "alice"})
	handle("A", protocol.EventJoinRoom, protocol.RoomRequest{RoomID: "r1"})
	handle("A", protocol.EventTypingMessage, protocol.TypingMessageRequest{RoomID: "r1", IsTyping: true})
	handle("A", protocol.EventRelayICECandidate, protocol.ICECandidateRelay{SocketID: "B", ICECandidate: candidate})
	handle("A", protocol.EventRelaySessionDescription, protocol.SessionDescriptionRelay{
		SocketID:           "B",
		SessionDescription: json.RawMessage(`{"type":"offer","sdp":"v=0"}`),
	})

	assert.Equal(t, int64(5), counters.Events())
	assert.Zero(t, counters.Failures())
}

func TestRouter_UnknownAndMalformed(t *testing.T) {
	f := newRouterFixture(t)

	f.router.Handle("A", &protocol.Message{Type: "shout"})
	requireFailure(t, f.out.frames, protocol.CodeUnknownEvent)

	f.out.reset()
	f.router.Handle("A", &protocol.Message{Type: protocol.EventLogin, Payload: json.RawMessage(`"alice"`)})
	requireFailure(t, f.out.frames, protocol.CodeInvalidPayload)
}

func TestRouter_DisconnectPurgesState(t *testing.T) {
	f := newRouterFixture(t)
	f.enter(t, "A", "alice", "r1")
	f.enter(t, "B", "bob", "r1")

	f.router.Disconnect("A")
	assert.False(t, f.registry.IsAuthenticated("alice", "A"))
	assert.Equal(t, []string{"B"}, f.members.Members("r1"))
	assert.Empty(t, f.out.frames, "disconnect emits nothing")

	f.handle(t, "B", protocol.EventStartVideoChat, protocol.RoomRequest{RoomID: "r1"})
	assert.Empty(t, f.out.frames, "no peers left to pair with")
}
