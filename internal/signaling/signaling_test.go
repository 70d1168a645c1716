package signaling

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BioHazard786/huddle/internal/config"
	"github.com/BioHazard786/huddle/internal/protocol"
	"github.com/BioHazard786/huddle/internal/relay"
	"github.com/BioHazard786/huddle/internal/server"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startRelay(t *testing.T) string {
	t.Helper()
	hub := relay.NewHub(relay.HubConfig{Logger: quietLogger()})
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-hub.Done()
	})

	srv := httptest.NewServer(server.NewRouter(hub, &config.Server{}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func connect(t *testing.T, url string) *Handler {
	t.Helper()
	client := NewClient(url, quietLogger())
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, client.Connect(ctx))
	t.Cleanup(client.Close)

	h := NewHandler(client)
	go h.Start()
	return h
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestHandler_LoginAndJoin(t *testing.T) {
	url := startRelay(t)
	alice := connect(t, url)
	bob := connect(t, url)
	ctx := testContext(t)

	require.NoError(t, alice.Login(ctx, "alice", "tok"))
	require.NoError(t, alice.Join(ctx, "alice", "r1"))
	require.NoError(t, bob.Login(ctx, "bob", ""))
	require.NoError(t, bob.Join(ctx, "bob", "r1"))

	select {
	case ev := <-alice.Joined:
		assert.Equal(t, protocol.JoinRoomEvent{UserID: "bob", RoomID: "r1"}, ev)
	case <-ctx.Done():
		t.Fatal("alice never saw bob join")
	}

	require.NoError(t, bob.client.Send(protocol.EventEnterMessage,
		protocol.EnterMessageRequest{RoomID: "r1", Message: "hello"}))

	select {
	case msg := <-alice.Messages:
		assert.Equal(t, "bob", msg.UserID)
		assert.Equal(t, "hello", msg.Message)
		assert.True(t, strings.HasSuffix(msg.MessageID, "bobr1"))
	case <-ctx.Done():
		t.Fatal("message not delivered")
	}
}

func TestHandler_LoginRejected(t *testing.T) {
	url := startRelay(t)
	first := connect(t, url)
	second := connect(t, url)
	ctx := testContext(t)

	require.NoError(t, first.Login(ctx, "alice", ""))

	err := second.Login(ctx, "alice", "")
	require.ErrorIs(t, err, ErrRejected)

	var sigErr *Error
	require.ErrorAs(t, err, &sigErr)
	assert.Equal(t, protocol.CodeAlreadyLoggedIn, sigErr.Code)
	assert.Equal(t, "login", sigErr.Op)
}

func TestHandler_JoinRequiresLogin(t *testing.T) {
	url := startRelay(t)
	h := connect(t, url)

	err := h.Join(testContext(t), "alice", "r1")
	var sigErr *Error
	require.ErrorAs(t, err, &sigErr)
	assert.Equal(t, protocol.CodeNotLoggedIn, sigErr.Code)
}

func TestHandler_RelaysSignaling(t *testing.T) {
	url := startRelay(t)
	alice := connect(t, url)
	bob := connect(t, url)
	ctx := testContext(t)

	require.NoError(t, alice.Login(ctx, "alice", ""))
	require.NoError(t, bob.Login(ctx, "bob", ""))
	require.NoError(t, bob.Join(ctx, "bob", "r1"))
	require.NoError(t, alice.Join(ctx, "alice", "r1"))
	<-bob.Joined

	require.NoError(t, alice.client.Send(protocol.EventStartVideoChat, protocol.RoomRequest{RoomID: "r1"}))

	var toAlice, toBob protocol.StartVideoChatEvent
	select {
	case toAlice = <-alice.StartVideoChat:
	case <-ctx.Done():
		t.Fatal("no startVideoChat for alice")
	}
	select {
	case toBob = <-bob.StartVideoChat:
	case <-ctx.Done():
		t.Fatal("no startVideoChat for bob")
	}
	assert.True(t, toAlice.CreateOffer)
	assert.False(t, toBob.CreateOffer)

	candidate := json.RawMessage(`{"candidate":"candidate:1 1 udp 1 10.0.0.1 4000 typ host"}`)
	require.NoError(t, bob.client.Send(protocol.EventRelayICECandidate, protocol.ICECandidateRelay{
		SocketID:     toBob.SocketID,
		ICECandidate: candidate,
	}))

	select {
	case relayed := <-alice.ICECandidate:
		assert.Equal(t, toAlice.SocketID, relayed.SocketID)
		assert.JSONEq(t, string(candidate), string(relayed.ICECandidate))
	case <-ctx.Done():
		t.Fatal("candidate not relayed")
	}
}

func TestClient_SendBeforeConnect(t *testing.T) {
	c := NewClient("ws://127.0.0.1:1/ws", quietLogger())
	err := c.Send(protocol.EventLogin, protocol.LoginRequest{UserID: "alice"})
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestClient_SendAfterClose(t *testing.T) {
	url := startRelay(t)
	h := connect(t, url)
	h.client.Close()
	h.client.Close()

	err := h.client.Send(protocol.EventLogin, protocol.LoginRequest{UserID: "a"})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestClient_ConnectInvalidURL(t *testing.T) {
	c := NewClient("://bad", quietLogger())
	err := c.Connect(context.Background())
	assert.ErrorIs(t, err, ErrInvalidServer)
}

func TestHandler_StartEndsWhenNobodyReads(t *testing.T) {
	client := NewClient("ws://127.0.0.1:1/ws", quietLogger())
	h := NewHandler(client)

	finished := make(chan struct{})
	go func() {
		h.Start()
		close(finished)
	}()

	const frames = 40
	go func() {
		for i := range frames {
			msg, err := protocol.NewMessage(protocol.EventEnterMessage, protocol.EnterMessageEvent{
				MessageID: fmt.Sprintf("%dalicer1", i),
				UserID:    "alice",
				RoomID:    "r1",
				Message:   "hi",
			})
			if err != nil {
				return
			}
			client.incoming <- msg
		}
		close(client.incoming)
	}()

	require.Eventually(t, func() bool { return len(h.Messages) == cap(h.Messages) }, 2*time.Second, 10*time.Millisecond)
	select {
	case <-finished:
		t.Fatal("Start returned while frames were still pending")
	default:
	}

	client.Close()
	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("Start still blocked after the client closed")
	}
}
