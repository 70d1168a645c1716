package commands

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BioHazard786/huddle/internal/config"
	"github.com/BioHazard786/huddle/internal/logging"
	"github.com/BioHazard786/huddle/internal/peer"
	"github.com/BioHazard786/huddle/internal/protocol"
	"github.com/BioHazard786/huddle/internal/relay"
	"github.com/BioHazard786/huddle/internal/server"
	"github.com/BioHazard786/huddle/internal/signaling"
	"github.com/BioHazard786/huddle/internal/ui"
)

type sink struct {
	mu   sync.Mutex
	msgs []tea.Msg
}

func (s *sink) Send(msg tea.Msg) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg)
}

func (s *sink) find(match func(tea.Msg) bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.msgs {
		if match(m) {
			return true
		}
	}
	return false
}

func startRelay(t *testing.T) (*relay.Hub, *httptest.Server) {
	t.Helper()
	hub := relay.NewHub(relay.HubConfig{Logger: logging.Discard()})
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-hub.Done()
	})

	srv := httptest.NewServer(server.NewRouter(hub, &config.Server{}))
	t.Cleanup(srv.Close)
	return hub, srv
}

func joinSession(t *testing.T, srv *httptest.Server, user, room string) (*ChatSession, *sink) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	client := signaling.NewClient(url, logging.Discard())
	require.NoError(t, client.Connect(ctx))
	t.Cleanup(client.Close)

	handler := signaling.NewHandler(client)
	go handler.Start()
	require.NoError(t, handler.Login(ctx, user, ""))
	require.NoError(t, handler.Join(ctx, user, room))

	manager, err := peer.NewManager(client, peer.Config{Logger: logging.Discard()})
	require.NoError(t, err)
	t.Cleanup(func() { manager.CloseAll(true) })

	session := NewChatSession(user, room, client, handler, manager)
	s := &sink{}
	done := make(chan struct{})
	go session.Pump(s, done)
	t.Cleanup(func() { close(done) })
	return session, s
}

func TestFetchStats(t *testing.T) {
	_, srv := startRelay(t)

	stats, err := fetchStats(context.Background(), srv.Client(), srv.URL+"/stats")
	require.NoError(t, err)
	assert.Equal(t, relay.Stats{}, stats)

	_, err = fetchStats(context.Background(), srv.Client(), srv.URL+"/missing")
	assert.ErrorContains(t, err, "404")

	_, err = fetchStats(context.Background(), srv.Client(), "")
	assert.Error(t, err)
}

func TestChatSession_MessagesReachTheRoom(t *testing.T) {
	_, srv := startRelay(t)
	alice, aliceSink := joinSession(t, srv, "alice", "lobby")
	_, bobSink := joinSession(t, srv, "bob", "lobby")

	require.Eventually(t, func() bool {
		return aliceSink.find(func(m tea.Msg) bool {
			j, ok := m.(ui.JoinedMsg)
			return ok && j.UserID == "bob"
		})
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, alice.SetTyping(true))
	require.NoError(t, alice.SendMessage("hello bob"))

	require.Eventually(t, func() bool {
		return bobSink.find(func(m tea.Msg) bool {
			tm, ok := m.(ui.TypingMsg)
			return ok && tm.UserID == "alice" && tm.IsTyping
		})
	}, 2*time.Second, 10*time.Millisecond)

	var messageID string
	require.Eventually(t, func() bool {
		return bobSink.find(func(m tea.Msg) bool {
			mm, ok := m.(ui.MessageMsg)
			if ok && mm.Message == "hello bob" {
				messageID = mm.MessageID
				return true
			}
			return false
		})
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, alice.DeleteMessage(messageID))
	require.Eventually(t, func() bool {
		return bobSink.find(func(m tea.Msg) bool {
			d, ok := m.(ui.DeletedMsg)
			return ok && d.MessageID == messageID
		})
	}, 2*time.Second, 10*time.Millisecond)
}

func TestChatSession_FailuresSurface(t *testing.T) {
	_, srv := startRelay(t)
	bob, bobSink := joinSession(t, srv, "bob", "lobby")

	require.NoError(t, bob.DeleteMessage("1alicelobby"))

	require.Eventually(t, func() bool {
		return bobSink.find(func(m tea.Msg) bool {
			e, ok := m.(ui.ErrorMsg)
			var sigErr *signaling.Error
			return ok && errors.As(e.Err, &sigErr) && sigErr.Code == protocol.CodeMessageNotFound
		})
	}, 2*time.Second, 10*time.Millisecond)
}

func TestChatSession_HangUpWithoutPeers(t *testing.T) {
	_, srv := startRelay(t)
	alice, aliceSink := joinSession(t, srv, "alice", "lobby")

	require.NoError(t, alice.StartCall())
	require.NoError(t, alice.HangUp())

	_, err := alice.SendDirect("anyone")
	assert.ErrorIs(t, err, peer.ErrChannelNotOpen)

	// The relay echoes our own stopVideoChat; it must not reach the screen.
	time.Sleep(100 * time.Millisecond)
	assert.False(t, aliceSink.find(func(m tea.Msg) bool {
		_, ok := m.(ui.StopVideoMsg)
		return ok
	}))
}
