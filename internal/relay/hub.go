package relay

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"golang.org/x/time/rate"

	"github.com/BioHazard786/huddle/internal/protocol"
)

// ErrHubClosed is returned by calls made after Run has returned.
var ErrHubClosed = errors.New("hub closed")

// HubConfig sizes the hub and the per-connection limits it enforces.
type HubConfig struct {
	// LedgerCapacity bounds the number of remembered message ids; 0 = unbounded.
	LedgerCapacity int

	// EventRate and EventBurst limit inbound events per connection. A zero
	// EventRate disables limiting.
	EventRate  float64
	EventBurst int

	Logger *slog.Logger
}

// inbound is one frame read from a client, or the reason it could not be
// decoded.
type inbound struct {
	client *Client
	msg    *protocol.Message
	err    error
}

// Stats is a consistent snapshot of relay state.
type Stats struct {
	Connections int   `json:"connections"`
	Identities  int   `json:"identities"`
	Rooms       int   `json:"rooms"`
	Messages    int   `json:"messages"`
	Events      int64 `json:"events"`
	Failures    int64 `json:"failures"`
	Duplicates  int64 `json:"duplicates"`
}

// Hub is the central event loop of the relay. Every connect, disconnect and
// inbound event goes through Run, one at a time, so the router and the state
// it owns never see concurrent access.
type Hub struct {
	register   chan *Client
	unregister chan *Client
	inbound    chan inbound
	stats      chan chan Stats
	done       chan struct{}

	// clients is only touched from Run.
	clients map[string]*Client

	registry *Registry
	members  *Membership
	ledger   *Ledger
	counters *Counters
	router   *Router

	eventRate  rate.Limit
	eventBurst int
	logger     *slog.Logger
}

func NewHub(cfg HubConfig) *Hub {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	h := &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan inbound),
		stats:      make(chan chan Stats),
		done:       make(chan struct{}),
		clients:    make(map[string]*Client),
		registry:   NewRegistry(),
		members:    NewMembership(),
		ledger:     NewLedger(cfg.LedgerCapacity),
		counters:   &Counters{},
		eventRate:  rate.Limit(cfg.EventRate),
		eventBurst: cfg.EventBurst,
		logger:     logger,
	}
	if cfg.EventRate <= 0 {
		h.eventRate = rate.Inf
	}
	if h.eventBurst <= 0 {
		h.eventBurst = 1
	}
	h.router = NewRouter(h.registry, h.members, h.ledger, h,
		WithObserver(MultiObserver(NewLogObserver(logger), h.counters)))
	return h
}

// Run processes hub events until ctx is cancelled. On return every client's
// send queue is closed, which makes its write pump hang up.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		for id, c := range h.clients {
			close(c.send)
			delete(h.clients, id)
		}
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("hub stopping", "clients", len(h.clients))
			return

		case c := <-h.register:
			h.clients[c.ID] = c
			h.logger.Info("client connected", "connId", c.ID, "clients", len(h.clients))

		case c := <-h.unregister:
			if _, ok := h.clients[c.ID]; !ok {
				continue
			}
			h.router.Disconnect(c.ID)
			delete(h.clients, c.ID)
			close(c.send)
			h.logger.Info("client disconnected", "connId", c.ID, "clients", len(h.clients))

		case in := <-h.inbound:
			if _, ok := h.clients[in.client.ID]; !ok {
				continue
			}
			if in.err != nil {
				h.router.Reject(in.client.ID, wrapError("frame", ErrInvalidPayload, in.err.Error()))
				continue
			}
			if limited(in.msg.Type) && !in.client.limiter.Allow() {
				h.router.Reject(in.client.ID, newError(in.msg.Type, ErrRateLimited))
				continue
			}
			h.router.Handle(in.client.ID, in.msg)

		case reply := <-h.stats:
			reply <- h.snapshot()
		}
	}
}

// Send queues a frame for connID without blocking. It implements Outbound and
// must only be called from the Run goroutine.
func (h *Hub) Send(connID, event string, payload any) {
	c, ok := h.clients[connID]
	if !ok {
		h.logger.Debug("send to unknown connection dropped", "connId", connID, "event", event)
		return
	}

	msg, err := protocol.NewMessage(event, payload)
	if err != nil {
		h.logger.Error("encode frame", "event", event, "error", err)
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("encode frame", "event", event, "error", err)
		return
	}

	select {
	case c.send <- data:
	default:
		h.logger.Warn("send queue full, frame dropped", "connId", connID, "event", event)
	}
}

// Stats asks the Run goroutine for a snapshot.
func (h *Hub) Stats(ctx context.Context) (Stats, error) {
	reply := make(chan Stats, 1)
	select {
	case h.stats <- reply:
	case <-h.done:
		return Stats{}, ErrHubClosed
	case <-ctx.Done():
		return Stats{}, ctx.Err()
	}

	select {
	case s := <-reply:
		return s, nil
	case <-ctx.Done():
		return Stats{}, ctx.Err()
	}
}

// Done is closed once Run has returned.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

func (h *Hub) snapshot() Stats {
	return Stats{
		Connections: len(h.clients),
		Identities:  h.registry.Len(),
		Rooms:       h.members.Len(),
		Messages:    h.ledger.Len(),
		Events:      h.counters.Events(),
		Failures:    h.counters.Failures(),
		Duplicates:  h.counters.Duplicates(),
	}
}

// limited reports whether event draws from the per-connection rate limit.
// Relayed ICE candidates and session descriptions are never refused.
func limited(event string) bool {
	switch event {
	case protocol.EventRelayICECandidate, protocol.EventRelaySessionDescription:
		return false
	}
	return true
}

func (h *Hub) newLimiter() *rate.Limiter {
	return rate.NewLimiter(h.eventRate, h.eventBurst)
}

// connect hands c to the loop. It reports false if the hub has stopped.
func (h *Hub) connect(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) disconnect(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) deliver(in inbound) {
	select {
	case h.inbound <- in:
	case <-h.done:
	}
}
