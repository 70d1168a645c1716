package relay

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/BioHazard786/huddle/internal/protocol"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// DefaultMaxMessageSize is enough for SDP blobs.
	DefaultMaxMessageSize = 64 * 1024

	// DefaultSendBuffer is the number of outbound frames queued per client.
	DefaultSendBuffer = 256
)

// ClientOptions tunes a single connection.
type ClientOptions struct {
	MaxMessageSize int64
	SendBuffer     int
}

// Client is a wrapper for a single websocket connection.
type Client struct {
	// ID is the connection id peers see as socketId.
	ID string

	hub  *Hub
	conn *websocket.Conn

	// send is a buffered queue of encoded frames. The hub writes to it and
	// closes it; WritePump drains it to the websocket.
	send chan []byte

	limiter        *rate.Limiter
	maxMessageSize int64
}

// NewClient wraps conn with a fresh connection id.
func NewClient(hub *Hub, conn *websocket.Conn, opts ClientOptions) *Client {
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = DefaultMaxMessageSize
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = DefaultSendBuffer
	}
	return &Client{
		ID:             uuid.NewString(),
		hub:            hub,
		conn:           conn,
		send:           make(chan []byte, opts.SendBuffer),
		limiter:        hub.newLimiter(),
		maxMessageSize: opts.MaxMessageSize,
	}
}

// Serve registers the client with the hub and starts its pumps. It returns
// false, leaving the connection closed, if the hub is no longer running.
func (c *Client) Serve() bool {
	if !c.hub.connect(c) {
		c.conn.Close()
		return false
	}
	go c.WritePump()
	go c.ReadPump()
	return true
}

// ReadPump pumps messages from the websocket connection to the hub.
//
// The application runs ReadPump in a per-connection goroutine. The application
// ensures that there is at most one reader on a connection by executing all
// reads from this goroutine.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.disconnect(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("read error", "connId", c.ID, "error", err)
			}
			return
		}

		var msg protocol.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.hub.deliver(inbound{client: c, err: err})
			continue
		}
		c.hub.deliver(inbound{client: c, msg: &msg})
	}
}

// WritePump pumps messages from the hub to the websocket connection.
//
// A goroutine running WritePump is started for each connection. The
// application ensures that there is at most one writer to a connection by
// executing all writes from this goroutine.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.hub.logger.Debug("write error", "connId", c.ID, "error", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
