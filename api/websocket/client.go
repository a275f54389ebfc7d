package websocket

import (
	"time"

	"cosmossdk.io/log"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/openalpha/classdex/metrics"
	"github.com/openalpha/classdex/session"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 4096

	// Size of the send buffer
	sendBufferSize = 256

	// Inbound command budget per connection
	messagesPerSecond = 20
	messageBurst      = 40
)

// Client is one WebSocket connection. Its ID doubles as the trading
// user ID for the session layer, so a socket is a participant.
type Client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	done chan struct{}

	dispatcher *session.Dispatcher
	limiter    *rate.Limiter
	logger     log.Logger
	metrics    *metrics.Collector

	connectedAt time.Time
}

func newClient(id string, conn *websocket.Conn, dispatcher *session.Dispatcher, logger log.Logger) *Client {
	return &Client{
		id:          id,
		conn:        conn,
		send:        make(chan []byte, sendBufferSize),
		done:        make(chan struct{}),
		dispatcher:  dispatcher,
		limiter:     rate.NewLimiter(messagesPerSecond, messageBurst),
		logger:      logger.With("conn", id),
		metrics:     metrics.GetCollector(),
		connectedAt: time.Now(),
	}
}

// ID implements session.Conn.
func (c *Client) ID() string {
	return c.id
}

// Send implements session.Conn. It never blocks; a full buffer drops
// the frame and reports false.
func (c *Client) Send(data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// readPump feeds inbound frames to the dispatcher until the connection
// dies, then detaches the viewer from its session. The send channel is
// never closed because the session worker may still hold a reference;
// writePump exits through the done signal instead.
func (c *Client) readPump() {
	defer func() {
		c.dispatcher.Disconnect(c)
		c.metrics.RecordWSConnection(-1)
		close(c.done)
		c.conn.Close()
		c.logger.Info("client disconnected", "connected_for", time.Since(c.connectedAt).String())
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Debug("websocket read error", "err", err)
			}
			break
		}

		if !c.limiter.Allow() {
			c.metrics.RecordWSDropped("rate_limit")
			continue
		}

		c.dispatcher.Handle(c, message)
	}
}

// writePump drains the send buffer to the peer and keeps the connection
// alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			_, _ = w.Write(message)

			// Add queued messages to the current WebSocket message
			n := len(c.send)
			for i := 0; i < n; i++ {
				_, _ = w.Write([]byte{'\n'})
				_, _ = w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}
