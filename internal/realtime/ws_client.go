package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// WebSocketClient implements Client over a gorilla/websocket connection.
type WebSocketClient struct {
	userID    uint
	sessionID string
	token     string

	conn     *websocket.Conn
	registry *Registry
	router   *Router
	send     chan Envelope
	log      *logrus.Logger

	done      chan struct{}
	closeOnce sync.Once
}

func NewWebSocketClient(conn *websocket.Conn, userID uint, token string, registry *Registry, router *Router, log *logrus.Logger) *WebSocketClient {
	return &WebSocketClient{
		userID:    userID,
		sessionID: uuid.New().String(),
		token:     token,
		conn:      conn,
		registry:  registry,
		router:    router,
		send:      make(chan Envelope, 256),
		log:       log,
		done:      make(chan struct{}),
	}
}

func (c *WebSocketClient) UserID() uint          { return c.userID }
func (c *WebSocketClient) SessionID() string     { return c.sessionID }
func (c *WebSocketClient) Token() string         { return c.token }
func (c *WebSocketClient) Send() chan<- Envelope { return c.send }

// Run starts the read and write pumps.
func (c *WebSocketClient) Run() {
	go c.writePump()
	go c.readPump()
}

// Close signals shutdown and is safe to call more than once and from any
// goroutine. The send channel is never closed: the registry and in-flight
// handlers may still be writing to it, and the write pump is its only
// consumer.
func (c *WebSocketClient) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *WebSocketClient) readPump() {
	defer func() {
		c.registry.Unregister(context.Background(), c)
		c.Close()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.WithError(err).WithField("user_id", c.userID).Warn("ws: read error")
			}
			break
		}

		var env Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			c.log.WithError(err).WithField("user_id", c.userID).Warn("ws: dropping malformed frame")
			continue
		}

		// Each inbound event gets its own context; a disconnect aborts only
		// this socket's in-flight handlers.
		c.router.Dispatch(context.Background(), c, env)
	}
}

func (c *WebSocketClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case env := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			data, err := json.Marshal(env)
			if err != nil {
				c.log.WithError(err).Error("ws: encode outbound frame")
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

			// Drain whatever queued up while we were writing.
			n := len(c.send)
			for i := 0; i < n; i++ {
				next := <-c.send
				extra, err := json.Marshal(next)
				if err != nil {
					continue
				}
				if err := c.conn.WriteMessage(websocket.TextMessage, extra); err != nil {
					return
				}
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
