package realtime

import (
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxControlSize = 4 << 10
	sendQueueSize  = 64
)

// control is a frame sent by the client to change its subscriptions or check liveness.
type control struct {
	Action  string   `json:"action"`
	Streams []string `json:"streams"`
}

type client struct {
	hub   *Hub
	conn  *websocket.Conn
	owner string
	send  chan Message
	once  sync.Once

	// guarded by hub.mu
	streams map[string]struct{}
	closed  bool
}

func newClient(hub *Hub, conn *websocket.Conn, owner string) *client {
	return &client{
		hub:     hub,
		conn:    conn,
		owner:   owner,
		send:    make(chan Message, sendQueueSize),
		streams: make(map[string]struct{}),
	}
}

func (c *client) readPump() {
	defer c.close()

	c.conn.SetReadLimit(maxControlSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.log.Debug("client closed unexpectedly", zap.String("owner", c.owner), zap.Error(err))
			}
			return
		}
		var ctrl control
		if err := json.Unmarshal(payload, &ctrl); err != nil {
			c.hub.log.Debug("invalid control frame", zap.String("owner", c.owner), zap.Error(err))
			continue
		}
		c.handle(ctrl)
	}
}

func (c *client) handle(ctrl control) {
	switch strings.ToLower(strings.TrimSpace(ctrl.Action)) {
	case "subscribe":
		c.hub.subscribe(c, ctrl.Streams)
	case "unsubscribe":
		c.hub.unsubscribe(c, ctrl.Streams)
	case "ping":
		c.reply(Message{Event: "pong"})
	default:
		c.hub.log.Debug("unknown control action", zap.String("action", ctrl.Action), zap.String("owner", c.owner))
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteJSON(message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// reply answers a control frame. Replies are dropped rather than disconnecting the client.
func (c *client) reply(message Message) {
	c.hub.mu.Lock()
	defer c.hub.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- message:
	default:
	}
}

func (c *client) close() {
	c.once.Do(func() {
		c.hub.remove(c)
		_ = c.conn.Close()
	})
}
