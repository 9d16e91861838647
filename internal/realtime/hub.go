package realtime

import (
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/charlesng35/dealcache/internal/monitoring"
	"github.com/charlesng35/dealcache/pkg/logger"
)

// Message is the JSON frame delivered to subscribers.
type Message struct {
	Stream string         `json:"stream"`
	Event  string         `json:"event"`
	Data   any            `json:"data,omitempty"`
	Meta   map[string]any `json:"meta,omitempty"`
}

// Publisher is the sending side of the hub. An empty owner addresses every subscriber of the
// message's stream; otherwise only that owner's connections receive it.
type Publisher interface {
	Publish(owner string, message Message)
}

type clientSet map[*client]struct{}

// Hub routes messages to websocket clients by stream and owner.
//
// The last device-wide message of each stream is retained and replayed to new subscribers,
// so a client that connects while offline learns the connectivity state and the outcome of
// the last sync without waiting for the next event.
type Hub struct {
	mu      sync.Mutex
	known   map[string]struct{}
	subs    map[string]map[string]clientSet // stream -> owner -> clients
	latest  map[string]Message
	clients int64

	upgrader websocket.Upgrader
	log      *zap.Logger
}

// NewHub builds a hub serving streams, or DefaultStreams when none are given.
func NewHub(streams ...string) *Hub {
	if len(streams) == 0 {
		streams = DefaultStreams
	}
	known := make(map[string]struct{}, len(streams))
	for _, s := range NormalizeStreams(streams) {
		known[s] = struct{}{}
	}
	return &Hub{
		known:  known,
		subs:   make(map[string]map[string]clientSet),
		latest: make(map[string]Message),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     sameHostOrLoopback,
		},
		log: logger.WithModule("realtime"),
	}
}

// Accepts reports whether stream belongs to the hub.
func (h *Hub) Accepts(stream string) bool {
	_, ok := h.known[normalizeStream(stream)]
	return ok
}

// Clients returns the number of open connections.
func (h *Hub) Clients() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.clients
}

// Serve upgrades the request and blocks until the client goes away.
func (h *Hub) Serve(owner string, streams []string, w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.String("owner", owner), zap.Error(err))
		monitoring.RecordRealtimeFailure("handshake", "upgrade", err.Error())
		return
	}

	c := newClient(h, conn, owner)
	h.mu.Lock()
	h.clients++
	monitoring.SetRealtimeConnections(h.clients)
	h.mu.Unlock()

	h.subscribe(c, streams)
	go c.writePump()
	c.readPump()
}

// Publish implements Publisher.
func (h *Hub) Publish(owner string, message Message) {
	message.Stream = normalizeStream(message.Stream)
	if !h.Accepts(message.Stream) {
		h.log.Debug("dropping message for unknown stream", zap.String("stream", message.Stream))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if owner == "" {
		h.latest[message.Stream] = message
		for _, set := range h.subs[message.Stream] {
			h.deliver(set, message)
		}
	} else {
		h.deliver(h.subs[message.Stream][owner], message)
	}
	monitoring.RecordRealtimeBroadcast(message.Stream)
}

func (h *Hub) subscribe(c *client, streams []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c.closed {
		return
	}

	for _, stream := range NormalizeStreams(streams) {
		if _, ok := h.known[stream]; !ok {
			h.log.Debug("ignoring unknown stream", zap.String("stream", stream), zap.String("owner", c.owner))
			continue
		}
		if _, ok := c.streams[stream]; ok {
			continue
		}
		byOwner := h.subs[stream]
		if byOwner == nil {
			byOwner = make(map[string]clientSet)
			h.subs[stream] = byOwner
		}
		if byOwner[c.owner] == nil {
			byOwner[c.owner] = make(clientSet)
		}
		byOwner[c.owner][c] = struct{}{}
		c.streams[stream] = struct{}{}
		monitoring.RecordRealtimeSubscription(stream, "subscribe")

		if last, ok := h.latest[stream]; ok {
			h.offer(c, last)
		}
	}
}

func (h *Hub) unsubscribe(c *client, streams []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, stream := range NormalizeStreams(streams) {
		if _, ok := c.streams[stream]; !ok {
			continue
		}
		h.detach(c, stream)
		delete(c.streams, stream)
		monitoring.RecordRealtimeSubscription(stream, "unsubscribe")
	}
}

// remove drops c from every stream and closes its send queue.
func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	for stream := range c.streams {
		h.detach(c, stream)
	}
	close(c.send)
	h.clients--
	monitoring.SetRealtimeConnections(h.clients)
}

// detach requires h.mu.
func (h *Hub) detach(c *client, stream string) {
	byOwner := h.subs[stream]
	delete(byOwner[c.owner], c)
	if len(byOwner[c.owner]) == 0 {
		delete(byOwner, c.owner)
	}
	if len(byOwner) == 0 {
		delete(h.subs, stream)
	}
}

// deliver requires h.mu.
func (h *Hub) deliver(set clientSet, message Message) {
	for c := range set {
		h.offer(c, message)
	}
}

// offer queues message without blocking. A client whose queue is full is disconnected; it
// can reconnect and pick up the retained state.
func (h *Hub) offer(c *client, message Message) {
	select {
	case c.send <- message:
	default:
		h.log.Warn("disconnecting slow client", zap.String("owner", c.owner), zap.String("stream", message.Stream))
		monitoring.RecordRealtimeFailure(message.Stream, "backpressure", "send queue full")
		go c.close()
	}
}

func sameHostOrLoopback(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	originHost := u.Hostname()
	if host, _, err := net.SplitHostPort(r.Host); err == nil {
		if strings.EqualFold(originHost, host) {
			return true
		}
	} else if strings.EqualFold(originHost, r.Host) {
		return true
	}
	if ip := net.ParseIP(originHost); ip != nil {
		return ip.IsLoopback()
	}
	return strings.EqualFold(originHost, "localhost")
}
