// Package websocket pushes post events to subscribed browsers. Events are
// hints to refetch, never authoritative state.
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"moments/auth"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 512
	sendBuffer     = 64
	broadcastQueue = 256
)

// TokenParser validates the token query parameter.
type TokenParser interface {
	Parse(token string) (*auth.Claims, error)
}

// Observer receives connection and delivery counts.
type Observer interface {
	ClientConnected()
	ClientDisconnected()
	EventDelivered(eventType string)
}

type nopObserver struct{}

func (nopObserver) ClientConnected()      {}
func (nopObserver) ClientDisconnected()   {}
func (nopObserver) EventDelivered(string) {}

// Event is the frame pushed to clients.
type Event struct {
	Type    string `json:"type"`
	PostID  string `json:"postId,omitempty"`
	Payload any    `json:"payload,omitempty"`
}

// inbound is what clients send.
type inbound struct {
	Type   string `json:"type"`
	PostID string `json:"postId"`
}

type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	posts   map[string]map[*Client]struct{}

	unregister chan *Client
	broadcast  chan Event
	done       chan struct{}
	stopped    bool

	tokens   TokenParser
	obs      Observer
	log      *zap.Logger
	upgrader websocket.Upgrader
}

type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	userID string
	send   chan []byte
	posts  map[string]struct{}
}

func NewHub(tokens TokenParser, obs Observer, log *zap.Logger) *Hub {
	if obs == nil {
		obs = nopObserver{}
	}
	return &Hub{
		clients:    make(map[*Client]struct{}),
		posts:      make(map[string]map[*Client]struct{}),
		unregister: make(chan *Client),
		broadcast:  make(chan Event, broadcastQueue),
		done:       make(chan struct{}),
		tokens:     tokens,
		obs:        obs,
		log:        log.Named("websocket"),
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// Run owns unregistration and fan-out until ctx is cancelled, then closes
// every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case c := <-h.unregister:
			h.mu.Lock()
			h.remove(c)
			h.mu.Unlock()

		case ev := <-h.broadcast:
			h.deliver(ev)

		case <-ctx.Done():
			h.mu.Lock()
			h.stopped = true
			for c := range h.clients {
				h.remove(c)
			}
			h.mu.Unlock()
			return
		}
	}
}

func (h *Hub) add(c *Client) bool {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return false
	}
	h.clients[c] = struct{}{}
	total := len(h.clients)
	h.mu.Unlock()

	h.obs.ClientConnected()
	h.log.Debug("client registered", zap.String("user_id", c.userID), zap.Int("clients", total))
	return true
}

// remove must be called with mu held.
func (h *Hub) remove(c *Client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	for postID := range c.posts {
		h.dropSubscription(c, postID)
	}
	delete(h.clients, c)
	close(c.send)
	h.obs.ClientDisconnected()
}

func (h *Hub) dropSubscription(c *Client, postID string) {
	subs := h.posts[postID]
	delete(subs, c)
	if len(subs) == 0 {
		delete(h.posts, postID)
	}
	delete(c.posts, postID)
}

func (h *Hub) deliver(ev Event) {
	msg, err := json.Marshal(ev)
	if err != nil {
		h.log.Error("marshal event", zap.Error(err), zap.String("type", ev.Type))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.posts[ev.PostID] {
		select {
		case c.send <- msg:
			h.obs.EventDelivered(ev.Type)
		default:
			h.log.Warn("slow client dropped", zap.String("user_id", c.userID))
			h.remove(c)
		}
	}
}

// Publish queues an event for the post's subscribers. It never blocks; events
// are dropped when the queue is full or the hub has stopped.
func (h *Hub) Publish(eventType, postID string, payload any) {
	select {
	case <-h.done:
		return
	default:
	}
	select {
	case h.broadcast <- Event{Type: eventType, PostID: postID, Payload: payload}:
	default:
		h.log.Warn("event dropped", zap.String("type", eventType), zap.String("post_id", postID))
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Subscribers returns the number of clients watching postID.
func (h *Hub) Subscribers(postID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.posts[postID])
}

// ServeWS upgrades GET /ws?token=<jwt>.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		writeJSONError(w, http.StatusUnauthorized, "Token required")
		return
	}
	claims, err := h.tokens.Parse(token)
	if err != nil {
		writeJSONError(w, http.StatusUnauthorized, "Invalid token")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("upgrade failed", zap.Error(err))
		return
	}

	c := &Client{
		hub:    h,
		conn:   conn,
		userID: claims.UserID,
		send:   make(chan []byte, sendBuffer),
		posts:  make(map[string]struct{}),
	}
	if !h.add(c) {
		_ = conn.Close()
		return
	}

	c.reply(Event{Type: "connected", Payload: map[string]any{"userId": c.userID}})
	go c.writePump()
	go c.readPump()
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"code":    "UNAUTHORIZED",
		"message": message,
	})
}

func (h *Hub) subscribe(c *Client, postID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return false
	}
	subs, ok := h.posts[postID]
	if !ok {
		subs = make(map[*Client]struct{})
		h.posts[postID] = subs
	}
	subs[c] = struct{}{}
	c.posts[postID] = struct{}{}
	return true
}

func (h *Hub) unsubscribe(c *Client, postID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := c.posts[postID]; ok {
		h.dropSubscription(c, postID)
	}
}

// reply queues a direct response. It is a no-op once the client is removed.
func (c *Client) reply(ev Event) {
	msg, err := json.Marshal(ev)
	if err != nil {
		return
	}
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if _, ok := c.hub.clients[c]; !ok {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Debug("read error", zap.Error(err), zap.String("user_id", c.userID))
			}
			return
		}

		var msg inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			c.reply(Event{Type: "error", Payload: map[string]any{"message": "Malformed message"}})
			continue
		}

		switch msg.Type {
		case "subscribe":
			if !primitive.IsValidObjectID(msg.PostID) {
				c.reply(Event{Type: "error", Payload: map[string]any{"message": "Invalid post ID"}})
				continue
			}
			if c.hub.subscribe(c, msg.PostID) {
				c.reply(Event{Type: "subscribed", PostID: msg.PostID})
			}
		case "unsubscribe":
			c.hub.unsubscribe(c, msg.PostID)
			c.reply(Event{Type: "unsubscribed", PostID: msg.PostID})
		case "ping":
			c.reply(Event{Type: "pong", Payload: map[string]any{"time": time.Now().Unix()}})
		default:
			c.reply(Event{Type: "error", Payload: map[string]any{"message": "Unknown message type"}})
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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
