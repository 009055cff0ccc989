package api

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"larder/internal/taxonomy"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// wsClient is one websocket connection of a user
type wsClient struct {
	user string
	conn *websocket.Conn
	send chan []byte
}

// Hub pushes catalog events to every websocket connection of a user
type Hub struct {
	logger *log.Logger

	mu      sync.RWMutex
	clients map[string]map[*wsClient]struct{}
}

// NewHub creates an empty hub
func NewHub(logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.Default()
	}
	return &Hub{
		logger:  logger,
		clients: make(map[string]map[*wsClient]struct{}),
	}
}

// CatalogObserver adapts the hub to workspace catalog events
func (h *Hub) CatalogObserver() func(user string, ev taxonomy.Event) {
	return func(user string, ev taxonomy.Event) {
		h.Publish(user, ev)
	}
}

func (h *Hub) register(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[c.user] == nil {
		h.clients[c.user] = make(map[*wsClient]struct{})
	}
	h.clients[c.user][c] = struct{}{}
}

func (h *Hub) unregister(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set := h.clients[c.user]; set != nil {
		if _, ok := set[c]; ok {
			delete(set, c)
			close(c.send)
		}
		if len(set) == 0 {
			delete(h.clients, c.user)
		}
	}
}

// ClientCount returns the number of connections of user
func (h *Hub) ClientCount(user string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[user])
}

// Connections returns the number of open connections across all users
func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, set := range h.clients {
		n += len(set)
	}
	return n
}

// Publish sends payload as JSON to every connection of user. A connection
// whose buffer is full misses the message.
func (h *Hub) Publish(user string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Printf("Error marshaling websocket message: %v", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients[user] {
		select {
		case c.send <- data:
		default:
			h.logger.Printf("WebSocket buffer full for %s, dropping message", user)
		}
	}
}

// Disconnect closes every connection of user
func (h *Hub) Disconnect(user string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients[user] {
		close(c.send)
	}
	delete(h.clients, user)
}

// Close closes every connection
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for user, set := range h.clients {
		for c := range set {
			close(c.send)
		}
		delete(h.clients, user)
	}
}

// serve upgrades the request and runs the pumps for user
func (h *Hub) serve(c *gin.Context, user string) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Printf("Failed to upgrade connection: %v", err)
		return
	}

	client := &wsClient{
		user: user,
		conn: conn,
		send: make(chan []byte, 64),
	}
	h.register(client)

	go h.writePump(client)
	h.readPump(client)
}

// readPump discards client messages and notices the close
func (h *Hub) readPump(c *wsClient) {
	defer func() {
		h.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Printf("WebSocket error: %v", err)
			}
			return
		}
	}
}

// writePump drains the send buffer and keeps the connection alive
func (h *Hub) writePump(c *wsClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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
