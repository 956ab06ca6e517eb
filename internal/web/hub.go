package web

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/blockedby/survey-portal/internal/logger"
	"github.com/blockedby/survey-portal/internal/session"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Client is one websocket connection. sessionID ties it to a browser session
// so dashboard updates reach only that session's tabs.
type Client struct {
	id        string
	sessionID string
	hub       *Hub
	conn      *websocket.Conn
	send      chan []byte
}

type targeted struct {
	sessionID string
	data      []byte
}

// Hub maintains the set of active clients and fans messages out to them.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	direct     chan targeted
	stop       chan struct{}
}

// NewHub creates a hub. Call Run in its own goroutine.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 256),
		direct:     make(chan targeted, 256),
		stop:       make(chan struct{}),
	}
}

// Run serves the hub until Stop is called.
func (h *Hub) Run() {
	for {
		select {
		case <-h.stop:
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			return
		case client := <-h.register:
			h.clients[client] = true
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
		case message := <-h.broadcast:
			for client := range h.clients {
				h.deliver(client, message)
			}
		case msg := <-h.direct:
			for client := range h.clients {
				if client.sessionID == msg.sessionID {
					h.deliver(client, msg.data)
				}
			}
		}
	}
}

// deliver drops clients whose buffer is full.
func (h *Hub) deliver(client *Client, message []byte) {
	select {
	case client.send <- message:
	default:
		delete(h.clients, client)
		close(client.send)
	}
}

// Stop shuts the hub down and closes every client.
func (h *Hub) Stop() {
	close(h.stop)
}

// Broadcast sends message to every client. Values other than []byte are
// encoded as JSON.
func (h *Hub) Broadcast(message interface{}) {
	data, ok := encode(message)
	if !ok {
		return
	}
	select {
	case h.broadcast <- data:
	case <-h.stop:
	}
}

// SendToSession sends message to the clients of one browser session.
func (h *Hub) SendToSession(sessionID string, message interface{}) {
	data, ok := encode(message)
	if !ok {
		return
	}
	select {
	case h.direct <- targeted{sessionID: sessionID, data: data}:
	case <-h.stop:
	}
}

func encode(message interface{}) ([]byte, bool) {
	if b, ok := message.([]byte); ok {
		return b, true
	}
	b, err := json.Marshal(message)
	if err != nil {
		logger.Get().Error().Err(err).Msg("failed to encode websocket message")
		return nil, false
	}
	return b, true
}

// ServeWs upgrades the request and registers the connection with the hub.
func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Get().Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := &Client{
		id:        uuid.NewString(),
		sessionID: session.ID(r.Context()),
		hub:       hub,
		conn:      conn,
		send:      make(chan []byte, 256),
	}
	select {
	case hub.register <- client:
	case <-hub.stop:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// readPump discards inbound messages and detects closed connections.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.stop:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Get().Debug().Err(err).Str("client_id", c.id).Msg("websocket closed")
			}
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
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
