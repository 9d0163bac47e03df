// Package live pushes workspace change events to open mini-app pages over
// WebSocket so they can refresh without polling.
package live

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 4 * 1024

	sendBuffer = 16
)

// Message is the wire format of both directions.
type Message struct {
	Type      string `json:"type"`
	Workspace int64  `json:"workspace,omitempty"`
	User      int64  `json:"user,omitempty"`
}

const (
	TypeReload    = "reload"
	TypePing      = "ping"
	TypePong      = "pong"
	TypeSubscribe = "subscribe"
)

var pongMessage, _ = json.Marshal(Message{Type: TypePong})

// Client is one open page.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	pong   chan struct{}
	userID int64
	// canSubscribe limits the workspaces the page may switch to.
	canSubscribe func(workspaceID int64) bool

	mu        sync.Mutex
	workspace int64
}

func (c *Client) Workspace() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.workspace
}

func (c *Client) setWorkspace(id int64) {
	c.mu.Lock()
	c.workspace = id
	c.mu.Unlock()
}

type event struct {
	workspace int64
	origin    int64
}

// Hub maintains the set of active clients and fans workspace events out to
// them. It implements app.Publisher.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan event
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	upgrader websocket.Upgrader
	logger   *slog.Logger
	count    atomic.Int64
}

// Clients returns the number of registered pages.
func (h *Hub) Clients() int { return int(h.count.Load()) }

// NewHub creates a hub. allowOrigin decides cross-origin upgrades; nil
// accepts only same-origin requests.
func NewHub(logger *slog.Logger, allowOrigin func(origin string) bool) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan event, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger,
	}
	if allowOrigin != nil {
		h.upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || allowOrigin(origin)
		}
	}
	return h
}

// Publish announces a change of workspaceID made by originUserID. It never
// blocks; events are dropped when the hub is not keeping up.
func (h *Hub) Publish(workspaceID, originUserID int64) {
	select {
	case h.broadcast <- event{workspace: workspaceID, origin: originUserID}:
	default:
		h.logger.Warn("live event dropped", slog.Int64("workspace", workspaceID))
	}
}

// Run is the hub's main loop. It returns when ctx is done, closing every
// client.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		close(h.done)
		for c := range h.clients {
			delete(h.clients, c)
			close(c.send)
		}
		h.count.Store(0)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case c := <-h.register:
			h.clients[c] = true
			h.count.Store(int64(len(h.clients)))
			h.logger.Debug("live client connected", slog.Int64("user", c.userID), slog.Int64("workspace", c.Workspace()))
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
				h.count.Store(int64(len(h.clients)))
				h.logger.Debug("live client disconnected", slog.Int64("user", c.userID))
			}
		case ev := <-h.broadcast:
			msg, err := json.Marshal(Message{Type: TypeReload, Workspace: ev.workspace, User: ev.origin})
			if err != nil {
				h.logger.Error("encode live event", slog.String("error", err.Error()))
				continue
			}
			for c := range h.clients {
				// Skip the sender to avoid echo
				if c.userID == ev.origin || c.Workspace() != ev.workspace {
					continue
				}
				select {
				case c.send <- msg:
				default:
					// Client's send buffer is full, assume disconnected
					close(c.send)
					delete(h.clients, c)
					h.count.Store(int64(len(h.clients)))
				}
			}
		}
	}
}

// Serve upgrades the request and pumps events to the page until the
// connection closes. Subscriptions to workspaces rejected by canSubscribe
// are ignored; nil accepts any.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, userID, workspaceID int64, canSubscribe func(int64) bool) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	c := &Client{
		hub:          h,
		conn:         conn,
		send:         make(chan []byte, sendBuffer),
		pong:         make(chan struct{}, 1),
		userID:       userID,
		workspace:    workspaceID,
		canSubscribe: canSubscribe,
	}
	select {
	case h.register <- c:
	case <-h.done:
		_ = conn.Close()
		return nil
	}
	go c.writePump()
	c.readPump()
	return nil
}

func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.leave(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("websocket read", slog.Int64("user", c.userID), slog.String("error", err.Error()))
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		switch msg.Type {
		case TypePing:
			select {
			case c.pong <- struct{}{}:
			default:
			}
		case TypeSubscribe:
			if c.canSubscribe != nil && !c.canSubscribe(msg.Workspace) {
				c.hub.logger.Warn("live subscribe refused", slog.Int64("user", c.userID), slog.Int64("workspace", msg.Workspace))
				continue
			}
			c.setWorkspace(msg.Workspace)
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
				// The hub closed the channel
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-c.pong:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, pongMessage); err != nil {
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
