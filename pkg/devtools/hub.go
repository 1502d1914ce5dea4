package devtools

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/sjson"
)

// MessageType identifies a WebSocket message.
type MessageType string

const (
	MessageState     MessageType = "state"
	MessageDestroyed MessageType = "destroyed"
)

const (
	// sendBuffer is how many messages a client may fall behind before it
	// is disconnected.
	sendBuffer   = 16
	writeTimeout = 5 * time.Second
)

// encodeMessage builds {"type": t, "state": state}. A nil state is omitted.
func encodeMessage(t MessageType, state any) ([]byte, error) {
	data, err := sjson.SetBytes([]byte(`{}`), "type", string(t))
	if err != nil || state == nil {
		return data, err
	}
	raw, err := json.Marshal(state)
	if err != nil {
		return nil, err
	}
	return sjson.SetRawBytes(data, "state", raw)
}

// client owns one connection. Only its write loop writes to conn.
type client struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func newClient(conn *websocket.Conn) *client {
	return &client{
		conn: conn,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
}

// enqueue never blocks; it reports false when the client is gone or its
// buffer is full.
func (c *client) enqueue(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// hub tracks WebSocket clients and fans messages out to them. Broadcasts
// only enqueue, so a stalled client never blocks the store.
type hub struct {
	clients  map[*client]bool
	mu       sync.RWMutex
	upgrader websocket.Upgrader
	logger   *slog.Logger
	closed   bool
}

func newHub(logger *slog.Logger) *hub {
	return &hub{
		clients: make(map[*client]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // local inspector
			},
		},
		logger: logger,
	}
}

// upgrade registers a new client and starts its write loop. The caller
// must then call serve.
func (h *hub) upgrade(w http.ResponseWriter, r *http.Request) (*client, error) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", "error", err)
		return nil, err
	}

	c := newClient(conn)
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return nil, websocket.ErrCloseSent
	}
	h.clients[c] = true
	h.mu.Unlock()

	go h.writeLoop(c)
	return c, nil
}

func (h *hub) writeLoop(c *client) {
	for {
		select {
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.logger.Debug("websocket write failed", "error", err)
				h.remove(c)
				return
			}
		case <-c.done:
			return
		}
	}
}

// serve blocks until the client disconnects.
func (h *hub) serve(c *client) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
	h.remove(c)
}

func (h *hub) remove(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.close()
}

// sendTo queues one message for c, dropping c if it cannot keep up.
func (h *hub) sendTo(c *client, t MessageType, state any) {
	data, err := encodeMessage(t, state)
	if err != nil {
		h.logger.Warn("devtools message encoding failed", "error", err)
		return
	}
	if !c.enqueue(data) {
		h.remove(c)
	}
}

func (h *hub) broadcast(t MessageType, state any) {
	data, err := encodeMessage(t, state)
	if err != nil {
		h.logger.Warn("devtools message encoding failed", "error", err)
		return
	}

	h.mu.RLock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if !c.enqueue(data) {
			h.logger.Info("dropping slow devtools client", "remote", c.conn.RemoteAddr().String())
			h.remove(c)
		}
	}
}

func (h *hub) count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for c := range h.clients {
		c.close()
		delete(h.clients, c)
	}
}
