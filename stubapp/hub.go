package stubapp

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Envelope is the tagged WebSocket message format the bridge gateway
// speaks: a type tag with a type-specific data payload.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Event types clients can subscribe to.
const (
	EventTransactionStatus = "transaction_status"
	EventPriceUpdates      = "price_updates"
)

// TransactionStatusEvent notifies subscribers of a swap's progress.
type TransactionStatusEvent struct {
	TransactionID string    `json:"transaction_id"`
	UserID        string    `json:"user_id"`
	Status        string    `json:"status"`
	FromChain     string    `json:"from_chain"`
	ToChain       string    `json:"to_chain"`
	Amount        string    `json:"amount"`
	TokenSymbol   string    `json:"token_symbol"`
	Timestamp     time.Time `json:"timestamp"`
}

func envelope(typ string, data any) ([]byte, error) {
	env := Envelope{Type: typ}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("stubapp: marshal %s data: %w", typ, err)
		}
		env.Data = raw
	}
	return json.Marshal(env)
}

// Hub tracks WebSocket connections and their subscriptions, and fans
// events out to subscribers.
type Hub struct {
	auth     *authStore
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

type client struct {
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{} // closed when writePump exits
	subs   map[string]bool
	userID string
	authed bool
	gone   bool // send closed, no further writes allowed
	mu     sync.Mutex
}

func newHub(auth *authStore, logger *slog.Logger) *Hub {
	return &Hub{
		auth:   auth,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The fixture only ever serves the page it hosts.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

// ServeWS upgrades the request and runs the connection until it closes.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("stubapp: ws upgrade failed", "error", err)
		return
	}

	c := &client{
		conn: conn,
		send: make(chan []byte, 32),
		done: make(chan struct{}),
		subs: make(map[string]bool),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("stubapp: ws client connected", "clients", n)

	go c.writePump()
	h.readPump(c)
}

func (h *Hub) readPump(c *client) {
	defer h.drop(c, "")

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			c.sendEnvelope("Error", map[string]any{"message": "malformed message"})
			continue
		}
		h.handle(c, env)
	}
}

func (h *Hub) handle(c *client, env Envelope) {
	switch env.Type {
	case "Auth":
		var data struct {
			Token string `json:"token"`
		}
		_ = json.Unmarshal(env.Data, &data)
		userID, ok := h.auth.Validate(data.Token)
		if !ok {
			c.sendEnvelope("AuthFailed", map[string]any{"error": "invalid token"})
			return
		}
		c.mu.Lock()
		c.authed = true
		c.userID = userID
		c.mu.Unlock()
		c.sendEnvelope("AuthSuccess", map[string]any{"user_id": userID})

	case "Subscribe":
		var data struct {
			EventType string `json:"event_type"`
		}
		_ = json.Unmarshal(env.Data, &data)
		if data.EventType != EventTransactionStatus && data.EventType != EventPriceUpdates {
			c.sendEnvelope("Error", map[string]any{"message": "unknown event type: " + data.EventType})
			return
		}
		c.mu.Lock()
		c.subs[data.EventType] = true
		c.mu.Unlock()
		c.sendEnvelope("Subscribed", map[string]any{"event_type": data.EventType})

	case "Unsubscribe":
		var data struct {
			EventType string `json:"event_type"`
		}
		_ = json.Unmarshal(env.Data, &data)
		c.mu.Lock()
		delete(c.subs, data.EventType)
		c.mu.Unlock()
		c.sendEnvelope("Unsubscribed", map[string]any{"event_type": data.EventType})

	case "Ping":
		c.sendEnvelope("Pong", nil)

	default:
		c.sendEnvelope("Error", map[string]any{"message": "unsupported type: " + env.Type})
	}
}

// BroadcastTransaction sends a status event to every authenticated client
// subscribed to transaction updates.
func (h *Hub) BroadcastTransaction(ev TransactionStatusEvent) {
	raw, err := envelope("Event", map[string]any{
		"event": map[string]any{
			"event_type": "TransactionStatusUpdate",
			"payload":    ev,
		},
	})
	if err != nil {
		h.logger.Error("stubapp: broadcast marshal", "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.mu.Lock()
		if c.authed && c.subs[EventTransactionStatus] {
			c.enqueueLocked(raw)
		}
		c.mu.Unlock()
	}
}

// DropAll force-closes every connection after a Close notice. Specs use it
// to provoke the frontend's reconnect path.
func (h *Hub) DropAll(reason string) int {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.sendEnvelope("Close", map[string]any{"reason": reason})
		h.drop(c, reason)
	}
	return len(clients)
}

// Shutdown closes all connections and refuses new ones.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
	h.DropAll("server shutting down")
}

func (h *Hub) drop(c *client, reason string) {
	h.mu.Lock()
	_, present := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	if !present {
		return
	}

	c.mu.Lock()
	c.gone = true
	close(c.send)
	c.mu.Unlock()

	// Let the write pump drain queued frames (the Close notice, usually)
	// before tearing the connection down.
	select {
	case <-c.done:
	case <-time.After(time.Second):
	}
	deadline := time.Now().Add(time.Second)
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, deadline)
	_ = c.conn.Close()
}

func (c *client) sendEnvelope(typ string, data any) {
	raw, err := envelope(typ, data)
	if err != nil {
		return
	}
	c.mu.Lock()
	c.enqueueLocked(raw)
	c.mu.Unlock()
}

// enqueueLocked queues a frame without blocking. A slow consumer loses
// frames rather than stalling the fixture; a departed one is skipped.
func (c *client) enqueueLocked(raw []byte) {
	if c.gone {
		return
	}
	select {
	case c.send <- raw:
	default:
	}
}

func (c *client) writePump() {
	defer close(c.done)
	for raw := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
			return
		}
	}
}
