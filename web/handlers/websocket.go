package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket" //nolint:staticcheck // TODO: migrate to github.com/coder/websocket

	"github.com/scrypster/visage/internal/engine"
)

// EventHub fans engine events out to connected dashboard clients. Wire it
// to the engine with IdentityEngine.SetEventHandler(hub.Publish).
type EventHub struct {
	clients    map[eventClient]bool
	broadcast  chan engine.EngineEvent
	register   chan eventClient
	unregister chan eventClient
	mu         sync.Mutex
	ctx        context.Context
	cancel     context.CancelFunc

	allowedOrigins map[string]bool
}

// eventClient allows for both real connections and mock clients in tests.
type eventClient interface {
	sendChannel() chan []byte
	close()
}

// wsClient is one connected websocket.
type wsClient struct {
	hub  *EventHub
	conn *websocket.Conn //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
	send chan []byte
}

func (c *wsClient) sendChannel() chan []byte { return c.send }

func (c *wsClient) close() {
	if c.conn != nil {
		_ = c.conn.Close(websocket.StatusNormalClosure, "") //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
	}
}

// NewEventHub creates an event hub that accepts browser connections from
// the kiosk UI served on the given port.
func NewEventHub(port int) *EventHub {
	ctx, cancel := context.WithCancel(context.Background())
	return &EventHub{
		clients:    make(map[eventClient]bool),
		broadcast:  make(chan engine.EngineEvent, 256),
		register:   make(chan eventClient),
		unregister: make(chan eventClient),
		ctx:        ctx,
		cancel:     cancel,
		allowedOrigins: map[string]bool{
			fmt.Sprintf("http://localhost:%d", port): true,
			fmt.Sprintf("http://127.0.0.1:%d", port): true,
		},
	}
}

// Run starts the hub's fan-out loop.
func (h *EventHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mu.Unlock()
			log.Printf("event client connected (total: %d)", count)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.sendChannel())
			}
			count := len(h.clients)
			h.mu.Unlock()
			log.Printf("event client disconnected (total: %d)", count)

		case event := <-h.broadcast:
			data, err := json.Marshal(event)
			if err != nil {
				log.Printf("ERROR: failed to marshal event: %v", err)
				continue
			}
			// Full lock: slow clients are evicted inside the loop.
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.sendChannel() <- data:
				default:
					close(client.sendChannel())
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()

		case <-h.ctx.Done():
			log.Println("event hub stopping...")
			return
		}
	}
}

// Stop gracefully shuts down the hub and disconnects all clients.
func (h *EventHub) Stop() {
	h.cancel()

	h.mu.Lock()
	for client := range h.clients {
		close(client.sendChannel())
		client.close()
	}
	h.clients = make(map[eventClient]bool)
	h.mu.Unlock()
}

// Publish queues an engine event for broadcast. Never blocks the caller:
// when the queue is full the event is dropped.
func (h *EventHub) Publish(event engine.EngineEvent) {
	select {
	case h.broadcast <- event:
	default:
		log.Println("WARNING: event broadcast channel full, dropping event")
	}
}

// Register adds a client to the hub.
func (h *EventHub) Register(client eventClient) {
	h.register <- client
}

// Unregister removes a client from the hub.
func (h *EventHub) Unregister(client eventClient) {
	h.unregister <- client
}

// ServeHTTP handles websocket upgrade requests for GET /ws.
func (h *EventHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if origin := r.Header.Get("Origin"); origin != "" && !h.allowedOrigins[origin] {
		http.Error(w, "Forbidden: invalid origin", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, nil) //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
	if err != nil {
		log.Printf("ERROR: websocket upgrade failed: %v", err)
		return
	}

	client := &wsClient{
		hub:  h,
		conn: conn,
		send: make(chan []byte, 256),
	}

	h.Register(client)

	go client.writePump()
	go client.readPump()
}

// writePump sends queued events to the websocket connection.
func (c *wsClient) writePump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close(websocket.StatusNormalClosure, "") //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
	}()

	for message := range c.send {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := c.conn.Write(ctx, websocket.MessageText, message) //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
		cancel()

		if err != nil {
			log.Printf("ERROR: websocket write failed: %v", err)
			return
		}
	}
}

// readPump drains client messages to detect disconnections. The event
// feed is one-way; inbound payloads are ignored.
func (c *wsClient) readPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close(websocket.StatusNormalClosure, "") //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
	}()

	for {
		if _, _, err := c.conn.Read(context.Background()); err != nil { //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
			return
		}
	}
}

// MockClient is a mock client for testing.
type MockClient struct {
	SendChan chan []byte
}

func (m *MockClient) sendChannel() chan []byte { return m.SendChan }

func (m *MockClient) close() {}
