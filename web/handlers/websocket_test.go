package handlers_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/scrypster/visage/internal/engine"
	"github.com/scrypster/visage/web/handlers"
)

func TestEventHub_ValidatesOrigin(t *testing.T) {
	hub := handlers.NewEventHub(6464)
	defer hub.Stop()

	req := httptest.NewRequest("GET", "/ws", nil)
	req.Header.Set("Origin", "http://evil.example")
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	req.Header.Set("Sec-WebSocket-Version", "13")
	req.Header.Set("Sec-WebSocket-Key", "dGhlIHNhbXBsZSBub25jZQ==")

	w := httptest.NewRecorder()
	hub.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "Forbidden")
}

func TestEventHub_PublishReachesClients(t *testing.T) {
	hub := handlers.NewEventHub(6464)
	go hub.Run()
	defer hub.Stop()

	received := make(chan []byte, 1)
	mockClient := &handlers.MockClient{SendChan: received}

	hub.Register(mockClient)
	// Give the hub time to register the client.
	time.Sleep(10 * time.Millisecond)

	hub.Publish(engine.EngineEvent{
		Type:       engine.EventMoodLogged,
		IdentityID: "idt:aaaa0001",
		Emotion:    "happy",
		Timestamp:  time.Now(),
	})

	select {
	case msg := <-received:
		assert.Contains(t, string(msg), "mood.logged")
		assert.Contains(t, string(msg), "idt:aaaa0001")
	case <-time.After(1 * time.Second):
		t.Fatal("timeout waiting for published event")
	}
}
