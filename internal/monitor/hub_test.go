package monitor

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhound420/acp-agents-skill/internal/acp"
	"github.com/zhound420/acp-agents-skill/internal/registry"
)

func dialHub(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()

	ts := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	waitForClients(t, hub, 1)
	return conn
}

func waitForClients(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.ClientCount() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d clients, have %d", want, hub.ClientCount())
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	// Coalesced frames carry one JSON document per line.
	first, _, _ := strings.Cut(string(data), "\n")
	var msg Message
	require.NoError(t, json.Unmarshal([]byte(first), &msg))
	return msg
}

func TestBroadcastHighlight(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	conn := dialHub(t, hub)
	hub.BroadcastHighlight("swarm", "swarm activated")

	msg := readMessage(t, conn)
	assert.Equal(t, "highlight", msg.Type)

	payload := msg.Payload.(map[string]any)
	assert.Equal(t, "swarm", payload["agent"])
	assert.Equal(t, "swarm activated", payload["text"])
	assert.NotEmpty(t, payload["time"])
}

func TestBroadcastCall(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	conn := dialHub(t, hub)
	hub.BroadcastCall(&acp.Response{
		Content:   "the answer",
		Agent:     "kimi",
		Status:    acp.StatusCompleted,
		Transport: acp.TransportHTTP,
	})

	msg := readMessage(t, conn)
	assert.Equal(t, "call", msg.Type)

	payload := msg.Payload.(map[string]any)
	assert.Equal(t, "kimi", payload["agent"])
	assert.Equal(t, "completed", payload["status"])
}

func TestBroadcastAgent(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	conn := dialHub(t, hub)
	hub.BroadcastAgent(&registry.Record{
		Name:     "kimi",
		Endpoint: "http://localhost:8000",
		Status:   registry.StatusOnline,
	})

	msg := readMessage(t, conn)
	assert.Equal(t, "agent", msg.Type)

	payload := msg.Payload.(map[string]any)
	assert.Equal(t, "kimi", payload["name"])
	assert.Equal(t, "online", payload["status"])
}

func TestPingPong(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	conn := dialHub(t, hub)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)))

	msg := readMessage(t, conn)
	assert.Equal(t, "pong", msg.Type)
}

func TestClientCountTracksDisconnect(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	conn := dialHub(t, hub)
	assert.Equal(t, 1, hub.ClientCount())

	conn.Close()
	waitForClients(t, hub, 0)
}
