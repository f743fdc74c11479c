package ws_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	wsHub "github.com/sourcewatch/sourcewatch/internal/ws"
)

// --- helpers ----------------------------------------------------------------

// startHub starts a test HTTP server with the hub as its handler.
// Returns the ws:// URL and the hub.
func startHub(t *testing.T) (wsURL string, hub *wsHub.Hub) {
	t.Helper()

	hub = wsHub.New()
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeHTTP))
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})

	wsURL = "ws" + strings.TrimPrefix(srv.URL, "http")
	return wsURL, hub
}

// dial connects a WebSocket client to wsURL and returns the connection.
func dial(t *testing.T, wsURL string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", wsURL, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readMessage reads one text message from conn with a short deadline.
func readMessage(t *testing.T, conn *websocket.Conn) []byte {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	return msg
}

// waitForClients polls until the hub reports n connected clients.
func waitForClients(t *testing.T, hub *wsHub.Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.Count() == n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Count: got %d, want %d", hub.Count(), n)
}

// --- tests ------------------------------------------------------------------

func TestHub_BroadcastReachesClient(t *testing.T) {
	wsURL, hub := startHub(t)
	conn := dial(t, wsURL)
	waitForClients(t, hub, 1)

	hub.Broadcast("run_summary", map[string]interface{}{"total_checks": 12})

	msg := readMessage(t, conn)
	var m map[string]interface{}
	if err := json.Unmarshal(msg, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m["event"] != "run_summary" {
		t.Errorf("event: got %v, want run_summary", m["event"])
	}
	data, ok := m["data"].(map[string]interface{})
	if !ok {
		t.Fatal("data: missing or wrong type")
	}
	if data["total_checks"].(float64) != 12 {
		t.Errorf("total_checks: got %v, want 12", data["total_checks"])
	}
}

func TestHub_AllClientsReceiveBroadcast(t *testing.T) {
	wsURL, hub := startHub(t)

	conns := make([]*websocket.Conn, 3)
	for i := 0; i < 3; i++ {
		conns[i] = dial(t, wsURL)
	}
	waitForClients(t, hub, 3)

	hub.Broadcast("alert", map[string]interface{}{"severity": "critical"})

	for i, conn := range conns {
		msg := readMessage(t, conn)
		var m map[string]interface{}
		if err := json.Unmarshal(msg, &m); err != nil {
			t.Errorf("client %d: unmarshal: %v", i, err)
			continue
		}
		if m["event"] != "alert" {
			t.Errorf("client %d: event: got %v, want alert", i, m["event"])
		}
	}
}

func TestHub_CountClients(t *testing.T) {
	wsURL, hub := startHub(t)

	conn := dial(t, wsURL)
	waitForClients(t, hub, 1)

	conn2 := dial(t, wsURL)
	waitForClients(t, hub, 2)
	_ = conn2

	conn.Close()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && hub.Count() != 1 {
		time.Sleep(5 * time.Millisecond)
	}
	if n := hub.Count(); n != 1 {
		t.Errorf("Count after disconnect: got %d, want 1", n)
	}
}

func TestHub_CloseDisconnectsClients(t *testing.T) {
	wsURL, hub := startHub(t)
	dial(t, wsURL)
	waitForClients(t, hub, 1)

	hub.Close()
	if n := hub.Count(); n != 0 {
		t.Errorf("Count after Close: got %d, want 0", n)
	}
}

func TestHub_BroadcastDuringDisconnect(t *testing.T) {
	wsURL, hub := startHub(t)

	// Hammer broadcasts while clients churn; disconnecting mid-broadcast
	// must never panic the hub.
	stop := make(chan struct{})
	broadcastDone := make(chan struct{})
	go func() {
		defer close(broadcastDone)
		for {
			select {
			case <-stop:
				return
			default:
				hub.Broadcast("run_summary", map[string]interface{}{"total_checks": 6})
			}
		}
	}()

	for i := 0; i < 25; i++ {
		conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
		if err != nil {
			t.Fatalf("dial: %v", err)
		}
		conn.Close()
	}

	close(stop)
	select {
	case <-broadcastDone:
	case <-time.After(2 * time.Second):
		t.Fatal("broadcaster did not stop")
	}
}

func TestHub_NonWebSocketRequest_Returns400(t *testing.T) {
	hub := wsHub.New()
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeHTTP))
	defer srv.Close()

	// Plain HTTP GET without WebSocket upgrade headers.
	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", resp.StatusCode)
	}
}
