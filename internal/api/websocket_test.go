package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-dispatch/internal/device"
	"github.com/nerrad567/gray-logic-dispatch/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-dispatch/internal/program"
)

// ─── Hub Tests ─────────────────────────────────────────────────────

func newTestClient(hub *Hub, channels ...string) *WSClient {
	subs := make(map[string]struct{}, len(channels))
	for _, ch := range channels {
		subs[ch] = struct{}{}
	}
	return &WSClient{
		hub:           hub,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: subs,
	}
}

func receive(t *testing.T, client *WSClient) WSMessage {
	t.Helper()
	select {
	case data := <-client.send:
		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for broadcast message")
		return WSMessage{}
	}
}

func TestHub_BroadcastToSubscribed(t *testing.T) {
	hub := NewHub(config.WebSocketConfig{}, testLogger())
	client := newTestClient(hub, program.EventProgramCompleted)
	hub.Register(client)

	hub.Broadcast(program.EventProgramCompleted, map[string]any{"program": "sleep"})

	msg := receive(t, client)
	if msg.Type != WSTypeEvent {
		t.Errorf("type = %q, want %q", msg.Type, WSTypeEvent)
	}
	if msg.EventType != program.EventProgramCompleted {
		t.Errorf("event_type = %q, want %q", msg.EventType, program.EventProgramCompleted)
	}
}

func TestHub_NoMessageForUnsubscribed(t *testing.T) {
	hub := NewHub(config.WebSocketConfig{}, testLogger())
	client := newTestClient(hub, EventDeviceRegistered)
	hub.Register(client)

	hub.Broadcast(EventCommandStarted, map[string]any{"device_id": "test-1"})

	select {
	case <-client.send:
		t.Error("unsubscribed client should not receive message")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHub_ClientCount(t *testing.T) {
	hub := NewHub(config.WebSocketConfig{}, testLogger())

	if hub.ClientCount() != 0 {
		t.Errorf("initial client count = %d, want 0", hub.ClientCount())
	}

	client := newTestClient(hub)
	hub.Register(client)
	if hub.ClientCount() != 1 {
		t.Errorf("after register count = %d, want 1", hub.ClientCount())
	}

	hub.Unregister(client)
	hub.Unregister(client) // second call must not double-close
	if hub.ClientCount() != 0 {
		t.Errorf("after unregister count = %d, want 0", hub.ClientCount())
	}
}

func TestHub_CommandObserver(t *testing.T) {
	hub := NewHub(config.WebSocketConfig{}, testLogger())
	client := newTestClient(hub, EventCommandStarted, EventCommandFinished)
	hub.Register(client)

	msg, err := device.NewMessage("dev-1", device.CommandPlaySong, "Heroes")
	if err != nil {
		t.Fatalf("NewMessage: %v", err)
	}

	hub.CommandStarted(msg)
	hub.CommandFinished(msg, device.Result{}, errors.New("powered off"), 2*time.Millisecond)

	started := receive(t, client)
	if started.EventType != EventCommandStarted {
		t.Fatalf("first event = %q, want %q", started.EventType, EventCommandStarted)
	}

	finished := receive(t, client)
	if finished.EventType != EventCommandFinished {
		t.Fatalf("second event = %q, want %q", finished.EventType, EventCommandFinished)
	}
	payload, _ := finished.Payload.(map[string]any)
	if payload["device_id"] != "dev-1" || payload["payload"] != "Heroes" {
		t.Errorf("payload = %v", payload)
	}
	if payload["error"] != "powered off" {
		t.Errorf("error = %v, want powered off", payload["error"])
	}
	if payload["elapsed_ms"] != float64(2) {
		t.Errorf("elapsed_ms = %v, want 2", payload["elapsed_ms"])
	}
}

// ─── Connection Tests ──────────────────────────────────────────────

// startWSServer serves the env's router over a real listener.
func startWSServer(t *testing.T, env *testEnv) string {
	t.Helper()
	ts := httptest.NewServer(env.router)
	t.Cleanup(ts.Close)
	return strings.TrimPrefix(ts.URL, "http://")
}

// connectWebSocket dials the hub, fetching a ticket first when auth is on.
func connectWebSocket(t *testing.T, env *testEnv, addr string) *websocket.Conn {
	t.Helper()

	query := ""
	if env.srv.authEnabled() {
		token, err := IssueToken(testSecret, "test", time.Minute)
		if err != nil {
			t.Fatalf("IssueToken: %v", err)
		}
		req, _ := http.NewRequest(http.MethodPost, "http://"+addr+"/api/v1/auth/ws-ticket", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("ws-ticket request failed: %v", err)
		}
		defer resp.Body.Close()

		var ticket struct {
			Ticket string `json:"ticket"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&ticket); err != nil {
			t.Fatalf("decode ticket: %v", err)
		}
		query = "?ticket=" + ticket.Ticket
	}

	ws, resp, err := websocket.DefaultDialer.Dial("ws://"+addr+"/api/v1/ws"+query, nil)
	if err != nil {
		t.Fatalf("websocket dial failed: %v (resp: %v)", err, resp)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func readWS(t *testing.T, ws *websocket.Conn) WSMessage {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg WSMessage
	if err := ws.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	return msg
}

func subscribe(t *testing.T, ws *websocket.Conn, id string, channels ...string) {
	t.Helper()
	if err := ws.WriteJSON(WSMessage{
		Type:    WSTypeSubscribe,
		ID:      id,
		Payload: WSSubscribePayload{Channels: channels},
	}); err != nil {
		t.Fatalf("write subscribe: %v", err)
	}
	resp := readWS(t, ws)
	if resp.Type != WSTypeResponse || resp.ID != id {
		t.Fatalf("subscribe response = %+v", resp)
	}
}

func TestWebSocket_TicketFlow(t *testing.T) {
	env := newTestEnv(t, withSecret)
	addr := startWSServer(t, env)

	ws := connectWebSocket(t, env, addr)
	subscribe(t, ws, "sub-1", EventDeviceRegistered)

	if env.hub.ClientCount() != 1 {
		t.Errorf("hub client count = %d, want 1", env.hub.ClientCount())
	}
}

func TestWebSocket_TicketRequired(t *testing.T) {
	env := newTestEnv(t, withSecret)
	addr := startWSServer(t, env)

	for _, query := range []string{"", "?ticket=invalid-ticket"} {
		_, resp, err := websocket.DefaultDialer.Dial("ws://"+addr+"/api/v1/ws"+query, nil)
		if err == nil {
			t.Fatalf("dial %q: expected error", query)
		}
		if resp == nil || resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("dial %q: resp = %v, want 401", query, resp)
		}
	}
}

func TestWebSocket_OpenWithoutSecret(t *testing.T) {
	env := newTestEnv(t)
	addr := startWSServer(t, env)

	ws := connectWebSocket(t, env, addr)

	if err := ws.WriteJSON(WSMessage{Type: WSTypePing, ID: "ping-1"}); err != nil {
		t.Fatalf("write ping: %v", err)
	}
	resp := readWS(t, ws)
	if resp.Type != WSTypePong || resp.ID != "ping-1" {
		t.Errorf("response = %+v, want pong ping-1", resp)
	}
}

func TestWebSocket_SubscribeUnsubscribe(t *testing.T) {
	env := newTestEnv(t)
	addr := startWSServer(t, env)
	ws := connectWebSocket(t, env, addr)

	subscribe(t, ws, "sub-1", EventCommandStarted, EventCommandFinished)

	if err := ws.WriteJSON(WSMessage{
		Type:    WSTypeUnsubscribe,
		ID:      "unsub-1",
		Payload: WSSubscribePayload{Channels: []string{EventCommandStarted}},
	}); err != nil {
		t.Fatalf("write unsubscribe: %v", err)
	}
	if resp := readWS(t, ws); resp.Type != WSTypeResponse || resp.ID != "unsub-1" {
		t.Errorf("unsubscribe response = %+v", resp)
	}
}

func TestWebSocket_InvalidMessages(t *testing.T) {
	env := newTestEnv(t)
	addr := startWSServer(t, env)
	ws := connectWebSocket(t, env, addr)

	if err := ws.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if resp := readWS(t, ws); resp.Type != WSTypeError {
		t.Errorf("invalid JSON response type = %q, want error", resp.Type)
	}

	if err := ws.WriteJSON(WSMessage{Type: "unknown_type", ID: "x"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if resp := readWS(t, ws); resp.Type != WSTypeError || resp.ID != "x" {
		t.Errorf("unknown type response = %+v", resp)
	}
}

func TestWebSocket_ProgramRunEvents(t *testing.T) {
	env := newTestEnv(t)
	addr := startWSServer(t, env)
	ws := connectWebSocket(t, env, addr)

	subscribe(t, ws, "sub-1", program.EventProgramCompleted)

	if w := env.do(t, http.MethodPost, "/api/v1/programs/sleep/run", ""); w.Code != http.StatusOK {
		t.Fatalf("run status = %d; body: %s", w.Code, w.Body.String())
	}

	ev := readWS(t, ws)
	if ev.EventType != program.EventProgramCompleted {
		t.Fatalf("event_type = %q, want %q", ev.EventType, program.EventProgramCompleted)
	}
	payload, _ := ev.Payload.(map[string]any)
	if payload["program"] != "sleep" || payload["status"] != string(program.StatusCompleted) {
		t.Errorf("payload = %v", payload)
	}
	if payload["commands_completed"] != float64(4) {
		t.Errorf("commands_completed = %v, want 4", payload["commands_completed"])
	}
}

func TestWebSocket_DeviceRegisteredEvent(t *testing.T) {
	env := newTestEnv(t)
	addr := startWSServer(t, env)
	ws := connectWebSocket(t, env, addr)

	subscribe(t, ws, "sub-1", EventDeviceRegistered)

	if w := env.do(t, http.MethodPost, "/api/v1/devices", `{"name":"hall-light","kind":"hue_light"}`); w.Code != http.StatusCreated {
		t.Fatalf("create status = %d; body: %s", w.Code, w.Body.String())
	}

	ev := readWS(t, ws)
	payload, _ := ev.Payload.(map[string]any)
	if ev.EventType != EventDeviceRegistered || payload["name"] != "hall-light" {
		t.Errorf("event = %s %v", ev.EventType, payload)
	}
}
