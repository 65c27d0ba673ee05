package channel

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// mockWSServer creates a test WebSocket server. The handler runs once per
// accepted connection.
func mockWSServer(t *testing.T, handler func(*websocket.Conn, *http.Request)) *httptest.Server {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer conn.Close()
		handler(conn, r)
	}))

	return server
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func testConfig(url string) Config {
	cfg := DefaultConfig()
	cfg.URL = url
	cfg.HeartbeatInterval = 1 * time.Second
	cfg.HeartbeatTimeout = 500 * time.Millisecond
	cfg.ReconnectBaseDelay = 20 * time.Millisecond
	cfg.ReconnectMaxDelay = 100 * time.Millisecond
	cfg.ReconnectDecay = 1.5
	cfg.MaxReconnectAttempts = 5
	cfg.HandshakeTimeout = 1 * time.Second
	cfg.WriteTimeout = 1 * time.Second
	return cfg
}

func waitForState(t *testing.T, c *Client, want State, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if c.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("state = %v, want %v", c.State(), want)
}

func TestClientConnect(t *testing.T) {
	var tokenMu sync.Mutex
	var token string

	server := mockWSServer(t, func(conn *websocket.Conn, r *http.Request) {
		tokenMu.Lock()
		token = r.URL.Query().Get("token")
		tokenMu.Unlock()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	client := New(testConfig(wsURL(server)), nil)

	opened := make(chan struct{}, 1)
	client.OnOpen(func() { opened <- struct{}{} })

	client.Connect("secret-token")
	waitForState(t, client, StateConnected, time.Second)

	select {
	case <-opened:
	case <-time.After(time.Second):
		t.Fatal("open listener never fired")
	}

	tokenMu.Lock()
	if token != "secret-token" {
		t.Errorf("server saw token %q, want %q", token, "secret-token")
	}
	tokenMu.Unlock()

	client.Disconnect()
	if got := client.State(); got != StateDisconnected {
		t.Errorf("state after Disconnect = %v, want Disconnected", got)
	}
}

func TestClientConnectIdempotent(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn, r *http.Request) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	client := New(testConfig(wsURL(server)), nil)
	defer client.Disconnect()

	var changes []StateChange
	var mu sync.Mutex
	client.OnStateChange(func(ch StateChange) {
		mu.Lock()
		changes = append(changes, ch)
		mu.Unlock()
	})

	client.Connect("")
	waitForState(t, client, StateConnected, time.Second)
	client.Connect("") // no-op while Connected
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(changes) != 2 {
		t.Errorf("got %d transitions %v, want 2 (Connecting, Connected)", len(changes), changes)
	}
}

func TestClientReconcileOnConnect(t *testing.T) {
	commands := make(chan command, 8)

	server := mockWSServer(t, func(conn *websocket.Conn, r *http.Request) {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var cmd command
			if json.Unmarshal(data, &cmd) == nil {
				commands <- cmd
			}
		}
	})
	defer server.Close()

	client := New(testConfig(wsURL(server)), nil)
	defer client.Disconnect()

	// Desired set accumulates in any state; sends fail silently here.
	if !client.Subscribe(7, TypeAssetData) {
		t.Fatal("Subscribe should report a change")
	}

	client.Connect("")
	waitForState(t, client, StateConnected, time.Second)

	select {
	case cmd := <-commands:
		if cmd.Action != actionSubscribe || cmd.Type != TypeAssetData {
			t.Errorf("got %+v, want subscribe for asset_data", cmd)
		}
		if len(cmd.AssetIDs) != 1 || cmd.AssetIDs[0] != 7 {
			t.Errorf("asset_ids = %v, want [7]", cmd.AssetIDs)
		}
	case <-time.After(time.Second):
		t.Fatal("no subscribe replayed after connect")
	}
}

func TestClientReconnectAfterDrop(t *testing.T) {
	type connCommands struct {
		conn int
		cmd  command
	}
	commands := make(chan connCommands, 16)

	var connCount int
	var mu sync.Mutex

	server := mockWSServer(t, func(conn *websocket.Conn, r *http.Request) {
		mu.Lock()
		connCount++
		n := connCount
		mu.Unlock()

		if n == 1 {
			// Accept then drop without a close handshake.
			time.Sleep(20 * time.Millisecond)
			conn.Close()
			return
		}
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var cmd command
			if json.Unmarshal(data, &cmd) == nil {
				commands <- connCommands{conn: n, cmd: cmd}
			}
		}
	})
	defer server.Close()

	client := New(testConfig(wsURL(server)), nil)
	defer client.Disconnect()
	client.Subscribe(7, TypeAssetData)

	client.Connect("")
	waitForState(t, client, StateConnected, time.Second)

	// First socket drops; the client must come back on its own and
	// replay the desired set on the second socket.
	deadline := time.After(2 * time.Second)
	for {
		select {
		case cc := <-commands:
			if cc.conn < 2 {
				continue
			}
			if cc.cmd.Action != actionSubscribe {
				continue
			}
			if len(cc.cmd.AssetIDs) != 1 || cc.cmd.AssetIDs[0] != 7 || cc.cmd.Type != TypeAssetData {
				t.Fatalf("replayed %+v, want subscribe [7] asset_data", cc.cmd)
			}
			waitForState(t, client, StateConnected, time.Second)
			return
		case <-deadline:
			t.Fatal("no subscribe replay on the reconnected socket")
		}
	}
}

func TestClientServerNormalClose(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn, r *http.Request) {
		conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"),
			time.Now().Add(time.Second),
		)
		// Wait for the client's close response or a read error.
		conn.ReadMessage()
	})
	defer server.Close()

	client := New(testConfig(wsURL(server)), nil)

	client.Connect("")
	waitForState(t, client, StateDisconnected, 2*time.Second)

	// A clean server shutdown must not trigger reconnection.
	time.Sleep(100 * time.Millisecond)
	if got := client.State(); got != StateDisconnected {
		t.Errorf("state = %v, want Disconnected after a normal close", got)
	}
}

func TestClientRetriesExhausted(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn, r *http.Request) {})
	url := wsURL(server)
	server.Close() // nothing is listening any more

	cfg := testConfig(url)
	cfg.ReconnectBaseDelay = 10 * time.Millisecond
	cfg.MaxReconnectAttempts = 2

	client := New(cfg, nil)

	errs := make(chan error, 16)
	client.OnError(func(err error) { errs <- err })

	client.Connect("")
	waitForState(t, client, StateError, 2*time.Second)

	select {
	case <-errs:
	case <-time.After(time.Second):
		t.Error("no connection error reported")
	}

	// Error is terminal until Connect is called again.
	time.Sleep(100 * time.Millisecond)
	if got := client.State(); got != StateError {
		t.Errorf("state = %v, want Error", got)
	}
}

func TestClientReconnectDisabled(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn, r *http.Request) {
		time.Sleep(20 * time.Millisecond)
		conn.Close() // abnormal drop
	})
	defer server.Close()

	cfg := testConfig(wsURL(server))
	cfg.MaxReconnectAttempts = 0

	client := New(cfg, nil)

	client.Connect("")
	waitForState(t, client, StateConnected, time.Second)
	waitForState(t, client, StateError, 2*time.Second)
}

func TestClientHeartbeatStall(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn, r *http.Request) {
		// Read pings, never answer.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	cfg := testConfig(wsURL(server))
	cfg.HeartbeatInterval = 30 * time.Millisecond
	cfg.HeartbeatTimeout = 30 * time.Millisecond
	cfg.MaxReconnectAttempts = 0 // park in Error so the stall is observable

	client := New(cfg, nil)

	errs := make(chan error, 16)
	client.OnError(func(err error) { errs <- err })

	client.Connect("")
	waitForState(t, client, StateConnected, time.Second)
	waitForState(t, client, StateError, 2*time.Second)

	stalled := false
	for done := false; !done; {
		select {
		case err := <-errs:
			if errors.Is(err, ErrStalled) {
				stalled = true
				done = true
			}
		default:
			done = true
		}
	}
	if !stalled {
		t.Error("expected ErrStalled to be reported")
	}
}

func TestClientHeartbeatPongKeepsAlive(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn, r *http.Request) {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var cmd command
			if json.Unmarshal(data, &cmd) == nil && cmd.Action == actionPing {
				conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"pong"}`))
			}
		}
	})
	defer server.Close()

	cfg := testConfig(wsURL(server))
	cfg.HeartbeatInterval = 20 * time.Millisecond
	cfg.HeartbeatTimeout = 40 * time.Millisecond

	client := New(cfg, nil)
	defer client.Disconnect()

	client.Connect("")
	waitForState(t, client, StateConnected, time.Second)

	// Several heartbeat cycles pass without a stall.
	time.Sleep(200 * time.Millisecond)
	if got := client.State(); got != StateConnected {
		t.Errorf("state = %v, want Connected", got)
	}
}

func TestClientDispatch(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn, r *http.Request) {
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"asset_data","asset_id":7,"ts":1}`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"pong"}`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"mystery"}`))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	client := New(testConfig(wsURL(server)), nil)
	defer client.Disconnect()

	typed := make(chan []byte, 4)
	client.Handle(TypeAssetData, func(data []byte) { typed <- data })

	var anyMu sync.Mutex
	var anyTypes []string
	client.OnMessage(func(data []byte) {
		var env envelope
		json.Unmarshal(data, &env)
		anyMu.Lock()
		anyTypes = append(anyTypes, env.Type)
		anyMu.Unlock()
	})

	client.Connect("")
	waitForState(t, client, StateConnected, time.Second)

	select {
	case data := <-typed:
		var env envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Type != TypeAssetData {
			t.Errorf("handler got %s", data)
		}
	case <-time.After(time.Second):
		t.Fatal("typed handler never fired")
	}

	time.Sleep(50 * time.Millisecond)

	// Unknown types route nowhere but cause no failure.
	if got := client.State(); got != StateConnected {
		t.Errorf("state = %v, want Connected", got)
	}

	// Pong frames never reach application listeners.
	anyMu.Lock()
	defer anyMu.Unlock()
	for _, typ := range anyTypes {
		if typ == TypePong {
			t.Error("pong leaked to an any-message listener")
		}
	}
}

func TestClientSendWhileDisconnected(t *testing.T) {
	client := New(testConfig("ws://localhost:1"), nil)

	if client.Send(map[string]string{"action": "ping"}) {
		t.Error("Send should return false while disconnected")
	}
	if client.RequestSubscriptions() {
		t.Error("RequestSubscriptions should return false while disconnected")
	}

	// Registry mutations still apply.
	if !client.Subscribe(7, TypeAssetData) {
		t.Error("Subscribe should mutate the desired set while disconnected")
	}
	if !client.Subscriptions().Contains(7, TypeAssetData) {
		t.Error("desired set should contain (7, asset_data)")
	}
	if !client.Unsubscribe(7) {
		t.Error("Unsubscribe should mutate the desired set while disconnected")
	}
}

func TestClientDisconnectCancelsReconnect(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn, r *http.Request) {
		time.Sleep(20 * time.Millisecond)
		conn.Close()
	})
	defer server.Close()

	cfg := testConfig(wsURL(server))
	cfg.ReconnectBaseDelay = 200 * time.Millisecond

	client := New(cfg, nil)

	client.Connect("")
	waitForState(t, client, StateConnected, time.Second)
	waitForState(t, client, StateReconnecting, time.Second)

	client.Disconnect()
	if got := client.State(); got != StateDisconnected {
		t.Fatalf("state = %v, want Disconnected", got)
	}

	// The pending retry must not fire after Disconnect.
	time.Sleep(400 * time.Millisecond)
	if got := client.State(); got != StateDisconnected {
		t.Errorf("state = %v, want Disconnected to stick", got)
	}
}

func TestAuthURL(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		token string
		want  string
	}{
		{
			name:  "token appended",
			raw:   "wss://monitor.example.com/ws/telemetry",
			token: "abc123",
			want:  "wss://monitor.example.com/ws/telemetry?token=abc123",
		},
		{
			name:  "empty token leaves url untouched",
			raw:   "wss://monitor.example.com/ws/telemetry",
			token: "",
			want:  "wss://monitor.example.com/ws/telemetry",
		},
		{
			name:  "existing query preserved",
			raw:   "wss://monitor.example.com/ws?v=2",
			token: "abc",
			want:  "wss://monitor.example.com/ws?token=abc&v=2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := authURL(tt.raw, tt.token)
			if err != nil {
				t.Fatalf("authURL error: %v", err)
			}
			if got != tt.want {
				t.Errorf("authURL = %q, want %q", got, tt.want)
			}
		})
	}
}
