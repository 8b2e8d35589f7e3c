package ws_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/scalarboard/scalarboard/internal/chart"
	"github.com/scalarboard/scalarboard/internal/dispatch"
	"github.com/scalarboard/scalarboard/internal/series"
	"github.com/scalarboard/scalarboard/internal/store"
	wsHub "github.com/scalarboard/scalarboard/internal/ws"
)

const testInterval = 20 * time.Millisecond

// --- helpers ----------------------------------------------------------------

func newStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.New(0, 0)
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	return st
}

func seed(t *testing.T, st *store.Store, run, tag string, values ...float64) {
	t.Helper()
	for i, v := range values {
		err := st.Append(run, tag, series.Sample{Step: int64(i), WallTime: float64(1000 + i), Value: v})
		if err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
}

// startHub starts a test HTTP server with the hub as its handler.
// The hub's Run loop is started with a cancellable context.
// Returns the ws:// URL, the hub, and a cleanup function.
func startHub(t *testing.T, st *store.Store) (wsURL string, hub *wsHub.Hub, cancel func()) {
	t.Helper()

	reg := chart.NewRegistry(dispatch.Options{})
	t.Cleanup(reg.Close)
	params := func() chart.Params { return chart.Params{SmoothingFactor: 0.5} }

	hub = wsHub.New(st, reg, params, testInterval)
	ctx, cancelFn := context.WithCancel(context.Background())

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeHTTP))
	go hub.Run(ctx)

	t.Cleanup(func() {
		cancelFn()
		srv.Close()
	})

	wsURL = "ws" + strings.TrimPrefix(srv.URL, "http")
	return wsURL, hub, cancelFn
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

func unmarshal(t *testing.T, raw []byte) wsHub.Message {
	t.Helper()
	var m wsHub.Message
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return m
}

// --- tests ------------------------------------------------------------------

func TestHub_Connect_ReceivesImmediateCharts(t *testing.T) {
	st := newStore(t)
	seed(t, st, "exp-01", "loss", 10, 20, 30)
	wsURL, _, _ := startHub(t, st)

	conn := dial(t, wsURL)
	m := unmarshal(t, readMessage(t, conn))

	if m.Event != "charts" {
		t.Errorf("event: got %q, want charts", m.Event)
	}
	if len(m.Data) != 1 {
		t.Fatalf("charts: got %d, want 1", len(m.Data))
	}
	snap := m.Data[0]
	if snap.Tag != "loss" {
		t.Errorf("tag: got %q, want loss", snap.Tag)
	}
	if len(snap.Series) != 1 || len(snap.Series[0].Points) != 3 {
		t.Errorf("series: got %+v", snap.Series)
	}
}

func TestHub_EmptyStore_EmptyCharts(t *testing.T) {
	wsURL, _, _ := startHub(t, newStore(t))
	conn := dial(t, wsURL)
	m := unmarshal(t, readMessage(t, conn))

	if len(m.Data) != 0 {
		t.Errorf("charts: got %d, want 0", len(m.Data))
	}
}

func TestHub_CountClients_SingleClient(t *testing.T) {
	wsURL, hub, _ := startHub(t, newStore(t))

	conn := dial(t, wsURL)
	readMessage(t, conn) // consume initial message

	// Give the hub a moment to register the client.
	time.Sleep(10 * time.Millisecond)
	if n := hub.Count(); n != 1 {
		t.Errorf("Count: got %d, want 1", n)
	}
}

func TestHub_CountClients_MultipleClients(t *testing.T) {
	wsURL, hub, _ := startHub(t, newStore(t))

	for i := 0; i < 3; i++ {
		conn := dial(t, wsURL)
		readMessage(t, conn) // consume initial message
	}

	time.Sleep(10 * time.Millisecond)
	if n := hub.Count(); n != 3 {
		t.Errorf("Count: got %d, want 3", n)
	}
}

func TestHub_CountClients_DecreasesOnDisconnect(t *testing.T) {
	wsURL, hub, _ := startHub(t, newStore(t))

	conn := dial(t, wsURL)
	readMessage(t, conn)
	time.Sleep(10 * time.Millisecond)

	if n := hub.Count(); n != 1 {
		t.Errorf("Count before disconnect: got %d, want 1", n)
	}

	conn.Close()
	time.Sleep(50 * time.Millisecond) // let readPump detect the close

	if n := hub.Count(); n != 0 {
		t.Errorf("Count after disconnect: got %d, want 0", n)
	}
}

func TestHub_ReceivesBroadcastOnTick(t *testing.T) {
	st := newStore(t)
	wsURL, _, _ := startHub(t, st)

	conn := dial(t, wsURL)
	readMessage(t, conn) // consume immediate message (empty store)

	// Add data after connect.
	seed(t, st, "exp-01", "accuracy", 0.5, 0.6)

	// Ticks should eventually broadcast the new chart.
	deadline := time.Now().Add(2 * time.Second)
	for {
		if time.Now().After(deadline) {
			t.Fatal("no tick broadcast carried the new chart")
		}
		m := unmarshal(t, readMessage(t, conn))
		if len(m.Data) == 0 {
			continue
		}
		if m.Data[0].Tag != "accuracy" {
			t.Errorf("tag: got %q, want accuracy", m.Data[0].Tag)
		}
		if len(m.Data[0].Series[0].Points) != 2 {
			t.Errorf("points: got %d, want 2", len(m.Data[0].Series[0].Points))
		}
		return
	}
}

func TestHub_AllClientsReceiveBroadcast(t *testing.T) {
	st := newStore(t)
	seed(t, st, "exp-01", "loss", 1, 2)
	wsURL, _, _ := startHub(t, st)

	conns := make([]*websocket.Conn, 3)
	for i := 0; i < 3; i++ {
		conns[i] = dial(t, wsURL)
	}

	// All three should receive the initial charts message.
	for i, conn := range conns {
		m := unmarshal(t, readMessage(t, conn))
		if m.Event != "charts" {
			t.Errorf("client %d: event: got %q, want charts", i, m.Event)
		}
	}
}

func TestHub_CancelContextClosesConnections(t *testing.T) {
	wsURL, hub, cancel := startHub(t, newStore(t))

	conn := dial(t, wsURL)
	readMessage(t, conn)
	time.Sleep(10 * time.Millisecond)

	cancel() // signal shutdown

	// After cancel, hub should close all clients.
	time.Sleep(50 * time.Millisecond)
	if n := hub.Count(); n != 0 {
		t.Errorf("Count after cancel: got %d, want 0", n)
	}
}

func TestHub_NonWebSocketRequest_Returns400(t *testing.T) {
	st := newStore(t)
	reg := chart.NewRegistry(dispatch.Options{})
	t.Cleanup(reg.Close)
	hub := wsHub.New(st, reg, func() chart.Params { return chart.Params{} }, testInterval)
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeHTTP))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", resp.StatusCode)
	}
}
