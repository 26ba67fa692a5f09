package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/onnwee/caseace-cache/internal/cache"
)

type fixedStats struct{ stats cache.Stats }

func (f fixedStats) Stats() cache.Stats { return f.stats }

func startHub(t *testing.T, source StatsSource, interval time.Duration) (*Hub, *httptest.Server, context.CancelFunc) {
	t.Helper()
	hub := NewHub(source, interval, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return hub, srv, cancel
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readStats(t *testing.T, conn *websocket.Conn) cache.Stats {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg struct {
		Type    string      `json:"type"`
		Payload cache.Stats `json:"payload"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decode %q: %v", data, err)
	}
	if msg.Type != "stats" {
		t.Fatalf("unexpected message type %q", msg.Type)
	}
	return msg.Payload
}

func TestStatsStreamSendsSnapshotOnConnect(t *testing.T) {
	_, srv, _ := startHub(t, fixedStats{cache.Stats{Entries: 3, Hits: 7}}, time.Hour)
	conn := dial(t, srv)

	stats := readStats(t, conn)
	if stats.Entries != 3 || stats.Hits != 7 {
		t.Errorf("unexpected snapshot: %+v", stats)
	}
}

func TestStatsStreamPushesOnInterval(t *testing.T) {
	_, srv, _ := startHub(t, fixedStats{cache.Stats{Entries: 1}}, 20*time.Millisecond)
	conn := dial(t, srv)

	readStats(t, conn) // on connect
	readStats(t, conn) // first tick
}

func TestStatsStreamRefresh(t *testing.T) {
	_, srv, _ := startHub(t, fixedStats{cache.Stats{Misses: 2}}, time.Hour)
	conn := dial(t, srv)
	readStats(t, conn)

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"refresh"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if stats := readStats(t, conn); stats.Misses != 2 {
		t.Errorf("unexpected refresh payload: %+v", stats)
	}
}

func TestStatsStreamClosesOnShutdown(t *testing.T) {
	hub, srv, cancel := startHub(t, fixedStats{}, time.Hour)
	conn := dial(t, srv)
	readStats(t, conn)

	cancel()
	select {
	case <-hub.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("hub did not stop")
	}

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("expected the connection to close")
	}
	if hub.ClientCount() != 0 {
		t.Errorf("expected no clients, got %d", hub.ClientCount())
	}
}

func TestCheckOrigin(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		host    string
		want    bool
	}{
		{name: "no origin", origin: "", host: "cache.local", want: true},
		{name: "same host", origin: "https://cache.local", host: "cache.local", want: true},
		{name: "cross host", origin: "https://evil.example", host: "cache.local", want: false},
		{name: "allow list hit", allowed: []string{"https://admin.example/"}, origin: "https://admin.example", host: "cache.local", want: true},
		{name: "allow list miss", allowed: []string{"https://admin.example"}, origin: "https://cache.local", host: "cache.local", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hub := NewHub(fixedStats{}, time.Second, tt.allowed)
			req := httptest.NewRequest(http.MethodGet, "/stream", nil)
			req.Host = tt.host
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if got := hub.checkOrigin(req); got != tt.want {
				t.Errorf("checkOrigin = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStatsStreamRefusesAfterShutdown(t *testing.T) {
	hub, srv, cancel := startHub(t, fixedStats{}, time.Hour)
	cancel()
	<-hub.Done()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
}
