package service

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// All client writes go through the hub loop, so broadcasts and keepalive
// pings must interleave cleanly on one connection.
func TestWSHub_BroadcastAndPingShareOneWriter(t *testing.T) {
	old := pingInterval
	pingInterval = 10 * time.Millisecond
	defer func() { pingInterval = old }()

	hub := NewWSHub()
	go hub.Run()

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	pinged := make(chan struct{}, 1)
	conn.SetPingHandler(func(string) error {
		select {
		case pinged <- struct{}{}:
		default:
		}
		return nil
	})

	// Keep broadcasting while the ping ticker fires so both write paths
	// hit the connection together.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		for {
			select {
			case <-stop:
				return
			case <-time.After(5 * time.Millisecond):
				hub.Broadcast(WSMessage{Type: "stake_accepted", PoolID: "p1"})
			}
		}
	}()

	deadline := time.Now().Add(3 * time.Second)
	conn.SetReadDeadline(deadline)

	sawBroadcast := false
	for time.Now().Before(deadline) {
		select {
		case <-pinged:
			if sawBroadcast {
				return
			}
		default:
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("decode broadcast: %v", err)
		}
		if msg.Type != "stake_accepted" || msg.PoolID != "p1" {
			t.Fatalf("unexpected broadcast: %+v", msg)
		}
		sawBroadcast = true
	}
	t.Fatal("did not observe both a broadcast and a keepalive ping")
}
