package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// dialBroadcaster starts a websocket endpoint whose server-side connections
// register with b, and returns a connected client.
func dialBroadcaster(t *testing.T, b *Broadcaster) *websocket.Conn {
	t.Helper()

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		b.Add(conn)
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool { return b.Count() == 1 },
		time.Second, 10*time.Millisecond)
	return conn
}

func TestBroadcastDelivers(t *testing.T) {
	b := NewBroadcaster(zerolog.Nop())
	conn := dialBroadcaster(t, b)

	b.Broadcast("tick", map[string]interface{}{"status": "active"})

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg EventMessage
	require.NoError(t, json.Unmarshal(raw, &msg))
	assert.Equal(t, "tick", msg.Event)
	assert.Equal(t, "active", msg.Data["status"])
}

func TestBroadcastConcurrent(t *testing.T) {
	b := NewBroadcaster(zerolog.Nop())
	conn := dialBroadcaster(t, b)

	// Drain the client side so server writes never back up.
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	// Broadcasts overlap from several goroutines, like the tick emitter
	// racing the conversation handlers. Each connection must serialize its
	// writes or the websocket package panics.
	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				b.Broadcast("tick", map[string]interface{}{"n": i})
			}
		}()
	}
	wg.Wait()

	b.CloseAll()
	select {
	case <-drained:
	case <-time.After(2 * time.Second):
		t.Fatal("client reader did not observe close")
	}
	assert.Equal(t, 0, b.Count())
}

func TestBroadcastDropsDeadClient(t *testing.T) {
	b := NewBroadcaster(zerolog.Nop())
	conn := dialBroadcaster(t, b)

	conn.Close()
	require.Eventually(t, func() bool {
		b.Broadcast("tick", nil)
		return b.Count() == 0
	}, 2*time.Second, 50*time.Millisecond)
}
